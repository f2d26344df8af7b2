package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"image"
	"image/color"
	"math/rand/v2"
	"os"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/ebitenutil"
	"github.com/hajimehoshi/ebiten/v2/inpututil"
	"github.com/hajimehoshi/ebiten/v2/vector"
	"github.com/rs/zerolog"

	"github.com/tomz197/spaceman/internal/asset"
	"github.com/tomz197/spaceman/internal/config"
	"github.com/tomz197/spaceman/internal/game"
	"github.com/tomz197/spaceman/internal/logging"
	"github.com/tomz197/spaceman/internal/render"
	"github.com/tomz197/spaceman/internal/telemetry"
)

// Debug font cell size in pixels.
const (
	glyphWidth  = 6
	glyphHeight = 16
)

// Frames a steering key must be held before it repeats.
const keyRepeatDelay = 15

var background = color.RGBA{R: 0x05, G: 0x06, B: 0x0f, A: 0xff}

func main() {
	configPath := flag.String("config", "", "path to a config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	logger, closer, err := logging.New(cfg.Log, os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logging error: %v\n", err)
		os.Exit(1)
	}
	defer closer.Close()

	metrics, err := telemetry.Global()
	if err != nil {
		logger.Warn().Err(err).Msg("Metrics disabled")
	}

	var rng *rand.Rand
	if cfg.Game.Seed != 0 {
		seed := uint64(cfg.Game.Seed)
		rng = rand.New(rand.NewPCG(seed, seed))
	}

	session, err := game.New(context.Background(), asset.NewLoader(asset.FS(cfg.Assets.Dir), logger), game.Options{
		Width:           float64(cfg.Desktop.Width),
		Height:          float64(cfg.Desktop.Height),
		InitialBatches:  cfg.Game.InitialBatches,
		TimeBasedEasing: cfg.Game.TimeBasedEasing,
		ShowBoxes:       cfg.Game.ShowBoxes,
		Rand:            rng,
		Logger:          logger,
		Metrics:         metrics,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to start session")
	}

	g := newDesktopGame(session, cfg.Desktop.Width, cfg.Desktop.Height, logger)

	ebiten.SetWindowSize(cfg.Desktop.Width, cfg.Desktop.Height)
	ebiten.SetWindowTitle("Spaceman")
	ebiten.SetWindowResizingMode(ebiten.WindowResizingModeEnabled)
	if cfg.Game.FPS > 0 {
		ebiten.SetTPS(cfg.Game.FPS)
	}

	if err := ebiten.RunGame(g); err != nil && !errors.Is(err, ebiten.Termination) {
		logger.Fatal().Err(err).Msg("Game error")
	}
	logger.Info().Str("score", session.ScoreText()).Msg("Window closed")
}

// desktopGame drives a session from ebiten's Update/Draw/Layout callbacks.
type desktopGame struct {
	session *game.Session
	log     zerolog.Logger

	width, height    int
	lastTick         time.Time
	cursorX, cursorY int

	white *ebiten.Image // 1x1 source for filled triangles
}

func newDesktopGame(session *game.Session, width, height int, log zerolog.Logger) *desktopGame {
	img := ebiten.NewImage(3, 3)
	img.Fill(color.White)
	return &desktopGame{
		session:  session,
		log:      log,
		width:    width,
		height:   height,
		lastTick: time.Now(),
		cursorX:  -1,
		cursorY:  -1,
		white:    img.SubImage(image.Rect(1, 1, 2, 2)).(*ebiten.Image),
	}
}

func (g *desktopGame) Update() error {
	now := time.Now()
	elapsed := now.Sub(g.lastTick)
	g.lastTick = now

	if inpututil.IsKeyJustPressed(ebiten.KeyQ) || inpututil.IsKeyJustPressed(ebiten.KeyEscape) {
		return ebiten.Termination
	}

	if inpututil.IsMouseButtonJustPressed(ebiten.MouseButtonLeft) ||
		inpututil.IsKeyJustPressed(ebiten.KeySpace) ||
		inpututil.IsKeyJustPressed(ebiten.KeyEnter) {
		if g.session.Start() {
			g.log.Info().Msg("Player started the game")
		}
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyB) {
		g.session.ToggleBoxes()
	}

	if x, y := ebiten.CursorPosition(); x != g.cursorX || y != g.cursorY {
		g.cursorX, g.cursorY = x, y
		g.session.SetPointer(render.PixelToNDC(x, y, g.width, g.height))
	}

	var dx, dy float64
	if steering(ebiten.KeyArrowLeft, ebiten.KeyA) {
		dx--
	}
	if steering(ebiten.KeyArrowRight, ebiten.KeyD) {
		dx++
	}
	if steering(ebiten.KeyArrowUp, ebiten.KeyW) {
		dy++
	}
	if steering(ebiten.KeyArrowDown, ebiten.KeyS) {
		dy--
	}
	if dx != 0 || dy != 0 {
		g.session.NudgePointer(dx*game.PointerNudge, dy*game.PointerNudge)
	}

	g.session.Update(elapsed)
	return nil
}

// steering reports whether either key was just pressed or has been held
// past the repeat delay.
func steering(keys ...ebiten.Key) bool {
	for _, k := range keys {
		if inpututil.IsKeyJustPressed(k) || inpututil.KeyPressDuration(k) > keyRepeatDelay {
			return true
		}
	}
	return false
}

func (g *desktopGame) Draw(screen *ebiten.Image) {
	screen.Fill(background)
	s := g.session.Scene()

	for _, st := range s.Background.Stars {
		x, y := render.NDCToPixel(mgl64.Vec2{st.X, st.Y}, g.width, g.height)
		vector.DrawFilledRect(screen, x, y, 1.5, 1.5, render.StarShade(st), false)
	}

	for _, f := range render.Wireframe(s, g.session.Camera()) {
		if f.Filled {
			g.fillFace(screen, f)
			continue
		}
		for i := range f.Points {
			x1, y1 := render.NDCToPixel(f.Points[i], g.width, g.height)
			x2, y2 := render.NDCToPixel(f.Points[(i+1)%len(f.Points)], g.width, g.height)
			vector.StrokeLine(screen, x1, y1, x2, y2, 1, f.Color, true)
		}
	}

	for _, seg := range render.BoxOutlines(s, g.session.Camera()) {
		x1, y1 := render.NDCToPixel(seg.A, g.width, g.height)
		x2, y2 := render.NDCToPixel(seg.B, g.width, g.height)
		vector.StrokeLine(screen, x1, y1, x2, y2, 1, render.BoxColor, false)
	}

	g.drawHUD(screen)
}

func (g *desktopGame) fillFace(screen *ebiten.Image, f render.Face) {
	indices := render.FanIndices(len(f.Points))
	if indices == nil {
		return
	}
	r, gr, b := float32(f.Color.R)/0xff, float32(f.Color.G)/0xff, float32(f.Color.B)/0xff
	vertices := make([]ebiten.Vertex, len(f.Points))
	for i, p := range f.Points {
		x, y := render.NDCToPixel(p, g.width, g.height)
		vertices[i] = ebiten.Vertex{
			DstX: x, DstY: y,
			SrcX: 1, SrcY: 1,
			ColorR: r, ColorG: gr, ColorB: b, ColorA: 1,
		}
	}
	screen.DrawTriangles(vertices, indices, g.white, &ebiten.DrawTrianglesOptions{})
}

func (g *desktopGame) drawHUD(screen *ebiten.Image) {
	if !g.session.Active() {
		cx, cy := g.width/2, g.height/2
		lines := []struct {
			text string
			row  int
		}{
			{render.Title, -2},
			{render.StartPrompt, 1},
			{render.ControlsHelp, 3},
		}
		for _, l := range lines {
			ebitenutil.DebugPrintAt(screen, l.text, cx-len(l.text)*glyphWidth/2, cy+l.row*glyphHeight)
		}
		return
	}

	ebitenutil.DebugPrintAt(screen, g.session.ScoreText(), 2*glyphWidth, glyphHeight/2)
	if g.session.ShowBoxes() {
		const label = "[boxes]"
		ebitenutil.DebugPrintAt(screen, label, g.width-(len(label)+1)*glyphWidth, glyphHeight/2)
	}
}

func (g *desktopGame) Layout(outsideWidth, outsideHeight int) (int, int) {
	if outsideWidth > 0 && outsideHeight > 0 && (outsideWidth != g.width || outsideHeight != g.height) {
		g.width, g.height = outsideWidth, outsideHeight
		g.session.Resize(float64(outsideWidth), float64(outsideHeight))
	}
	return g.width, g.height
}
