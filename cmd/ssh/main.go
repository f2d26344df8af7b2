package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/charmbracelet/ssh"
	"github.com/charmbracelet/wish"
	"github.com/charmbracelet/wish/activeterm"
	"github.com/charmbracelet/wish/logging"
	"github.com/rs/zerolog"

	"github.com/tomz197/spaceman/internal/asset"
	"github.com/tomz197/spaceman/internal/config"
	applog "github.com/tomz197/spaceman/internal/logging"
	"github.com/tomz197/spaceman/internal/loop"
	"github.com/tomz197/spaceman/internal/render"
	"github.com/tomz197/spaceman/internal/telemetry"
)

func main() {
	configPath := flag.String("config", "", "path to a config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	logger, closer, err := applog.New(cfg.Log, os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logging error: %v\n", err)
		os.Exit(1)
	}
	defer closer.Close()

	workingDir, workErr := os.Getwd()
	if workErr != nil {
		logger.Warn().Err(workErr).Msg("Failed to get working directory")
	}
	logger.Info().
		Str("host", cfg.SSH.Host).
		Str("port", cfg.SSH.Port).
		Str("hostKeyPath", cfg.SSH.HostKey).
		Str("workingDir", workingDir).
		Msg("SSH config")

	metrics, err := telemetry.Global()
	if err != nil {
		logger.Warn().Err(err).Msg("Metrics disabled")
	}

	h := &gameHandler{
		loader:  asset.NewLoader(asset.FS(cfg.Assets.Dir), logger),
		cfg:     cfg,
		log:     logger,
		metrics: metrics,
	}

	opts := []ssh.Option{
		wish.WithAddress(net.JoinHostPort(cfg.SSH.Host, cfg.SSH.Port)),
		wish.WithMiddleware(
			h.middleware,
			activeterm.Middleware(),
			logging.MiddlewareWithLogger(connLogger{logger.With().Str("component", "ssh").Logger()}),
		),
		// Set TCP_NODELAY to reduce latency for game input
		ssh.WrapConn(func(ctx ssh.Context, conn net.Conn) net.Conn {
			if tcpConn, ok := conn.(*net.TCPConn); ok {
				_ = tcpConn.SetNoDelay(true)
			}
			return conn
		}),
	}

	if cfg.SSH.HostKey != "" {
		opts = append(opts, wish.WithHostKeyPath(cfg.SSH.HostKey))
	}

	s, err := wish.NewServer(opts...)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create server")
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	logger.Info().Str("addr", net.JoinHostPort(cfg.SSH.Host, cfg.SSH.Port)).Msg("Starting SSH server")
	go func() {
		if err := s.ListenAndServe(); err != nil && !errors.Is(err, ssh.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("Server error")
		}
	}()

	<-done
	logger.Info().Msg("Shutting down server...")

	// Ends every running session loop.
	h.shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.Shutdown(ctx); err != nil {
		logger.Fatal().Err(err).Msg("Shutdown error")
	}
}

// connLogger routes wish connection logs into zerolog at info level.
type connLogger struct {
	log zerolog.Logger
}

func (c connLogger) Printf(format string, v ...interface{}) {
	c.log.Info().Msgf(strings.TrimSuffix(format, "\n"), v...)
}

// gameHandler runs one independent game per SSH session.
type gameHandler struct {
	loader  *asset.Loader
	cfg     config.Config
	log     zerolog.Logger
	metrics *telemetry.Instruments

	mu       sync.Mutex
	sessions map[ssh.Session]context.CancelFunc
	closing  bool
}

func (h *gameHandler) middleware(next ssh.Handler) ssh.Handler {
	return func(sess ssh.Session) {
		pty, winCh, ok := sess.Pty()
		if !ok {
			fmt.Fprintln(sess, "Error: PTY required. Please connect with: ssh -t user@host")
			return
		}

		log := h.log.With().Str("user", sess.User()).Str("remote", sess.RemoteAddr().String()).Logger()
		log.Info().
			Str("terminal", pty.Term).
			Int("width", pty.Window.Width).
			Int("height", pty.Window.Height).
			Msg("New game session")

		ctx, ok := h.register(sess)
		if !ok {
			fmt.Fprintln(sess, "Server is shutting down. Please reconnect in a moment.")
			return
		}
		defer h.unregister(sess)

		// Create a terminal size tracker that updates on window changes
		sizeTracker := newSizeTracker(pty.Window.Width, pty.Window.Height)
		go func() {
			for win := range winCh {
				sizeTracker.update(win.Width, win.Height)
			}
		}()

		err := loop.Run(ctx, bufio.NewReader(sess), sess, loop.Options{
			TermSizeFunc: sizeTracker.getSize,
			Loader:       h.loader,
			Game:         h.cfg.Game,
			IdleWarn:     h.cfg.SSH.IdleWarn,
			IdleTimeout:  h.cfg.SSH.IdleTimeout,
			Logger:       log,
			Metrics:      h.metrics,
		})
		if err != nil {
			log.Error().Err(err).Msg("Game error")
			fmt.Fprintf(sess, "game error: %v\r\n", err)
		}

		log.Info().Msg("Session ended")
		next(sess)
	}
}

func (h *gameHandler) register(sess ssh.Session) (context.Context, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closing {
		return nil, false
	}
	if h.sessions == nil {
		h.sessions = make(map[ssh.Session]context.CancelFunc)
	}
	ctx, cancel := context.WithCancel(sess.Context())
	h.sessions[sess] = cancel
	return ctx, true
}

func (h *gameHandler) unregister(sess ssh.Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if cancel, ok := h.sessions[sess]; ok {
		cancel()
		delete(h.sessions, sess)
	}
}

func (h *gameHandler) shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closing = true
	for _, cancel := range h.sessions {
		cancel()
	}
	h.log.Info().Int("sessions", len(h.sessions)).Msg("Stopped running games")
}

// sizeTracker tracks terminal size from SSH window change events.
type sizeTracker struct {
	mu     sync.RWMutex
	width  int
	height int
}

func newSizeTracker(width, height int) *sizeTracker {
	return &sizeTracker{width: width, height: height}
}

func (s *sizeTracker) update(width, height int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.width = width
	s.height = height
}

func (s *sizeTracker) getSize() (int, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.width, s.height, nil
}

// Ensure sizeTracker.getSize satisfies render.TermSizeFunc
var _ render.TermSizeFunc = (*sizeTracker)(nil).getSize
