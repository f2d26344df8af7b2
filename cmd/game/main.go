package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/term"

	"github.com/tomz197/spaceman/internal/asset"
	"github.com/tomz197/spaceman/internal/config"
	"github.com/tomz197/spaceman/internal/logging"
	"github.com/tomz197/spaceman/internal/loop"
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

	// Logs must never reach the game screen.
	logger, closer, err := logging.New(cfg.Log, io.Discard)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logging error: %v\n", err)
		os.Exit(1)
	}
	defer closer.Close()

	metrics, err := telemetry.Global()
	if err != nil {
		logger.Warn().Err(err).Msg("Metrics disabled")
	}

	fd := int(os.Stdin.Fd())
	oldState, err := term.MakeRaw(fd)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to enable raw mode: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = term.Restore(fd, oldState)
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reader := bufio.NewReader(os.Stdin)
	err = loop.Run(ctx, reader, os.Stdout, loop.Options{
		Loader:  asset.NewLoader(asset.FS(cfg.Assets.Dir), logger),
		Game:    cfg.Game,
		Logger:  logger,
		Metrics: metrics,
	})
	if err != nil {
		_ = term.Restore(fd, oldState)
		logger.Error().Err(err).Msg("Game error")
		fmt.Fprintf(os.Stderr, "game error: %v\n", err)
		os.Exit(1)
	}
}
