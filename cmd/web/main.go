package main

import (
	_ "embed"
	"flag"
	"fmt"
	"html/template"
	"net"
	"net/http"
	"os"

	"github.com/rs/zerolog"

	"github.com/tomz197/spaceman/internal/config"
	"github.com/tomz197/spaceman/internal/logging"
)

//go:embed index.html
var htmlPage string

// pageData fills the landing page template.
type pageData struct {
	SSHHost string
	SSHPort string // Empty when the default port 22 applies
}

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

	handler, err := newHandler(cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to build landing page")
	}

	addr := net.JoinHostPort(cfg.Web.Host, cfg.Web.Port)
	logger.Info().Str("addr", "http://"+addr).Msg("Starting web server")
	if err := http.ListenAndServe(addr, handler); err != nil {
		logger.Fatal().Err(err).Msg("Server error")
	}
}

// newHandler serves the landing page with the public SSH address.
func newHandler(cfg config.Config, log zerolog.Logger) (http.Handler, error) {
	tmpl, err := template.New("index").Parse(htmlPage)
	if err != nil {
		return nil, fmt.Errorf("error parsing index.html: %w", err)
	}

	data := pageData{SSHHost: cfg.Web.SSHDisplayHost}
	if cfg.SSH.Port != "" && cfg.SSH.Port != "22" {
		data.SSHPort = cfg.SSH.Port
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := tmpl.Execute(w, data); err != nil {
			log.Error().Err(err).Str("remote", r.RemoteAddr).Msg("Failed to render page")
		}
	})
	return mux, nil
}
