package main

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomz197/spaceman/internal/config"
)

func serve(t *testing.T, cfg config.Config, path string) *httptest.ResponseRecorder {
	t.Helper()
	h, err := newHandler(cfg, zerolog.Nop())
	require.NoError(t, err)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestLandingPageShowsSSHCommand(t *testing.T) {
	cfg := config.Config{
		SSH: config.SSHConfig{Port: "2222"},
		Web: config.WebConfig{SSHDisplayHost: "play.example.org"},
	}
	rec := serve(t, cfg, "/")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "ssh -t play.example.org -p 2222")
}

func TestLandingPageOmitsDefaultPort(t *testing.T) {
	cfg := config.Config{
		SSH: config.SSHConfig{Port: "22"},
		Web: config.WebConfig{SSHDisplayHost: "play.example.org"},
	}
	body := serve(t, cfg, "/").Body.String()
	assert.Contains(t, body, "ssh -t play.example.org</code>")
}

func TestLandingPageEscapesHost(t *testing.T) {
	cfg := config.Config{Web: config.WebConfig{SSHDisplayHost: "<script>x</script>"}}
	body := serve(t, cfg, "/").Body.String()
	assert.NotContains(t, body, "<script>x</script>")
	assert.Contains(t, body, "&lt;script&gt;")
}

func TestUnknownPathIsNotFound(t *testing.T) {
	rec := serve(t, config.Config{}, "/missing")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
