package config

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arkiv/jobwatch/internal/canon"
	"github.com/arkiv/jobwatch/internal/feed"
)

func TestParseFromEnv(t *testing.T) {
	t.Setenv("PORT", ":9090")
	t.Setenv("DATABASE_URL", "postgres://a:b@c/d")
	t.Setenv("DIFF_RETENTION", "50")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("TRUST_PROXY", "true")

	cfg, err := Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Addr)
	assert.Equal(t, "postgres://a:b@c/d", cfg.DatabaseURL)
	assert.Equal(t, 50, cfg.DiffRetention)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
	assert.True(t, cfg.TrustProxy)
}

func TestParseDefaults(t *testing.T) {
	cfg, err := Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, "config/sources.json", cfg.SourcesFile)
	assert.Empty(t, cfg.DatabaseURL)
	assert.Equal(t, 1000, cfg.DiffRetention)
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
	assert.False(t, cfg.TrustProxy)
}

func TestParseFlagsBeatDefaults(t *testing.T) {
	cfg, err := Parse([]string{"-port", "7000", "-sources", "x.yaml"})
	require.NoError(t, err)
	assert.Equal(t, ":7000", cfg.Addr)
	assert.Equal(t, "x.yaml", cfg.SourcesFile)
}

func TestParseBadLogLevel(t *testing.T) {
	_, err := Parse([]string{"-log-level", "loud"})
	assert.Error(t, err)
}

const sourcesJSON = `{
	"sources": [
		{"name": "stratum.work", "url": "wss://stratum.work/ws", "type": "stratum_work", "mode": "ws"},
		{"name": "observer", "url": "https://observer.example/events", "type": "observer", "mode": "sse"}
	]
}`

const sourcesYAML = `
sources:
  - name: stratum.work
    url: wss://stratum.work/ws
    type: stratum_work
  - name: observer
    url: https://observer.example/events
    type: observer
    mode: push-stream
`

func TestParseSources(t *testing.T) {
	want := []feed.Source{
		{Name: "stratum.work", URL: "wss://stratum.work/ws", Type: canon.StratumWork, Mode: feed.ModeSocket},
		{Name: "observer", URL: "https://observer.example/events", Type: canon.Observer, Mode: feed.ModeStream},
	}
	for name, doc := range map[string]string{"json": sourcesJSON, "yaml": sourcesYAML} {
		t.Run(name, func(t *testing.T) {
			got, err := ParseSources([]byte(doc), canon.Default())
			require.NoError(t, err)
			assert.Equal(t, want, got)
		})
	}
}

func TestParseSourcesRejects(t *testing.T) {
	tests := map[string]string{
		"not a document": `[[[`,
		"missing url":    `{"sources":[{"name":"a","type":"observer"}]}`,
		"bad url":        `{"sources":[{"name":"a","url":"::nope","type":"observer"}]}`,
		"unknown type":   `{"sources":[{"name":"a","url":"ws://x","type":"mystery"}]}`,
		"bad mode":       `{"sources":[{"name":"a","url":"ws://x","type":"observer","mode":"udp"}]}`,
		"duplicate name": `{"sources":[{"name":"a","url":"ws://x","type":"observer"},{"name":"a","url":"ws://y","type":"observer"}]}`,
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParseSources([]byte(doc), canon.Default())
			assert.Error(t, err)
		})
	}
}

func TestParseSourcesEmpty(t *testing.T) {
	_, err := ParseSources([]byte(`{"sources":[]}`), canon.Default())
	assert.True(t, errors.Is(err, ErrNoSources))
}

func TestLoadSources(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sources.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sourcesYAML), 0o600))
	got, err := LoadSources(path, canon.Default())
	require.NoError(t, err)
	assert.Len(t, got, 2)

	_, err = LoadSources(filepath.Join(t.TempDir(), "missing.json"), canon.Default())
	assert.Error(t, err)
}
