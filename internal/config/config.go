// Package config loads process settings from flags and environment and the
// feed list from a JSON or YAML sources file.
package config

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/peterbourgon/ff/v3"
	"gopkg.in/yaml.v3"

	"github.com/arkiv/jobwatch/internal/canon"
	"github.com/arkiv/jobwatch/internal/feed"
	"github.com/arkiv/jobwatch/internal/store"
)

// ErrNoSources is returned when the sources file lists no feeds.
var ErrNoSources = errors.New("no sources configured")

// Config holds process settings. Every flag can also be set through the
// upper-snake env var of the same name (PORT, DATABASE_URL, ...).
type Config struct {
	Addr          string
	SourcesFile   string
	DatabaseURL   string
	FrontendDir   string
	DiffRetention int
	APIRateLimit  int
	TrustProxy    bool
	LogLevel      slog.Level
}

// Parse reads settings from args and the environment.
func Parse(args []string) (Config, error) {
	fs := flag.NewFlagSet("jobwatch", flag.ContinueOnError)
	var (
		port          = fs.String("port", "8080", "HTTP listen port (8080 or :8080)")
		sources       = fs.String("sources", "config/sources.json", "path to the sources file (JSON or YAML)")
		databaseURL   = fs.String("database-url", "", "Postgres URL for the divergence sink; empty disables it")
		frontendDir   = fs.String("frontend-dir", "", "directory of static frontend files; empty disables it")
		diffRetention = fs.Int("diff-retention", store.DefaultRetention, "divergence records kept in memory; 0 keeps all")
		apiRateLimit  = fs.Int("api-rate-limit", 120, "API requests per minute per client IP; 0 disables the limit")
		trustProxy    = fs.Bool("trust-proxy", false, "key the API rate limit on X-Forwarded-For; set only behind a proxy that overwrites it")
		logLevel      = fs.String("log-level", "info", "debug, info, warn or error")
	)
	if err := ff.Parse(fs, args, ff.WithEnvVarNoPrefix()); err != nil {
		return Config{}, err
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(*logLevel)); err != nil {
		return Config{}, fmt.Errorf("log level: %w", err)
	}
	return Config{
		Addr:          listenAddr(*port),
		SourcesFile:   *sources,
		DatabaseURL:   *databaseURL,
		FrontendDir:   *frontendDir,
		DiffRetention: *diffRetention,
		APIRateLimit:  *apiRateLimit,
		TrustProxy:    *trustProxy,
		LogLevel:      level,
	}, nil
}

func listenAddr(port string) string {
	p := strings.TrimPrefix(port, ":") // allow PORT=8080 or PORT=:8080
	if p == "" {
		return ":8080"
	}
	return ":" + p
}

// SourceConfig is one entry of the sources file.
type SourceConfig struct {
	Name string `json:"name" yaml:"name" validate:"required"`
	URL  string `json:"url" yaml:"url" validate:"required,url"`
	Type string `json:"type" yaml:"type" validate:"required"`
	Mode string `json:"mode" yaml:"mode" validate:"omitempty,oneof=ws sse persistent-socket push-stream"`
}

// SourcesFile is the document stored in the sources file.
type SourcesFile struct {
	Sources []SourceConfig `json:"sources" yaml:"sources" validate:"dive"`
}

var validate = validator.New()

// LoadSources reads and validates path. Every source type must be registered
// in reg. Any problem is returned as an error; there is no partial result.
func LoadSources(path string, reg *canon.Registry) ([]feed.Source, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read sources: %w", err)
	}
	return ParseSources(data, reg)
}

// ParseSources decodes a JSON or YAML sources document.
func ParseSources(data []byte, reg *canon.Registry) ([]feed.Source, error) {
	var file SourcesFile
	// YAML first, then JSON for documents YAML rejects (tab indentation).
	if err := yaml.Unmarshal(data, &file); err != nil {
		file = SourcesFile{}
		if jsonErr := json.Unmarshal(data, &file); jsonErr != nil {
			return nil, fmt.Errorf("parse sources (tried YAML and JSON): YAML error: %v, JSON error: %w", err, jsonErr)
		}
	}
	if len(file.Sources) == 0 {
		return nil, ErrNoSources
	}
	if err := validate.Struct(file); err != nil {
		return nil, fmt.Errorf("invalid sources: %w", err)
	}

	seen := make(map[string]bool, len(file.Sources))
	out := make([]feed.Source, 0, len(file.Sources))
	for _, sc := range file.Sources {
		if seen[sc.Name] {
			return nil, fmt.Errorf("duplicate source name %q", sc.Name)
		}
		seen[sc.Name] = true
		if !reg.Has(sc.Type) {
			return nil, fmt.Errorf("source %q: unknown type %q (known: %s)", sc.Name, sc.Type, strings.Join(reg.Types(), ", "))
		}
		mode, err := feed.ParseMode(sc.Mode)
		if err != nil {
			return nil, fmt.Errorf("source %q: %w", sc.Name, err)
		}
		out = append(out, feed.Source{Name: sc.Name, URL: sc.URL, Type: sc.Type, Mode: mode})
	}
	return out, nil
}
