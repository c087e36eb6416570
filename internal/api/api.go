// Package api serves read-only views of the job store over HTTP.
// Endpoints: GET /api/jobs, GET /api/differences, GET /api/health, GET /healthz,
// GET /metrics and, when configured, static frontend files at /.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/arkiv/jobwatch/internal/canon"
	"github.com/arkiv/jobwatch/internal/metrics"
	"github.com/arkiv/jobwatch/internal/store"
)

// Snapshotter is the read side of the Store.
type Snapshotter interface {
	History() map[string][]canon.Job
	Differences() []store.Difference
}

// Options configures the handler.
type Options struct {
	// FrontendDir serves static files at / when set.
	FrontendDir string
	// RateLimit is the number of /api requests allowed per client IP per minute. 0 disables it.
	RateLimit int
	// TrustProxy keys the rate limit on X-Forwarded-For instead of the peer address.
	TrustProxy bool
}

// NewHandler returns the instrumented HTTP handler.
func NewHandler(snap Snapshotter, opts Options) http.Handler {
	apiMux := http.NewServeMux()
	apiMux.HandleFunc("/api/jobs", handleJobs(snap))
	apiMux.HandleFunc("/api/differences", handleDifferences(snap))
	apiMux.HandleFunc("/api/health", handleHealth)

	var apiHandler http.Handler = cors(apiMux)
	if opts.RateLimit > 0 {
		apiHandler = limit(newRateLimiter(opts.RateLimit, time.Minute), opts.TrustProxy, apiHandler)
	}

	mux := http.NewServeMux()
	mux.Handle("/api/", apiHandler)
	mux.HandleFunc("/healthz", handleHealthz)
	mux.Handle("/metrics", promhttp.Handler())
	if opts.FrontendDir != "" {
		mux.Handle("/", http.FileServer(http.Dir(opts.FrontendDir)))
	}
	return instrument(mux)
}

func handleJobs(snap Snapshotter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, `{"error":"method not allowed"}`, http.StatusMethodNotAllowed)
			return
		}
		writeJSON(w, snap.History())
	}
}

func handleDifferences(snap Snapshotter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, `{"error":"method not allowed"}`, http.StatusMethodNotAllowed)
			return
		}
		writeJSON(w, snap.Differences())
	}
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, `{"error":"method not allowed"}`, http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, map[string]string{"status": "healthy", "backend": "running"})
}

func handleHealthz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func writeJSON(w http.ResponseWriter, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		slog.Error("encode response", "err", err)
		http.Error(w, `{"error":"internal"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}

// cors allows any origin to read the API.
func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		if r.Method == http.MethodOptions {
			w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// instrument wraps handlers to record Prometheus metrics (method, path, status, duration).
func instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		path := pathLabel(r.URL.Path)
		method := r.Method
		ww := &responseWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(ww, r)
		status := statusLabel(ww.status)
		metrics.HTTPRequests.WithLabelValues(method, path, status).Inc()
		metrics.HTTPDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
	})
}

// pathLabel folds static file paths into one label to bound cardinality.
func pathLabel(p string) string {
	switch p {
	case "/api/jobs", "/api/differences", "/api/health", "/healthz", "/metrics":
		return p
	}
	if strings.HasPrefix(p, "/api/") {
		return "/api/other"
	}
	return "/static"
}

// responseWriter captures status code for Prometheus labeling.
type responseWriter struct {
	http.ResponseWriter
	status int
}

func (w *responseWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func statusLabel(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	case code >= 200:
		return "2xx"
	default:
		return "unknown"
	}
}
