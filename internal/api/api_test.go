package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arkiv/jobwatch/internal/canon"
	"github.com/arkiv/jobwatch/internal/store"
)

func seededStore() *store.Store {
	s := store.New()
	s.Ingest(&canon.Job{Source: canon.StratumWork, JobID: "1", PrevHash: "aa", Timestamp: 1})
	s.Ingest(&canon.Job{Source: canon.Observer, JobID: "2", PrevHash: "aa", Timestamp: 2})
	return s
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestJobs(t *testing.T) {
	h := NewHandler(seededStore(), Options{})
	rec := get(t, h, "/api/jobs")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))

	var jobs map[string][]canon.Job
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &jobs))
	require.Len(t, jobs[canon.StratumWork], 1)
	assert.Equal(t, "1", jobs[canon.StratumWork][0].JobID)
	assert.Len(t, jobs[canon.Observer], 1)
}

func TestDifferences(t *testing.T) {
	h := NewHandler(seededStore(), Options{})
	rec := get(t, h, "/api/differences")
	require.Equal(t, http.StatusOK, rec.Code)

	var diffs []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &diffs))
	require.Len(t, diffs, 1)
	d := diffs[0]
	assert.Equal(t, canon.StratumWork, d["source_1"])
	assert.Equal(t, canon.Observer, d["source_2"])
	assert.IsType(t, float64(0), d["timestamp"])
}

func TestEmptyStoreRendersEmptyJSON(t *testing.T) {
	h := NewHandler(store.New(), Options{})
	assert.Equal(t, "{}", strings.TrimSpace(get(t, h, "/api/jobs").Body.String()))
	assert.Equal(t, "[]", strings.TrimSpace(get(t, h, "/api/differences").Body.String()))
}

func TestHealth(t *testing.T) {
	rec := get(t, NewHandler(store.New(), Options{}), "/api/health")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"healthy"`)
}

func TestMethodNotAllowed(t *testing.T) {
	h := NewHandler(store.New(), Options{})
	for _, path := range []string{"/api/jobs", "/api/differences", "/api/health"} {
		req := httptest.NewRequest(http.MethodPost, path, nil)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code, "POST %s", path)
	}
}

func TestPreflight(t *testing.T) {
	req := httptest.NewRequest(http.MethodOptions, "/api/jobs", nil)
	rec := httptest.NewRecorder()
	NewHandler(store.New(), Options{}).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestFrontend(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"), []byte("<h1>jobs</h1>"), 0o600))

	rec := get(t, NewHandler(store.New(), Options{FrontendDir: dir}), "/")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "jobs")

	rec = get(t, NewHandler(store.New(), Options{}), "/")
	assert.Equal(t, http.StatusNotFound, rec.Code, "no frontend dir configured")
}

func TestRateLimitedAPI(t *testing.T) {
	h := NewHandler(store.New(), Options{RateLimit: 2})
	for i := 0; i < 2; i++ {
		require.Equal(t, http.StatusOK, get(t, h, "/api/health").Code, "request %d", i)
	}
	assert.Equal(t, http.StatusTooManyRequests, get(t, h, "/api/health").Code)
	assert.Equal(t, http.StatusOK, get(t, h, "/healthz").Code, "/healthz is not limited")
}

func TestRateLimitedAPI_IgnoresForwardedForByDefault(t *testing.T) {
	h := NewHandler(store.New(), Options{RateLimit: 1})
	for i, xff := range []string{"198.51.100.1", "198.51.100.2"} {
		req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
		req.Header.Set("X-Forwarded-For", xff)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		want := http.StatusOK
		if i > 0 {
			want = http.StatusTooManyRequests
		}
		assert.Equal(t, want, rec.Code, "request with X-Forwarded-For %s", xff)
	}
}

func TestRateLimitedAPI_TrustProxyKeysOnForwardedFor(t *testing.T) {
	h := NewHandler(store.New(), Options{RateLimit: 1, TrustProxy: true})
	for _, xff := range []string{"198.51.100.1", "198.51.100.2"} {
		req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
		req.Header.Set("X-Forwarded-For", xff)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code, "request with X-Forwarded-For %s", xff)
	}
}

func TestRateLimiter_allow(t *testing.T) {
	r := newRateLimiter(2, time.Minute)
	assert.True(t, r.allow("1.2.3.4"), "first request")
	assert.True(t, r.allow("1.2.3.4"), "second request")
	assert.False(t, r.allow("1.2.3.4"), "third request")
	assert.True(t, r.allow("5.6.7.8"), "different IP")
}

func TestRateLimiter_ReleasesStaleEntries(t *testing.T) {
	r := newRateLimiter(1, 5*time.Millisecond)
	r.threshold = 16
	for i := 0; i < 500; i++ {
		require.True(t, r.allow(fmt.Sprintf("10.0.%d.%d", i/256, i%256)))
	}
	require.Equal(t, 500, r.size())

	time.Sleep(20 * time.Millisecond)
	assert.True(t, r.allow("192.0.2.1"))
	assert.Equal(t, 1, r.size(), "entries outside the window are swept")
}

func TestRateLimiter_BelowThresholdKeepsOtherKeys(t *testing.T) {
	r := newRateLimiter(1, 5*time.Millisecond)
	require.True(t, r.allow("10.0.0.1"))
	time.Sleep(20 * time.Millisecond)
	require.True(t, r.allow("10.0.0.2"))
	assert.Equal(t, 2, r.size())
	assert.True(t, r.allow("10.0.0.1"), "own expired hits are pruned on access")
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		xff        string
		trustProxy bool
		want       string
	}{
		{"ipv4", "192.0.2.7:4242", "", false, "192.0.2.7"},
		{"ipv6", "[2001:db8::1]:5555", "", false, "2001:db8::1"},
		{"ipv6 other", "[2001:db8::2]:6666", "", false, "2001:db8::2"},
		{"no port", "192.0.2.9", "", false, "192.0.2.9"},
		{"xff untrusted", "192.0.2.7:4242", "9.9.9.9, 10.0.0.1", false, "192.0.2.7"},
		{"xff trusted", "192.0.2.7:4242", "9.9.9.9, 10.0.0.1", true, "9.9.9.9"},
		{"xff trusted empty", "[2001:db8::1]:5555", "", true, "2001:db8::1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/jobs", nil)
			req.RemoteAddr = tt.remoteAddr
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			assert.Equal(t, tt.want, clientIP(req, tt.trustProxy))
		})
	}
}

func TestStatusLabel(t *testing.T) {
	tests := []struct {
		code int
		want string
	}{
		{200, "2xx"}, {299, "2xx"}, {404, "4xx"}, {500, "5xx"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusLabel(tt.code), "statusLabel(%d)", tt.code)
	}
}

func TestPathLabel(t *testing.T) {
	tests := map[string]string{
		"/api/jobs":     "/api/jobs",
		"/api/whatever": "/api/other",
		"/app.js":       "/static",
		"/metrics":      "/metrics",
	}
	for in, want := range tests {
		assert.Equal(t, want, pathLabel(in), "pathLabel(%q)", in)
	}
}

func TestHandleHealthz(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	handleHealthz(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ok")

	req = httptest.NewRequest(http.MethodPost, "/healthz", nil)
	rec = httptest.NewRecorder()
	handleHealthz(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
