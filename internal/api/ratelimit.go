package api

import (
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/arkiv/jobwatch/internal/metrics"
)

// sweepThreshold is the number of tracked IPs above which allow drops every
// stale entry, not just the caller's.
const sweepThreshold = 1024

// rateLimiter enforces a per-IP limit within a sliding window.
type rateLimiter struct {
	mu        sync.Mutex
	hits      map[string][]time.Time
	limit     int
	window    time.Duration
	threshold int
	lastSweep time.Time
}

func newRateLimiter(limit int, window time.Duration) *rateLimiter {
	return &rateLimiter{
		hits:      make(map[string][]time.Time),
		limit:     limit,
		window:    window,
		threshold: sweepThreshold,
	}
}

func (r *rateLimiter) allow(ip string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	cutoff := now.Add(-r.window)
	if len(r.hits) >= r.threshold && now.Sub(r.lastSweep) >= r.window {
		r.sweep(cutoff)
		r.lastSweep = now
	}
	r.prune(ip, cutoff)
	if len(r.hits[ip]) >= r.limit {
		return false
	}
	r.hits[ip] = append(r.hits[ip], now)
	return true
}

// sweep prunes every key, releasing IPs with no hit inside the window.
func (r *rateLimiter) sweep(cutoff time.Time) {
	for ip := range r.hits {
		r.prune(ip, cutoff)
	}
}

// prune removes timestamps at or before cutoff and drops the key when none remain.
func (r *rateLimiter) prune(ip string, cutoff time.Time) {
	var valid []time.Time
	for _, t := range r.hits[ip] {
		if t.After(cutoff) {
			valid = append(valid, t)
		}
	}
	if len(valid) == 0 {
		delete(r.hits, ip)
	} else {
		r.hits[ip] = valid
	}
}

func (r *rateLimiter) size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.hits)
}

func limit(l *rateLimiter, trustProxy bool, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r, trustProxy)
		if !l.allow(ip) {
			metrics.RateLimitHits.Inc()
			slog.Warn("rate limit ip", "ip", ip)
			http.Error(w, `{"error":"rate limit exceeded"}`, http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientIP returns the peer address. The leftmost X-Forwarded-For entry is
// used only when trustProxy is set, since clients can send any value there.
func clientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		ip := r.Header.Get("X-Forwarded-For")
		if idx := strings.Index(ip, ","); idx >= 0 {
			ip = ip[:idx]
		}
		if ip = strings.TrimSpace(ip); ip != "" {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
