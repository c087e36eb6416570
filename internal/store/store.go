// Package store owns the per-source job history and the divergence log.
package store

import (
	"sync"
	"time"

	"github.com/arkiv/jobwatch/internal/canon"
)

const (
	// MaxHistory is the number of jobs kept per source.
	MaxHistory = 5
	// RecentDifferences is how many divergence records Differences returns.
	RecentDifferences = 10
	// DefaultRetention caps the divergence log.
	DefaultRetention = 1000
)

// Store holds bounded job history per source and an append-only divergence
// log. Ingest is the only mutator; snapshots may be taken concurrently.
type Store struct {
	mu        sync.RWMutex
	order     []string
	history   map[string][]canon.Job
	diffs     []Difference
	retention int
	now       func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithRetention caps the divergence log at n records. n <= 0 disables the cap.
func WithRetention(n int) Option {
	return func(s *Store) { s.retention = n }
}

// WithClock overrides the time source used to stamp divergence records.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New returns an empty Store.
func New(opts ...Option) *Store {
	s := &Store{
		history:   make(map[string][]canon.Job),
		retention: DefaultRetention,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Ingest appends job to its source history, evicting the oldest entry past
// MaxHistory, and runs a comparison pass over all sources. It returns the
// divergence records appended by this call. A nil job is a no-op.
func (s *Store) Ingest(job *canon.Job) []Difference {
	if job == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	h, seen := s.history[job.Source]
	if !seen {
		s.order = append(s.order, job.Source)
	}
	h = append(h, *job)
	if len(h) > MaxHistory {
		h = append([]canon.Job(nil), h[len(h)-MaxHistory:]...)
	}
	s.history[job.Source] = h

	found := compare(s.order, s.history, s.now())
	s.diffs = append(s.diffs, found...)
	if s.retention > 0 && len(s.diffs) > s.retention {
		s.diffs = append([]Difference(nil), s.diffs[len(s.diffs)-s.retention:]...)
	}
	return found
}

// History returns a copy of every source's current history, oldest first.
func (s *Store) History() map[string][]canon.Job {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string][]canon.Job, len(s.history))
	for src, h := range s.history {
		out[src] = append([]canon.Job(nil), h...)
	}
	return out
}

// HistoryLen returns the number of jobs held for source.
func (s *Store) HistoryLen(source string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.history[source])
}

// Sources returns source tags in first-seen order.
func (s *Store) Sources() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.order...)
}

// Differences returns up to RecentDifferences most recent divergence records,
// oldest first.
func (s *Store) Differences() []Difference {
	s.mu.RLock()
	defer s.mu.RUnlock()
	start := len(s.diffs) - RecentDifferences
	if start < 0 {
		start = 0
	}
	out := make([]Difference, 0, len(s.diffs)-start)
	for _, d := range s.diffs[start:] {
		out = append(out, d.clone())
	}
	return out
}

// DifferenceCount returns the number of records currently retained.
func (s *Store) DifferenceCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.diffs)
}
