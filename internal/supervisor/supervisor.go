// Package supervisor runs one connector per feed and a single aggregator that
// owns all writes to the Store.
package supervisor

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/arkiv/jobwatch/internal/canon"
	"github.com/arkiv/jobwatch/internal/feed"
	"github.com/arkiv/jobwatch/internal/metrics"
	"github.com/arkiv/jobwatch/internal/sink"
	"github.com/arkiv/jobwatch/internal/store"
)

const (
	messageBuffer = 256
	sinkBuffer    = 1024
)

// Supervisor wires feeds through the canonicalizer into a Store.
type Supervisor struct {
	sources  []feed.Source
	store    *store.Store
	registry *canon.Registry
	recorder sink.Recorder
	log      *slog.Logger
	feedOpts []feed.Option
}

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithRecorder mirrors every divergence record to rec.
func WithRecorder(rec sink.Recorder) Option {
	return func(s *Supervisor) { s.recorder = rec }
}

// WithFeedOptions passes opts to every connector.
func WithFeedOptions(opts ...feed.Option) Option {
	return func(s *Supervisor) { s.feedOpts = append(s.feedOpts, opts...) }
}

// New returns a Supervisor for sources.
func New(sources []feed.Source, st *store.Store, reg *canon.Registry, log *slog.Logger, opts ...Option) *Supervisor {
	s := &Supervisor{
		sources:  sources,
		store:    st,
		registry: reg,
		log:      log,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run starts every connector and the aggregator and blocks until ctx is done
// and all of them have returned.
func (s *Supervisor) Run(ctx context.Context) error {
	msgs := make(chan feed.Message, messageBuffer)
	g, gctx := errgroup.WithContext(ctx)

	for _, src := range s.sources {
		c := feed.New(src, msgs, s.log, s.feedOpts...)
		g.Go(func() error {
			c.Run(gctx)
			return nil
		})
	}

	var diffs chan store.Difference
	if s.recorder != nil {
		diffs = make(chan store.Difference, sinkBuffer)
		g.Go(func() error {
			sink.Drain(gctx, s.recorder, diffs, s.log)
			return nil
		})
	}

	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case m := <-msgs:
				s.ingest(m, diffs)
			}
		}
	})

	s.log.Info("supervisor started", "sources", len(s.sources))
	return g.Wait()
}

// ingest is only called from the aggregator goroutine.
func (s *Supervisor) ingest(m feed.Message, diffs chan<- store.Difference) {
	job := s.registry.Normalize(m.SourceType, m.Payload)
	if job == nil {
		metrics.Normalized.WithLabelValues(m.SourceType, "dropped").Inc()
		return
	}
	metrics.Normalized.WithLabelValues(m.SourceType, "ok").Inc()

	found := s.store.Ingest(job)
	metrics.HistoryLength.WithLabelValues(job.Source).Set(float64(s.store.HistoryLen(job.Source)))

	for _, d := range found {
		metrics.Divergences.WithLabelValues(d.Source1, d.Source2).Inc()
		s.log.Debug("divergence", "source_1", d.Source1, "source_2", d.Source2, "difference", d.Difference)
		if diffs == nil {
			continue
		}
		select {
		case diffs <- d:
		default:
			s.log.Warn("divergence sink backlog full, dropping record", "id", d.ID)
		}
	}
}
