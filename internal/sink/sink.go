// Package sink mirrors divergence records to an external store. It is write
// only; nothing is read back on startup.
package sink

import (
	"context"
	"log/slog"
	"time"

	"github.com/arkiv/jobwatch/internal/metrics"
	"github.com/arkiv/jobwatch/internal/store"
)

const maxAttempts = 3

// Recorder writes divergence records to a backend (e.g. Postgres).
type Recorder interface {
	Record(ctx context.Context, d store.Difference) error
}

// Drain writes every record from in until in is closed or ctx is done.
// Failed writes are retried and then logged and dropped.
func Drain(ctx context.Context, rec Recorder, in <-chan store.Difference, log *slog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-in:
			if !ok {
				return
			}
			start := time.Now()
			err := recordWithRetry(ctx, rec, d, time.Second)
			status := "ok"
			if err != nil {
				status = "error"
				log.Warn("record divergence failed", "id", d.ID, "err", err)
			}
			metrics.SinkWrites.WithLabelValues(status).Inc()
			metrics.SinkDuration.WithLabelValues(status).Observe(time.Since(start).Seconds())
		}
	}
}

// recordWithRetry tries up to maxAttempts times, waiting step, 2*step, ... between attempts.
// The last failure is returned without waiting.
func recordWithRetry(ctx context.Context, rec Recorder, d store.Difference, step time.Duration) error {
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		err := rec.Record(ctx, d)
		if err == nil {
			return nil
		}
		lastErr = err
		if attempt == maxAttempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt+1) * step):
		}
	}
	return lastErr
}
