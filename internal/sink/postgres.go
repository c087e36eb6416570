package sink

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/arkiv/jobwatch/internal/store"
)

// Postgres writes to divergence_records.
// ON CONFLICT (id) DO NOTHING keeps retried writes idempotent.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres connects, pings and creates the table if needed.
func NewPostgres(ctx context.Context, connStr string) (*Postgres, error) {
	cfg, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	_, err = pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS divergence_records (
			id UUID PRIMARY KEY,
			source_1 TEXT NOT NULL,
			source_2 TEXT NOT NULL,
			difference TEXT[] NOT NULL,
			observed_at TIMESTAMPTZ NOT NULL,
			created_at TIMESTAMPTZ DEFAULT NOW()
		)
	`)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("create table: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

// Record inserts d, ignoring a row that already exists with the same id.
func (p *Postgres) Record(ctx context.Context, d store.Difference) error {
	_, err := p.pool.Exec(ctx,
		`INSERT INTO divergence_records (id, source_1, source_2, difference, observed_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (id) DO NOTHING`,
		d.ID.String(), d.Source1, d.Source2, d.Difference, d.Time(),
	)
	return err
}

// Close releases the pool.
func (p *Postgres) Close() {
	p.pool.Close()
}
