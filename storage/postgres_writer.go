package storage

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"jobs-scraper/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// pgBatcher is the part of *pgxpool.Pool the writer needs.
type pgBatcher interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS job_listings (
	id BIGSERIAL PRIMARY KEY,
	title TEXT NOT NULL,
	organization TEXT,
	location TEXT,
	link TEXT UNIQUE,
	description TEXT NOT NULL,
	run_date DATE NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_job_listings_run_date ON job_listings(run_date);
CREATE INDEX IF NOT EXISTS idx_job_listings_organization ON job_listings(organization);
`

const insertSQL = `
INSERT INTO job_listings (title, organization, location, link, description, run_date)
VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6)
ON CONFLICT (link) DO NOTHING;
`

// PostgresWriter stores listings in the job_listings table. Links already
// stored by an earlier run are left untouched.
type PostgresWriter struct {
	db    pgBatcher
	close func()
	date  time.Time
}

func NewPostgresWriter(ctx context.Context, dsn string, date time.Time) (*PostgresWriter, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to connect postgres: %w", err)
	}

	return &PostgresWriter{db: pool, close: pool.Close, date: date}, nil
}

func (w *PostgresWriter) Name() string { return "postgres" }

func (w *PostgresWriter) Close() {
	if w.close != nil {
		w.close()
	}
}

func (w *PostgresWriter) EnsureSchema(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	if _, err := w.db.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to ensure schema: %w", err)
	}
	return nil
}

func (w *PostgresWriter) Write(ctx context.Context, listings []models.Listing) error {
	if len(listings) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	batch := &pgx.Batch{}
	for _, l := range listings {
		batch.Queue(
			insertSQL,
			strings.TrimSpace(l.Title),
			strings.TrimSpace(l.Organization),
			strings.TrimSpace(l.Location),
			strings.TrimSpace(l.Link),
			l.Description,
			w.date.UTC(),
		)
	}

	results := w.db.SendBatch(ctx, batch)
	defer results.Close()

	var inserted int64
	for i := 0; i < batch.Len(); i++ {
		tag, err := results.Exec()
		if err != nil {
			return fmt.Errorf("batch insert failed at row %d: %w", i, err)
		}
		inserted += tag.RowsAffected()
	}

	slog.Info("saved listings", "sink", w.Name(), "inserted", inserted, "already_stored", int64(batch.Len())-inserted)
	return nil
}
