// Package postgres upserts exported datasets into Postgres tables keyed the
// same way as the CSV files, so re-running a study overwrites rows in place.
package postgres

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/basin-rainfall-etl/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema.sql
var schema string

const batchSize = 1000

const (
	upsertDaily = `INSERT INTO rainfall_daily (date, taluka, rainfall_mm, samples, generated_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (date, taluka) DO UPDATE
SET rainfall_mm = EXCLUDED.rainfall_mm, samples = EXCLUDED.samples, generated_at = EXCLUDED.generated_at`

	upsertMonthly = `INSERT INTO rainfall_monthly (year, month, taluka, rainfall_mm, samples, generated_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (year, month, taluka) DO UPDATE
SET rainfall_mm = EXCLUDED.rainfall_mm, samples = EXCLUDED.samples, generated_at = EXCLUDED.generated_at`
)

// Store implements pipeline.DatasetLoader on a pgx pool.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// Connect opens a pool and verifies connectivity.
func Connect(ctx context.Context, dsn string, logger *slog.Logger) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Store{pool: pool, logger: logger}, nil
}

// Migrate creates the output tables when they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

func (s *Store) Name() string { return "postgres" }

// CheckReadiness pings the pool.
func (s *Store) CheckReadiness(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// LoadDataset upserts every row inside one transaction.
func (s *Store) LoadDataset(ctx context.Context, ds domain.Dataset) error {
	query, err := upsertFor(ds.Granularity)
	if err != nil {
		return err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	batch := &pgx.Batch{}
	for _, obs := range ds.Observations {
		batch.Queue(query, rowArgs(obs, ds.GeneratedAt)...)
		if batch.Len() == batchSize {
			if err := tx.SendBatch(ctx, batch).Close(); err != nil {
				return fmt.Errorf("upsert %s: %w", ds.Granularity, err)
			}
			batch = &pgx.Batch{}
		}
	}
	if batch.Len() > 0 {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("upsert %s: %w", ds.Granularity, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	s.logger.Info("dataset upserted", "granularity", ds.Granularity, "rows", ds.Len())
	return nil
}

func (s *Store) Close() {
	s.pool.Close()
}

func upsertFor(g domain.Granularity) (string, error) {
	switch g {
	case domain.Daily:
		return upsertDaily, nil
	case domain.Monthly:
		return upsertMonthly, nil
	default:
		return "", fmt.Errorf("unsupported granularity %q", g)
	}
}

// rowArgs lays out the statement parameters for one observation. Values are
// rounded the same way as the CSV export; missing values become NULL.
func rowArgs(obs domain.Observation, generatedAt time.Time) []any {
	var value *float64
	if obs.Value != nil {
		value = domain.Float(domain.Round1(*obs.Value))
	}
	if obs.Period.Granularity == domain.Monthly {
		return []any{obs.Period.Start.Year(), int(obs.Period.Start.Month()), obs.Region, value, obs.Samples, generatedAt}
	}
	return []any{obs.Period.Start, obs.Region, value, obs.Samples, generatedAt}
}
