package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/maxfell/recipe-scraper/internal/models"
)

const resultsSchema = `
CREATE TABLE IF NOT EXISTS job_results (
	job_id             TEXT PRIMARY KEY,
	product_count      INTEGER NOT NULL,
	variation_count    INTEGER NOT NULL,
	parent_artifact    TEXT NOT NULL,
	variation_artifact TEXT NOT NULL,
	completed_at       TIMESTAMPTZ NOT NULL,
	expires_after_ms   BIGINT NOT NULL
)`

// PostgresStore persists job results in a single upsert-per-result table.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := pool.Exec(ctx, resultsSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Store(ctx context.Context, result *models.JobResult) error {
	if result.JobID == "" {
		return fmt.Errorf("job id is required")
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO job_results
			(job_id, product_count, variation_count, parent_artifact,
			 variation_artifact, completed_at, expires_after_ms)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (job_id) DO UPDATE SET
			product_count      = EXCLUDED.product_count,
			variation_count    = EXCLUDED.variation_count,
			parent_artifact    = EXCLUDED.parent_artifact,
			variation_artifact = EXCLUDED.variation_artifact,
			completed_at       = EXCLUDED.completed_at,
			expires_after_ms   = EXCLUDED.expires_after_ms`,
		result.JobID, result.ProductCount, result.VariationCount,
		result.ParentArtifact, result.VariationFile, result.CompletedAt,
		result.ExpiresAfter.Milliseconds())
	if err != nil {
		return fmt.Errorf("store job result: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, jobID string) (*models.JobResult, error) {
	var (
		result    models.JobResult
		expiresMs int64
	)
	err := s.pool.QueryRow(ctx, `
		SELECT job_id, product_count, variation_count, parent_artifact,
		       variation_artifact, completed_at, expires_after_ms
		FROM job_results WHERE job_id = $1`, jobID).Scan(
		&result.JobID, &result.ProductCount, &result.VariationCount,
		&result.ParentArtifact, &result.VariationFile, &result.CompletedAt,
		&expiresMs)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job result: %w", err)
	}

	result.ExpiresAfter = time.Duration(expiresMs) * time.Millisecond
	return &result, nil
}

func (s *PostgresStore) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{}
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(product_count), 0),
		       COALESCE(SUM(variation_count), 0)
		FROM job_results`).Scan(
		&stats.Results, &stats.TotalProducts, &stats.TotalVariations)
	if err != nil {
		return nil, fmt.Errorf("query result stats: %w", err)
	}
	return stats, nil
}

func (s *PostgresStore) Clear(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, `TRUNCATE job_results`); err != nil {
		return fmt.Errorf("clear job results: %w", err)
	}
	return nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}
