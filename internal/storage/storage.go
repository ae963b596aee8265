// Package storage persists terminal job results. The engine treats artifacts
// and result lifetime as this collaborator's concern; three implementations
// cover in-process, Redis, and Postgres deployments.
package storage

import (
	"context"
	"errors"

	"github.com/maxfell/recipe-scraper/internal/models"
)

var ErrNotFound = errors.New("job result not found")

// Stats summarizes what a store currently holds.
type Stats struct {
	Results         int `json:"results"`
	TotalProducts   int `json:"total_products"`
	TotalVariations int `json:"total_variations"`
}

// ResultStore is the storage collaborator contract.
type ResultStore interface {
	Store(ctx context.Context, result *models.JobResult) error
	Get(ctx context.Context, jobID string) (*models.JobResult, error)
	Stats(ctx context.Context) (*Stats, error)
	Clear(ctx context.Context) error
}
