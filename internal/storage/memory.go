package storage

import (
	"context"
	"fmt"
	"sync"

	"github.com/maxfell/recipe-scraper/internal/models"
)

// MemoryStore keeps job results in a process-local map. Results live until
// Clear or process exit; the expiry hint on a result is not enforced here.
type MemoryStore struct {
	mu      sync.RWMutex
	results map[string]*models.JobResult
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		results: make(map[string]*models.JobResult),
	}
}

func (s *MemoryStore) Store(_ context.Context, result *models.JobResult) error {
	if result.JobID == "" {
		return fmt.Errorf("job id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[result.JobID] = result
	return nil
}

func (s *MemoryStore) Get(_ context.Context, jobID string) (*models.JobResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result, exists := s.results[jobID]
	if !exists {
		return nil, ErrNotFound
	}
	return result, nil
}

func (s *MemoryStore) Stats(_ context.Context) (*Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &Stats{Results: len(s.results)}
	for _, r := range s.results {
		stats.TotalProducts += r.ProductCount
		stats.TotalVariations += r.VariationCount
	}
	return stats, nil
}

func (s *MemoryStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = make(map[string]*models.JobResult)
	return nil
}
