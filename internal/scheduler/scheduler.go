// Package scheduler owns the job queue and lifecycle: it resolves an adapter
// per job, drives discovery, fans extraction out through the worker pool,
// normalizes each raw product, and hands the result to the serialization and
// storage collaborators. Jobs run one at a time; parallelism lives inside a
// job.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/maxfell/recipe-scraper/internal/adapter"
	"github.com/maxfell/recipe-scraper/internal/models"
	"github.com/maxfell/recipe-scraper/internal/normalize"
	"github.com/maxfell/recipe-scraper/internal/pool"
	"github.com/maxfell/recipe-scraper/internal/serialize"
	"github.com/maxfell/recipe-scraper/internal/storage"
)

// ErrJobNotFound is returned by Status/Cancel for unknown job IDs.
var ErrJobNotFound = fmt.Errorf("job not found")

// Resolver yields the adapter a job runs with.
type Resolver interface {
	Resolve(recipeName, siteURL string) (adapter.SiteAdapter, error)
}

// Serializer is the artifact-generation collaborator, invoked once per job
// after extraction completes.
type Serializer interface {
	GenerateOutputs(jobID string, products []*models.NormalizedProduct) (*serialize.Outputs, error)
}

// Options tune one scheduler instance.
type Options struct {
	Normalize normalize.Options
	// ResultTTL is the expiry hint stamped on each JobResult.
	ResultTTL time.Duration
}

const defaultResultTTL = 24 * time.Hour

// Scheduler is an explicitly constructed engine instance; multiple
// independent schedulers can coexist in one process.
type Scheduler struct {
	resolver   Resolver
	serializer Serializer
	store      storage.ResultStore
	logger     *slog.Logger
	metrics    *Metrics
	opts       Options

	mu    sync.RWMutex
	jobs  map[string]*models.Job
	queue *jobQueue

	perf perfAggregate
}

// New wires a scheduler. metrics may be nil when no registry is exported.
func New(resolver Resolver, serializer Serializer, store storage.ResultStore, metrics *Metrics, opts Options, logger *slog.Logger) *Scheduler {
	if opts.ResultTTL <= 0 {
		opts.ResultTTL = defaultResultTTL
	}
	return &Scheduler{
		resolver:   resolver,
		serializer: serializer,
		store:      store,
		logger:     logger.With("component", "scheduler"),
		metrics:    metrics,
		opts:       opts,
		jobs:       make(map[string]*models.Job),
		queue:      newJobQueue(),
	}
}

// Submit validates the request, creates a pending job, and enqueues it.
// Validation failures are synchronous; no job is created for them.
func (s *Scheduler) Submit(req *models.SubmitRequest) (string, error) {
	if req.SiteURL == "" {
		return "", models.NewScrapingError(models.ErrValidation, "", "site_url is required")
	}
	if req.Recipe == "" {
		return "", models.NewScrapingError(models.ErrValidation, "", "recipe is required")
	}

	job := &models.Job{
		ID:        uuid.New().String(),
		Status:    models.JobPending,
		CreatedAt: time.Now(),
		Errors:    []*models.ScrapingError{},
		Metadata: models.JobMetadata{
			SiteURL: req.SiteURL,
			Recipe:  req.Recipe,
			Options: req.Options,
		},
	}

	s.mu.Lock()
	s.jobs[job.ID] = job
	s.mu.Unlock()

	if err := s.queue.Push(job.ID); err != nil {
		s.mu.Lock()
		delete(s.jobs, job.ID)
		s.mu.Unlock()
		return "", err
	}
	s.metrics.setQueueDepth(s.queue.Size())

	s.logger.Info("job submitted", "job_id", job.ID,
		"site", req.SiteURL, "recipe", req.Recipe)
	return job.ID, nil
}

// Status returns a snapshot of one job.
func (s *Scheduler) Status(jobID string) (*models.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, exists := s.jobs[jobID]
	if !exists {
		return nil, ErrJobNotFound
	}
	return cloneJob(job), nil
}

// List returns snapshots of every known job, newest first.
func (s *Scheduler) List() []*models.Job {
	s.mu.RLock()
	jobs := make([]*models.Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		jobs = append(jobs, cloneJob(job))
	}
	s.mu.RUnlock()

	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
	})
	return jobs
}

// Cancel is best-effort: a pending job is removed from the queue and never
// runs; a running job only has its status flipped to failed, in-flight
// extraction workers are not interrupted. Terminal jobs report false.
func (s *Scheduler) Cancel(jobID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, exists := s.jobs[jobID]
	if !exists {
		return false, ErrJobNotFound
	}
	if job.Status.Terminal() {
		return false, nil
	}

	if job.Status == models.JobPending {
		s.queue.Remove(jobID)
	}
	s.failLocked(job, models.NewScrapingError(models.ErrUnknown, "", "job cancelled"))
	s.metrics.setQueueDepth(s.queue.Size())

	s.logger.Info("job cancelled", "job_id", jobID)
	return true, nil
}

// Perf returns the process-lifetime rolling aggregate.
func (s *Scheduler) Perf() PerfSnapshot {
	return s.perf.Snapshot()
}

// QueueDepth reports how many jobs are waiting to run.
func (s *Scheduler) QueueDepth() int {
	return s.queue.Size()
}

// Run processes jobs one at a time until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	s.logger.Info("scheduler started")
	for {
		jobID, err := s.queue.Pop(ctx)
		if err != nil {
			s.logger.Info("scheduler stopped", "reason", err)
			return
		}
		s.metrics.setQueueDepth(s.queue.Size())
		s.processJob(ctx, jobID)
	}
}

// Close rejects further submissions and unblocks the Run loop.
func (s *Scheduler) Close() {
	s.queue.Close()
}

func (s *Scheduler) processJob(ctx context.Context, jobID string) {
	s.mu.Lock()
	job, exists := s.jobs[jobID]
	if !exists || job.Status != models.JobPending {
		// Cancelled between dequeue and start.
		s.mu.Unlock()
		return
	}
	now := time.Now()
	job.Status = models.JobRunning
	job.StartedAt = &now
	meta := job.Metadata
	s.mu.Unlock()

	started := time.Now()
	logger := s.logger.With("job_id", jobID, "site", meta.SiteURL, "recipe", meta.Recipe)
	logger.Info("job started")

	sa, err := s.resolver.Resolve(meta.Recipe, meta.SiteURL)
	if err != nil {
		s.finishJob(jobID, models.WrapError(models.ErrRecipe, meta.SiteURL, err), started)
		return
	}
	defer sa.Cleanup()

	urls := s.discoverURLs(ctx, sa, meta.Options, logger)
	if len(urls) == 0 {
		s.finishJob(jobID, models.NewScrapingError(models.ErrProductNotFound, meta.SiteURL,
			"no products discovered"), started)
		return
	}

	s.mu.Lock()
	job.TotalProducts = len(urls)
	s.mu.Unlock()

	concurrency, delay := effectiveLimits(sa, meta.Options, len(urls))
	logger.Info("discovery finished",
		"urls", len(urls), "concurrency", concurrency, "rate_limit", delay)

	products := s.extractAll(ctx, jobID, sa, urls, concurrency, delay)

	outputs, err := s.serializer.GenerateOutputs(jobID, products)
	if err != nil {
		s.finishJob(jobID, models.WrapError(models.ErrStorage, meta.SiteURL, err), started)
		return
	}

	result := &models.JobResult{
		JobID:          jobID,
		ProductCount:   len(products),
		VariationCount: outputs.VariationCount,
		ParentArtifact: outputs.ParentArtifact,
		VariationFile:  outputs.VariationArtifact,
		CompletedAt:    time.Now(),
		ExpiresAfter:   s.opts.ResultTTL,
	}
	if err := s.store.Store(ctx, result); err != nil {
		// Artifacts exist on disk; a store failure is recorded but does not
		// fail the job.
		logger.Error("failed to store job result", "error", err)
		s.appendError(jobID, models.WrapError(models.ErrStorage, meta.SiteURL, err))
	}

	s.finishJob(jobID, nil, started)
	s.metrics.addProducts(len(products))
	logger.Info("job completed",
		"products", len(products), "variations", outputs.VariationCount,
		"elapsed", time.Since(started))
}

// discoverURLs drains the adapter's discovery stream, honoring the optional
// category filter and product cap.
func (s *Scheduler) discoverURLs(ctx context.Context, sa adapter.SiteAdapter, opts *models.JobOptions, logger *slog.Logger) []string {
	stream := sa.Discover(ctx)
	defer stream.Close()

	maxProducts := 0
	var categories []string
	if opts != nil {
		maxProducts = opts.MaxProducts
		categories = opts.Categories
	}

	var urls []string
	for {
		u, ok := stream.Next(ctx)
		if !ok {
			break
		}
		if !matchesCategories(u, categories) {
			continue
		}
		urls = append(urls, u)
		if maxProducts > 0 && len(urls) >= maxProducts {
			break
		}
	}
	if err := stream.Err(); err != nil {
		logger.Warn("discovery ended early", "error", err)
	}
	return urls
}

// extractAll processes URLs in fixed-size batches: full parallelism within a
// batch, the rate-limit delay between batches. Failed slots become job errors
// and are excluded from the output set.
func (s *Scheduler) extractAll(ctx context.Context, jobID string, sa adapter.SiteAdapter, urls []string, concurrency int, delay time.Duration) []*models.NormalizedProduct {
	worker := func(ctx context.Context, productURL string, _ int) (*models.NormalizedProduct, error) {
		raw, err := sa.Extract(ctx, productURL)
		if err != nil {
			return nil, err
		}
		if err := sa.Validate(raw); err != nil {
			return nil, err
		}
		return normalize.Product(raw, productURL, s.opts.Normalize), nil
	}

	var products []*models.NormalizedProduct
	for start := 0; start < len(urls); start += concurrency {
		if start > 0 {
			select {
			case <-ctx.Done():
				return products
			case <-time.After(delay):
			}
		}

		end := start + concurrency
		if end > len(urls) {
			end = len(urls)
		}
		batch := urls[start:end]

		results := pool.Map(ctx, batch, worker, pool.Options{Concurrency: len(batch)})
		for i, res := range results {
			if res.OK {
				products = append(products, res.Value)
				s.incrementProcessed(jobID)
				continue
			}
			serr := models.WrapError(models.ErrProductNotFound, batch[i], res.Err)
			s.appendError(jobID, serr)
			s.metrics.extractionError(string(models.ErrProductNotFound))
		}
	}
	return products
}

// effectiveLimits computes per-job concurrency and inter-batch delay from the
// recipe with request-option overrides, clamped to the discovered count and
// the rate-limit floor.
func effectiveLimits(sa adapter.SiteAdapter, opts *models.JobOptions, discovered int) (int, time.Duration) {
	r := sa.Recipe()

	concurrency := r.MaxConcurrent()
	rateLimitMs := r.RateLimitMs()
	if opts != nil {
		if opts.MaxConcurrent > 0 {
			concurrency = opts.MaxConcurrent
		}
		if opts.RateLimitMs > 0 {
			rateLimitMs = opts.RateLimitMs
		}
	}
	if concurrency > discovered {
		concurrency = discovered
	}
	if rateLimitMs < 10 {
		rateLimitMs = 10
	}
	return concurrency, time.Duration(rateLimitMs) * time.Millisecond
}

func matchesCategories(productURL string, categories []string) bool {
	if len(categories) == 0 {
		return true
	}
	lower := strings.ToLower(productURL)
	for _, c := range categories {
		if c != "" && strings.Contains(lower, strings.ToLower(c)) {
			return true
		}
	}
	return false
}

func (s *Scheduler) incrementProcessed(jobID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if job, exists := s.jobs[jobID]; exists {
		job.ProcessedProducts++
	}
}

func (s *Scheduler) appendError(jobID string, serr *models.ScrapingError) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if job, exists := s.jobs[jobID]; exists {
		job.Errors = append(job.Errors, serr)
	}
}

// finishJob moves a job to its terminal state unless cancellation already
// did. A nil fatal error means completed.
func (s *Scheduler) finishJob(jobID string, fatal *models.ScrapingError, started time.Time) {
	s.mu.Lock()
	job, exists := s.jobs[jobID]
	if !exists || job.Status.Terminal() {
		s.mu.Unlock()
		return
	}

	if fatal != nil {
		s.failLocked(job, fatal)
	} else {
		now := time.Now()
		job.Status = models.JobCompleted
		job.CompletedAt = &now
	}
	status := job.Status
	processed := job.ProcessedProducts
	s.mu.Unlock()

	elapsed := time.Since(started)
	s.perf.record(processed, elapsed)
	s.metrics.jobFinished(string(status), elapsed)

	if fatal != nil {
		s.logger.Error("job failed", "job_id", jobID, "error", fatal)
	}
}

// failLocked marks a job failed. Caller holds s.mu.
func (s *Scheduler) failLocked(job *models.Job, serr *models.ScrapingError) {
	now := time.Now()
	job.Status = models.JobFailed
	job.CompletedAt = &now
	job.Errors = append(job.Errors, serr)
}

func cloneJob(job *models.Job) *models.Job {
	clone := *job
	if job.StartedAt != nil {
		t := *job.StartedAt
		clone.StartedAt = &t
	}
	if job.CompletedAt != nil {
		t := *job.CompletedAt
		clone.CompletedAt = &t
	}
	clone.Errors = make([]*models.ScrapingError, len(job.Errors))
	copy(clone.Errors, job.Errors)
	return &clone
}
