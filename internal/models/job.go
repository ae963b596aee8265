package models

import (
	"time"
)

type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

// Terminal reports whether the status admits no further transitions.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}

// SubmitRequest is the job submission payload. SiteURL and Recipe are
// mandatory; Options tune a single run without touching the recipe.
type SubmitRequest struct {
	SiteURL string      `json:"site_url"`
	Recipe  string      `json:"recipe"`
	Options *JobOptions `json:"options,omitempty"`
}

// JobOptions override recipe behavior for one job. TimeoutMs is accepted for
// wire compatibility but not enforced against extraction duration.
type JobOptions struct {
	MaxProducts   int      `json:"max_products,omitempty"`
	Categories    []string `json:"categories,omitempty"`
	RateLimitMs   int      `json:"rate_limit_ms,omitempty"`
	MaxConcurrent int      `json:"max_concurrent,omitempty"`
	TimeoutMs     int      `json:"timeout_ms,omitempty"`
}

// JobMetadata records what a job was asked to do.
type JobMetadata struct {
	SiteURL string      `json:"site_url"`
	Recipe  string      `json:"recipe"`
	Options *JobOptions `json:"options,omitempty"`
}

// Job is the scheduler-owned run state. Mutated only by the scheduler's
// processing loop; status transitions are monotonic and terminal states are
// final. Errors accumulates every non-fatal failure in encounter order.
type Job struct {
	ID                string           `json:"id"`
	Status            JobStatus        `json:"status"`
	CreatedAt         time.Time        `json:"created_at"`
	StartedAt         *time.Time       `json:"started_at,omitempty"`
	CompletedAt       *time.Time       `json:"completed_at,omitempty"`
	TotalProducts     int              `json:"total_products"`
	ProcessedProducts int              `json:"processed_products"`
	Errors            []*ScrapingError `json:"errors"`
	Metadata          JobMetadata      `json:"metadata"`
}

// JobResult is the terminal snapshot handed to the storage collaborator once,
// at completion. Artifacts are opaque to the engine.
type JobResult struct {
	JobID          string        `json:"job_id"`
	ProductCount   int           `json:"product_count"`
	VariationCount int           `json:"variation_count"`
	ParentArtifact string        `json:"parent_artifact"`
	VariationFile  string        `json:"variation_artifact"`
	CompletedAt    time.Time     `json:"completed_at"`
	ExpiresAfter   time.Duration `json:"expires_after"`
}
