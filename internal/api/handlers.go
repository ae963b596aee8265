// Package api exposes the scheduler over HTTP: job submission, status,
// cancellation, results, and aggregate stats.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/maxfell/recipe-scraper/internal/models"
	"github.com/maxfell/recipe-scraper/internal/scheduler"
	"github.com/maxfell/recipe-scraper/internal/storage"
)

type Handlers struct {
	scheduler *scheduler.Scheduler
	store     storage.ResultStore
	logger    *slog.Logger
}

func NewHandlers(sched *scheduler.Scheduler, store storage.ResultStore, logger *slog.Logger) *Handlers {
	return &Handlers{
		scheduler: sched,
		store:     store,
		logger:    logger.With("component", "api"),
	}
}

// SubmitJobResponse is the job creation response.
type SubmitJobResponse struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
}

// CancelJobResponse reports the best-effort cancellation outcome.
type CancelJobResponse struct {
	Cancelled bool `json:"cancelled"`
}

// StatsResponse combines the scheduler aggregate with storage stats.
type StatsResponse struct {
	Scheduler  scheduler.PerfSnapshot `json:"scheduler"`
	QueueDepth int                    `json:"queue_depth"`
	Storage    *storage.Stats         `json:"storage,omitempty"`
}

// SubmitJob handles new scraping job submissions.
func (h *Handlers) SubmitJob(w http.ResponseWriter, r *http.Request) {
	var req models.SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	jobID, err := h.scheduler.Submit(&req)
	if err != nil {
		var serr *models.ScrapingError
		if errors.As(err, &serr) && serr.Code == models.ErrValidation {
			h.respondError(w, http.StatusBadRequest, serr.Message)
			return
		}
		h.logger.Error("failed to submit job", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to submit job")
		return
	}

	h.respondJSON(w, http.StatusCreated, SubmitJobResponse{
		JobID:  jobID,
		Status: string(models.JobPending),
	})
}

// GetJob handles job status retrieval.
func (h *Handlers) GetJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")

	job, err := h.scheduler.Status(jobID)
	if err != nil {
		h.respondError(w, http.StatusNotFound, "job not found")
		return
	}
	h.respondJSON(w, http.StatusOK, job)
}

// ListJobs handles listing all known jobs, newest first.
func (h *Handlers) ListJobs(w http.ResponseWriter, _ *http.Request) {
	h.respondJSON(w, http.StatusOK, h.scheduler.List())
}

// CancelJob handles best-effort cancellation.
func (h *Handlers) CancelJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")

	cancelled, err := h.scheduler.Cancel(jobID)
	if err != nil {
		h.respondError(w, http.StatusNotFound, "job not found")
		return
	}
	h.respondJSON(w, http.StatusOK, CancelJobResponse{Cancelled: cancelled})
}

// GetJobResult returns the stored terminal result of a completed job.
func (h *Handlers) GetJobResult(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")

	result, err := h.store.Get(r.Context(), jobID)
	if errors.Is(err, storage.ErrNotFound) {
		h.respondError(w, http.StatusNotFound, "job result not found")
		return
	}
	if err != nil {
		h.logger.Error("failed to load job result", "job_id", jobID, "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to load job result")
		return
	}
	h.respondJSON(w, http.StatusOK, result)
}

// GetStats handles statistics retrieval.
func (h *Handlers) GetStats(w http.ResponseWriter, r *http.Request) {
	resp := StatsResponse{
		Scheduler:  h.scheduler.Perf(),
		QueueDepth: h.scheduler.QueueDepth(),
	}

	stats, err := h.store.Stats(r.Context())
	if err != nil {
		h.logger.Error("failed to load storage stats", "error", err)
	} else {
		resp.Storage = stats
	}
	h.respondJSON(w, http.StatusOK, resp)
}

// Health is the liveness endpoint.
func (h *Handlers) Health(w http.ResponseWriter, _ *http.Request) {
	h.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handlers) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handlers) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}
