package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/mendoc/paypal-listener/internal/api/middleware"
	"github.com/mendoc/paypal-listener/internal/jobs"
	"github.com/mendoc/paypal-listener/internal/logger"
)

// RunsHandler handles asynchronous check runs.
type RunsHandler struct {
	publisher jobs.Publisher
	store     jobs.JobStore
}

// NewRunsHandler creates a new runs handler.
func NewRunsHandler(publisher jobs.Publisher, store jobs.JobStore) *RunsHandler {
	return &RunsHandler{publisher: publisher, store: store}
}

// EnqueueRun handles POST /api/runs
func (h *RunsHandler) EnqueueRun(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)

	job := &jobs.CheckRunJob{Trigger: jobs.TriggerAPI}
	if err := h.publisher.PublishCheckRun(ctx, job); err != nil {
		log.Error().Err(err).Msg("Failed to enqueue check run")
		middleware.WriteError(w, http.StatusServiceUnavailable, "Failed to enqueue check run")
		return
	}

	log.Info().Str("job_id", job.JobID).Msg("Check run enqueued")
	middleware.WriteJSON(w, http.StatusAccepted, map[string]string{
		"job_id": job.JobID,
		"status": string(job.Status),
	})
}

// GetRun handles GET /api/runs/{id}
func (h *RunsHandler) GetRun(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	jobID := r.PathValue("id")

	job, err := h.store.GetJob(ctx, jobID)
	if errors.Is(err, jobs.ErrJobNotFound) {
		middleware.WriteError(w, http.StatusNotFound, "Run not found")
		return
	}
	if err != nil {
		log := logger.FromContext(ctx)
		log.Error().Err(err).Str("job_id", jobID).Msg("Failed to get run")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to get run")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, job)
}

// ListRuns handles GET /api/runs
func (h *RunsHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	query := r.URL.Query()
	filter := jobs.JobFilter{
		Trigger: query.Get("trigger"),
		Status:  jobs.JobStatus(query.Get("status")),
	}

	if limitStr := query.Get("limit"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil {
			filter.Limit = limit
		}
	}

	if offsetStr := query.Get("offset"); offsetStr != "" {
		if offset, err := strconv.Atoi(offsetStr); err == nil {
			filter.Offset = offset
		}
	}

	runs, err := h.store.ListJobs(ctx, filter)
	if err != nil {
		log := logger.FromContext(ctx)
		log.Error().Err(err).Msg("Failed to list runs")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list runs")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"runs":  runs,
		"count": len(runs),
	})
}
