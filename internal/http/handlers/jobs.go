package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"server/internal/domain"
	"server/internal/i18n"
	"server/internal/middleware"
	"server/internal/orchestrator"
	"server/internal/providers/kling"
)

type videoCreateRequest struct {
	Prompt      string `json:"prompt"`
	AspectRatio string `json:"aspect_ratio"`
	Duration    int    `json:"duration_seconds"`
}

// VideosCreate queues a standalone video generation job and submits it to the
// provider before responding.
func (a *App) VideosCreate(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	var req videoCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	if req.Prompt == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "prompt required")
		return
	}
	payload := map[string]any{"type": string(domain.StageSingle), "prompt": req.Prompt}
	if req.AspectRatio != "" {
		payload["aspect_ratio"] = req.AspectRatio
	}
	if req.Duration > 0 {
		payload["duration_seconds"] = req.Duration
	}
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		a.error(w, http.StatusInternalServerError, "internal", "failed to encode payload")
		return
	}
	job := &domain.Job{
		ID:          uuid.NewString(),
		UserID:      userID,
		Stage:       domain.StageSingle,
		Status:      domain.JobStatusQueued,
		Payload:     payloadJSON,
		MaxAttempts: a.MaxPollAttempts,
		CreatedAt:   time.Now().UTC(),
	}
	if err := a.Jobs.Create(r.Context(), job); err != nil {
		a.Logger.Error().Err(err).Msg("create video job failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to create job")
		return
	}
	if err := a.Launcher.Launch(r.Context(), job); err != nil {
		var subErr *kling.SubmissionError
		if !errors.As(err, &subErr) {
			a.error(w, http.StatusBadGateway, "bad_gateway", "provider unreachable, job still queued")
			return
		}
		// Rejection already settled the job as failed; return the snapshot.
	}
	a.json(w, http.StatusAccepted, a.jobView(r, job))
}

// JobStatus returns the current snapshot of one job owned by the caller.
func (a *App) JobStatus(w http.ResponseWriter, r *http.Request) {
	job, ok := a.loadOwnedJob(w, r)
	if !ok {
		return
	}
	a.json(w, http.StatusOK, a.jobView(r, job))
}

// JobCancel raises the cancel flag picked up by the polling worker. It never
// changes job status.
func (a *App) JobCancel(w http.ResponseWriter, r *http.Request) {
	job, ok := a.loadOwnedJob(w, r)
	if !ok {
		return
	}
	if job.Terminal() {
		a.error(w, http.StatusConflict, "conflict", "job already settled")
		return
	}
	if err := a.Cancels.RequestCancel(r.Context(), job.ID); err != nil {
		a.Logger.Error().Err(err).Str("job_id", job.ID).Msg("cancel request failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to request cancel")
		return
	}
	a.json(w, http.StatusAccepted, map[string]string{"job_id": job.ID, "status": "cancel_requested"})
}

// JobAssets lists artifact records produced by a settled job.
func (a *App) JobAssets(w http.ResponseWriter, r *http.Request) {
	job, ok := a.loadOwnedJob(w, r)
	if !ok {
		return
	}
	assets, err := a.Assets.ListByJobID(r.Context(), job.ID)
	if err != nil {
		a.Logger.Error().Err(err).Str("job_id", job.ID).Msg("list assets failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to fetch assets")
		return
	}
	items := make([]map[string]any, 0, len(assets))
	for _, asset := range assets {
		items = append(items, map[string]any{
			"id":          asset.ID,
			"kind":        asset.Kind,
			"source_url":  asset.SourceURL,
			"storage_key": asset.StorageKey,
			"bytes":       asset.Bytes,
			"created_at":  asset.CreatedAt,
		})
	}
	a.json(w, http.StatusOK, map[string]any{"items": items})
}

// loadOwnedJob resolves {job_id} and enforces ownership. Jobs belonging to
// other users read as not found.
func (a *App) loadOwnedJob(w http.ResponseWriter, r *http.Request) (*domain.Job, bool) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return nil, false
	}
	jobID := chi.URLParam(r, "job_id")
	if jobID == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "job_id required")
		return nil, false
	}
	job, err := a.Jobs.GetByID(r.Context(), jobID)
	if err != nil || job.UserID != userID {
		a.error(w, http.StatusNotFound, "not_found", "job not found")
		return nil, false
	}
	return job, true
}

func (a *App) jobView(r *http.Request, job *domain.Job) map[string]any {
	view := map[string]any{
		"job_id":       job.ID,
		"stage":        job.Stage,
		"status":       job.Status,
		"attempts":     job.Attempts,
		"max_attempts": job.MaxAttempts,
		"created_at":   job.CreatedAt,
	}
	if job.PipelineID != "" {
		view["pipeline_id"] = job.PipelineID
	}
	if job.SubmittedAt != nil {
		view["submitted_at"] = job.SubmittedAt
	}
	if job.SettledAt != nil {
		view["settled_at"] = job.SettledAt
	}
	if job.ResultURL != "" {
		view["result_url"] = job.ResultURL
	}
	if job.Status == domain.JobStatusFailed {
		locale := middleware.LocaleFromContext(r.Context())
		view["failure_code"] = job.FailureCode
		view["failure_message"] = i18n.FailureMessage(locale, orchestrator.Category(job.FailureCode), job.FailureMessage)
	}
	return view
}
