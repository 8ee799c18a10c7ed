package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"server/internal/domain"
)

type influencerCreateRequest struct {
	Prompt       string `json:"prompt"`
	AspectRatio  string `json:"aspect_ratio"`
	ReferenceURL string `json:"reference_url"`
}

// InfluencersCreate starts an influencer pipeline. Supplying reference_url
// resumes from a previous run: the reference extraction stage is skipped.
func (a *App) InfluencersCreate(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	var req influencerCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	if req.Prompt == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "prompt required")
		return
	}
	payload := map[string]any{"prompt": req.Prompt}
	if req.AspectRatio != "" {
		payload["aspect_ratio"] = req.AspectRatio
	}
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		a.error(w, http.StatusInternalServerError, "internal", "failed to encode payload")
		return
	}
	p, err := a.Advancer.StartPipeline(r.Context(), userID, domain.PipelineKindInfluencer, payloadJSON, req.ReferenceURL)
	if err != nil {
		a.Logger.Error().Err(err).Msg("start influencer pipeline failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to start pipeline")
		return
	}
	a.json(w, http.StatusAccepted, map[string]any{
		"pipeline_id": p.ID,
		"kind":        p.Kind,
		"status":      p.Status,
		"created_at":  p.CreatedAt,
	})
}

// PipelineStatus returns the pipeline snapshot plus its stage jobs.
func (a *App) PipelineStatus(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	pipelineID := chi.URLParam(r, "pipeline_id")
	if pipelineID == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "pipeline_id required")
		return
	}
	p, err := a.Pipelines.GetByID(r.Context(), pipelineID)
	if err != nil || p.UserID != userID {
		a.error(w, http.StatusNotFound, "not_found", "pipeline not found")
		return
	}
	jobs, err := a.Jobs.ListByPipelineID(r.Context(), p.ID)
	if err != nil {
		a.Logger.Error().Err(err).Str("pipeline_id", p.ID).Msg("list pipeline jobs failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to fetch pipeline jobs")
		return
	}
	stages := make([]map[string]any, 0, len(jobs))
	for i := range jobs {
		stages = append(stages, a.jobView(r, &jobs[i]))
	}
	view := map[string]any{
		"pipeline_id": p.ID,
		"kind":        p.Kind,
		"status":      p.Status,
		"created_at":  p.CreatedAt,
		"updated_at":  p.UpdatedAt,
		"stages":      stages,
	}
	if p.ReferenceURL != "" {
		view["reference_url"] = p.ReferenceURL
	}
	if p.Status == domain.PipelineStatusFailed {
		view["failure_stage"] = p.FailureStage
	}
	a.json(w, http.StatusOK, view)
}
