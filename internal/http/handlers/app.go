package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"server/internal/domain"
	"server/internal/infra"
	"server/internal/middleware"
	"server/internal/orchestrator"
)

// CancelRequester raises a cross-process cancel flag for a job.
type CancelRequester interface {
	RequestCancel(ctx context.Context, jobID string) error
}

// App carries the dependencies shared by all HTTP handlers.
type App struct {
	Jobs      domain.JobRepository
	Pipelines domain.PipelineRepository
	Assets    domain.AssetRepository

	Launcher *orchestrator.Launcher
	Advancer *orchestrator.Advancer
	Settler  *orchestrator.Settler
	Cancels  CancelRequester

	CallbackToken   string
	MaxPollAttempts int
	Logger          infra.Logger
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, status int, code, message string) {
	a.json(w, status, map[string]any{
		"error": map[string]string{"code": code, "message": message},
	})
}

func (a *App) currentUserID(r *http.Request) string {
	return middleware.UserIDFromContext(r.Context())
}
