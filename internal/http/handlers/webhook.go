package handlers

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"

	"server/internal/domain"
	"server/internal/orchestrator"
	"server/internal/providers/kling"
)

type klingCallbackRequest struct {
	TaskID     string   `json:"task_id"`
	State      string   `json:"state"`
	SubState   string   `json:"sub_state"`
	ResultURLs []string `json:"result_urls"`
	FailCode   string   `json:"fail_code"`
	FailMsg    string   `json:"fail_msg"`
}

// KlingCallback ingests provider push notifications. It settles through the
// same idempotent path as the polling channel, so a duplicate or late push is
// a 200 no-op.
func (a *App) KlingCallback(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if a.CallbackToken == "" || subtle.ConstantTimeCompare([]byte(token), []byte(a.CallbackToken)) != 1 {
		a.error(w, http.StatusUnauthorized, "unauthorized", "invalid callback token")
		return
	}
	var req klingCallbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	if req.TaskID == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "task_id required")
		return
	}
	job, err := a.Jobs.GetByProviderTaskID(r.Context(), req.TaskID)
	if err != nil {
		a.error(w, http.StatusNotFound, "not_found", "unknown task")
		return
	}

	switch req.State {
	case kling.StateSuccess:
		if len(req.ResultURLs) == 0 {
			a.settle(w, r, job, orchestrator.Failure("", "provider reported success without a result"))
			return
		}
		a.settle(w, r, job, orchestrator.Success(req.ResultURLs[0]))
	case kling.StateFail:
		a.settle(w, r, job, orchestrator.Failure(req.FailCode, req.FailMsg))
	default:
		// Progress push. Bump the status but leave settlement fields alone.
		if err := a.Jobs.MarkProcessing(r.Context(), job.ID); err != nil {
			a.Logger.Error().Err(err).Str("job_id", job.ID).Msg("callback: mark processing failed")
		}
		a.json(w, http.StatusOK, map[string]string{"job_id": job.ID, "result": "acknowledged"})
	}
}

func (a *App) settle(w http.ResponseWriter, r *http.Request, job *domain.Job, outcome orchestrator.Outcome) {
	won, err := a.Settler.Settle(r.Context(), job, outcome)
	if err != nil {
		a.Logger.Error().Err(err).Str("job_id", job.ID).Msg("callback: settle failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to settle job")
		return
	}
	result := "settled"
	if !won {
		result = "already_settled"
	}
	a.json(w, http.StatusOK, map[string]string{
		"job_id": job.ID,
		"status": string(job.Status),
		"result": result,
	})
}
