package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"server/internal/domain"
	"server/internal/providers/kling"
)

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return body
}

func TestVideosCreateSubmitsJob(t *testing.T) {
	f := newTestApp(t)

	req := asUser(httptest.NewRequest("POST", "/v1/videos", strings.NewReader(`{"prompt":"a surfing capy","aspect_ratio":"16:9"}`)), "user-1")
	rr := httptest.NewRecorder()
	f.app.VideosCreate(rr, req)

	if rr.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", rr.Code)
	}
	body := decodeBody(t, rr)
	jobID, _ := body["job_id"].(string)
	if jobID == "" {
		t.Fatal("response missing job_id")
	}
	if body["status"] != string(domain.JobStatusSubmitted) {
		t.Fatalf("status = %v, want submitted", body["status"])
	}
	stored := f.jobs.get(jobID)
	if stored == nil || stored.ProviderTaskID != "task-1" {
		t.Fatalf("stored job = %+v, want provider task id task-1", stored)
	}
	if f.creator.calls != 1 {
		t.Fatalf("creator calls = %d, want 1", f.creator.calls)
	}
}

func TestVideosCreateRejectionReturnsFailedSnapshot(t *testing.T) {
	f := newTestApp(t)
	f.creator.err = &kling.SubmissionError{Code: "1101", Message: "insufficient balance"}

	req := asUser(httptest.NewRequest("POST", "/v1/videos", strings.NewReader(`{"prompt":"x"}`)), "user-1")
	rr := httptest.NewRecorder()
	f.app.VideosCreate(rr, req)

	if rr.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", rr.Code)
	}
	body := decodeBody(t, rr)
	if body["status"] != string(domain.JobStatusFailed) {
		t.Fatalf("status = %v, want failed", body["status"])
	}
	if body["failure_code"] != "insufficient_credit" {
		t.Fatalf("failure_code = %v, want insufficient_credit", body["failure_code"])
	}
}

func TestVideosCreateRequiresPrompt(t *testing.T) {
	f := newTestApp(t)
	req := asUser(httptest.NewRequest("POST", "/v1/videos", strings.NewReader(`{}`)), "user-1")
	rr := httptest.NewRecorder()
	f.app.VideosCreate(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
}

func TestJobStatusHidesForeignJobs(t *testing.T) {
	f := newTestApp(t)
	now := time.Now().UTC()
	f.jobs.Create(context.Background(), &domain.Job{ID: "job-1", UserID: "user-2", Stage: domain.StageSingle, Status: domain.JobStatusProcessing, CreatedAt: now})

	req := asUser(withURLParam(httptest.NewRequest("GET", "/v1/jobs/job-1", nil), "job_id", "job-1"), "user-1")
	rr := httptest.NewRecorder()
	f.app.JobStatus(rr, req)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404 for foreign job", rr.Code)
	}
}

func TestJobStatusLocalizesFailure(t *testing.T) {
	f := newTestApp(t)
	f.jobs.Create(context.Background(), &domain.Job{
		ID: "job-1", UserID: "user-1", Stage: domain.StageSingle,
		Status: domain.JobStatusFailed, FailureCode: "insufficient_credit",
		FailureMessage: "Your account balance is too low to run this generation.",
		Attempts:       7, MaxAttempts: 50,
	})

	req := asUser(withURLParam(httptest.NewRequest("GET", "/v1/jobs/job-1", nil), "job_id", "job-1"), "user-1")
	rr := httptest.NewRecorder()
	f.app.JobStatus(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	body := decodeBody(t, rr)
	if body["attempts"] != float64(7) || body["max_attempts"] != float64(50) {
		t.Fatalf("attempts = %v/%v, want 7/50", body["attempts"], body["max_attempts"])
	}
	msg, _ := body["failure_message"].(string)
	if msg == "" {
		t.Fatal("failure_message missing")
	}
}

func TestJobCancelSetsFlagWithoutTouchingStatus(t *testing.T) {
	f := newTestApp(t)
	f.jobs.Create(context.Background(), &domain.Job{ID: "job-1", UserID: "user-1", Stage: domain.StageSingle, Status: domain.JobStatusProcessing})

	req := asUser(withURLParam(httptest.NewRequest("POST", "/v1/jobs/job-1/cancel", nil), "job_id", "job-1"), "user-1")
	rr := httptest.NewRecorder()
	f.app.JobCancel(rr, req)

	if rr.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", rr.Code)
	}
	if len(f.cancels.requested) != 1 || f.cancels.requested[0] != "job-1" {
		t.Fatalf("cancel flags = %v, want [job-1]", f.cancels.requested)
	}
	if got := f.jobs.get("job-1").Status; got != domain.JobStatusProcessing {
		t.Fatalf("status = %q, cancel must not mutate it", got)
	}
}

func TestJobCancelConflictsWhenSettled(t *testing.T) {
	f := newTestApp(t)
	f.jobs.Create(context.Background(), &domain.Job{ID: "job-1", UserID: "user-1", Stage: domain.StageSingle, Status: domain.JobStatusReady})

	req := asUser(withURLParam(httptest.NewRequest("POST", "/v1/jobs/job-1/cancel", nil), "job_id", "job-1"), "user-1")
	rr := httptest.NewRecorder()
	f.app.JobCancel(rr, req)

	if rr.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rr.Code)
	}
	if len(f.cancels.requested) != 0 {
		t.Fatalf("cancel flags = %v, want none", f.cancels.requested)
	}
}

func TestJobAssetsListsRecords(t *testing.T) {
	f := newTestApp(t)
	f.jobs.Create(context.Background(), &domain.Job{ID: "job-1", UserID: "user-1", Stage: domain.StageVideo, Status: domain.JobStatusReady})
	f.assets.Create(context.Background(), &domain.Asset{ID: "asset-1", JobID: "job-1", Kind: domain.AssetKindVideo, SourceURL: "https://cdn/x.mp4", StorageKey: "generated/video/job-1.mp4", Bytes: 1024})
	f.assets.Create(context.Background(), &domain.Asset{ID: "asset-2", JobID: "job-2", Kind: domain.AssetKindImage, SourceURL: "https://cdn/y.png"})

	req := asUser(withURLParam(httptest.NewRequest("GET", "/v1/jobs/job-1/assets", nil), "job_id", "job-1"), "user-1")
	rr := httptest.NewRecorder()
	f.app.JobAssets(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	var body struct {
		Items []map[string]any `json:"items"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(body.Items) != 1 || body.Items[0]["id"] != "asset-1" {
		t.Fatalf("items = %+v, want only asset-1", body.Items)
	}
}
