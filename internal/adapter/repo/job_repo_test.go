package repo

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"server/internal/domain"
	"server/internal/sqlinline"
)

func jobScan(j domain.Job) func(dest ...any) error {
	return func(dest ...any) error {
		*dest[0].(*string) = j.ID
		*dest[1].(*string) = j.PipelineID
		*dest[2].(*string) = j.UserID
		*dest[3].(*domain.Stage) = j.Stage
		*dest[4].(*domain.JobStatus) = j.Status
		*dest[5].(*string) = j.ProviderTaskID
		*dest[6].(*json.RawMessage) = j.Payload
		*dest[7].(*string) = j.ResultURL
		*dest[8].(*string) = j.FailureCode
		*dest[9].(*string) = j.FailureMessage
		*dest[10].(*int) = j.Attempts
		*dest[11].(*int) = j.MaxAttempts
		*dest[12].(*time.Time) = j.CreatedAt
		*dest[13].(**time.Time) = j.SubmittedAt
		*dest[14].(**time.Time) = j.SettledAt
		return nil
	}
}

func TestGetByIDScansFullRecord(t *testing.T) {
	want := domain.Job{
		ID: "job-1", UserID: "user-1", Stage: domain.StageVideo,
		Status: domain.JobStatusProcessing, ProviderTaskID: "task-1",
		Payload: json.RawMessage(`{"prompt":"x"}`), Attempts: 3, MaxAttempts: 400,
		CreatedAt: time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC),
	}
	sql := &fakeSQL{row: simpleRow{scan: jobScan(want)}}
	r := NewJobRepository(sql)

	got, err := r.GetByID(context.Background(), "job-1")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.ID != want.ID || got.Status != want.Status || got.Attempts != 3 {
		t.Fatalf("got = %+v, want %+v", got, want)
	}
	if sql.lastQuery != sqlinline.QSelectJobByID {
		t.Fatalf("unexpected query: %s", sql.lastQuery)
	}
	if len(sql.lastArgs) != 1 || sql.lastArgs[0] != "job-1" {
		t.Fatalf("unexpected args: %v", sql.lastArgs)
	}
}

func TestGetByIDMapsNoRowsToNotFound(t *testing.T) {
	r := NewJobRepository(&fakeSQL{row: simpleRow{}})
	if _, err := r.GetByID(context.Background(), "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err = %v, want domain.ErrNotFound", err)
	}
}

func TestSettleReadyReportsWin(t *testing.T) {
	sql := &fakeSQL{execTag: pgconn.NewCommandTag("UPDATE 1")}
	r := NewJobRepository(sql)

	won, err := r.SettleReady(context.Background(), "job-1", "https://cdn/x.mp4", time.Now())
	if err != nil {
		t.Fatalf("SettleReady: %v", err)
	}
	if !won {
		t.Fatal("want win on single-row update")
	}
	if sql.lastQuery != sqlinline.QSettleJobReady {
		t.Fatalf("unexpected query: %s", sql.lastQuery)
	}
}

func TestSettleFailedReportsLossOnZeroRows(t *testing.T) {
	sql := &fakeSQL{execTag: pgconn.NewCommandTag("UPDATE 0")}
	r := NewJobRepository(sql)

	won, err := r.SettleFailed(context.Background(), "job-1", "timeout", "gave up", time.Now())
	if err != nil {
		t.Fatalf("SettleFailed: %v", err)
	}
	if won {
		t.Fatal("zero-row update must read as already settled")
	}
}

func TestListByPipelineIDCollectsRows(t *testing.T) {
	rows := &scriptedRows{scans: []func(dest ...any) error{
		jobScan(domain.Job{ID: "job-1", PipelineID: "p-1", Stage: domain.StageVideo, Status: domain.JobStatusReady}),
		jobScan(domain.Job{ID: "job-2", PipelineID: "p-1", Stage: domain.StageReferenceExtraction, Status: domain.JobStatusQueued}),
	}}
	r := NewJobRepository(&fakeSQL{rows: rows})

	jobs, err := r.ListByPipelineID(context.Background(), "p-1")
	if err != nil {
		t.Fatalf("ListByPipelineID: %v", err)
	}
	if len(jobs) != 2 || jobs[0].ID != "job-1" || jobs[1].Stage != domain.StageReferenceExtraction {
		t.Fatalf("jobs = %+v", jobs)
	}
}

func TestClaimStaleQueuedPassesGraceAndLease(t *testing.T) {
	rows := &scriptedRows{scans: []func(dest ...any) error{
		jobScan(domain.Job{ID: "job-1", Status: domain.JobStatusQueued, Stage: domain.StageProfileImage}),
	}}
	sql := &fakeSQL{rows: rows}
	r := NewJobRepository(sql)

	jobs, err := r.ClaimStaleQueued(context.Background(), 60, 120, 10)
	if err != nil {
		t.Fatalf("ClaimStaleQueued: %v", err)
	}
	if len(jobs) != 1 || jobs[0].ID != "job-1" {
		t.Fatalf("jobs = %+v", jobs)
	}
	if sql.lastQuery != sqlinline.QWorkerClaimStaleQueuedJobs {
		t.Fatalf("unexpected query: %s", sql.lastQuery)
	}
	if len(sql.lastArgs) != 3 || sql.lastArgs[0] != 60 || sql.lastArgs[1] != 120 || sql.lastArgs[2] != 10 {
		t.Fatalf("args = %v", sql.lastArgs)
	}
}

func TestIncrementAttemptsReturnsNewValue(t *testing.T) {
	sql := &fakeSQL{row: simpleRow{scan: func(dest ...any) error {
		*dest[0].(*int) = 8
		return nil
	}}}
	r := NewJobRepository(sql)

	attempts, err := r.IncrementAttempts(context.Background(), "job-1")
	if err != nil {
		t.Fatalf("IncrementAttempts: %v", err)
	}
	if attempts != 8 {
		t.Fatalf("attempts = %d, want 8", attempts)
	}
	if sql.lastQuery != sqlinline.QIncrementJobAttempts {
		t.Fatalf("unexpected query: %s", sql.lastQuery)
	}
}
