package repo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"server/internal/domain"
	"server/internal/sqlinline"
)

func TestPipelineGetByIDScansRecord(t *testing.T) {
	created := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	sql := &fakeSQL{row: simpleRow{scan: func(dest ...any) error {
		*dest[0].(*string) = "p-1"
		*dest[1].(*string) = "user-1"
		*dest[2].(*domain.PipelineKind) = domain.PipelineKindInfluencer
		*dest[3].(*domain.PipelineStatus) = domain.PipelineStatusFailed
		*dest[4].(*string) = "https://cdn/ref.png"
		*dest[5].(*domain.Stage) = domain.StageProfileImage
		*dest[6].(*time.Time) = created
		*dest[7].(*time.Time) = created
		return nil
	}}}
	r := NewPipelineRepository(sql)

	p, err := r.GetByID(context.Background(), "p-1")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if p.Status != domain.PipelineStatusFailed || p.FailureStage != domain.StageProfileImage {
		t.Fatalf("pipeline = %+v", p)
	}
	if p.ReferenceURL != "https://cdn/ref.png" {
		t.Fatalf("reference url = %q", p.ReferenceURL)
	}
}

func TestPipelineGetByIDMapsNoRows(t *testing.T) {
	r := NewPipelineRepository(&fakeSQL{row: simpleRow{}})
	if _, err := r.GetByID(context.Background(), "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err = %v, want domain.ErrNotFound", err)
	}
}

func TestPipelineSetStatusConditional(t *testing.T) {
	sql := &fakeSQL{execTag: pgconn.NewCommandTag("UPDATE 0")}
	r := NewPipelineRepository(sql)

	moved, err := r.SetStatus(context.Background(), "p-1", domain.PipelineStatusFailed, domain.StageVideo)
	if err != nil {
		t.Fatalf("SetStatus: %v", err)
	}
	if moved {
		t.Fatal("zero-row update must read as already finished")
	}
	if sql.lastQuery != sqlinline.QSetPipelineStatus {
		t.Fatalf("unexpected query: %s", sql.lastQuery)
	}
}

func TestPipelineCreatePassesReferenceURL(t *testing.T) {
	sql := &fakeSQL{}
	r := NewPipelineRepository(sql)

	err := r.Create(context.Background(), &domain.Pipeline{
		ID: "p-1", UserID: "user-1", Kind: domain.PipelineKindInfluencer,
		Status: domain.PipelineStatusRunning, ReferenceURL: "https://cdn/ref.png",
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if sql.lastQuery != sqlinline.QInsertPipeline {
		t.Fatalf("unexpected query: %s", sql.lastQuery)
	}
	if len(sql.lastArgs) != 6 || sql.lastArgs[4] != "https://cdn/ref.png" {
		t.Fatalf("unexpected args: %v", sql.lastArgs)
	}
}
