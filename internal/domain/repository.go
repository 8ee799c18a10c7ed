package domain

import (
	"context"
	"time"
)

// JobRepository defines persistence for job records. Settlement methods use a
// conditional update (update-if-not-terminal) and report whether this caller
// won the write, so poll and webhook settlement can race safely.
type JobRepository interface {
	Create(ctx context.Context, job *Job) error
	GetByID(ctx context.Context, jobID string) (*Job, error)
	GetByProviderTaskID(ctx context.Context, taskID string) (*Job, error)
	ListByPipelineID(ctx context.Context, pipelineID string) ([]Job, error)

	// MarkSubmitted records the provider task id and moves queued -> submitted.
	MarkSubmitted(ctx context.Context, jobID, providerTaskID string, at time.Time) error
	// MarkProcessing moves a submitted job to processing. A no-op when the
	// job is already processing or terminal.
	MarkProcessing(ctx context.Context, jobID string) error
	// IncrementAttempts bumps the poll attempt counter and returns the new value.
	IncrementAttempts(ctx context.Context, jobID string) (int, error)

	// SettleReady and SettleFailed return true when this call performed the
	// terminal write, false when the job was already terminal.
	SettleReady(ctx context.Context, jobID, resultURL string, at time.Time) (bool, error)
	SettleFailed(ctx context.Context, jobID, failureCode, failureMessage string, at time.Time) (bool, error)
}

// PipelineRepository defines persistence for pipelines.
type PipelineRepository interface {
	Create(ctx context.Context, p *Pipeline) error
	GetByID(ctx context.Context, pipelineID string) (*Pipeline, error)
	SetReferenceURL(ctx context.Context, pipelineID, referenceURL string) error
	// SetStatus is conditional the same way job settlement is: it reports
	// whether the pipeline left the running state in this call.
	SetStatus(ctx context.Context, pipelineID string, status PipelineStatus, failureStage Stage) (bool, error)
}

// AssetRepository persists downstream artifact records created after a
// successful settlement.
type AssetRepository interface {
	Create(ctx context.Context, asset *Asset) error
	ListByJobID(ctx context.Context, jobID string) ([]Asset, error)
}
