package repo

import (
	"context"
	"time"

	"server/internal/domain"
	"server/internal/infra"
	"server/internal/sqlinline"
)

// JobRepositoryPG implements domain.JobRepository on PostgreSQL. Settlement
// updates are conditional on the row not being terminal, so concurrent poll
// and webhook settlement collapse into a single winning write.
type JobRepositoryPG struct {
	sql infra.SQLExecutor
}

// NewJobRepository creates a job repository backed by the shared SQL runner.
func NewJobRepository(sql infra.SQLExecutor) *JobRepositoryPG {
	return &JobRepositoryPG{sql: sql}
}

func (r *JobRepositoryPG) Create(ctx context.Context, job *domain.Job) error {
	_, err := r.sql.Exec(ctx, sqlinline.QInsertJob,
		job.ID,
		job.PipelineID,
		job.UserID,
		job.Stage,
		job.Status,
		job.Payload,
		job.MaxAttempts,
		job.CreatedAt,
	)
	return err
}

func (r *JobRepositoryPG) GetByID(ctx context.Context, jobID string) (*domain.Job, error) {
	return r.scanJob(ctx, sqlinline.QSelectJobByID, jobID)
}

func (r *JobRepositoryPG) GetByProviderTaskID(ctx context.Context, taskID string) (*domain.Job, error) {
	return r.scanJob(ctx, sqlinline.QSelectJobByProviderTaskID, taskID)
}

func (r *JobRepositoryPG) ListByPipelineID(ctx context.Context, pipelineID string) ([]domain.Job, error) {
	rows, err := r.sql.Query(ctx, sqlinline.QSelectJobsByPipelineID, pipelineID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var jobs []domain.Job
	for rows.Next() {
		var job domain.Job
		if err := scanJobFields(rows.Scan, &job); err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

func (r *JobRepositoryPG) MarkSubmitted(ctx context.Context, jobID, providerTaskID string, at time.Time) error {
	_, err := r.sql.Exec(ctx, sqlinline.QMarkJobSubmitted, jobID, providerTaskID, at)
	return err
}

func (r *JobRepositoryPG) MarkProcessing(ctx context.Context, jobID string) error {
	_, err := r.sql.Exec(ctx, sqlinline.QMarkJobProcessing, jobID)
	return err
}

func (r *JobRepositoryPG) IncrementAttempts(ctx context.Context, jobID string) (int, error) {
	row := r.sql.QueryRow(ctx, sqlinline.QIncrementJobAttempts, jobID)
	var attempts int
	if err := row.Scan(&attempts); err != nil {
		if infra.IsNoRows(err) {
			return 0, domain.ErrNotFound
		}
		return 0, err
	}
	return attempts, nil
}

func (r *JobRepositoryPG) SettleReady(ctx context.Context, jobID, resultURL string, at time.Time) (bool, error) {
	tag, err := r.sql.Exec(ctx, sqlinline.QSettleJobReady, jobID, resultURL, at)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *JobRepositoryPG) SettleFailed(ctx context.Context, jobID, failureCode, failureMessage string, at time.Time) (bool, error) {
	tag, err := r.sql.Exec(ctx, sqlinline.QSettleJobFailed, jobID, failureCode, failureMessage, at)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// ClaimPollable leases a batch of submitted/processing jobs for polling.
func (r *JobRepositoryPG) ClaimPollable(ctx context.Context, leaseSeconds, limit int) ([]domain.Job, error) {
	return r.claim(ctx, sqlinline.QWorkerClaimPollJobs, leaseSeconds, limit)
}

// ClaimStaleQueued leases queued jobs whose submission never completed, so a
// worker can retry the launch or settle them.
func (r *JobRepositoryPG) ClaimStaleQueued(ctx context.Context, graceSeconds, leaseSeconds, limit int) ([]domain.Job, error) {
	return r.claim(ctx, sqlinline.QWorkerClaimStaleQueuedJobs, graceSeconds, leaseSeconds, limit)
}

func (r *JobRepositoryPG) claim(ctx context.Context, query string, args ...any) ([]domain.Job, error) {
	rows, err := r.sql.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var jobs []domain.Job
	for rows.Next() {
		var job domain.Job
		if err := scanJobFields(rows.Scan, &job); err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// ReleaseLease clears a job's poll lease so another worker can pick it up.
func (r *JobRepositoryPG) ReleaseLease(ctx context.Context, jobID string) error {
	_, err := r.sql.Exec(ctx, sqlinline.QReleasePollLease, jobID)
	return err
}

func (r *JobRepositoryPG) scanJob(ctx context.Context, query string, arg any) (*domain.Job, error) {
	row := r.sql.QueryRow(ctx, query, arg)
	var job domain.Job
	if err := scanJobFields(row.Scan, &job); err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &job, nil
}

func scanJobFields(scan func(dest ...any) error, job *domain.Job) error {
	return scan(
		&job.ID,
		&job.PipelineID,
		&job.UserID,
		&job.Stage,
		&job.Status,
		&job.ProviderTaskID,
		&job.Payload,
		&job.ResultURL,
		&job.FailureCode,
		&job.FailureMessage,
		&job.Attempts,
		&job.MaxAttempts,
		&job.CreatedAt,
		&job.SubmittedAt,
		&job.SettledAt,
	)
}

var _ domain.JobRepository = (*JobRepositoryPG)(nil)
