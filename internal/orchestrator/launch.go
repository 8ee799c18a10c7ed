package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"server/internal/domain"
	"server/internal/infra"
	"server/internal/providers/kling"
)

// TaskCreator is the submission half of the provider client.
type TaskCreator interface {
	CreateTask(ctx context.Context, payload json.RawMessage, callbackURL string) (string, error)
}

// Launcher submits queued jobs to the provider and records the assigned task
// id. A provider-level rejection settles the job as failed immediately; a
// transport error leaves the job queued and is returned to the caller, who
// decides whether to retry the submission.
type Launcher struct {
	jobs        domain.JobRepository
	client      TaskCreator
	settler     *Settler
	callbackURL string
	timeout     time.Duration
	logger      infra.Logger
}

func NewLauncher(jobs domain.JobRepository, client TaskCreator, settler *Settler, callbackURL string, timeout time.Duration, logger infra.Logger) *Launcher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Launcher{
		jobs:        jobs,
		client:      client,
		settler:     settler,
		callbackURL: strings.TrimRight(callbackURL, "/"),
		timeout:     timeout,
		logger:      logger,
	}
}

// Launch submits the job and moves it queued -> submitted.
func (l *Launcher) Launch(ctx context.Context, job *domain.Job) error {
	if job.Status != domain.JobStatusQueued {
		return fmt.Errorf("launch: job %s is %s, want queued", job.ID, job.Status)
	}
	callCtx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	taskID, err := l.client.CreateTask(callCtx, job.Payload, l.callbackURL)
	if err != nil {
		var subErr *kling.SubmissionError
		if errors.As(err, &subErr) {
			if _, serr := l.settler.Settle(ctx, job, Failure(subErr.Code, subErr.Message)); serr != nil {
				l.logger.Error().Err(serr).Str("job_id", job.ID).Msg("launch: settle after rejection failed")
			}
		}
		return fmt.Errorf("launch job %s: %w", job.ID, err)
	}

	now := time.Now().UTC()
	if err := l.jobs.MarkSubmitted(ctx, job.ID, taskID, now); err != nil {
		return fmt.Errorf("launch job %s: record task id: %w", job.ID, err)
	}
	job.Status = domain.JobStatusSubmitted
	job.ProviderTaskID = taskID
	job.SubmittedAt = &now
	l.logger.Info().Str("job_id", job.ID).Str("task_id", taskID).Str("stage", string(job.Stage)).Msg("launch: job submitted")
	return nil
}

// Resubmit retries the submission of a job left queued by an earlier
// transport failure. Each retry burns one attempt; once the resubmission
// ceiling is crossed the job settles failed instead of staying queued
// forever.
func (l *Launcher) Resubmit(ctx context.Context, job *domain.Job, maxSubmits int) error {
	if job.Status != domain.JobStatusQueued {
		return nil
	}
	attempts, err := l.jobs.IncrementAttempts(ctx, job.ID)
	if err != nil {
		return err
	}
	job.Attempts = attempts
	if attempts > maxSubmits {
		l.logger.Warn().Str("job_id", job.ID).Int("attempts", attempts).Msg("launch: resubmission ceiling reached")
		_, err := l.settler.Settle(ctx, job, Failure(string(CategoryProviderInternal), "submission retries exhausted"))
		return err
	}
	return l.Launch(ctx, job)
}
