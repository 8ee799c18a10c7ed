package orchestrator

import (
	"context"
	"time"

	"server/internal/domain"
	"server/internal/infra"
	"server/internal/providers/kling"
)

// TaskQuerier is the status half of the provider client.
type TaskQuerier interface {
	QueryTask(ctx context.Context, taskID string) (*kling.TaskStatus, error)
}

// Poller drives one polling loop per job: it repeatedly queries the provider,
// adapts the interval to the job's age and recent state changes, and settles
// the job through the shared Settler when a terminal state, the attempt
// ceiling, or the transient-failure threshold is reached.
//
// A Poller holds no per-job state between Run calls; jobs poll independently.
type Poller struct {
	jobs    domain.JobRepository
	client  TaskQuerier
	settler *Settler
	cancels CancelChecker // optional
	policy  infra.PollingConfig
	logger  infra.Logger
}

func NewPoller(jobs domain.JobRepository, client TaskQuerier, settler *Settler, cancels CancelChecker, policy infra.PollingConfig, logger infra.Logger) *Poller {
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = 400
	}
	if policy.TransientFailures <= 0 {
		policy.TransientFailures = 3
	}
	if policy.QueryTimeout <= 0 {
		policy.QueryTimeout = 20 * time.Second
	}
	return &Poller{
		jobs:    jobs,
		client:  client,
		settler: settler,
		cancels: cancels,
		policy:  policy,
		logger:  logger,
	}
}

// Run polls the job until it settles, the context is cancelled, or the job is
// flagged for cancellation. Cancellation stops the loop without mutating the
// job; a later webhook may still settle it. Run returns nil on settlement and
// on cancellation.
func (p *Poller) Run(ctx context.Context, job *domain.Job) error {
	if job.Terminal() {
		return nil
	}
	if job.ProviderTaskID == "" {
		p.logger.Warn().Str("job_id", job.ID).Msg("poll: job has no provider task id")
		return nil
	}

	submittedAt := job.CreatedAt
	if job.SubmittedAt != nil {
		submittedAt = *job.SubmittedAt
	}
	lastSubState := ""
	lastChange := time.Time{} // zero: no boost
	consecutiveFailures := 0

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if p.cancelled(ctx, job.ID) {
			p.logger.Info().Str("job_id", job.ID).Msg("poll: cancelled, stopping without settlement")
			return nil
		}

		attempts, err := p.jobs.IncrementAttempts(ctx, job.ID)
		if err != nil {
			return err
		}
		job.Attempts = attempts
		if attempts > p.maxAttempts(job) {
			_, err := p.settler.Settle(ctx, job, Failure(string(CategoryTimeout), "poll attempt ceiling exceeded"))
			return err
		}

		status, qerr := p.query(ctx, job.ProviderTaskID)
		if qerr != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			consecutiveFailures++
			p.logger.Warn().Err(qerr).Str("job_id", job.ID).Int("consecutive", consecutiveFailures).Msg("poll: query failed")
			if consecutiveFailures >= p.policy.TransientFailures {
				_, err := p.settler.Settle(ctx, job, Failure(string(CategoryPollingFailed), "repeated status query failures"))
				return err
			}
		} else {
			consecutiveFailures = 0
			if status.Terminal() {
				_, err := p.settler.Settle(ctx, job, outcomeFromStatus(status))
				return err
			}
			if job.Status == domain.JobStatusSubmitted {
				if err := p.jobs.MarkProcessing(ctx, job.ID); err != nil {
					p.logger.Warn().Err(err).Str("job_id", job.ID).Msg("poll: mark processing failed")
				} else {
					job.Status = domain.JobStatusProcessing
				}
			}
			if status.SubState != lastSubState {
				lastSubState = status.SubState
				lastChange = time.Now()
			}
		}

		sinceChange := time.Duration(-1)
		if !lastChange.IsZero() {
			sinceChange = time.Since(lastChange)
		}
		interval := PollInterval(p.policy, time.Since(submittedAt), sinceChange)

		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func (p *Poller) query(ctx context.Context, taskID string) (*kling.TaskStatus, error) {
	qctx, cancel := context.WithTimeout(ctx, p.policy.QueryTimeout)
	defer cancel()
	return p.client.QueryTask(qctx, taskID)
}

func (p *Poller) cancelled(ctx context.Context, jobID string) bool {
	if p.cancels == nil {
		return false
	}
	flagged, err := p.cancels.Cancelled(ctx, jobID)
	if err != nil {
		// A cancel-store hiccup must not stop the loop.
		p.logger.Warn().Err(err).Str("job_id", jobID).Msg("poll: cancel check failed")
		return false
	}
	return flagged
}

func (p *Poller) maxAttempts(job *domain.Job) int {
	if job.MaxAttempts > 0 {
		return job.MaxAttempts
	}
	return p.policy.MaxAttempts
}

// outcomeFromStatus converts a terminal provider status into a settlement
// outcome. A success without result URLs is a provider contract violation and
// is settled as a failure.
func outcomeFromStatus(status *kling.TaskStatus) Outcome {
	if status.State == kling.StateSuccess {
		if len(status.ResultURLs) == 0 {
			return Failure("", "provider reported success without a result")
		}
		return Success(status.ResultURLs[0])
	}
	return Failure(status.FailCode, status.FailMsg)
}
