package orchestrator

import (
	"context"
	"time"

	"server/internal/domain"
	"server/internal/infra"
)

// Outcome is the terminal result a settlement writes.
type Outcome struct {
	success   bool
	resultURL string
	failCode  string
	failMsg   string
}

// Success builds a ready outcome carrying the primary artifact URL.
func Success(resultURL string) Outcome {
	return Outcome{success: true, resultURL: resultURL}
}

// Failure builds a failed outcome from the raw provider code and message. The
// pair is classified before it is persisted.
func Failure(code, message string) Outcome {
	return Outcome{failCode: code, failMsg: message}
}

// SuccessHook runs after a winning ready settlement, off the settlement path.
type SuccessHook interface {
	OnJobReady(ctx context.Context, job *domain.Job)
}

// Observer is notified synchronously after every winning settlement.
type Observer interface {
	OnSettled(ctx context.Context, job *domain.Job)
}

// Settler is the single settlement path shared by the polling controller and
// the webhook ingester. Both may race on the same job; the conditional store
// update lets exactly one write win while the loser no-ops.
type Settler struct {
	jobs      domain.JobRepository
	logger    infra.Logger
	hook      SuccessHook
	observers []Observer
}

func NewSettler(jobs domain.JobRepository, logger infra.Logger) *Settler {
	return &Settler{jobs: jobs, logger: logger}
}

// SetSuccessHook registers the best-effort downstream effect for ready jobs.
func (s *Settler) SetSuccessHook(hook SuccessHook) {
	s.hook = hook
}

// AddObserver registers an observer for winning settlements. Registration is
// wiring-time only; it is not safe concurrently with Settle.
func (s *Settler) AddObserver(obs Observer) {
	s.observers = append(s.observers, obs)
}

// Settle moves the job to its terminal status exactly once. It returns true
// when this call performed the terminal write and false when the job was
// already settled, in which case nothing is touched. Settle never returns an
// error for a duplicate settlement.
func (s *Settler) Settle(ctx context.Context, job *domain.Job, outcome Outcome) (bool, error) {
	if job.Terminal() {
		return false, nil
	}
	now := time.Now().UTC()

	var won bool
	var err error
	if outcome.success {
		won, err = s.jobs.SettleReady(ctx, job.ID, outcome.resultURL, now)
	} else {
		classified := Classify(outcome.failCode, outcome.failMsg)
		s.logger.Warn().
			Str("job_id", job.ID).
			Str("provider_code", outcome.failCode).
			Str("provider_message", outcome.failMsg).
			Str("category", string(classified.Category)).
			Msg("settle: job failed")
		outcome.failCode = string(classified.Category)
		outcome.failMsg = classified.UserMessage
		won, err = s.jobs.SettleFailed(ctx, job.ID, outcome.failCode, outcome.failMsg, now)
	}
	if err != nil {
		return false, err
	}
	if !won {
		// The other channel settled first. Refresh the snapshot so the
		// caller observes the terminal state.
		if fresh, ferr := s.jobs.GetByID(ctx, job.ID); ferr == nil {
			*job = *fresh
		}
		return false, nil
	}

	job.SettledAt = &now
	if outcome.success {
		job.Status = domain.JobStatusReady
		job.ResultURL = outcome.resultURL
	} else {
		job.Status = domain.JobStatusFailed
		job.FailureCode = outcome.failCode
		job.FailureMessage = outcome.failMsg
	}

	if outcome.success && s.hook != nil {
		snapshot := *job
		go func() {
			hctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
			defer cancel()
			s.hook.OnJobReady(hctx, &snapshot)
		}()
	}

	for _, obs := range s.observers {
		obs.OnSettled(ctx, job)
	}
	return true, nil
}
