package orchestrator

import (
	"context"
	"sync"
	"time"

	"server/internal/domain"
)

// memJobRepo is an in-memory domain.JobRepository with the same conditional
// settlement semantics as the Postgres implementation.
type memJobRepo struct {
	mu   sync.Mutex
	jobs map[string]*domain.Job
}

func newMemJobRepo(jobs ...*domain.Job) *memJobRepo {
	r := &memJobRepo{jobs: make(map[string]*domain.Job)}
	for _, j := range jobs {
		copied := *j
		r.jobs[j.ID] = &copied
	}
	return r
}

func (r *memJobRepo) get(id string) *domain.Job {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok {
		return nil
	}
	copied := *j
	return &copied
}

func (r *memJobRepo) Create(ctx context.Context, job *domain.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *job
	r.jobs[job.ID] = &copied
	return nil
}

func (r *memJobRepo) GetByID(ctx context.Context, jobID string) (*domain.Job, error) {
	j := r.get(jobID)
	if j == nil {
		return nil, domain.ErrNotFound
	}
	return j, nil
}

func (r *memJobRepo) GetByProviderTaskID(ctx context.Context, taskID string) (*domain.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, j := range r.jobs {
		if j.ProviderTaskID == taskID {
			copied := *j
			return &copied, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *memJobRepo) ListByPipelineID(ctx context.Context, pipelineID string) ([]domain.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Job
	for _, j := range r.jobs {
		if j.PipelineID == pipelineID {
			out = append(out, *j)
		}
	}
	return out, nil
}

func (r *memJobRepo) MarkSubmitted(ctx context.Context, jobID, providerTaskID string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if j, ok := r.jobs[jobID]; ok && j.Status == domain.JobStatusQueued {
		j.Status = domain.JobStatusSubmitted
		j.ProviderTaskID = providerTaskID
		t := at
		j.SubmittedAt = &t
	}
	return nil
}

func (r *memJobRepo) MarkProcessing(ctx context.Context, jobID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if j, ok := r.jobs[jobID]; ok && j.Status == domain.JobStatusSubmitted {
		j.Status = domain.JobStatusProcessing
	}
	return nil
}

func (r *memJobRepo) IncrementAttempts(ctx context.Context, jobID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[jobID]
	if !ok {
		return 0, domain.ErrNotFound
	}
	j.Attempts++
	return j.Attempts, nil
}

func (r *memJobRepo) SettleReady(ctx context.Context, jobID, resultURL string, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[jobID]
	if !ok || j.Terminal() {
		return false, nil
	}
	j.Status = domain.JobStatusReady
	j.ResultURL = resultURL
	t := at
	j.SettledAt = &t
	return true, nil
}

func (r *memJobRepo) SettleFailed(ctx context.Context, jobID, failureCode, failureMessage string, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[jobID]
	if !ok || j.Terminal() {
		return false, nil
	}
	j.Status = domain.JobStatusFailed
	j.FailureCode = failureCode
	j.FailureMessage = failureMessage
	t := at
	j.SettledAt = &t
	return true, nil
}

var _ domain.JobRepository = (*memJobRepo)(nil)

type memPipelineRepo struct {
	mu        sync.Mutex
	pipelines map[string]*domain.Pipeline
}

func newMemPipelineRepo(pipelines ...*domain.Pipeline) *memPipelineRepo {
	r := &memPipelineRepo{pipelines: make(map[string]*domain.Pipeline)}
	for _, p := range pipelines {
		copied := *p
		r.pipelines[p.ID] = &copied
	}
	return r
}

func (r *memPipelineRepo) get(id string) *domain.Pipeline {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.pipelines[id]
	if !ok {
		return nil
	}
	copied := *p
	return &copied
}

func (r *memPipelineRepo) Create(ctx context.Context, p *domain.Pipeline) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *p
	r.pipelines[p.ID] = &copied
	return nil
}

func (r *memPipelineRepo) GetByID(ctx context.Context, pipelineID string) (*domain.Pipeline, error) {
	p := r.get(pipelineID)
	if p == nil {
		return nil, domain.ErrNotFound
	}
	return p, nil
}

func (r *memPipelineRepo) SetReferenceURL(ctx context.Context, pipelineID, referenceURL string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.pipelines[pipelineID]; ok {
		p.ReferenceURL = referenceURL
	}
	return nil
}

func (r *memPipelineRepo) SetStatus(ctx context.Context, pipelineID string, status domain.PipelineStatus, failureStage domain.Stage) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.pipelines[pipelineID]
	if !ok || p.Status != domain.PipelineStatusRunning {
		return false, nil
	}
	p.Status = status
	p.FailureStage = failureStage
	return true, nil
}

var _ domain.PipelineRepository = (*memPipelineRepo)(nil)
