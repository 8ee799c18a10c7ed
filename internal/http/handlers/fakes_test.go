package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"server/internal/domain"
	"server/internal/infra"
	"server/internal/middleware"
	"server/internal/orchestrator"
)

// memJobs is a minimal in-memory domain.JobRepository mirroring the
// conditional settlement semantics of the Postgres implementation.
type memJobs struct {
	mu   sync.Mutex
	jobs map[string]*domain.Job
}

func newMemJobs(jobs ...*domain.Job) *memJobs {
	r := &memJobs{jobs: make(map[string]*domain.Job)}
	for _, j := range jobs {
		copied := *j
		r.jobs[j.ID] = &copied
	}
	return r
}

func (r *memJobs) get(id string) *domain.Job {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok {
		return nil
	}
	copied := *j
	return &copied
}

func (r *memJobs) Create(ctx context.Context, job *domain.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *job
	r.jobs[job.ID] = &copied
	return nil
}

func (r *memJobs) GetByID(ctx context.Context, jobID string) (*domain.Job, error) {
	if j := r.get(jobID); j != nil {
		return j, nil
	}
	return nil, domain.ErrNotFound
}

func (r *memJobs) GetByProviderTaskID(ctx context.Context, taskID string) (*domain.Job, error) {
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

func (r *memJobs) ListByPipelineID(ctx context.Context, pipelineID string) ([]domain.Job, error) {
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

func (r *memJobs) MarkSubmitted(ctx context.Context, jobID, providerTaskID string, at time.Time) error {
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

func (r *memJobs) MarkProcessing(ctx context.Context, jobID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if j, ok := r.jobs[jobID]; ok && j.Status == domain.JobStatusSubmitted {
		j.Status = domain.JobStatusProcessing
	}
	return nil
}

func (r *memJobs) IncrementAttempts(ctx context.Context, jobID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[jobID]
	if !ok {
		return 0, domain.ErrNotFound
	}
	j.Attempts++
	return j.Attempts, nil
}

func (r *memJobs) SettleReady(ctx context.Context, jobID, resultURL string, at time.Time) (bool, error) {
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

func (r *memJobs) SettleFailed(ctx context.Context, jobID, failureCode, failureMessage string, at time.Time) (bool, error) {
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

var _ domain.JobRepository = (*memJobs)(nil)

type memPipelines struct {
	mu        sync.Mutex
	pipelines map[string]*domain.Pipeline
}

func newMemPipelines(pipelines ...*domain.Pipeline) *memPipelines {
	r := &memPipelines{pipelines: make(map[string]*domain.Pipeline)}
	for _, p := range pipelines {
		copied := *p
		r.pipelines[p.ID] = &copied
	}
	return r
}

func (r *memPipelines) Create(ctx context.Context, p *domain.Pipeline) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *p
	r.pipelines[p.ID] = &copied
	return nil
}

func (r *memPipelines) GetByID(ctx context.Context, pipelineID string) (*domain.Pipeline, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.pipelines[pipelineID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	copied := *p
	return &copied, nil
}

func (r *memPipelines) SetReferenceURL(ctx context.Context, pipelineID, referenceURL string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.pipelines[pipelineID]; ok {
		p.ReferenceURL = referenceURL
	}
	return nil
}

func (r *memPipelines) SetStatus(ctx context.Context, pipelineID string, status domain.PipelineStatus, failureStage domain.Stage) (bool, error) {
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

var _ domain.PipelineRepository = (*memPipelines)(nil)

type memAssets struct {
	mu     sync.Mutex
	assets []domain.Asset
}

func (r *memAssets) Create(ctx context.Context, asset *domain.Asset) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.assets = append(r.assets, *asset)
	return nil
}

func (r *memAssets) ListByJobID(ctx context.Context, jobID string) ([]domain.Asset, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Asset
	for _, a := range r.assets {
		if a.JobID == jobID {
			out = append(out, a)
		}
	}
	return out, nil
}

var _ domain.AssetRepository = (*memAssets)(nil)

// fakeCreator returns a fixed task id, or the configured error.
type fakeCreator struct {
	next  string
	err   error
	calls int
}

func (f *fakeCreator) CreateTask(ctx context.Context, payload json.RawMessage, callbackURL string) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return f.next, nil
}

type fakeCancels struct {
	requested []string
}

func (f *fakeCancels) RequestCancel(ctx context.Context, jobID string) error {
	f.requested = append(f.requested, jobID)
	return nil
}

type testApp struct {
	app       *App
	jobs      *memJobs
	pipelines *memPipelines
	assets    *memAssets
	creator   *fakeCreator
	cancels   *fakeCancels
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	logger := infra.Logger(zerolog.New(io.Discard))
	jobs := newMemJobs()
	pipelines := newMemPipelines()
	assets := &memAssets{}
	creator := &fakeCreator{next: "task-1"}
	cancels := &fakeCancels{}

	settler := orchestrator.NewSettler(jobs, logger)
	launcher := orchestrator.NewLauncher(jobs, creator, settler, "https://app.test/v1/callbacks/kling", time.Second, logger)
	advancer := orchestrator.NewAdvancer(jobs, pipelines, launcher, 50, logger)
	settler.AddObserver(advancer)

	return &testApp{
		app: &App{
			Jobs:            jobs,
			Pipelines:       pipelines,
			Assets:          assets,
			Launcher:        launcher,
			Advancer:        advancer,
			Settler:         settler,
			Cancels:         cancels,
			CallbackToken:   "hook-secret",
			MaxPollAttempts: 50,
			Logger:          logger,
		},
		jobs:      jobs,
		pipelines: pipelines,
		assets:    assets,
		creator:   creator,
		cancels:   cancels,
	}
}

// asUser attaches the authenticated user id the JWT middleware would set.
func asUser(r *http.Request, userID string) *http.Request {
	return r.WithContext(middleware.ContextWithUserID(r.Context(), userID))
}

// withURLParam injects a chi route parameter for direct handler invocation.
func withURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}
