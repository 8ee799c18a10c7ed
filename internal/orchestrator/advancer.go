package orchestrator

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"

	"server/internal/domain"
	"server/internal/infra"
)

// Advancer evaluates the pipeline stage graph on every settlement event and
// creates the jobs whose predecessor stages have all settled ready. It is the
// only component that creates pipeline stage jobs. A failed stage halts the
// pipeline; artifacts of already-settled stages are left in place.
type Advancer struct {
	jobs        domain.JobRepository
	pipelines   domain.PipelineRepository
	launcher    *Launcher
	maxAttempts int
	logger      infra.Logger
}

func NewAdvancer(jobs domain.JobRepository, pipelines domain.PipelineRepository, launcher *Launcher, maxAttempts int, logger infra.Logger) *Advancer {
	if maxAttempts <= 0 {
		maxAttempts = 400
	}
	return &Advancer{
		jobs:        jobs,
		pipelines:   pipelines,
		launcher:    launcher,
		maxAttempts: maxAttempts,
		logger:      logger,
	}
}

// StartPipeline creates the pipeline record together with its initial stage
// jobs and submits them. A non-empty referenceURL seeds the pipeline so the
// reference extraction stage is treated as already satisfied.
func (a *Advancer) StartPipeline(ctx context.Context, userID string, kind domain.PipelineKind, payload json.RawMessage, referenceURL string) (*domain.Pipeline, error) {
	now := time.Now().UTC()
	p := &domain.Pipeline{
		ID:           uuid.NewString(),
		UserID:       userID,
		Kind:         kind,
		Status:       domain.PipelineStatusRunning,
		ReferenceURL: referenceURL,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := a.pipelines.Create(ctx, p); err != nil {
		return nil, err
	}
	for _, stage := range kind.InitialStages() {
		job := a.newStageJob(p, stage, payload)
		if err := a.jobs.Create(ctx, job); err != nil {
			return nil, err
		}
		if err := a.launcher.Launch(ctx, job); err != nil {
			a.logger.Error().Err(err).Str("pipeline_id", p.ID).Str("stage", string(stage)).Msg("advance: initial stage submission failed")
		}
	}
	return p, nil
}

// OnSettled implements Observer. It runs synchronously on the settlement path
// of both channels, so it only reads already-terminal predecessor state.
func (a *Advancer) OnSettled(ctx context.Context, job *domain.Job) {
	if job.PipelineID == "" {
		return
	}
	p, err := a.pipelines.GetByID(ctx, job.PipelineID)
	if err != nil {
		a.logger.Error().Err(err).Str("pipeline_id", job.PipelineID).Msg("advance: load pipeline failed")
		return
	}
	if p.Status != domain.PipelineStatusRunning {
		return
	}

	if job.Status == domain.JobStatusFailed {
		if moved, err := a.pipelines.SetStatus(ctx, p.ID, domain.PipelineStatusFailed, job.Stage); err != nil {
			a.logger.Error().Err(err).Str("pipeline_id", p.ID).Msg("advance: mark pipeline failed")
		} else if moved {
			a.logger.Info().Str("pipeline_id", p.ID).Str("stage", string(job.Stage)).Msg("advance: pipeline halted on failed stage")
		}
		return
	}

	if job.Stage == domain.StageReferenceExtraction && job.ResultURL != "" {
		if err := a.pipelines.SetReferenceURL(ctx, p.ID, job.ResultURL); err != nil {
			a.logger.Error().Err(err).Str("pipeline_id", p.ID).Msg("advance: store reference url")
			return
		}
		p.ReferenceURL = job.ResultURL
	}

	a.advance(ctx, p)
}

// advance creates every stage whose predecessors are all satisfied and marks
// the pipeline ready once no stage is outstanding.
func (a *Advancer) advance(ctx context.Context, p *domain.Pipeline) {
	stageJobs, err := a.jobs.ListByPipelineID(ctx, p.ID)
	if err != nil {
		a.logger.Error().Err(err).Str("pipeline_id", p.ID).Msg("advance: list stage jobs failed")
		return
	}
	byStage := make(map[domain.Stage]*domain.Job, len(stageJobs))
	for i := range stageJobs {
		byStage[stageJobs[i].Stage] = &stageJobs[i]
	}

	satisfied := func(stage domain.Stage) bool {
		if j, ok := byStage[stage]; ok {
			return j.Status == domain.JobStatusReady
		}
		// A pipeline resumed with a known reference skips extraction.
		return stage == domain.StageReferenceExtraction && p.ReferenceURL != ""
	}

	var toLaunch []*domain.Job
	allSatisfied := true
	for _, stage := range p.Kind.Stages() {
		if satisfied(stage) {
			continue
		}
		allSatisfied = false
		if _, exists := byStage[stage]; exists {
			continue // created earlier, still in flight or failed
		}
		ready := true
		for _, pred := range p.Kind.Predecessors(stage) {
			if !satisfied(pred) {
				ready = false
				break
			}
		}
		if !ready {
			continue
		}
		job := a.newStageJob(p, stage, a.payloadFor(stage, p, byStage))
		if err := a.jobs.Create(ctx, job); err != nil {
			a.logger.Error().Err(err).Str("pipeline_id", p.ID).Str("stage", string(stage)).Msg("advance: create stage job failed")
			continue
		}
		toLaunch = append(toLaunch, job)
	}

	// Sibling stages with the same predecessor go out concurrently.
	var wg sync.WaitGroup
	for _, job := range toLaunch {
		wg.Add(1)
		go func(job *domain.Job) {
			defer wg.Done()
			if err := a.launcher.Launch(ctx, job); err != nil {
				a.logger.Error().Err(err).Str("job_id", job.ID).Str("stage", string(job.Stage)).Msg("advance: stage submission failed")
			}
		}(job)
	}
	wg.Wait()

	if allSatisfied {
		if moved, err := a.pipelines.SetStatus(ctx, p.ID, domain.PipelineStatusReady, ""); err != nil {
			a.logger.Error().Err(err).Str("pipeline_id", p.ID).Msg("advance: mark pipeline ready")
		} else if moved {
			a.logger.Info().Str("pipeline_id", p.ID).Msg("advance: pipeline ready")
		}
	}
}

func (a *Advancer) newStageJob(p *domain.Pipeline, stage domain.Stage, payload json.RawMessage) *domain.Job {
	return &domain.Job{
		ID:          uuid.NewString(),
		PipelineID:  p.ID,
		UserID:      p.UserID,
		Stage:       stage,
		Status:      domain.JobStatusQueued,
		Payload:     payload,
		MaxAttempts: a.maxAttempts,
		CreatedAt:   time.Now().UTC(),
	}
}

// payloadFor builds the provider payload of a derived stage from the settled
// results it depends on. The payload stays opaque to the rest of the
// orchestrator.
func (a *Advancer) payloadFor(stage domain.Stage, p *domain.Pipeline, byStage map[domain.Stage]*domain.Job) json.RawMessage {
	fields := map[string]string{"type": string(stage)}
	switch stage {
	case domain.StageReferenceExtraction:
		if video, ok := byStage[domain.StageVideo]; ok {
			fields["source_url"] = video.ResultURL
		}
	case domain.StageProfileImage, domain.StageBodymap:
		fields["reference_url"] = p.ReferenceURL
	}
	raw, err := json.Marshal(fields)
	if err != nil {
		return json.RawMessage(`{}`)
	}
	return raw
}

var _ Observer = (*Advancer)(nil)
