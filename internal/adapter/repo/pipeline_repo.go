package repo

import (
	"context"

	"server/internal/domain"
	"server/internal/infra"
	"server/internal/sqlinline"
)

// PipelineRepositoryPG implements domain.PipelineRepository.
type PipelineRepositoryPG struct {
	sql infra.SQLExecutor
}

func NewPipelineRepository(sql infra.SQLExecutor) *PipelineRepositoryPG {
	return &PipelineRepositoryPG{sql: sql}
}

func (r *PipelineRepositoryPG) Create(ctx context.Context, p *domain.Pipeline) error {
	_, err := r.sql.Exec(ctx, sqlinline.QInsertPipeline,
		p.ID,
		p.UserID,
		p.Kind,
		p.Status,
		p.ReferenceURL,
		p.CreatedAt,
	)
	return err
}

func (r *PipelineRepositoryPG) GetByID(ctx context.Context, pipelineID string) (*domain.Pipeline, error) {
	row := r.sql.QueryRow(ctx, sqlinline.QSelectPipelineByID, pipelineID)
	var p domain.Pipeline
	if err := row.Scan(
		&p.ID,
		&p.UserID,
		&p.Kind,
		&p.Status,
		&p.ReferenceURL,
		&p.FailureStage,
		&p.CreatedAt,
		&p.UpdatedAt,
	); err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (r *PipelineRepositoryPG) SetReferenceURL(ctx context.Context, pipelineID, referenceURL string) error {
	_, err := r.sql.Exec(ctx, sqlinline.QSetPipelineReferenceURL, pipelineID, referenceURL)
	return err
}

func (r *PipelineRepositoryPG) SetStatus(ctx context.Context, pipelineID string, status domain.PipelineStatus, failureStage domain.Stage) (bool, error) {
	tag, err := r.sql.Exec(ctx, sqlinline.QSetPipelineStatus, pipelineID, status, string(failureStage))
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

var _ domain.PipelineRepository = (*PipelineRepositoryPG)(nil)
