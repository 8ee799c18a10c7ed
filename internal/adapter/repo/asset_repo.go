package repo

import (
	"context"

	"server/internal/domain"
	"server/internal/infra"
	"server/internal/sqlinline"
)

// AssetRepositoryPG implements domain.AssetRepository.
type AssetRepositoryPG struct {
	sql infra.SQLExecutor
}

func NewAssetRepository(sql infra.SQLExecutor) *AssetRepositoryPG {
	return &AssetRepositoryPG{sql: sql}
}

func (r *AssetRepositoryPG) Create(ctx context.Context, asset *domain.Asset) error {
	_, err := r.sql.Exec(ctx, sqlinline.QInsertAsset,
		asset.ID,
		asset.JobID,
		asset.Kind,
		asset.SourceURL,
		asset.StorageKey,
		asset.Bytes,
		asset.CreatedAt,
	)
	return err
}

func (r *AssetRepositoryPG) ListByJobID(ctx context.Context, jobID string) ([]domain.Asset, error) {
	rows, err := r.sql.Query(ctx, sqlinline.QSelectAssetsByJobID, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var assets []domain.Asset
	for rows.Next() {
		var a domain.Asset
		if err := rows.Scan(
			&a.ID,
			&a.JobID,
			&a.Kind,
			&a.SourceURL,
			&a.StorageKey,
			&a.Bytes,
			&a.CreatedAt,
		); err != nil {
			return nil, err
		}
		assets = append(assets, a)
	}
	return assets, rows.Err()
}

var _ domain.AssetRepository = (*AssetRepositoryPG)(nil)
