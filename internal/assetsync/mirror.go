package assetsync

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"server/internal/domain"
	"server/internal/infra"
	"server/internal/storage"
)

// maxArtifactBytes caps how much of a provider artifact the mirror will pull.
const maxArtifactBytes = 512 << 20

// Mirror records an asset row for every job that settles ready and, when a
// file store is configured, pulls the provider-hosted artifact into local
// storage. It runs off the settlement path: any failure here is logged and
// ignored because the primary artifact at the provider URL is already usable.
type Mirror struct {
	assets     domain.AssetRepository
	store      *storage.FileStore
	httpClient *http.Client
	logger     infra.Logger
}

func NewMirror(assets domain.AssetRepository, store *storage.FileStore, httpClient *http.Client, logger infra.Logger) *Mirror {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 90 * time.Second}
	}
	return &Mirror{assets: assets, store: store, httpClient: httpClient, logger: logger}
}

// OnJobReady implements the settlement success hook.
func (m *Mirror) OnJobReady(ctx context.Context, job *domain.Job) {
	if job.ResultURL == "" {
		return
	}
	asset := &domain.Asset{
		ID:        uuid.NewString(),
		JobID:     job.ID,
		Kind:      domain.KindForStage(job.Stage),
		SourceURL: job.ResultURL,
		CreatedAt: time.Now().UTC(),
	}

	if m.store != nil {
		key, size, err := m.download(ctx, job)
		if err != nil {
			m.logger.Warn().Err(err).Str("job_id", job.ID).Msg("assetsync: mirror download failed")
		} else {
			asset.StorageKey = key
			asset.Bytes = size
		}
	}

	if err := m.assets.Create(ctx, asset); err != nil {
		m.logger.Error().Err(err).Str("job_id", job.ID).Msg("assetsync: record asset failed")
	}
}

func (m *Mirror) download(ctx context.Context, job *domain.Job) (string, int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, job.ResultURL, nil)
	if err != nil {
		return "", 0, fmt.Errorf("assetsync: build request: %w", err)
	}
	resp, err := m.httpClient.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("assetsync: fetch artifact: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return "", 0, fmt.Errorf("assetsync: fetch artifact: status %d", resp.StatusCode)
	}
	// Artifacts can run to hundreds of megabytes; stream them straight to
	// disk instead of buffering the body.
	key := storageKey(job)
	saved, size, err := m.store.WriteFrom(ctx, key, io.LimitReader(resp.Body, maxArtifactBytes))
	if err != nil {
		return "", 0, err
	}
	return saved, size, nil
}

func storageKey(job *domain.Job) string {
	ext := strings.ToLower(path.Ext(stripQuery(job.ResultURL)))
	if ext == "" {
		if domain.KindForStage(job.Stage) == domain.AssetKindVideo {
			ext = ".mp4"
		} else {
			ext = ".png"
		}
	}
	return fmt.Sprintf("generated/%s/%s%s", job.Stage, job.ID, ext)
}

func stripQuery(rawURL string) string {
	if idx := strings.IndexByte(rawURL, '?'); idx >= 0 {
		return rawURL[:idx]
	}
	return rawURL
}
