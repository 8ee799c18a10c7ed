package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"server/internal/adapter/repo"
	"server/internal/assetsync"
	"server/internal/domain"
	"server/internal/infra"
	"server/internal/infra/credentials"
	"server/internal/orchestrator"
	"server/internal/providers/kling"
	"server/internal/storage"
)

const claimInterval = 2 * time.Second

// pollWorker claims submitted jobs from Postgres and runs one polling loop
// per claimed job. The lease column keeps concurrent workers off the same job.
type pollWorker struct {
	jobs     *repo.JobRepositoryPG
	poller   *orchestrator.Poller
	launcher *orchestrator.Launcher
	policy   infra.PollingConfig
	logger   infra.Logger
	wg       sync.WaitGroup
	running  sync.Map
}

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: db connection failed")
	}
	defer pool.Close()

	rdb, err := infra.NewRedisClient(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: redis connection failed")
	}
	defer rdb.Close()

	runner := infra.NewSQLRunner(pool, logger)
	jobs := repo.NewJobRepository(runner)
	pipelines := repo.NewPipelineRepository(runner)
	assets := repo.NewAssetRepository(runner)

	klingKey := strings.TrimSpace(cfg.KlingAPIKey)
	if klingKey == "" {
		credStore := credentials.NewStore(runner)
		keyFromStore, err := credStore.KlingAPIKey(ctx)
		if err != nil {
			logger.Warn().Err(err).Msg("worker: failed to load kling api key from store")
		} else {
			klingKey = keyFromStore
		}
	}
	klingClient, err := kling.NewClient(kling.Options{
		APIKey:         klingKey,
		BaseURL:        cfg.KlingBaseURL,
		Logger:         &logger,
		RequestTimeout: cfg.KlingHTTPWait,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: failed to configure kling client")
	}

	fileStore, err := storage.NewFileStore(cfg.StoragePath)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: failed to configure storage")
	}

	settler := orchestrator.NewSettler(jobs, logger)
	callbackURL := strings.TrimRight(cfg.CallbackBaseURL, "/") + "/v1/callbacks/kling?token=" + cfg.CallbackToken
	launcher := orchestrator.NewLauncher(jobs, klingClient, settler, callbackURL, cfg.SubmitTimeout, logger)
	advancer := orchestrator.NewAdvancer(jobs, pipelines, launcher, cfg.Polling.MaxAttempts, logger)
	mirror := assetsync.NewMirror(assets, fileStore, nil, logger)
	settler.SetSuccessHook(mirror)
	settler.AddObserver(advancer)

	cancels := orchestrator.NewCancelRegistry(rdb)
	poller := orchestrator.NewPoller(jobs, klingClient, settler, cancels, cfg.Polling, logger)

	w := &pollWorker{
		jobs:     jobs,
		poller:   poller,
		launcher: launcher,
		policy:   cfg.Polling,
		logger:   logger,
	}
	if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal().Err(err).Msg("worker: stopped with error")
	}
	w.wg.Wait()
	logger.Info().Msg("worker: stopped")
}

func (w *pollWorker) Run(ctx context.Context) error {
	w.logger.Info().Msg("worker: started")
	ticker := time.NewTicker(claimInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		claimed, err := w.jobs.ClaimPollable(ctx, w.policy.LeaseSeconds, w.policy.ClaimBatchSize)
		if err != nil {
			w.logger.Error().Err(err).Msg("worker: claim failed")
			continue
		}
		for i := range claimed {
			w.handle(ctx, claimed[i])
		}

		stale, err := w.jobs.ClaimStaleQueued(ctx, w.policy.QueuedGraceSecs, w.policy.LeaseSeconds, w.policy.ClaimBatchSize)
		if err != nil {
			w.logger.Error().Err(err).Msg("worker: claim stale queued failed")
			continue
		}
		for i := range stale {
			w.resubmit(ctx, stale[i])
		}
	}
}

// resubmit retries a submission that never reached the provider. The lease
// held on the job doubles as the backoff between retries, so failures here
// just wait for the next claim.
func (w *pollWorker) resubmit(ctx context.Context, job domain.Job) {
	if _, loaded := w.running.LoadOrStore(job.ID, struct{}{}); loaded {
		return
	}
	w.wg.Add(1)
	go func(job domain.Job) {
		defer w.wg.Done()
		defer w.running.Delete(job.ID)
		w.logger.Info().Str("job_id", job.ID).Str("stage", string(job.Stage)).Int("attempts", job.Attempts).Msg("worker: resubmitting queued job")
		if err := w.launcher.Resubmit(ctx, &job, w.policy.ResubmitAttempts); err != nil {
			w.logger.Error().Err(err).Str("job_id", job.ID).Msg("worker: resubmission failed")
			return
		}
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := w.jobs.ReleaseLease(releaseCtx, job.ID); err != nil {
			w.logger.Error().Err(err).Str("job_id", job.ID).Msg("worker: release lease failed")
		}
	}(job)
}

func (w *pollWorker) handle(ctx context.Context, job domain.Job) {
	// The lease keeps other workers away, but this process can re-claim a
	// job whose poll loop is still running once the lease expires.
	if _, loaded := w.running.LoadOrStore(job.ID, struct{}{}); loaded {
		return
	}
	w.wg.Add(1)
	go func(job domain.Job) {
		defer w.wg.Done()
		defer w.running.Delete(job.ID)
		w.logger.Info().Str("job_id", job.ID).Str("stage", string(job.Stage)).Msg("worker: polling job")
		if err := w.poller.Run(ctx, &job); err != nil && !errors.Is(err, context.Canceled) {
			w.logger.Error().Err(err).Str("job_id", job.ID).Msg("worker: poll loop failed")
		}
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := w.jobs.ReleaseLease(releaseCtx, job.ID); err != nil {
			w.logger.Error().Err(err).Str("job_id", job.ID).Msg("worker: release lease failed")
		}
	}(job)
}
