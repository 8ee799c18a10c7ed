package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"server/internal/adapter/repo"
	"server/internal/assetsync"
	"server/internal/http/handlers"
	httpapi "server/internal/http/httpapi"
	"server/internal/infra"
	"server/internal/infra/credentials"
	"server/internal/orchestrator"
	"server/internal/providers/kling"
	"server/internal/storage"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	if err := infra.RunMigrations(cfg.DatabaseURL, "migrations"); err != nil {
		logger.Fatal().Err(err).Msg("migrations failed")
	}

	ctx := context.Background()
	dbpool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect database")
	}
	defer dbpool.Close()

	rdb, err := infra.NewRedisClient(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect redis")
	}
	defer rdb.Close()

	runner := infra.NewSQLRunner(dbpool, logger)
	jobs := repo.NewJobRepository(runner)
	pipelines := repo.NewPipelineRepository(runner)
	assets := repo.NewAssetRepository(runner)

	klingKey := strings.TrimSpace(cfg.KlingAPIKey)
	if klingKey == "" {
		credStore := credentials.NewStore(runner)
		keyFromStore, err := credStore.KlingAPIKey(ctx)
		if err != nil {
			logger.Warn().Err(err).Msg("failed to load kling api key from store")
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
		logger.Fatal().Err(err).Msg("failed to configure kling client")
	}

	fileStore, err := newFileStore(cfg.StoragePath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure storage")
	}

	settler := orchestrator.NewSettler(jobs, logger)
	callbackURL := strings.TrimRight(cfg.CallbackBaseURL, "/") + "/v1/callbacks/kling?token=" + cfg.CallbackToken
	launcher := orchestrator.NewLauncher(jobs, klingClient, settler, callbackURL, cfg.SubmitTimeout, logger)
	advancer := orchestrator.NewAdvancer(jobs, pipelines, launcher, cfg.Polling.MaxAttempts, logger)
	mirror := assetsync.NewMirror(assets, fileStore, &http.Client{Timeout: 5 * time.Minute}, logger)
	settler.SetSuccessHook(mirror)
	settler.AddObserver(advancer)

	app := &handlers.App{
		Jobs:            jobs,
		Pipelines:       pipelines,
		Assets:          assets,
		Launcher:        launcher,
		Advancer:        advancer,
		Settler:         settler,
		Cancels:         orchestrator.NewCancelRegistry(rdb),
		CallbackToken:   cfg.CallbackToken,
		MaxPollAttempts: cfg.Polling.MaxAttempts,
		Logger:          logger,
	}

	router := httpapi.NewRouter(app, httpapi.Options{
		JWTSecret:       cfg.JWTSecret,
		AllowedOrigins:  cfg.AllowedOrigins,
		DefaultLocale:   cfg.DefaultLocale,
		RateLimitPerMin: cfg.RateLimitPerMin,
		Logger:          logger,
	})

	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().Msgf("API listening on :%s", cfg.Port)
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	logger.Info().Msg("server stopped")
}

func newFileStore(path string) (*storage.FileStore, error) {
	if path == "" {
		path = "./storage"
	}
	if !filepath.IsAbs(path) {
		if abs, err := filepath.Abs(path); err == nil {
			path = abs
		}
	}
	return storage.NewFileStore(path)
}
