// Command seo-auditor runs the audit orchestration HTTP service.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/mjaros/seo-auditor/internal/aggregation"
	"github.com/mjaros/seo-auditor/internal/api"
	"github.com/mjaros/seo-auditor/internal/audit"
	clocksystem "github.com/mjaros/seo-auditor/internal/clock/system"
	"github.com/mjaros/seo-auditor/internal/config"
	"github.com/mjaros/seo-auditor/internal/dataforseo"
	iduuid "github.com/mjaros/seo-auditor/internal/id/uuid"
	"github.com/mjaros/seo-auditor/internal/logging"
	"github.com/mjaros/seo-auditor/internal/metrics"
	"github.com/mjaros/seo-auditor/internal/security"
	"github.com/mjaros/seo-auditor/internal/storage/memory"
	"github.com/mjaros/seo-auditor/internal/storage/postgres"
	redisstore "github.com/mjaros/seo-auditor/internal/storage/redis"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "seo-auditor: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to config file (optional)")
	flag.Parse()

	// A missing .env file is fine; real deployments set env vars directly.
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()
	zap.ReplaceGlobals(logger)

	metrics.Init()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	jobStore, closeStore, err := buildJobStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	client := dataforseo.New(dataforseo.Config{
		BaseURL:         cfg.Provider.BaseURL,
		Login:           cfg.Provider.Login,
		Password:        cfg.Provider.Password,
		CallbackBaseURL: cfg.Callback.BaseURL,
		Timeout:         cfg.ProviderTimeout(),
		MaxCrawlPages:   cfg.Provider.MaxCrawlPages,
	}, logger)

	prober := security.New(security.Config{Timeout: cfg.ProbeTimeout()}, nil, logger)

	aggregator := aggregation.New(client, prober, jobStore, aggregation.Limits{
		Pages:          cfg.Aggregation.PagesLimit,
		DuplicateTags:  cfg.Aggregation.DuplicateTagsLimit,
		Links:          cfg.Aggregation.LinksLimit,
		Resources:      cfg.Aggregation.ResourcesLimit,
		NonIndexable:   cfg.Aggregation.NonIndexableLimit,
		RedirectChains: cfg.Aggregation.RedirectChainsLimit,
	}, logger)

	server := api.NewServer(
		jobStore,
		client,
		aggregator,
		iduuid.NewGenerator(),
		clocksystem.New(),
		cfg,
		logger,
	)

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening",
			zap.Int("port", cfg.Server.Port),
			zap.String("store", cfg.Store.Provider),
		)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.Info("shutdown complete")
	return nil
}

// buildJobStore selects the configured store backend. The returned closer is
// always safe to call.
func buildJobStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (audit.JobStore, func(), error) {
	switch cfg.Store.Provider {
	case "memory":
		return memory.NewJobStore(), func() {}, nil
	case "redis":
		store, err := redisstore.NewJobStore(redisstore.Config{
			Address:  cfg.Store.Redis.Address,
			Password: cfg.Store.Redis.Password,
			DB:       cfg.Store.Redis.DB,
			TTL:      cfg.RetentionTTL(),
		})
		if err != nil {
			return nil, nil, fmt.Errorf("connect redis store: %w", err)
		}
		closer := func() {
			if err := store.Close(); err != nil {
				logger.Warn("close redis store", zap.Error(err))
			}
		}
		return store, closer, nil
	case "postgres":
		store, err := postgres.NewJobStore(ctx, postgres.Config{
			DSN:      cfg.Store.Postgres.DSN,
			MaxConns: int32(cfg.Store.Postgres.MaxOpenConns),
			MinConns: int32(cfg.Store.Postgres.MinOpenConns),
		})
		if err != nil {
			return nil, nil, fmt.Errorf("connect postgres store: %w", err)
		}
		return store, store.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown store provider: %s", cfg.Store.Provider)
	}
}
