// Package main is the entrypoint for the webgenie API server. Unless
// WORKER_CONCURRENCY is 0 it also runs inference workers in-process.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kiranshivaraju/webgenie/internal/api"
	"github.com/kiranshivaraju/webgenie/internal/api/handler"
	mw "github.com/kiranshivaraju/webgenie/internal/api/middleware"
	"github.com/kiranshivaraju/webgenie/internal/bootstrap"
	"github.com/kiranshivaraju/webgenie/internal/cache"
	"github.com/kiranshivaraju/webgenie/internal/config"
	"github.com/kiranshivaraju/webgenie/internal/dataset"
	"github.com/kiranshivaraju/webgenie/internal/jobs"
	"github.com/kiranshivaraju/webgenie/internal/metrics"
	"github.com/kiranshivaraju/webgenie/internal/queue"
	"github.com/kiranshivaraju/webgenie/internal/registry"
)

const shutdownTimeout = 30 * time.Second

func main() {
	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load config, fail fast on invalid config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger, closeLog := config.SetupLogger(cfg.Log)
	defer closeLog()
	slog.SetDefault(logger)
	slog.Info("config loaded",
		"env", cfg.Server.Env,
		"store", cfg.Store.Backend,
		"queue", cfg.Queue.Backend,
		"executor", cfg.Executor.Mode,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Metadata store
	st, err := bootstrap.OpenStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	// 3. Redis: cache, rate limits and (optionally) the task queue
	rdb, err := bootstrap.OpenRedis(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	defer rdb.Close()
	redisCache := cache.NewRedisCacheFromClient(rdb)
	slog.Info("redis connected")

	q, err := bootstrap.NewQueue(cfg.Queue, rdb)
	if err != nil {
		return err
	}

	// 4. Algorithms and execution
	exec, err := bootstrap.NewExecutor(cfg.Executor)
	if err != nil {
		return err
	}
	defer exec.Close()

	// 5. Job lifecycle
	m := metrics.New()
	datasets := dataset.NewFileResolver(cfg.Paths.DatasetsDir)
	svc := jobs.NewService(st, q, exec.Registry, datasets, cfg.Paths.ResultsDir).
		WithCache(redisCache).
		WithMetrics(m)

	// 6. Maintenance: retention sweep and stuck-job watchdog
	scheduler, err := newMaintenance(cfg, svc, st, m)
	if err != nil {
		return err
	}

	// 7. HTTP
	auth, err := mw.NewAuth(cfg.Server.APIKey)
	if err != nil {
		return fmt.Errorf("configure auth: %w", err)
	}
	if !auth.Enabled() {
		slog.Warn("WEBGENIE_API_KEY is not set, API is unauthenticated")
	}
	router := api.NewRouter(newDependencies(cfg, svc, exec.Registry, st, redisCache, m, auth))

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	if cfg.Queue.Concurrency > 0 {
		pool := queue.NewPool(q, cfg.Queue.Concurrency, bootstrap.PoolTimeLimit(cfg.Executor))
		jobs.NewRunner(svc, exec.Dispatcher).Register(pool)
		g.Go(func() error {
			slog.Info("workers started", "concurrency", cfg.Queue.Concurrency)
			return pool.Run(gctx)
		})
	} else {
		slog.Info("no in-process workers, tasks are left to external workers")
	}

	scheduler.Start()

	g.Go(func() error {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutdown signal received, draining connections...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		scheduler.Stop(shutdownCtx)
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	slog.Info("server stopped gracefully")
	return nil
}

func newDependencies(cfg *config.Config, svc *jobs.Service, reg *registry.Registry,
	st handler.Pinger, c cache.Cache, m *metrics.Metrics, auth *mw.Auth) api.Dependencies {
	return api.Dependencies{
		Auth:      auth,
		RateLimit: mw.NewRateLimit(c, cfg.Server.RateLimitPerMin),

		HealthHandler: handler.NewHealthHandler(
			handler.HealthCheck{Name: "database", Pinger: st},
			handler.HealthCheck{Name: "cache", Pinger: c},
		),
		Metrics: m.Handler(),

		SubmitJob: handler.NewSubmitJobHandler(svc),
		ListJobs:  handler.NewListJobsHandler(svc),
		GetJob:    handler.NewGetJobHandler(svc),
		JobLogs:   handler.NewJobLogsHandler(svc),
		CancelJob: handler.NewCancelJobHandler(svc),
		WatchJob:  handler.NewWatchJobHandler(svc, cfg.Server.PollInterval),

		JobResult:  handler.NewResultHandler(svc),
		JobSummary: handler.NewSummaryHandler(svc),
		JobNetwork: handler.NewNetworkHandler(svc),
		Compare:    handler.NewCompareHandler(svc),

		ListAlgorithms: handler.NewListAlgorithmsHandler(reg),
		GetAlgorithm:   handler.NewGetAlgorithmHandler(reg),
		CheckImage:     handler.NewCheckImageHandler(reg),
	}
}
