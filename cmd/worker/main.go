// Package main runs inference workers outside the API server. Workers share
// job state through postgres and receive tasks from the redis queue.
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

	"github.com/kiranshivaraju/webgenie/internal/bootstrap"
	"github.com/kiranshivaraju/webgenie/internal/cache"
	"github.com/kiranshivaraju/webgenie/internal/config"
	"github.com/kiranshivaraju/webgenie/internal/dataset"
	"github.com/kiranshivaraju/webgenie/internal/jobs"
	"github.com/kiranshivaraju/webgenie/internal/metrics"
	"github.com/kiranshivaraju/webgenie/internal/queue"
)

const shutdownTimeout = 30 * time.Second

func main() {
	if err := run(); err != nil {
		slog.Error("worker failed", "error", err)
		os.Exit(1)
	}
}

// checkStandalone rejects backends that only work inside the server process.
func checkStandalone(cfg *config.Config) error {
	if cfg.Store.Backend != config.StoreBackendPostgres {
		return fmt.Errorf("standalone workers need STORE_BACKEND=postgres, got %q", cfg.Store.Backend)
	}
	if cfg.Queue.Backend != config.QueueBackendRedis {
		return fmt.Errorf("standalone workers need QUEUE_BACKEND=redis, got %q", cfg.Queue.Backend)
	}
	if cfg.Queue.Concurrency < 1 {
		return fmt.Errorf("WORKER_CONCURRENCY must be >= 1, got %d", cfg.Queue.Concurrency)
	}
	return nil
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := checkStandalone(cfg); err != nil {
		return err
	}
	logger, closeLog := config.SetupLogger(cfg.Log)
	defer closeLog()
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := bootstrap.OpenStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	rdb, err := bootstrap.OpenRedis(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	defer rdb.Close()

	q, err := bootstrap.NewQueue(cfg.Queue, rdb)
	if err != nil {
		return err
	}

	exec, err := bootstrap.NewExecutor(cfg.Executor)
	if err != nil {
		return err
	}
	defer exec.Close()

	m := metrics.New()
	svc := jobs.NewService(st, q, exec.Registry, dataset.NewFileResolver(cfg.Paths.DatasetsDir), cfg.Paths.ResultsDir).
		WithCache(cache.NewRedisCacheFromClient(rdb)).
		WithMetrics(m)

	pool := queue.NewPool(q, cfg.Queue.Concurrency, bootstrap.PoolTimeLimit(cfg.Executor))
	jobs.NewRunner(svc, exec.Dispatcher).Register(pool)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("worker started",
			"queue", cfg.Queue.Name,
			"concurrency", cfg.Queue.Concurrency,
			"executor", cfg.Executor.Mode,
		)
		return pool.Run(gctx)
	})

	if cfg.Queue.MetricsAddr != "" {
		srv := &http.Server{
			Addr:              cfg.Queue.MetricsAddr,
			Handler:           metricsMux(m),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			slog.Info("metrics listening", "addr", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	slog.Info("worker stopped")
	return nil
}

func metricsMux(m *metrics.Metrics) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", m.Handler())
	return mux
}
