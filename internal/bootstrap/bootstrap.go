// Package bootstrap builds the long-lived dependencies shared by the server
// and worker processes from a loaded Config.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kiranshivaraju/webgenie/internal/config"
	"github.com/kiranshivaraju/webgenie/internal/executor"
	"github.com/kiranshivaraju/webgenie/internal/queue"
	"github.com/kiranshivaraju/webgenie/internal/registry"
	"github.com/kiranshivaraju/webgenie/internal/store"
)

// timeLimitMargin lets the dispatcher's own timeout fire, and record a
// timeout error kind, before the pool hard-cancels the task.
const timeLimitMargin = time.Minute

// memoryQueueCapacity bounds the in-process backlog.
const memoryQueueCapacity = 1024

// OpenStore connects the configured metadata store. Postgres migrations are
// applied before the store is returned.
func OpenStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	switch cfg.Store.Backend {
	case config.StoreBackendPostgres:
		pool, err := store.Connect(ctx, cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("connect database: %w", err)
		}
		if err := store.RunMigrations(cfg.Database.URL); err != nil {
			pool.Close()
			return nil, fmt.Errorf("run migrations: %w", err)
		}
		slog.Info("database connected, migrations applied")
		return store.NewPostgresStore(pool), nil
	case config.StoreBackendBadger:
		st, err := store.OpenBadger(cfg.Store.BadgerPath)
		if err != nil {
			return nil, err
		}
		slog.Info("badger store opened", "path", cfg.Store.BadgerPath)
		return st, nil
	}
	return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
}

// OpenRedis parses REDIS_URL and checks the server answers.
func OpenRedis(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// NewQueue returns the configured task queue. The memory queue only works
// when the workers run inside the same process.
func NewQueue(cfg config.QueueConfig, client *redis.Client) (queue.Backend, error) {
	switch cfg.Backend {
	case config.QueueBackendRedis:
		if client == nil {
			return nil, errors.New("redis queue needs a redis client")
		}
		return queue.NewRedisQueue(client, cfg.Name), nil
	case config.QueueBackendMemory:
		return queue.NewMemoryQueue(memoryQueueCapacity), nil
	}
	return nil, fmt.Errorf("unknown queue backend %q", cfg.Backend)
}

// Executor bundles the algorithm registry with the dispatcher that runs it.
type Executor struct {
	Registry   *registry.Registry
	Dispatcher *executor.Dispatcher
	docker     *executor.DockerClient
}

// NewExecutor loads the algorithm catalog and, in docker mode, connects to
// the docker daemon for image checks and container cleanup.
func NewExecutor(cfg config.ExecutorConfig) (*Executor, error) {
	reg := registry.New(cfg.DockerRegistry)
	if cfg.CatalogFile != "" {
		if err := reg.LoadCatalog(cfg.CatalogFile); err != nil {
			return nil, fmt.Errorf("load algorithm catalog: %w", err)
		}
	}

	e := &Executor{Registry: reg}
	var containers executor.ContainerManager
	if cfg.Mode == config.ExecutorModeDocker {
		docker, err := executor.NewDockerClient()
		if err != nil {
			return nil, fmt.Errorf("create docker client: %w", err)
		}
		e.docker = docker
		containers = docker
		reg.WithImageChecker(docker)
	}
	e.Dispatcher = executor.New(cfg, reg, containers)
	slog.Info("executor ready", "mode", cfg.Mode, "algorithms", len(reg.List()), "timeout", cfg.Timeout)
	return e, nil
}

func (e *Executor) Close() error {
	if e.docker == nil {
		return nil
	}
	return e.docker.Close()
}

// PoolTimeLimit is the hard per-task ceiling given to the worker pool.
func PoolTimeLimit(cfg config.ExecutorConfig) time.Duration {
	return cfg.Timeout + timeLimitMargin
}
