package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Config holds all configuration for the WebGenie server and workers.
type Config struct {
	Server      ServerConfig
	Store       StoreConfig
	Database    DatabaseConfig
	Redis       RedisConfig
	Queue       QueueConfig
	Paths       PathsConfig
	Executor    ExecutorConfig
	Maintenance MaintenanceConfig
	Log         LogConfig
}

type ServerConfig struct {
	Port            int
	Env             string
	APIKey          string
	RateLimitPerMin int
	PollInterval    time.Duration
}

type StoreConfig struct {
	Backend    string
	BadgerPath string
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	URL string
}

type QueueConfig struct {
	Backend     string
	Name        string
	Concurrency int
	// MetricsAddr is where a standalone worker serves /metrics. Empty disables it.
	MetricsAddr string
}

type PathsConfig struct {
	ResultsDir  string
	DatasetsDir string
}

type ExecutorConfig struct {
	Mode           string
	Timeout        time.Duration
	MemoryLimit    string
	DockerRegistry string
	CatalogFile    string
}

type MaintenanceConfig struct {
	RetentionDays    int
	CleanupSchedule  string
	PurgeRecords     bool
	WatchdogSchedule string
	WatchdogGrace    time.Duration
}

type LogConfig struct {
	Level string
	File  string
}

const (
	StoreBackendBadger   = "badger"
	StoreBackendPostgres = "postgres"

	QueueBackendRedis  = "redis"
	QueueBackendMemory = "memory"

	ExecutorModeDocker = "docker"
	ExecutorModeLocal  = "local"
)

// Load reads configuration from environment variables and returns a validated Config.
// Returns an error with a descriptive message if any required value is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:            envInt("WEBGENIE_PORT", 8000),
			Env:             envString("WEBGENIE_ENV", "development"),
			APIKey:          os.Getenv("WEBGENIE_API_KEY"),
			RateLimitPerMin: envInt("RATE_LIMIT_PER_MIN", 120),
			PollInterval:    envDurationSecs("POLL_INTERVAL_SECS", 5*time.Second),
		},
		Store: StoreConfig{
			Backend:    envString("STORE_BACKEND", StoreBackendBadger),
			BadgerPath: envString("BADGER_PATH", "/data/db/jobs"),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		Queue: QueueConfig{
			Backend:     envString("QUEUE_BACKEND", QueueBackendRedis),
			Name:        envString("QUEUE_NAME", "webgenie"),
			Concurrency: envInt("WORKER_CONCURRENCY", 2),
			MetricsAddr: os.Getenv("WORKER_METRICS_ADDR"),
		},
		Paths: PathsConfig{
			ResultsDir:  envString("RESULTS_DIR", "/data/results"),
			DatasetsDir: envString("DATASETS_DIR", "/data/datasets"),
		},
		Executor: ExecutorConfig{
			Mode:           envString("EXECUTOR_MODE", ExecutorModeDocker),
			Timeout:        envDurationSecs("ALGORITHM_TIMEOUT_SECS", 24*time.Hour),
			MemoryLimit:    envString("ALGORITHM_MEMORY_LIMIT", "8g"),
			DockerRegistry: envString("DOCKER_REGISTRY", "grnbeeline"),
			CatalogFile:    os.Getenv("ALGORITHM_CATALOG"),
		},
		Maintenance: MaintenanceConfig{
			RetentionDays:    envInt("RETENTION_DAYS", 7),
			CleanupSchedule:  envString("CLEANUP_SCHEDULE", "@every 6h"),
			PurgeRecords:     envBool("CLEANUP_PURGE_RECORDS", false),
			WatchdogSchedule: envString("WATCHDOG_SCHEDULE", "@every 1m"),
			WatchdogGrace:    envDuration("WATCHDOG_GRACE", 5*time.Minute),
		},
		Log: LogConfig{
			Level: envString("LOG_LEVEL", "info"),
			File:  os.Getenv("LOG_FILE"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Store.Backend {
	case StoreBackendBadger:
		if c.Store.BadgerPath == "" {
			return fmt.Errorf("BADGER_PATH is required when STORE_BACKEND is badger")
		}
	case StoreBackendPostgres:
		if c.Database.URL == "" {
			return fmt.Errorf("DATABASE_URL is required when STORE_BACKEND is postgres")
		}
	default:
		return fmt.Errorf("STORE_BACKEND must be one of badger, postgres; got %q", c.Store.Backend)
	}

	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}
	if !strings.HasPrefix(c.Redis.URL, "redis://") && !strings.HasPrefix(c.Redis.URL, "rediss://") {
		return fmt.Errorf("REDIS_URL must start with redis:// or rediss://, got %q", c.Redis.URL)
	}

	switch c.Queue.Backend {
	case QueueBackendRedis, QueueBackendMemory:
	default:
		return fmt.Errorf("QUEUE_BACKEND must be one of redis, memory; got %q", c.Queue.Backend)
	}
	if c.Queue.Concurrency < 0 {
		return fmt.Errorf("WORKER_CONCURRENCY must be >= 0, got %d", c.Queue.Concurrency)
	}
	if c.Queue.Backend == QueueBackendMemory && c.Queue.Concurrency == 0 {
		return fmt.Errorf("WORKER_CONCURRENCY must be > 0 when QUEUE_BACKEND is memory")
	}

	if c.Paths.ResultsDir == "" {
		return fmt.Errorf("RESULTS_DIR is required")
	}
	if c.Paths.DatasetsDir == "" {
		return fmt.Errorf("DATASETS_DIR is required")
	}

	switch c.Executor.Mode {
	case ExecutorModeDocker, ExecutorModeLocal:
	default:
		return fmt.Errorf("EXECUTOR_MODE must be one of docker, local; got %q", c.Executor.Mode)
	}
	if c.Executor.Timeout <= 0 {
		return fmt.Errorf("ALGORITHM_TIMEOUT_SECS must be positive")
	}

	if c.Maintenance.RetentionDays < 1 {
		return fmt.Errorf("RETENTION_DAYS must be >= 1, got %d", c.Maintenance.RetentionDays)
	}
	if _, err := cron.ParseStandard(c.Maintenance.CleanupSchedule); err != nil {
		return fmt.Errorf("CLEANUP_SCHEDULE is invalid: %w", err)
	}
	if _, err := cron.ParseStandard(c.Maintenance.WatchdogSchedule); err != nil {
		return fmt.Errorf("WATCHDOG_SCHEDULE is invalid: %w", err)
	}

	return nil
}

// Retention is the age after which job directories are swept.
func (c MaintenanceConfig) Retention() time.Duration {
	return time.Duration(c.RetentionDays) * 24 * time.Hour
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

func envDurationSecs(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	secs, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return time.Duration(secs) * time.Second
}
