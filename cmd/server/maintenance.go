package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kiranshivaraju/webgenie/internal/cleanup"
	"github.com/kiranshivaraju/webgenie/internal/config"
	"github.com/kiranshivaraju/webgenie/internal/jobs"
	"github.com/kiranshivaraju/webgenie/internal/metrics"
	"github.com/kiranshivaraju/webgenie/internal/store"
)

// newMaintenance schedules the retention sweep and the watchdog. The
// watchdog also runs once immediately so jobs orphaned by a previous
// process are failed at startup.
func newMaintenance(cfg *config.Config, svc *jobs.Service, st store.Store, m *metrics.Metrics) (*cleanup.Scheduler, error) {
	sweeper := cleanup.NewSweeper(cfg.Paths.ResultsDir, cfg.Maintenance.Retention(), st, cfg.Maintenance.PurgeRecords).
		WithMetrics(m)
	watchdog := jobs.NewWatchdog(svc, cfg.Executor.Timeout, cfg.Maintenance.WatchdogGrace)

	s := cleanup.NewScheduler()
	if err := s.Add("retention-sweep", cfg.Maintenance.CleanupSchedule, func(ctx context.Context) error {
		_, err := sweeper.Sweep(ctx)
		return err
	}); err != nil {
		return nil, fmt.Errorf("schedule retention sweep: %w", err)
	}

	reconcile := func(ctx context.Context) error {
		n, err := watchdog.Reconcile(ctx)
		if n > 0 {
			slog.Warn("watchdog failed stuck jobs", "count", n)
		}
		return err
	}
	if err := s.Add("watchdog", cfg.Maintenance.WatchdogSchedule, reconcile); err != nil {
		return nil, fmt.Errorf("schedule watchdog: %w", err)
	}
	if err := reconcile(context.Background()); err != nil {
		slog.Error("startup reconcile", "error", err)
	}
	return s, nil
}
