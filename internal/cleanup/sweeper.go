// Package cleanup removes expired job result directories and schedules the
// periodic maintenance tasks.
package cleanup

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/kiranshivaraju/webgenie/internal/metrics"
	"github.com/kiranshivaraju/webgenie/internal/store"
)

const jobDirPrefix = "job-"

// Report summarizes one sweep.
type Report struct {
	DeletedCount  int   `json:"deleted_count"`
	FreedBytes    int64 `json:"freed_bytes"`
	SkippedActive int   `json:"skipped_active"`
	PurgedRecords int   `json:"purged_records"`
}

// Sweeper deletes job directories whose last modification is older than the
// retention window. Directories of jobs that are still active are kept no
// matter their age.
type Sweeper struct {
	resultsDir string
	retention  time.Duration
	store      store.Store
	purge      bool
	metrics    *metrics.Metrics
	now        func() time.Time
}

// NewSweeper creates a sweeper. With purge set, the job records of deleted
// directories are removed from the store as well.
func NewSweeper(resultsDir string, retention time.Duration, st store.Store, purge bool) *Sweeper {
	return &Sweeper{
		resultsDir: resultsDir,
		retention:  retention,
		store:      st,
		purge:      purge,
		now:        time.Now,
	}
}

func (s *Sweeper) WithMetrics(m *metrics.Metrics) *Sweeper {
	s.metrics = m
	return s
}

// Sweep runs one pass. Failures on individual directories do not stop the
// pass; they are returned together.
func (s *Sweeper) Sweep(ctx context.Context) (*Report, error) {
	report := &Report{}
	entries, err := os.ReadDir(s.resultsDir)
	if errors.Is(err, fs.ErrNotExist) {
		return report, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read results dir: %w", err)
	}

	cutoff := s.now().Add(-s.retention)
	var result *multierror.Error

	for _, entry := range entries {
		if ctx.Err() != nil {
			result = multierror.Append(result, ctx.Err())
			break
		}
		if !entry.IsDir() || !strings.HasPrefix(entry.Name(), jobDirPrefix) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			result = multierror.Append(result, err)
			continue
		}
		if !info.ModTime().Before(cutoff) {
			continue
		}

		jobID := entry.Name()
		job, err := s.store.GetJob(ctx, jobID)
		switch {
		case errors.Is(err, store.ErrNotFound):
		case err != nil:
			result = multierror.Append(result, fmt.Errorf("look up %s: %w", jobID, err))
			continue
		case !job.Status.IsTerminal():
			report.SkippedActive++
			continue
		}

		dir := filepath.Join(s.resultsDir, jobID)
		size := dirSize(dir)
		if err := os.RemoveAll(dir); err != nil {
			result = multierror.Append(result, fmt.Errorf("remove %s: %w", dir, err))
			continue
		}
		report.DeletedCount++
		report.FreedBytes += size
		slog.Info("deleted expired results", "job_id", jobID, "bytes", size)

		if s.purge && job != nil {
			if _, err := s.store.DeleteJob(ctx, jobID); err != nil {
				result = multierror.Append(result, fmt.Errorf("purge %s: %w", jobID, err))
				continue
			}
			report.PurgedRecords++
		}
	}

	s.metrics.Swept(report.DeletedCount, report.FreedBytes)
	slog.Info("cleanup completed",
		"deleted", report.DeletedCount,
		"freed_mb", float64(report.FreedBytes)/(1024*1024),
		"skipped_active", report.SkippedActive,
		"purged", report.PurgedRecords,
	)
	return report, result.ErrorOrNil()
}

func dirSize(dir string) int64 {
	var size int64
	_ = filepath.WalkDir(dir, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.Type().IsRegular() {
			if info, err := d.Info(); err == nil {
				size += info.Size()
			}
		}
		return nil
	})
	return size
}
