package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/kiranshivaraju/webgenie/internal/queue"
	"github.com/kiranshivaraju/webgenie/internal/store"
	"github.com/kiranshivaraju/webgenie/pkg/models"
)

// Watchdog fails jobs whose task can no longer report back: the task ended
// or vanished while the job is still RUNNING, a started task outlived the
// execution timeout, or a SUBMITTED job was never handed to the queue.
// Tasks still waiting in the queue are left alone.
type Watchdog struct {
	svc     *Service
	timeout time.Duration
	grace   time.Duration
	now     func() time.Time
}

func NewWatchdog(svc *Service, timeout, grace time.Duration) *Watchdog {
	return &Watchdog{
		svc:     svc,
		timeout: timeout,
		grace:   grace,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Reconcile scans active jobs once and returns how many it failed.
func (w *Watchdog) Reconcile(ctx context.Context) (int, error) {
	var result *multierror.Error
	fixed := 0

	running, err := w.collect(ctx, models.JobStatusRunning)
	if err != nil {
		return 0, err
	}
	for _, job := range running {
		kind, reason, err := w.checkRunning(ctx, job)
		if err != nil {
			result = multierror.Append(result, err)
			continue
		}
		if kind == models.ErrorKindNone {
			continue
		}
		if w.fail(ctx, job, kind, reason) {
			fixed++
		}
	}

	submitted, err := w.collect(ctx, models.JobStatusSubmitted)
	if err != nil {
		result = multierror.Append(result, err)
		return fixed, result.ErrorOrNil()
	}
	for _, job := range submitted {
		if job.TaskHandle != nil || w.now().Sub(job.CreatedAt) < w.grace {
			continue
		}
		if w.fail(ctx, job, models.ErrorKindDispatch, "job was never dispatched to a worker") {
			fixed++
		}
	}

	if fixed > 0 {
		slog.Info("watchdog reconciled stuck jobs", "count", fixed)
	}
	return fixed, result.ErrorOrNil()
}

func (w *Watchdog) checkRunning(ctx context.Context, job *models.Job) (models.ErrorKind, string, error) {
	if job.TaskHandle == nil {
		return models.ErrorKindLost, "job has no task handle", nil
	}

	state, err := w.svc.queue.State(ctx, *job.TaskHandle)
	switch {
	case errors.Is(err, queue.ErrTaskNotFound):
		return models.ErrorKindLost, "task is no longer known to the queue", nil
	case err != nil:
		return models.ErrorKindNone, "", fmt.Errorf("task state for %s: %w", job.ID, err)
	case state.IsTerminal():
		return models.ErrorKindLost, fmt.Sprintf("task %s without reporting a result", state), nil
	case state != queue.TaskStarted:
		// Still waiting for a worker; the execution clock has not started.
		return models.ErrorKindNone, "", nil
	}

	// The runner's RUNNING write at execution start refreshes updated_at,
	// so it bounds how long the algorithm has been running.
	if w.now().Sub(job.UpdatedAt) > w.timeout+w.grace {
		if err := w.svc.queue.Revoke(ctx, *job.TaskHandle); err != nil && !errors.Is(err, queue.ErrTaskNotFound) {
			slog.Warn("watchdog revoke failed", "job_id", job.ID, "error", err)
		}
		return models.ErrorKindTimeout, fmt.Sprintf("algorithm timed out after %s", w.timeout), nil
	}
	return models.ErrorKindNone, "", nil
}

// fail writes FAILED only if the job is still in the status it was seen in,
// so an outcome recorded in the meantime wins.
func (w *Watchdog) fail(ctx context.Context, job *models.Job, kind models.ErrorKind, reason string) bool {
	_, err := w.svc.UpdateStatus(ctx, job.ID, models.JobStatusFailed,
		store.WithErrorMessage(reason),
		store.WithErrorKind(kind),
		store.WithExpectedStatus(job.Status),
	)
	if err != nil {
		if !errors.Is(err, ErrConflict) {
			slog.Error("watchdog update failed", "job_id", job.ID, "error", err)
		}
		return false
	}
	slog.Warn("watchdog failed stuck job", "job_id", job.ID, "error_kind", kind, "reason", reason)
	w.svc.metrics.Reconciled(kind)
	return true
}

func (w *Watchdog) collect(ctx context.Context, status models.JobStatus) ([]*models.Job, error) {
	var out []*models.Job
	filter := store.JobFilter{Status: status, Limit: store.MaxListLimit}
	for {
		page, _, err := w.svc.store.ListJobs(ctx, filter)
		if err != nil {
			return nil, fmt.Errorf("list %s jobs: %w", status, err)
		}
		out = append(out, page...)
		if len(page) < filter.Limit {
			return out, nil
		}
		filter.Skip += filter.Limit
	}
}
