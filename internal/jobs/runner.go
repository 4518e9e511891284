package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/avast/retry-go"

	"github.com/kiranshivaraju/webgenie/internal/executor"
	"github.com/kiranshivaraju/webgenie/internal/metrics"
	"github.com/kiranshivaraju/webgenie/internal/queue"
	"github.com/kiranshivaraju/webgenie/internal/store"
	"github.com/kiranshivaraju/webgenie/pkg/models"
)

// Dispatcher executes one algorithm run.
type Dispatcher interface {
	Run(ctx context.Context, req executor.Request) (*executor.Result, error)
}

// Runner is the queue handler for TaskInference.
type Runner struct {
	svc        *Service
	dispatcher Dispatcher
	metrics    *metrics.Metrics
	retryDelay time.Duration
}

func NewRunner(svc *Service, dispatcher Dispatcher) *Runner {
	return &Runner{
		svc:        svc,
		dispatcher: dispatcher,
		metrics:    svc.metrics,
		retryDelay: 200 * time.Millisecond,
	}
}

// Register binds the runner to pool.
func (r *Runner) Register(pool *queue.Pool) {
	pool.Register(TaskInference, r.Handle)
}

// Handle runs the job named in the task payload and records its outcome.
func (r *Runner) Handle(ctx context.Context, task queue.Task) error {
	var p InferencePayload
	if err := json.Unmarshal(task.Payload, &p); err != nil {
		return fmt.Errorf("decode inference payload: %w", err)
	}
	log := slog.With("job_id", p.JobID, "algorithm", p.Algorithm, "task_handle", task.ID)

	_, err := r.svc.UpdateStatus(ctx, p.JobID, models.JobStatusRunning,
		store.WithTaskHandle(task.ID),
		store.WithProgress(10),
		store.WithExpectedStatus(models.JobStatusSubmitted, models.JobStatusRunning),
	)
	if errors.Is(err, ErrConflict) || errors.Is(err, ErrNotFound) {
		log.Info("skipping job that is no longer runnable", "reason", err)
		return nil
	}
	if err != nil {
		return fmt.Errorf("mark job running: %w", err)
	}

	r.metrics.TaskStarted()
	defer r.metrics.TaskDone()

	started := time.Now()
	res, runErr := r.dispatcher.Run(ctx, executor.Request{
		JobID:       p.JobID,
		Algorithm:   p.Algorithm,
		DatasetPath: p.DatasetPath,
		JobDir:      p.JobDir,
		Parameters:  p.Parameters,
	})

	cause := context.Cause(ctx)
	switch {
	case runErr == nil:
		r.metrics.ObserveExecution(p.Algorithm, models.JobStatusCompleted, time.Since(started))
		r.metrics.SkippedRows(res.Metrics.SkippedRows)
		return r.finish(ctx, log, p.JobID, models.JobStatusCompleted,
			store.WithProgress(100),
			store.WithMetrics(res.Metrics),
		)

	case errors.Is(cause, queue.ErrRevoked):
		log.Info("task revoked")
		return runErr

	case errors.Is(cause, queue.ErrTimeLimit):
		log.Warn("task time limit exceeded")
		_ = r.finish(ctx, log, p.JobID, models.JobStatusFailed,
			store.WithErrorMessage("algorithm timed out: task time limit exceeded"),
			store.WithErrorKind(models.ErrorKindTimeout),
		)
		return runErr

	case ctx.Err() != nil:
		log.Warn("worker stopped during execution")
		_ = r.finish(ctx, log, p.JobID, models.JobStatusFailed,
			store.WithErrorMessage("worker shut down during execution"),
			store.WithErrorKind(models.ErrorKindInternal),
		)
		return runErr
	}

	r.metrics.ObserveExecution(p.Algorithm, models.JobStatusFailed, time.Since(started))
	log.Warn("algorithm failed", "error", runErr)
	_ = r.finish(ctx, log, p.JobID, models.JobStatusFailed,
		store.WithErrorMessage(runErr.Error()),
		store.WithErrorKind(executor.KindOf(runErr)),
	)
	return runErr
}

// finish records a terminal status, retrying transient store failures. It
// writes with a context detached from ctx so a cancelled task still lands.
func (r *Runner) finish(ctx context.Context, log *slog.Logger, jobID string, status models.JobStatus, opts ...store.JobUpdateOption) error {
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()

	opts = append(opts, store.WithExpectedStatus(models.JobStatusSubmitted, models.JobStatusRunning))
	err := retry.Do(
		func() error {
			_, err := r.svc.UpdateStatus(wctx, jobID, status, opts...)
			return err
		},
		retry.Attempts(3),
		retry.Delay(r.retryDelay),
		retry.LastErrorOnly(true),
		retry.Context(wctx),
		retry.RetryIf(func(err error) bool {
			return !errors.Is(err, ErrConflict) && !errors.Is(err, ErrNotFound)
		}),
	)
	if errors.Is(err, ErrConflict) {
		log.Info("job already finalized; outcome discarded", "status", status)
		return nil
	}
	if err != nil {
		log.Error("record job outcome failed", "status", status, "error", err)
		return err
	}
	log.Info("job finished", "status", status)
	return nil
}
