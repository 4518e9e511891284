// Package jobs owns the job lifecycle: submission, dispatch to the task
// queue, status transitions, cancellation, and access to a job's results.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/kiranshivaraju/webgenie/internal/cache"
	"github.com/kiranshivaraju/webgenie/internal/dataset"
	"github.com/kiranshivaraju/webgenie/internal/executor"
	"github.com/kiranshivaraju/webgenie/internal/metrics"
	"github.com/kiranshivaraju/webgenie/internal/queue"
	"github.com/kiranshivaraju/webgenie/internal/store"
	"github.com/kiranshivaraju/webgenie/pkg/models"
)

var (
	ErrNotFound       = errors.New("job not found")
	ErrValidation     = errors.New("validation error")
	ErrNotCancellable = errors.New("job cannot be cancelled")
	ErrResultNotReady = errors.New("job is still in progress")
	ErrNoResult       = errors.New("job has no result")
	ErrDispatch       = errors.New("job dispatch failed")
	ErrConflict       = errors.New("job status conflict")
)

// TaskInference is the queue task name for one algorithm run.
const TaskInference = "webgenie.run_inference"

const statusTTL = 24 * time.Hour

// SubmitRequest is the caller-supplied part of a new job.
type SubmitRequest struct {
	DatasetID   string         `json:"dataset_id" validate:"required,max=128"`
	Algorithm   string         `json:"algorithm" validate:"required,max=64"`
	Parameters  map[string]any `json:"parameters"`
	Name        *string        `json:"name,omitempty" validate:"omitempty,max=255"`
	Description *string        `json:"description,omitempty" validate:"omitempty,max=2000"`
}

// InferencePayload is the task payload consumed by Runner.
type InferencePayload struct {
	JobID       string         `json:"job_id"`
	DatasetID   string         `json:"dataset_id"`
	Algorithm   string         `json:"algorithm"`
	DatasetPath string         `json:"dataset_path"`
	JobDir      string         `json:"job_dir"`
	Parameters  map[string]any `json:"parameters"`
}

// Algorithms is the slice of the algorithm registry the service needs.
type Algorithms interface {
	Resolve(name string) (models.Algorithm, error)
	ValidateParameters(name string, params map[string]any) (map[string]any, error)
}

// JobPage is one page of a filtered listing.
type JobPage struct {
	Jobs     []*models.Job `json:"jobs"`
	Total    int           `json:"total"`
	Page     int           `json:"page"`
	PageSize int           `json:"page_size"`
}

// Service is the job lifecycle manager. Every status write goes through the
// store's conditional update, so a terminal record is never overwritten.
type Service struct {
	store      store.Store
	queue      queue.Queue
	algorithms Algorithms
	datasets   dataset.Resolver
	resultsDir string

	cache    cache.Cache
	metrics  *metrics.Metrics
	validate *validator.Validate
	now      func() time.Time
}

func NewService(st store.Store, q queue.Queue, algorithms Algorithms, datasets dataset.Resolver, resultsDir string) *Service {
	return &Service{
		store:      st,
		queue:      q,
		algorithms: algorithms,
		datasets:   datasets,
		resultsDir: resultsDir,
		validate:   validator.New(),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// WithCache enables status and summary caching.
func (s *Service) WithCache(c cache.Cache) *Service {
	s.cache = c
	return s
}

func (s *Service) WithMetrics(m *metrics.Metrics) *Service {
	s.metrics = m
	return s
}

func newJobID() string {
	return "job-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

// --- lifecycle ---

// Submit validates the request, records the job as SUBMITTED with its result
// directory created, and enqueues it. Validation failures are returned before
// anything is allocated. When enqueueing fails the job is recorded as FAILED
// and returned together with an ErrDispatch error.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (*models.Job, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrValidation, describeValidation(err))
	}
	alg, err := s.algorithms.Resolve(req.Algorithm)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrValidation, err)
	}
	params, err := s.algorithms.ValidateParameters(alg.Name, req.Parameters)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrValidation, err)
	}
	datasetPath, err := s.datasets.Resolve(ctx, req.DatasetID)
	if err != nil {
		if errors.Is(err, dataset.ErrNotFound) {
			return nil, fmt.Errorf("%w: %w", ErrValidation, err)
		}
		return nil, fmt.Errorf("resolve dataset: %w", err)
	}

	id := newJobID()
	jobDir := filepath.Join(s.resultsDir, id)
	if err := os.MkdirAll(jobDir, 0o755); err != nil {
		return nil, fmt.Errorf("create job dir: %w", err)
	}

	name := fmt.Sprintf("%s on %s", alg.Name, req.DatasetID)
	if req.Name != nil && strings.TrimSpace(*req.Name) != "" {
		name = strings.TrimSpace(*req.Name)
	}
	now := s.now()
	job := &models.Job{
		ID:          id,
		Name:        name,
		Description: req.Description,
		DatasetID:   req.DatasetID,
		Algorithm:   alg.Name,
		Parameters:  params,
		Status:      models.JobStatusSubmitted,
		ResultPath:  jobDir,
		LogFile:     filepath.Join(jobDir, executor.LogFileName),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.CreateJob(ctx, job); err != nil {
		_ = os.RemoveAll(jobDir)
		return nil, fmt.Errorf("create job: %w", err)
	}
	s.metrics.JobSubmitted(alg.Name)
	s.cacheStatus(ctx, id, job.Status)

	log := slog.With("job_id", id, "algorithm", alg.Name, "dataset_id", req.DatasetID)

	handle, err := s.queue.Enqueue(ctx, TaskInference, InferencePayload{
		JobID:       id,
		DatasetID:   req.DatasetID,
		Algorithm:   alg.Name,
		DatasetPath: datasetPath,
		JobDir:      jobDir,
		Parameters:  params,
	})
	if err != nil {
		log.Error("enqueue failed", "error", err)
		failed, uerr := s.UpdateStatus(context.WithoutCancel(ctx), id, models.JobStatusFailed,
			store.WithErrorMessage("dispatch failed: "+err.Error()),
			store.WithErrorKind(models.ErrorKindDispatch),
		)
		if uerr != nil {
			log.Error("record dispatch failure", "error", uerr)
			failed = job
		}
		return failed, fmt.Errorf("%w: %v", ErrDispatch, err)
	}

	// The task is queued; record its handle even if the caller has gone.
	wctx := context.WithoutCancel(ctx)
	running, err := s.UpdateStatus(wctx, id, models.JobStatusRunning,
		store.WithTaskHandle(handle),
		store.WithExpectedStatus(models.JobStatusSubmitted),
	)
	if errors.Is(err, ErrConflict) {
		// The worker got there first; report whatever it recorded.
		return s.Get(wctx, id)
	}
	if err != nil {
		return nil, err
	}
	log.Info("job submitted", "task_handle", handle)
	return running, nil
}

// Get returns the job or ErrNotFound.
func (s *Service) Get(ctx context.Context, id string) (*models.Job, error) {
	job, err := s.store.GetJob(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return job, nil
}

// Status returns the job's status, from the cache when it has one.
func (s *Service) Status(ctx context.Context, id string) (models.JobStatus, error) {
	if s.cache != nil {
		if st, ok, err := s.cache.GetJobStatus(ctx, id); err == nil && ok {
			return st, nil
		}
	}
	job, err := s.Get(ctx, id)
	if err != nil {
		return "", err
	}
	return job.Status, nil
}

// List returns one page of jobs matching filter, newest first.
func (s *Service) List(ctx context.Context, filter store.JobFilter) (*JobPage, error) {
	if filter.Limit <= 0 {
		filter.Limit = store.DefaultListLimit
	}
	if filter.Limit > store.MaxListLimit {
		filter.Limit = store.MaxListLimit
	}
	if filter.Skip < 0 {
		filter.Skip = 0
	}
	jobs, total, err := s.store.ListJobs(ctx, filter)
	if err != nil {
		return nil, err
	}
	if jobs == nil {
		jobs = []*models.Job{}
	}
	return &JobPage{
		Jobs:     jobs,
		Total:    total,
		Page:     filter.Skip/filter.Limit + 1,
		PageSize: filter.Limit,
	}, nil
}

// UpdateStatus merges a status change into the stored job. A write against a
// terminal job, or one the state machine forbids, returns ErrConflict.
func (s *Service) UpdateStatus(ctx context.Context, id string, status models.JobStatus, opts ...store.JobUpdateOption) (*models.Job, error) {
	job, err := s.store.UpdateJobStatus(ctx, id, status, opts...)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	case errors.Is(err, store.ErrJobFinalized), errors.Is(err, store.ErrInvalidTransition):
		return nil, fmt.Errorf("%w: %w", ErrConflict, err)
	case err != nil:
		return nil, err
	}

	s.cacheStatus(ctx, id, job.Status)
	if job.Status.IsTerminal() {
		s.metrics.JobFinished(job.Algorithm, job.Status, job.ErrorKind)
	}
	return job, nil
}

// Cancel marks an active job CANCELLED and revokes its task. Revocation is
// best-effort; the record is cancelled regardless of its outcome.
func (s *Service) Cancel(ctx context.Context, id string) (*models.Job, error) {
	job, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.Status.IsTerminal() {
		return nil, fmt.Errorf("%w: job is %s", ErrNotCancellable, job.Status)
	}

	cancelled, err := s.UpdateStatus(ctx, id, models.JobStatusCancelled,
		store.WithErrorMessage("cancelled by user"),
		store.WithExpectedStatus(models.JobStatusPending, models.JobStatusSubmitted, models.JobStatusRunning),
	)
	if errors.Is(err, ErrConflict) {
		return nil, fmt.Errorf("%w: job finished before it could be cancelled", ErrNotCancellable)
	}
	if err != nil {
		return nil, err
	}

	if h := cancelled.TaskHandle; h != nil {
		if err := s.queue.Revoke(ctx, *h); err != nil {
			slog.Warn("revoke failed", "job_id", id, "task_handle", *h, "error", err)
		}
	}
	slog.Info("job cancelled", "job_id", id)
	return cancelled, nil
}

// Logs returns the execution log. ok is false when no log exists yet.
func (s *Service) Logs(ctx context.Context, id string) (string, bool, error) {
	job, err := s.Get(ctx, id)
	if err != nil {
		return "", false, err
	}
	if job.LogFile == "" {
		return "", false, nil
	}
	data, err := os.ReadFile(job.LogFile)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			slog.Warn("read job log", "job_id", id, "error", err)
		}
		return "", false, nil
	}
	return string(data), true, nil
}

func (s *Service) cacheStatus(ctx context.Context, id string, status models.JobStatus) {
	if s.cache == nil {
		return
	}
	if err := s.cache.SetJobStatus(ctx, id, status, statusTTL); err != nil {
		slog.Debug("cache job status", "job_id", id, "error", err)
	}
}

func describeValidation(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := toSnake(fe.Field())
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, field+" is required")
		case "max":
			msgs = append(msgs, fmt.Sprintf("%s must be at most %s characters", field, fe.Param()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s failed %s", field, fe.Tag()))
		}
	}
	return strings.Join(msgs, "; ")
}

func toSnake(s string) string {
	var b strings.Builder
	for i, r := range s {
		if r >= 'A' && r <= 'Z' {
			if i > 0 && !(s[i-1] >= 'A' && s[i-1] <= 'Z') {
				b.WriteByte('_')
			}
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}
