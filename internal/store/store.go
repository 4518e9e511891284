package store

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/kiranshivaraju/webgenie/pkg/models"
)

var ErrNotFound = errors.New("resource not found")
var ErrDuplicateKey = errors.New("duplicate key violation")

// ErrJobFinalized is returned for any write to a job that already reached
// COMPLETED, FAILED or CANCELLED.
var ErrJobFinalized = errors.New("job already finalized")

// ErrInvalidTransition is returned when the requested status is not reachable
// from the stored one, or when an expected-status guard does not match.
var ErrInvalidTransition = errors.New("invalid job status transition")

// Store is the data access interface. All job metadata goes through here.
type Store interface {
	Ping(ctx context.Context) error
	Close() error

	CreateJob(ctx context.Context, job *models.Job) error
	GetJob(ctx context.Context, id string) (*models.Job, error)
	ListJobs(ctx context.Context, filter JobFilter) ([]*models.Job, int, error)
	UpdateJobStatus(ctx context.Context, id string, status models.JobStatus, opts ...JobUpdateOption) (*models.Job, error)
	DeleteJob(ctx context.Context, id string) (bool, error)
}

// JobFilter selects a page of jobs, newest first.
type JobFilter struct {
	Status    models.JobStatus
	DatasetID string
	Algorithm string
	Skip      int
	Limit     int
}

const (
	DefaultListLimit = 10
	MaxListLimit     = 100
)

// normalize clamps pagination to sane bounds.
func (f JobFilter) normalize() JobFilter {
	if f.Limit <= 0 {
		f.Limit = DefaultListLimit
	}
	if f.Limit > MaxListLimit {
		f.Limit = MaxListLimit
	}
	if f.Skip < 0 {
		f.Skip = 0
	}
	return f
}

type jobUpdateParams struct {
	Progress     *float64
	ErrorMessage *string
	ErrorKind    *models.ErrorKind
	TaskHandle   *string
	Metrics      *models.NetworkStats
	Expect       []models.JobStatus
}

type JobUpdateOption func(*jobUpdateParams)

func WithProgress(p float64) JobUpdateOption {
	return func(u *jobUpdateParams) {
		u.Progress = &p
	}
}

func WithErrorMessage(msg string) JobUpdateOption {
	return func(u *jobUpdateParams) {
		u.ErrorMessage = &msg
	}
}

func WithErrorKind(kind models.ErrorKind) JobUpdateOption {
	return func(u *jobUpdateParams) {
		u.ErrorKind = &kind
	}
}

func WithTaskHandle(handle string) JobUpdateOption {
	return func(u *jobUpdateParams) {
		u.TaskHandle = &handle
	}
}

func WithMetrics(m models.NetworkStats) JobUpdateOption {
	return func(u *jobUpdateParams) {
		u.Metrics = &m
	}
}

// WithExpectedStatus makes the update conditional on the stored status
// being one of statuses at the moment of the write.
func WithExpectedStatus(statuses ...models.JobStatus) JobUpdateOption {
	return func(u *jobUpdateParams) {
		u.Expect = append(u.Expect, statuses...)
	}
}

var validTransitions = map[models.JobStatus][]models.JobStatus{
	models.JobStatusPending: {
		models.JobStatusSubmitted, models.JobStatusFailed, models.JobStatusCancelled,
	},
	models.JobStatusSubmitted: {
		models.JobStatusSubmitted, models.JobStatusRunning, models.JobStatusCompleted,
		models.JobStatusFailed, models.JobStatusCancelled,
	},
	models.JobStatusRunning: {
		models.JobStatusRunning, models.JobStatusCompleted,
		models.JobStatusFailed, models.JobStatusCancelled,
	},
}

// applyUpdate mutates job in place. Both backends run it inside their
// per-record transaction so the read-check-write is atomic.
func applyUpdate(job *models.Job, status models.JobStatus, opts []JobUpdateOption, now time.Time) error {
	params := &jobUpdateParams{}
	for _, opt := range opts {
		opt(params)
	}

	if job.Status.IsTerminal() {
		return fmt.Errorf("%w: %s is %s", ErrJobFinalized, job.ID, job.Status)
	}
	if len(params.Expect) > 0 && !slices.Contains(params.Expect, job.Status) {
		return fmt.Errorf("%w: %s is %s, expected one of %v", ErrInvalidTransition, job.ID, job.Status, params.Expect)
	}
	if !slices.Contains(validTransitions[job.Status], status) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, job.Status, status)
	}

	if params.TaskHandle != nil {
		job.TaskHandle = params.TaskHandle
	}
	if status == models.JobStatusRunning && job.TaskHandle == nil {
		return fmt.Errorf("%w: running without a task handle", ErrInvalidTransition)
	}

	job.Status = status
	if params.Progress != nil {
		job.Progress = clampProgress(*params.Progress)
	}
	if params.ErrorMessage != nil {
		job.ErrorMessage = params.ErrorMessage
	}
	if params.ErrorKind != nil {
		job.ErrorKind = *params.ErrorKind
	}
	if params.Metrics != nil {
		job.Metrics = params.Metrics
	}

	if status == models.JobStatusRunning && job.StartedAt == nil {
		t := now
		job.StartedAt = &t
	}
	if status.IsTerminal() {
		t := now
		job.EndedAt = &t
	}
	job.UpdatedAt = now
	return nil
}

func clampProgress(p float64) float64 {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}
