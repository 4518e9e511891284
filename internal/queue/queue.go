// Package queue is the asynchronous task runtime: producers enqueue named
// tasks with a JSON payload, workers consume them through a Pool, and any
// task can be revoked by its handle.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

var ErrTaskNotFound = errors.New("task not found")

// TaskState is the substrate's view of a task.
type TaskState string

const (
	TaskQueued    TaskState = "queued"
	TaskStarted   TaskState = "started"
	TaskSucceeded TaskState = "succeeded"
	TaskFailed    TaskState = "failed"
	TaskRevoked   TaskState = "revoked"
)

func (s TaskState) IsTerminal() bool {
	switch s {
	case TaskSucceeded, TaskFailed, TaskRevoked:
		return true
	}
	return false
}

// Task is one unit of work handed to a Handler.
type Task struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Payload    json.RawMessage `json:"payload"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
}

// Handler executes a task. ctx is cancelled when the task is revoked or
// exceeds the pool's time limit.
type Handler func(ctx context.Context, task Task) error

// Queue is the producer-side contract used by the job service and watchdog.
type Queue interface {
	// Enqueue stores the task and returns its handle.
	Enqueue(ctx context.Context, name string, payload any) (string, error)
	// Revoke marks the task revoked and signals any worker running it.
	// Revoking a finished task is a no-op.
	Revoke(ctx context.Context, handle string) error
	// State reports the task's state, or ErrTaskNotFound.
	State(ctx context.Context, handle string) (TaskState, error)
}

// Backend is the full contract a Pool consumes from.
type Backend interface {
	Queue
	// Dequeue waits up to wait for the next task. It returns nil, nil when
	// nothing arrived in time.
	Dequeue(ctx context.Context, wait time.Duration) (*Task, error)
	// Start moves a queued task to started. It returns false when the task
	// was revoked before a worker picked it up.
	Start(ctx context.Context, handle string) (bool, error)
	// Finish records the terminal state. A revoked task stays revoked.
	Finish(ctx context.Context, handle string, state TaskState) error
	// Revocations streams handles revoked after the call. The channel is
	// closed when ctx ends.
	Revocations(ctx context.Context) (<-chan string, error)
}
