package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryQueue is an in-process Backend for single-node deployments and tests.
// Tasks do not survive a restart. Finished tasks are dropped once they are
// older than the result TTL, matching RedisQueue.
type MemoryQueue struct {
	mu        sync.Mutex
	tasks     map[string]*memoryTask
	pending   chan string
	watchers  map[chan string]struct{}
	resultTTL time.Duration
	lastPrune time.Time
}

type memoryTask struct {
	task     Task
	state    TaskState
	finished time.Time
}

// NewMemoryQueue creates a queue that holds up to capacity pending tasks.
func NewMemoryQueue(capacity int) *MemoryQueue {
	if capacity <= 0 {
		capacity = 1024
	}
	return &MemoryQueue{
		tasks:     make(map[string]*memoryTask),
		pending:   make(chan string, capacity),
		watchers:  make(map[chan string]struct{}),
		resultTTL: DefaultResultTTL,
	}
}

// WithResultTTL sets how long a finished task's state stays queryable.
func (q *MemoryQueue) WithResultTTL(ttl time.Duration) *MemoryQueue {
	q.mu.Lock()
	q.resultTTL = ttl
	q.mu.Unlock()
	return q
}

// pruneLocked drops finished tasks past the result TTL. It runs at most
// once per minute, or once per TTL when that is shorter.
func (q *MemoryQueue) pruneLocked(now time.Time) {
	if now.Sub(q.lastPrune) < min(q.resultTTL, time.Minute) {
		return
	}
	q.lastPrune = now
	for id, t := range q.tasks {
		if t.state.IsTerminal() && now.Sub(t.finished) > q.resultTTL {
			delete(q.tasks, id)
		}
	}
}

func (q *MemoryQueue) Enqueue(ctx context.Context, name string, payload any) (string, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode task payload: %w", err)
	}
	id := uuid.NewString()
	now := time.Now().UTC()

	q.mu.Lock()
	q.pruneLocked(now)
	q.tasks[id] = &memoryTask{
		task:  Task{ID: id, Name: name, Payload: raw, EnqueuedAt: now},
		state: TaskQueued,
	}
	q.mu.Unlock()

	select {
	case q.pending <- id:
		return id, nil
	default:
		q.mu.Lock()
		delete(q.tasks, id)
		q.mu.Unlock()
		return "", fmt.Errorf("enqueue %s: queue is full", name)
	}
}

func (q *MemoryQueue) Revoke(ctx context.Context, handle string) error {
	q.mu.Lock()
	t, ok := q.tasks[handle]
	if !ok {
		q.mu.Unlock()
		return ErrTaskNotFound
	}
	if t.state.IsTerminal() {
		q.mu.Unlock()
		return nil
	}
	t.state = TaskRevoked
	t.finished = time.Now().UTC()
	watchers := make([]chan string, 0, len(q.watchers))
	for w := range q.watchers {
		watchers = append(watchers, w)
	}
	q.mu.Unlock()

	for _, w := range watchers {
		select {
		case w <- handle:
		default:
		}
	}
	return nil
}

func (q *MemoryQueue) State(ctx context.Context, handle string) (TaskState, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	t, ok := q.tasks[handle]
	if !ok {
		return "", ErrTaskNotFound
	}
	return t.state, nil
}

func (q *MemoryQueue) Dequeue(ctx context.Context, wait time.Duration) (*Task, error) {
	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, nil
	case id := <-q.pending:
		q.mu.Lock()
		defer q.mu.Unlock()
		t, ok := q.tasks[id]
		if !ok {
			return nil, nil
		}
		task := t.task
		return &task, nil
	}
}

func (q *MemoryQueue) Start(ctx context.Context, handle string) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	t, ok := q.tasks[handle]
	if !ok {
		return false, ErrTaskNotFound
	}
	if t.state == TaskRevoked {
		return false, nil
	}
	t.state = TaskStarted
	return true, nil
}

func (q *MemoryQueue) Finish(ctx context.Context, handle string, state TaskState) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	t, ok := q.tasks[handle]
	if !ok {
		return ErrTaskNotFound
	}
	if t.state != TaskRevoked {
		t.state = state
		t.finished = time.Now().UTC()
	}
	return nil
}

func (q *MemoryQueue) Revocations(ctx context.Context) (<-chan string, error) {
	in := make(chan string, 16)
	q.mu.Lock()
	q.watchers[in] = struct{}{}
	q.mu.Unlock()

	out := make(chan string)
	go func() {
		defer close(out)
		defer func() {
			q.mu.Lock()
			delete(q.watchers, in)
			q.mu.Unlock()
		}()
		for {
			select {
			case <-ctx.Done():
				return
			case id := <-in:
				select {
				case out <- id:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
