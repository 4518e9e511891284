package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// ErrRevoked is the cancellation cause seen by a handler whose task was revoked.
var ErrRevoked = errors.New("task revoked")

// ErrTimeLimit is the cancellation cause seen by a handler that ran past the
// pool's time limit.
var ErrTimeLimit = errors.New("task time limit exceeded")

// Pool runs registered handlers for tasks pulled from a Backend.
type Pool struct {
	backend     Backend
	concurrency int
	timeLimit   time.Duration
	pollWait    time.Duration

	handlers map[string]Handler

	mu      sync.Mutex
	running map[string]context.CancelCauseFunc
}

// NewPool creates a pool of concurrency workers. A zero timeLimit means
// handlers are never cut off by the pool.
func NewPool(backend Backend, concurrency int, timeLimit time.Duration) *Pool {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Pool{
		backend:     backend,
		concurrency: concurrency,
		timeLimit:   timeLimit,
		pollWait:    time.Second,
		handlers:    make(map[string]Handler),
		running:     make(map[string]context.CancelCauseFunc),
	}
}

// Register binds a handler to a task name. Call before Run.
func (p *Pool) Register(name string, h Handler) {
	p.handlers[name] = h
}

// Run consumes tasks until ctx is cancelled. In-flight handlers see their
// context cancelled on shutdown.
func (p *Pool) Run(ctx context.Context) error {
	revocations, err := p.backend.Revocations(ctx)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		for handle := range revocations {
			p.cancel(handle)
		}
		return nil
	})
	for i := 0; i < p.concurrency; i++ {
		worker := i
		g.Go(func() error {
			p.work(gctx, worker)
			return nil
		})
	}

	slog.Info("worker pool started", "concurrency", p.concurrency)
	err = g.Wait()
	slog.Info("worker pool stopped")
	return err
}

// Running returns the number of tasks currently executing.
func (p *Pool) Running() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.running)
}

func (p *Pool) cancel(handle string) {
	p.mu.Lock()
	cancel, ok := p.running[handle]
	p.mu.Unlock()
	if ok {
		slog.Info("revoking running task", "task_handle", handle)
		cancel(ErrRevoked)
	}
}

func (p *Pool) work(ctx context.Context, worker int) {
	for {
		if ctx.Err() != nil {
			return
		}
		task, err := p.backend.Dequeue(ctx, p.pollWait)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			slog.Error("dequeue failed", "worker", worker, "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}
		if task == nil {
			continue
		}
		p.execute(ctx, *task)
	}
}

func (p *Pool) execute(ctx context.Context, task Task) {
	log := slog.With("task_handle", task.ID, "task", task.Name)

	started, err := p.backend.Start(ctx, task.ID)
	if err != nil {
		log.Error("start task failed", "error", err)
		return
	}
	if !started {
		log.Info("skipping task revoked before start")
		return
	}

	finishCtx, cancelFinish := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancelFinish()

	h, ok := p.handlers[task.Name]
	if !ok {
		log.Error("no handler registered for task")
		_ = p.backend.Finish(finishCtx, task.ID, TaskFailed)
		return
	}

	taskCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	if p.timeLimit > 0 {
		var stop context.CancelFunc
		taskCtx, stop = context.WithTimeoutCause(taskCtx, p.timeLimit, ErrTimeLimit)
		defer stop()
	}

	p.mu.Lock()
	p.running[task.ID] = cancel
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		delete(p.running, task.ID)
		p.mu.Unlock()
	}()

	err = invoke(taskCtx, h, task)

	state := TaskSucceeded
	switch {
	case errors.Is(context.Cause(taskCtx), ErrRevoked):
		state = TaskRevoked
	case err != nil:
		state = TaskFailed
		log.Warn("task failed", "error", err)
	}
	if ferr := p.backend.Finish(finishCtx, task.ID, state); ferr != nil {
		log.Error("record task state failed", "state", state, "error", ferr)
	}
}

func invoke(ctx context.Context, h Handler, task Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic in task handler",
				"task_handle", task.ID,
				"panic", r,
				"stack", string(debug.Stack()),
			)
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return h(ctx, task)
}
