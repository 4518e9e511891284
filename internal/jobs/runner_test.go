package jobs_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kiranshivaraju/webgenie/internal/executor"
	"github.com/kiranshivaraju/webgenie/internal/jobs"
	"github.com/kiranshivaraju/webgenie/internal/queue"
	"github.com/kiranshivaraju/webgenie/internal/store"
	"github.com/kiranshivaraju/webgenie/pkg/models"
)

const triangle = "G1\tG2\t0.8\nG2\tG3\t0.6\nG3\tG1\t0.7\n"

func TestRunner_Success(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()
	job := env.submit(t, "genie3")
	d := &fakeDispatcher{fn: writesNetwork(triangle)}
	runner := jobs.NewRunner(env.svc, d)

	require.NoError(t, runner.Handle(ctx, env.nextTask(t)))

	got, err := env.svc.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, got.Status)
	assert.Equal(t, float64(100), got.Progress)
	assert.NotNil(t, got.EndedAt)
	require.NotNil(t, got.Metrics)
	assert.Equal(t, 3, got.Metrics.NumEdges)

	require.Len(t, d.calls, 1)
	assert.Equal(t, job.ResultPath, d.calls[0].JobDir)
	assert.Equal(t, "genie3", d.calls[0].Algorithm)
	assert.EqualValues(t, 1000, d.calls[0].Parameters["n_trees"])
}

func TestRunner_ExecutionFailure(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()
	job := env.submit(t, "genie3")
	runner := jobs.NewRunner(env.svc, &fakeDispatcher{fn: func(context.Context, executor.Request) (*executor.Result, error) {
		return nil, &executor.ExecError{
			Kind:     models.ErrorKindExitCode,
			ExitCode: 2,
			Message:  "algorithm exited with code 2",
			Err:      executor.ErrNonZeroExit,
		}
	}})

	err := runner.Handle(ctx, env.nextTask(t))
	assert.ErrorIs(t, err, executor.ErrNonZeroExit)

	got, err := env.svc.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFailed, got.Status)
	assert.Equal(t, models.ErrorKindExitCode, got.ErrorKind)
	require.NotNil(t, got.ErrorMessage)
	assert.Contains(t, *got.ErrorMessage, "code 2")
}

func TestRunner_TimeoutKind(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()
	job := env.submit(t, "genie3")
	runner := jobs.NewRunner(env.svc, &fakeDispatcher{fn: func(context.Context, executor.Request) (*executor.Result, error) {
		return nil, &executor.ExecError{Kind: models.ErrorKindTimeout, Message: "algorithm timed out after 1s", Err: executor.ErrTimeout}
	}})

	_ = runner.Handle(ctx, env.nextTask(t))

	got, err := env.svc.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFailed, got.Status)
	assert.Equal(t, models.ErrorKindTimeout, got.ErrorKind)
	assert.Contains(t, *got.ErrorMessage, "timed out")
}

func TestRunner_SkipsCancelledJob(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()
	job := env.submit(t, "genie3")
	task := env.nextTask(t)

	_, err := env.svc.Cancel(ctx, job.ID)
	require.NoError(t, err)

	d := &fakeDispatcher{fn: writesNetwork(triangle)}
	require.NoError(t, jobs.NewRunner(env.svc, d).Handle(ctx, task))
	assert.Zero(t, d.callCount())

	got, err := env.svc.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCancelled, got.Status)
}

func TestRunner_CancelDuringExecutionKeepsCancelled(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()
	job := env.submit(t, "genie3")

	// The algorithm finishes, but the user cancelled while it ran.
	d := &fakeDispatcher{fn: func(ctx context.Context, req executor.Request) (*executor.Result, error) {
		_, err := env.svc.Cancel(ctx, job.ID)
		require.NoError(t, err)
		return writesNetwork(triangle)(ctx, req)
	}}
	require.NoError(t, jobs.NewRunner(env.svc, d).Handle(ctx, env.nextTask(t)))

	got, err := env.svc.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCancelled, got.Status)
	assert.Nil(t, got.Metrics)
}

func TestRunner_RevokedTaskLeavesRecordAlone(t *testing.T) {
	env := newEnv(t)
	job := env.submit(t, "genie3")
	task := env.nextTask(t)

	var cancelled *models.Job
	ctx, cancel := context.WithCancelCause(context.Background())
	d := &fakeDispatcher{fn: func(ctx context.Context, _ executor.Request) (*executor.Result, error) {
		var err error
		cancelled, err = env.svc.Cancel(context.Background(), job.ID)
		require.NoError(t, err)
		cancel(queue.ErrRevoked)
		return nil, context.Cause(ctx)
	}}
	err := jobs.NewRunner(env.svc, d).Handle(ctx, task)
	assert.ErrorIs(t, err, queue.ErrRevoked)

	got, err := env.svc.Get(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCancelled, got.Status)
	assert.Equal(t, cancelled.UpdatedAt.UnixNano(), got.UpdatedAt.UnixNano())
}

func TestRunner_ShutdownFailsJob(t *testing.T) {
	env := newEnv(t)
	job := env.submit(t, "genie3")
	task := env.nextTask(t)

	ctx, cancel := context.WithCancel(context.Background())
	d := &fakeDispatcher{fn: func(context.Context, executor.Request) (*executor.Result, error) {
		cancel()
		return nil, errors.New("execution interrupted: context canceled")
	}}
	err := jobs.NewRunner(env.svc, d).Handle(ctx, task)
	assert.Error(t, err)

	got, err := env.svc.Get(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFailed, got.Status)
	assert.Equal(t, models.ErrorKindInternal, got.ErrorKind)
}

func TestRunner_TimeLimitFailsJob(t *testing.T) {
	env := newEnv(t)
	job := env.submit(t, "genie3")
	task := env.nextTask(t)

	ctx, cancel := context.WithCancelCause(context.Background())
	_ = jobs.NewRunner(env.svc, &fakeDispatcher{fn: func(ctx context.Context, _ executor.Request) (*executor.Result, error) {
		cancel(queue.ErrTimeLimit)
		return nil, context.Cause(ctx)
	}}).Handle(ctx, task)

	got, err := env.svc.Get(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFailed, got.Status)
	assert.Equal(t, models.ErrorKindTimeout, got.ErrorKind)
}

func TestRunner_BadPayload(t *testing.T) {
	env := newEnv(t)
	runner := jobs.NewRunner(env.svc, &fakeDispatcher{})

	err := runner.Handle(context.Background(), queue.Task{ID: "t-1", Name: jobs.TaskInference, Payload: []byte("{")})
	assert.Error(t, err)
}

func TestRunner_UnknownJobIsSkipped(t *testing.T) {
	env := newEnv(t)
	d := &fakeDispatcher{fn: writesNetwork(triangle)}

	err := jobs.NewRunner(env.svc, d).Handle(context.Background(), queue.Task{
		ID:      "t-1",
		Name:    jobs.TaskInference,
		Payload: []byte(`{"job_id":"job-ghost","algorithm":"genie3"}`),
	})
	assert.NoError(t, err)
	assert.Zero(t, d.callCount())
}

func TestRunner_ThroughPool(t *testing.T) {
	env := newEnv(t)
	job := env.submit(t, "genie3")

	pool := queue.NewPool(env.queue, 1, 0)
	jobs.NewRunner(env.svc, &fakeDispatcher{fn: writesNetwork(triangle)}).Register(pool)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- pool.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	require.Eventually(t, func() bool {
		got, err := env.svc.Get(context.Background(), job.ID)
		return err == nil && got.Status == models.JobStatusCompleted
	}, 5*time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		st, err := env.queue.State(context.Background(), *job.TaskHandle)
		return err == nil && st == queue.TaskSucceeded
	}, 5*time.Second, 10*time.Millisecond)

	page, err := env.svc.List(context.Background(), store.JobFilter{Status: models.JobStatusCompleted})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total)
}
