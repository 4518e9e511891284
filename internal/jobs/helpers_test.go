package jobs_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kiranshivaraju/webgenie/internal/dataset"
	"github.com/kiranshivaraju/webgenie/internal/executor"
	"github.com/kiranshivaraju/webgenie/internal/jobs"
	"github.com/kiranshivaraju/webgenie/internal/queue"
	"github.com/kiranshivaraju/webgenie/internal/registry"
	"github.com/kiranshivaraju/webgenie/internal/store"
	"github.com/kiranshivaraju/webgenie/pkg/models"
)

type testEnv struct {
	svc         *jobs.Service
	store       store.Store
	queue       *queue.MemoryQueue
	resultsDir  string
	datasetsDir string
}

func newEnv(t *testing.T) *testEnv {
	t.Helper()
	st, err := store.OpenBadger(filepath.Join(t.TempDir(), "db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	datasets := t.TempDir()
	for _, id := range []string{"ds-1", "ds-2"} {
		require.NoError(t, os.MkdirAll(filepath.Join(datasets, id), 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(datasets, id, "data.csv"), []byte("gene,c1\n"), 0o644))
	}

	results := t.TempDir()
	q := queue.NewMemoryQueue(64)
	svc := jobs.NewService(st, q, registry.New("grnbeeline"), dataset.NewFileResolver(datasets), results)
	return &testEnv{svc: svc, store: st, queue: q, resultsDir: results, datasetsDir: datasets}
}

func (e *testEnv) submit(t *testing.T, alg string) *models.Job {
	t.Helper()
	job, err := e.svc.Submit(context.Background(), jobs.SubmitRequest{DatasetID: "ds-1", Algorithm: alg})
	require.NoError(t, err)
	return job
}

// nextTask pulls the next queued task and moves it to started, as a pool
// worker would.
func (e *testEnv) nextTask(t *testing.T) queue.Task {
	t.Helper()
	task, err := e.queue.Dequeue(context.Background(), time.Second)
	require.NoError(t, err)
	require.NotNil(t, task)
	ok, err := e.queue.Start(context.Background(), task.ID)
	require.NoError(t, err)
	require.True(t, ok)
	return *task
}

// --- fakes ---

type fakeDispatcher struct {
	mu    sync.Mutex
	calls []executor.Request
	fn    func(ctx context.Context, req executor.Request) (*executor.Result, error)
}

func (f *fakeDispatcher) Run(ctx context.Context, req executor.Request) (*executor.Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	f.mu.Unlock()
	return f.fn(ctx, req)
}

func (f *fakeDispatcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// writesNetwork behaves like a successful algorithm writing content.
func writesNetwork(content string) func(context.Context, executor.Request) (*executor.Result, error) {
	return func(_ context.Context, req executor.Request) (*executor.Result, error) {
		path := filepath.Join(req.JobDir, executor.OutputFileName(req.Algorithm))
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			return nil, err
		}
		return &executor.Result{
			OutputFile: path,
			Metrics:    models.NetworkStats{NumEdges: 3, NumNodes: 3, OutputFile: filepath.Base(path)},
		}, nil
	}
}

type failingQueue struct {
	queue.Queue
}

func (failingQueue) Enqueue(context.Context, string, any) (string, error) {
	return "", errors.New("connection refused")
}

// cancellingQueue cancels the caller's context once the task is queued, as
// when a client disconnects mid-request.
type cancellingQueue struct {
	*queue.MemoryQueue
	cancel context.CancelFunc
}

func (q cancellingQueue) Enqueue(ctx context.Context, name string, payload any) (string, error) {
	h, err := q.MemoryQueue.Enqueue(ctx, name, payload)
	q.cancel()
	return h, err
}

// ctxStore fails writes made with a done context, like a network database.
type ctxStore struct {
	store.Store
}

func (s ctxStore) UpdateJobStatus(ctx context.Context, id string, status models.JobStatus, opts ...store.JobUpdateOption) (*models.Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.Store.UpdateJobStatus(ctx, id, status, opts...)
}

type memCache struct {
	mu     sync.Mutex
	data   map[string][]byte
	status map[string]models.JobStatus
	gets   int
}

func newMemCache() *memCache {
	return &memCache{data: map[string][]byte{}, status: map[string]models.JobStatus{}}
}

func (c *memCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = value
	return nil
}

func (c *memCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gets++
	v, ok := c.data[key]
	return v, ok, nil
}

func (c *memCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
	return nil
}

func (c *memCache) Ping(context.Context) error { return nil }

func (c *memCache) SetJobStatus(_ context.Context, id string, s models.JobStatus, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.status[id] = s
	return nil
}

func (c *memCache) GetJobStatus(_ context.Context, id string) (models.JobStatus, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.status[id]
	return s, ok, nil
}

func (c *memCache) IncrWithExpiry(context.Context, string, time.Duration) (int64, error) {
	return 1, nil
}
