package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/kiranshivaraju/webgenie/internal/jobs"
	"github.com/kiranshivaraju/webgenie/internal/network"
	"github.com/kiranshivaraju/webgenie/internal/store"
	"github.com/kiranshivaraju/webgenie/pkg/models"
)

// --- mock JobService ---

type mockJobs struct {
	mu sync.Mutex

	submitFn  func(req jobs.SubmitRequest) (*models.Job, error)
	getFn     func(id string) (*models.Job, error)
	statusFn  func(id string) (models.JobStatus, error)
	listFn    func(filter store.JobFilter) (*jobs.JobPage, error)
	cancelFn  func(id string) (*models.Job, error)
	logsFn    func(id string) (string, bool, error)
	resultFn  func(id string) (*jobs.ResultInfo, error)
	edgesFn   func(id string) (*network.ParseResult, error)
	summaryFn func(id string) (*models.NetworkSummary, error)
	compareFn func(a, b string, directed bool) (*models.NetworkComparison, error)

	getCalls int
}

func (m *mockJobs) Submit(_ context.Context, req jobs.SubmitRequest) (*models.Job, error) {
	return m.submitFn(req)
}

func (m *mockJobs) Get(_ context.Context, id string) (*models.Job, error) {
	m.mu.Lock()
	m.getCalls++
	m.mu.Unlock()
	return m.getFn(id)
}

// Status reports an error unless statusFn is set, which makes the watch
// loop fall back to Get on every poll.
func (m *mockJobs) Status(_ context.Context, id string) (models.JobStatus, error) {
	if m.statusFn == nil {
		return "", errors.New("status not configured")
	}
	return m.statusFn(id)
}

func (m *mockJobs) List(_ context.Context, filter store.JobFilter) (*jobs.JobPage, error) {
	return m.listFn(filter)
}

func (m *mockJobs) Cancel(_ context.Context, id string) (*models.Job, error) {
	return m.cancelFn(id)
}

func (m *mockJobs) Logs(_ context.Context, id string) (string, bool, error) {
	return m.logsFn(id)
}

func (m *mockJobs) Result(_ context.Context, id string) (*jobs.ResultInfo, error) {
	return m.resultFn(id)
}

func (m *mockJobs) Edges(_ context.Context, id string) (*network.ParseResult, error) {
	return m.edgesFn(id)
}

func (m *mockJobs) Summary(_ context.Context, id string) (*models.NetworkSummary, error) {
	return m.summaryFn(id)
}

func (m *mockJobs) Compare(_ context.Context, a, b string, directed bool) (*models.NetworkComparison, error) {
	return m.compareFn(a, b, directed)
}

// --- helpers ---

// withURLParam injects chi route params without a router.
func withURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), w.Body.String())
	return body
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	errObj, ok := decodeBody(t, w)["error"].(map[string]any)
	require.True(t, ok, "expected error envelope, got %s", w.Body.String())
	return errObj["code"].(string)
}

func sampleJob(id string, status models.JobStatus) *models.Job {
	return &models.Job{
		ID:         id,
		Name:       "genie3 on ds-1",
		DatasetID:  "ds-1",
		Algorithm:  "genie3",
		Status:     status,
		ResultPath: "/data/results/" + id,
	}
}
