package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kiranshivaraju/webgenie/internal/dataset"
	"github.com/kiranshivaraju/webgenie/internal/jobs"
	"github.com/kiranshivaraju/webgenie/internal/registry"
	"github.com/kiranshivaraju/webgenie/internal/store"
	"github.com/kiranshivaraju/webgenie/pkg/models"
)

func submitReq(t *testing.T, body any) *http.Request {
	t.Helper()
	b, err := json.Marshal(body)
	require.NoError(t, err)
	r := httptest.NewRequest(http.MethodPost, "/api/v1/jobs", bytes.NewReader(b))
	r.Header.Set("Content-Type", "application/json")
	return r
}

func TestSubmitJob_Created(t *testing.T) {
	var got jobs.SubmitRequest
	svc := &mockJobs{submitFn: func(req jobs.SubmitRequest) (*models.Job, error) {
		got = req
		return sampleJob("job-0123456789ab", models.JobStatusRunning), nil
	}}

	w := httptest.NewRecorder()
	NewSubmitJobHandler(svc)(w, submitReq(t, map[string]any{
		"dataset_id": "ds-1",
		"algorithm":  "genie3",
		"parameters": map[string]any{"n_trees": 50},
	}))

	assert.Equal(t, http.StatusCreated, w.Code)
	data := decodeBody(t, w)["data"].(map[string]any)
	assert.Equal(t, "job-0123456789ab", data["id"])
	assert.Equal(t, "running", data["status"])

	assert.Equal(t, "ds-1", got.DatasetID)
	assert.Equal(t, json.Number("50"), got.Parameters["n_trees"])
}

func TestSubmitJob_InvalidJSON(t *testing.T) {
	svc := &mockJobs{}
	r := httptest.NewRequest(http.MethodPost, "/api/v1/jobs", bytes.NewBufferString("{"))
	w := httptest.NewRecorder()
	NewSubmitJobHandler(svc)(w, r)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_REQUEST", errorCode(t, w))
}

func TestSubmitJob_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"validation", fmt.Errorf("%w: dataset_id is required", jobs.ErrValidation), http.StatusBadRequest, "VALIDATION_ERROR"},
		{"unknown algorithm", fmt.Errorf("%w: %w", jobs.ErrValidation, registry.ErrUnknownAlgorithm), http.StatusBadRequest, "UNKNOWN_ALGORITHM"},
		{"bad parameters", fmt.Errorf("%w: %w", jobs.ErrValidation, registry.ErrInvalidParameters), http.StatusBadRequest, "INVALID_PARAMETERS"},
		{"dataset missing", fmt.Errorf("%w: %w", jobs.ErrValidation, dataset.ErrNotFound), http.StatusNotFound, "DATASET_NOT_FOUND"},
		{"store down", errors.New("connection refused"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockJobs{submitFn: func(jobs.SubmitRequest) (*models.Job, error) { return nil, tt.err }}
			w := httptest.NewRecorder()
			NewSubmitJobHandler(svc)(w, submitReq(t, map[string]any{"dataset_id": "ds-1", "algorithm": "genie3"}))

			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, tt.code, errorCode(t, w))
		})
	}
}

func TestSubmitJob_DispatchFailureReturnsJob(t *testing.T) {
	failed := sampleJob("job-aaaaaaaaaaaa", models.JobStatusFailed)
	failed.ErrorKind = models.ErrorKindDispatch
	svc := &mockJobs{submitFn: func(jobs.SubmitRequest) (*models.Job, error) {
		return failed, fmt.Errorf("%w: redis down", jobs.ErrDispatch)
	}}

	w := httptest.NewRecorder()
	NewSubmitJobHandler(svc)(w, submitReq(t, map[string]any{"dataset_id": "ds-1", "algorithm": "genie3"}))

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	errObj := decodeBody(t, w)["error"].(map[string]any)
	assert.Equal(t, "DISPATCH_FAILED", errObj["code"])
	details := errObj["details"].(map[string]any)
	assert.Equal(t, "job-aaaaaaaaaaaa", details["id"])
	assert.Equal(t, "dispatch", details["error_kind"])
}

func TestListJobs_FilterAndMeta(t *testing.T) {
	var got store.JobFilter
	svc := &mockJobs{listFn: func(f store.JobFilter) (*jobs.JobPage, error) {
		got = f
		return &jobs.JobPage{
			Jobs:     []*models.Job{sampleJob("job-1", models.JobStatusCompleted)},
			Total:    11,
			Page:     2,
			PageSize: 5,
		}, nil
	}}

	r := httptest.NewRequest(http.MethodGet, "/api/v1/jobs?status=COMPLETED&dataset_id=ds-1&algorithm=genie3&skip=5&limit=5", nil)
	w := httptest.NewRecorder()
	NewListJobsHandler(svc)(w, r)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, store.JobFilter{
		Status:    models.JobStatusCompleted,
		DatasetID: "ds-1",
		Algorithm: "genie3",
		Skip:      5,
		Limit:     5,
	}, got)

	body := decodeBody(t, w)
	assert.Len(t, body["data"].([]any), 1)
	meta := body["meta"].(map[string]any)
	assert.Equal(t, float64(2), meta["page"])
	assert.Equal(t, float64(11), meta["total"])
	assert.Equal(t, true, meta["has_next"])
}

func TestListJobs_Defaults(t *testing.T) {
	var got store.JobFilter
	svc := &mockJobs{listFn: func(f store.JobFilter) (*jobs.JobPage, error) {
		got = f
		return &jobs.JobPage{Jobs: []*models.Job{}, Page: 1, PageSize: f.Limit}, nil
	}}

	w := httptest.NewRecorder()
	NewListJobsHandler(svc)(w, httptest.NewRequest(http.MethodGet, "/api/v1/jobs", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, store.DefaultListLimit, got.Limit)
	assert.Equal(t, 0, got.Skip)
	assert.Empty(t, got.Status)
	assert.Equal(t, []any{}, decodeBody(t, w)["data"])
}

func TestListJobs_BadQuery(t *testing.T) {
	svc := &mockJobs{}
	for _, q := range []string{"status=bogus", "skip=-1", "skip=x", "limit=0", "limit=abc"} {
		t.Run(q, func(t *testing.T) {
			w := httptest.NewRecorder()
			NewListJobsHandler(svc)(w, httptest.NewRequest(http.MethodGet, "/api/v1/jobs?"+q, nil))
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, "INVALID_REQUEST", errorCode(t, w))
		})
	}
}

func TestGetJob(t *testing.T) {
	svc := &mockJobs{getFn: func(id string) (*models.Job, error) {
		if id == "job-1" {
			return sampleJob(id, models.JobStatusRunning), nil
		}
		return nil, fmt.Errorf("%w: %s", jobs.ErrNotFound, id)
	}}

	w := httptest.NewRecorder()
	NewGetJobHandler(svc)(w, withURLParam(httptest.NewRequest(http.MethodGet, "/", nil), "jobID", "job-1"))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "job-1", decodeBody(t, w)["data"].(map[string]any)["id"])

	w = httptest.NewRecorder()
	NewGetJobHandler(svc)(w, withURLParam(httptest.NewRequest(http.MethodGet, "/", nil), "jobID", "job-x"))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "JOB_NOT_FOUND", errorCode(t, w))
}

func TestJobLogs(t *testing.T) {
	tests := []struct {
		name string
		logs string
		ok   bool
		want string
	}{
		{"present", "step 1\nstep 2\n", true, "step 1\nstep 2\n"},
		{"absent", "", false, "No logs available"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockJobs{logsFn: func(string) (string, bool, error) { return tt.logs, tt.ok, nil }}
			w := httptest.NewRecorder()
			NewJobLogsHandler(svc)(w, withURLParam(httptest.NewRequest(http.MethodGet, "/", nil), "jobID", "job-1"))

			assert.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, "text/plain; charset=utf-8", w.Header().Get("Content-Type"))
			assert.Equal(t, tt.want, w.Body.String())
		})
	}
}

func TestCancelJob(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"cancelled", nil, http.StatusOK, ""},
		{"terminal", fmt.Errorf("%w: job is completed", jobs.ErrNotCancellable), http.StatusConflict, "NOT_CANCELLABLE"},
		{"missing", fmt.Errorf("%w: job-x", jobs.ErrNotFound), http.StatusNotFound, "JOB_NOT_FOUND"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockJobs{cancelFn: func(id string) (*models.Job, error) {
				if tt.err != nil {
					return nil, tt.err
				}
				return sampleJob(id, models.JobStatusCancelled), nil
			}}
			w := httptest.NewRecorder()
			NewCancelJobHandler(svc)(w, withURLParam(httptest.NewRequest(http.MethodDelete, "/", nil), "jobID", "job-1"))

			assert.Equal(t, tt.status, w.Code)
			if tt.code != "" {
				assert.Equal(t, tt.code, errorCode(t, w))
				return
			}
			assert.Equal(t, "cancelled", decodeBody(t, w)["data"].(map[string]any)["status"])
		})
	}
}
