package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/kiranshivaraju/webgenie/internal/api/response"
	"github.com/kiranshivaraju/webgenie/internal/jobs"
	"github.com/kiranshivaraju/webgenie/internal/store"
	"github.com/kiranshivaraju/webgenie/pkg/models"
)

const noLogsMessage = "No logs available"

// maxSubmitBody bounds the submission payload; parameters are small.
const maxSubmitBody = 1 << 20

// NewSubmitJobHandler returns an http.HandlerFunc for POST /api/v1/jobs.
func NewSubmitJobHandler(svc JobService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req jobs.SubmitRequest
		dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxSubmitBody))
		dec.UseNumber()
		if err := dec.Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}

		job, err := svc.Submit(r.Context(), req)
		if err != nil {
			if errors.Is(err, jobs.ErrDispatch) && job != nil {
				response.Error(w, http.StatusServiceUnavailable, "DISPATCH_FAILED",
					"The job was recorded but could not be queued", job)
				return
			}
			writeJobError(w, err)
			return
		}
		response.Created(w, job)
	}
}

// NewListJobsHandler returns an http.HandlerFunc for GET /api/v1/jobs.
// Query: status, dataset_id, algorithm, skip, limit.
func NewListJobsHandler(svc JobService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		filter := store.JobFilter{
			DatasetID: q.Get("dataset_id"),
			Algorithm: q.Get("algorithm"),
		}
		if s := q.Get("status"); s != "" {
			status, ok := models.ParseJobStatus(s)
			if !ok {
				response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "status is not a known job status", nil)
				return
			}
			filter.Status = status
		}

		var err error
		if filter.Skip, err = queryInt(q.Get("skip"), 0); err != nil || filter.Skip < 0 {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "skip must be a non-negative integer", nil)
			return
		}
		if filter.Limit, err = queryInt(q.Get("limit"), store.DefaultListLimit); err != nil || filter.Limit < 1 {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "limit must be a positive integer", nil)
			return
		}

		page, err := svc.List(r.Context(), filter)
		if err != nil {
			slog.Error("list jobs", "error", err)
			writeJobError(w, err)
			return
		}
		response.Collection(w, page.Jobs, response.NewPaginationMeta(filter.Skip, page.PageSize, page.Total))
	}
}

// NewGetJobHandler returns an http.HandlerFunc for GET /api/v1/jobs/{jobID}.
func NewGetJobHandler(svc JobService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		job, err := svc.Get(r.Context(), chi.URLParam(r, "jobID"))
		if err != nil {
			writeJobError(w, err)
			return
		}
		response.JSON(w, job)
	}
}

// NewJobLogsHandler returns an http.HandlerFunc for GET /api/v1/jobs/{jobID}/logs.
// The log is served as plain text; a job without one gets a placeholder.
func NewJobLogsHandler(svc JobService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logs, ok, err := svc.Logs(r.Context(), chi.URLParam(r, "jobID"))
		if err != nil {
			writeJobError(w, err)
			return
		}
		if !ok {
			logs = noLogsMessage
		}
		response.Text(w, http.StatusOK, logs)
	}
}

// NewCancelJobHandler returns an http.HandlerFunc for
// DELETE /api/v1/jobs/{jobID} and POST /api/v1/jobs/{jobID}/cancel.
func NewCancelJobHandler(svc JobService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		job, err := svc.Cancel(r.Context(), chi.URLParam(r, "jobID"))
		if err != nil {
			writeJobError(w, err)
			return
		}
		response.JSON(w, job)
	}
}

func queryInt(s string, def int) (int, error) {
	if s == "" {
		return def, nil
	}
	return strconv.Atoi(s)
}
