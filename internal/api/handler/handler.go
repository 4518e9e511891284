// Package handler implements the HTTP endpoints. Handlers depend on small
// interfaces so they can be tested without a store or a queue.
package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/kiranshivaraju/webgenie/internal/api/response"
	"github.com/kiranshivaraju/webgenie/internal/dataset"
	"github.com/kiranshivaraju/webgenie/internal/jobs"
	"github.com/kiranshivaraju/webgenie/internal/network"
	"github.com/kiranshivaraju/webgenie/internal/registry"
	"github.com/kiranshivaraju/webgenie/internal/store"
	"github.com/kiranshivaraju/webgenie/pkg/models"
)

// JobService is the slice of jobs.Service the job and result endpoints use.
type JobService interface {
	Submit(ctx context.Context, req jobs.SubmitRequest) (*models.Job, error)
	Get(ctx context.Context, id string) (*models.Job, error)
	Status(ctx context.Context, id string) (models.JobStatus, error)
	List(ctx context.Context, filter store.JobFilter) (*jobs.JobPage, error)
	Cancel(ctx context.Context, id string) (*models.Job, error)
	Logs(ctx context.Context, id string) (string, bool, error)

	Result(ctx context.Context, id string) (*jobs.ResultInfo, error)
	Edges(ctx context.Context, id string) (*network.ParseResult, error)
	Summary(ctx context.Context, id string) (*models.NetworkSummary, error)
	Compare(ctx context.Context, jobA, jobB string, directed bool) (*models.NetworkComparison, error)
}

var _ JobService = (*jobs.Service)(nil)

// writeJobError maps lifecycle errors onto status codes and stable codes.
func writeJobError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, dataset.ErrNotFound):
		response.Error(w, http.StatusNotFound, "DATASET_NOT_FOUND", err.Error(), nil)
	case errors.Is(err, registry.ErrUnknownAlgorithm):
		response.Error(w, http.StatusBadRequest, "UNKNOWN_ALGORITHM", err.Error(), nil)
	case errors.Is(err, registry.ErrInvalidParameters):
		response.Error(w, http.StatusBadRequest, "INVALID_PARAMETERS", err.Error(), nil)
	case errors.Is(err, jobs.ErrValidation):
		response.Error(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), nil)
	case errors.Is(err, jobs.ErrNotFound):
		response.Error(w, http.StatusNotFound, "JOB_NOT_FOUND", "Job not found", nil)
	case errors.Is(err, jobs.ErrNotCancellable):
		response.Error(w, http.StatusConflict, "NOT_CANCELLABLE", err.Error(), nil)
	case errors.Is(err, jobs.ErrResultNotReady):
		response.Error(w, http.StatusConflict, "RESULT_NOT_READY", err.Error(), nil)
	case errors.Is(err, jobs.ErrNoResult):
		response.Error(w, http.StatusNotFound, "RESULT_NOT_FOUND", err.Error(), nil)
	case errors.Is(err, jobs.ErrConflict):
		response.Error(w, http.StatusConflict, "CONFLICT", err.Error(), nil)
	case errors.Is(err, context.DeadlineExceeded):
		response.Error(w, http.StatusGatewayTimeout, "TIMEOUT", "The request took too long", nil)
	default:
		response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
			"An unexpected error occurred", nil)
	}
}
