package handler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kiranshivaraju/webgenie/internal/api/response"
	"github.com/kiranshivaraju/webgenie/internal/network"
)

// NewResultHandler returns an http.HandlerFunc for GET /api/v1/jobs/{jobID}/result.
func NewResultHandler(svc JobService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		info, err := svc.Result(r.Context(), chi.URLParam(r, "jobID"))
		if err != nil {
			writeJobError(w, err)
			return
		}
		response.JSON(w, info)
	}
}

// NewSummaryHandler returns an http.HandlerFunc for GET /api/v1/jobs/{jobID}/summary.
func NewSummaryHandler(svc JobService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sum, err := svc.Summary(r.Context(), chi.URLParam(r, "jobID"))
		if err != nil {
			writeJobError(w, err)
			return
		}
		response.JSON(w, sum)
	}
}

// NewNetworkHandler returns an http.HandlerFunc for
// GET /api/v1/jobs/{jobID}/network?format=tsv|csv|json|graphml.
func NewNetworkHandler(svc JobService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		format, err := network.ParseFormat(r.URL.Query().Get("format"))
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
				"format must be one of tsv, csv, json, graphml", nil)
			return
		}
		directed := r.URL.Query().Get("directed") != "false"

		jobID := chi.URLParam(r, "jobID")
		res, err := svc.Edges(r.Context(), jobID)
		if err != nil {
			writeJobError(w, err)
			return
		}

		// Render fully before writing headers so a failure can still become a 500.
		var buf bytes.Buffer
		if err := network.Export(&buf, res.Edges, format, directed); err != nil {
			slog.Error("export network", "job_id", jobID, "format", format, "error", err)
			writeJobError(w, err)
			return
		}
		response.Attachment(w, format.ContentType(), fmt.Sprintf("%s_network.%s", jobID, format))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(buf.Bytes())
	}
}

type compareRequest struct {
	JobA     string `json:"job_a"`
	JobB     string `json:"job_b"`
	Directed bool   `json:"directed"`
}

// NewCompareHandler returns an http.HandlerFunc for POST /api/v1/compare.
func NewCompareHandler(svc JobService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req compareRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}
		if req.JobA == "" || req.JobB == "" {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "job_a and job_b are required", nil)
			return
		}

		cmp, err := svc.Compare(r.Context(), req.JobA, req.JobB, req.Directed)
		if err != nil {
			writeJobError(w, err)
			return
		}
		response.JSON(w, cmp)
	}
}
