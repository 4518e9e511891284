// Package response writes the API's JSON envelopes: {"data": ...} on
// success, {"data": [...], "meta": {...}} for pages, and
// {"error": {"code", "message", "details"}} on failure.
package response

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
)

type envelope struct {
	Data any `json:"data"`
}

type collectionEnvelope struct {
	Data any            `json:"data"`
	Meta PaginationMeta `json:"meta"`
}

type errorEnvelope struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// PaginationMeta describes an offset page. Page is 1-based.
type PaginationMeta struct {
	Page     int  `json:"page"`
	PageSize int  `json:"page_size"`
	Skip     int  `json:"skip"`
	Total    int  `json:"total"`
	HasNext  bool `json:"has_next"`
}

// NewPaginationMeta derives page numbers from an offset window.
func NewPaginationMeta(skip, limit, total int) PaginationMeta {
	page := 1
	if limit > 0 {
		page = skip/limit + 1
	}
	return PaginationMeta{
		Page:     page,
		PageSize: limit,
		Skip:     skip,
		Total:    total,
		HasNext:  skip+limit < total,
	}
}

func JSON(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, envelope{Data: data})
}

func Created(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusCreated, envelope{Data: data})
}

func Accepted(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusAccepted, envelope{Data: data})
}

func Collection(w http.ResponseWriter, data any, meta PaginationMeta) {
	writeJSON(w, http.StatusOK, collectionEnvelope{Data: data, Meta: meta})
}

func Error(w http.ResponseWriter, status int, code, message string, details any) {
	writeJSON(w, status, errorEnvelope{Error: errorBody{
		Code:    code,
		Message: message,
		Details: details,
	}})
}

// Text writes a plain-text body.
func Text(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

// Attachment sets the headers for a file download. The caller writes the body.
func Attachment(w http.ResponseWriter, contentType, filename string) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("write response", "error", err)
	}
}
