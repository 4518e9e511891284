package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

type stubPinger struct{ err error }

func (p stubPinger) Ping(context.Context) error { return p.err }

func TestHealth_AllOK(t *testing.T) {
	h := NewHealthHandler(
		HealthCheck{Name: "store", Pinger: stubPinger{}},
		HealthCheck{Name: "cache", Pinger: stubPinger{}},
	)
	w := httptest.NewRecorder()
	h(w, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	data := decodeBody(t, w)["data"].(map[string]any)
	assert.Equal(t, "ok", data["status"])
	services := data["services"].(map[string]any)
	assert.Equal(t, "ok", services["store"])
	assert.Equal(t, "ok", services["cache"])
}

func TestHealth_Degraded(t *testing.T) {
	tests := []struct {
		name     string
		store    error
		cache    error
		degraded []string
	}{
		{"store down", errors.New("closed"), nil, []string{"store"}},
		{"cache down", nil, errors.New("redis down"), []string{"cache"}},
		{"both down", errors.New("closed"), errors.New("redis down"), []string{"store", "cache"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHealthHandler(
				HealthCheck{Name: "store", Pinger: stubPinger{err: tt.store}},
				HealthCheck{Name: "cache", Pinger: stubPinger{err: tt.cache}},
			)
			w := httptest.NewRecorder()
			h(w, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))

			assert.Equal(t, http.StatusServiceUnavailable, w.Code)
			errObj := decodeBody(t, w)["error"].(map[string]any)
			assert.Equal(t, "DEGRADED", errObj["code"])
			details := errObj["details"].(map[string]any)
			for _, name := range tt.degraded {
				assert.Equal(t, "degraded", details[name])
			}
		})
	}
}

func TestHealth_NilPingerSkipped(t *testing.T) {
	h := NewHealthHandler(HealthCheck{Name: "queue"})
	w := httptest.NewRecorder()
	h(w, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}
