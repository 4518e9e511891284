package handler

import (
	"context"
	"net/http"

	"github.com/kiranshivaraju/webgenie/internal/api/response"
)

// Pinger is anything whose connectivity can be probed.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthCheck names one dependency probed by the health endpoint.
type HealthCheck struct {
	Name   string
	Pinger Pinger
}

// NewHealthHandler returns an http.HandlerFunc for GET /api/v1/health.
// Any failing check turns the response into a 503 listing every check.
func NewHealthHandler(checks ...HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		results := make(map[string]string, len(checks))
		degraded := false
		for _, c := range checks {
			results[c.Name] = "ok"
			if c.Pinger == nil {
				continue
			}
			if err := c.Pinger.Ping(r.Context()); err != nil {
				results[c.Name] = "degraded"
				degraded = true
			}
		}

		if degraded {
			response.Error(w, http.StatusServiceUnavailable, "DEGRADED",
				"One or more services degraded", results)
			return
		}
		response.JSON(w, map[string]any{
			"status":   "ok",
			"services": results,
		})
	}
}
