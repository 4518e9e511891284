package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kiranshivaraju/webgenie/internal/api/response"
	"github.com/kiranshivaraju/webgenie/internal/registry"
	"github.com/kiranshivaraju/webgenie/pkg/models"
)

// AlgorithmCatalog is the read side of the algorithm registry.
type AlgorithmCatalog interface {
	List() []models.Algorithm
	Resolve(name string) (models.Algorithm, error)
	ImageAvailable(ctx context.Context, name string) (bool, error)
}

var _ AlgorithmCatalog = (*registry.Registry)(nil)

// NewListAlgorithmsHandler returns an http.HandlerFunc for GET /api/v1/algorithms.
func NewListAlgorithmsHandler(c AlgorithmCatalog) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		response.JSON(w, c.List())
	}
}

// NewGetAlgorithmHandler returns an http.HandlerFunc for GET /api/v1/algorithms/{name}.
func NewGetAlgorithmHandler(c AlgorithmCatalog) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		alg, err := c.Resolve(chi.URLParam(r, "name"))
		if err != nil {
			writeAlgorithmError(w, err)
			return
		}
		response.JSON(w, alg)
	}
}

// NewCheckImageHandler returns an http.HandlerFunc for
// GET /api/v1/algorithms/{name}/image. It reports whether the algorithm's
// container image is present on the execution host.
func NewCheckImageHandler(c AlgorithmCatalog) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		alg, err := c.Resolve(chi.URLParam(r, "name"))
		if err != nil {
			writeAlgorithmError(w, err)
			return
		}
		ok, err := c.ImageAvailable(r.Context(), alg.Name)
		if err != nil {
			response.Error(w, http.StatusServiceUnavailable, "IMAGE_CHECK_UNAVAILABLE",
				"Image availability could not be determined", map[string]string{"reason": err.Error()})
			return
		}
		response.JSON(w, map[string]any{
			"algorithm": alg.Name,
			"image":     alg.Image,
			"available": ok,
		})
	}
}

func writeAlgorithmError(w http.ResponseWriter, err error) {
	if errors.Is(err, registry.ErrUnknownAlgorithm) {
		response.Error(w, http.StatusNotFound, "ALGORITHM_NOT_FOUND", err.Error(), nil)
		return
	}
	response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred", nil)
}
