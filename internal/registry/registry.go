// Package registry is the catalog of GRN inference algorithms: container
// image, local command and declared parameter schema for each.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/kiranshivaraju/webgenie/pkg/models"
)

var ErrUnknownAlgorithm = errors.New("unknown algorithm")
var ErrInvalidParameters = errors.New("invalid algorithm parameters")

// ImageChecker reports whether a container image is present locally.
type ImageChecker interface {
	ImageExists(ctx context.Context, ref string) (bool, error)
}

// Registry resolves algorithm names. Lookups are case-insensitive.
type Registry struct {
	mu         sync.RWMutex
	algorithms map[string]models.Algorithm
	images     ImageChecker
	validate   *validator.Validate
}

// New returns a registry holding the built-in catalog with images under
// dockerRegistry (e.g. "grnbeeline").
func New(dockerRegistry string) *Registry {
	r := &Registry{
		algorithms: make(map[string]models.Algorithm),
		validate:   validator.New(),
	}
	for _, a := range builtin(dockerRegistry) {
		r.algorithms[a.Name] = a
	}
	return r
}

// WithImageChecker enables ImageAvailable.
func (r *Registry) WithImageChecker(c ImageChecker) *Registry {
	r.images = c
	return r
}

// Register adds or overrides an algorithm. Fields left empty on an override
// keep the existing values.
func (r *Registry) Register(a models.Algorithm) error {
	name := normalizeName(a.Name)
	if name == "" {
		return fmt.Errorf("algorithm name is required")
	}
	a.Name = name

	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.algorithms[name]; ok {
		if a.DisplayName == "" {
			a.DisplayName = prev.DisplayName
		}
		if a.Description == "" {
			a.Description = prev.Description
		}
		if a.Image == "" {
			a.Image = prev.Image
		}
		if len(a.Command) == 0 {
			a.Command = prev.Command
		}
		if a.Parameters == nil {
			a.Parameters = prev.Parameters
		}
	}
	if a.Image == "" && len(a.Command) == 0 {
		return fmt.Errorf("algorithm %s needs an image or a command", name)
	}
	if a.DisplayName == "" {
		a.DisplayName = strings.ToUpper(name)
	}
	if a.Parameters == nil {
		a.Parameters = map[string]models.ParamSpec{}
	}
	for key, spec := range a.Parameters {
		if spec.Default == nil {
			continue
		}
		v, err := r.coerce(key, spec, spec.Default)
		if err != nil {
			return fmt.Errorf("algorithm %s: default for %s: %w", name, key, err)
		}
		spec.Default = v
		a.Parameters[key] = spec
	}
	r.algorithms[name] = a
	return nil
}

// Resolve returns the algorithm registered under name.
func (r *Registry) Resolve(name string) (models.Algorithm, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.algorithms[normalizeName(name)]
	if !ok {
		return models.Algorithm{}, fmt.Errorf("%w: %s", ErrUnknownAlgorithm, name)
	}
	return a, nil
}

// List returns every algorithm sorted by name.
func (r *Registry) List() []models.Algorithm {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.Algorithm, 0, len(r.algorithms))
	for _, a := range r.algorithms {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ImageAvailable reports whether the algorithm's image is present locally.
func (r *Registry) ImageAvailable(ctx context.Context, name string) (bool, error) {
	a, err := r.Resolve(name)
	if err != nil {
		return false, err
	}
	if r.images == nil {
		return false, fmt.Errorf("image inspection is not configured")
	}
	if a.Image == "" {
		return false, nil
	}
	return r.images.ImageExists(ctx, a.Image)
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
