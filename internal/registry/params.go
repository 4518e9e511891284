package registry

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/kiranshivaraju/webgenie/pkg/models"
)

// ValidateParameters checks params against the algorithm's schema and
// returns them merged over the declared defaults. Unknown keys, wrong types
// and out-of-range values are rejected. A null value means "use default".
func (r *Registry) ValidateParameters(name string, params map[string]any) (map[string]any, error) {
	alg, err := r.Resolve(name)
	if err != nil {
		return nil, err
	}

	out := make(map[string]any, len(alg.Parameters))
	for key, spec := range alg.Parameters {
		if spec.Default != nil {
			out[key] = spec.Default
		}
	}

	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var problems []string
	for _, key := range keys {
		raw := params[key]
		spec, ok := alg.Parameters[key]
		if !ok {
			problems = append(problems, fmt.Sprintf("%s: unknown parameter", key))
			continue
		}
		if raw == nil {
			continue
		}
		v, err := r.coerce(key, spec, raw)
		if err != nil {
			problems = append(problems, fmt.Sprintf("%s: %v", key, err))
			continue
		}
		out[key] = v
	}

	if len(problems) > 0 {
		return nil, fmt.Errorf("%w for %s: %s", ErrInvalidParameters, alg.Name, strings.Join(problems, "; "))
	}
	return out, nil
}

func (r *Registry) coerce(key string, spec models.ParamSpec, raw any) (any, error) {
	switch spec.Type {
	case models.ParamInteger:
		f, ok := toFloat(raw)
		if !ok || f != math.Trunc(f) {
			return nil, fmt.Errorf("expected integer, got %v", raw)
		}
		if f < math.MinInt64 || f >= math.MaxInt64 {
			return nil, fmt.Errorf("integer %v out of range", raw)
		}
		if err := checkRange(spec, f); err != nil {
			return nil, err
		}
		return int64(f), nil

	case models.ParamNumber:
		f, ok := toFloat(raw)
		if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, fmt.Errorf("expected number, got %v", raw)
		}
		if err := checkRange(spec, f); err != nil {
			return nil, err
		}
		return f, nil

	case models.ParamString:
		s, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("expected string, got %v", raw)
		}
		if len(spec.Enum) > 0 {
			if err := r.validate.Var(s, "oneof="+strings.Join(spec.Enum, " ")); err != nil {
				return nil, fmt.Errorf("must be one of %s", strings.Join(spec.Enum, ", "))
			}
		}
		return s, nil

	case models.ParamBoolean:
		b, ok := raw.(bool)
		if !ok {
			return nil, fmt.Errorf("expected boolean, got %v", raw)
		}
		return b, nil
	}
	return nil, fmt.Errorf("parameter %s has unsupported type %q", key, spec.Type)
}

func checkRange(spec models.ParamSpec, f float64) error {
	if spec.Min != nil && f < *spec.Min {
		return fmt.Errorf("must be >= %g", *spec.Min)
	}
	if spec.Max != nil && f > *spec.Max {
		return fmt.Errorf("must be <= %g", *spec.Max)
	}
	return nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case json.Number:
		f, err := strconv.ParseFloat(string(n), 64)
		return f, err == nil
	}
	return 0, false
}
