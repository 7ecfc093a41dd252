// Package domain defines the value types and collaborator boundaries shared
// by the lensforge rendering pipeline: parameter samples, model bundles,
// metadata records, rejection results, and the interfaces behind which the
// optical simulation engine, the sampler, and the drizzle resampler live.
package domain

import "fmt"

// Params is one component's parameter dictionary inside a Sample.
type Params map[string]any

// Sample maps a component name (e.g. "main_deflector_parameters") to its
// drawn parameter dictionary. A Sample is produced fresh by the Sampler on
// every draw and is treated as a value by the pipeline: render passes that
// need temporary overrides derive a deep copy instead of mutating in place.
type Sample map[string]Params

// Clone returns a deep copy of the sample. Supported value shapes are
// scalars, []float64, [][]float64 and nested Params; anything else is
// copied by reference.
func (s Sample) Clone() Sample {
	if s == nil {
		return nil
	}
	out := make(Sample, len(s))
	for component, params := range s {
		out[component] = params.Clone()
	}
	return out
}

// Clone returns a deep copy of the parameter dictionary.
func (p Params) Clone() Params {
	if p == nil {
		return nil
	}
	out := make(Params, len(p))
	for k, v := range p {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch tv := v.(type) {
	case []float64:
		cp := make([]float64, len(tv))
		copy(cp, tv)
		return cp
	case [][]float64:
		cp := make([][]float64, len(tv))
		for i, row := range tv {
			r := make([]float64, len(row))
			copy(r, row)
			cp[i] = r
		}
		return cp
	case []any:
		cp := make([]any, len(tv))
		for i, e := range tv {
			cp[i] = cloneValue(e)
		}
		return cp
	case Params:
		return tv.Clone()
	default:
		return v
	}
}

// Component returns the named component dictionary, or nil when absent.
func (s Sample) Component(name string) Params {
	return s[name]
}

// Has reports whether the named component is present in the sample.
func (s Sample) Has(name string) bool {
	_, ok := s[name]
	return ok
}

// Float extracts a float parameter, accepting int and float values.
func (p Params) Float(key string) (float64, bool) {
	v, ok := p[key]
	if !ok {
		return 0, false
	}
	return asFloat(v)
}

// MustFloat extracts a float parameter or returns a ConfigError naming the key.
func (p Params) MustFloat(component, key string) (float64, error) {
	f, ok := p.Float(key)
	if !ok {
		return 0, &ConfigError{Op: "sample", Msg: fmt.Sprintf("%s missing required parameter %q", component, key)}
	}
	return f, nil
}

// Int extracts an integer parameter, truncating float values.
func (p Params) Int(key string) (int, bool) {
	f, ok := p.Float(key)
	if !ok {
		return 0, false
	}
	return int(f), true
}

// Bool extracts a boolean parameter.
func (p Params) Bool(key string) (bool, bool) {
	v, ok := p[key]
	if !ok {
		return false, false
	}
	b, ok := v.(bool)
	return b, ok
}

// String extracts a string parameter.
func (p Params) String(key string) (string, bool) {
	v, ok := p[key]
	if !ok {
		return "", false
	}
	str, ok := v.(string)
	return str, ok
}

// Floats extracts a float slice parameter, converting []any element-wise.
func (p Params) Floats(key string) ([]float64, bool) {
	v, ok := p[key]
	if !ok {
		return nil, false
	}
	switch tv := v.(type) {
	case []float64:
		return tv, true
	case []any:
		out := make([]float64, len(tv))
		for i, e := range tv {
			f, ok := asFloat(e)
			if !ok {
				return nil, false
			}
			out[i] = f
		}
		return out, true
	default:
		return nil, false
	}
}

func asFloat(v any) (float64, bool) {
	switch tv := v.(type) {
	case float64:
		return tv, true
	case float32:
		return float64(tv), true
	case int:
		return float64(tv), true
	case int64:
		return float64(tv), true
	case uint32:
		return float64(tv), true
	default:
		return 0, false
	}
}

// Canonical component names used across the pipeline.
const (
	ComponentLOS           = "los_parameters"
	ComponentSubhalo       = "subhalo_parameters"
	ComponentMainDeflector = "main_deflector_parameters"
	ComponentSource        = "source_parameters"
	ComponentLensLight     = "lens_light_parameters"
	ComponentPointSource   = "point_source_parameters"
	ComponentCosmology     = "cosmology_parameters"
	ComponentPSF           = "psf_parameters"
	ComponentDetector      = "detector_parameters"
	ComponentDrizzle       = "drizzle_parameters"
	ComponentPixelGrid     = "pixel_grid_parameters"
	ComponentLensSolver    = "lens_equation_solver_parameters"
)
