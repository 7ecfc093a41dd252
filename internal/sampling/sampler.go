// Package sampling implements the configuration-driven parameter sampler.
// A Sampler is built once from per-component parameter specs and draws one
// fresh Sample per invocation as a pure function of the injected random
// stream: components and parameters are visited in sorted order so the
// same stream state always yields the same sample.
package sampling

import (
	"fmt"
	"math"
	"sort"
	"strings"

	exprand "golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"

	"lensforge/pkg/domain"
)

// Dist names a supported sampling distribution.
type Dist string

const (
	DistFixed     Dist = "fixed"
	DistUniform   Dist = "uniform"
	DistNormal    Dist = "normal"
	DistLogNormal Dist = "lognormal"
	DistTruncNorm Dist = "truncnorm"
	DistChoice    Dist = "choice"
)

// ParamSpec describes how one parameter is drawn. A zero Dist with a
// non-nil Value is a literal; CopyOf references another component's drawn
// value as "component.param".
type ParamSpec struct {
	Dist    Dist
	Value   any
	Mean    float64
	Sigma   float64
	Min     float64
	Max     float64
	Choices []any
	Weights []float64
	Size    int // > 0 draws a slice of that length
	CopyOf  string
}

// Sampler draws samples from a fixed set of component parameter specs.
type Sampler struct {
	order      []string
	components map[string]map[string]ParamSpec
}

// New validates the specs and constructs a sampler.
func New(components map[string]map[string]ParamSpec) (*Sampler, error) {
	order := make([]string, 0, len(components))
	for name := range components {
		order = append(order, name)
	}
	sort.Strings(order)
	for _, component := range order {
		for key, spec := range components[component] {
			if err := validateSpec(spec); err != nil {
				return nil, fmt.Errorf("sampling: %s.%s: %w", component, key, err)
			}
		}
	}
	return &Sampler{order: order, components: components}, nil
}

func validateSpec(spec ParamSpec) error {
	switch spec.Dist {
	case DistFixed, "":
		if spec.Value == nil && spec.CopyOf == "" {
			return fmt.Errorf("fixed parameter requires a value")
		}
	case DistUniform:
		if spec.Max < spec.Min {
			return fmt.Errorf("max %v below min %v", spec.Max, spec.Min)
		}
	case DistTruncNorm:
		if spec.Max < spec.Min {
			return fmt.Errorf("max %v below min %v", spec.Max, spec.Min)
		}
		if spec.Sigma <= 0 {
			return fmt.Errorf("truncnorm requires positive sigma, got %v", spec.Sigma)
		}
		n := distuv.Normal{Mu: spec.Mean, Sigma: spec.Sigma}
		if n.CDF(spec.Max)-n.CDF(spec.Min) <= 0 {
			return fmt.Errorf("truncnorm has no probability mass in [%v, %v]", spec.Min, spec.Max)
		}
	case DistNormal, DistLogNormal:
		if spec.Sigma < 0 {
			return fmt.Errorf("negative sigma %v", spec.Sigma)
		}
	case DistChoice:
		if len(spec.Choices) == 0 {
			return fmt.Errorf("choice requires at least one option")
		}
		if len(spec.Weights) > 0 && len(spec.Weights) != len(spec.Choices) {
			return fmt.Errorf("weights length %d does not match choices length %d", len(spec.Weights), len(spec.Choices))
		}
	default:
		return fmt.Errorf("unknown distribution %q", spec.Dist)
	}
	return nil
}

// Sample draws a fresh sample. It implements domain.Sampler.
func (s *Sampler) Sample(rng *exprand.Rand) domain.Sample {
	sample := make(domain.Sample, len(s.order))
	type deferredCopy struct {
		component, key, from string
	}
	var copies []deferredCopy

	for _, component := range s.order {
		specs := s.components[component]
		keys := make([]string, 0, len(specs))
		for key := range specs {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		params := make(domain.Params, len(keys))
		for _, key := range keys {
			spec := specs[key]
			if spec.CopyOf != "" {
				copies = append(copies, deferredCopy{component, key, spec.CopyOf})
				continue
			}
			params[key] = drawSpec(spec, rng)
		}
		sample[component] = params
	}

	// Cross-component references resolve after every direct draw so they
	// never perturb the stream.
	for _, c := range copies {
		fromComponent, fromKey, ok := strings.Cut(c.from, ".")
		if !ok {
			continue
		}
		if src, present := sample[fromComponent]; present {
			sample[c.component][c.key] = src[fromKey]
		}
	}
	return sample
}

func drawSpec(spec ParamSpec, rng *exprand.Rand) any {
	if spec.Size > 0 {
		out := make([]float64, spec.Size)
		for i := range out {
			out[i] = drawScalar(spec, rng)
		}
		return out
	}
	if spec.Dist == DistFixed || spec.Dist == "" {
		return spec.Value
	}
	if spec.Dist == DistChoice {
		return drawChoice(spec, rng)
	}
	return drawScalar(spec, rng)
}

func drawScalar(spec ParamSpec, rng *exprand.Rand) float64 {
	switch spec.Dist {
	case DistFixed, "":
		if f, ok := spec.Value.(float64); ok {
			return f
		}
		if i, ok := spec.Value.(int); ok {
			return float64(i)
		}
		return 0
	case DistUniform:
		return distuv.Uniform{Min: spec.Min, Max: spec.Max, Src: rng}.Rand()
	case DistNormal:
		return distuv.Normal{Mu: spec.Mean, Sigma: spec.Sigma, Src: rng}.Rand()
	case DistLogNormal:
		return distuv.LogNormal{Mu: spec.Mean, Sigma: spec.Sigma, Src: rng}.Rand()
	case DistTruncNorm:
		// inverse-CDF draw: always terminates and consumes exactly one
		// uniform variate, keeping stream consumption sample-independent
		n := distuv.Normal{Mu: spec.Mean, Sigma: spec.Sigma}
		lo, hi := n.CDF(spec.Min), n.CDF(spec.Max)
		v := n.Quantile(lo + rng.Float64()*(hi-lo))
		return math.Min(math.Max(v, spec.Min), spec.Max)
	default:
		return 0
	}
}

func drawChoice(spec ParamSpec, rng *exprand.Rand) any {
	if len(spec.Weights) == 0 {
		return spec.Choices[rng.Intn(len(spec.Choices))]
	}
	var total float64
	for _, w := range spec.Weights {
		total += w
	}
	u := rng.Float64() * total
	for i, w := range spec.Weights {
		u -= w
		if u < 0 {
			return spec.Choices[i]
		}
	}
	return spec.Choices[len(spec.Choices)-1]
}
