package domain

import "fmt"

// Bundle is the aggregated model description for one rendering pass: per
// physical layer, an ordered model-name list with an index-aligned kwargs
// list, plus redshift lists where the layer carries per-model redshifts.
// The name and kwargs lists of a layer must stay 1:1 at all times.
type Bundle struct {
	LensModels    []string
	LensKwargs    []Params
	LensRedshifts []float64

	SourceModels    []string
	SourceKwargs    []Params
	SourceRedshifts []float64

	LensLightModels []string
	LensLightKwargs []Params

	PointSourceModels []string
	PointSourceKwargs []Params

	// MultiPlane is set when more than one distinct redshift appears across
	// the lens or source redshift lists.
	MultiPlane bool

	// ZSource doubles as the source convention redshift.
	ZSource float64
}

// Validate checks the per-layer list alignment invariant.
func (b Bundle) Validate() error {
	if len(b.LensModels) != len(b.LensKwargs) {
		return fmt.Errorf("bundle: lens models/kwargs mismatch: %d vs %d", len(b.LensModels), len(b.LensKwargs))
	}
	if len(b.LensModels) != len(b.LensRedshifts) {
		return fmt.Errorf("bundle: lens models/redshifts mismatch: %d vs %d", len(b.LensModels), len(b.LensRedshifts))
	}
	if len(b.SourceModels) != len(b.SourceKwargs) {
		return fmt.Errorf("bundle: source models/kwargs mismatch: %d vs %d", len(b.SourceModels), len(b.SourceKwargs))
	}
	if len(b.SourceModels) != len(b.SourceRedshifts) {
		return fmt.Errorf("bundle: source models/redshifts mismatch: %d vs %d", len(b.SourceModels), len(b.SourceRedshifts))
	}
	if len(b.LensLightModels) != len(b.LensLightKwargs) {
		return fmt.Errorf("bundle: lens light models/kwargs mismatch: %d vs %d", len(b.LensLightModels), len(b.LensLightKwargs))
	}
	if len(b.PointSourceModels) != len(b.PointSourceKwargs) {
		return fmt.Errorf("bundle: point source models/kwargs mismatch: %d vs %d", len(b.PointSourceModels), len(b.PointSourceKwargs))
	}
	return nil
}

// HasPointSource reports whether a point-source layer is present.
func (b Bundle) HasPointSource() bool {
	return len(b.PointSourceModels) > 0
}
