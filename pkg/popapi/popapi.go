// Package popapi defines the population-model plugin API: the component
// kinds of a lensing system, the capability interfaces adapters implement,
// and the factory registry configurations resolve model names against.
package popapi

import (
	exprand "golang.org/x/exp/rand"

	"lensforge/pkg/domain"
)

// Kind identifies one physical component of the lensing system.
type Kind string

const (
	KindLOS           Kind = "los"
	KindSubhalo       Kind = "subhalo"
	KindMainDeflector Kind = "main_deflector"
	KindSource        Kind = "source"
	KindLensLight     Kind = "lens_light"
	KindPointSource   Kind = "point_source"
)

// Kinds lists all component kinds in the fixed aggregation order:
// lens-side layers first (los, subhalo, main_deflector), then the light
// layers (source, lens_light, point_source).
func Kinds() []Kind {
	return []Kind{KindLOS, KindSubhalo, KindMainDeflector, KindSource, KindLensLight, KindPointSource}
}

// Adapter is the base capability every population model implements:
// refreshing its internal state from the relevant sample sub-dictionaries.
type Adapter interface {
	UpdateParameters(sample domain.Sample)
}

// LensAdapter draws lens-plane mass models with per-model redshifts.
// Draw calls may redraw stochastic populations even for a fixed sample.
type LensAdapter interface {
	Adapter
	DrawLens(rng *exprand.Rand) (models []string, kwargs []domain.Params, redshifts []float64, err error)
}

// LightAdapter draws light models with per-model redshifts.
type LightAdapter interface {
	Adapter
	DrawLight(rng *exprand.Rand) (models []string, kwargs []domain.Params, redshifts []float64, err error)
}

// PointSourceAdapter draws point-source models; the layer carries no
// per-model redshift.
type PointSourceAdapter interface {
	Adapter
	DrawPointSource(rng *exprand.Rand) (models []string, kwargs []domain.Params, err error)
}

// CatalogBacked is an optional source capability: the adapter draws from an
// image catalog and exposes the chosen index and rotation so the pipeline
// can write them back into the sample for metadata.
type CatalogBacked interface {
	FillCatalogDefaults(rng *exprand.Rand) (index int, rotation float64)
	DrawCatalogSource(rng *exprand.Rand, index int, rotation float64) (models []string, kwargs []domain.Params, redshifts []float64, err error)
}

// AverageDeflectionProvider is an optional line-of-sight capability: models
// approximating the average deflection of the drawn population on an
// interpolation grid sized by the working pixel count.
type AverageDeflectionProvider interface {
	AverageDeflection(gridPixels int) (models []string, kwargs []domain.Params, redshifts []float64, err error)
}
