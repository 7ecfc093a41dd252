// Package pipeline contains the sample-to-image orchestration core: the
// Handler façade composing the seed controller, the sampler, the population
// adapters, the model aggregator, the rendering orchestrator (standard and
// drizzle paths), the selection-criteria evaluator, and the metadata
// assembler.
package pipeline

import (
	"lensforge/pkg/domain"
	"lensforge/pkg/popapi"
)

// ComponentRef names the registered adapter model to use for one component
// kind. The adapter's initial parameters come from the initialization
// sample, mirroring how its kind-specific sample sub-dictionary evolves.
type ComponentRef struct {
	Model string
}

// Config is the effective pipeline configuration for one Handler. The
// source component is mandatory; every other component is activated only
// when its kind is present in Components.
type Config struct {
	// Components maps kinds to registered adapter models.
	Components map[popapi.Kind]ComponentRef

	// PixelCount is the output image side length in detector pixels.
	PixelCount int

	// Numerics carries the engine's internal supersampling settings.
	Numerics domain.NumericsConfig

	// Seed is the base seed sequence. Empty means a random base seed.
	Seed []uint32

	// Selection criteria.
	DoublesQuadsOnly   bool
	QuadsOnly          bool
	MagCut             *float64
	PSMagnificationCut *float64

	// MagnificationLimit drops solved images fainter than this absolute
	// magnification inside the engine. Nil disables the limit.
	MagnificationLimit *float64

	// MaskRadius zeroes a circular interior region (arcsec) of accepted
	// images. Zero disables masking.
	MaskRadius float64

	// NoNoise disables the detector-noise realization.
	NoNoise bool

	// Drizzle routes rendering through the supersample/resample path; it
	// requires drizzle_parameters in every sample.
	Drizzle bool
}

func (c Config) validate() error {
	if _, ok := c.Components[popapi.KindSource]; !ok {
		return domain.Configf("pipeline", "a source component is required")
	}
	if c.PixelCount <= 0 {
		return domain.Configf("pipeline", "pixel count must be positive, got %d", c.PixelCount)
	}
	return nil
}
