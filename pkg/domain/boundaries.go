package domain

import (
	mathrand "math/rand"

	exprand "golang.org/x/exp/rand"
)

// Sampler draws one stochastic parameter sample per invocation from the
// injected random stream. Implementations must be pure functions of the
// stream state so a recorded seed reproduces the sample exactly.
type Sampler interface {
	Sample(rng *exprand.Rand) Sample
}

// SceneSpec is the full input contract of the optical simulation engine:
// the aggregated model bundle plus the observation setup for one pass.
type SceneSpec struct {
	Bundle    Bundle
	Cosmology CosmologyConfig
	Detector  DetectorConfig
	PSF       PSFConfig
	Numerics  NumericsConfig

	// PixelCount is the output image side length in detector pixels.
	PixelCount int

	// SolverParams optionally overrides lens-equation solver settings
	// (search_window, precision_limit, min_distance, grid_supersample).
	SolverParams Params

	// MagnificationLimit drops solved point-source images fainter than this
	// absolute magnification. Zero disables the limit.
	MagnificationLimit float64
}

// Engine is the boundary of the external optical simulation service. The
// pipeline treats it as a black box that composes a scene from a spec and
// answers rendering and lensing queries about it.
type Engine interface {
	Compose(spec SceneSpec) (Scene, error)
}

// Scene is one composed lens/source/light system ready to render.
type Scene interface {
	// Render produces the 2-D flux image at the spec's pixel count.
	Render() (*Grid, error)

	// ImagePositions solves the lens equation for the point-source layer,
	// returning image-plane positions in arcsec.
	ImagePositions() (xs, ys []float64, err error)

	// Magnifications returns the signed magnification at each position.
	Magnifications(xs, ys []float64) []float64

	// ArrivalTimes returns per-image arrival times in days, scaled by the
	// external-convergence factor (1 - kappaExt).
	ArrivalTimes(xs, ys []float64, kappaExt float64) ([]float64, error)

	// LensLightTotal integrates the lens-light-only surface brightness.
	LensLightTotal() float64

	// SourceFluxTotal integrates the un-lensed source flux.
	SourceFluxTotal() float64

	// NoiseFor draws one detector-noise realization for the image.
	NoiseFor(img *Grid, rng *mathrand.Rand) *Grid

	// PSFConvolver returns a convolution closure operating at
	// detector scale divided by psfSupersample.
	PSFConvolver(psfSupersample int) (func(*Grid) *Grid, error)
}

// ResampleRequest is the input contract of the external drizzle resampling
// routine. Offsets are dither shifts in detector pixels.
type ResampleRequest struct {
	Image *Grid

	SupersamplePixelScale float64
	DetectorPixelScale    float64
	OutputPixelScale      float64

	// Noise returns a noise realization to add to an exposure; a nil-safe
	// no-op must be supplied when noise is disabled.
	Noise func(*Grid) *Grid

	// PSF convolves an exposure at detector scale / PSFSupersampleFactor.
	PSF func(*Grid) *Grid

	PSFSupersampleFactor int
	OffsetPattern        [][2]float64

	// PixFrac is the drizzle pixel fraction; Kernel names the drop kernel.
	PixFrac float64
	Kernel  string
}

// Resampler is the boundary of the external drizzle resampling routine.
type Resampler interface {
	Resample(req ResampleRequest) (*Grid, error)
}
