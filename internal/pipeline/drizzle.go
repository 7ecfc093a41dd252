package pipeline

import (
	"fmt"

	"lensforge/pkg/domain"
)

// renderDrizzle simulates a dithered, drizzled observation: render a
// supersampled noiseless image through the standard path, then hand it to
// the external resampling routine together with a noise source and PSF
// built for the detector-scale exposures. All temporary overrides live on
// a derived copy of the sample, so the Handler's sample and numerics are
// never touched and restoration is structural.
func (h *Handler) renderDrizzle(sample domain.Sample) (renderOutcome, error) {
	dp := sample.Component(domain.ComponentDrizzle)
	if dp == nil {
		return renderOutcome{}, domain.Configf("pipeline", "drizzle rendering requires drizzle_parameters in the sample")
	}
	ssScale, err := dp.MustFloat(domain.ComponentDrizzle, "supersample_pixel_scale")
	if err != nil {
		return renderOutcome{}, err
	}
	outScale, err := dp.MustFloat(domain.ComponentDrizzle, "output_pixel_scale")
	if err != nil {
		return renderOutcome{}, err
	}
	detScale, err := sample.Component(domain.ComponentDetector).MustFloat(domain.ComponentDetector, "pixel_scale")
	if err != nil {
		return renderOutcome{}, err
	}
	offsets, err := offsetPattern(dp)
	if err != nil {
		return renderOutcome{}, err
	}

	ratio := detScale / ssScale
	if ratio < 1 {
		return renderOutcome{}, domain.Configf("pipeline",
			"supersample_pixel_scale %v coarser than detector pixel scale %v", ssScale, detScale)
	}
	workPixels := int(float64(h.cfg.PixelCount) * ratio)

	// supersampled pass: derived sample, scaled-down internal numerics,
	// no noise, no PSF
	work := sample.Clone()
	work[domain.ComponentDetector]["pixel_scale"] = ssScale
	workNumerics := h.scaledNumerics(ratio)

	outcome, err := h.renderStandard(work, workNumerics, workPixels, false, false)
	if err != nil {
		return outcome, err
	}
	if outcome.rejection != nil {
		// a rejected pass must not leak the supersample overrides back to
		// the Handler's sample
		outcome.sample = sample
		return outcome, nil
	}

	psfSS := 1
	if v, ok := dp.Int("psf_supersample_factor"); ok && v >= 1 {
		psfSS = v
	} else {
		h.diag.WarnOnce(warnPSFSupersample, "no psf_supersample_factor provided so 1 will be assumed")
	}
	if float64(psfSS) > ratio {
		return renderOutcome{}, domain.Configf("pipeline",
			"psf_supersample_factor %d larger than the supersampling %v defined in the drizzle parameters", psfSS, ratio)
	}

	psfCfg, err := domain.PSFConfigFrom(sample.Component(domain.ComponentPSF))
	if err != nil {
		return renderOutcome{}, err
	}
	if psfCfg.Type == domain.PSFPixel {
		if _, ok := sample.Component(domain.ComponentPSF).Int("point_source_supersampling_factor"); !ok {
			return renderOutcome{}, domain.Configf("pipeline",
				"PIXEL psf in a drizzle render requires point_source_supersampling_factor in psf_parameters")
		}
		if psfCfg.KernelSupersample != psfSS {
			return renderOutcome{}, domain.Configf("pipeline",
				"point_source_supersampling_factor of a PIXEL psf must equal psf_supersample_factor in the drizzle parameters (%d vs %d)",
				psfCfg.KernelSupersample, psfSS)
		}
	}

	// Exposure-scale scene for noise and PSF: internal supersampling is
	// disabled entirely, the resampling routine owns it from here.
	detector, err := domain.DetectorConfigFrom(sample.Component(domain.ComponentDetector))
	if err != nil {
		return renderOutcome{}, err
	}
	detector.PixelScale = detScale / float64(psfSS)
	cosmology, err := h.cosmoConfig(sample)
	if err != nil {
		return renderOutcome{}, err
	}
	exposureScene, err := h.engine.Compose(domain.SceneSpec{
		Bundle:     domain.Bundle{ZSource: 1},
		Cosmology:  cosmology,
		Detector:   detector,
		PSF:        psfCfg,
		Numerics:   domain.NumericsConfig{}.Normalized(),
		PixelCount: h.cfg.PixelCount * psfSS,
	})
	if err != nil {
		return renderOutcome{}, fmt.Errorf("compose exposure scene: %w", err)
	}
	convolve, err := exposureScene.PSFConvolver(psfSS)
	if err != nil {
		return renderOutcome{}, err
	}
	var noise func(*domain.Grid) *domain.Grid
	if !h.cfg.NoNoise {
		noise = func(g *domain.Grid) *domain.Grid {
			return exposureScene.NoiseFor(g, h.seeds.fast)
		}
	}

	image, err := h.resampler.Resample(domain.ResampleRequest{
		Image:                 outcome.image,
		SupersamplePixelScale: ssScale,
		DetectorPixelScale:    detScale,
		OutputPixelScale:      outScale,
		Noise:                 noise,
		PSF:                   convolve,
		PSFSupersampleFactor:  psfSS,
		OffsetPattern:         offsets,
		PixFrac:               1.0,
		Kernel:                "square",
	})
	if err != nil {
		return renderOutcome{}, fmt.Errorf("resample: %w", err)
	}

	// metadata from the supersampled pass, corrected by re-flattening the
	// untouched sample; back-written keys absent there survive the merge
	metadata := outcome.metadata
	metadata.Merge(h.flattenMetadata(sample))

	return renderOutcome{image: image, metadata: metadata, sample: sample}, nil
}

// scaledNumerics divides the internal supersampling factors by the drizzle
// ratio (floored, minimum 1) so the supersampled pass does not
// double-supersample. Each adjustment warns once per Handler.
func (h *Handler) scaledNumerics(ratio float64) domain.NumericsConfig {
	numerics := h.cfg.Numerics
	if numerics.SupersamplingFactor > 0 {
		adjusted := int(float64(numerics.SupersamplingFactor) / ratio)
		if adjusted < 1 {
			adjusted = 1
		}
		if adjusted != numerics.SupersamplingFactor {
			h.diag.WarnOnce(warnNumericsSS, "numerics supersampling_factor modified for drizzle")
		}
		numerics.SupersamplingFactor = adjusted
	}
	if numerics.PointSourceSupersamplingFactor > 0 {
		adjusted := int(float64(numerics.PointSourceSupersamplingFactor) / ratio)
		if adjusted < 1 {
			adjusted = 1
		}
		if adjusted != numerics.PointSourceSupersamplingFactor {
			h.diag.WarnOnce(warnNumericsPointSS, "numerics point_source_supersampling_factor modified for drizzle")
		}
		numerics.PointSourceSupersamplingFactor = adjusted
	}
	return numerics
}

// offsetPattern parses the dither offsets out of drizzle_parameters.
func offsetPattern(dp domain.Params) ([][2]float64, error) {
	raw, ok := dp["offset_pattern"]
	if !ok {
		return nil, domain.Configf("pipeline", "drizzle_parameters missing offset_pattern")
	}
	switch tv := raw.(type) {
	case [][2]float64:
		return tv, nil
	case [][]float64:
		out := make([][2]float64, len(tv))
		for i, pair := range tv {
			if len(pair) != 2 {
				return nil, domain.Configf("pipeline", "offset_pattern entry %d has %d elements, want 2", i, len(pair))
			}
			out[i] = [2]float64{pair[0], pair[1]}
		}
		return out, nil
	case []any:
		out := make([][2]float64, len(tv))
		for i, e := range tv {
			pair, ok := e.([]any)
			if !ok || len(pair) != 2 {
				return nil, domain.Configf("pipeline", "offset_pattern entry %d is not a coordinate pair", i)
			}
			for j, c := range pair {
				f, ok := c.(float64)
				if !ok {
					if iv, isInt := c.(int); isInt {
						f = float64(iv)
					} else {
						return nil, domain.Configf("pipeline", "offset_pattern entry %d has a non-numeric coordinate", i)
					}
				}
				out[i][j] = f
			}
		}
		return out, nil
	default:
		return nil, domain.Configf("pipeline", "offset_pattern has unsupported type %T", raw)
	}
}
