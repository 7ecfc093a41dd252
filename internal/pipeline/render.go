package pipeline

import (
	"fmt"

	"lensforge/pkg/domain"
)

// renderOutcome is the result of one rendering pass before the façade
// converts rejections into the sentinel pair.
type renderOutcome struct {
	image     *domain.Grid
	metadata  domain.Record
	rejection *domain.Rejection
	// sample is the (possibly back-written) sample the pass rendered from.
	sample domain.Sample
}

// renderStandard drives the engine through one standard-resolution pass:
// aggregate the models, compose the scene, render, apply the flux-ratio
// magnification cut, optionally add noise, rebuild metadata, and compute
// point-source metadata when that layer is present.
func (h *Handler) renderStandard(sample domain.Sample, numerics domain.NumericsConfig, pixelCount int, addNoise, applyPSF bool) (renderOutcome, error) {
	bundle, sample, err := h.aggregate(sample)
	if err != nil {
		return renderOutcome{}, err
	}

	spec, err := h.sceneSpec(sample, bundle, numerics, pixelCount, applyPSF)
	if err != nil {
		return renderOutcome{}, err
	}
	scene, err := h.engine.Compose(spec)
	if err != nil {
		return renderOutcome{}, fmt.Errorf("compose scene: %w", err)
	}
	image, err := scene.Render()
	if err != nil {
		return renderOutcome{}, fmt.Errorf("render: %w", err)
	}

	// total-flux magnification cut: image flux minus lens light over the
	// un-lensed source flux
	if h.cfg.MagCut != nil {
		sourceTotal := scene.SourceFluxTotal()
		if sourceTotal > 0 {
			mag := (image.Sum() - scene.LensLightTotal()) / sourceTotal
			if mag < *h.cfg.MagCut {
				return renderOutcome{
					rejection: &domain.Rejection{
						Reason: domain.RejectMagnificationCut,
						Detail: fmt.Sprintf("flux ratio %.3f below cut %.3f", mag, *h.cfg.MagCut),
					},
					sample: sample,
				}, nil
			}
		}
	}

	if addNoise {
		image.AddInPlace(scene.NoiseFor(image, h.seeds.fast))
	}

	metadata := h.flattenMetadata(sample)

	if bundle.HasPointSource() {
		rejection, err := h.pointSourceMetadata(metadata, sample, bundle, scene)
		if err != nil {
			return renderOutcome{}, err
		}
		if rejection != nil {
			return renderOutcome{rejection: rejection, sample: sample}, nil
		}
	}

	return renderOutcome{image: image, metadata: metadata, sample: sample}, nil
}

// sceneSpec assembles the engine input contract from the sample.
func (h *Handler) sceneSpec(sample domain.Sample, bundle domain.Bundle, numerics domain.NumericsConfig, pixelCount int, applyPSF bool) (domain.SceneSpec, error) {
	detector, err := domain.DetectorConfigFrom(sample.Component(domain.ComponentDetector))
	if err != nil {
		return domain.SceneSpec{}, err
	}
	// optional pixel grid override
	if pg := sample.Component(domain.ComponentPixelGrid); pg != nil {
		if scale, ok := pg.Float("pixel_scale"); ok && scale > 0 {
			detector.PixelScale = scale
		}
	}

	psf := domain.PSFConfig{Type: domain.PSFNone}
	if applyPSF {
		psf, err = domain.PSFConfigFrom(sample.Component(domain.ComponentPSF))
		if err != nil {
			return domain.SceneSpec{}, err
		}
	}

	cosmology, err := h.cosmoConfig(sample)
	if err != nil {
		return domain.SceneSpec{}, err
	}

	spec := domain.SceneSpec{
		Bundle:       bundle,
		Cosmology:    cosmology,
		Detector:     detector,
		PSF:          psf,
		Numerics:     numerics.Normalized(),
		PixelCount:   pixelCount,
		SolverParams: sample.Component(domain.ComponentLensSolver),
	}
	if h.cfg.MagnificationLimit != nil {
		spec.MagnificationLimit = *h.cfg.MagnificationLimit
	}
	return spec, nil
}

func (h *Handler) cosmoConfig(sample domain.Sample) (domain.CosmologyConfig, error) {
	return domain.CosmologyConfigFrom(sample.Component(domain.ComponentCosmology))
}

// cosmoCfg is the infallible variant used where the sample has already
// been validated by a render pass.
func (h *Handler) cosmoCfg(sample domain.Sample) domain.CosmologyConfig {
	cfg, _ := h.cosmoConfig(sample)
	return cfg
}
