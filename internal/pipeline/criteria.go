package pipeline

import (
	"fmt"
	"math"

	"lensforge/internal/cosmo"
	"lensforge/pkg/domain"
)

// maxImageSlots is the fixed metadata width for point-source images. All
// four slots are always written; unused slots carry the missing sentinel so
// the schema is identical across image multiplicities.
const maxImageSlots = 4

const psPrefix = "point_source_parameters_"

// pointSourceMetadata solves for the point-source images, applies the
// image-count and magnification criteria, and appends the derived fields
// to metadata. A criteria failure returns a typed rejection; a missing
// required parameter for time delays is a fatal configuration error.
func (h *Handler) pointSourceMetadata(metadata domain.Record, sample domain.Sample, bundle domain.Bundle, scene domain.Scene) (*domain.Rejection, error) {
	xs, ys, err := scene.ImagePositions()
	if err != nil {
		return nil, err
	}
	numImages := len(xs)
	metadata[psPrefix+"num_images"] = numImages

	// offset between the lens center and the point-source position
	if len(bundle.PointSourceKwargs) > 0 && len(bundle.LensKwargs) > 0 {
		psKw := bundle.PointSourceKwargs[0]
		lensKw := lastLensCentered(bundle)
		if lensKw != nil {
			ra, _ := psKw.Float("ra_source")
			dec, _ := psKw.Float("dec_source")
			cx, _ := lensKw.Float("center_x")
			cy, _ := lensKw.Float("center_y")
			metadata[psPrefix+"lens_ps_offset"] = math.Hypot(ra-cx, dec-cy)
		}
	}

	if rej := h.imageCountCriteria(numImages); rej != nil {
		return rej, nil
	}

	magnifications := scene.Magnifications(xs, ys)
	psParams := sample.Component(domain.ComponentPointSource)

	// optional per-image magnification perturbation
	magPert, hasMagPert := psParams.Floats("mag_pert")
	if hasMagPert {
		for i := range magnifications {
			if i < len(magPert) {
				magnifications[i] *= magPert[i]
			}
		}
	}

	// the cut is applied to the unsigned mean; signed values go to metadata
	if h.cfg.PSMagnificationCut != nil {
		var total float64
		for _, m := range magnifications {
			total += math.Abs(m)
		}
		avg := total / float64(len(magnifications))
		if avg < *h.cfg.PSMagnificationCut {
			return &domain.Rejection{
				Reason: domain.RejectPointSourceMagnification,
				Detail: fmt.Sprintf("mean |magnification| %.3f below cut %.3f", avg, *h.cfg.PSMagnificationCut),
			}, nil
		}
	}

	var delays []float64
	computeDelays, _ := psParams.Bool("compute_time_delays")
	if computeDelays {
		kappaExt, ok := psParams.Float("kappa_ext")
		if !ok {
			return nil, domain.Configf("pipeline",
				"kappa_ext must be defined in point_source parameters to compute time delays")
		}
		delays, err = scene.ArrivalTimes(xs, ys, kappaExt)
		if err != nil {
			return nil, err
		}
		if errs, ok := psParams.Floats("time_delay_errors"); ok {
			// the first image anchors the zero point, so errors apply to
			// the remaining images only
			for i := 1; i < len(delays) && i-1 < len(errs); i++ {
				delays[i] += errs[i-1]
			}
		}
		first := delays[0]
		for i := range delays {
			delays[i] -= first
		}

		zLens := lensRedshiftFor(sample)
		c := cosmo.New(h.cosmoCfg(sample))
		metadata[psPrefix+"ddt"] = c.TimeDelayDistance(zLens, bundle.ZSource)
	}

	for i := 0; i < maxImageSlots; i++ {
		if i < numImages {
			metadata[psPrefix+fmt.Sprintf("x_image_%d", i)] = xs[i]
			metadata[psPrefix+fmt.Sprintf("y_image_%d", i)] = ys[i]
			metadata[psPrefix+fmt.Sprintf("magnification_%d", i)] = magnifications[i]
			if hasMagPert {
				metadata[psPrefix+fmt.Sprintf("mag_pert_%d", i)] = floatAt(magPert, i)
			}
		} else {
			metadata[psPrefix+fmt.Sprintf("x_image_%d", i)] = domain.Missing()
			metadata[psPrefix+fmt.Sprintf("y_image_%d", i)] = domain.Missing()
			metadata[psPrefix+fmt.Sprintf("magnification_%d", i)] = domain.Missing()
			if hasMagPert {
				metadata[psPrefix+fmt.Sprintf("mag_pert_%d", i)] = domain.Missing()
			}
		}
		if computeDelays {
			if i < len(delays) {
				metadata[psPrefix+fmt.Sprintf("time_delay_%d", i)] = delays[i]
			} else {
				metadata[psPrefix+fmt.Sprintf("time_delay_%d", i)] = domain.Missing()
			}
		}
	}
	return nil, nil
}

// imageCountCriteria applies the configured multiplicity cuts. Evaluation
// is a pure function of the count and the configuration, so a rejected
// sample always rejects again for the same reason.
func (h *Handler) imageCountCriteria(numImages int) *domain.Rejection {
	if numImages > maxImageSlots+1 {
		return &domain.Rejection{
			Reason: domain.RejectTooManyImages,
			Detail: fmt.Sprintf("%d images found", numImages),
		}
	}
	if numImages < 2 {
		return &domain.Rejection{
			Reason: domain.RejectTooFewImages,
			Detail: fmt.Sprintf("%d images found", numImages),
		}
	}
	if h.cfg.DoublesQuadsOnly && numImages != 2 && numImages != 4 {
		return &domain.Rejection{
			Reason: domain.RejectDoublesQuadsOnly,
			Detail: fmt.Sprintf("%d images found", numImages),
		}
	}
	if h.cfg.QuadsOnly && numImages != 4 {
		return &domain.Rejection{
			Reason: domain.RejectQuadsOnly,
			Detail: fmt.Sprintf("%d images found", numImages),
		}
	}
	return nil
}

// lastLensCentered returns the kwargs of the main-deflector model: the
// last lens entry carrying a center, skipping shear/convergence terms.
func lastLensCentered(bundle domain.Bundle) domain.Params {
	for i := len(bundle.LensKwargs) - 1; i >= 0; i-- {
		if _, ok := bundle.LensKwargs[i].Float("center_x"); ok {
			return bundle.LensKwargs[i]
		}
	}
	return nil
}

func lensRedshiftFor(sample domain.Sample) float64 {
	if md := sample.Component(domain.ComponentMainDeflector); md != nil {
		if z, ok := md.Float("z_lens"); ok {
			return z
		}
	}
	return 0
}

func floatAt(values []float64, i int) float64 {
	if i < len(values) {
		return values[i]
	}
	return domain.Missing()
}
