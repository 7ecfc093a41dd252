package pipeline

import (
	"lensforge/pkg/domain"
	"lensforge/pkg/popapi"
)

// aggregate merges the per-component adapter draws into one model bundle
// for the given sample. Lens-side layers concatenate in the fixed order
// los -> subhalo -> main_deflector; the light layers draw independently.
// Population adapters may redraw stochastically, so two aggregations over
// the same sample are not guaranteed to produce identical bundles.
//
// The returned sample carries catalog index/rotation back-writes when the
// source adapter is catalog backed; otherwise it is the input sample.
func (h *Handler) aggregate(sample domain.Sample) (domain.Bundle, domain.Sample, error) {
	var bundle domain.Bundle

	if adapter, ok := h.adapters[popapi.KindLOS]; ok {
		lens := adapter.(popapi.LensAdapter)
		lens.UpdateParameters(sample)
		models, kwargs, zs, err := lens.DrawLens(h.seeds.general)
		if err != nil {
			return domain.Bundle{}, sample, err
		}
		bundle.LensModels = append(bundle.LensModels, models...)
		bundle.LensKwargs = append(bundle.LensKwargs, kwargs...)
		bundle.LensRedshifts = append(bundle.LensRedshifts, zs...)

		// the LOS population may contribute an interpolated average
		// deflection correction sized by the working render grid
		if avg, ok := adapter.(popapi.AverageDeflectionProvider); ok {
			gridPixels := h.cfg.PixelCount * h.cfg.Numerics.Normalized().SupersamplingFactor
			models, kwargs, zs, err := avg.AverageDeflection(gridPixels)
			if err != nil {
				return domain.Bundle{}, sample, err
			}
			bundle.LensModels = append(bundle.LensModels, models...)
			bundle.LensKwargs = append(bundle.LensKwargs, kwargs...)
			bundle.LensRedshifts = append(bundle.LensRedshifts, zs...)
		}
	}
	if adapter, ok := h.adapters[popapi.KindSubhalo]; ok {
		lens := adapter.(popapi.LensAdapter)
		lens.UpdateParameters(sample)
		models, kwargs, zs, err := lens.DrawLens(h.seeds.general)
		if err != nil {
			return domain.Bundle{}, sample, err
		}
		bundle.LensModels = append(bundle.LensModels, models...)
		bundle.LensKwargs = append(bundle.LensKwargs, kwargs...)
		bundle.LensRedshifts = append(bundle.LensRedshifts, zs...)
	}
	if adapter, ok := h.adapters[popapi.KindMainDeflector]; ok {
		lens := adapter.(popapi.LensAdapter)
		lens.UpdateParameters(sample)
		models, kwargs, zs, err := lens.DrawLens(h.seeds.general)
		if err != nil {
			return domain.Bundle{}, sample, err
		}
		bundle.LensModels = append(bundle.LensModels, models...)
		bundle.LensKwargs = append(bundle.LensKwargs, kwargs...)
		bundle.LensRedshifts = append(bundle.LensRedshifts, zs...)
	}

	if adapter, ok := h.adapters[popapi.KindLensLight]; ok {
		light := adapter.(popapi.LightAdapter)
		light.UpdateParameters(sample)
		models, kwargs, _, err := light.DrawLight(h.seeds.general)
		if err != nil {
			return domain.Bundle{}, sample, err
		}
		bundle.LensLightModels = models
		bundle.LensLightKwargs = kwargs
	}
	if adapter, ok := h.adapters[popapi.KindPointSource]; ok {
		ps := adapter.(popapi.PointSourceAdapter)
		ps.UpdateParameters(sample)
		models, kwargs, err := ps.DrawPointSource(h.seeds.general)
		if err != nil {
			return domain.Bundle{}, sample, err
		}
		bundle.PointSourceModels = models
		bundle.PointSourceKwargs = kwargs
	}

	// The source adapter is mandatory. Catalog-backed sources choose a
	// catalog index and rotation; both are written back into the sample so
	// they land in metadata and stay fixed for the rest of this pass.
	source := h.adapters[popapi.KindSource].(popapi.LightAdapter)
	source.UpdateParameters(sample)
	if catalog, ok := source.(popapi.CatalogBacked); ok {
		index, rotation := catalog.FillCatalogDefaults(h.seeds.general)
		models, kwargs, zs, err := catalog.DrawCatalogSource(h.seeds.general, index, rotation)
		if err != nil {
			return domain.Bundle{}, sample, err
		}
		bundle.SourceModels = models
		bundle.SourceKwargs = kwargs
		bundle.SourceRedshifts = zs

		updated := sample.Clone()
		updated[domain.ComponentSource]["catalog_i"] = index
		updated[domain.ComponentSource]["phi"] = rotation
		sample = updated
	} else {
		models, kwargs, zs, err := source.DrawLight(h.seeds.general)
		if err != nil {
			return domain.Bundle{}, sample, err
		}
		bundle.SourceModels = models
		bundle.SourceKwargs = kwargs
		bundle.SourceRedshifts = zs
	}

	bundle.MultiPlane = multiPlane(bundle.LensRedshifts, bundle.SourceRedshifts)

	zSource, err := sample[domain.ComponentSource].MustFloat(domain.ComponentSource, "z_source")
	if err != nil {
		return domain.Bundle{}, sample, err
	}
	bundle.ZSource = zSource

	if err := bundle.Validate(); err != nil {
		return domain.Bundle{}, sample, err
	}
	return bundle, sample, nil
}

// multiPlane reports whether either redshift list carries more than one
// distinct value.
func multiPlane(lensZ, sourceZ []float64) bool {
	return distinctCount(lensZ) > 1 || distinctCount(sourceZ) > 1
}

func distinctCount(zs []float64) int {
	seen := make(map[float64]struct{}, len(zs))
	for _, z := range zs {
		seen[z] = struct{}{}
	}
	return len(seen)
}
