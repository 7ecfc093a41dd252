package standard

import (
	"math"

	exprand "golang.org/x/exp/rand"

	"lensforge/pkg/domain"
	"lensforge/pkg/popapi"
)

// catalogSource serves real galaxy stamps from a catalog folder. The drawn
// index and rotation flow back into the sample through the pipeline, so
// rendering the same sample twice reuses the same stamp. Parameters:
//
//	catalog_folder        directory of stamp files (see WriteStamp)
//	source_inclusion_list catalog indices eligible for drawing
//	random_rotation       non-zero draws a uniform stamp rotation
//	catalog_i / phi       pre-selected index and rotation (back-written)
type catalogSource struct {
	params domain.Params
	folder string
}

func newCatalogSource(params domain.Params) (*catalogSource, error) {
	a := &catalogSource{params: params}
	if folder, ok := params.String("catalog_folder"); ok {
		a.folder = folder
	}
	return a, nil
}

func (a *catalogSource) UpdateParameters(sample domain.Sample) {
	a.params = sample.Component(domain.ComponentSource)
	if folder, ok := a.params.String("catalog_folder"); ok {
		a.folder = folder
	}
}

// FillCatalogDefaults resolves the stamp index and rotation: explicit
// sample values win, otherwise a uniform draw from the inclusion list and,
// when enabled, a uniform rotation.
func (a *catalogSource) FillCatalogDefaults(rng *exprand.Rand) (int, float64) {
	index, haveIndex := a.params.Int("catalog_i")
	if !haveIndex || index < 0 {
		if list, ok := a.params.Floats("source_inclusion_list"); ok && len(list) > 0 {
			index = int(list[rng.Intn(len(list))])
		} else {
			index = 0
		}
	}
	rotation, haveRotation := a.params.Float("phi")
	if !haveRotation {
		if flag, ok := a.params.Float("random_rotation"); ok && flag != 0 {
			rotation = 2 * math.Pi * rng.Float64()
		}
	}
	return index, rotation
}

func (a *catalogSource) DrawCatalogSource(_ *exprand.Rand, index int, rotation float64) ([]string, []domain.Params, []float64, error) {
	if a.folder == "" {
		return nil, nil, nil, domain.Configf("standard", "catalog source requires catalog_folder")
	}
	stamp, pixelScale, err := ReadStamp(StampPath(a.folder, index))
	if err != nil {
		return nil, nil, nil, err
	}
	zSource, err := a.params.MustFloat(domain.ComponentSource, "z_source")
	if err != nil {
		return nil, nil, nil, err
	}
	pf := func(key string) float64 {
		v, _ := a.params.Float(key)
		return v
	}
	kw := domain.Params{
		"image":    stamp,
		"scale":    pixelScale,
		"amp":      ampFrom(a.params.Float),
		"center_x": pf("center_x"),
		"center_y": pf("center_y"),
		"phi_G":    rotation,
	}
	return []string{"IMAGE"}, []domain.Params{kw}, []float64{zSource}, nil
}

// DrawLight satisfies the light capability for call sites that do not use
// the catalog path; it draws defaults itself.
func (a *catalogSource) DrawLight(rng *exprand.Rand) ([]string, []domain.Params, []float64, error) {
	index, rotation := a.FillCatalogDefaults(rng)
	return a.DrawCatalogSource(rng, index, rotation)
}

var (
	_ popapi.LightAdapter  = (*catalogSource)(nil)
	_ popapi.CatalogBacked = (*catalogSource)(nil)
)
