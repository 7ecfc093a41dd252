package standard

import (
	exprand "golang.org/x/exp/rand"

	"lensforge/pkg/domain"
	"lensforge/pkg/popapi"
)

// sersicSource maps a component's sample parameters onto one elliptical
// Sersic profile. The same adapter serves the source and lens-light kinds;
// the component name selects which sub-dictionary it reads.
type sersicSource struct {
	component string
	params    domain.Params
}

func newSersicSource(params domain.Params, component string) (*sersicSource, error) {
	return &sersicSource{component: component, params: params}, nil
}

func (a *sersicSource) UpdateParameters(sample domain.Sample) {
	a.params = sample.Component(a.component)
}

func (a *sersicSource) DrawLight(_ *exprand.Rand) ([]string, []domain.Params, []float64, error) {
	rSersic, err := a.params.MustFloat(a.component, "R_sersic")
	if err != nil {
		return nil, nil, nil, err
	}
	nSersic, err := a.params.MustFloat(a.component, "n_sersic")
	if err != nil {
		return nil, nil, nil, err
	}
	pf := func(key string) float64 {
		v, _ := a.params.Float(key)
		return v
	}
	kw := domain.Params{
		"amp":      ampFrom(a.params.Float),
		"R_sersic": rSersic,
		"n_sersic": nSersic,
		"e1":       pf("e1"),
		"e2":       pf("e2"),
		"center_x": pf("center_x"),
		"center_y": pf("center_y"),
	}
	var z float64
	if a.component == domain.ComponentSource {
		z, err = a.params.MustFloat(a.component, "z_source")
		if err != nil {
			return nil, nil, nil, err
		}
	} else {
		z, _ = a.params.Float("z_lens")
	}
	return []string{"SERSIC_ELLIPSE"}, []domain.Params{kw}, []float64{z}, nil
}

var _ popapi.LightAdapter = (*sersicSource)(nil)
