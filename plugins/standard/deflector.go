package standard

import (
	exprand "golang.org/x/exp/rand"

	"lensforge/pkg/domain"
	"lensforge/pkg/popapi"
)

// sieShear maps the main-deflector sample parameters onto an SIE plus an
// external shear at the lens redshift. The draw is deterministic: all
// stochasticity lives in the sampler.
type sieShear struct {
	params domain.Params
}

func newSIEShear(params domain.Params) (*sieShear, error) {
	return &sieShear{params: params}, nil
}

func (a *sieShear) UpdateParameters(sample domain.Sample) {
	a.params = sample.Component(domain.ComponentMainDeflector)
}

func (a *sieShear) DrawLens(_ *exprand.Rand) ([]string, []domain.Params, []float64, error) {
	thetaE, err := a.params.MustFloat(domain.ComponentMainDeflector, "theta_E")
	if err != nil {
		return nil, nil, nil, err
	}
	zLens, err := a.params.MustFloat(domain.ComponentMainDeflector, "z_lens")
	if err != nil {
		return nil, nil, nil, err
	}
	pf := func(key string) float64 {
		v, _ := a.params.Float(key)
		return v
	}
	models := []string{"SIE", "SHEAR"}
	kwargs := []domain.Params{
		{
			"theta_E":  thetaE,
			"e1":       pf("e1"),
			"e2":       pf("e2"),
			"center_x": pf("center_x"),
			"center_y": pf("center_y"),
		},
		{
			"gamma1": pf("gamma1"),
			"gamma2": pf("gamma2"),
		},
	}
	return models, kwargs, []float64{zLens, zLens}, nil
}

var _ popapi.LensAdapter = (*sieShear)(nil)
