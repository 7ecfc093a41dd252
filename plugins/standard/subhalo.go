package standard

import (
	"math"

	exprand "golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"

	"lensforge/pkg/domain"
	"lensforge/pkg/popapi"
)

// sisPopulation draws a Poisson-distributed population of singular
// isothermal subhalos scattered around the main deflector. Parameters:
//
//	n_mean      expected subhalo count (Poisson rate; 0 disables the layer)
//	theta_e_min lower Einstein-radius bound (log-uniform draw)
//	theta_e_max upper Einstein-radius bound
//	r_max       placement radius around the deflector center in arcsec
type sisPopulation struct {
	params           domain.Params
	zLens            float64
	centerX, centerY float64
}

func newSISPopulation(params domain.Params) (*sisPopulation, error) {
	return &sisPopulation{params: params}, nil
}

func (a *sisPopulation) UpdateParameters(sample domain.Sample) {
	a.params = sample.Component(domain.ComponentSubhalo)
	if md := sample.Component(domain.ComponentMainDeflector); md != nil {
		a.zLens, _ = md.Float("z_lens")
		a.centerX, _ = md.Float("center_x")
		a.centerY, _ = md.Float("center_y")
	}
}

func (a *sisPopulation) DrawLens(rng *exprand.Rand) ([]string, []domain.Params, []float64, error) {
	mean, _ := a.params.Float("n_mean")
	if mean <= 0 {
		return nil, nil, nil, nil
	}
	thetaMin, ok := a.params.Float("theta_e_min")
	if !ok || thetaMin <= 0 {
		thetaMin = 1e-3
	}
	thetaMax, ok := a.params.Float("theta_e_max")
	if !ok || thetaMax < thetaMin {
		thetaMax = thetaMin
	}
	rMax, _ := a.params.Float("r_max")

	n := int(distuv.Poisson{Lambda: mean, Src: rng}.Rand())
	models := make([]string, 0, n)
	kwargs := make([]domain.Params, 0, n)
	redshifts := make([]float64, 0, n)
	logMin, logMax := math.Log(thetaMin), math.Log(thetaMax)
	for i := 0; i < n; i++ {
		thetaE := math.Exp(logMin + rng.Float64()*(logMax-logMin))
		// uniform over the placement disk
		r := rMax * math.Sqrt(rng.Float64())
		phi := 2 * math.Pi * rng.Float64()
		models = append(models, "SIS")
		kwargs = append(kwargs, domain.Params{
			"theta_E":  thetaE,
			"center_x": a.centerX + r*math.Cos(phi),
			"center_y": a.centerY + r*math.Sin(phi),
		})
		redshifts = append(redshifts, a.zLens)
	}
	return models, kwargs, redshifts, nil
}

var _ popapi.LensAdapter = (*sisPopulation)(nil)
