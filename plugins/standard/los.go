package standard

import (
	exprand "golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"

	"lensforge/pkg/domain"
	"lensforge/pkg/popapi"
)

// shearPlanes models the line of sight as a stack of weak shear and
// convergence planes spread between the observer and the source. Each draw
// realizes fresh plane amplitudes, so the population is stochastic even for
// a fixed sample. Parameters:
//
//	n_planes          number of planes (default 5)
//	shear_sigma       per-plane shear scatter
//	convergence_sigma per-plane convergence scatter
//	convergence_mean  per-plane mean convergence (flux compensation uses its
//	                  negated stack total)
//	fov               field of view in arcsec for the correction grid
type shearPlanes struct {
	params domain.Params
	zLens  float64
	zSrc   float64
}

func newShearPlanes(params domain.Params) (*shearPlanes, error) {
	return &shearPlanes{params: params}, nil
}

func (a *shearPlanes) UpdateParameters(sample domain.Sample) {
	a.params = sample.Component(domain.ComponentLOS)
	if md := sample.Component(domain.ComponentMainDeflector); md != nil {
		a.zLens, _ = md.Float("z_lens")
	}
	if src := sample.Component(domain.ComponentSource); src != nil {
		a.zSrc, _ = src.Float("z_source")
	}
}

func (a *shearPlanes) planeCount() int {
	n, ok := a.params.Int("n_planes")
	if !ok || n < 0 {
		return 5
	}
	return n
}

func (a *shearPlanes) DrawLens(rng *exprand.Rand) ([]string, []domain.Params, []float64, error) {
	n := a.planeCount()
	if n == 0 || a.zSrc <= 0 {
		return nil, nil, nil, nil
	}
	shearSigma, _ := a.params.Float("shear_sigma")
	convSigma, _ := a.params.Float("convergence_sigma")
	convMean, _ := a.params.Float("convergence_mean")

	shear := distuv.Normal{Mu: 0, Sigma: shearSigma, Src: rng}
	conv := distuv.Normal{Mu: convMean, Sigma: convSigma, Src: rng}

	models := make([]string, 0, 2*n)
	kwargs := make([]domain.Params, 0, 2*n)
	redshifts := make([]float64, 0, 2*n)
	for i := 0; i < n; i++ {
		z := a.zSrc * float64(i+1) / float64(n+1)
		g1, g2 := 0.0, 0.0
		if shearSigma > 0 {
			g1, g2 = shear.Rand(), shear.Rand()
		}
		kappa := convMean
		if convSigma > 0 {
			kappa = conv.Rand()
		}
		models = append(models, "SHEAR", "CONVERGENCE")
		kwargs = append(kwargs,
			domain.Params{"gamma1": g1, "gamma2": g2},
			domain.Params{"kappa": kappa})
		redshifts = append(redshifts, z, z)
	}
	return models, kwargs, redshifts, nil
}

// AverageDeflection compensates the stack's mean convergence with an
// interpolated deflection map at the main lens plane, keeping the expected
// total magnification near unity.
func (a *shearPlanes) AverageDeflection(gridPixels int) ([]string, []domain.Params, []float64, error) {
	convMean, _ := a.params.Float("convergence_mean")
	fov, _ := a.params.Float("fov")
	n := a.planeCount()
	if convMean == 0 || fov <= 0 || gridPixels < 2 || n == 0 {
		return nil, nil, nil, nil
	}
	kappa := -convMean * float64(n)
	scale := fov / float64(gridPixels)
	alphaX := domain.NewGrid(gridPixels, gridPixels)
	alphaY := domain.NewGrid(gridPixels, gridPixels)
	half := float64(gridPixels-1) / 2
	for j := 0; j < gridPixels; j++ {
		for i := 0; i < gridPixels; i++ {
			x := (float64(i) - half) * scale
			y := (float64(j) - half) * scale
			alphaX.Set(i, j, kappa*x)
			alphaY.Set(i, j, kappa*y)
		}
	}
	kw := domain.Params{
		"alpha_x":     alphaX,
		"alpha_y":     alphaY,
		"pixel_scale": scale,
	}
	return []string{"ALPHA_GRID"}, []domain.Params{kw}, []float64{a.zLens}, nil
}

var (
	_ popapi.LensAdapter               = (*shearPlanes)(nil)
	_ popapi.AverageDeflectionProvider = (*shearPlanes)(nil)
)
