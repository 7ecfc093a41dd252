package standard

import (
	exprand "golang.org/x/exp/rand"

	"lensforge/pkg/domain"
	"lensforge/pkg/popapi"
)

// sourcePosition places a point source at a source-plane position; the
// engine solves the lens equation for its images. Position defaults to the
// source light center when x/y are not sampled directly.
type sourcePosition struct {
	params           domain.Params
	centerX, centerY float64
}

func newSourcePosition(params domain.Params) (*sourcePosition, error) {
	return &sourcePosition{params: params}, nil
}

func (a *sourcePosition) UpdateParameters(sample domain.Sample) {
	a.params = sample.Component(domain.ComponentPointSource)
	if src := sample.Component(domain.ComponentSource); src != nil {
		a.centerX, _ = src.Float("center_x")
		a.centerY, _ = src.Float("center_y")
	}
}

func (a *sourcePosition) DrawPointSource(_ *exprand.Rand) ([]string, []domain.Params, error) {
	x, ok := a.params.Float("x_point_source")
	if !ok {
		x = a.centerX
	}
	y, ok := a.params.Float("y_point_source")
	if !ok {
		y = a.centerY
	}
	kw := domain.Params{
		"ra_source":  x,
		"dec_source": y,
		"point_amp":  ampFrom(a.params.Float),
	}
	return []string{"SOURCE_POSITION"}, []domain.Params{kw}, nil
}

var _ popapi.PointSourceAdapter = (*sourcePosition)(nil)
