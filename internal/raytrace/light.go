package raytrace

import (
	"math"

	"lensforge/pkg/domain"
)

// lightProfile is one light model. SurfaceBrightness is flux per arcsec^2
// at a position; TotalFlux integrates the un-lensed profile.
type lightProfile interface {
	SurfaceBrightness(x, y float64) float64
	TotalFlux() float64
}

func newLightProfile(name string, kw domain.Params) (lightProfile, error) {
	switch name {
	case "SERSIC_ELLIPSE":
		p := &sersicProfile{
			amp:     kwFloat(kw, "amp"),
			rSersic: kwFloat(kw, "R_sersic"),
			nSersic: kwFloat(kw, "n_sersic"),
			centerX: kwFloat(kw, "center_x"),
			centerY: kwFloat(kw, "center_y"),
		}
		if p.rSersic <= 0 {
			return nil, domain.Configf("raytrace", "SERSIC_ELLIPSE requires positive R_sersic")
		}
		if p.nSersic <= 0 {
			p.nSersic = 1
		}
		p.setEllipticity(kwFloat(kw, "e1"), kwFloat(kw, "e2"))
		return p, nil
	case "IMAGE":
		return newImageStamp(kw)
	default:
		return nil, domain.Configf("raytrace", "unknown light model %q", name)
	}
}

// sersicProfile is an elliptical Sersic brightness profile.
type sersicProfile struct {
	amp, rSersic, nSersic float64
	centerX, centerY      float64
	q, phi                float64
}

func (p *sersicProfile) setEllipticity(e1, e2 float64) {
	c := math.Hypot(e1, e2)
	if c >= 0.9999 {
		c = 0.9999
	}
	p.phi = 0.5 * math.Atan2(e2, e1)
	p.q = (1 - c) / (1 + c)
}

// bn uses the Ciotti & Bertin expansion, accurate for n >= 0.36.
func (p *sersicProfile) bn() float64 {
	n := p.nSersic
	return 2*n - 1.0/3.0 + 4.0/(405.0*n) + 46.0/(25515.0*n*n)
}

func (p *sersicProfile) SurfaceBrightness(x, y float64) float64 {
	dx := x - p.centerX
	dy := y - p.centerY
	cosP := math.Cos(p.phi)
	sinP := math.Sin(p.phi)
	xr := dx*cosP + dy*sinP
	yr := -dx*sinP + dy*cosP
	// elliptical radius with conserved area
	r := math.Sqrt(p.q*xr*xr + yr*yr/p.q)
	return p.amp * math.Exp(-p.bn()*(math.Pow(r/p.rSersic, 1/p.nSersic)-1))
}

func (p *sersicProfile) TotalFlux() float64 {
	// Analytic integral of the elliptical Sersic profile.
	n := p.nSersic
	b := p.bn()
	return p.amp * 2 * math.Pi * n * p.rSersic * p.rSersic *
		math.Exp(b) * math.Pow(b, -2*n) * math.Gamma(2*n)
}

// imageStamp renders a pixelated catalog image with an additional rotation.
type imageStamp struct {
	pixels     *domain.Grid
	pixelScale float64
	amp        float64
	centerX    float64
	centerY    float64
	phi        float64
}

func newImageStamp(kw domain.Params) (*imageStamp, error) {
	pix := kwGrid(kw, "image")
	if pix == nil {
		return nil, domain.Configf("raytrace", "IMAGE light model requires an image grid")
	}
	scale := kwFloat(kw, "scale")
	if scale <= 0 {
		return nil, domain.Configf("raytrace", "IMAGE light model requires a positive scale")
	}
	amp := kwFloat(kw, "amp")
	if amp == 0 {
		amp = 1
	}
	return &imageStamp{
		pixels:     pix,
		pixelScale: scale,
		amp:        amp,
		centerX:    kwFloat(kw, "center_x"),
		centerY:    kwFloat(kw, "center_y"),
		phi:        kwFloat(kw, "phi_G"),
	}, nil
}

func (p *imageStamp) SurfaceBrightness(x, y float64) float64 {
	dx := x - p.centerX
	dy := y - p.centerY
	cosP := math.Cos(p.phi)
	sinP := math.Sin(p.phi)
	xr := dx*cosP + dy*sinP
	yr := -dx*sinP + dy*cosP
	px := xr/p.pixelScale + float64(p.pixels.W-1)/2
	py := yr/p.pixelScale + float64(p.pixels.H-1)/2
	return p.amp * p.pixels.Bilinear(px, py)
}

func (p *imageStamp) TotalFlux() float64 {
	return p.amp * p.pixels.Sum() * p.pixelScale * p.pixelScale
}
