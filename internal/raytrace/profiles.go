// Package raytrace implements the reference optical simulation engine
// behind the domain.Engine boundary: analytic deflector and light
// profiles, single- and multi-plane ray shooting, a lens-equation image
// solver, detector noise, and FFT-based PSF convolution.
package raytrace

import (
	"math"

	"lensforge/pkg/domain"
)

// massProfile is one lens-plane deflector. Deflection returns the reduced
// deflection angle at an image-plane position; Potential returns the lensing
// potential used by single-plane arrival times. All angles are in arcsec.
type massProfile interface {
	Deflection(x, y float64) (ax, ay float64)
	Potential(x, y float64) float64
}

func newMassProfile(name string, kw domain.Params) (massProfile, error) {
	switch name {
	case "SIS":
		return &sisProfile{
			thetaE:  kwFloat(kw, "theta_E"),
			centerX: kwFloat(kw, "center_x"),
			centerY: kwFloat(kw, "center_y"),
		}, nil
	case "SIE":
		p := &sieProfile{
			thetaE:  kwFloat(kw, "theta_E"),
			centerX: kwFloat(kw, "center_x"),
			centerY: kwFloat(kw, "center_y"),
		}
		p.setEllipticity(kwFloat(kw, "e1"), kwFloat(kw, "e2"))
		return p, nil
	case "POINT_MASS":
		return &pointMassProfile{
			thetaE:  kwFloat(kw, "theta_E"),
			centerX: kwFloat(kw, "center_x"),
			centerY: kwFloat(kw, "center_y"),
		}, nil
	case "SHEAR":
		return &shearProfile{
			gamma1: kwFloat(kw, "gamma1"),
			gamma2: kwFloat(kw, "gamma2"),
		}, nil
	case "CONVERGENCE":
		return &convergenceProfile{kappa: kwFloat(kw, "kappa")}, nil
	case "ALPHA_GRID":
		return newAlphaGridProfile(kw)
	default:
		return nil, domain.Configf("raytrace", "unknown lens model %q", name)
	}
}

func kwFloat(kw domain.Params, key string) float64 {
	f, _ := kw.Float(key)
	return f
}

// sisProfile is the singular isothermal sphere.
type sisProfile struct {
	thetaE, centerX, centerY float64
}

func (p *sisProfile) Deflection(x, y float64) (float64, float64) {
	dx := x - p.centerX
	dy := y - p.centerY
	r := math.Hypot(dx, dy)
	if r < 1e-10 {
		return 0, 0
	}
	return p.thetaE * dx / r, p.thetaE * dy / r
}

func (p *sisProfile) Potential(x, y float64) float64 {
	return p.thetaE * math.Hypot(x-p.centerX, y-p.centerY)
}

// sieProfile is the singular isothermal ellipsoid in the Kormann
// parameterization. Near-circular systems fall back to SIS to avoid the
// 1/sqrt(1-q^2) singularity.
type sieProfile struct {
	thetaE, centerX, centerY float64
	q, phi                   float64
}

func (p *sieProfile) setEllipticity(e1, e2 float64) {
	c := math.Hypot(e1, e2)
	if c >= 0.9999 {
		c = 0.9999
	}
	p.phi = 0.5 * math.Atan2(e2, e1)
	p.q = (1 - c) / (1 + c)
}

func (p *sieProfile) Deflection(x, y float64) (float64, float64) {
	if p.q > 0.999 {
		sis := sisProfile{thetaE: p.thetaE, centerX: p.centerX, centerY: p.centerY}
		return sis.Deflection(x, y)
	}
	// rotate into the ellipse frame
	dx := x - p.centerX
	dy := y - p.centerY
	cosP := math.Cos(p.phi)
	sinP := math.Sin(p.phi)
	xr := dx*cosP + dy*sinP
	yr := -dx*sinP + dy*cosP

	q := p.q
	qp := math.Sqrt(1 - q*q)
	psi := math.Sqrt(q*q*xr*xr + yr*yr)
	if psi < 1e-10 {
		return 0, 0
	}
	pref := p.thetaE * math.Sqrt(q) / qp
	axr := pref * math.Atan(qp*xr/psi)
	ayr := pref * math.Atanh(qp*yr/math.Hypot(psi, 0))

	// rotate back
	ax := axr*cosP - ayr*sinP
	ay := axr*sinP + ayr*cosP
	return ax, ay
}

func (p *sieProfile) Potential(x, y float64) float64 {
	// For isothermal profiles psi = x.alpha holds exactly.
	ax, ay := p.Deflection(x, y)
	return (x-p.centerX)*ax + (y-p.centerY)*ay
}

type pointMassProfile struct {
	thetaE, centerX, centerY float64
}

func (p *pointMassProfile) Deflection(x, y float64) (float64, float64) {
	dx := x - p.centerX
	dy := y - p.centerY
	r2 := dx*dx + dy*dy
	if r2 < 1e-20 {
		return 0, 0
	}
	f := p.thetaE * p.thetaE / r2
	return f * dx, f * dy
}

func (p *pointMassProfile) Potential(x, y float64) float64 {
	r := math.Hypot(x-p.centerX, y-p.centerY)
	if r < 1e-10 {
		r = 1e-10
	}
	return p.thetaE * p.thetaE * math.Log(r)
}

type shearProfile struct {
	gamma1, gamma2 float64
}

func (p *shearProfile) Deflection(x, y float64) (float64, float64) {
	return p.gamma1*x + p.gamma2*y, p.gamma2*x - p.gamma1*y
}

func (p *shearProfile) Potential(x, y float64) float64 {
	return 0.5*p.gamma1*(x*x-y*y) + p.gamma2*x*y
}

type convergenceProfile struct {
	kappa float64
}

func (p *convergenceProfile) Deflection(x, y float64) (float64, float64) {
	return p.kappa * x, p.kappa * y
}

func (p *convergenceProfile) Potential(x, y float64) float64 {
	return 0.5 * p.kappa * (x*x + y*y)
}

// alphaGridProfile interpolates precomputed deflection maps. Used by the
// line-of-sight average-deflection correction; the potential of these small
// corrections is treated as zero.
type alphaGridProfile struct {
	alphaX, alphaY *domain.Grid
	pixelScale     float64
	halfExtent     float64
}

func newAlphaGridProfile(kw domain.Params) (*alphaGridProfile, error) {
	ax := kwGrid(kw, "alpha_x")
	ay := kwGrid(kw, "alpha_y")
	if ax == nil || ay == nil {
		return nil, domain.Configf("raytrace", "ALPHA_GRID requires alpha_x and alpha_y maps")
	}
	if ax.W != ay.W || ax.H != ay.H {
		return nil, domain.Configf("raytrace", "ALPHA_GRID map shapes differ: %dx%d vs %dx%d", ax.W, ax.H, ay.W, ay.H)
	}
	scale := kwFloat(kw, "pixel_scale")
	if scale <= 0 {
		return nil, domain.Configf("raytrace", "ALPHA_GRID requires a positive pixel_scale")
	}
	return &alphaGridProfile{
		alphaX:     ax,
		alphaY:     ay,
		pixelScale: scale,
		halfExtent: float64(ax.W) * scale / 2,
	}, nil
}

func kwGrid(kw domain.Params, key string) *domain.Grid {
	switch v := kw[key].(type) {
	case *domain.Grid:
		return v
	case [][]float64:
		if len(v) == 0 {
			return nil
		}
		g := domain.NewGrid(len(v[0]), len(v))
		for y, row := range v {
			for x, val := range row {
				g.Set(x, y, val)
			}
		}
		return g
	default:
		return nil
	}
}

func (p *alphaGridProfile) Deflection(x, y float64) (float64, float64) {
	px := (x + p.halfExtent) / p.pixelScale
	py := (y + p.halfExtent) / p.pixelScale
	return p.alphaX.Bilinear(px, py), p.alphaY.Bilinear(px, py)
}

func (p *alphaGridProfile) Potential(x, y float64) float64 {
	return 0
}
