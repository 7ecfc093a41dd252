// Package cosmo provides the flat Lambda-CDM distance utilities the
// pipeline needs: comoving and angular-diameter distances and the
// time-delay distance entering point-source arrival times.
package cosmo

import (
	"math"

	"gonum.org/v1/gonum/integrate/quad"

	"lensforge/pkg/domain"
)

// SpeedOfLightKMS is c in km/s.
const SpeedOfLightKMS = 299792.458

// FlatLCDM is a flat Lambda-CDM cosmology. Distances are in Mpc.
type FlatLCDM struct {
	H0     float64 // km/s/Mpc
	OmegaM float64
}

// New constructs a cosmology from sampled cosmology parameters.
func New(cfg domain.CosmologyConfig) *FlatLCDM {
	return &FlatLCDM{H0: cfg.H0, OmegaM: cfg.OmegaM}
}

// HubbleDistance returns c/H0 in Mpc.
func (c *FlatLCDM) HubbleDistance() float64 {
	return SpeedOfLightKMS / c.H0
}

func (c *FlatLCDM) efunc(z float64) float64 {
	zp := 1 + z
	return math.Sqrt(c.OmegaM*zp*zp*zp + (1 - c.OmegaM))
}

// ComovingDistance returns the line-of-sight comoving distance to z in Mpc.
func (c *FlatLCDM) ComovingDistance(z float64) float64 {
	if z <= 0 {
		return 0
	}
	integral := quad.Fixed(func(zz float64) float64 {
		return 1 / c.efunc(zz)
	}, 0, z, 64, nil, 0)
	return c.HubbleDistance() * integral
}

// AngularDiameterDistance returns the angular diameter distance to z in Mpc.
func (c *FlatLCDM) AngularDiameterDistance(z float64) float64 {
	return c.ComovingDistance(z) / (1 + z)
}

// AngularDiameterDistanceZ1Z2 returns the angular diameter distance between
// two redshifts in Mpc. Valid for flat cosmologies only.
func (c *FlatLCDM) AngularDiameterDistanceZ1Z2(z1, z2 float64) float64 {
	if z2 <= z1 {
		return 0
	}
	return (c.ComovingDistance(z2) - c.ComovingDistance(z1)) / (1 + z2)
}

// TimeDelayDistance returns D_dt = (1+z_lens) D_l D_s / D_ls in Mpc.
func (c *FlatLCDM) TimeDelayDistance(zLens, zSource float64) float64 {
	dl := c.AngularDiameterDistance(zLens)
	ds := c.AngularDiameterDistance(zSource)
	dls := c.AngularDiameterDistanceZ1Z2(zLens, zSource)
	if dls <= 0 {
		return 0
	}
	return (1 + zLens) * dl * ds / dls
}
