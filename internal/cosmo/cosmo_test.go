package cosmo

import (
	"math"
	"testing"

	"lensforge/pkg/domain"
)

func planckLike() *FlatLCDM {
	return New(domain.CosmologyConfig{H0: 70, OmegaM: 0.3})
}

func TestComovingDistanceMonotonic(t *testing.T) {
	c := planckLike()
	if c.ComovingDistance(0) != 0 {
		t.Fatal("comoving distance at z=0 must be 0")
	}
	prev := 0.0
	for _, z := range []float64{0.1, 0.5, 1.0, 2.0, 5.0} {
		d := c.ComovingDistance(z)
		if d <= prev {
			t.Fatalf("comoving distance not increasing at z=%v: %v <= %v", z, d, prev)
		}
		prev = d
	}
}

func TestComovingDistanceMatchesReference(t *testing.T) {
	// D_C(z=1) for H0=70, Om=0.3 is about 3306 Mpc (astropy FlatLambdaCDM)
	c := planckLike()
	d := c.ComovingDistance(1.0)
	if math.Abs(d-3306) > 10 {
		t.Fatalf("ComovingDistance(1) = %v Mpc, want ~3306", d)
	}
}

func TestAngularDiameterDistances(t *testing.T) {
	c := planckLike()
	da := c.AngularDiameterDistance(1.0)
	if math.Abs(da-c.ComovingDistance(1.0)/2) > 1e-9 {
		t.Fatalf("D_A(1) = %v, want D_C/2", da)
	}
	if c.AngularDiameterDistanceZ1Z2(1.0, 0.5) != 0 {
		t.Fatal("reversed redshift pair must give 0")
	}
	dls := c.AngularDiameterDistanceZ1Z2(0.5, 1.5)
	if dls <= 0 {
		t.Fatalf("D_A(0.5, 1.5) = %v, want positive", dls)
	}
	if dls >= c.AngularDiameterDistance(1.5)*(1+1.5) {
		t.Fatal("between-redshift distance out of range")
	}
}

func TestTimeDelayDistance(t *testing.T) {
	c := planckLike()
	ddt := c.TimeDelayDistance(0.5, 1.5)
	if ddt <= 0 {
		t.Fatalf("D_dt = %v, want positive", ddt)
	}
	// D_dt grows without bound as the source approaches the lens
	closer := c.TimeDelayDistance(0.5, 0.6)
	if closer <= ddt {
		t.Fatalf("D_dt(0.5, 0.6) = %v should exceed D_dt(0.5, 1.5) = %v", closer, ddt)
	}
	if c.TimeDelayDistance(1.5, 0.5) != 0 {
		t.Fatal("source in front of lens must give 0")
	}
}

func TestHubbleDistanceScalesInversely(t *testing.T) {
	low := New(domain.CosmologyConfig{H0: 50, OmegaM: 0.3})
	high := New(domain.CosmologyConfig{H0: 100, OmegaM: 0.3})
	if math.Abs(low.HubbleDistance()-2*high.HubbleDistance()) > 1e-9 {
		t.Fatal("Hubble distance must scale as 1/H0")
	}
}
