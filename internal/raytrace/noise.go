package raytrace

import (
	"math"
	mathrand "math/rand"

	"lensforge/pkg/domain"
)

// NoiseFor implements domain.Scene: one Gaussian detector-noise realization
// with a background term (read noise plus sky counts) and a shot term from
// the clamped signal. The fast random stream is injected so noise stays
// reproducible from the recorded seed.
func (s *scene) NoiseFor(img *domain.Grid, rng *mathrand.Rand) *domain.Grid {
	det := s.spec.Detector
	background := det.ReadNoise*det.ReadNoise + det.SkyLevel*det.ExposureTime
	out := domain.NewGrid(img.W, img.H)
	for i, v := range img.Data {
		variance := background
		if v > 0 {
			variance += v / det.Gain
		}
		out.Data[i] = rng.NormFloat64() * math.Sqrt(variance)
	}
	return out
}
