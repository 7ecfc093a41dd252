package raytrace

import (
	"math"
	"sort"

	"lensforge/pkg/domain"
)

// Solver defaults; overridable through lens_equation_solver_parameters.
const (
	defaultGridSupersample = 4
	defaultPrecisionLimit  = 1e-8
	defaultMinDistance     = 0.05 // arcsec, image deduplication radius
	defaultMaxIterations   = 50
)

// ImagePositions implements domain.Scene. It solves the lens equation for
// the first point source on a supersampled raster, refines candidate roots
// with Newton iterations on the numerical lensing Jacobian, deduplicates,
// applies the optional magnification floor, and orders images by
// decreasing |magnification| with position as tie-breaker so the result is
// deterministic.
func (s *scene) ImagePositions() ([]float64, []float64, error) {
	if len(s.points) == 0 {
		return nil, nil, domain.Configf("raytrace", "scene has no point source")
	}
	ps := s.points[0]

	window := float64(s.spec.PixelCount) * s.spec.Detector.PixelScale
	gridSS := defaultGridSupersample
	precision := defaultPrecisionLimit
	minDist := defaultMinDistance
	if p := s.spec.SolverParams; p != nil {
		if v, ok := p.Float("search_window"); ok && v > 0 {
			window = v
		}
		if v, ok := p.Int("grid_supersample"); ok && v > 0 {
			gridSS = v
		}
		if v, ok := p.Float("precision_limit"); ok && v > 0 {
			precision = v
		}
		if v, ok := p.Float("min_distance"); ok && v > 0 {
			minDist = v
		}
	}

	n := s.spec.PixelCount * gridSS
	step := window / float64(n)
	half := window / 2

	// residual of the lens equation at an image-plane position
	resid := func(x, y float64) (float64, float64) {
		bx, by := s.rayShoot(x, y)
		return bx - ps.raSource, by - ps.decSource
	}

	// Raster pass: cells where the residual norm is a local minimum seed
	// the refinement.
	norms := make([]float64, n*n)
	for yi := 0; yi < n; yi++ {
		y := -half + (float64(yi)+0.5)*step
		for xi := 0; xi < n; xi++ {
			x := -half + (float64(xi)+0.5)*step
			rx, ry := resid(x, y)
			norms[yi*n+xi] = math.Hypot(rx, ry)
		}
	}

	var candX, candY []float64
	for yi := 1; yi < n-1; yi++ {
		for xi := 1; xi < n-1; xi++ {
			v := norms[yi*n+xi]
			if v > step*2 {
				continue
			}
			isMin := true
			for dy := -1; dy <= 1 && isMin; dy++ {
				for dx := -1; dx <= 1; dx++ {
					if dx == 0 && dy == 0 {
						continue
					}
					if norms[(yi+dy)*n+xi+dx] < v {
						isMin = false
						break
					}
				}
			}
			if isMin {
				candX = append(candX, -half+(float64(xi)+0.5)*step)
				candY = append(candY, -half+(float64(yi)+0.5)*step)
			}
		}
	}

	var xs, ys []float64
	for i := range candX {
		x, y, ok := s.refineImage(candX[i], candY[i], resid, precision)
		if !ok {
			continue
		}
		dup := false
		for j := range xs {
			if math.Hypot(xs[j]-x, ys[j]-y) < minDist {
				dup = true
				break
			}
		}
		if !dup {
			xs = append(xs, x)
			ys = append(ys, y)
		}
	}

	if limit := s.spec.MagnificationLimit; limit > 0 {
		mags := s.Magnifications(xs, ys)
		var fx, fy []float64
		for i := range xs {
			if math.Abs(mags[i]) >= limit {
				fx = append(fx, xs[i])
				fy = append(fy, ys[i])
			}
		}
		xs, ys = fx, fy
	}

	s.sortImages(xs, ys)
	return xs, ys, nil
}

// refineImage runs Newton iterations on the lens equation residual using a
// finite-difference Jacobian.
func (s *scene) refineImage(x, y float64, resid func(float64, float64) (float64, float64), precision float64) (float64, float64, bool) {
	const h = 1e-6
	for iter := 0; iter < defaultMaxIterations; iter++ {
		rx, ry := resid(x, y)
		if math.Hypot(rx, ry) < precision {
			return x, y, true
		}
		rxx, ryx := resid(x+h, y)
		rxy, ryy := resid(x, y+h)
		j11 := (rxx - rx) / h
		j21 := (ryx - ry) / h
		j12 := (rxy - rx) / h
		j22 := (ryy - ry) / h
		det := j11*j22 - j12*j21
		if math.Abs(det) < 1e-14 {
			return 0, 0, false
		}
		x -= (j22*rx - j12*ry) / det
		y -= (-j21*rx + j11*ry) / det
	}
	rx, ry := resid(x, y)
	return x, y, math.Hypot(rx, ry) < precision*100
}

func (s *scene) sortImages(xs, ys []float64) {
	if len(xs) < 2 {
		return
	}
	mags := s.Magnifications(xs, ys)
	idx := make([]int, len(xs))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		ma := math.Abs(mags[idx[a]])
		mb := math.Abs(mags[idx[b]])
		if ma != mb {
			return ma > mb
		}
		if xs[idx[a]] != xs[idx[b]] {
			return xs[idx[a]] < xs[idx[b]]
		}
		return ys[idx[a]] < ys[idx[b]]
	})
	sx := make([]float64, len(xs))
	sy := make([]float64, len(ys))
	for i, j := range idx {
		sx[i] = xs[j]
		sy[i] = ys[j]
	}
	copy(xs, sx)
	copy(ys, sy)
}

// Magnifications implements domain.Scene: signed magnification from the
// numerical Jacobian of the ray-shooting map.
func (s *scene) Magnifications(xs, ys []float64) []float64 {
	const h = 1e-5
	out := make([]float64, len(xs))
	for i := range xs {
		x, y := xs[i], ys[i]
		bx0, by0 := s.rayShoot(x, y)
		bx1, by1 := s.rayShoot(x+h, y)
		bx2, by2 := s.rayShoot(x, y+h)
		a11 := (bx1 - bx0) / h
		a21 := (by1 - by0) / h
		a12 := (bx2 - bx0) / h
		a22 := (by2 - by0) / h
		det := a11*a22 - a12*a21
		if det == 0 {
			out[i] = math.Inf(1)
			continue
		}
		out[i] = 1 / det
	}
	return out
}

// arcsec^2 * Mpc / c expressed in days. The Fermat potential is evaluated
// in arcsec^2; one arcsec is pi/180/3600 radians.
const daysPerMpcArcsec2 = mpcKM / cosmoC * arcsecRad * arcsecRad / 86400

const (
	mpcKM     = 3.0856775814913673e19
	cosmoC    = 299792.458
	arcsecRad = math.Pi / 180 / 3600
)

// ArrivalTimes implements domain.Scene: single-plane Fermat-potential
// arrival times in days, scaled by the time-delay distance and the
// external-convergence factor (1 - kappaExt).
func (s *scene) ArrivalTimes(xs, ys []float64, kappaExt float64) ([]float64, error) {
	if len(s.points) == 0 {
		return nil, domain.Configf("raytrace", "scene has no point source")
	}
	ps := s.points[0]
	ddt := s.cosmology.TimeDelayDistance(s.zLens, s.spec.Bundle.ZSource)
	if ddt <= 0 {
		return nil, domain.Configf("raytrace", "time-delay distance is not defined for z_lens=%v z_source=%v", s.zLens, s.spec.Bundle.ZSource)
	}
	out := make([]float64, len(xs))
	for i := range xs {
		x, y := xs[i], ys[i]
		dx := x - ps.raSource
		dy := y - ps.decSource
		var psi float64
		for _, plane := range s.planes {
			for _, p := range plane.profiles {
				psi += p.Potential(x, y)
			}
		}
		fermat := 0.5*(dx*dx+dy*dy) - psi
		out[i] = (1 - kappaExt) * ddt * daysPerMpcArcsec2 * fermat
	}
	return out, nil
}
