package raytrace

import (
	"math"
	"sort"

	"lensforge/internal/cosmo"
	"lensforge/pkg/domain"
)

// Engine composes scenes from scene specs. It is stateless; every Compose
// builds a fresh scene from the spec alone.
type Engine struct{}

// New constructs the engine.
func New() *Engine { return &Engine{} }

type lensPlane struct {
	z        float64
	profiles []massProfile
}

type scene struct {
	spec domain.SceneSpec

	planes      []lensPlane // sorted by redshift for multi-plane shooting
	sourceLight []lightProfile
	lensLight   []lightProfile
	points      []pointSource

	cosmology *cosmo.FlatLCDM
	zLens     float64 // redshift of the first lens plane, for time delays
}

type pointSource struct {
	raSource, decSource float64
	amp                 float64
}

// Compose implements domain.Engine.
func (e *Engine) Compose(spec domain.SceneSpec) (domain.Scene, error) {
	if err := spec.Bundle.Validate(); err != nil {
		return nil, err
	}
	if spec.PixelCount <= 0 {
		return nil, domain.Configf("raytrace", "pixel count must be positive, got %d", spec.PixelCount)
	}
	if spec.Detector.PixelScale <= 0 {
		return nil, domain.Configf("raytrace", "detector pixel scale must be positive, got %v", spec.Detector.PixelScale)
	}
	s := &scene{
		spec:      spec,
		cosmology: cosmo.New(spec.Cosmology),
	}

	// Group lens models into planes by redshift, preserving draw order
	// within a plane and sorting planes front to back.
	byZ := make(map[float64][]massProfile)
	var zs []float64
	for i, name := range spec.Bundle.LensModels {
		profile, err := newMassProfile(name, spec.Bundle.LensKwargs[i])
		if err != nil {
			return nil, err
		}
		z := spec.Bundle.LensRedshifts[i]
		if _, seen := byZ[z]; !seen {
			zs = append(zs, z)
		}
		byZ[z] = append(byZ[z], profile)
	}
	sort.Float64s(zs)
	for _, z := range zs {
		s.planes = append(s.planes, lensPlane{z: z, profiles: byZ[z]})
	}
	if len(s.planes) > 0 {
		s.zLens = s.planes[0].z
	}

	for i, name := range spec.Bundle.SourceModels {
		profile, err := newLightProfile(name, spec.Bundle.SourceKwargs[i])
		if err != nil {
			return nil, err
		}
		s.sourceLight = append(s.sourceLight, profile)
	}
	for i, name := range spec.Bundle.LensLightModels {
		profile, err := newLightProfile(name, spec.Bundle.LensLightKwargs[i])
		if err != nil {
			return nil, err
		}
		s.lensLight = append(s.lensLight, profile)
	}
	for i, name := range spec.Bundle.PointSourceModels {
		if name != "SOURCE_POSITION" {
			return nil, domain.Configf("raytrace", "unknown point source model %q", name)
		}
		kw := spec.Bundle.PointSourceKwargs[i]
		s.points = append(s.points, pointSource{
			raSource:  kwFloat(kw, "ra_source"),
			decSource: kwFloat(kw, "dec_source"),
			amp:       kwFloat(kw, "point_amp"),
		})
	}
	return s, nil
}

// rayShoot maps an image-plane angle to the source plane.
func (s *scene) rayShoot(x, y float64) (float64, float64) {
	if !s.spec.Bundle.MultiPlane {
		ax, ay := s.totalDeflection(x, y)
		return x - ax, y - ay
	}
	return s.rayShootMultiPlane(x, y)
}

func (s *scene) totalDeflection(x, y float64) (float64, float64) {
	var ax, ay float64
	for _, plane := range s.planes {
		for _, p := range plane.profiles {
			dx, dy := p.Deflection(x, y)
			ax += dx
			ay += dy
		}
	}
	return ax, ay
}

// rayShootMultiPlane follows the standard reduced-deflection recursion over
// comoving distances, front plane to source plane.
func (s *scene) rayShootMultiPlane(x, y float64) (float64, float64) {
	zs := s.spec.Bundle.ZSource
	ds := s.cosmology.ComovingDistance(zs)
	if ds <= 0 {
		return x, y
	}

	// comoving transverse position and angle, in arcsec * Mpc units
	cx, cy := 0.0, 0.0
	tx, ty := x, y
	prevD := 0.0
	for _, plane := range s.planes {
		if plane.z >= zs {
			break
		}
		d := s.cosmology.ComovingDistance(plane.z)
		cx += tx * (d - prevD)
		cy += ty * (d - prevD)
		prevD = d

		// angular position at this plane
		px := cx / d
		py := cy / d
		var ax, ay float64
		for _, p := range plane.profiles {
			dx, dy := p.Deflection(px, py)
			ax += dx
			ay += dy
		}
		// convert reduced deflection (defined w.r.t. the source plane) to
		// a physical bend at this plane
		dls := s.cosmology.ComovingDistance(zs) - d
		if dls <= 0 {
			continue
		}
		scale := ds / dls
		tx -= ax * scale
		ty -= ay * scale
	}
	cx += tx * (ds - prevD)
	cy += ty * (ds - prevD)
	return cx / ds, cy / ds
}

// Render implements domain.Scene.
func (s *scene) Render() (*domain.Grid, error) {
	numerics := s.spec.Numerics.Normalized()
	ss := numerics.SupersamplingFactor
	n := s.spec.PixelCount * ss
	scale := s.spec.Detector.PixelScale / float64(ss)
	img := domain.NewGrid(n, n)
	half := float64(n-1) / 2

	pixArea := scale * scale
	for yi := 0; yi < n; yi++ {
		y := (float64(yi) - half) * scale
		for xi := 0; xi < n; xi++ {
			x := (float64(xi) - half) * scale
			bx, by := s.rayShoot(x, y)
			var flux float64
			for _, src := range s.sourceLight {
				flux += src.SurfaceBrightness(bx, by)
			}
			for _, ll := range s.lensLight {
				flux += ll.SurfaceBrightness(x, y)
			}
			img.Set(xi, yi, flux*pixArea)
		}
	}

	if len(s.points) > 0 {
		if err := s.renderPointSources(img, scale, half); err != nil {
			return nil, err
		}
	}

	if s.spec.PSF.Type != domain.PSFNone {
		convolve, err := s.psfConvolverAtScale(scale)
		if err != nil {
			return nil, err
		}
		if numerics.SupersamplingConvolution || ss == 1 {
			img = convolve(img)
			img = img.BinSum(ss)
		} else {
			img = img.BinSum(ss)
			convolve, err = s.psfConvolverAtScale(s.spec.Detector.PixelScale)
			if err != nil {
				return nil, err
			}
			img = convolve(img)
			return img, nil
		}
		return img, nil
	}
	return img.BinSum(ss), nil
}

func (s *scene) renderPointSources(img *domain.Grid, scale, half float64) error {
	xs, ys, err := s.ImagePositions()
	if err != nil {
		return err
	}
	mags := s.Magnifications(xs, ys)
	for _, ps := range s.points {
		for i := range xs {
			flux := ps.amp * math.Abs(mags[i])
			px := xs[i]/scale + half
			py := ys[i]/scale + half
			depositBilinear(img, px, py, flux)
		}
	}
	return nil
}

// depositBilinear spreads flux across the four pixels surrounding a
// fractional position, conserving the total.
func depositBilinear(img *domain.Grid, px, py, flux float64) {
	x0 := int(math.Floor(px))
	y0 := int(math.Floor(py))
	fx := px - float64(x0)
	fy := py - float64(y0)
	add := func(x, y int, f float64) {
		if x >= 0 && y >= 0 && x < img.W && y < img.H {
			img.AddAt(x, y, f)
		}
	}
	add(x0, y0, flux*(1-fx)*(1-fy))
	add(x0+1, y0, flux*fx*(1-fy))
	add(x0, y0+1, flux*(1-fx)*fy)
	add(x0+1, y0+1, flux*fx*fy)
}

// LensLightTotal implements domain.Scene.
func (s *scene) LensLightTotal() float64 {
	var total float64
	for _, p := range s.lensLight {
		total += p.TotalFlux()
	}
	return total
}

// SourceFluxTotal implements domain.Scene.
func (s *scene) SourceFluxTotal() float64 {
	var total float64
	for _, p := range s.sourceLight {
		total += p.TotalFlux()
	}
	return total
}
