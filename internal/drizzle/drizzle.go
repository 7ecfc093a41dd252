// Package drizzle implements the external resampling routine behind the
// domain.Resampler boundary: it turns one supersampled noiseless image into
// a dithered multi-exposure observation and combines the exposures onto the
// output grid with a square drop kernel.
package drizzle

import (
	"math"

	"lensforge/pkg/domain"
)

// Resampler is the reference drizzle implementation.
type Resampler struct{}

// New constructs the resampler.
func New() *Resampler { return &Resampler{} }

// Resample implements domain.Resampler. For every dither offset it
// area-resamples the supersampled image to the PSF working scale, applies
// the PSF, bins down to detector scale, adds a noise realization, and
// finally drizzles the exposures onto the output grid with square-kernel
// overlap weights normalized by the accumulated weight map.
func (r *Resampler) Resample(req domain.ResampleRequest) (*domain.Grid, error) {
	if req.Image == nil {
		return nil, domain.Configf("drizzle", "nil input image")
	}
	if req.Kernel != "square" {
		return nil, domain.Configf("drizzle", "unsupported kernel %q", req.Kernel)
	}
	if req.PixFrac <= 0 || req.PixFrac > 1 {
		return nil, domain.Configf("drizzle", "pixfrac %v outside (0,1]", req.PixFrac)
	}
	if len(req.OffsetPattern) == 0 {
		return nil, domain.Configf("drizzle", "empty offset pattern")
	}
	psfSS := req.PSFSupersampleFactor
	if psfSS < 1 {
		psfSS = 1
	}

	// field of view in arcsec, fixed across all resolutions
	fov := float64(req.Image.W) * req.SupersamplePixelScale
	detN := int(math.Round(fov / req.DetectorPixelScale))
	workScale := req.DetectorPixelScale / float64(psfSS)
	workN := detN * psfSS
	outN := int(math.Round(fov / req.OutputPixelScale))
	if detN <= 0 || outN <= 0 {
		return nil, domain.Configf("drizzle", "degenerate geometry: detector %d output %d pixels", detN, outN)
	}

	exposures := make([]*domain.Grid, 0, len(req.OffsetPattern))
	for _, offset := range req.OffsetPattern {
		// offsets are in detector pixels; shift in arcsec
		shiftX := offset[0] * req.DetectorPixelScale
		shiftY := offset[1] * req.DetectorPixelScale

		work := areaResample(req.Image, req.SupersamplePixelScale, workN, workScale, shiftX, shiftY)
		if req.PSF != nil {
			work = req.PSF(work)
		}
		exp := work.BinSum(psfSS)
		if req.Noise != nil {
			if noise := req.Noise(exp); noise != nil {
				exp.AddInPlace(noise)
			}
		}
		exposures = append(exposures, exp)
	}

	return combine(exposures, req.OffsetPattern, req.DetectorPixelScale, req.OutputPixelScale, req.PixFrac, outN), nil
}

// areaResample performs a flux-conserving resample of src (at srcScale) to
// an n x n grid at dstScale, shifting the source by (shiftX, shiftY)
// arcsec. Both grids are centered on the same sky position.
func areaResample(src *domain.Grid, srcScale float64, n int, dstScale, shiftX, shiftY float64) *domain.Grid {
	out := domain.NewGrid(n, n)
	srcHalf := float64(src.W) * srcScale / 2
	dstHalf := float64(n) * dstScale / 2

	for y := 0; y < n; y++ {
		// destination pixel bounds in arcsec, shifted into source frame
		y0 := float64(y)*dstScale - dstHalf - shiftY
		y1 := y0 + dstScale
		for x := 0; x < n; x++ {
			x0 := float64(x)*dstScale - dstHalf - shiftX
			x1 := x0 + dstScale
			out.Set(x, y, integrateArea(src, srcScale, srcHalf, x0, x1, y0, y1))
		}
	}
	return out
}

// integrateArea sums source flux inside an arcsec-space rectangle with
// fractional pixel overlap at the edges.
func integrateArea(src *domain.Grid, scale, half, x0, x1, y0, y1 float64) float64 {
	// convert to source pixel coordinates
	px0 := (x0 + half) / scale
	px1 := (x1 + half) / scale
	py0 := (y0 + half) / scale
	py1 := (y1 + half) / scale

	ix0 := int(math.Floor(px0))
	ix1 := int(math.Ceil(px1))
	iy0 := int(math.Floor(py0))
	iy1 := int(math.Ceil(py1))

	var sum float64
	for iy := iy0; iy < iy1; iy++ {
		if iy < 0 || iy >= src.H {
			continue
		}
		oy := overlap1D(float64(iy), float64(iy+1), py0, py1)
		if oy <= 0 {
			continue
		}
		for ix := ix0; ix < ix1; ix++ {
			if ix < 0 || ix >= src.W {
				continue
			}
			ox := overlap1D(float64(ix), float64(ix+1), px0, px1)
			if ox <= 0 {
				continue
			}
			sum += src.At(ix, iy) * ox * oy
		}
	}
	return sum
}

func overlap1D(a0, a1, b0, b1 float64) float64 {
	lo := math.Max(a0, b0)
	hi := math.Min(a1, b1)
	if hi <= lo {
		return 0
	}
	return hi - lo
}

// combine drizzles detector-scale exposures onto the output grid. Each
// input pixel drops a square footprint shrunk by pixfrac; output pixels
// accumulate flux by overlap area and are normalized by the weight map.
func combine(exposures []*domain.Grid, offsets [][2]float64, detScale, outScale, pixfrac float64, outN int) *domain.Grid {
	flux := domain.NewGrid(outN, outN)
	weight := domain.NewGrid(outN, outN)
	outHalf := float64(outN) * outScale / 2

	for e, exp := range exposures {
		detHalf := float64(exp.W) * detScale / 2
		shiftX := offsets[e][0] * detScale
		shiftY := offsets[e][1] * detScale
		drop := detScale * pixfrac
		inset := (detScale - drop) / 2

		for y := 0; y < exp.H; y++ {
			sy0 := float64(y)*detScale - detHalf + shiftY + inset
			sy1 := sy0 + drop
			for x := 0; x < exp.W; x++ {
				v := exp.At(x, y)
				sx0 := float64(x)*detScale - detHalf + shiftX + inset
				sx1 := sx0 + drop

				// surface brightness of the drop
				dropArea := drop * drop
				ox0 := int(math.Floor((sx0 + outHalf) / outScale))
				ox1 := int(math.Ceil((sx1 + outHalf) / outScale))
				oy0 := int(math.Floor((sy0 + outHalf) / outScale))
				oy1 := int(math.Ceil((sy1 + outHalf) / outScale))
				for oy := oy0; oy < oy1; oy++ {
					if oy < 0 || oy >= outN {
						continue
					}
					wy := overlap1D(float64(oy)*outScale-outHalf, float64(oy+1)*outScale-outHalf, sy0, sy1)
					if wy <= 0 {
						continue
					}
					for ox := ox0; ox < ox1; ox++ {
						if ox < 0 || ox >= outN {
							continue
						}
						wx := overlap1D(float64(ox)*outScale-outHalf, float64(ox+1)*outScale-outHalf, sx0, sx1)
						if wx <= 0 {
							continue
						}
						w := wx * wy / dropArea
						flux.AddAt(ox, oy, v*w)
						weight.AddAt(ox, oy, w)
					}
				}
			}
		}
	}

	scaleRatio := outScale / detScale
	out := domain.NewGrid(outN, outN)
	for i := range out.Data {
		if weight.Data[i] > 0 {
			// normalize to flux per output pixel
			out.Data[i] = flux.Data[i] / weight.Data[i] * scaleRatio * scaleRatio
		}
	}
	return out
}
