package raytrace

import (
	"math"

	"gonum.org/v1/gonum/dsp/fourier"

	"lensforge/pkg/domain"
)

// PSFConvolver implements domain.Scene: a convolution closure operating at
// detector pixel scale divided by psfSupersample. For PIXEL PSFs the
// kernel's own supersampling factor must equal the requested one; the
// pipeline validates that before calling, so a mismatch here is fatal.
func (s *scene) PSFConvolver(psfSupersample int) (func(*domain.Grid) *domain.Grid, error) {
	if psfSupersample < 1 {
		psfSupersample = 1
	}
	scale := s.spec.Detector.PixelScale / float64(psfSupersample)
	switch s.spec.PSF.Type {
	case domain.PSFNone:
		return func(g *domain.Grid) *domain.Grid { return g.Clone() }, nil
	case domain.PSFGaussian:
		kernel := gaussianKernel(s.spec.PSF.FWHM, scale)
		return func(g *domain.Grid) *domain.Grid { return convolveFFT(g, kernel) }, nil
	case domain.PSFPixel:
		if s.spec.PSF.KernelSupersample != psfSupersample {
			return nil, domain.Configf("raytrace",
				"PIXEL psf kernel supersampling %d does not match requested factor %d",
				s.spec.PSF.KernelSupersample, psfSupersample)
		}
		kernel := normalizedKernel(s.spec.PSF.Kernel)
		return func(g *domain.Grid) *domain.Grid { return convolveFFT(g, kernel) }, nil
	default:
		return nil, domain.Configf("raytrace", "unknown psf type %q", s.spec.PSF.Type)
	}
}

func (s *scene) psfConvolverAtScale(scale float64) (func(*domain.Grid) *domain.Grid, error) {
	switch s.spec.PSF.Type {
	case domain.PSFNone:
		return func(g *domain.Grid) *domain.Grid { return g }, nil
	case domain.PSFGaussian:
		kernel := gaussianKernel(s.spec.PSF.FWHM, scale)
		return func(g *domain.Grid) *domain.Grid { return convolveFFT(g, kernel) }, nil
	case domain.PSFPixel:
		kernel := normalizedKernel(s.spec.PSF.Kernel)
		return func(g *domain.Grid) *domain.Grid { return convolveFFT(g, kernel) }, nil
	default:
		return nil, domain.Configf("raytrace", "unknown psf type %q", s.spec.PSF.Type)
	}
}

// gaussianKernel builds a unit-sum Gaussian kernel at the given pixel
// scale, truncated at four sigma.
func gaussianKernel(fwhm, pixelScale float64) *domain.Grid {
	sigma := fwhm / 2.3548200450309493 / pixelScale
	if sigma <= 0 {
		k := domain.NewGrid(1, 1)
		k.Set(0, 0, 1)
		return k
	}
	radius := int(math.Ceil(4 * sigma))
	if radius < 1 {
		radius = 1
	}
	n := 2*radius + 1
	k := domain.NewGrid(n, n)
	for y := 0; y < n; y++ {
		for x := 0; x < n; x++ {
			dx := float64(x - radius)
			dy := float64(y - radius)
			k.Set(x, y, math.Exp(-(dx*dx+dy*dy)/(2*sigma*sigma)))
		}
	}
	k.Scale(1 / k.Sum())
	return k
}

func normalizedKernel(k *domain.Grid) *domain.Grid {
	out := k.Clone()
	if sum := out.Sum(); sum > 0 {
		out.Scale(1 / sum)
	}
	return out
}

// convolveFFT performs a same-size linear convolution via zero-padded FFTs.
func convolveFFT(img, kernel *domain.Grid) *domain.Grid {
	padW := nextPow2(img.W + kernel.W - 1)
	padH := nextPow2(img.H + kernel.H - 1)

	a := toComplex(img, padW, padH, 0, 0)
	// center the kernel so the output is not shifted
	b := toComplex(kernel, padW, padH, 0, 0)

	fft2InPlace(a, padW, padH, true)
	fft2InPlace(b, padW, padH, true)
	for i := range a {
		a[i] *= b[i]
	}
	fft2InPlace(a, padW, padH, false)

	norm := 1 / float64(padW*padH)
	out := domain.NewGrid(img.W, img.H)
	offX := (kernel.W - 1) / 2
	offY := (kernel.H - 1) / 2
	for y := 0; y < img.H; y++ {
		for x := 0; x < img.W; x++ {
			out.Set(x, y, real(a[(y+offY)*padW+x+offX])*norm)
		}
	}
	return out
}

func toComplex(g *domain.Grid, w, h, offX, offY int) []complex128 {
	out := make([]complex128, w*h)
	for y := 0; y < g.H; y++ {
		for x := 0; x < g.W; x++ {
			out[(y+offY)*w+x+offX] = complex(g.At(x, y), 0)
		}
	}
	return out
}

func fft2InPlace(a []complex128, w, h int, forward bool) {
	rowFFT := fourier.NewCmplxFFT(w)
	colFFT := fourier.NewCmplxFFT(h)

	tmp := make([]complex128, w)
	for y := 0; y < h; y++ {
		copy(tmp, a[y*w:(y+1)*w])
		if forward {
			rowFFT.Coefficients(tmp, tmp)
		} else {
			rowFFT.Sequence(tmp, tmp)
		}
		copy(a[y*w:(y+1)*w], tmp)
	}

	col := make([]complex128, h)
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			col[y] = a[y*w+x]
		}
		if forward {
			colFFT.Coefficients(col, col)
		} else {
			colFFT.Sequence(col, col)
		}
		for y := 0; y < h; y++ {
			a[y*w+x] = col[y]
		}
	}
}

func nextPow2(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}
