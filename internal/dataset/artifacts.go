package dataset

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"

	xdraw "golang.org/x/image/draw"

	"lensforge/pkg/domain"
)

// encodeRaw serializes the grid as little-endian float32 pixels, row major.
// Dimensions travel in the blob metadata and the manifest.
func encodeRaw(g *domain.Grid) []byte {
	buf := make([]byte, 4*len(g.Data))
	for i, v := range g.Data {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(float32(v)))
	}
	return buf
}

// decodeRaw parses encodeRaw output given the grid dimensions.
func decodeRaw(data []byte, w, h int) (*domain.Grid, error) {
	if w <= 0 || h <= 0 || len(data) != 4*w*h {
		return nil, fmt.Errorf("dataset: raw payload size %d does not match %dx%d", len(data), w, h)
	}
	g := domain.NewGrid(w, h)
	for i := range g.Data {
		g.Data[i] = float64(math.Float32frombits(binary.LittleEndian.Uint32(data[4*i:])))
	}
	return g, nil
}

// encodePreview renders a 16-bit grayscale PNG with an asinh stretch,
// rescaled to size pixels on a side.
func encodePreview(g *domain.Grid, size int) ([]byte, error) {
	mx := 0.0
	for _, v := range g.Data {
		if v > mx {
			mx = v
		}
	}
	gray := image.NewGray16(image.Rect(0, 0, g.W, g.H))
	if mx > 0 {
		// soften three decades below the peak so faint structure survives
		soft := mx / 1000
		norm := math.Asinh(mx / soft)
		for y := 0; y < g.H; y++ {
			for x := 0; x < g.W; x++ {
				v := g.At(x, y)
				if v < 0 {
					v = 0
				}
				level := math.Asinh(v/soft) / norm
				gray.SetGray16(x, y, grayLevel(level))
			}
		}
	}
	out := gray
	if size > 0 && size != g.W {
		scaled := image.NewGray16(image.Rect(0, 0, size, size))
		xdraw.ApproxBiLinear.Scale(scaled, scaled.Bounds(), gray, gray.Bounds(), xdraw.Src, nil)
		out = scaled
	}
	buf := &bytes.Buffer{}
	if err := png.Encode(buf, out); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func grayLevel(level float64) color.Gray16 {
	if level < 0 {
		level = 0
	}
	if level > 1 {
		level = 1
	}
	return color.Gray16{Y: uint16(level * math.MaxUint16)}
}
