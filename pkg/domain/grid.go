package domain

import "math"

// Grid is a dense 2-D flux image stored row-major. X indexes columns,
// Y indexes rows; coordinates are detector pixels unless stated otherwise.
type Grid struct {
	W, H int
	Data []float64
}

// NewGrid allocates a zeroed w x h grid.
func NewGrid(w, h int) *Grid {
	return &Grid{W: w, H: h, Data: make([]float64, w*h)}
}

// At returns the value at column x, row y.
func (g *Grid) At(x, y int) float64 {
	return g.Data[y*g.W+x]
}

// Set stores v at column x, row y.
func (g *Grid) Set(x, y int, v float64) {
	g.Data[y*g.W+x] = v
}

// AddAt accumulates v at column x, row y.
func (g *Grid) AddAt(x, y int, v float64) {
	g.Data[y*g.W+x] += v
}

// Clone returns a deep copy of the grid.
func (g *Grid) Clone() *Grid {
	if g == nil {
		return nil
	}
	cp := &Grid{W: g.W, H: g.H, Data: make([]float64, len(g.Data))}
	copy(cp.Data, g.Data)
	return cp
}

// Sum returns the total flux in the grid.
func (g *Grid) Sum() float64 {
	var total float64
	for _, v := range g.Data {
		total += v
	}
	return total
}

// AddInPlace accumulates other into g. Grids must share dimensions.
func (g *Grid) AddInPlace(other *Grid) {
	for i := range g.Data {
		g.Data[i] += other.Data[i]
	}
}

// Scale multiplies every pixel by f.
func (g *Grid) Scale(f float64) {
	for i := range g.Data {
		g.Data[i] *= f
	}
}

// BinSum reduces the grid by an integer factor, summing each factor x factor
// block so total flux is conserved. The grid dimensions must be divisible by
// the factor.
func (g *Grid) BinSum(factor int) *Grid {
	if factor <= 1 {
		return g.Clone()
	}
	out := NewGrid(g.W/factor, g.H/factor)
	for y := 0; y < out.H; y++ {
		for x := 0; x < out.W; x++ {
			var sum float64
			for dy := 0; dy < factor; dy++ {
				for dx := 0; dx < factor; dx++ {
					sum += g.At(x*factor+dx, y*factor+dy)
				}
			}
			out.Set(x, y, sum)
		}
	}
	return out
}

// Bilinear samples the grid at fractional pixel coordinates, returning 0
// outside the grid bounds.
func (g *Grid) Bilinear(x, y float64) float64 {
	if x < 0 || y < 0 || x > float64(g.W-1) || y > float64(g.H-1) {
		return 0
	}
	x0 := int(math.Floor(x))
	y0 := int(math.Floor(y))
	x1 := x0 + 1
	y1 := y0 + 1
	if x1 > g.W-1 {
		x1 = g.W - 1
	}
	if y1 > g.H-1 {
		y1 = g.H - 1
	}
	fx := x - float64(x0)
	fy := y - float64(y0)
	v00 := g.At(x0, y0)
	v10 := g.At(x1, y0)
	v01 := g.At(x0, y1)
	v11 := g.At(x1, y1)
	return v00*(1-fx)*(1-fy) + v10*fx*(1-fy) + v01*(1-fx)*fy + v11*fx*fy
}
