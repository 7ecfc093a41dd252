package pipeline

import (
	"fmt"
	"hash/fnv"
	mathrand "math/rand"
	"strings"

	exprand "golang.org/x/exp/rand"
)

// Seed identifies one draw: the immutable base sequence plus the reseed
// counter value active for the draw. Its string form is stamped into the
// metadata record so any image is reproducible from its metadata alone.
type Seed struct {
	Base  []uint32
	Index int
}

// String renders the seed as "<base>:<index>" with multi-element bases
// joined by dashes.
func (s Seed) String() string {
	parts := make([]string, len(s.Base))
	for i, b := range s.Base {
		parts[i] = fmt.Sprintf("%d", b)
	}
	return fmt.Sprintf("%s:%d", strings.Join(parts, "-"), s.Index)
}

// seedController advances a pair of independent random streams in lockstep:
// the general stream feeding the sampler and the population adapters, and
// the fast stream feeding the engine's noise and solver paths. Both are
// reseeded together on every draw so one recorded seed reproduces the
// whole image.
type seedController struct {
	base    []uint32
	counter int

	generalSrc exprand.Source
	general    *exprand.Rand
	fast       *mathrand.Rand
}

func newSeedController(base []uint32) *seedController {
	if len(base) == 0 {
		// a small random base seed is easy to copy back into a config
		base = []uint32{mathrand.Uint32()}
	}
	src := exprand.NewSource(1)
	return &seedController{
		base:       base,
		generalSrc: src,
		general:    exprand.New(src),
		fast:       mathrand.New(mathrand.NewSource(1)),
	}
}

// Reseed derives the seed for the next draw, seeds both streams, and
// advances the counter. The first draw uses the bare base sequence so one
// particular image can be reproduced directly from a configured seed.
func (c *seedController) Reseed() Seed {
	seed := Seed{Base: c.base, Index: c.counter}
	c.seedStreams(seed)
	c.counter++
	return seed
}

// seedStreams seeds both streams for the given draw without advancing the
// counter. Used once at construction so the initialization sample is
// deterministic too.
func (c *seedController) seedStreams(seed Seed) {
	h := fnv.New64a()
	for _, b := range seed.Base {
		var buf [4]byte
		buf[0] = byte(b)
		buf[1] = byte(b >> 8)
		buf[2] = byte(b >> 16)
		buf[3] = byte(b >> 24)
		h.Write(buf[:])
	}
	if seed.Index > 0 {
		fmt.Fprintf(h, ":%d", seed.Index)
	}
	c.generalSrc.Seed(h.Sum64())
	// the fast stream is seeded from the freshly seeded general stream
	c.fast.Seed(int64(c.general.Uint32()))
}
