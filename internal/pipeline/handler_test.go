package pipeline

import (
	"errors"
	"math"
	mathrand "math/rand"
	"testing"

	exprand "golang.org/x/exp/rand"

	"lensforge/pkg/domain"
	"lensforge/pkg/popapi"
)

// stubSampler returns a clone of a fixed base sample, plus one value drawn
// from the general stream so seeding behavior is observable.
type stubSampler struct {
	base domain.Sample
}

func (s *stubSampler) Sample(rng *exprand.Rand) domain.Sample {
	out := s.base.Clone()
	out[domain.ComponentSource]["jitter"] = rng.Float64()
	return out
}

type stubEngine struct {
	specs []domain.SceneSpec
	scene *stubScene
}

func (e *stubEngine) Compose(spec domain.SceneSpec) (domain.Scene, error) {
	e.specs = append(e.specs, spec)
	return e.scene, nil
}

type stubScene struct {
	image     *domain.Grid
	xs, ys    []float64
	mags      []float64
	delays    []float64
	lensLight float64
	srcFlux   float64
	noiseAdd  float64
}

func (s *stubScene) Render() (*domain.Grid, error) {
	return s.image.Clone(), nil
}

func (s *stubScene) ImagePositions() ([]float64, []float64, error) {
	return append([]float64(nil), s.xs...), append([]float64(nil), s.ys...), nil
}

func (s *stubScene) Magnifications(xs, ys []float64) []float64 {
	return append([]float64(nil), s.mags...)
}

func (s *stubScene) ArrivalTimes(xs, ys []float64, kappaExt float64) ([]float64, error) {
	return append([]float64(nil), s.delays...), nil
}

func (s *stubScene) LensLightTotal() float64  { return s.lensLight }
func (s *stubScene) SourceFluxTotal() float64 { return s.srcFlux }

func (s *stubScene) NoiseFor(img *domain.Grid, rng *mathrand.Rand) *domain.Grid {
	n := domain.NewGrid(img.W, img.H)
	for i := range n.Data {
		n.Data[i] = s.noiseAdd
	}
	return n
}

func (s *stubScene) PSFConvolver(psfSupersample int) (func(*domain.Grid) *domain.Grid, error) {
	return func(g *domain.Grid) *domain.Grid { return g }, nil
}

type stubResampler struct {
	requests []domain.ResampleRequest
}

func (r *stubResampler) Resample(req domain.ResampleRequest) (*domain.Grid, error) {
	r.requests = append(r.requests, req)
	return req.Image.Clone(), nil
}

type stubLightAdapter struct{}

func (stubLightAdapter) UpdateParameters(domain.Sample) {}

func (stubLightAdapter) DrawLight(*exprand.Rand) ([]string, []domain.Params, []float64, error) {
	return []string{"SERSIC_ELLIPSE"},
		[]domain.Params{{"amp": 1.0, "R_sersic": 0.5, "n_sersic": 2.0}},
		[]float64{1.5}, nil
}

type stubPointAdapter struct{}

func (stubPointAdapter) UpdateParameters(domain.Sample) {}

func (stubPointAdapter) DrawPointSource(*exprand.Rand) ([]string, []domain.Params, error) {
	return []string{"SOURCE_POSITION"},
		[]domain.Params{{"ra_source": 0.1, "dec_source": -0.05, "point_amp": 10.0}}, nil
}

func testRegistry(t *testing.T) *popapi.Registry {
	t.Helper()
	reg := popapi.NewRegistry()
	if err := reg.Register(popapi.KindSource, "stub", func(domain.Params) (popapi.Adapter, error) {
		return stubLightAdapter{}, nil
	}); err != nil {
		t.Fatalf("register source: %v", err)
	}
	if err := reg.Register(popapi.KindPointSource, "stub", func(domain.Params) (popapi.Adapter, error) {
		return stubPointAdapter{}, nil
	}); err != nil {
		t.Fatalf("register point source: %v", err)
	}
	return reg
}

func baseSample() domain.Sample {
	return domain.Sample{
		domain.ComponentSource: {
			"z_source": 1.5,
		},
		domain.ComponentMainDeflector: {
			"z_lens": 0.5,
		},
		domain.ComponentDetector: {
			"pixel_scale": 0.08,
		},
		domain.ComponentPSF: {
			"psf_type": "NONE",
		},
		domain.ComponentCosmology: {
			"H0":      70.0,
			"omega_m": 0.3,
		},
		domain.ComponentPointSource: {
			"x_point_source": 0.1,
			"y_point_source": -0.05,
		},
	}
}

func flatImage(n int, v float64) *domain.Grid {
	g := domain.NewGrid(n, n)
	for i := range g.Data {
		g.Data[i] = v
	}
	return g
}

func baseConfig() Config {
	return Config{
		Components: map[popapi.Kind]ComponentRef{
			popapi.KindSource: {Model: "stub"},
		},
		PixelCount: 8,
		Seed:       []uint32{7, 11},
		NoNoise:    true,
	}
}

func newTestHandler(t *testing.T, cfg Config, scene *stubScene) (*Handler, *stubEngine) {
	t.Helper()
	if scene == nil {
		scene = &stubScene{image: flatImage(cfg.PixelCount, 1.0), srcFlux: 1}
	}
	engine := &stubEngine{scene: scene}
	h, err := NewHandler(cfg, &stubSampler{base: baseSample()}, engine, &stubResampler{}, testRegistry(t))
	if err != nil {
		t.Fatalf("NewHandler: %v", err)
	}
	return h, engine
}

func TestNewHandlerRequiresSource(t *testing.T) {
	cfg := baseConfig()
	cfg.Components = map[popapi.Kind]ComponentRef{}
	_, err := NewHandler(cfg, &stubSampler{base: baseSample()}, &stubEngine{scene: &stubScene{}}, nil, testRegistry(t))
	if err == nil {
		t.Fatal("expected error for missing source component")
	}
	var cerr *domain.ConfigError
	if !errors.As(err, &cerr) {
		t.Fatalf("want ConfigError, got %T", err)
	}
}

func TestNewHandlerDrizzleNeedsResampler(t *testing.T) {
	cfg := baseConfig()
	cfg.Drizzle = true
	_, err := NewHandler(cfg, &stubSampler{base: baseSample()}, &stubEngine{scene: &stubScene{}}, nil, testRegistry(t))
	if err == nil {
		t.Fatal("expected error for drizzle without resampler")
	}
}

func TestDrawImageSeedString(t *testing.T) {
	h, _ := newTestHandler(t, baseConfig(), nil)

	for i, want := range []string{"7-11:0", "7-11:1"} {
		res, err := h.DrawImage(true)
		if err != nil {
			t.Fatalf("draw %d: %v", i, err)
		}
		if got := res.Metadata["seed"]; got != want {
			t.Fatalf("draw %d seed = %v, want %s", i, got, want)
		}
	}
}

func TestDrawImageDeterministic(t *testing.T) {
	first, _ := newTestHandler(t, baseConfig(), nil)
	second, _ := newTestHandler(t, baseConfig(), nil)

	resA, err := first.DrawImage(true)
	if err != nil {
		t.Fatalf("first draw: %v", err)
	}
	resB, err := second.DrawImage(true)
	if err != nil {
		t.Fatalf("second draw: %v", err)
	}
	jitterA := resA.Metadata["source_parameters_jitter"].(float64)
	jitterB := resB.Metadata["source_parameters_jitter"].(float64)
	if jitterA != jitterB {
		t.Fatalf("same seed drew different samples: %v vs %v", jitterA, jitterB)
	}
	if resA.Metadata["seed"] != resB.Metadata["seed"] {
		t.Fatalf("seed strings differ: %v vs %v", resA.Metadata["seed"], resB.Metadata["seed"])
	}
}

func TestDrawImageMaskRadius(t *testing.T) {
	cfg := baseConfig()
	cfg.PixelCount = 5
	cfg.MaskRadius = 1.0
	h, _ := newTestHandler(t, cfg, &stubScene{image: flatImage(5, 1.0), srcFlux: 1})
	// unit pixel scale makes the masked region easy to count
	h.sample[domain.ComponentDetector]["pixel_scale"] = 1.0

	res, err := h.DrawImage(false)
	if err != nil {
		t.Fatalf("DrawImage: %v", err)
	}
	var zeros int
	for _, v := range res.Image.Data {
		if v == 0 {
			zeros++
		}
	}
	// center pixel plus its four axis neighbors lie within radius 1
	if zeros != 5 {
		t.Fatalf("masked %d pixels, want 5", zeros)
	}
	if res.Image.At(2, 2) != 0 {
		t.Fatal("center pixel not masked")
	}
	if res.Image.At(0, 0) != 1 {
		t.Fatal("corner pixel should survive the mask")
	}
}

func TestDrawImageAddsNoise(t *testing.T) {
	cfg := baseConfig()
	cfg.NoNoise = false
	h, _ := newTestHandler(t, cfg, &stubScene{image: flatImage(8, 1.0), srcFlux: 1, noiseAdd: 0.25})

	res, err := h.DrawImage(false)
	if err != nil {
		t.Fatalf("DrawImage: %v", err)
	}
	if got := res.Image.At(0, 0); got != 1.25 {
		t.Fatalf("pixel = %v, want 1.25 after noise", got)
	}
}

func TestMagnificationCutRejects(t *testing.T) {
	cut := 3.0
	cfg := baseConfig()
	cfg.MagCut = &cut
	scene := &stubScene{image: flatImage(8, 0.01), srcFlux: 1, lensLight: 0}
	h, _ := newTestHandler(t, cfg, scene)

	res, err := h.DrawImage(false)
	if err != nil {
		t.Fatalf("DrawImage: %v", err)
	}
	if res.Accepted() {
		t.Fatal("expected a rejection")
	}
	if res.Rejection.Reason != domain.RejectMagnificationCut {
		t.Fatalf("reason = %s, want %s", res.Rejection.Reason, domain.RejectMagnificationCut)
	}
	if res.Image != nil || res.Metadata != nil {
		t.Fatal("rejected result must carry nil image and metadata")
	}
}

func TestImageCountCriteria(t *testing.T) {
	cases := []struct {
		name      string
		numImages int
		doubles   bool
		quads     bool
		want      domain.RejectReason
	}{
		{"too few", 1, false, false, domain.RejectTooFewImages},
		{"too many", 6, false, false, domain.RejectTooManyImages},
		{"doubles quads", 3, true, false, domain.RejectDoublesQuadsOnly},
		{"quads only", 2, false, true, domain.RejectQuadsOnly},
		{"accepted double", 2, true, false, ""},
		{"accepted quad", 4, true, true, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := &Handler{cfg: Config{DoublesQuadsOnly: tc.doubles, QuadsOnly: tc.quads}}
			rej := h.imageCountCriteria(tc.numImages)
			if tc.want == "" {
				if rej != nil {
					t.Fatalf("unexpected rejection %s", rej)
				}
				return
			}
			if rej == nil || rej.Reason != tc.want {
				t.Fatalf("rejection = %v, want %s", rej, tc.want)
			}
		})
	}
}

func TestPointSourceSentinelSlots(t *testing.T) {
	cfg := baseConfig()
	cfg.Components[popapi.KindPointSource] = ComponentRef{Model: "stub"}
	scene := &stubScene{
		image:   flatImage(8, 1.0),
		srcFlux: 1,
		xs:      []float64{0.4, -0.3},
		ys:      []float64{0.1, -0.2},
		mags:    []float64{4.0, -2.0},
	}
	h, _ := newTestHandler(t, cfg, scene)

	res, err := h.DrawImage(false)
	if err != nil {
		t.Fatalf("DrawImage: %v", err)
	}
	if !res.Accepted() {
		t.Fatalf("unexpected rejection %s", res.Rejection)
	}
	if got := res.Metadata["point_source_parameters_num_images"]; got != 2 {
		t.Fatalf("num_images = %v, want 2", got)
	}
	if got := res.Metadata["point_source_parameters_magnification_1"]; got != -2.0 {
		t.Fatalf("magnification_1 = %v, want signed -2", got)
	}
	for i := 2; i < 4; i++ {
		for _, field := range []string{"x_image", "y_image", "magnification"} {
			key := psPrefix + field + "_" + string(rune('0'+i))
			v, ok := res.Metadata[key]
			if !ok {
				t.Fatalf("missing sentinel slot %s", key)
			}
			if !domain.IsMissing(v) {
				t.Fatalf("%s = %v, want NaN sentinel", key, v)
			}
		}
	}
}

func TestPointSourceMagnificationCut(t *testing.T) {
	cut := 3.0
	cfg := baseConfig()
	cfg.Components[popapi.KindPointSource] = ComponentRef{Model: "stub"}
	cfg.PSMagnificationCut = &cut
	scene := &stubScene{
		image:   flatImage(8, 1.0),
		srcFlux: 1,
		xs:      []float64{0.4, -0.3},
		ys:      []float64{0.1, -0.2},
		mags:    []float64{2.0, -3.0}, // mean |mag| 2.5 below the cut
	}
	h, _ := newTestHandler(t, cfg, scene)

	res, err := h.DrawImage(false)
	if err != nil {
		t.Fatalf("DrawImage: %v", err)
	}
	if res.Accepted() {
		t.Fatal("expected a rejection")
	}
	if res.Rejection.Reason != domain.RejectPointSourceMagnification {
		t.Fatalf("reason = %s, want %s", res.Rejection.Reason, domain.RejectPointSourceMagnification)
	}
}

func TestTimeDelaysRequireKappaExt(t *testing.T) {
	cfg := baseConfig()
	cfg.Components[popapi.KindPointSource] = ComponentRef{Model: "stub"}
	scene := &stubScene{
		image:   flatImage(8, 1.0),
		srcFlux: 1,
		xs:      []float64{0.4, -0.3},
		ys:      []float64{0.1, -0.2},
		mags:    []float64{4.0, -2.0},
	}
	h, _ := newTestHandler(t, cfg, scene)
	h.sample[domain.ComponentPointSource]["compute_time_delays"] = true

	if _, err := h.DrawImage(false); err == nil {
		t.Fatal("expected fatal error without kappa_ext")
	}
}

func TestTimeDelaysRelativeToFirstImage(t *testing.T) {
	cfg := baseConfig()
	cfg.Components[popapi.KindPointSource] = ComponentRef{Model: "stub"}
	scene := &stubScene{
		image:   flatImage(8, 1.0),
		srcFlux: 1,
		xs:      []float64{0.4, -0.3},
		ys:      []float64{0.1, -0.2},
		mags:    []float64{4.0, -2.0},
		delays:  []float64{10.0, 14.0},
	}
	h, _ := newTestHandler(t, cfg, scene)
	h.sample[domain.ComponentPointSource]["compute_time_delays"] = true
	h.sample[domain.ComponentPointSource]["kappa_ext"] = 0.02

	res, err := h.DrawImage(false)
	if err != nil {
		t.Fatalf("DrawImage: %v", err)
	}
	if !res.Accepted() {
		t.Fatalf("unexpected rejection %s", res.Rejection)
	}
	if got := res.Metadata[psPrefix+"time_delay_0"]; got != 0.0 {
		t.Fatalf("time_delay_0 = %v, want 0", got)
	}
	if got := res.Metadata[psPrefix+"time_delay_1"]; got != 4.0 {
		t.Fatalf("time_delay_1 = %v, want 4", got)
	}
	if !domain.IsMissing(res.Metadata[psPrefix+"time_delay_2"]) {
		t.Fatal("time_delay_2 should carry the sentinel")
	}
	ddt, ok := res.Metadata[psPrefix+"ddt"].(float64)
	if !ok || ddt <= 0 {
		t.Fatalf("ddt = %v, want a positive distance", res.Metadata[psPrefix+"ddt"])
	}
}

func TestFlattenMetadata(t *testing.T) {
	h, _ := newTestHandler(t, baseConfig(), nil)
	sample := domain.Sample{
		domain.ComponentSource: {
			"z_source":              1.5,
			"random_rotation":       true,
			"catalog_folder":        "/data/stamps",
			"source_inclusion_list": []float64{0, 1, 2},
			"bad_value":             map[string]int{"x": 1},
		},
		domain.ComponentDrizzle: {
			"offset_pattern": [][]float64{{0, 0}},
			"pixfrac":        1.0,
		},
	}

	md := h.flattenMetadata(sample)
	if got := md["source_parameters_random_rotation"]; got != 1 {
		t.Fatalf("bool flattened to %v, want 1", got)
	}
	if got := md["drizzle_parameters_pixfrac"]; got != 1.0 {
		t.Fatalf("pixfrac = %v, want 1.0", got)
	}
	for _, key := range []string{
		"source_parameters_catalog_folder",
		"source_parameters_source_inclusion_list",
		"drizzle_parameters_offset_pattern",
		"source_parameters_bad_value",
	} {
		if _, ok := md[key]; ok {
			t.Fatalf("%s should not appear in metadata", key)
		}
	}
	if !h.diag.Warned(warnSerialization) {
		t.Fatal("dropping a non-scalar value should warn once")
	}
}

func TestDrizzleLeavesHandlerStateUntouched(t *testing.T) {
	cfg := baseConfig()
	cfg.Drizzle = true
	cfg.Numerics = domain.NumericsConfig{SupersamplingFactor: 2}
	scene := &stubScene{image: flatImage(16, 1.0), srcFlux: 1}
	engine := &stubEngine{scene: scene}
	resampler := &stubResampler{}
	sample := baseSample()
	sample[domain.ComponentDrizzle] = domain.Params{
		"supersample_pixel_scale": 0.04,
		"output_pixel_scale":      0.08,
		"psf_supersample_factor":  1,
		"offset_pattern":          [][]float64{{0, 0}, {0.5, 0.5}},
	}
	h, err := NewHandler(cfg, &stubSampler{base: sample}, engine, resampler, testRegistry(t))
	if err != nil {
		t.Fatalf("NewHandler: %v", err)
	}

	res, err := h.DrawImage(true)
	if err != nil {
		t.Fatalf("DrawImage: %v", err)
	}
	if !res.Accepted() {
		t.Fatalf("unexpected rejection %s", res.Rejection)
	}

	// the supersampled pass rendered at twice the pixel count and with the
	// internal supersampling divided out
	if len(engine.specs) < 1 {
		t.Fatal("engine never composed a scene")
	}
	work := engine.specs[0]
	if work.PixelCount != 16 {
		t.Fatalf("supersampled pass pixel count = %d, want 16", work.PixelCount)
	}
	if work.Numerics.SupersamplingFactor != 1 {
		t.Fatalf("supersampled pass kept supersampling factor %d", work.Numerics.SupersamplingFactor)
	}
	if work.Detector.PixelScale != 0.04 {
		t.Fatalf("supersampled pass pixel scale = %v, want 0.04", work.Detector.PixelScale)
	}
	if !h.diag.Warned(warnNumericsSS) {
		t.Fatal("numerics adjustment should warn once")
	}

	if len(resampler.requests) != 1 {
		t.Fatalf("resampler called %d times, want 1", len(resampler.requests))
	}
	req := resampler.requests[0]
	if req.SupersamplePixelScale != 0.04 || req.DetectorPixelScale != 0.08 || req.OutputPixelScale != 0.08 {
		t.Fatalf("unexpected resample scales: %+v", req)
	}
	if len(req.OffsetPattern) != 2 {
		t.Fatalf("offset pattern length = %d, want 2", len(req.OffsetPattern))
	}

	// the handler's own sample kept the detector resolution
	scale, _ := h.CurrentSample().Component(domain.ComponentDetector).Float("pixel_scale")
	if scale != 0.08 {
		t.Fatalf("handler sample pixel scale = %v, want 0.08 after drizzle", scale)
	}
	if h.cfg.Numerics.SupersamplingFactor != 2 {
		t.Fatalf("handler numerics mutated to %d", h.cfg.Numerics.SupersamplingFactor)
	}
}

func TestDrizzlePSFSupersampleTooLarge(t *testing.T) {
	cfg := baseConfig()
	cfg.Drizzle = true
	sample := baseSample()
	sample[domain.ComponentDrizzle] = domain.Params{
		"supersample_pixel_scale": 0.04,
		"output_pixel_scale":      0.08,
		"psf_supersample_factor":  4, // ratio is only 2
		"offset_pattern":          [][]float64{{0, 0}},
	}
	scene := &stubScene{image: flatImage(16, 1.0), srcFlux: 1}
	h, err := NewHandler(cfg, &stubSampler{base: sample}, &stubEngine{scene: scene}, &stubResampler{}, testRegistry(t))
	if err != nil {
		t.Fatalf("NewHandler: %v", err)
	}
	if _, err := h.DrawImage(true); err == nil {
		t.Fatal("expected fatal error for oversized psf_supersample_factor")
	}
}

func TestDrizzlePixelPSFMismatch(t *testing.T) {
	cfg := baseConfig()
	cfg.Drizzle = true
	sample := baseSample()
	sample[domain.ComponentPSF] = domain.Params{
		"psf_type":                          "PIXEL",
		"kernel_point_source":               [][]float64{{0, 0.2, 0}, {0.2, 0.2, 0.2}, {0, 0.2, 0}},
		"point_source_supersampling_factor": 2,
	}
	sample[domain.ComponentDrizzle] = domain.Params{
		"supersample_pixel_scale": 0.04,
		"output_pixel_scale":      0.08,
		"psf_supersample_factor":  1,
		"offset_pattern":          [][]float64{{0, 0}},
	}
	scene := &stubScene{image: flatImage(16, 1.0), srcFlux: 1}
	h, err := NewHandler(cfg, &stubSampler{base: sample}, &stubEngine{scene: scene}, &stubResampler{}, testRegistry(t))
	if err != nil {
		t.Fatalf("NewHandler: %v", err)
	}
	if _, err := h.DrawImage(true); err == nil {
		t.Fatal("expected fatal error for PIXEL psf supersampling mismatch")
	}
}

func TestDrizzlePixelPSFRequiresSupersampleFactor(t *testing.T) {
	cfg := baseConfig()
	cfg.Drizzle = true
	sample := baseSample()
	sample[domain.ComponentPSF] = domain.Params{
		"psf_type":            "PIXEL",
		"kernel_point_source": [][]float64{{0, 0.2, 0}, {0.2, 0.2, 0.2}, {0, 0.2, 0}},
	}
	sample[domain.ComponentDrizzle] = domain.Params{
		"supersample_pixel_scale": 0.04,
		"output_pixel_scale":      0.08,
		"psf_supersample_factor":  1,
		"offset_pattern":          [][]float64{{0, 0}},
	}
	scene := &stubScene{image: flatImage(16, 1.0), srcFlux: 1}
	h, err := NewHandler(cfg, &stubSampler{base: sample}, &stubEngine{scene: scene}, &stubResampler{}, testRegistry(t))
	if err != nil {
		t.Fatalf("NewHandler: %v", err)
	}
	if _, err := h.DrawImage(true); err == nil {
		t.Fatal("expected fatal error for a PIXEL psf without point_source_supersampling_factor")
	}
}

func TestDrizzleRejectionRestoresSample(t *testing.T) {
	cut := 3.0
	cfg := baseConfig()
	cfg.Drizzle = true
	cfg.MagCut = &cut
	sample := baseSample()
	sample[domain.ComponentDrizzle] = domain.Params{
		"supersample_pixel_scale": 0.04,
		"output_pixel_scale":      0.08,
		"psf_supersample_factor":  1,
		"offset_pattern":          [][]float64{{0, 0}},
	}
	// supersampled pass flux fails the cut, forcing a rejection
	scene := &stubScene{image: flatImage(16, 0.01), srcFlux: 1}
	h, err := NewHandler(cfg, &stubSampler{base: sample}, &stubEngine{scene: scene}, &stubResampler{}, testRegistry(t))
	if err != nil {
		t.Fatalf("NewHandler: %v", err)
	}

	res, err := h.DrawImage(true)
	if err != nil {
		t.Fatalf("DrawImage: %v", err)
	}
	if res.Accepted() {
		t.Fatal("expected a rejection")
	}

	// the supersample pixel-scale override must not survive the rejection
	scale, _ := h.CurrentSample().Component(domain.ComponentDetector).Float("pixel_scale")
	if scale != 0.08 {
		t.Fatalf("handler sample pixel scale = %v after rejected drizzle draw, want 0.08", scale)
	}

	// a follow-up draw still supersamples at the full ratio against the
	// detector resolution
	if _, err := h.DrawImage(false); err != nil {
		t.Fatalf("second DrawImage: %v", err)
	}
	last := engineLastSpec(t, h)
	if last.PixelCount != 16 {
		t.Fatalf("supersampled pass pixel count = %d, want 16", last.PixelCount)
	}
	if last.Detector.PixelScale != 0.04 {
		t.Fatalf("supersampled pass pixel scale = %v, want 0.04", last.Detector.PixelScale)
	}
}

func engineLastSpec(t *testing.T, h *Handler) domain.SceneSpec {
	t.Helper()
	engine, ok := h.engine.(*stubEngine)
	if !ok || len(engine.specs) == 0 {
		t.Fatal("engine composed no scenes")
	}
	return engine.specs[len(engine.specs)-1]
}

func TestSeedStringFormat(t *testing.T) {
	cases := []struct {
		seed Seed
		want string
	}{
		{Seed{Base: []uint32{5}, Index: 0}, "5:0"},
		{Seed{Base: []uint32{1, 2, 3}, Index: 12}, "1-2-3:12"},
	}
	for _, tc := range cases {
		if got := tc.seed.String(); got != tc.want {
			t.Fatalf("Seed.String() = %q, want %q", got, tc.want)
		}
	}
}

func TestOffsetPatternParsing(t *testing.T) {
	dp := domain.Params{"offset_pattern": []any{[]any{0.0, 0.0}, []any{1, 2}}}
	offsets, err := offsetPattern(dp)
	if err != nil {
		t.Fatalf("offsetPattern: %v", err)
	}
	if len(offsets) != 2 || offsets[1] != [2]float64{1, 2} {
		t.Fatalf("parsed offsets = %v", offsets)
	}
	if _, err := offsetPattern(domain.Params{}); err == nil {
		t.Fatal("expected error for missing offset_pattern")
	}
	if _, err := offsetPattern(domain.Params{"offset_pattern": "diagonal"}); err == nil {
		t.Fatal("expected error for unsupported offset_pattern type")
	}
}

func TestMetadataFixedSchemaAcrossMultiplicities(t *testing.T) {
	draw := func(n int) domain.Record {
		cfg := baseConfig()
		cfg.Components[popapi.KindPointSource] = ComponentRef{Model: "stub"}
		xs := make([]float64, n)
		mags := make([]float64, n)
		for i := range xs {
			xs[i] = float64(i) * 0.1
			mags[i] = 2
		}
		scene := &stubScene{image: flatImage(8, 1.0), srcFlux: 1, xs: xs, ys: xs, mags: mags}
		h, _ := newTestHandler(t, cfg, scene)
		res, err := h.DrawImage(false)
		if err != nil {
			t.Fatalf("DrawImage(%d images): %v", n, err)
		}
		if !res.Accepted() {
			t.Fatalf("unexpected rejection with %d images: %s", n, res.Rejection)
		}
		return res.Metadata
	}

	double := draw(2)
	quad := draw(4)
	if len(double) != len(quad) {
		t.Fatalf("metadata width differs: %d keys for a double, %d for a quad", len(double), len(quad))
	}
	for _, k := range double.Keys() {
		if _, ok := quad[k]; !ok {
			t.Fatalf("key %s present for a double but not a quad", k)
		}
	}
}

func TestMissingSentinel(t *testing.T) {
	if !math.IsNaN(domain.Missing()) {
		t.Fatal("Missing() must be NaN")
	}
	if !domain.IsMissing(domain.Missing()) {
		t.Fatal("IsMissing(Missing()) must hold")
	}
	if domain.IsMissing(1.0) {
		t.Fatal("IsMissing(1.0) must be false")
	}
}
