package pipeline

import (
	"math"
	"time"

	"lensforge/internal/cosmo"
	"lensforge/pkg/domain"
	"lensforge/pkg/popapi"
)

// Handler is the top-level façade over the sample-to-image pipeline. One
// Handler owns one sample, one pair of random streams, and one adapter set;
// it must not be used from multiple goroutines concurrently.
type Handler struct {
	cfg       Config
	sampler   domain.Sampler
	engine    domain.Engine
	resampler domain.Resampler
	adapters  map[popapi.Kind]popapi.Adapter

	seeds   *seedController
	diag    *Diagnostics
	metrics MetricsRecorder
	tracer  Tracer

	sample domain.Sample
}

// Option configures optional Handler collaborators.
type Option func(*Handler)

// WithMetrics attaches a metrics recorder; the default is a no-op.
func WithMetrics(m MetricsRecorder) Option {
	return func(h *Handler) {
		if m != nil {
			h.metrics = m
		}
	}
}

// WithTracer attaches a tracer; the default is a no-op.
func WithTracer(t Tracer) Option {
	return func(h *Handler) {
		if t != nil {
			h.tracer = t
		}
	}
}

// WithLogger routes one-time diagnostics through the supplied logger.
func WithLogger(l Logger) Option {
	return func(h *Handler) {
		h.diag = NewDiagnostics(l)
	}
}

// sampleComponentFor maps adapter kinds to their sample component names.
var sampleComponentFor = map[popapi.Kind]string{
	popapi.KindLOS:           domain.ComponentLOS,
	popapi.KindSubhalo:       domain.ComponentSubhalo,
	popapi.KindMainDeflector: domain.ComponentMainDeflector,
	popapi.KindSource:        domain.ComponentSource,
	popapi.KindLensLight:     domain.ComponentLensLight,
	popapi.KindPointSource:   domain.ComponentPointSource,
}

// NewHandler composes the pipeline: it validates the configuration, draws
// the initialization sample, and constructs every configured population
// adapter through the registry.
func NewHandler(cfg Config, sampler domain.Sampler, engine domain.Engine, resampler domain.Resampler, registry *popapi.Registry, opts ...Option) (*Handler, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if sampler == nil || engine == nil {
		return nil, domain.Configf("pipeline", "sampler and engine are required")
	}
	if cfg.Drizzle && resampler == nil {
		return nil, domain.Configf("pipeline", "drizzle rendering requires a resampler")
	}
	h := &Handler{
		cfg:       cfg,
		sampler:   sampler,
		engine:    engine,
		resampler: resampler,
		adapters:  make(map[popapi.Kind]popapi.Adapter),
		seeds:     newSeedController(cfg.Seed),
		diag:      NewDiagnostics(nil),
		metrics:   noopMetrics{},
		tracer:    noopTracer{},
	}
	for _, opt := range opts {
		opt(h)
	}

	// the initialization sample is drawn from the base-seeded stream so
	// construction is deterministic as well
	h.seeds.seedStreams(Seed{Base: h.seeds.base, Index: 0})
	h.sample = h.sampler.Sample(h.seeds.general)

	for _, kind := range popapi.Kinds() {
		ref, ok := cfg.Components[kind]
		if !ok {
			continue
		}
		params := h.sample.Component(sampleComponentFor[kind])
		adapter, err := registry.New(kind, ref.Model, params)
		if err != nil {
			return nil, err
		}
		if err := checkCapability(kind, adapter); err != nil {
			return nil, err
		}
		h.adapters[kind] = adapter
	}
	return h, nil
}

func checkCapability(kind popapi.Kind, adapter popapi.Adapter) error {
	switch kind {
	case popapi.KindLOS, popapi.KindSubhalo, popapi.KindMainDeflector:
		if _, ok := adapter.(popapi.LensAdapter); !ok {
			return domain.Configf("pipeline", "%s adapter does not draw lens models", kind)
		}
	case popapi.KindSource, popapi.KindLensLight:
		if _, ok := adapter.(popapi.LightAdapter); !ok {
			return domain.Configf("pipeline", "%s adapter does not draw light models", kind)
		}
	case popapi.KindPointSource:
		if _, ok := adapter.(popapi.PointSourceAdapter); !ok {
			return domain.Configf("pipeline", "%s adapter does not draw point sources", kind)
		}
	}
	return nil
}

// DrawNewSample draws a fresh sample from the sampler.
func (h *Handler) DrawNewSample() {
	h.sample = h.sampler.Sample(h.seeds.general)
}

// CurrentSample returns the handler's current sample.
func (h *Handler) CurrentSample() domain.Sample {
	return h.sample
}

// Cosmology returns the cosmology of the current sample.
func (h *Handler) Cosmology() (*cosmo.FlatLCDM, error) {
	cfg, err := h.cosmoConfig(h.sample)
	if err != nil {
		return nil, err
	}
	return cosmo.New(cfg), nil
}

// ModelBundle aggregates the population adapters for the current (or a
// freshly drawn) sample. Repeated calls over a fixed sample may return
// different population realizations.
func (h *Handler) ModelBundle(newSample bool) (domain.Bundle, error) {
	if newSample {
		h.DrawNewSample()
	}
	bundle, sample, err := h.aggregate(h.sample)
	if err != nil {
		return domain.Bundle{}, err
	}
	h.sample = sample
	return bundle, nil
}

// Metadata flattens the current sample into a metadata record.
func (h *Handler) Metadata() (domain.Record, error) {
	if h.sample == nil {
		return nil, domain.Configf("pipeline", "no sample drawn")
	}
	return h.flattenMetadata(h.sample), nil
}

// DrawImage runs the full pipeline state machine: reseed both random
// streams, optionally draw a new sample, render through the standard or
// drizzle path, convert criteria rejections into the sentinel result, mask
// the configured interior region, and stamp the active seed into metadata.
func (h *Handler) DrawImage(newSample bool) (domain.DrawResult, error) {
	operation := "draw_image_standard"
	if h.cfg.Drizzle {
		operation = "draw_image_drizzle"
	}
	span := h.tracer.Start(operation)
	start := time.Now()

	seed := h.seeds.Reseed()
	if newSample {
		h.DrawNewSample()
	}

	var outcome renderOutcome
	var err error
	if h.cfg.Drizzle {
		outcome, err = h.renderDrizzle(h.sample)
	} else {
		outcome, err = h.renderStandard(h.sample, h.cfg.Numerics, h.cfg.PixelCount, !h.cfg.NoNoise, true)
	}
	if err != nil {
		h.metrics.Observe(operation, StatusError, time.Since(start))
		span.End(StatusError, err)
		return domain.DrawResult{}, err
	}
	h.sample = outcome.sample
	if outcome.rejection != nil {
		h.metrics.Observe(operation, StatusRejected, time.Since(start))
		span.End(StatusRejected, nil)
		return domain.DrawResult{Rejection: outcome.rejection}, nil
	}

	image := outcome.image
	if h.cfg.MaskRadius > 0 {
		h.maskInterior(image)
	}
	outcome.metadata["seed"] = seed.String()

	h.metrics.Observe(operation, StatusSuccess, time.Since(start))
	span.End(StatusSuccess, nil)
	return domain.DrawResult{Image: image, Metadata: outcome.metadata}, nil
}

// maskInterior zeroes every pixel within the configured radius of the
// image center, with radii measured in arcsec at the detector pixel scale.
func (h *Handler) maskInterior(image *domain.Grid) {
	scale, ok := h.sample.Component(domain.ComponentDetector).Float("pixel_scale")
	if !ok || scale <= 0 {
		return
	}
	halfX := float64(image.W-1) / 2
	halfY := float64(image.H-1) / 2
	for y := 0; y < image.H; y++ {
		dy := (float64(y) - halfY) * scale
		for x := 0; x < image.W; x++ {
			dx := (float64(x) - halfX) * scale
			if math.Hypot(dx, dy) <= h.cfg.MaskRadius {
				image.Set(x, y, 0)
			}
		}
	}
}
