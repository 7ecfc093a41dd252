package pipeline

import (
	"log"
	"sync"
)

// Logger is the minimal logging surface the pipeline needs.
type Logger interface {
	Printf(format string, args ...any)
}

// Diagnostics is the instance-scoped sink for informational warnings that
// must fire at most once per Handler: metadata serialization drops,
// drizzle numerics auto-adjustments, defaulted PSF supersampling. The
// "already warned" state lives here, never in package-level flags.
type Diagnostics struct {
	mu     sync.Mutex
	logger Logger
	warned map[string]bool
}

// Warn-once kinds used by the pipeline.
const (
	warnSerialization   = "metadata_serialization"
	warnNumericsSS      = "drizzle_supersampling_factor"
	warnNumericsPointSS = "drizzle_point_source_supersampling_factor"
	warnPSFSupersample  = "drizzle_psf_supersample_default"
)

// NewDiagnostics constructs a sink writing through the supplied logger;
// a nil logger falls back to the standard library default logger.
func NewDiagnostics(logger Logger) *Diagnostics {
	if logger == nil {
		logger = log.Default()
	}
	return &Diagnostics{logger: logger, warned: make(map[string]bool)}
}

// WarnOnce logs the message the first time the kind is seen by this sink.
func (d *Diagnostics) WarnOnce(kind, format string, args ...any) {
	d.mu.Lock()
	seen := d.warned[kind]
	d.warned[kind] = true
	d.mu.Unlock()
	if seen {
		return
	}
	d.logger.Printf("warning: "+format, args...)
}

// Warned reports whether the kind already fired. Used by tests.
func (d *Diagnostics) Warned(kind string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.warned[kind]
}
