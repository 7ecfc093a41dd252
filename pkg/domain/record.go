package domain

import (
	"math"
	"sort"
)

// Record is the flat metadata mapping written for every accepted image.
// Keys follow the "{component}_{parameter}" naming scheme; values are
// scalars (float64, int, string). Missing point-source image slots carry
// the NaN sentinel rather than being omitted, so the schema stays fixed
// across image multiplicities.
type Record map[string]any

// Missing is the sentinel stored for absent point-source image slots.
func Missing() float64 { return math.NaN() }

// IsMissing reports whether v is the missing-value sentinel.
func IsMissing(v any) bool {
	f, ok := v.(float64)
	return ok && math.IsNaN(f)
}

// Merge copies every entry of other into r, overwriting existing keys.
func (r Record) Merge(other Record) {
	for k, v := range other {
		r[k] = v
	}
}

// Clone returns a shallow copy of the record.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Keys returns the record keys in sorted order.
func (r Record) Keys() []string {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
