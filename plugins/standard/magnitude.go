package standard

import "math"

// defaultZeropoint is the AB zeropoint assumed when a component specifies
// apparent magnitudes without its own zeropoint.
const defaultZeropoint = 25.0

// ampFrom resolves a linear amplitude: an explicit "amp" wins, otherwise
// "mag_app" converts through the AB zeropoint ("output_ab_zeropoint",
// defaulted).
func ampFrom(get func(string) (float64, bool)) float64 {
	if amp, ok := get("amp"); ok {
		return amp
	}
	mag, ok := get("mag_app")
	if !ok {
		return 1
	}
	zp := defaultZeropoint
	if v, ok := get("output_ab_zeropoint"); ok {
		zp = v
	}
	return math.Pow(10, -0.4*(mag-zp))
}
