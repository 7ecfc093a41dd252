package domain

// PSFType identifies the point-spread-function representation.
type PSFType string

const (
	PSFNone     PSFType = "NONE"
	PSFGaussian PSFType = "GAUSSIAN"
	PSFPixel    PSFType = "PIXEL"
)

// DetectorConfig describes the imaging detector for one rendering pass.
// PixelScale is in arcsec per pixel; the noise terms are in counts.
type DetectorConfig struct {
	PixelScale   float64
	ExposureTime float64
	ReadNoise    float64
	SkyLevel     float64 // counts per pixel per second
	Gain         float64
}

// DetectorConfigFrom parses detector_parameters out of a sample component.
func DetectorConfigFrom(p Params) (DetectorConfig, error) {
	scale, err := p.MustFloat(ComponentDetector, "pixel_scale")
	if err != nil {
		return DetectorConfig{}, err
	}
	cfg := DetectorConfig{PixelScale: scale, ExposureTime: 1, Gain: 1}
	if v, ok := p.Float("exposure_time"); ok {
		cfg.ExposureTime = v
	}
	if v, ok := p.Float("read_noise"); ok {
		cfg.ReadNoise = v
	}
	if v, ok := p.Float("sky_level"); ok {
		cfg.SkyLevel = v
	}
	if v, ok := p.Float("gain"); ok && v > 0 {
		cfg.Gain = v
	}
	return cfg, nil
}

// PSFConfig describes the point spread function for one rendering pass.
// For PSFPixel the kernel grid carries its own supersampling factor
// relative to the detector pixel scale.
type PSFConfig struct {
	Type              PSFType
	FWHM              float64 // arcsec, GAUSSIAN only
	Kernel            *Grid   // PIXEL only
	KernelSupersample int     // PIXEL only, >= 1
}

// PSFConfigFrom parses psf_parameters out of a sample component.
func PSFConfigFrom(p Params) (PSFConfig, error) {
	typ, ok := p.String("psf_type")
	if !ok {
		return PSFConfig{}, Configf("psf", "psf_parameters missing psf_type")
	}
	cfg := PSFConfig{Type: PSFType(typ)}
	switch cfg.Type {
	case PSFNone:
	case PSFGaussian:
		fwhm, err := p.MustFloat(ComponentPSF, "fwhm")
		if err != nil {
			return PSFConfig{}, err
		}
		cfg.FWHM = fwhm
	case PSFPixel:
		kernel, ok := p["kernel_point_source"].(*Grid)
		if !ok {
			if rows, has := p["kernel_point_source"].([][]float64); has {
				kernel = gridFromRows(rows)
			}
		}
		if kernel == nil {
			return PSFConfig{}, Configf("psf", "PIXEL psf requires kernel_point_source")
		}
		cfg.Kernel = kernel
		cfg.KernelSupersample = 1
		if v, ok := p.Int("point_source_supersampling_factor"); ok && v >= 1 {
			cfg.KernelSupersample = v
		}
	default:
		return PSFConfig{}, Configf("psf", "unknown psf_type %q", typ)
	}
	return cfg, nil
}

func gridFromRows(rows [][]float64) *Grid {
	if len(rows) == 0 {
		return nil
	}
	g := NewGrid(len(rows[0]), len(rows))
	for y, row := range rows {
		for x, v := range row {
			g.Set(x, y, v)
		}
	}
	return g
}

// NumericsConfig carries the engine's internal supersampling settings.
type NumericsConfig struct {
	SupersamplingFactor            int
	PointSourceSupersamplingFactor int
	SupersamplingConvolution       bool
}

// Normalized returns the config with zero factors promoted to 1.
func (n NumericsConfig) Normalized() NumericsConfig {
	if n.SupersamplingFactor < 1 {
		n.SupersamplingFactor = 1
	}
	if n.PointSourceSupersamplingFactor < 1 {
		n.PointSourceSupersamplingFactor = 1
	}
	return n
}

// CosmologyConfig is a flat Lambda-CDM parameter pair.
type CosmologyConfig struct {
	H0     float64 // km/s/Mpc
	OmegaM float64
}

// CosmologyConfigFrom parses cosmology_parameters out of a sample component.
func CosmologyConfigFrom(p Params) (CosmologyConfig, error) {
	h0, err := p.MustFloat(ComponentCosmology, "H0")
	if err != nil {
		return CosmologyConfig{}, err
	}
	om, err := p.MustFloat(ComponentCosmology, "omega_m")
	if err != nil {
		return CosmologyConfig{}, err
	}
	return CosmologyConfig{H0: h0, OmegaM: om}, nil
}
