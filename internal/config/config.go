// Package config loads lensforge generation configurations: YAML documents
// validated against an embedded JSON Schema, decoded into the typed
// pipeline configuration plus the sampler specs, and fingerprinted with a
// canonical-JSON SHA-256 digest for dataset provenance.
package config

import (
	"crypto/sha256"
	_ "embed"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"

	"github.com/gowebpki/jcs"
	"github.com/kaptinlin/jsonschema"
	"gopkg.in/yaml.v3"

	"lensforge/internal/pipeline"
	"lensforge/internal/sampling"
	"lensforge/pkg/domain"
	"lensforge/pkg/popapi"
)

//go:embed schema.json
var schemaJSON []byte

// Config is one loaded and validated generation configuration.
type Config struct {
	Pipeline pipeline.Config
	Specs    map[string]map[string]sampling.ParamSpec

	// Fingerprint is the RFC 8785 canonical-JSON SHA-256 of the document.
	Fingerprint string
}

// Sampler builds the parameter sampler for this configuration.
func (c *Config) Sampler() (*sampling.Sampler, error) {
	return sampling.New(c.Specs)
}

type fileDoc struct {
	Seed       []uint32                `yaml:"seed"`
	Numpix     int                     `yaml:"numpix"`
	NoNoise    bool                    `yaml:"no_noise"`
	MaskRadius float64                 `yaml:"mask_radius"`
	Numerics   numericsDoc             `yaml:"numerics"`
	Selection  selectionDoc            `yaml:"selection"`
	Components map[string]componentDoc `yaml:"components"`
}

type numericsDoc struct {
	SupersamplingFactor            int  `yaml:"supersampling_factor"`
	PointSourceSupersamplingFactor int  `yaml:"point_source_supersampling_factor"`
	SupersamplingConvolution       bool `yaml:"supersampling_convolution"`
}

type selectionDoc struct {
	MagCut             *float64 `yaml:"mag_cut"`
	PSMagnificationCut *float64 `yaml:"ps_magnification_cut"`
	MagnificationLimit *float64 `yaml:"magnification_limit"`
	DoublesQuadsOnly   bool     `yaml:"doubles_quads_only"`
	QuadsOnly          bool     `yaml:"quads_only"`
}

type componentDoc struct {
	Model      string         `yaml:"model"`
	Parameters map[string]any `yaml:"parameters"`
}

// componentKeys maps config component names to sample component names.
var componentKeys = map[string]string{
	"los":                  domain.ComponentLOS,
	"subhalo":              domain.ComponentSubhalo,
	"main_deflector":       domain.ComponentMainDeflector,
	"source":               domain.ComponentSource,
	"lens_light":           domain.ComponentLensLight,
	"point_source":         domain.ComponentPointSource,
	"detector":             domain.ComponentDetector,
	"psf":                  domain.ComponentPSF,
	"cosmology":            domain.ComponentCosmology,
	"drizzle":              domain.ComponentDrizzle,
	"pixel_grid":           domain.ComponentPixelGrid,
	"lens_equation_solver": domain.ComponentLensSolver,
}

// adapterKinds maps adapter-backed component names to their kinds.
var adapterKinds = map[string]popapi.Kind{
	"los":            popapi.KindLOS,
	"subhalo":        popapi.KindSubhalo,
	"main_deflector": popapi.KindMainDeflector,
	"source":         popapi.KindSource,
	"lens_light":     popapi.KindLensLight,
	"point_source":   popapi.KindPointSource,
}

// Load reads, validates, and decodes the configuration at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse validates and decodes a configuration document.
func Parse(data []byte) (*Config, error) {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse config yaml: %w", err)
	}
	jsonDoc, err := json.Marshal(normalizeYAML(raw))
	if err != nil {
		return nil, fmt.Errorf("normalize config: %w", err)
	}
	if err := validateSchema(jsonDoc); err != nil {
		return nil, err
	}

	var doc fileDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg, err := build(doc)
	if err != nil {
		return nil, err
	}

	canonical, err := jcs.Transform(jsonDoc)
	if err != nil {
		return nil, fmt.Errorf("canonicalize config: %w", err)
	}
	sum := sha256.Sum256(canonical)
	cfg.Fingerprint = hex.EncodeToString(sum[:])
	return cfg, nil
}

func validateSchema(jsonDoc []byte) error {
	compiler := jsonschema.NewCompiler()
	schema, err := compiler.Compile(schemaJSON)
	if err != nil {
		return fmt.Errorf("compile config schema: %w", err)
	}
	result := schema.ValidateJSON(jsonDoc)
	if result.IsValid() {
		return nil
	}
	return domain.Configf("config", "schema violation: %v", result.Errors)
}

func build(doc fileDoc) (*Config, error) {
	pcfg := pipeline.Config{
		Components:         make(map[popapi.Kind]pipeline.ComponentRef),
		PixelCount:         doc.Numpix,
		Seed:               doc.Seed,
		NoNoise:            doc.NoNoise,
		MaskRadius:         doc.MaskRadius,
		DoublesQuadsOnly:   doc.Selection.DoublesQuadsOnly,
		QuadsOnly:          doc.Selection.QuadsOnly,
		MagCut:             doc.Selection.MagCut,
		PSMagnificationCut: doc.Selection.PSMagnificationCut,
		MagnificationLimit: doc.Selection.MagnificationLimit,
		Numerics: domain.NumericsConfig{
			SupersamplingFactor:            doc.Numerics.SupersamplingFactor,
			PointSourceSupersamplingFactor: doc.Numerics.PointSourceSupersamplingFactor,
			SupersamplingConvolution:       doc.Numerics.SupersamplingConvolution,
		},
	}

	specs := make(map[string]map[string]sampling.ParamSpec, len(doc.Components))
	for name, component := range doc.Components {
		sampleKey, ok := componentKeys[name]
		if !ok {
			return nil, domain.Configf("config", "unknown component %q", name)
		}
		if kind, isAdapter := adapterKinds[name]; isAdapter {
			if component.Model == "" {
				return nil, domain.Configf("config", "component %q requires a model", name)
			}
			pcfg.Components[kind] = pipeline.ComponentRef{Model: component.Model}
		}
		if name == "drizzle" {
			pcfg.Drizzle = true
		}
		params := make(map[string]sampling.ParamSpec, len(component.Parameters))
		for key, value := range component.Parameters {
			spec, err := parseParamSpec(value)
			if err != nil {
				return nil, domain.Configf("config", "component %s parameter %s: %v", name, key, err)
			}
			params[key] = spec
		}
		specs[sampleKey] = params
	}
	return &Config{Pipeline: pcfg, Specs: specs}, nil
}

// parseParamSpec turns a YAML parameter value into a sampling spec: scalar
// and array literals become fixed values, mappings describe distributions.
func parseParamSpec(value any) (sampling.ParamSpec, error) {
	m, isMap := value.(map[string]any)
	if !isMap {
		return sampling.ParamSpec{Dist: sampling.DistFixed, Value: normalizeLiteral(value)}, nil
	}
	spec := sampling.ParamSpec{}
	if d, ok := m["dist"].(string); ok {
		spec.Dist = sampling.Dist(d)
	}
	if v, ok := m["value"]; ok {
		spec.Value = normalizeLiteral(v)
	}
	if v, ok := floatField(m, "mean"); ok {
		spec.Mean = v
	}
	if v, ok := floatField(m, "sigma"); ok {
		spec.Sigma = v
	}
	if v, ok := floatField(m, "min"); ok {
		spec.Min = v
	}
	if v, ok := floatField(m, "max"); ok {
		spec.Max = v
	}
	if v, ok := m["choices"].([]any); ok {
		spec.Choices = v
	}
	if v, ok := m["weights"].([]any); ok {
		for _, w := range v {
			f, ok := toFloat(w)
			if !ok {
				return spec, fmt.Errorf("non-numeric weight %v", w)
			}
			spec.Weights = append(spec.Weights, f)
		}
	}
	if v, ok := floatField(m, "size"); ok {
		spec.Size = int(v)
	}
	if v, ok := m["copy_of"].(string); ok {
		spec.CopyOf = v
	}
	if spec.Dist == "" && spec.CopyOf == "" {
		spec.Dist = sampling.DistFixed
	}
	return spec, nil
}

// normalizeLiteral converts YAML literals into the shapes the pipeline
// consumes: numeric arrays become []float64, arrays of pairs [][]float64.
func normalizeLiteral(v any) any {
	switch tv := v.(type) {
	case int:
		return float64(tv)
	case []any:
		if floats, ok := toFloatSlice(tv); ok {
			return floats
		}
		if pairs, ok := toFloatMatrix(tv); ok {
			return pairs
		}
		return tv
	default:
		return v
	}
}

func toFloatSlice(values []any) ([]float64, bool) {
	out := make([]float64, len(values))
	for i, v := range values {
		f, ok := toFloat(v)
		if !ok {
			return nil, false
		}
		out[i] = f
	}
	return out, true
}

func toFloatMatrix(values []any) ([][]float64, bool) {
	out := make([][]float64, len(values))
	for i, v := range values {
		row, ok := v.([]any)
		if !ok {
			return nil, false
		}
		floats, ok := toFloatSlice(row)
		if !ok {
			return nil, false
		}
		out[i] = floats
	}
	return out, true
}

func floatField(m map[string]any, key string) (float64, bool) {
	v, ok := m[key]
	if !ok {
		return 0, false
	}
	return toFloat(v)
}

func toFloat(v any) (float64, bool) {
	switch tv := v.(type) {
	case float64:
		return tv, true
	case int:
		return float64(tv), true
	case int64:
		return float64(tv), true
	default:
		return 0, false
	}
}

// normalizeYAML rewrites yaml.v3 decoded values into json.Marshal-friendly
// shapes (map[string]any keys).
func normalizeYAML(v any) any {
	switch tv := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(tv))
		for k, val := range tv {
			out[k] = normalizeYAML(val)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(tv))
		for k, val := range tv {
			out[fmt.Sprintf("%v", k)] = normalizeYAML(val)
		}
		return out
	case []any:
		out := make([]any, len(tv))
		for i, val := range tv {
			out[i] = normalizeYAML(val)
		}
		return out
	default:
		return v
	}
}
