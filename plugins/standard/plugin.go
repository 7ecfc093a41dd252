// Package standard bundles the built-in population models: one factory per
// component kind, registered under the names configurations reference.
package standard

import (
	"lensforge/pkg/domain"
	"lensforge/pkg/popapi"
)

// Plugin implements the built-in population-model suite.
type Plugin struct{}

// New constructs a standard plugin instance.
func New() Plugin {
	return Plugin{}
}

// Name returns the plugin identifier.
func (Plugin) Name() string { return "standard" }

// Version returns the plugin semantic version.
func (Plugin) Version() string { return "1.0.0" }

// Register wires every built-in population model into the registry.
func (Plugin) Register(registry *popapi.Registry) error {
	entries := []struct {
		kind    popapi.Kind
		name    string
		factory popapi.Factory
	}{
		{popapi.KindLOS, "shear_planes", func(p domain.Params) (popapi.Adapter, error) { return newShearPlanes(p) }},
		{popapi.KindSubhalo, "sis_population", func(p domain.Params) (popapi.Adapter, error) { return newSISPopulation(p) }},
		{popapi.KindMainDeflector, "sie_shear", func(p domain.Params) (popapi.Adapter, error) { return newSIEShear(p) }},
		{popapi.KindSource, "sersic", func(p domain.Params) (popapi.Adapter, error) { return newSersicSource(p, domain.ComponentSource) }},
		{popapi.KindSource, "catalog_image", func(p domain.Params) (popapi.Adapter, error) { return newCatalogSource(p) }},
		{popapi.KindLensLight, "sersic", func(p domain.Params) (popapi.Adapter, error) { return newSersicSource(p, domain.ComponentLensLight) }},
		{popapi.KindPointSource, "source_position", func(p domain.Params) (popapi.Adapter, error) { return newSourcePosition(p) }},
	}
	for _, e := range entries {
		if err := registry.Register(e.kind, e.name, e.factory); err != nil {
			return err
		}
	}
	return nil
}
