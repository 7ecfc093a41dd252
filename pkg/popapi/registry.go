package popapi

import (
	"fmt"
	"sort"

	"lensforge/pkg/domain"
)

// Factory constructs an adapter from its component's initial parameter
// dictionary (drawn from the initialization sample).
type Factory func(params domain.Params) (Adapter, error)

// Registry maps component kind and model name to a factory. Configurations
// reference factories by name; the pipeline never sees concrete types.
type Registry struct {
	factories map[Kind]map[string]Factory
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[Kind]map[string]Factory)}
}

// Register adds a factory under the given kind and name.
func (r *Registry) Register(kind Kind, name string, factory Factory) error {
	if name == "" || factory == nil {
		return fmt.Errorf("popapi: register %s: name and factory required", kind)
	}
	byName, ok := r.factories[kind]
	if !ok {
		byName = make(map[string]Factory)
		r.factories[kind] = byName
	}
	if _, exists := byName[name]; exists {
		return fmt.Errorf("popapi: %s model %q already registered", kind, name)
	}
	byName[name] = factory
	return nil
}

// New constructs the named adapter for a kind.
func (r *Registry) New(kind Kind, name string, params domain.Params) (Adapter, error) {
	factory, ok := r.factories[kind][name]
	if !ok {
		return nil, domain.Configf("popapi", "no %s model named %q registered (have %v)", kind, name, r.Names(kind))
	}
	return factory(params)
}

// Names lists registered model names for a kind in sorted order.
func (r *Registry) Names(kind Kind) []string {
	byName := r.factories[kind]
	names := make([]string, 0, len(byName))
	for name := range byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Plugin describes a population-model suite that contributes factories.
type Plugin interface {
	Name() string
	Version() string
	Register(registry *Registry) error
}
