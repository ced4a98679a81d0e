package pipeline

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"

	"mercator-hq/guardrails/pkg/guardrails"
)

// Factory builds a guardrail from the opaque per-entry config of a pipeline
// file. The map is a private copy; the factory may keep it.
type Factory func(cfg map[string]any) (*guardrails.Guardrail, error)

// Registry maps guardrail names to factories. Names are registered once;
// pipeline files can only reference registered names.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds a factory under name. Registering a name twice is an error.
func (r *Registry) Register(name string, factory Factory) error {
	if name == "" {
		return errors.New("guardrail name cannot be empty")
	}
	if factory == nil {
		return fmt.Errorf("guardrail %q: factory cannot be nil", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[name]; exists {
		return fmt.Errorf("guardrail %q is already registered", name)
	}
	r.factories[name] = factory
	return nil
}

// MustRegister is like Register but panics on error.
func (r *Registry) MustRegister(name string, factory Factory) {
	if err := r.Register(name, factory); err != nil {
		panic(err)
	}
}

// Lookup returns the factory registered under name.
func (r *Registry) Lookup(name string) (Factory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	f, ok := r.factories[name]
	return f, ok
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.Lookup(name)
	return ok
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return slices.Sorted(maps.Keys(r.factories))
}

// Build constructs the guardrail registered under name.
func (r *Registry) Build(name string, cfg map[string]any) (*guardrails.Guardrail, error) {
	factory, ok := r.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", guardrails.ErrUnknownGuardrail, name)
	}

	if cfg == nil {
		cfg = map[string]any{}
	} else {
		cfg = maps.Clone(cfg)
	}

	unit, err := factory(cfg)
	if err != nil {
		return nil, err
	}
	if unit == nil {
		return nil, fmt.Errorf("factory returned no guardrail")
	}
	return unit, nil
}
