package provider

import (
	"sort"
	"sync"

	"github.com/pkg/errors"
)

// ErrProviderNotRegistered is returned by Build for an unknown type tag.
var ErrProviderNotRegistered = errors.New("provider type not registered")

// Factory builds a provider from its spec.
type Factory func(spec Spec, deps Deps) (CompletionProvider, error)

// Registry maps provider type tags to factories. It is populated explicitly at startup.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds a factory under typeTag.
func (r *Registry) Register(typeTag string, factory Factory) error {
	if typeTag == "" {
		return errors.New("provider type tag is empty")
	}
	if factory == nil {
		return errors.Errorf("provider factory for %q is nil", typeTag)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.factories[typeTag]; ok {
		return errors.Errorf("provider type %q already registered", typeTag)
	}
	r.factories[typeTag] = factory
	return nil
}

// Build constructs a provider for spec.Type.
func (r *Registry) Build(spec Spec, deps Deps) (CompletionProvider, error) {
	r.mu.RLock()
	factory, ok := r.factories[spec.Type]
	r.mu.RUnlock()
	if !ok {
		return nil, errors.Wrapf(ErrProviderNotRegistered, "type %q", spec.Type)
	}

	p, err := factory(spec, deps)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to build %s provider %q", spec.Type, spec.Name)
	}
	return p, nil
}

// Types returns the registered type tags in sorted order.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]string, 0, len(r.factories))
	for t := range r.factories {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}
