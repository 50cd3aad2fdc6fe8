// Package provider assembles the per-source adapters into the closed set the
// orchestrator fans out over.
package provider

import (
	"fmt"

	"github.com/bipulgarera-droid/seo-audit-slides/internal/audit"
)

// Registry maps each audit source to the adapter that serves it. The set is
// fixed at construction; lookups never mutate it.
type Registry struct {
	adapters map[audit.Source]audit.Adapter
}

// NewRegistry builds a registry from the given adapters. Every adapter must
// report a valid source, and no source may be registered twice.
func NewRegistry(adapters ...audit.Adapter) (*Registry, error) {
	m := make(map[audit.Source]audit.Adapter, len(adapters))
	for _, adapter := range adapters {
		if adapter == nil {
			return nil, fmt.Errorf("nil adapter")
		}
		source := adapter.Source()
		if !source.Valid() {
			return nil, fmt.Errorf("adapter reports unknown source %q", source)
		}
		if _, exists := m[source]; exists {
			return nil, fmt.Errorf("duplicate adapter for source %q", source)
		}
		m[source] = adapter
	}
	return &Registry{adapters: m}, nil
}

// Adapter returns the adapter for the source, or an error if none is
// registered.
func (r *Registry) Adapter(source audit.Source) (audit.Adapter, error) {
	adapter, ok := r.adapters[source]
	if !ok {
		return nil, fmt.Errorf("no adapter registered for source %q: %w", source, audit.ErrNotFound)
	}
	return adapter, nil
}

// Sources lists the registered sources in canonical order.
func (r *Registry) Sources() []audit.Source {
	out := make([]audit.Source, 0, len(r.adapters))
	for _, source := range audit.AllSources() {
		if _, ok := r.adapters[source]; ok {
			out = append(out, source)
		}
	}
	return out
}
