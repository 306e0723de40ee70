// Package provider defines the capability-provider boundary: the external
// analyzers the core dispatches job runs to. The core treats every
// provider as an opaque call returning a payload or an error.
package provider

import (
	"context"
	"fmt"
	"sync"
)

// Kind names an analysis capability. Job configs carry the same values.
type Kind string

const (
	KindSEO         Kind = "seo"
	KindPerformance Kind = "performance"
	KindContent     Kind = "content"
	KindKeyword     Kind = "keyword"
	KindBacklink    Kind = "backlink"
)

// Kinds lists every known capability in enumeration order.
var Kinds = []Kind{KindSEO, KindPerformance, KindContent, KindKeyword, KindBacklink}

// Valid reports whether the kind is one of the fixed enumeration.
func (k Kind) Valid() bool {
	for _, known := range Kinds {
		if k == known {
			return true
		}
	}
	return false
}

// Provider is the interface every capability backend implements.
// Analyze runs the analysis against a single target and returns an
// opaque payload; its shape depends on the kind.
type Provider interface {
	Name() string
	Kind() Kind
	Analyze(ctx context.Context, target string) (map[string]any, error)
}

// Registry maps capability kinds to providers.
type Registry struct {
	mu     sync.RWMutex
	byKind map[Kind]Provider
}

// NewRegistry creates an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{byKind: make(map[Kind]Provider)}
}

// Register adds a provider for its kind, replacing any previous one.
func (r *Registry) Register(p Provider) error {
	if !p.Kind().Valid() {
		return fmt.Errorf("unknown provider kind %q", p.Kind())
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byKind[p.Kind()] = p
	return nil
}

// Lookup returns the provider registered for the kind.
func (r *Registry) Lookup(kind Kind) (Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.byKind[kind]
	return p, ok
}
