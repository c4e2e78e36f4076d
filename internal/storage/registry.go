package storage

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/gezibash/arc-rosca/internal/observability"
)

// Factory opens a backend from its layered options.
type Factory[B any] func(ctx context.Context, config map[string]string) (B, error)

type registration[B any] struct {
	factory  Factory[B]
	defaults func() map[string]string
}

// Registry maps backend names to factories. Backend packages register
// themselves from init, so a binary offers exactly the backends it imports.
type Registry[B any] struct {
	kind string

	mu      sync.RWMutex
	entries map[string]registration[B]
}

// NewRegistry returns an empty registry. kind ("store", "archive") names
// it in errors, logs and operation metrics.
func NewRegistry[B any](kind string) *Registry[B] {
	return &Registry[B]{kind: kind, entries: make(map[string]registration[B])}
}

// Register adds a backend. defaults may be nil. Registering a name twice
// panics.
func (r *Registry[B]) Register(name string, factory Factory[B], defaults func() map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.entries[name]; dup {
		panic(fmt.Sprintf("%s backend %q already registered", r.kind, name))
	}
	r.entries[name] = registration[B]{factory: factory, defaults: defaults}
}

// Names lists the registered backends in order.
func (r *Registry[B]) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func (r *Registry[B]) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[name]
	return ok
}

// Defaults returns the default options of a backend, or nil.
func (r *Registry[B]) Defaults(name string) map[string]string {
	r.mu.RLock()
	e, ok := r.entries[name]
	r.mu.RUnlock()
	if !ok || e.defaults == nil {
		return nil
	}
	return e.defaults()
}

// Open creates the named backend with config layered over its defaults.
func (r *Registry[B]) Open(ctx context.Context, name string, config map[string]string, metrics *observability.Metrics) (_ B, err error) {
	op, ctx := observability.StartOperation(ctx, metrics, r.kind+".backend.open")
	defer func() { op.End(err) }()

	r.mu.RLock()
	e, ok := r.entries[name]
	r.mu.RUnlock()
	if !ok {
		var zero B
		return zero, UnknownBackend(r.kind, name, r.Names())
	}

	var defaults map[string]string
	if e.defaults != nil {
		defaults = e.defaults()
	}
	b, err := e.factory(ctx, Layer(defaults, config))
	if err != nil {
		return b, err
	}
	slog.InfoContext(ctx, r.kind+" backend opened", "backend", name)
	return b, nil
}
