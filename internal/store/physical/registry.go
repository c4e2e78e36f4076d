package physical

import (
	"context"

	"github.com/gezibash/arc-rosca/internal/observability"
	"github.com/gezibash/arc-rosca/internal/storage"
)

// Factory creates a backend from its options.
type Factory = storage.Factory[Backend]

var backends = storage.NewRegistry[Backend]("store")

// Register makes a backend available under name. It panics on a duplicate.
func Register(name string, factory Factory, defaults func() map[string]string) {
	backends.Register(name, factory, defaults)
}

// GetDefaults returns the default options of a backend, or nil.
func GetDefaults(name string) map[string]string { return backends.Defaults(name) }

// ListBackends returns the registered backend names, sorted.
func ListBackends() []string { return backends.Names() }

func IsRegistered(name string) bool { return backends.Has(name) }

// New opens the named backend. Values in config override its defaults.
func New(ctx context.Context, name string, config map[string]string, metrics *observability.Metrics) (Backend, error) {
	return backends.Open(ctx, name, config, metrics)
}
