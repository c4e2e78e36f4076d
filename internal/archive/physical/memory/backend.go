// Package memory provides an in-process archive backend for tests and
// ephemeral nodes.
package memory

import (
	"context"
	"slices"
	"strings"
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v4"

	"github.com/gezibash/arc-rosca/internal/archive/physical"
)

func init() {
	physical.Register("memory", NewFactory, nil)
}

// NewFactory returns an empty in-memory backend. The configuration is ignored.
func NewFactory(context.Context, map[string]string) (physical.Backend, error) {
	return New(), nil
}

// Backend keeps objects in a concurrent map.
type Backend struct {
	objects *xsync.Map[string, []byte]
	closed  atomic.Bool
}

// New returns an empty backend.
func New() *Backend {
	return &Backend{objects: xsync.NewMap[string, []byte]()}
}

func (b *Backend) Put(_ context.Context, key string, data []byte) error {
	if b.closed.Load() {
		return physical.ErrClosed
	}
	if err := physical.ValidateKey(key); err != nil {
		return err
	}
	b.objects.Store(key, slices.Clone(data))
	return nil
}

func (b *Backend) Get(_ context.Context, key string) ([]byte, error) {
	if b.closed.Load() {
		return nil, physical.ErrClosed
	}
	data, ok := b.objects.Load(key)
	if !ok {
		return nil, physical.ErrNotFound
	}
	return slices.Clone(data), nil
}

func (b *Backend) List(_ context.Context, prefix string) ([]string, error) {
	if b.closed.Load() {
		return nil, physical.ErrClosed
	}
	var keys []string
	b.objects.Range(func(k string, _ []byte) bool {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
		return true
	})
	slices.Sort(keys)
	return keys, nil
}

func (b *Backend) Close() error {
	b.closed.Store(true)
	return nil
}
