// Package physical provides the key-value backend interface the rosca store
// persists into, and a registry of named backend factories.
package physical

import (
	"context"
	"errors"
)

var (
	// ErrNotFound indicates the requested key was not found.
	ErrNotFound = errors.New("key not found")

	// ErrClosed indicates the backend has been closed.
	ErrClosed = errors.New("backend closed")
)

// KV is one stored pair.
type KV struct {
	Key   string
	Value []byte
}

// Op is one write in an atomic batch. Delete removes Key and ignores Value.
type Op struct {
	Key    string
	Value  []byte
	Delete bool
}

// Put returns an op that stores value at key.
func Put(key string, value []byte) Op { return Op{Key: key, Value: value} }

// Delete returns an op that removes key.
func Delete(key string) Op { return Op{Key: key, Delete: true} }

// Backend is the physical storage interface.
// All implementations must be thread-safe. Apply is all-or-nothing: either
// every op in the batch is visible afterwards or none is.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, error)
	// Scan returns every pair whose key starts with prefix, in key order.
	Scan(ctx context.Context, prefix string) ([]KV, error)
	Apply(ctx context.Context, ops []Op) error
	Close() error
}

// PrefixEnd returns the smallest key greater than every key with the given
// prefix, or "" when no such key exists.
func PrefixEnd(prefix string) string {
	b := []byte(prefix)
	for i := len(b) - 1; i >= 0; i-- {
		if b[i] < 0xff {
			b[i]++
			return string(b[:i+1])
		}
	}
	return ""
}
