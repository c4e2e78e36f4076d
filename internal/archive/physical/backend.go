// Package physical is the object store underneath the rosca archive.
// Snapshots are written once per completed rosca and read back by id, so
// backends only need put, get and an ordered listing.
package physical

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound = errors.New("archive object not found")
	ErrClosed   = errors.New("archive backend closed")
)

// Backend stores opaque objects under slash-separated keys. Put replaces
// an existing object. Implementations are safe for concurrent use.
type Backend interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	// List returns the keys starting with prefix in lexical order.
	List(ctx context.Context, prefix string) ([]string, error)
	Close() error
}

// ValidateKey accepts relative keys made of non-empty, non-dot segments.
// Segments starting with ".tmp-" are reserved for in-flight writes.
func ValidateKey(key string) error {
	if key == "" {
		return fmt.Errorf("invalid archive key %q: empty", key)
	}
	for seg := range strings.SplitSeq(key, "/") {
		switch {
		case seg == "", seg == ".", seg == "..":
			return fmt.Errorf("invalid archive key %q: bad segment %q", key, seg)
		case strings.HasPrefix(seg, ".tmp-"):
			return fmt.Errorf("invalid archive key %q: reserved segment %q", key, seg)
		}
	}
	return nil
}
