// Package badger provides a BadgerDB-backed store backend. It registers two
// names: "badger" for an on-disk database and "memory" for an in-memory one.
package badger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"sync/atomic"

	"github.com/dgraph-io/badger/v4"

	"github.com/gezibash/arc-rosca/internal/storage"
	"github.com/gezibash/arc-rosca/internal/store/physical"
)

const (
	KeyPath             = "path"
	KeySyncWrites       = "sync_writes"
	KeyValueLogFileSize = "value_log_file_size"
	KeyMemTableSize     = "mem_table_size"
	KeyInMemory         = "in_memory"
)

func init() {
	physical.Register("badger", NewFactory, Defaults)
	physical.Register("memory", NewMemoryFactory, nil)
}

// Defaults returns the default configuration for the BadgerDB backend.
func Defaults() map[string]string {
	return map[string]string{
		KeyPath:             "~/.rosca/state",
		KeySyncWrites:       "true",
		KeyValueLogFileSize: strconv.FormatInt(256<<20, 10),
		KeyMemTableSize:     strconv.FormatInt(64<<20, 10),
		KeyInMemory:         "false",
	}
}

// NewMemoryFactory creates an in-memory backend; config is ignored.
func NewMemoryFactory(context.Context, map[string]string) (physical.Backend, error) {
	return newInMemory()
}

// NewFactory opens an on-disk BadgerDB at the configured path, creating the
// directory if needed.
func NewFactory(_ context.Context, config map[string]string) (physical.Backend, error) {
	o := storage.Bind("badger", config)
	inMemory, err := o.Bool(KeyInMemory, false)
	if err != nil {
		return nil, err
	}
	if inMemory {
		return newInMemory()
	}

	path, err := o.Path(KeyPath)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(path, 0o700); err != nil {
		return nil, o.Failed(KeyPath, "failed to create directory", err)
	}

	syncWrites, err := o.Bool(KeySyncWrites, true)
	if err != nil {
		return nil, err
	}
	valueLogFileSize, err := o.Int64(KeyValueLogFileSize, 256<<20)
	if err != nil {
		return nil, err
	}
	memTableSize, err := o.Int64(KeyMemTableSize, 64<<20)
	if err != nil {
		return nil, err
	}

	opts := badger.DefaultOptions(path).
		WithLogger(nil).
		WithSyncWrites(syncWrites)
	if valueLogFileSize > 0 {
		opts = opts.WithValueLogFileSize(valueLogFileSize)
	}
	if memTableSize > 0 {
		opts = opts.WithMemTableSize(memTableSize)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, o.Failed(KeyPath, "failed to open database", err)
	}

	slog.Info("badger store opened", "path", path, "sync_writes", syncWrites)
	return NewWithDB(db, "badger"), nil
}

func newInMemory() (*Backend, error) {
	opts := badger.DefaultOptions("").
		WithInMemory(true).
		WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, storage.Bind("memory", nil).Failed("", "failed to open in-memory database", err)
	}
	return NewWithDB(db, "memory"), nil
}

// Backend is a BadgerDB implementation of physical.Backend.
type Backend struct {
	db     *badger.DB
	kind   string
	closed atomic.Bool
}

// NewWithDB creates a new backend with an existing BadgerDB instance.
func NewWithDB(db *badger.DB, kind string) *Backend {
	return &Backend{db: db, kind: kind}
}

// Get returns the value stored at key.
func (b *Backend) Get(_ context.Context, key string) ([]byte, error) {
	if b.closed.Load() {
		return nil, physical.ErrClosed
	}
	var out []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		out, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, physical.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%s get %s: %w", b.kind, key, err)
	}
	return out, nil
}

// Scan returns all pairs under prefix in key order.
func (b *Backend) Scan(_ context.Context, prefix string) ([]physical.KV, error) {
	if b.closed.Load() {
		return nil, physical.ErrClosed
	}
	var out []physical.KV
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(opts.Prefix); it.ValidForPrefix(opts.Prefix); it.Next() {
			item := it.Item()
			v, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			out = append(out, physical.KV{Key: string(item.KeyCopy(nil)), Value: v})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s scan %s: %w", b.kind, prefix, err)
	}
	return out, nil
}

// Apply writes ops in one transaction.
func (b *Backend) Apply(_ context.Context, ops []physical.Op) error {
	if b.closed.Load() {
		return physical.ErrClosed
	}
	if len(ops) == 0 {
		return nil
	}
	err := b.db.Update(func(txn *badger.Txn) error {
		for _, op := range ops {
			var err error
			if op.Delete {
				err = txn.Delete([]byte(op.Key))
			} else {
				err = txn.Set([]byte(op.Key), op.Value)
			}
			if err != nil {
				return fmt.Errorf("%s: %w", op.Key, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%s apply: %w", b.kind, err)
	}
	return nil
}

// Close closes the database.
func (b *Backend) Close() error {
	if b.closed.Swap(true) {
		return nil
	}
	return b.db.Close()
}
