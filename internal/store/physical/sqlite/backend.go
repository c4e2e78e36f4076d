// Package sqlite provides a SQLite-backed store backend.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"

	_ "modernc.org/sqlite"

	"github.com/gezibash/arc-rosca/internal/storage"
	"github.com/gezibash/arc-rosca/internal/store/physical"
)

const (
	KeyPath        = "path"
	KeyJournalMode = "journal_mode"
	KeyBusyTimeout = "busy_timeout"
)

func init() {
	physical.Register("sqlite", NewFactory, Defaults)
}

// Defaults returns the default configuration for the SQLite backend.
func Defaults() map[string]string {
	return map[string]string{
		KeyPath:        "~/.rosca/rosca.db",
		KeyJournalMode: "WAL",
		KeyBusyTimeout: "5000",
	}
}

const schema = `
CREATE TABLE IF NOT EXISTS kv (
    key   TEXT PRIMARY KEY,
    value BLOB NOT NULL
) WITHOUT ROWID;
`

// NewFactory opens the database file, creating its directory and the kv
// table as needed. A single connection serializes writers.
func NewFactory(ctx context.Context, config map[string]string) (physical.Backend, error) {
	o := storage.Bind("sqlite", config)
	path, err := o.Path(KeyPath)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, o.Failed(KeyPath, "failed to create directory", err)
	}
	busyTimeout, err := o.Int(KeyBusyTimeout, 5000)
	if err != nil {
		return nil, err
	}
	journalMode := o.String(KeyJournalMode, "WAL")

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(%s)&_pragma=busy_timeout(%d)", path, journalMode, busyTimeout)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, o.Failed(KeyPath, "failed to open database", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, o.Failed(KeyPath, "failed to create schema", err)
	}

	slog.Info("sqlite store opened", "path", path, "journal_mode", journalMode)
	return &Backend{db: db}, nil
}

// Backend is a SQLite implementation of physical.Backend.
type Backend struct {
	db     *sql.DB
	closed atomic.Bool
}

// Get returns the value stored at key.
func (b *Backend) Get(ctx context.Context, key string) ([]byte, error) {
	if b.closed.Load() {
		return nil, physical.ErrClosed
	}
	var v []byte
	err := b.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, physical.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite get %s: %w", key, err)
	}
	return v, nil
}

// Scan returns the pairs under prefix with a primary-key range query.
func (b *Backend) Scan(ctx context.Context, prefix string) ([]physical.KV, error) {
	if b.closed.Load() {
		return nil, physical.ErrClosed
	}
	var (
		rows *sql.Rows
		err  error
	)
	if end := physical.PrefixEnd(prefix); end != "" {
		rows, err = b.db.QueryContext(ctx, `SELECT key, value FROM kv WHERE key >= ? AND key < ? ORDER BY key`, prefix, end)
	} else {
		rows, err = b.db.QueryContext(ctx, `SELECT key, value FROM kv WHERE key >= ? ORDER BY key`, prefix)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite scan %s: %w", prefix, err)
	}
	defer rows.Close()

	var out []physical.KV
	for rows.Next() {
		var kv physical.KV
		if err := rows.Scan(&kv.Key, &kv.Value); err != nil {
			return nil, fmt.Errorf("sqlite scan row: %w", err)
		}
		out = append(out, kv)
	}
	return out, rows.Err()
}

// Apply writes ops in one transaction.
func (b *Backend) Apply(ctx context.Context, ops []physical.Op) error {
	if b.closed.Load() {
		return physical.ErrClosed
	}
	if len(ops) == 0 {
		return nil
	}
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite apply: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	for _, op := range ops {
		if op.Delete {
			_, err = tx.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, op.Key)
		} else {
			_, err = tx.ExecContext(ctx,
				`INSERT INTO kv (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
				op.Key, op.Value)
		}
		if err != nil {
			return fmt.Errorf("sqlite apply %s: %w", op.Key, err)
		}
	}
	return tx.Commit()
}

// Close closes the database.
func (b *Backend) Close() error {
	if b.closed.Swap(true) {
		return nil
	}
	return b.db.Close()
}
