// Package fs stores archive objects as files under a root directory.
package fs

import (
	"context"
	"errors"
	"fmt"
	iofs "io/fs"
	"log/slog"
	"os"
	"path"
	"slices"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/gezibash/arc-rosca/internal/archive/physical"
	"github.com/gezibash/arc-rosca/internal/storage"
)

const (
	KeyPath            = "path"
	KeyDirPermissions  = "dir_permissions"
	KeyFilePermissions = "file_permissions"
)

func init() {
	physical.Register("fs", NewFactory, Defaults)
}

func Defaults() map[string]string {
	return map[string]string{
		KeyPath:            "~/.rosca/archive",
		KeyDirPermissions:  "0700",
		KeyFilePermissions: "0600",
	}
}

// NewFactory creates the root directory if needed and opens it as an
// os.Root, so no key can resolve outside it.
func NewFactory(_ context.Context, config map[string]string) (physical.Backend, error) {
	o := storage.Bind("fs", config)
	dir, err := o.Path(KeyPath)
	if err != nil {
		return nil, err
	}
	dirMode, err := o.FileMode(KeyDirPermissions, 0o700)
	if err != nil {
		return nil, err
	}
	fileMode, err := o.FileMode(KeyFilePermissions, 0o600)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, dirMode); err != nil {
		return nil, o.Failed(KeyPath, "cannot create archive directory", err)
	}
	root, err := os.OpenRoot(dir)
	if err != nil {
		return nil, o.Failed(KeyPath, "cannot open archive directory", err)
	}

	slog.Info("fs archive opened", "path", dir)
	return &Backend{root: root, dir: dir, dirMode: dirMode, fileMode: fileMode}, nil
}

// Backend maps each key to the file of the same relative path.
type Backend struct {
	root     *os.Root
	dir      string
	dirMode  os.FileMode
	fileMode os.FileMode
	seq      atomic.Uint64
	closed   atomic.Bool
}

func (b *Backend) check(key string) error {
	if b.closed.Load() {
		return physical.ErrClosed
	}
	return physical.ValidateKey(key)
}

// Put writes a temp file beside the target and renames it into place, so
// readers see the old object or the new one and never a partial write.
func (b *Backend) Put(_ context.Context, key string, data []byte) error {
	if err := b.check(key); err != nil {
		return err
	}
	dir := path.Dir(key)
	if err := b.root.MkdirAll(dir, b.dirMode); err != nil {
		return fmt.Errorf("archive fs: mkdir %s: %w", dir, err)
	}

	tmp := path.Join(dir, ".tmp-"+strconv.FormatUint(b.seq.Add(1), 10))
	if err := b.root.WriteFile(tmp, data, b.fileMode); err != nil {
		_ = b.root.Remove(tmp)
		return fmt.Errorf("archive fs: write %s: %w", key, err)
	}
	// WriteFile is subject to the umask.
	if err := b.root.Chmod(tmp, b.fileMode); err != nil {
		_ = b.root.Remove(tmp)
		return fmt.Errorf("archive fs: chmod %s: %w", key, err)
	}
	if err := b.root.Rename(tmp, key); err != nil {
		_ = b.root.Remove(tmp)
		return fmt.Errorf("archive fs: rename %s: %w", key, err)
	}
	return nil
}

func (b *Backend) Get(_ context.Context, key string) ([]byte, error) {
	if err := b.check(key); err != nil {
		return nil, err
	}
	data, err := b.root.ReadFile(key)
	if errors.Is(err, iofs.ErrNotExist) {
		return nil, physical.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("archive fs: read %s: %w", key, err)
	}
	return data, nil
}

// List walks the tree in lexical order, pruning directories that cannot
// hold a matching key and skipping dot files.
func (b *Backend) List(_ context.Context, prefix string) ([]string, error) {
	if b.closed.Load() {
		return nil, physical.ErrClosed
	}
	var keys []string
	err := iofs.WalkDir(b.root.FS(), ".", func(p string, d iofs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if p == "." {
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return iofs.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if !strings.HasPrefix(p+"/", prefix) && !strings.HasPrefix(prefix, p+"/") {
				return iofs.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(p, prefix) {
			keys = append(keys, p)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("archive fs: list %q: %w", prefix, err)
	}
	// Walk order puts "a/x" before "a-b"; byte order does not.
	slices.Sort(keys)
	return keys, nil
}

func (b *Backend) Close() error {
	if b.closed.Swap(true) {
		return nil
	}
	return b.root.Close()
}
