package fs

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/gezibash/arc-rosca/internal/archive/physical"
	"github.com/gezibash/arc-rosca/internal/archive/physical/physicaltest"
)

func newTestBackend(t *testing.T) *Backend {
	t.Helper()
	b, err := NewFactory(context.Background(), map[string]string{
		KeyPath:            t.TempDir(),
		KeyDirPermissions:  "0700",
		KeyFilePermissions: "0600",
	})
	if err != nil {
		t.Fatal(err)
	}
	return b.(*Backend)
}

func TestConformance(t *testing.T) {
	physicaltest.Run(t, func(t *testing.T) physical.Backend { return newTestBackend(t) })
}

func TestFilePermissions(t *testing.T) {
	b := newTestBackend(t)
	if err := b.Put(context.Background(), "roscas/1.json", []byte("{}")); err != nil {
		t.Fatal(err)
	}
	info, err := os.Stat(filepath.Join(b.dir, "roscas", "1.json"))
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Fatalf("file mode = %04o, want 0600", perm)
	}
}

func TestListSkipsTempFiles(t *testing.T) {
	b := newTestBackend(t)
	if err := os.MkdirAll(filepath.Join(b.dir, "roscas"), 0o700); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(b.dir, "roscas", ".tmp-123"), []byte("partial"), 0o600); err != nil {
		t.Fatal(err)
	}
	keys, err := b.List(context.Background(), "")
	if err != nil {
		t.Fatal(err)
	}
	if len(keys) != 0 {
		t.Fatalf("keys = %v", keys)
	}
}

func TestNewFactoryErrors(t *testing.T) {
	tests := []struct {
		name   string
		config map[string]string
	}{
		{"empty path", map[string]string{KeyPath: ""}},
		{"bad dir perms", map[string]string{KeyPath: t.TempDir(), KeyDirPermissions: "rwx"}},
		{"bad file perms", map[string]string{KeyPath: t.TempDir(), KeyFilePermissions: "9"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewFactory(context.Background(), tt.config); err == nil {
				t.Fatal("expected config error")
			}
		})
	}
}

func TestListOrderAcrossDirectories(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()
	for _, k := range []string{"a/x", "a-b"} {
		if err := b.Put(ctx, k, []byte(k)); err != nil {
			t.Fatal(err)
		}
	}
	keys, err := b.List(ctx, "a")
	if err != nil {
		t.Fatal(err)
	}
	if len(keys) != 2 || keys[0] != "a-b" || keys[1] != "a/x" {
		t.Fatalf("keys = %v", keys)
	}
}

func TestDefaults(t *testing.T) {
	if Defaults()[KeyPath] == "" {
		t.Fatal("default path should not be empty")
	}
}
