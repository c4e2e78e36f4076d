// Package physicaltest is a conformance suite shared by the archive backends.
package physicaltest

import (
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/gezibash/arc-rosca/internal/archive/physical"
)

// Run exercises the physical.Backend contract against fresh backends from
// newBackend.
func Run(t *testing.T, newBackend func(t *testing.T) physical.Backend) {
	t.Helper()
	ctx := context.Background()

	t.Run("PutGet", func(t *testing.T) {
		be := newBackend(t)
		if err := be.Put(ctx, "roscas/0000000001.json", []byte(`{"id":1}`)); err != nil {
			t.Fatal(err)
		}
		got, err := be.Get(ctx, "roscas/0000000001.json")
		if err != nil {
			t.Fatal(err)
		}
		if string(got) != `{"id":1}` {
			t.Fatalf("got %q", got)
		}
	})

	t.Run("GetMissing", func(t *testing.T) {
		be := newBackend(t)
		if _, err := be.Get(ctx, "roscas/missing.json"); !errors.Is(err, physical.ErrNotFound) {
			t.Fatalf("err = %v, want ErrNotFound", err)
		}
	})

	t.Run("ListPrefixOrdered", func(t *testing.T) {
		be := newBackend(t)
		for _, k := range []string{"roscas/2.json", "other/1.json", "roscas/1.json", "roscas/10.json"} {
			if err := be.Put(ctx, k, []byte(k)); err != nil {
				t.Fatal(err)
			}
		}
		keys, err := be.List(ctx, "roscas/")
		if err != nil {
			t.Fatal(err)
		}
		want := []string{"roscas/1.json", "roscas/10.json", "roscas/2.json"}
		if !slices.Equal(keys, want) {
			t.Fatalf("keys = %v, want %v", keys, want)
		}
	})

	t.Run("PutReplaces", func(t *testing.T) {
		be := newBackend(t)
		for _, body := range []string{"v1", "v2"} {
			if err := be.Put(ctx, "roscas/3.json", []byte(body)); err != nil {
				t.Fatal(err)
			}
		}
		got, err := be.Get(ctx, "roscas/3.json")
		if err != nil || string(got) != "v2" {
			t.Fatalf("got %q, %v", got, err)
		}
		keys, err := be.List(ctx, "")
		if err != nil || len(keys) != 1 {
			t.Fatalf("keys = %v, %v", keys, err)
		}
	})

	t.Run("RejectsBadKeys", func(t *testing.T) {
		be := newBackend(t)
		for _, k := range []string{"", "/abs", "a/../b", "dir/", "a//b"} {
			if err := be.Put(ctx, k, []byte("x")); err == nil {
				t.Errorf("put %q should fail", k)
			}
		}
	})

	t.Run("Closed", func(t *testing.T) {
		be := newBackend(t)
		if err := be.Close(); err != nil {
			t.Fatal(err)
		}
		if err := be.Put(ctx, "a", []byte("x")); !errors.Is(err, physical.ErrClosed) {
			t.Fatalf("put after close: %v", err)
		}
		if _, err := be.Get(ctx, "a"); !errors.Is(err, physical.ErrClosed) {
			t.Fatalf("get after close: %v", err)
		}
		if _, err := be.List(ctx, ""); !errors.Is(err, physical.ErrClosed) {
			t.Fatalf("list after close: %v", err)
		}
	})
}
