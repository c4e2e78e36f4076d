// Package physicaltest is a conformance suite shared by the store backends.
package physicaltest

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/gezibash/arc-rosca/internal/store/physical"
)

// Run exercises the physical.Backend contract against fresh backends from
// newBackend.
func Run(t *testing.T, newBackend func(t *testing.T) physical.Backend) {
	t.Helper()
	ctx := context.Background()

	t.Run("GetMissing", func(t *testing.T) {
		be := newBackend(t)
		if _, err := be.Get(ctx, "nope"); !errors.Is(err, physical.ErrNotFound) {
			t.Fatalf("err = %v, want ErrNotFound", err)
		}
	})

	t.Run("PutGetOverwrite", func(t *testing.T) {
		be := newBackend(t)
		mustApply(t, be, physical.Put("rosca/1", []byte("a")))
		mustApply(t, be, physical.Put("rosca/1", []byte("b")))
		got, err := be.Get(ctx, "rosca/1")
		if err != nil {
			t.Fatal(err)
		}
		if string(got) != "b" {
			t.Fatalf("got %q, want b", got)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		be := newBackend(t)
		mustApply(t, be, physical.Put("k", []byte("v")))
		mustApply(t, be, physical.Delete("k"), physical.Delete("never-existed"))
		if _, err := be.Get(ctx, "k"); !errors.Is(err, physical.ErrNotFound) {
			t.Fatalf("err = %v after delete", err)
		}
	})

	t.Run("BatchIsVisibleTogether", func(t *testing.T) {
		be := newBackend(t)
		mustApply(t, be,
			physical.Put("balance/usdt/alice", []byte("900")),
			physical.Put("balance/usdt/bob", []byte("1100")),
			physical.Put("rosca/0000000001", []byte("{}")),
		)
		for _, k := range []string{"balance/usdt/alice", "balance/usdt/bob", "rosca/0000000001"} {
			if _, err := be.Get(ctx, k); err != nil {
				t.Fatalf("%s: %v", k, err)
			}
		}
	})

	t.Run("ScanPrefixOrdered", func(t *testing.T) {
		be := newBackend(t)
		var ops []physical.Op
		for _, i := range []int{3, 1, 10, 2} {
			ops = append(ops, physical.Put(fmt.Sprintf("proj/event/1/%06d", i), []byte(fmt.Sprint(i))))
		}
		ops = append(ops,
			physical.Put("proj/event/10/000001", []byte("other rosca")),
			physical.Put("proj/summary/1", []byte("s")),
		)
		mustApply(t, be, ops...)

		kvs, err := be.Scan(ctx, "proj/event/1/")
		if err != nil {
			t.Fatal(err)
		}
		want := []string{"1", "2", "3", "10"}
		if len(kvs) != len(want) {
			t.Fatalf("scan returned %d pairs: %v", len(kvs), kvs)
		}
		for i, kv := range kvs {
			if string(kv.Value) != want[i] {
				t.Errorf("pair %d = %s=%s, want value %s", i, kv.Key, kv.Value, want[i])
			}
		}
		if kvs[0].Key != "proj/event/1/000001" {
			t.Errorf("keys should be returned without backend prefixes, got %q", kvs[0].Key)
		}
	})

	t.Run("ScanEmpty", func(t *testing.T) {
		be := newBackend(t)
		kvs, err := be.Scan(ctx, "rosca/")
		if err != nil {
			t.Fatal(err)
		}
		if len(kvs) != 0 {
			t.Fatalf("expected nothing, got %v", kvs)
		}
	})

	t.Run("Closed", func(t *testing.T) {
		be := newBackend(t)
		if err := be.Close(); err != nil {
			t.Fatal(err)
		}
		if err := be.Close(); err != nil {
			t.Fatalf("second close: %v", err)
		}
		if _, err := be.Get(ctx, "k"); !errors.Is(err, physical.ErrClosed) {
			t.Fatalf("get after close: %v", err)
		}
		if err := be.Apply(ctx, []physical.Op{physical.Put("k", nil)}); !errors.Is(err, physical.ErrClosed) {
			t.Fatalf("apply after close: %v", err)
		}
	})
}

func mustApply(t *testing.T, be physical.Backend, ops ...physical.Op) {
	t.Helper()
	if err := be.Apply(context.Background(), ops); err != nil {
		t.Fatalf("apply: %v", err)
	}
}
