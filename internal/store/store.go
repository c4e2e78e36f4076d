// Package store persists rosca state bundles and ledger balances in a
// physical key-value backend.
//
// Key layout:
//
//	rosca/<id, 10 digits>          state bundle (JSON)
//	meta/next_id                   next id to assign (decimal)
//	balance/<asset>/<account>      ledger balance (decimal)
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/gezibash/arc-rosca/internal/observability"
	"github.com/gezibash/arc-rosca/internal/store/physical"
	"github.com/gezibash/arc-rosca/pkg/rosca"
)

const (
	prefixRosca = "rosca/"
	keyNextID   = "meta/next_id"
)

func roscaKey(id rosca.ID) string { return fmt.Sprintf("%s%010d", prefixRosca, uint64(id)) }

// Store implements rosca.Store over a physical backend.
type Store struct {
	backend physical.Backend
	metrics *observability.Metrics
}

// New returns a store writing to backend. metrics may be nil.
func New(backend physical.Backend, metrics *observability.Metrics) *Store {
	return &Store{backend: backend, metrics: metrics}
}

// Backend exposes the underlying backend to components sharing it.
func (s *Store) Backend() physical.Backend { return s.backend }

// Get returns the bundle for id, or rosca.ErrRoscaNotFound.
func (s *Store) Get(ctx context.Context, id rosca.ID) (*rosca.State, error) {
	data, err := s.backend.Get(ctx, roscaKey(id))
	if errors.Is(err, physical.ErrNotFound) {
		return nil, rosca.ErrRoscaNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load rosca %d: %w", id, err)
	}
	return decodeState(data)
}

// Put writes the bundle and, in the same batch, advances the id counter past
// st.ID.
func (s *Store) Put(ctx context.Context, st *rosca.State) (err error) {
	op, ctx := observability.StartOperation(ctx, s.metrics, "store.put",
		observability.KeyRoscaID.Int64(int64(st.ID)))
	defer func() { op.End(err) }()

	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encode rosca %d: %w", st.ID, err)
	}
	ops := []physical.Op{physical.Put(roscaKey(st.ID), data)}

	next, err := s.loadNext(ctx)
	if err != nil {
		return err
	}
	if uint64(st.ID) >= next {
		ops = append(ops, physical.Put(keyNextID, []byte(strconv.FormatUint(uint64(st.ID)+1, 10))))
	}
	return s.backend.Apply(ctx, ops)
}

// NextID returns the id the next created Rosca will receive, or
// rosca.ErrOverflow once the id space is used up.
func (s *Store) NextID(ctx context.Context) (rosca.ID, error) {
	n, err := s.loadNext(ctx)
	if err != nil {
		return 0, err
	}
	if n > math.MaxUint32 {
		return 0, rosca.ErrOverflow
	}
	return rosca.ID(n), nil
}

// loadNext reads the counter, which reaches MaxUint32+1 after the last id.
func (s *Store) loadNext(ctx context.Context) (uint64, error) {
	data, err := s.backend.Get(ctx, keyNextID)
	if errors.Is(err, physical.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("load next id: %w", err)
	}
	n, err := strconv.ParseUint(string(data), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("corrupt next id %q: %w", data, err)
	}
	return n, nil
}

// List returns every stored bundle in id order.
func (s *Store) List(ctx context.Context) ([]*rosca.State, error) {
	kvs, err := s.backend.Scan(ctx, prefixRosca)
	if err != nil {
		return nil, fmt.Errorf("list roscas: %w", err)
	}
	out := make([]*rosca.State, 0, len(kvs))
	for _, kv := range kvs {
		st, err := decodeState(kv.Value)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", kv.Key, err)
		}
		out = append(out, st)
	}
	return out, nil
}

func decodeState(data []byte) (*rosca.State, error) {
	var st rosca.State
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("decode rosca: %w", err)
	}
	return &st, nil
}
