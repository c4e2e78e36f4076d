package rosca

import (
	"context"
	"fmt"
	"math"
	"sync"
)

// Ledger moves value between accounts. A transfer either moves the full
// amount or fails, leaving balances untouched.
type Ledger interface {
	Transfer(ctx context.Context, asset Asset, from, to AccountID, amount Balance) error
}

// BatchLedger applies a sequence of transfers atomically: every transfer
// succeeds or none does. Sufficiency is checked in order against the
// balances left by the earlier transfers of the batch.
type BatchLedger interface {
	Ledger
	TransferBatch(ctx context.Context, transfers []Transfer) error
}

// Store persists state bundles.
type Store interface {
	// Get returns a copy of the bundle, or ErrRoscaNotFound.
	Get(ctx context.Context, id ID) (*State, error)
	// Put replaces the bundle and advances the id counter past st.ID.
	Put(ctx context.Context, st *State) error
	// NextID returns the id the next created Rosca will receive.
	NextID(ctx context.Context) (ID, error)
}

// MemoryLedger is an in-process BatchLedger.
type MemoryLedger struct {
	mu       sync.Mutex
	balances map[BalanceRef]Balance
}

// NewMemoryLedger returns an empty ledger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{balances: make(map[BalanceRef]Balance)}
}

// Mint credits amount to account out of thin air.
func (l *MemoryLedger) Mint(asset Asset, account AccountID, amount Balance) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	k := BalanceRef{asset, account}
	v, err := addBalance(l.balances[k], amount)
	if err != nil {
		return err
	}
	l.balances[k] = v
	return nil
}

// Balance returns the balance of account.
func (l *MemoryLedger) Balance(asset Asset, account AccountID) Balance {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[BalanceRef{asset, account}]
}

func (l *MemoryLedger) Transfer(ctx context.Context, asset Asset, from, to AccountID, amount Balance) error {
	return l.TransferBatch(ctx, []Transfer{{Asset: asset, From: from, To: to, Amount: amount}})
}

func (l *MemoryLedger) TransferBatch(_ context.Context, transfers []Transfer) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	staged, err := ApplyTransfers(transfers, func(asset Asset, a AccountID) (Balance, error) {
		return l.balances[BalanceRef{asset, a}], nil
	})
	if err != nil {
		return err
	}
	for k, v := range staged {
		l.balances[k] = v
	}
	return nil
}

// BalanceRef names one balance touched by a batch.
type BalanceRef struct {
	Asset   Asset
	Account AccountID
}

// ApplyTransfers replays transfers in order against balances read through
// load and returns the resulting balance of every touched account. It fails
// with ErrInsufficientFunds on the first overdraft.
func ApplyTransfers(transfers []Transfer, load func(Asset, AccountID) (Balance, error)) (map[BalanceRef]Balance, error) {
	staged := make(map[BalanceRef]Balance)
	get := func(r BalanceRef) (Balance, error) {
		if v, ok := staged[r]; ok {
			return v, nil
		}
		v, err := load(r.Asset, r.Account)
		if err != nil {
			return 0, err
		}
		staged[r] = v
		return v, nil
	}
	for _, t := range transfers {
		if t.From == t.To {
			continue
		}
		from, to := BalanceRef{t.Asset, t.From}, BalanceRef{t.Asset, t.To}
		fb, err := get(from)
		if err != nil {
			return nil, err
		}
		if fb < t.Amount {
			return nil, fmt.Errorf("%w: %s holds %d %s, needs %d", ErrInsufficientFunds, t.From, fb, t.Asset, t.Amount)
		}
		tb, err := get(to)
		if err != nil {
			return nil, err
		}
		nb, err := addBalance(tb, t.Amount)
		if err != nil {
			return nil, err
		}
		staged[from] = fb - t.Amount
		staged[to] = nb
	}
	return staged, nil
}

// MemoryStore is an in-process Store.
type MemoryStore struct {
	mu     sync.Mutex
	states map[ID]*State
	next   uint64
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{states: make(map[ID]*State)}
}

func (s *MemoryStore) Get(_ context.Context, id ID) (*State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[id]
	if !ok {
		return nil, ErrRoscaNotFound
	}
	return st.Clone(), nil
}

func (s *MemoryStore) Put(_ context.Context, st *State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[st.ID] = st.Clone()
	if uint64(st.ID) >= s.next {
		s.next = uint64(st.ID) + 1
	}
	return nil
}

func (s *MemoryStore) NextID(context.Context) (ID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.next > math.MaxUint32 {
		return 0, ErrOverflow
	}
	return ID(s.next), nil
}
