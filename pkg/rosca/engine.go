package rosca

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// Engine executes Rosca operations against injected collaborators. It holds
// no locks: callers must not run two operations concurrently, the host
// serializes calls.
type Engine struct {
	store  Store
	ledger Ledger
	clock  Clock
	random RandomnessSource
	sink   EventSink
	logger *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithRandomness sets the entropy source used for random claim orders.
func WithRandomness(r RandomnessSource) Option {
	return func(e *Engine) { e.random = r }
}

// WithEventSink sets the receiver of committed events.
func WithEventSink(s EventSink) Option {
	return func(e *Engine) { e.sink = s }
}

// WithLogger sets the engine logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// NewEngine returns an engine over store and ledger. Without options it uses
// CryptoRandom and discards events.
func NewEngine(store Store, ledger Ledger, clock Clock, opts ...Option) *Engine {
	e := &Engine{
		store:  store,
		ledger: ledger,
		clock:  clock,
		random: CryptoRandom{},
		sink:   discardSink{},
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// txn stages the effects of one call on a cloned bundle.
type txn struct {
	st        *State
	now       Moment
	escrow    AccountID
	transfers []Transfer
	events    []Event
}

func (t *txn) transfer(from, to AccountID, amount Balance) {
	if amount == 0 {
		return
	}
	t.transfers = append(t.transfers, Transfer{Asset: t.st.Config.Asset, From: from, To: to, Amount: amount})
}

func (t *txn) emit(ev Event) {
	ev.RoscaID = t.st.ID
	ev.At = t.now
	t.events = append(t.events, ev)
}

// begin loads the bundle for id and opens a staging transaction on a copy.
func (e *Engine) begin(ctx context.Context, id ID) (*txn, error) {
	st, err := e.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return &txn{st: st, now: e.clock.Now(), escrow: EscrowAccount(id)}, nil
}

// commit settles the staged transfers, persists the bundle and publishes the
// events. Any failure leaves both ledger and store as they were.
func (e *Engine) commit(ctx context.Context, t *txn) (*Receipt, error) {
	if err := e.settle(ctx, t.transfers); err != nil {
		return nil, err
	}
	if err := e.store.Put(ctx, t.st); err != nil {
		if rerr := e.settle(ctx, reversed(t.transfers)); rerr != nil {
			e.logger.ErrorContext(ctx, "rosca: reverting transfers after failed save",
				"rosca_id", t.st.ID, "error", rerr)
			return nil, errors.Join(fmt.Errorf("save rosca %d: %w", t.st.ID, err), rerr)
		}
		return nil, fmt.Errorf("save rosca %d: %w", t.st.ID, err)
	}
	e.sink.Publish(ctx, t.events)
	return &Receipt{RoscaID: t.st.ID, Events: t.events, Transfers: t.transfers}, nil
}

func (e *Engine) settle(ctx context.Context, transfers []Transfer) error {
	if len(transfers) == 0 {
		return nil
	}
	if b, ok := e.ledger.(BatchLedger); ok {
		return b.TransferBatch(ctx, transfers)
	}
	for i, tr := range transfers {
		if err := e.ledger.Transfer(ctx, tr.Asset, tr.From, tr.To, tr.Amount); err != nil {
			for j := i - 1; j >= 0; j-- {
				back := transfers[j]
				if rerr := e.ledger.Transfer(ctx, back.Asset, back.To, back.From, back.Amount); rerr != nil {
					return errors.Join(err, fmt.Errorf("compensate transfer %d: %w", j, rerr))
				}
			}
			return err
		}
	}
	return nil
}

func reversed(transfers []Transfer) []Transfer {
	out := make([]Transfer, len(transfers))
	for i, t := range transfers {
		out[len(transfers)-1-i] = Transfer{Asset: t.Asset, From: t.To, To: t.From, Amount: t.Amount}
	}
	return out
}

// Get returns a copy of the bundle for id.
func (e *Engine) Get(ctx context.Context, id ID) (*State, error) {
	return e.store.Get(ctx, id)
}
