package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/gezibash/arc-rosca/internal/observability"
	"github.com/gezibash/arc-rosca/internal/store/physical"
	"github.com/gezibash/arc-rosca/pkg/rosca"
)

const prefixBalance = "balance/"

func balanceKey(asset rosca.Asset, account rosca.AccountID) string {
	return prefixBalance + asset.String() + "/" + string(account)
}

// Ledger is a rosca.BatchLedger persisted in the backend. A batch is
// validated against staged balances and written with a single Apply, so it
// lands whole or not at all.
type Ledger struct {
	backend physical.Backend
	metrics *observability.Metrics
	// mu orders read-validate-write cycles within this process.
	mu sync.Mutex
}

// NewLedger returns a ledger over backend. metrics may be nil.
func NewLedger(backend physical.Backend, metrics *observability.Metrics) *Ledger {
	return &Ledger{backend: backend, metrics: metrics}
}

// Balance returns the balance of account in asset.
func (l *Ledger) Balance(ctx context.Context, asset rosca.Asset, account rosca.AccountID) (rosca.Balance, error) {
	data, err := l.backend.Get(ctx, balanceKey(asset, account))
	if errors.Is(err, physical.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("load balance %s/%s: %w", asset, account, err)
	}
	n, err := strconv.ParseUint(string(data), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("corrupt balance %s/%s: %w", asset, account, err)
	}
	return rosca.Balance(n), nil
}

// Balances returns every non-zero balance held in asset, keyed by account.
func (l *Ledger) Balances(ctx context.Context, asset rosca.Asset) (map[rosca.AccountID]rosca.Balance, error) {
	prefix := prefixBalance + asset.String() + "/"
	kvs, err := l.backend.Scan(ctx, prefix)
	if err != nil {
		return nil, err
	}
	out := make(map[rosca.AccountID]rosca.Balance, len(kvs))
	for _, kv := range kvs {
		n, err := strconv.ParseUint(string(kv.Value), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("corrupt balance %s: %w", kv.Key, err)
		}
		if n > 0 {
			out[rosca.AccountID(strings.TrimPrefix(kv.Key, prefix))] = rosca.Balance(n)
		}
	}
	return out, nil
}

// Mint credits amount to account. It is the only way value enters the
// ledger and is meant for local funding.
func (l *Ledger) Mint(ctx context.Context, asset rosca.Asset, account rosca.AccountID, amount rosca.Balance) (err error) {
	op, ctx := observability.StartOperation(ctx, l.metrics, "ledger.mint",
		observability.KeyAsset.String(asset.String()), observability.KeyAccount.String(string(account)))
	defer func() { op.End(err) }()

	if !asset.Valid() {
		return fmt.Errorf("%w: %d", rosca.ErrInvalidAsset, asset)
	}
	if err := account.Validate(); err != nil {
		return err
	}
	if amount == 0 {
		return rosca.ErrAmountNotPositive
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	cur, err := l.Balance(ctx, asset, account)
	if err != nil {
		return err
	}
	if cur+amount < cur {
		return rosca.ErrOverflow
	}
	return l.backend.Apply(ctx, []physical.Op{balanceOp(asset, account, cur+amount)})
}

// Transfer moves amount from one account to another.
func (l *Ledger) Transfer(ctx context.Context, asset rosca.Asset, from, to rosca.AccountID, amount rosca.Balance) error {
	return l.TransferBatch(ctx, []rosca.Transfer{{Asset: asset, From: from, To: to, Amount: amount}})
}

// TransferBatch applies transfers atomically.
func (l *Ledger) TransferBatch(ctx context.Context, transfers []rosca.Transfer) (err error) {
	op, ctx := observability.StartOperation(ctx, l.metrics, "ledger.transfer_batch")
	defer func() { op.End(err) }()

	l.mu.Lock()
	defer l.mu.Unlock()

	staged, err := rosca.ApplyTransfers(transfers, func(asset rosca.Asset, a rosca.AccountID) (rosca.Balance, error) {
		return l.Balance(ctx, asset, a)
	})
	if err != nil {
		return err
	}
	ops := make([]physical.Op, 0, len(staged))
	for ref, v := range staged {
		ops = append(ops, balanceOp(ref.Asset, ref.Account, v))
	}
	return l.backend.Apply(ctx, ops)
}

func balanceOp(asset rosca.Asset, account rosca.AccountID, v rosca.Balance) physical.Op {
	return physical.Put(balanceKey(asset, account), []byte(strconv.FormatUint(uint64(v), 10)))
}
