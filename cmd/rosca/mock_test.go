package main

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/spf13/viper"

	"github.com/gezibash/arc-rosca/internal/archive"
	"github.com/gezibash/arc-rosca/internal/projection"
	"github.com/gezibash/arc-rosca/pkg/rosca"
)

var errUnexpected = errors.New("unexpected call")

type whoFn func(ctx context.Context, id rosca.ID, who rosca.AccountID) (*rosca.Receipt, error)

type mockClient struct {
	createFn       func(ctx context.Context, creator rosca.AccountID, p rosca.CreateParams) (*rosca.Receipt, error)
	joinFn         func(ctx context.Context, id rosca.ID, who rosca.AccountID, position *uint32) (*rosca.Receipt, error)
	leaveFn        whoFn
	startFn        whoFn
	contributeFn   whoFn
	manuallyEndFn  whoFn
	addDepositFn   func(ctx context.Context, id rosca.ID, who rosca.AccountID, amount rosca.Balance) (*rosca.Receipt, error)
	claimDepositFn whoFn
	mintFn         func(ctx context.Context, asset rosca.Asset, account rosca.AccountID, amount rosca.Balance) (rosca.Balance, error)
	balanceFn      func(ctx context.Context, asset rosca.Asset, account rosca.AccountID) (rosca.Balance, error)
	getFn          func(ctx context.Context, id rosca.ID) (*rosca.State, error)
	listFn         func(ctx context.Context, filter string) ([]*rosca.State, error)
	summaryFn      func(ctx context.Context, id rosca.ID) (*projection.Summary, error)
	roundsFn       func(ctx context.Context, id rosca.ID) ([]projection.RoundRecord, error)
	eventsFn       func(ctx context.Context, id rosca.ID, after uint64) ([]projection.Record, error)
	archivedFn     func(ctx context.Context, id rosca.ID) (*archive.Snapshot, error)
	closeFn        func() error
}

func (m *mockClient) Create(ctx context.Context, creator rosca.AccountID, p rosca.CreateParams) (*rosca.Receipt, error) {
	if m.createFn == nil {
		return nil, errUnexpected
	}
	return m.createFn(ctx, creator, p)
}

func (m *mockClient) Join(ctx context.Context, id rosca.ID, who rosca.AccountID, position *uint32) (*rosca.Receipt, error) {
	if m.joinFn == nil {
		return nil, errUnexpected
	}
	return m.joinFn(ctx, id, who, position)
}

func callWho(fn whoFn, ctx context.Context, id rosca.ID, who rosca.AccountID) (*rosca.Receipt, error) {
	if fn == nil {
		return nil, errUnexpected
	}
	return fn(ctx, id, who)
}

func (m *mockClient) Leave(ctx context.Context, id rosca.ID, who rosca.AccountID) (*rosca.Receipt, error) {
	return callWho(m.leaveFn, ctx, id, who)
}

func (m *mockClient) Start(ctx context.Context, id rosca.ID, who rosca.AccountID) (*rosca.Receipt, error) {
	return callWho(m.startFn, ctx, id, who)
}

func (m *mockClient) Contribute(ctx context.Context, id rosca.ID, who rosca.AccountID) (*rosca.Receipt, error) {
	return callWho(m.contributeFn, ctx, id, who)
}

func (m *mockClient) ManuallyEnd(ctx context.Context, id rosca.ID, who rosca.AccountID) (*rosca.Receipt, error) {
	return callWho(m.manuallyEndFn, ctx, id, who)
}

func (m *mockClient) AddDeposit(ctx context.Context, id rosca.ID, who rosca.AccountID, amount rosca.Balance) (*rosca.Receipt, error) {
	if m.addDepositFn == nil {
		return nil, errUnexpected
	}
	return m.addDepositFn(ctx, id, who, amount)
}

func (m *mockClient) ClaimDeposit(ctx context.Context, id rosca.ID, who rosca.AccountID) (*rosca.Receipt, error) {
	return callWho(m.claimDepositFn, ctx, id, who)
}

func (m *mockClient) Mint(ctx context.Context, asset rosca.Asset, account rosca.AccountID, amount rosca.Balance) (rosca.Balance, error) {
	if m.mintFn == nil {
		return 0, errUnexpected
	}
	return m.mintFn(ctx, asset, account, amount)
}

func (m *mockClient) Balance(ctx context.Context, asset rosca.Asset, account rosca.AccountID) (rosca.Balance, error) {
	if m.balanceFn == nil {
		return 0, errUnexpected
	}
	return m.balanceFn(ctx, asset, account)
}

func (m *mockClient) Get(ctx context.Context, id rosca.ID) (*rosca.State, error) {
	if m.getFn == nil {
		return nil, errUnexpected
	}
	return m.getFn(ctx, id)
}

func (m *mockClient) List(ctx context.Context, filter string) ([]*rosca.State, error) {
	if m.listFn == nil {
		return nil, errUnexpected
	}
	return m.listFn(ctx, filter)
}

func (m *mockClient) Summary(ctx context.Context, id rosca.ID) (*projection.Summary, error) {
	if m.summaryFn == nil {
		return nil, errUnexpected
	}
	return m.summaryFn(ctx, id)
}

func (m *mockClient) Rounds(ctx context.Context, id rosca.ID) ([]projection.RoundRecord, error) {
	if m.roundsFn == nil {
		return nil, errUnexpected
	}
	return m.roundsFn(ctx, id)
}

func (m *mockClient) Events(ctx context.Context, id rosca.ID, after uint64) ([]projection.Record, error) {
	if m.eventsFn == nil {
		return nil, errUnexpected
	}
	return m.eventsFn(ctx, id, after)
}

func (m *mockClient) Archived(ctx context.Context, id rosca.ID) (*archive.Snapshot, error) {
	if m.archivedFn == nil {
		return nil, errUnexpected
	}
	return m.archivedFn(ctx, id)
}

func (m *mockClient) Ping(context.Context) (time.Duration, error) { return time.Millisecond, nil }

func (m *mockClient) Close() error {
	if m.closeFn != nil {
		return m.closeFn()
	}
	return nil
}

// execute runs the CLI against mc and returns the exit code and both streams.
func execute(t *testing.T, mc RoscaClient, args ...string) (int, string, string) {
	t.Helper()
	t.Setenv("ROSCA_NODE", "")
	var stdout, stderr bytes.Buffer
	code := run(&session{v: viper.New(), client: mc}, args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

// activeState is a started three member Rosca in its first round.
func activeState(id rosca.ID) *rosca.State {
	return &rosca.State{
		ID:      id,
		Creator: "alice",
		Config: rosca.Config{
			Name:            "savings",
			Participants:    3,
			MinParticipants: 3,
			Amount:          10,
			Asset:           rosca.AssetUSDT,
			Frequency:       10_000,
			StartBy:         100_000,
		},
		Status:    rosca.StatusActive,
		Positions: map[rosca.AccountID]uint32{"alice": 0, "bob": 1, "carol": 2},
		Order:     rosca.NewRing([]rosca.AccountID{"carol", "bob", "alice"}),
		Claimant:  "alice",
		Round:     1,
		NextPayBy: 11_000,
		StartedBy: "alice",
	}
}

func receipt(id rosca.ID, events ...rosca.Event) *rosca.Receipt {
	for i := range events {
		events[i].RoscaID = id
	}
	return &rosca.Receipt{RoscaID: id, Events: events}
}
