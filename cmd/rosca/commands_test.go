package main

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"testing"

	"github.com/spf13/viper"

	"github.com/gezibash/arc-rosca/internal/archive"
	"github.com/gezibash/arc-rosca/internal/cli"
	"github.com/gezibash/arc-rosca/internal/projection"
	"github.com/gezibash/arc-rosca/pkg/rosca"
)

func TestCreateCmd(t *testing.T) {
	var got rosca.CreateParams
	var creator rosca.AccountID
	mc := &mockClient{
		createFn: func(_ context.Context, who rosca.AccountID, p rosca.CreateParams) (*rosca.Receipt, error) {
			creator, got = who, p
			return receipt(7, rosca.Event{Kind: rosca.EventCreated, Participant: who}), nil
		},
	}

	code, stdout, stderr := execute(t, mc,
		"circle", "create", "--as", "alice", "--name", "savings",
		"-i", "bob,carol", "--min", "3", "--amount", "10", "--asset", "usdc",
		"--every", "10s", "--start-by", "5s", "--position", "1", "--at", "1000")
	if code != 0 {
		t.Fatalf("exit %d: %s", code, stderr)
	}

	if creator != "alice" {
		t.Errorf("creator = %q", creator)
	}
	if got.Name != "savings" || got.MinParticipants != 3 || got.Amount != 10 || got.Asset != rosca.AssetUSDC {
		t.Errorf("params = %+v", got)
	}
	if !slices.Equal(got.Invited, []rosca.AccountID{"bob", "carol"}) {
		t.Errorf("invited = %v", got.Invited)
	}
	if got.Frequency != 10_000 || got.StartBy != 6_000 {
		t.Errorf("frequency %d start by %d", got.Frequency, got.StartBy)
	}
	if got.Position == nil || *got.Position != 1 {
		t.Errorf("position = %v", got.Position)
	}
	if got.RandomOrder {
		t.Error("random order should default to false")
	}
	for _, want := range []string{"created rosca 7", "alice created rosca 7"} {
		if !strings.Contains(stdout, want) {
			t.Errorf("output missing %q:\n%s", want, stdout)
		}
	}
}

func TestCreateCmdRequiresAmount(t *testing.T) {
	code, _, stderr := execute(t, &mockClient{}, "circle", "create", "--as", "alice")
	if code != 1 || !strings.Contains(stderr, "amount") {
		t.Fatalf("exit %d, stderr %q", code, stderr)
	}
}

func TestCallerRequired(t *testing.T) {
	t.Setenv("ROSCA_ACCOUNT", "")
	code, _, stderr := execute(t, &mockClient{}, "circle", "contribute", "3")
	if code != 1 {
		t.Fatalf("exit %d", code)
	}
	if !strings.Contains(stderr, "no account") {
		t.Fatalf("stderr = %q", stderr)
	}
}

func TestCallerFromEnv(t *testing.T) {
	t.Setenv("ROSCA_ACCOUNT", "bob")
	var who rosca.AccountID
	mc := &mockClient{
		contributeFn: func(_ context.Context, id rosca.ID, w rosca.AccountID) (*rosca.Receipt, error) {
			who = w
			return receipt(id), nil
		},
		getFn: func(_ context.Context, id rosca.ID) (*rosca.State, error) { return activeState(id), nil },
	}
	if code, _, stderr := execute(t, mc, "circle", "contribute", "3"); code != 0 {
		t.Fatalf("exit %d: %s", code, stderr)
	}
	if who != "bob" {
		t.Fatalf("caller = %q, want bob", who)
	}
}

func TestActionCmds(t *testing.T) {
	tests := []struct {
		cmd  string
		verb string
		set  func(m *mockClient, fn whoFn)
	}{
		{"leave", "left rosca 4", func(m *mockClient, fn whoFn) { m.leaveFn = fn }},
		{"start", "started rosca 4", func(m *mockClient, fn whoFn) { m.startFn = fn }},
		{"contribute", "contributed to rosca 4", func(m *mockClient, fn whoFn) { m.contributeFn = fn }},
		{"end", "ended rosca 4", func(m *mockClient, fn whoFn) { m.manuallyEndFn = fn }},
		{"claim", "claimed from rosca 4", func(m *mockClient, fn whoFn) { m.claimDepositFn = fn }},
	}
	for _, tt := range tests {
		t.Run(tt.cmd, func(t *testing.T) {
			var calls []string
			mc := &mockClient{
				getFn: func(_ context.Context, id rosca.ID) (*rosca.State, error) { return activeState(id), nil },
			}
			tt.set(mc, func(_ context.Context, id rosca.ID, who rosca.AccountID) (*rosca.Receipt, error) {
				calls = append(calls, fmt.Sprintf("%d/%s", id, who))
				return receipt(id), nil
			})

			code, stdout, stderr := execute(t, mc, "circle", tt.cmd, "4", "--as", "carol")
			if code != 0 {
				t.Fatalf("exit %d: %s", code, stderr)
			}
			if !slices.Equal(calls, []string{"4/carol"}) {
				t.Fatalf("calls = %v", calls)
			}
			if !strings.Contains(stdout, tt.verb) {
				t.Fatalf("output missing %q:\n%s", tt.verb, stdout)
			}
		})
	}
}

func TestActionCmdBadID(t *testing.T) {
	code, _, stderr := execute(t, &mockClient{}, "circle", "start", "x", "--as", "alice")
	if code != 1 || !strings.Contains(stderr, "parse rosca id") {
		t.Fatalf("exit %d, stderr %q", code, stderr)
	}
}

func TestJoinCmdPosition(t *testing.T) {
	tests := []struct {
		args []string
		want *uint32
	}{
		{nil, nil},
		{[]string{"--position", "0"}, new(uint32)},
	}
	for _, tt := range tests {
		var got *uint32
		called := false
		mc := &mockClient{
			joinFn: func(_ context.Context, id rosca.ID, who rosca.AccountID, pos *uint32) (*rosca.Receipt, error) {
				called, got = true, pos
				return receipt(id, rosca.Event{Kind: rosca.EventJoined, Participant: who}), nil
			},
			getFn: func(_ context.Context, id rosca.ID) (*rosca.State, error) { return activeState(id), nil },
		}
		args := append([]string{"circle", "join", "2", "--as", "bob"}, tt.args...)
		code, stdout, stderr := execute(t, mc, args...)
		if code != 0 || !called {
			t.Fatalf("%v: exit %d: %s", tt.args, code, stderr)
		}
		if (got == nil) != (tt.want == nil) || (got != nil && *got != *tt.want) {
			t.Errorf("%v: position = %v", tt.args, got)
		}
		if !strings.Contains(stdout, "bob joined") {
			t.Errorf("output:\n%s", stdout)
		}
	}
}

func TestDepositCmd(t *testing.T) {
	mc := &mockClient{
		addDepositFn: func(_ context.Context, id rosca.ID, who rosca.AccountID, amount rosca.Balance) (*rosca.Receipt, error) {
			r := receipt(id, rosca.Event{Kind: rosca.EventDepositAdded, Participant: who, Amount: amount})
			r.Transfers = []rosca.Transfer{{Asset: rosca.AssetUSDC, From: who, To: rosca.EscrowAccount(id), Amount: amount}}
			return r, nil
		},
	}

	code, stdout, stderr := execute(t, mc, "circle", "deposit", "4", "25", "--as", "bob")
	if code != 0 {
		t.Fatalf("exit %d: %s", code, stderr)
	}
	if !strings.Contains(stdout, "bob deposited 25 USDC") {
		t.Fatalf("output:\n%s", stdout)
	}

	code, _, stderr = execute(t, mc, "circle", "deposit", "4", "lots", "--as", "bob")
	if code != 1 || !strings.Contains(stderr, "parse amount") {
		t.Fatalf("exit %d, stderr %q", code, stderr)
	}
}

type envelope[T any] struct {
	Meta cli.Meta `json:"meta"`
	Data T        `json:"data"`
}

func decodeEnvelope[T any](t *testing.T, s string) envelope[T] {
	t.Helper()
	var env envelope[T]
	if err := json.Unmarshal([]byte(s), &env); err != nil {
		t.Fatalf("decode %q: %v", s, err)
	}
	return env
}

func TestShowCmd(t *testing.T) {
	mc := &mockClient{
		getFn: func(_ context.Context, id rosca.ID) (*rosca.State, error) { return activeState(id), nil },
		summaryFn: func(_ context.Context, id rosca.ID) (*projection.Summary, error) {
			return &projection.Summary{ID: id, Asset: rosca.AssetUSDT, Contributed: 10}, nil
		},
	}

	code, stdout, stderr := execute(t, mc, "circle", "show", "2", "-o", "json")
	if code != 0 {
		t.Fatalf("exit %d: %s", code, stderr)
	}
	env := decodeEnvelope[struct {
		State   rosca.State         `json:"state"`
		Summary *projection.Summary `json:"summary"`
	}](t, stdout)
	if env.Meta.Type != "rosca" {
		t.Errorf("type = %q", env.Meta.Type)
	}
	if env.Data.State.Claimant != "alice" || env.Data.State.Status != rosca.StatusActive {
		t.Errorf("state = %+v", env.Data.State)
	}
	if env.Data.Summary == nil || env.Data.Summary.Contributed != 10 {
		t.Errorf("summary = %+v", env.Data.Summary)
	}
}

func TestShowCmdWithoutSummary(t *testing.T) {
	mc := &mockClient{
		getFn: func(_ context.Context, id rosca.ID) (*rosca.State, error) { return activeState(id), nil },
	}
	code, stdout, stderr := execute(t, mc, "circle", "show", "2", "--at", "1000")
	if code != 0 {
		t.Fatalf("exit %d: %s", code, stderr)
	}
	for _, want := range []string{"savings", "alice", "1 of 3", "10 USDT"} {
		if !strings.Contains(stdout, want) {
			t.Errorf("output missing %q:\n%s", want, stdout)
		}
	}
}

func TestListCmd(t *testing.T) {
	var filter string
	mc := &mockClient{
		listFn: func(_ context.Context, f string) ([]*rosca.State, error) {
			filter = f
			return []*rosca.State{activeState(1)}, nil
		},
	}
	code, stdout, stderr := execute(t, mc, "circle", "list", "-f", `status == "active"`)
	if code != 0 {
		t.Fatalf("exit %d: %s", code, stderr)
	}
	if filter != `status == "active"` {
		t.Errorf("filter = %q", filter)
	}
	if !strings.Contains(stdout, "savings") {
		t.Errorf("output:\n%s", stdout)
	}
}

func TestListCmdEmptyJSON(t *testing.T) {
	mc := &mockClient{
		listFn: func(context.Context, string) ([]*rosca.State, error) { return nil, nil },
	}
	code, stdout, stderr := execute(t, mc, "circle", "list", "-o", "json")
	if code != 0 {
		t.Fatalf("exit %d: %s", code, stderr)
	}
	env := decodeEnvelope[[]rosca.State](t, stdout)
	if env.Data == nil || len(env.Data) != 0 {
		t.Fatalf("data = %v, want empty list", env.Data)
	}
}

func TestRoundsCmd(t *testing.T) {
	mc := &mockClient{
		getFn: func(_ context.Context, id rosca.ID) (*rosca.State, error) { return activeState(id), nil },
		roundsFn: func(context.Context, rosca.ID) ([]projection.RoundRecord, error) {
			return []projection.RoundRecord{{
				Number:       1,
				Recipient:    "alice",
				Expected:     []rosca.AccountID{"bob", "carol"},
				Contributors: []rosca.AccountID{"bob"},
				Collected:    10,
			}}, nil
		},
	}
	code, stdout, stderr := execute(t, mc, "circle", "rounds", "2")
	if code != 0 {
		t.Fatalf("exit %d: %s", code, stderr)
	}
	for _, want := range []string{"alice", "bob", "carol", "10 USDT"} {
		if !strings.Contains(stdout, want) {
			t.Errorf("output missing %q:\n%s", want, stdout)
		}
	}
}

func TestEventsCmd(t *testing.T) {
	var after uint64
	mc := &mockClient{
		getFn: func(_ context.Context, id rosca.ID) (*rosca.State, error) { return activeState(id), nil },
		eventsFn: func(_ context.Context, _ rosca.ID, a uint64) ([]projection.Record, error) {
			after = a
			return []projection.Record{
				{Seq: 4, Event: rosca.Event{Kind: rosca.EventContributionMade, Participant: "bob", Recipient: "alice", Amount: 10, Round: 1}},
			}, nil
		},
	}
	code, stdout, stderr := execute(t, mc, "circle", "events", "2", "--after", "3")
	if code != 0 {
		t.Fatalf("exit %d: %s", code, stderr)
	}
	if after != 3 {
		t.Errorf("after = %d", after)
	}
	if !strings.Contains(stdout, "bob paid 10 USDT to alice in round 1") {
		t.Errorf("output:\n%s", stdout)
	}
}

func TestArchivedCmd(t *testing.T) {
	mc := &mockClient{
		archivedFn: func(_ context.Context, id rosca.ID) (*archive.Snapshot, error) {
			if id == 9 {
				return nil, archive.ErrNotArchived
			}
			return &archive.Snapshot{Version: 1, State: activeState(id)}, nil
		},
	}

	code, stdout, stderr := execute(t, mc, "circle", "archived", "2")
	if code != 0 {
		t.Fatalf("exit %d: %s", code, stderr)
	}
	env := decodeEnvelope[archive.Snapshot](t, stdout)
	if env.Meta.Type != "archive" || env.Data.State == nil || env.Data.State.ID != 2 {
		t.Fatalf("envelope = %+v", env)
	}

	if code, _, _ := execute(t, mc, "circle", "archived", "9"); code != 1 {
		t.Fatalf("missing snapshot: exit %d", code)
	}
}

func TestErrorOutput(t *testing.T) {
	mc := &mockClient{
		contributeFn: func(context.Context, rosca.ID, rosca.AccountID) (*rosca.Receipt, error) {
			return nil, fmt.Errorf("contribute: %w", rosca.ErrCantContributeToSelf)
		},
	}

	code, _, stderr := execute(t, mc, "circle", "contribute", "1", "--as", "alice")
	if code != 1 || !strings.Contains(stderr, "Error [CantContributeToSelf]") {
		t.Fatalf("text: exit %d, stderr %q", code, stderr)
	}

	code, stdout, _ := execute(t, mc, "circle", "contribute", "1", "--as", "alice", "-o", "json")
	if code != 1 {
		t.Fatalf("json: exit %d", code)
	}
	env := decodeEnvelope[map[string]string](t, stdout)
	if env.Meta.Type != "command-error" || env.Data["code"] != "CantContributeToSelf" || env.Data["kind"] != "membership" {
		t.Fatalf("envelope = %+v", env)
	}
}

func TestLedgerCmds(t *testing.T) {
	var minted []string
	mc := &mockClient{
		mintFn: func(_ context.Context, asset rosca.Asset, acct rosca.AccountID, amount rosca.Balance) (rosca.Balance, error) {
			minted = append(minted, fmt.Sprintf("%s/%s/%d", asset, acct, amount))
			return amount + 5, nil
		},
		balanceFn: func(_ context.Context, asset rosca.Asset, acct rosca.AccountID) (rosca.Balance, error) {
			return 1234, nil
		},
	}

	code, stdout, stderr := execute(t, mc, "ledger", "mint", "usdc", "dave", "50")
	if code != 0 {
		t.Fatalf("exit %d: %s", code, stderr)
	}
	if !slices.Equal(minted, []string{"usdc/dave/50"}) || !strings.Contains(stdout, "dave holds 55 USDC") {
		t.Fatalf("minted %v, output %q", minted, stdout)
	}

	code, stdout, _ = execute(t, mc, "ledger", "balance", "usdt", "dave", "-o", "json")
	if code != 0 {
		t.Fatalf("exit %d", code)
	}
	env := decodeEnvelope[map[string]any](t, stdout)
	if env.Meta.Type != "balance" || env.Data["balance"] != float64(1234) || env.Data["asset"] != "usdt" {
		t.Fatalf("envelope = %+v", env)
	}

	if code, _, stderr := execute(t, mc, "ledger", "balance", "doge", "dave"); code != 1 || !strings.Contains(stderr, "doge") {
		t.Fatalf("bad asset: exit %d, stderr %q", code, stderr)
	}
}

func TestBadOutputFormat(t *testing.T) {
	code, _, stderr := execute(t, &mockClient{}, "ledger", "balance", "usdt", "a", "-o", "yaml")
	if code != 1 || !strings.Contains(stderr, "unknown output format") {
		t.Fatalf("exit %d, stderr %q", code, stderr)
	}
}

func TestAtRejectedForRemoteNode(t *testing.T) {
	t.Setenv("ROSCA_NODE", "")
	var stdout, stderr strings.Builder
	code := run(&session{v: viper.New()}, []string{"ledger", "balance", "usdt", "a", "--node", "127.0.0.1:1", "--at", "5"}, &stdout, &stderr)
	if code != 1 || !strings.Contains(stderr.String(), "--at only applies") {
		t.Fatalf("exit %d, stderr %q", code, stderr.String())
	}
}

func TestCloseRunsAfterFailure(t *testing.T) {
	closed := 0
	mc := &mockClient{closeFn: func() error { closed++; return nil }}
	if code, _, _ := execute(t, mc, "circle", "leave", "1", "--as", "a"); code != 1 {
		t.Fatalf("exit %d", code)
	}
	if closed != 1 {
		t.Fatalf("closed %d times", closed)
	}
}

func TestVersionCmd(t *testing.T) {
	code, stdout, _ := execute(t, nil, "version")
	if code != 0 || !strings.Contains(stdout, "rosca dev") || !strings.Contains(stdout, "go:") {
		t.Fatalf("exit %d, output %q", code, stdout)
	}
}

func TestParseMoment(t *testing.T) {
	tests := []struct {
		in      string
		want    rosca.Moment
		wantErr bool
	}{
		{"1500", 1500, false},
		{"1970-01-01T00:00:02Z", 2000, false},
		{"5s", 6000, false},
		{"+1m", 61_000, false},
		{"-5s", 0, true},
		{"", 0, true},
		{"soon", 0, true},
	}
	for _, tt := range tests {
		got, err := parseMoment(tt.in, 1000)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseMoment(%q) err = %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("parseMoment(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}
