package projection

import (
	"context"
	"errors"
	"slices"
	"sync/atomic"
	"testing"

	"github.com/gezibash/arc-rosca/internal/store/physical"
	"github.com/gezibash/arc-rosca/internal/store/physical/badger"
	"github.com/gezibash/arc-rosca/pkg/rosca"
)

func newBackend(t *testing.T) physical.Backend {
	t.Helper()
	be, err := badger.NewMemoryFactory(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = be.Close() })
	return be
}

// runCircle drives a three member Rosca through a round paid in full, a
// round covered from a deposit and a round closed by a manual end.
func runCircle(t *testing.T, p *Projector) rosca.ID {
	t.Helper()
	ctx := context.Background()
	var now rosca.Moment = 1
	ledger := rosca.NewMemoryLedger()
	for _, a := range []rosca.AccountID{"1", "2", "3"} {
		if err := ledger.Mint(rosca.AssetUSDC, a, 1000); err != nil {
			t.Fatal(err)
		}
	}
	sink := rosca.EventSinkFunc(func(ctx context.Context, events []rosca.Event) {
		if err := p.Apply(ctx, events); err != nil {
			t.Errorf("apply: %v", err)
		}
	})
	e := rosca.NewEngine(rosca.NewMemoryStore(), ledger,
		rosca.ClockFunc(func() rosca.Moment { return now }), rosca.WithEventSink(sink))

	must := func(_ *rosca.Receipt, err error) {
		t.Helper()
		if err != nil {
			t.Fatal(err)
		}
	}
	r, err := e.Create(ctx, "1", rosca.CreateParams{
		Name:            "market",
		Invited:         []rosca.AccountID{"2", "3"},
		MinParticipants: 3,
		Amount:          10,
		Asset:           rosca.AssetUSDC,
		Frequency:       10,
		StartBy:         100,
	})
	if err != nil {
		t.Fatal(err)
	}
	id := r.RoscaID
	must(e.Join(ctx, id, "2", nil))
	must(e.Join(ctx, id, "3", nil))
	must(e.AddDeposit(ctx, id, "3", 15))
	must(e.Start(ctx, id, "1"))

	// round 1, claimant 1
	must(e.Contribute(ctx, id, "2"))
	must(e.Contribute(ctx, id, "3"))

	// round 2, claimant 2; 3 never pays
	now = 5
	must(e.Contribute(ctx, id, "1"))

	// round 3, claimant 3; reached through catch-up
	now = 22
	must(e.Contribute(ctx, id, "1"))

	now = 40
	must(e.ManuallyEnd(ctx, id, "2"))
	return id
}

func TestProjectionFoldsLifecycle(t *testing.T) {
	ctx := context.Background()
	p := New(newBackend(t), nil)
	id := runCircle(t, p)

	s, err := p.Summary(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if s.Name != "market" || s.Creator != "1" || s.Asset != rosca.AssetUSDC || s.Amount != 10 {
		t.Errorf("config not projected: %+v", s)
	}
	if !slices.Equal(s.Members, []rosca.AccountID{"1", "2", "3"}) {
		t.Errorf("members = %v", s.Members)
	}
	if s.StartedBy != "1" || s.StartedAt != 1 {
		t.Errorf("start = %s at %d", s.StartedBy, s.StartedAt)
	}
	if !s.Completed || s.CompletedAt != 40 || s.EndedBy != "2" || s.Round != 3 {
		t.Errorf("end state = %+v", s)
	}
	if s.Contributed != 40 || s.Deducted != 10 || s.DepositsHeld != 5 || s.Defaults != 1 {
		t.Errorf("totals: contributed %d deducted %d held %d defaults %d",
			s.Contributed, s.Deducted, s.DepositsHeld, s.Defaults)
	}
	if s.EventCount != 15 {
		t.Errorf("event count = %d, want 15", s.EventCount)
	}

	rounds, err := p.Rounds(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if len(rounds) != 3 {
		t.Fatalf("got %d rounds", len(rounds))
	}
	want := []struct {
		recipient    rosca.AccountID
		cutoff       rosca.Moment
		contributors []rosca.AccountID
		covered      []rosca.AccountID
		defaulters   []rosca.AccountID
		collected    rosca.Balance
		closedAt     rosca.Moment
	}{
		{"1", 11, []rosca.AccountID{"2", "3"}, nil, nil, 20, 1},
		{"2", 21, []rosca.AccountID{"1"}, []rosca.AccountID{"3"}, nil, 20, 22},
		{"3", 31, []rosca.AccountID{"1"}, nil, []rosca.AccountID{"2"}, 10, 40},
	}
	for i, w := range want {
		r := rounds[i]
		if r.Number != uint32(i+1) || r.Recipient != w.recipient || r.Cutoff != w.cutoff {
			t.Errorf("round %d header = %+v", i+1, r)
		}
		if !slices.Equal(r.Contributors, w.contributors) || !slices.Equal(r.Covered, w.covered) || !slices.Equal(r.Defaulters, w.defaulters) {
			t.Errorf("round %d settlement = %+v", i+1, r)
		}
		if r.Collected != w.collected || !r.Closed || r.ClosedAt != w.closedAt {
			t.Errorf("round %d collected %d closed %v at %d", i+1, r.Collected, r.Closed, r.ClosedAt)
		}
		if len(r.Expected) != 2 || len(r.Outstanding()) != 0 {
			t.Errorf("round %d expected %v outstanding %v", i+1, r.Expected, r.Outstanding())
		}
	}
}

func TestProjectionEventLog(t *testing.T) {
	ctx := context.Background()
	p := New(newBackend(t), nil)
	id := runCircle(t, p)

	log, err := p.Events(ctx, id, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(log) != 15 {
		t.Fatalf("log has %d entries", len(log))
	}
	for i, r := range log {
		if r.Seq != uint64(i+1) || r.Event.RoscaID != id {
			t.Fatalf("entry %d = %+v", i, r)
		}
	}
	if log[0].Event.Kind != rosca.EventCreated || log[14].Event.Kind != rosca.EventManuallyEnded {
		t.Fatalf("log bounds: %s .. %s", log[0].Event.Kind, log[14].Event.Kind)
	}

	tail, err := p.Events(ctx, id, 13)
	if err != nil {
		t.Fatal(err)
	}
	if len(tail) != 2 || tail[0].Event.Kind != rosca.EventCompleted {
		t.Fatalf("tail = %+v", tail)
	}
}

func TestProjectionRebuild(t *testing.T) {
	ctx := context.Background()
	be := newBackend(t)
	p := New(be, nil)
	id := runCircle(t, p)

	before, _ := p.Summary(ctx, id)
	roundsBefore, _ := p.Rounds(ctx, id)

	// Damage the read models, leaving only the log intact.
	if err := be.Apply(ctx, []physical.Op{
		physical.Put(summaryKey(id), []byte(`{"id":0,"name":"stale"}`)),
		physical.Put(roundKey(id, 2), []byte(`{"number":2}`)),
		physical.Put(roundKey(id, 9), []byte(`{"number":9}`)),
	}); err != nil {
		t.Fatal(err)
	}
	if err := p.Rebuild(ctx, id); err != nil {
		t.Fatal(err)
	}

	after, err := p.Summary(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if after.Name != before.Name || after.EventCount != before.EventCount ||
		after.Contributed != before.Contributed || after.DepositsHeld != before.DepositsHeld || after.EndedBy != before.EndedBy {
		t.Fatalf("rebuilt summary %+v, want %+v", after, before)
	}
	roundsAfter, err := p.Rounds(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if len(roundsAfter) != len(roundsBefore) {
		t.Fatalf("rebuilt %d rounds, want %d", len(roundsAfter), len(roundsBefore))
	}
	for i := range roundsAfter {
		a, b := roundsAfter[i], roundsBefore[i]
		if a.Recipient != b.Recipient || a.Collected != b.Collected || !slices.Equal(a.Covered, b.Covered) {
			t.Errorf("round %d rebuilt as %+v, want %+v", i+1, a, b)
		}
	}
}

func TestProjectionUnknownRosca(t *testing.T) {
	ctx := context.Background()
	p := New(newBackend(t), nil)
	if _, err := p.Summary(ctx, 42); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v", err)
	}
	// Only a created event may open a summary.
	err := p.Apply(ctx, []rosca.Event{{Kind: rosca.EventJoined, RoscaID: 42, Participant: "x"}})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("apply to unknown rosca: %v", err)
	}
	if rounds, err := p.Rounds(ctx, 42); err != nil || len(rounds) != 0 {
		t.Fatalf("rounds = %v, %v", rounds, err)
	}
}

func TestOutstanding(t *testing.T) {
	r := RoundRecord{
		Expected:     []rosca.AccountID{"a", "b", "c", "d"},
		Contributors: []rosca.AccountID{"a"},
		Covered:      []rosca.AccountID{"b"},
		Defaulters:   []rosca.AccountID{"c"},
	}
	if got := r.Outstanding(); !slices.Equal(got, []rosca.AccountID{"d"}) {
		t.Fatalf("outstanding = %v", got)
	}
}

// flakyBackend fails the next failures batch writes.
type flakyBackend struct {
	physical.Backend
	failures atomic.Int32
}

var errWrite = errors.New("write refused")

func (b *flakyBackend) Apply(ctx context.Context, ops []physical.Op) error {
	if b.failures.Add(-1) >= 0 {
		return errWrite
	}
	return b.Backend.Apply(ctx, ops)
}

func TestProjectionRetriesFailedBatch(t *testing.T) {
	ctx := context.Background()
	be := &flakyBackend{Backend: newBackend(t)}
	p := New(be, nil)

	created := []rosca.Event{{Kind: rosca.EventCreated, RoscaID: 7, Participant: "alice", Eligible: []rosca.AccountID{"alice", "bob"}}}
	if err := p.Apply(ctx, created); err != nil {
		t.Fatal(err)
	}

	be.failures.Store(1)
	joined := []rosca.Event{{Kind: rosca.EventJoined, RoscaID: 7, Participant: "bob"}}
	if err := p.Apply(ctx, joined); !errors.Is(err, errWrite) {
		t.Fatalf("apply err = %v, want write failure", err)
	}
	if p.Pending() != 1 {
		t.Fatalf("pending = %d, want 1", p.Pending())
	}

	left := []rosca.Event{{Kind: rosca.EventLeft, RoscaID: 7, Participant: "bob"}}
	if err := p.Apply(ctx, left); err != nil {
		t.Fatal(err)
	}
	if p.Pending() != 0 {
		t.Fatalf("pending = %d after successful write", p.Pending())
	}

	log, err := p.Events(ctx, 7, 0)
	if err != nil {
		t.Fatal(err)
	}
	var got []rosca.EventKind
	for _, r := range log {
		got = append(got, r.Event.Kind)
	}
	want := []rosca.EventKind{rosca.EventCreated, rosca.EventJoined, rosca.EventLeft}
	if !slices.Equal(got, want) {
		t.Fatalf("log = %v, want %v", got, want)
	}
	sum, err := p.Summary(ctx, 7)
	if err != nil {
		t.Fatal(err)
	}
	if sum.EventCount != 3 || !slices.Equal(sum.Members, []rosca.AccountID{"alice"}) {
		t.Fatalf("summary = %+v", sum)
	}
}

func TestProjectionRebuildDrainsBacklog(t *testing.T) {
	ctx := context.Background()
	be := &flakyBackend{Backend: newBackend(t)}
	p := New(be, nil)

	be.failures.Store(1)
	created := []rosca.Event{{Kind: rosca.EventCreated, RoscaID: 3, Participant: "alice"}}
	if err := p.Apply(ctx, created); err == nil {
		t.Fatal("expected write failure")
	}
	if err := p.Rebuild(ctx, 3); err != nil {
		t.Fatal(err)
	}
	if p.Pending() != 0 {
		t.Fatalf("pending = %d", p.Pending())
	}
	sum, err := p.Summary(ctx, 3)
	if err != nil {
		t.Fatal(err)
	}
	if sum.Creator != "alice" || sum.EventCount != 1 {
		t.Fatalf("summary = %+v", sum)
	}
}
