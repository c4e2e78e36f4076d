package rosca

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"testing"
)

func members(n int) []AccountID {
	out := make([]AccountID, n)
	for i := range out {
		out[i] = AccountID(fmt.Sprintf("p%02d", i))
	}
	return out
}

func TestRingMatchesPhysicalRotation(t *testing.T) {
	for n := 1; n <= 8; n++ {
		ring := NewRing(members(n))
		naive := members(n)
		for step := 0; step < 2*n; step++ {
			if got, want := ring.Slice(), naive; !slices.Equal(got, want) {
				t.Fatalf("n=%d step=%d: ring %v, naive %v", n, step, got, want)
			}
			if ring.Last() != naive[n-1] {
				t.Fatalf("n=%d step=%d: last %s, want %s", n, step, ring.Last(), naive[n-1])
			}
			ring.RotateRight()
			naive = append([]AccountID{naive[n-1]}, naive[:n-1]...)
		}
	}
}

func TestSelectThenRotateVisitsEveryMemberOnce(t *testing.T) {
	for n := 1; n <= 8; n++ {
		ring := NewRing(members(n))
		seen := map[AccountID]int{}
		for range n {
			seen[ring.Last()]++
			ring.RotateRight()
		}
		if len(seen) != n {
			t.Fatalf("n=%d: %d distinct claimants, want %d", n, len(seen), n)
		}
		for a, c := range seen {
			if c != 1 {
				t.Fatalf("n=%d: %s claimed %d times", n, a, c)
			}
		}
	}
}

// TestFullCycleClaimants drives the engine through complete cycles and checks
// that every participant claims exactly once, in schedule order.
func TestFullCycleClaimants(t *testing.T) {
	for n := 2; n <= 8; n++ {
		t.Run(fmt.Sprintf("n=%d", n), func(t *testing.T) {
			ctx := context.Background()
			ledger := NewMemoryLedger()
			store := NewMemoryStore()
			e := NewEngine(store, ledger, FixedClock(1))
			all := members(n)
			for _, a := range all {
				if err := ledger.Mint(AssetUSDC, a, 10_000); err != nil {
					t.Fatal(err)
				}
			}
			r, err := e.Create(ctx, all[0], CreateParams{
				Invited:         all[1:],
				MinParticipants: uint32(n),
				Amount:          10,
				Asset:           AssetUSDC,
				Frequency:       5,
				StartBy:         100,
			})
			if err != nil {
				t.Fatal(err)
			}
			id := r.RoscaID
			for _, a := range all[1:] {
				if _, err := e.Join(ctx, id, a, nil); err != nil {
					t.Fatal(err)
				}
			}
			if _, err := e.Start(ctx, id, all[0]); err != nil {
				t.Fatal(err)
			}
			st, _ := store.Get(ctx, id)
			schedule := st.Schedule

			var claimants []AccountID
			for round := 0; ; round++ {
				st, _ := store.Get(ctx, id)
				if st.Status == StatusCompleted {
					break
				}
				if round >= n {
					t.Fatalf("still active after %d rounds", round)
				}
				if st.Round != uint32(round+1) || st.NextPayBy != schedule[round].Cutoff {
					t.Fatalf("round %d: state round %d next %d, schedule cutoff %d",
						round+1, st.Round, st.NextPayBy, schedule[round].Cutoff)
				}
				claimants = append(claimants, st.Claimant)
				if !st.Order.Contains(st.Claimant) || st.Order.Len() != n {
					t.Fatalf("round %d: claimant %s, order %v", round+1, st.Claimant, st.Order.Slice())
				}
				for _, a := range st.Order.Slice() {
					if a == st.Claimant {
						continue
					}
					if _, err := e.Contribute(ctx, id, a); err != nil {
						t.Fatalf("round %d: contribute %s: %v", round+1, a, err)
					}
				}
			}

			if len(claimants) != n {
				t.Fatalf("claimants %v, want %d rounds", claimants, n)
			}
			for i, c := range claimants {
				if schedule[i].Recipient != c {
					t.Errorf("round %d: claimant %s, schedule says %s", i+1, c, schedule[i].Recipient)
				}
			}
			sorted := slices.Clone(claimants)
			slices.Sort(sorted)
			if !slices.Equal(sorted, all) {
				t.Fatalf("claimants %v are not the participant set", claimants)
			}
			for _, a := range all {
				if got := ledger.Balance(AssetUSDC, a); got != 10_000 {
					t.Errorf("%s ends with %d, want 10000", a, got)
				}
			}
		})
	}
}

func TestRingJSON(t *testing.T) {
	r := NewRing(members(4))
	r.RotateRight()
	r.RotateRight()
	b, err := json.Marshal(r)
	if err != nil {
		t.Fatal(err)
	}
	var back Ring
	if err := json.Unmarshal(b, &back); err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(back.Slice(), r.Slice()) {
		t.Fatalf("decoded %v, want %v", back.Slice(), r.Slice())
	}
	if err := json.Unmarshal([]byte(`{"members":["a"],"head":3}`), &back); err == nil {
		t.Fatal("expected error for head out of range")
	}
}

func TestBuildSchedule(t *testing.T) {
	rounds, err := BuildSchedule([]AccountID{"a", "b", "c"}, 11, 10)
	if err != nil {
		t.Fatal(err)
	}
	want := []struct {
		recipient AccountID
		cutoff    Moment
		expected  []AccountID
	}{
		{"c", 11, []AccountID{"a", "b"}},
		{"b", 21, []AccountID{"a", "c"}},
		{"a", 31, []AccountID{"b", "c"}},
	}
	if len(rounds) != len(want) {
		t.Fatalf("got %d rounds", len(rounds))
	}
	for i, w := range want {
		r := rounds[i]
		if r.Number != uint32(i+1) || r.Recipient != w.recipient || r.Cutoff != w.cutoff || !slices.Equal(r.Expected, w.expected) {
			t.Errorf("round %d = %+v", i+1, r)
		}
	}

	if _, err := BuildSchedule([]AccountID{"a", "b"}, ^Moment(0), 1); err != ErrOverflow {
		t.Fatalf("overflow: err = %v", err)
	}
}
