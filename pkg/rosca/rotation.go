package rosca

import (
	"context"
	"slices"
)

// Start freezes the pending order into the active claim order and opens the
// first round. Earliest slots claim last: the pending order is reversed
// before the first claimant is taken from its end.
func (e *Engine) Start(ctx context.Context, id ID, who AccountID) (*Receipt, error) {
	t, err := e.begin(ctx, id)
	if err != nil {
		return nil, err
	}
	st := t.st
	switch st.Status {
	case StatusActive:
		return nil, ErrAlreadyActive
	case StatusCompleted:
		return nil, ErrAlreadyCompleted
	}
	if !st.IsParticipant(who) {
		return nil, ErrNotAParticipant
	}
	if t.now >= st.Config.StartBy {
		return nil, ErrStartByNotFuture
	}
	if st.PendingCount < st.Config.MinParticipants {
		return nil, ErrThresholdNotMet
	}

	order := make([]AccountID, 0, st.PendingCount)
	for _, a := range slices.Backward(st.Pending) {
		if a != "" {
			order = append(order, a)
		}
	}
	if len(order) == 0 || uint32(len(order)) != st.PendingCount {
		return nil, ErrInconsistent
	}
	if st.Config.RandomOrder {
		if err := Shuffle(order, e.random); err != nil {
			return nil, err
		}
	}

	next, err := addMoment(t.now, st.Config.Frequency)
	if err != nil {
		return nil, err
	}
	span, err := mulMoment(st.Config.Frequency, uint64(len(order)-1))
	if err != nil {
		return nil, err
	}
	final, err := addMoment(next, span)
	if err != nil {
		return nil, err
	}
	schedule, err := BuildSchedule(order, next, st.Config.Frequency)
	if err != nil {
		return nil, err
	}

	ring := NewRing(order)
	st.Claimant = ring.Last()
	ring.RotateRight()
	st.Order = ring
	st.Pending = nil
	st.Status = StatusActive
	st.Round = 1
	st.Contributed = map[AccountID]bool{}
	st.ContributionCount = 0
	st.NextPayBy = next
	st.FinalPayBy = final
	st.StartedBy = who
	st.StartedAt = t.now
	st.Schedule = schedule

	t.emit(Event{Kind: EventStarted, Participant: who, Schedule: schedule})
	return e.commit(ctx, t)
}

// advance closes the current round. It moves next-pay-by forward one
// frequency; past final-pay-by the Rosca completes, otherwise the trailing
// member of the order becomes claimant and the order rotates right.
func (e *Engine) advance(t *txn) error {
	st := t.st
	next, err := addMoment(st.NextPayBy, st.Config.Frequency)
	if err != nil {
		return err
	}
	st.NextPayBy = next
	if next > st.FinalPayBy {
		st.Status = StatusCompleted
		st.Contributed = nil
		st.ContributionCount = 0
		t.emit(Event{Kind: EventCompleted, Round: st.Round})
		return nil
	}
	if st.Order.Len() == 0 {
		return ErrInconsistent
	}
	st.Claimant = st.Order.Last()
	st.Order.RotateRight()
	st.Round++
	st.Contributed = map[AccountID]bool{}
	st.ContributionCount = 0
	t.emit(Event{Kind: EventRoundStarted, Recipient: st.Claimant, Round: st.Round})
	return nil
}

// catchUp settles every round whose deadline has passed: missed
// contributions are drawn from deposits, then the round advances. The loop
// is bounded by the number of rounds left before final-pay-by.
func (e *Engine) catchUp(t *txn) error {
	st := t.st
	for steps := 0; st.Status == StatusActive && t.now >= st.NextPayBy; steps++ {
		if steps > st.Order.Len() {
			return ErrInconsistent
		}
		if err := e.processDefaulters(t); err != nil {
			return err
		}
		if err := e.advance(t); err != nil {
			return err
		}
	}
	return nil
}
