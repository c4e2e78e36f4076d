package rosca

import (
	"context"
	"fmt"
)

// ManuallyEnd settles every outstanding round of an active Rosca whose
// final pay-by deadline has passed and marks it completed.
func (e *Engine) ManuallyEnd(ctx context.Context, id ID, who AccountID) (*Receipt, error) {
	t, err := e.begin(ctx, id)
	if err != nil {
		return nil, err
	}
	st := t.st
	switch st.Status {
	case StatusPending:
		return nil, ErrNotActive
	case StatusCompleted:
		return nil, ErrAlreadyCompleted
	}
	if t.now <= st.FinalPayBy {
		return nil, ErrFinalPayByNotPassed
	}

	for steps := 0; st.Status == StatusActive && st.NextPayBy <= st.FinalPayBy; steps++ {
		if steps > st.Order.Len() {
			return nil, ErrInconsistent
		}
		if err := e.processDefaulters(t); err != nil {
			return nil, err
		}
		if err := e.advance(t); err != nil {
			return nil, err
		}
	}

	want, err := addMoment(st.FinalPayBy, st.Config.Frequency)
	if err != nil {
		return nil, err
	}
	if st.Status != StatusCompleted || st.NextPayBy != want {
		return nil, fmt.Errorf("%w: next pay-by %d, want %d", ErrInconsistent, st.NextPayBy, want)
	}
	t.emit(Event{Kind: EventManuallyEnded, Participant: who})
	return e.commit(ctx, t)
}
