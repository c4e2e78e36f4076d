package rosca

import (
	"context"
	"fmt"
)

// Join seats an invited account in the pending order, at position if given
// or at the first empty slot otherwise.
func (e *Engine) Join(ctx context.Context, id ID, who AccountID, position *uint32) (*Receipt, error) {
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
	if st.IsParticipant(who) {
		return nil, ErrAlreadyJoined
	}
	if !st.IsInvited(who) {
		return nil, ErrNotInvited
	}
	if t.now >= st.Config.StartBy {
		return nil, ErrStartByNotFuture
	}

	var slot uint32
	if position != nil {
		slot = *position
		if int(slot) >= len(st.Pending) {
			return nil, fmt.Errorf("%w: position %d, size %d", ErrPositionTooLarge, slot, len(st.Pending))
		}
		if st.Pending[slot] != "" {
			return nil, ErrPositionAlreadyFilled
		}
	} else {
		found := false
		for i, a := range st.Pending {
			if a == "" {
				slot, found = uint32(i), true
				break
			}
		}
		if !found {
			return nil, ErrAllPositionsFilled
		}
	}
	if st.Positions == nil {
		st.Positions = map[AccountID]uint32{}
	}
	st.Pending[slot] = who
	st.Positions[who] = slot
	st.PendingCount++
	t.emit(Event{Kind: EventJoined, Participant: who})
	return e.commit(ctx, t)
}

// Leave frees who's pending slot and refunds any security deposit in full.
func (e *Engine) Leave(ctx context.Context, id ID, who AccountID) (*Receipt, error) {
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
	slot, ok := st.Positions[who]
	if !ok {
		return nil, ErrNotAParticipant
	}
	if st.PendingCount == 0 {
		return nil, ErrUnderflow
	}

	st.Pending[slot] = ""
	delete(st.Positions, who)
	st.PendingCount--

	if dep, ok := st.Deposits[who]; ok {
		delete(st.Deposits, who)
		if dep > 0 {
			t.transfer(t.escrow, who, dep)
			t.emit(Event{Kind: EventDepositClaimed, Participant: who, Amount: dep})
		}
	}
	t.emit(Event{Kind: EventLeft, Participant: who})
	return e.commit(ctx, t)
}
