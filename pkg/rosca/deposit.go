package rosca

import "context"

// AddDeposit moves amount from who into the Rosca escrow and credits who's
// security deposit. Allowed while pending or active.
func (e *Engine) AddDeposit(ctx context.Context, id ID, who AccountID, amount Balance) (*Receipt, error) {
	t, err := e.begin(ctx, id)
	if err != nil {
		return nil, err
	}
	st := t.st
	if !st.IsParticipant(who) {
		return nil, ErrNotAParticipant
	}
	if st.Status == StatusCompleted {
		return nil, ErrAlreadyCompleted
	}
	if amount == 0 {
		return nil, ErrAmountNotPositive
	}
	next, err := addBalance(st.Deposits[who], amount)
	if err != nil {
		return nil, err
	}
	if st.Deposits == nil {
		st.Deposits = map[AccountID]Balance{}
	}
	st.Deposits[who] = next
	t.transfer(who, t.escrow, amount)
	t.emit(Event{Kind: EventDepositAdded, Participant: who, Amount: amount})
	return e.commit(ctx, t)
}

// ClaimDeposit returns who's whole security deposit once the Rosca is over.
func (e *Engine) ClaimDeposit(ctx context.Context, id ID, who AccountID) (*Receipt, error) {
	t, err := e.begin(ctx, id)
	if err != nil {
		return nil, err
	}
	st := t.st
	if st.Status == StatusPending {
		return nil, ErrNotStarted
	}
	if t.now <= st.FinalPayBy {
		return nil, ErrFinalPayByNotPassed
	}
	if st.Status == StatusActive {
		return nil, ErrStillActive
	}
	dep, ok := st.Deposits[who]
	if !ok {
		return nil, ErrSecurityDepositNotFound
	}
	if dep == 0 {
		return nil, ErrSecurityDepositIsZero
	}
	delete(st.Deposits, who)
	t.transfer(t.escrow, who, dep)
	t.emit(Event{Kind: EventDepositClaimed, Participant: who, Amount: dep})
	return e.commit(ctx, t)
}

// processDefaulters settles the current round for every non-claimant that
// has not contributed. A deposit covering the full amount pays it; a smaller
// deposit is paid out whole and the member is recorded as a defaulter. The
// uncovered remainder is not tracked.
func (e *Engine) processDefaulters(t *txn) error {
	st := t.st
	amount := st.Config.Amount
	for i := range st.Order.Len() {
		m := st.Order.At(i)
		if m == st.Claimant || st.Contributed[m] {
			continue
		}
		dep := st.Deposits[m]
		if dep >= amount {
			rest, err := subBalance(dep, amount)
			if err != nil {
				return err
			}
			st.Deposits[m] = rest
			t.transfer(t.escrow, st.Claimant, amount)
			t.emit(Event{
				Kind:        EventDepositDeducted,
				Participant: m,
				Recipient:   st.Claimant,
				Amount:      amount,
				Sufficient:  true,
				Round:       st.Round,
			})
			continue
		}
		if dep > 0 {
			st.Deposits[m] = 0
			t.transfer(t.escrow, st.Claimant, dep)
			t.emit(Event{
				Kind:        EventDepositDeducted,
				Participant: m,
				Recipient:   st.Claimant,
				Amount:      dep,
				Round:       st.Round,
			})
		}
		if st.Defaults == nil {
			st.Defaults = map[AccountID]uint32{}
		}
		if st.Defaults[m] < ^uint32(0) {
			st.Defaults[m]++
		}
		t.emit(Event{
			Kind:        EventParticipantDefaulted,
			Participant: m,
			Recipient:   st.Claimant,
			Round:       st.Round,
		})
	}
	return nil
}
