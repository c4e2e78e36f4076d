package rosca

import "context"

// Contribute pays the contribution amount from who to the eligible claimant.
// Rounds whose deadline has already passed are settled first, so the
// claimant and the contribution marks are those of the current round. The
// last outstanding contribution of a round closes it.
func (e *Engine) Contribute(ctx context.Context, id ID, who AccountID) (*Receipt, error) {
	t, err := e.begin(ctx, id)
	if err != nil {
		return nil, err
	}
	st := t.st
	if !st.IsParticipant(who) {
		return nil, ErrNotAParticipant
	}
	switch st.Status {
	case StatusCompleted:
		return nil, ErrAlreadyCompleted
	case StatusPending:
		return nil, ErrNotActive
	}

	if err := e.catchUp(t); err != nil {
		return nil, err
	}
	if st.Status == StatusCompleted {
		return nil, ErrAlreadyCompleted
	}
	if who == st.Claimant {
		return nil, ErrCantContributeToSelf
	}
	if st.Contributed[who] {
		return nil, ErrAlreadyContributed
	}

	t.transfer(who, st.Claimant, st.Config.Amount)
	if st.Contributed == nil {
		st.Contributed = map[AccountID]bool{}
	}
	st.Contributed[who] = true
	st.ContributionCount++
	t.emit(Event{
		Kind:        EventContributionMade,
		Participant: who,
		Recipient:   st.Claimant,
		Amount:      st.Config.Amount,
		Round:       st.Round,
	})

	if int(st.ContributionCount) == st.Order.Len()-1 {
		if err := e.advance(t); err != nil {
			return nil, err
		}
	}
	return e.commit(ctx, t)
}
