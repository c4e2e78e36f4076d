package rosca

import (
	"context"
	"fmt"
	"slices"
)

// Create validates p, allocates the next id and registers a pending Rosca
// with creator seated at p.Position.
func (e *Engine) Create(ctx context.Context, creator AccountID, p CreateParams) (*Receipt, error) {
	if err := creator.Validate(); err != nil {
		return nil, err
	}
	if p.Amount == 0 {
		return nil, ErrAmountNotPositive
	}
	if p.Frequency == 0 {
		return nil, ErrFrequencyNotPositive
	}
	if len(p.Invited) > MaxInvited {
		return nil, ErrTooManyParticipants
	}
	if slices.Contains(p.Invited, creator) {
		return nil, ErrSelfInvited
	}
	for _, a := range p.Invited {
		if err := a.Validate(); err != nil {
			return nil, err
		}
	}
	invited := slices.Clone(p.Invited)
	slices.Sort(invited)
	invited = slices.Compact(invited)

	size := uint32(len(invited) + 1)
	if p.MinParticipants > size {
		return nil, ErrThresholdTooHigh
	}
	var position uint32
	if p.Position != nil {
		position = *p.Position
	}
	if position >= size || position >= MaxParticipants {
		return nil, fmt.Errorf("%w: position %d, size %d", ErrPositionTooLarge, position, size)
	}
	if len(p.Name) > MaxNameLength {
		return nil, ErrNameTooLong
	}
	if !p.Asset.Valid() {
		return nil, ErrInvalidAsset
	}
	now := e.clock.Now()
	if now >= p.StartBy {
		return nil, ErrStartByNotFuture
	}

	id, err := e.store.NextID(ctx)
	if err != nil {
		return nil, err
	}

	eligible := append([]AccountID{creator}, invited...)
	sorted := slices.Clone(eligible)
	slices.Sort(sorted)

	pending := make([]AccountID, size)
	pending[position] = creator

	cfg := Config{
		Name:            p.Name,
		RandomOrder:     p.RandomOrder,
		Participants:    size,
		MinParticipants: p.MinParticipants,
		Amount:          p.Amount,
		Asset:           p.Asset,
		Frequency:       p.Frequency,
		StartBy:         p.StartBy,
	}
	t := &txn{
		st: &State{
			ID:           id,
			Creator:      creator,
			Config:       cfg,
			Status:       StatusPending,
			CreatedAt:    now,
			Invited:      sorted,
			Positions:    map[AccountID]uint32{creator: position},
			Pending:      pending,
			PendingCount: 1,
		},
		now:    now,
		escrow: EscrowAccount(id),
	}
	t.emit(Event{
		Kind:        EventCreated,
		Participant: creator,
		Config:      &cfg,
		Eligible:    eligible,
	})
	return e.commit(ctx, t)
}
