package rosca

import (
	"maps"
	"slices"
)

// State is the complete bundle of one Rosca, addressed by ID. Operations
// stage their changes on a Clone and the Store persists the bundle whole.
type State struct {
	ID        ID        `json:"id"`
	Creator   AccountID `json:"creator"`
	Config    Config    `json:"config"`
	Status    Status    `json:"status"`
	CreatedAt Moment    `json:"created_at"`

	// Invited holds every identity allowed to join, creator included, sorted.
	Invited []AccountID `json:"invited"`
	// Positions maps each participant to the pending slot they joined at.
	// It survives start and remains the membership record afterwards.
	Positions map[AccountID]uint32 `json:"positions"`
	// Pending is the pre-start order, one slot per target participant;
	// empty slots hold "".
	Pending      []AccountID `json:"pending,omitempty"`
	PendingCount uint32      `json:"pending_count"`

	Order             Ring               `json:"order"`
	Claimant          AccountID          `json:"claimant,omitempty"`
	Round             uint32             `json:"round"`
	Contributed       map[AccountID]bool `json:"contributed,omitempty"`
	ContributionCount uint32             `json:"contribution_count"`
	NextPayBy         Moment             `json:"next_pay_by"`
	FinalPayBy        Moment             `json:"final_pay_by"`
	StartedBy         AccountID          `json:"started_by,omitempty"`
	StartedAt         Moment             `json:"started_at,omitempty"`
	Schedule          []Round            `json:"schedule,omitempty"`

	Deposits map[AccountID]Balance `json:"deposits,omitempty"`
	Defaults map[AccountID]uint32  `json:"defaults,omitempty"`
}

// Clone returns a deep copy of s.
func (s *State) Clone() *State {
	c := *s
	c.Invited = slices.Clone(s.Invited)
	c.Positions = maps.Clone(s.Positions)
	c.Pending = slices.Clone(s.Pending)
	c.Order = s.Order.clone()
	c.Contributed = maps.Clone(s.Contributed)
	c.Deposits = maps.Clone(s.Deposits)
	c.Defaults = maps.Clone(s.Defaults)
	if s.Schedule != nil {
		c.Schedule = make([]Round, len(s.Schedule))
		for i, r := range s.Schedule {
			r.Expected = slices.Clone(r.Expected)
			c.Schedule[i] = r
		}
	}
	return &c
}

// IsParticipant reports whether a has joined (and not left) the Rosca.
func (s *State) IsParticipant(a AccountID) bool {
	_, ok := s.Positions[a]
	return ok
}

// IsInvited reports whether a may join.
func (s *State) IsInvited(a AccountID) bool {
	_, ok := slices.BinarySearch(s.Invited, a)
	return ok
}

// Participants returns the current members: the active order once started,
// otherwise the filled pending slots in slot order.
func (s *State) Participants() []AccountID {
	if s.Status != StatusPending {
		return s.Order.Slice()
	}
	out := make([]AccountID, 0, s.PendingCount)
	for _, a := range s.Pending {
		if a != "" {
			out = append(out, a)
		}
	}
	return out
}

// Deposit returns a's security deposit and whether one was ever recorded.
func (s *State) Deposit(a AccountID) (Balance, bool) {
	b, ok := s.Deposits[a]
	return b, ok
}
