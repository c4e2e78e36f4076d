package rosca

import (
	"encoding/json"
	"slices"
)

// Ring is the active claim order. Rotation moves a head index instead of
// shifting members, so RotateRight is O(1). Position i of the logical order
// is members[(head+i) % len].
type Ring struct {
	members []AccountID
	head    int
}

// NewRing returns a ring whose logical order is members.
func NewRing(members []AccountID) Ring {
	return Ring{members: slices.Clone(members)}
}

// Len returns the number of members.
func (r Ring) Len() int { return len(r.members) }

// At returns the i-th member of the logical order.
func (r Ring) At(i int) AccountID {
	return r.members[(r.head+i)%len(r.members)]
}

// Last returns the trailing member of the logical order.
func (r Ring) Last() AccountID {
	return r.At(len(r.members) - 1)
}

// RotateRight moves the last member to the front.
func (r *Ring) RotateRight() {
	if n := len(r.members); n > 0 {
		r.head = (r.head + n - 1) % n
	}
}

// Contains reports whether a is a member.
func (r Ring) Contains(a AccountID) bool {
	return slices.Contains(r.members, a)
}

// Slice returns the logical order as a new slice.
func (r Ring) Slice() []AccountID {
	out := make([]AccountID, len(r.members))
	for i := range out {
		out[i] = r.At(i)
	}
	return out
}

func (r Ring) clone() Ring {
	return Ring{members: slices.Clone(r.members), head: r.head}
}

type ringJSON struct {
	Members []AccountID `json:"members"`
	Head    int         `json:"head"`
}

func (r Ring) MarshalJSON() ([]byte, error) {
	m := r.members
	if m == nil {
		m = []AccountID{}
	}
	return json.Marshal(ringJSON{Members: m, Head: r.head})
}

func (r *Ring) UnmarshalJSON(b []byte) error {
	var v ringJSON
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	if v.Head < 0 || (len(v.Members) > 0 && v.Head >= len(v.Members)) || (len(v.Members) == 0 && v.Head != 0) {
		return ErrInconsistent
	}
	r.members, r.head = v.Members, v.Head
	return nil
}
