// Package rosca implements the state machine of a rotating savings and credit
// association: membership before start, claim rotation, per-round
// contributions, catch-up of elapsed rounds, and default handling through
// security deposits.
//
// The package owns no I/O. Value transfers, persistence, time and entropy are
// supplied by the caller through the Ledger, Store, Clock and RandomnessSource
// interfaces.
package rosca

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	// MaxParticipants bounds the size of a Rosca, creator included.
	MaxParticipants = 150
	// MaxInvited bounds the invited list supplied at creation.
	MaxInvited = MaxParticipants - 1
	// MaxNameLength bounds the Rosca name in bytes.
	MaxNameLength = 50
)

// AccountID identifies a participant. The core only compares and orders
// account ids; their meaning belongs to the identity layer.
type AccountID string

// escrowPrefix is reserved for accounts derived by the engine.
const escrowPrefix = "escrow:"

// Validate reports whether a is usable as a participant identity.
func (a AccountID) Validate() error {
	if a == "" {
		return fmt.Errorf("%w: empty account id", ErrInvalidAccount)
	}
	if strings.HasPrefix(string(a), escrowPrefix) {
		return fmt.Errorf("%w: %q uses a reserved prefix", ErrInvalidAccount, a)
	}
	return nil
}

// EscrowAccount returns the account holding the security deposits of a Rosca.
func EscrowAccount(id ID) AccountID {
	return AccountID(escrowPrefix + "rosca:" + strconv.FormatUint(uint64(id), 10))
}

// ID identifies a Rosca. Ids are allocated sequentially starting at zero.
type ID uint32

func (id ID) String() string { return strconv.FormatUint(uint64(id), 10) }

// ParseID parses a decimal Rosca id.
func ParseID(s string) (ID, error) {
	n, err := strconv.ParseUint(strings.TrimSpace(s), 10, 32)
	if err != nil {
		return 0, fmt.Errorf("parse rosca id %q: %w", s, err)
	}
	return ID(n), nil
}

// Moment is a point in time or a duration in unix milliseconds.
type Moment uint64

// MomentOf converts a wall-clock time to a Moment.
func MomentOf(t time.Time) Moment {
	ms := t.UnixMilli()
	if ms < 0 {
		return 0
	}
	return Moment(ms)
}

// DurationMoment converts a duration to a Moment span.
func DurationMoment(d time.Duration) Moment {
	if d < 0 {
		return 0
	}
	return Moment(d.Milliseconds())
}

// Time returns m as wall-clock time.
func (m Moment) Time() time.Time { return time.UnixMilli(int64(m)).UTC() }

// Balance is an amount of a payment asset in its smallest unit.
type Balance uint64

// Asset identifies the token a Rosca settles in.
type Asset uint32

const (
	AssetUSDC Asset = 1337
	AssetUSDT Asset = 1984
)

func (a Asset) String() string {
	switch a {
	case AssetUSDT:
		return "usdt"
	case AssetUSDC:
		return "usdc"
	default:
		return "asset-" + strconv.FormatUint(uint64(a), 10)
	}
}

// Valid reports whether a is a supported payment asset.
func (a Asset) Valid() bool { return a == AssetUSDT || a == AssetUSDC }

// ParseAsset accepts an asset name ("usdt", "usdc") or its numeric id.
func ParseAsset(s string) (Asset, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	switch v {
	case "usdt":
		return AssetUSDT, nil
	case "usdc":
		return AssetUSDC, nil
	}
	n, err := strconv.ParseUint(v, 10, 32)
	if err != nil || !Asset(n).Valid() {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAsset, s)
	}
	return Asset(n), nil
}

func (a Asset) MarshalText() ([]byte, error) { return []byte(a.String()), nil }

func (a *Asset) UnmarshalText(b []byte) error {
	v, err := ParseAsset(string(b))
	if err != nil {
		return err
	}
	*a = v
	return nil
}

// Status is the lifecycle phase of a Rosca.
type Status uint8

const (
	StatusPending Status = iota
	StatusActive
	StatusCompleted
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusActive:
		return "active"
	case StatusCompleted:
		return "completed"
	default:
		return "unknown"
	}
}

func (s Status) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *Status) UnmarshalText(b []byte) error {
	switch string(b) {
	case "pending":
		*s = StatusPending
	case "active":
		*s = StatusActive
	case "completed":
		*s = StatusCompleted
	default:
		return fmt.Errorf("unknown status %q", b)
	}
	return nil
}

// Config is the immutable configuration of a Rosca, fixed at creation.
type Config struct {
	Name            string  `json:"name"`
	RandomOrder     bool    `json:"random_order"`
	Participants    uint32  `json:"participants"`
	MinParticipants uint32  `json:"min_participants"`
	Amount          Balance `json:"amount"`
	Asset           Asset   `json:"asset"`
	Frequency       Moment  `json:"frequency"`
	StartBy         Moment  `json:"start_by"`
}

// CreateParams are the caller-supplied arguments of Create.
type CreateParams struct {
	Name            string
	RandomOrder     bool
	Invited         []AccountID
	MinParticipants uint32
	Amount          Balance
	Asset           Asset
	Frequency       Moment
	StartBy         Moment
	// Position is the creator's slot in the pending order. Nil means 0.
	Position *uint32
}

// Transfer is one value movement requested by an operation.
type Transfer struct {
	Asset  Asset     `json:"asset"`
	From   AccountID `json:"from"`
	To     AccountID `json:"to"`
	Amount Balance   `json:"amount"`
}

// Receipt describes the committed effects of a successful call.
type Receipt struct {
	RoscaID   ID         `json:"rosca_id"`
	Events    []Event    `json:"events"`
	Transfers []Transfer `json:"transfers,omitempty"`
}
