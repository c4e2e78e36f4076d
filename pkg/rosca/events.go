package rosca

import "context"

// EventKind names a notification emitted by a committed operation.
type EventKind string

const (
	EventCreated              EventKind = "created"
	EventJoined               EventKind = "joined"
	EventLeft                 EventKind = "left"
	EventStarted              EventKind = "started"
	EventContributionMade     EventKind = "contribution_made"
	EventDepositAdded         EventKind = "deposit_added"
	EventDepositClaimed       EventKind = "deposit_claimed"
	EventDepositDeducted      EventKind = "deposit_deducted"
	EventParticipantDefaulted EventKind = "participant_defaulted"
	EventRoundStarted         EventKind = "round_started"
	EventCompleted            EventKind = "completed"
	EventManuallyEnded        EventKind = "manually_ended"
)

// Event is a notification. Fields beyond Kind, RoscaID and At are set
// according to Kind:
//
//	created                 Participant (creator), Config, Eligible
//	joined, left            Participant
//	started                 Participant (starter), Schedule
//	contribution_made       Participant, Recipient, Amount, Round
//	deposit_added/claimed   Participant, Amount
//	deposit_deducted        Participant, Recipient, Amount, Sufficient, Round
//	participant_defaulted   Participant, Recipient, Round
//	round_started           Recipient, Round
//	manually_ended          Participant (caller)
type Event struct {
	Kind        EventKind   `json:"kind"`
	RoscaID     ID          `json:"rosca_id"`
	At          Moment      `json:"at"`
	Participant AccountID   `json:"participant,omitempty"`
	Recipient   AccountID   `json:"recipient,omitempty"`
	Amount      Balance     `json:"amount,omitempty"`
	Sufficient  bool        `json:"sufficient,omitempty"`
	Round       uint32      `json:"round,omitempty"`
	Config      *Config     `json:"config,omitempty"`
	Eligible    []AccountID `json:"eligible,omitempty"`
	Schedule    []Round     `json:"schedule,omitempty"`
}

// EventSink receives the events of each committed call, in order. Publish
// runs after the commit and cannot fail the call.
type EventSink interface {
	Publish(ctx context.Context, events []Event)
}

// EventSinkFunc adapts a function to EventSink.
type EventSinkFunc func(ctx context.Context, events []Event)

func (f EventSinkFunc) Publish(ctx context.Context, events []Event) { f(ctx, events) }

type discardSink struct{}

func (discardSink) Publish(context.Context, []Event) {}
