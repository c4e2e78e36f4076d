package cli

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/gezibash/arc-rosca/pkg/rosca"
)

// Amount formats b with thousands separators and the asset symbol.
func Amount(b rosca.Balance, a rosca.Asset) string {
	n := strconv.FormatUint(uint64(b), 10)
	if b <= math.MaxInt64 {
		n = humanize.Comma(int64(b))
	}
	return n + " " + strings.ToUpper(a.String())
}

// When formats m as an RFC 3339 time followed by its distance from now.
func When(m, now rosca.Moment) string {
	if m == 0 {
		return "-"
	}
	rel := humanize.RelTime(m.Time(), now.Time(), "ago", "from now")
	return m.Time().Format(time.RFC3339) + " (" + rel + ")"
}

// Span formats a Moment used as a duration.
func Span(m rosca.Moment) string {
	return (time.Duration(m) * time.Millisecond).String()
}

// Accounts joins account ids, or returns "-" for none.
func Accounts(accounts []rosca.AccountID) string {
	if len(accounts) == 0 {
		return "-"
	}
	parts := make([]string, len(accounts))
	for i, a := range accounts {
		parts[i] = string(a)
	}
	return strings.Join(parts, ", ")
}

// Describe renders one event as a sentence.
func Describe(ev rosca.Event, asset rosca.Asset) string {
	switch ev.Kind {
	case rosca.EventCreated:
		return fmt.Sprintf("%s created rosca %d", ev.Participant, ev.RoscaID)
	case rosca.EventJoined:
		return fmt.Sprintf("%s joined", ev.Participant)
	case rosca.EventLeft:
		return fmt.Sprintf("%s left", ev.Participant)
	case rosca.EventStarted:
		return fmt.Sprintf("%s started the rosca, %d rounds scheduled", ev.Participant, len(ev.Schedule))
	case rosca.EventContributionMade:
		return fmt.Sprintf("%s paid %s to %s in round %d", ev.Participant, Amount(ev.Amount, asset), ev.Recipient, ev.Round)
	case rosca.EventDepositAdded:
		return fmt.Sprintf("%s deposited %s", ev.Participant, Amount(ev.Amount, asset))
	case rosca.EventDepositClaimed:
		return fmt.Sprintf("%s reclaimed a %s deposit", ev.Participant, Amount(ev.Amount, asset))
	case rosca.EventDepositDeducted:
		covered := "partly covered"
		if ev.Sufficient {
			covered = "covered"
		}
		return fmt.Sprintf("%s deposit %s round %d for %s (%s)", ev.Participant, covered, ev.Round, ev.Recipient, Amount(ev.Amount, asset))
	case rosca.EventParticipantDefaulted:
		return fmt.Sprintf("%s defaulted on round %d owed to %s", ev.Participant, ev.Round, ev.Recipient)
	case rosca.EventRoundStarted:
		return fmt.Sprintf("round %d opened, %s claims", ev.Round, ev.Recipient)
	case rosca.EventCompleted:
		return "rosca completed"
	case rosca.EventManuallyEnded:
		return fmt.Sprintf("%s ended the rosca", ev.Participant)
	default:
		return string(ev.Kind)
	}
}
