package cli

import (
	"fmt"
	"strconv"

	"github.com/gezibash/arc-rosca/internal/projection"
	"github.com/gezibash/arc-rosca/pkg/rosca"
)

// StateView shows one Rosca. sum may be nil when the projection lags.
func StateView(o *Output, st *rosca.State, sum *projection.Summary, now rosca.Moment) *KV {
	kv := o.KV("rosca").
		Set("ID", st.ID).
		Set("Name", st.Config.Name).
		Set("Status", st.Status.String()).
		Set("Creator", st.Creator).
		Set("Amount", Amount(st.Config.Amount, st.Config.Asset)).
		Set("Frequency", Span(st.Config.Frequency)).
		Set("Participants", fmt.Sprintf("%d of %d (min %d)", len(st.Positions), st.Config.Participants, st.Config.MinParticipants)).
		Set("Created", When(st.CreatedAt, now))

	switch st.Status {
	case rosca.StatusPending:
		kv.Set("Start By", When(st.Config.StartBy, now)).
			Set("Pending Order", Accounts(st.Pending))
	default:
		kv.Section("Schedule").
			Set("Round", fmt.Sprintf("%d of %d", st.Round, st.Order.Len())).
			Set("Claimant", st.Claimant).
			Set("Order", Accounts(st.Order.Slice())).
			Set("Next Pay By", When(st.NextPayBy, now)).
			Set("Final Pay By", When(st.FinalPayBy, now)).
			Set("Started By", st.StartedBy)
	}
	if sum != nil {
		kv.Section("Totals").
			Set("Contributed", Amount(sum.Contributed, sum.Asset)).
			Set("Deducted", Amount(sum.Deducted, sum.Asset)).
			Set("Deposits Held", Amount(sum.DepositsHeld, sum.Asset)).
			Set("Defaults", sum.Defaults)
		if sum.EndedBy != "" {
			kv.Set("Ended By", sum.EndedBy)
		}
	}
	return kv
}

func StatesTable(o *Output, states []*rosca.State, now rosca.Moment) *Table {
	t := o.Table("roscas", "ID", "Name", "Status", "Members", "Amount", "Round", "Claimant", "Next Pay By").
		AlignRight("Amount")
	for _, st := range states {
		round, claimant, next := "-", "-", "-"
		if st.Status != rosca.StatusPending {
			round = strconv.FormatUint(uint64(st.Round), 10)
			claimant = string(st.Claimant)
			next = When(st.NextPayBy, now)
		}
		t.AddRow(
			st.ID.String(),
			st.Config.Name,
			st.Status.String(),
			fmt.Sprintf("%d/%d", len(st.Positions), st.Config.Participants),
			Amount(st.Config.Amount, st.Config.Asset),
			round,
			claimant,
			next,
		)
	}
	return t
}

func RoundsTable(o *Output, rounds []projection.RoundRecord, asset rosca.Asset) *Table {
	t := o.Table("rounds", "Round", "Recipient", "Cutoff", "Paid", "Covered", "Defaulted", "Outstanding", "Collected", "Closed").
		AlignRight("Collected")
	for _, r := range rounds {
		closed := "no"
		if r.Closed {
			closed = "yes"
		}
		t.AddRow(
			strconv.FormatUint(uint64(r.Number), 10),
			string(r.Recipient),
			r.Cutoff.Time().Format("2006-01-02 15:04"),
			Accounts(r.Contributors),
			Accounts(r.Covered),
			Accounts(r.Defaulters),
			Accounts(r.Outstanding()),
			Amount(r.Collected, asset),
			closed,
		)
	}
	return t
}

func EventsTable(o *Output, records []projection.Record, asset rosca.Asset) *Table {
	t := o.Table("events", "Seq", "Kind", "At", "Description")
	for _, r := range records {
		t.AddRow(
			strconv.FormatUint(r.Seq, 10),
			string(r.Event.Kind),
			r.Event.At.Time().Format("2006-01-02 15:04:05"),
			Describe(r.Event, asset),
		)
	}
	return t
}

// ReceiptView lists what a committed call did.
func ReceiptView(o *Output, action string, r *rosca.Receipt, asset rosca.Asset) *List {
	l := o.List("receipt").Title(fmt.Sprintf("%s rosca %d", action, r.RoscaID))
	for _, ev := range r.Events {
		l.Add(Describe(ev, asset))
	}
	for _, tr := range r.Transfers {
		l.Add(fmt.Sprintf("transfer %s from %s to %s", Amount(tr.Amount, tr.Asset), tr.From, tr.To))
	}
	return l
}

func BalanceView(o *Output, asset rosca.Asset, account rosca.AccountID, balance rosca.Balance) *Result {
	return o.Result("balance", fmt.Sprintf("%s holds %s", account, Amount(balance, asset))).
		With("account", account).
		With("asset", asset.String()).
		With("balance", uint64(balance))
}
