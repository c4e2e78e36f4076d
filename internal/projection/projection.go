// Package projection folds committed rosca events into read models: a
// summary per Rosca, one record per round, and the ordered event log. The
// models are eventually consistent with the state store and can be rebuilt
// from the log alone.
package projection

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/gezibash/arc-rosca/internal/observability"
	"github.com/gezibash/arc-rosca/internal/store/physical"
	"github.com/gezibash/arc-rosca/pkg/rosca"
)

// ErrNotFound is returned for Roscas the projection has not seen.
var ErrNotFound = errors.New("projection not found")

// Summary is the aggregate view of one Rosca.
type Summary struct {
	ID          rosca.ID          `json:"id"`
	Name        string            `json:"name"`
	Creator     rosca.AccountID   `json:"creator"`
	Asset       rosca.Asset       `json:"asset"`
	Amount      rosca.Balance     `json:"amount"`
	Frequency   rosca.Moment      `json:"frequency"`
	Eligible    []rosca.AccountID `json:"eligible"`
	Members     []rosca.AccountID `json:"members"`
	CreatedAt   rosca.Moment      `json:"created_at"`
	StartedBy   rosca.AccountID   `json:"started_by,omitempty"`
	StartedAt   rosca.Moment      `json:"started_at,omitempty"`
	Completed   bool              `json:"completed"`
	CompletedAt rosca.Moment      `json:"completed_at,omitempty"`
	EndedBy     rosca.AccountID   `json:"ended_by,omitempty"`
	Round       uint32            `json:"round"`

	Contributed   rosca.Balance `json:"contributed"`
	Deducted      rosca.Balance `json:"deducted"`
	DepositsHeld  rosca.Balance `json:"deposits_held"`
	Defaults      uint32        `json:"defaults"`
	EventCount    uint64        `json:"event_count"`
	LastEventTime rosca.Moment  `json:"last_event_at"`
}

// RoundRecord tracks the settlement of one round.
type RoundRecord struct {
	Number       uint32            `json:"number"`
	Recipient    rosca.AccountID   `json:"recipient"`
	Cutoff       rosca.Moment      `json:"cutoff"`
	Expected     []rosca.AccountID `json:"expected"`
	Contributors []rosca.AccountID `json:"contributors"`
	Covered      []rosca.AccountID `json:"covered"`
	Defaulters   []rosca.AccountID `json:"defaulters"`
	Collected    rosca.Balance     `json:"collected"`
	Closed       bool              `json:"closed"`
	ClosedAt     rosca.Moment      `json:"closed_at,omitempty"`
}

// Outstanding returns the expected members that neither paid nor were
// settled from a deposit or as defaulters.
func (r *RoundRecord) Outstanding() []rosca.AccountID {
	var out []rosca.AccountID
	for _, m := range r.Expected {
		if !slices.Contains(r.Contributors, m) && !slices.Contains(r.Covered, m) && !slices.Contains(r.Defaulters, m) {
			out = append(out, m)
		}
	}
	return out
}

// Record is one entry of the event log.
type Record struct {
	Seq   uint64      `json:"seq"`
	Event rosca.Event `json:"event"`
}

func summaryKey(id rosca.ID) string { return fmt.Sprintf("proj/summary/%010d", uint64(id)) }
func roundPrefix(id rosca.ID) string { return fmt.Sprintf("proj/round/%010d/", uint64(id)) }
func roundKey(id rosca.ID, n uint32) string { return fmt.Sprintf("%s%06d", roundPrefix(id), n) }
func eventPrefix(id rosca.ID) string { return fmt.Sprintf("proj/event/%010d/", uint64(id)) }
func eventKey(id rosca.ID, seq uint64) string {
	return fmt.Sprintf("%s%012d", eventPrefix(id), seq)
}

// Projector maintains the read models in a physical backend.
type Projector struct {
	backend physical.Backend
	metrics *observability.Metrics
	mu      sync.Mutex
	// backlog holds events whose batch failed to write. They are applied
	// ahead of the next batch.
	backlog []rosca.Event
}

// New returns a projector writing to backend. metrics may be nil.
func New(backend physical.Backend, metrics *observability.Metrics) *Projector {
	return &Projector{backend: backend, metrics: metrics}
}

// batch holds the models touched by one Apply call.
type batch struct {
	p         *Projector
	summaries map[rosca.ID]*Summary
	rounds    map[rosca.ID]map[uint32]*RoundRecord
	ops       []physical.Op
	// fresh skips stored round records during a rebuild.
	fresh bool
}

// Apply folds events into the models and appends them to the log, writing
// everything in one batch. When the write fails the events are kept and
// retried, in order, by the next Apply or Retry.
func (p *Projector) Apply(ctx context.Context, events []rosca.Event) (err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	all := append(slices.Clone(p.backlog), events...)
	if len(all) == 0 {
		return nil
	}
	op, ctx := observability.StartOperation(ctx, p.metrics, "projection.apply")
	defer func() { op.End(err) }()

	if err = p.apply(ctx, all); err != nil {
		if !errors.Is(err, ErrNotFound) {
			p.backlog = all
		}
		return err
	}
	p.backlog = nil
	return nil
}

// Retry applies the backlog left by failed writes.
func (p *Projector) Retry(ctx context.Context) error {
	return p.Apply(ctx, nil)
}

// Pending reports how many events wait in the backlog.
func (p *Projector) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.backlog)
}

func (p *Projector) apply(ctx context.Context, events []rosca.Event) error {
	b := &batch{p: p, summaries: map[rosca.ID]*Summary{}, rounds: map[rosca.ID]map[uint32]*RoundRecord{}}
	for _, ev := range events {
		s, err := b.summary(ctx, ev.RoscaID, ev.Kind == rosca.EventCreated)
		if err != nil {
			return err
		}
		s.EventCount++
		rec, err := json.Marshal(Record{Seq: s.EventCount, Event: ev})
		if err != nil {
			return err
		}
		b.ops = append(b.ops, physical.Put(eventKey(ev.RoscaID, s.EventCount), rec))
		if err := b.fold(ctx, s, ev); err != nil {
			return err
		}
	}
	return b.flush(ctx)
}

// Rebuild discards the models of id and replays its event log. The backlog
// is written first so the log is complete.
func (p *Projector) Rebuild(ctx context.Context, id rosca.ID) error {
	if err := p.Retry(ctx); err != nil {
		return fmt.Errorf("apply backlog: %w", err)
	}
	log, err := p.Events(ctx, id, 0)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	rounds, err := p.backend.Scan(ctx, roundPrefix(id))
	if err != nil {
		return err
	}
	b := &batch{p: p, summaries: map[rosca.ID]*Summary{}, rounds: map[rosca.ID]map[uint32]*RoundRecord{}, fresh: true}
	for _, kv := range rounds {
		b.ops = append(b.ops, physical.Delete(kv.Key))
	}
	b.summaries[id] = &Summary{ID: id}
	b.rounds[id] = map[uint32]*RoundRecord{}
	for _, r := range log {
		s := b.summaries[id]
		s.EventCount = r.Seq
		if err := b.fold(ctx, s, r.Event); err != nil {
			return err
		}
	}
	return b.flush(ctx)
}

func (b *batch) summary(ctx context.Context, id rosca.ID, create bool) (*Summary, error) {
	if s, ok := b.summaries[id]; ok {
		return s, nil
	}
	s, err := b.p.Summary(ctx, id)
	if errors.Is(err, ErrNotFound) && create {
		s, err = &Summary{ID: id}, nil
	}
	if err != nil {
		return nil, err
	}
	b.summaries[id] = s
	return s, nil
}

func (b *batch) round(ctx context.Context, id rosca.ID, n uint32) (*RoundRecord, error) {
	rs, ok := b.rounds[id]
	if !ok {
		rs = map[uint32]*RoundRecord{}
		b.rounds[id] = rs
	}
	if r, ok := rs[n]; ok {
		return r, nil
	}
	r := &RoundRecord{Number: n}
	if b.fresh {
		rs[n] = r
		return r, nil
	}
	data, err := b.p.backend.Get(ctx, roundKey(id, n))
	switch {
	case errors.Is(err, physical.ErrNotFound):
	case err != nil:
		return nil, err
	default:
		if err := json.Unmarshal(data, r); err != nil {
			return nil, fmt.Errorf("decode round %d/%d: %w", id, n, err)
		}
	}
	rs[n] = r
	return r, nil
}

func (b *batch) fold(ctx context.Context, s *Summary, ev rosca.Event) error {
	s.LastEventTime = ev.At
	switch ev.Kind {
	case rosca.EventCreated:
		s.Creator = ev.Participant
		s.CreatedAt = ev.At
		s.Eligible = slices.Clone(ev.Eligible)
		s.Members = []rosca.AccountID{ev.Participant}
		if ev.Config != nil {
			s.Name = ev.Config.Name
			s.Asset = ev.Config.Asset
			s.Amount = ev.Config.Amount
			s.Frequency = ev.Config.Frequency
		}
	case rosca.EventJoined:
		if !slices.Contains(s.Members, ev.Participant) {
			s.Members = append(s.Members, ev.Participant)
		}
	case rosca.EventLeft:
		s.Members = slices.DeleteFunc(s.Members, func(a rosca.AccountID) bool { return a == ev.Participant })
	case rosca.EventStarted:
		s.StartedBy = ev.Participant
		s.StartedAt = ev.At
		s.Round = 1
		for _, sr := range ev.Schedule {
			r, err := b.round(ctx, s.ID, sr.Number)
			if err != nil {
				return err
			}
			r.Recipient = sr.Recipient
			r.Cutoff = sr.Cutoff
			r.Expected = slices.Clone(sr.Expected)
		}
	case rosca.EventContributionMade:
		s.Contributed += ev.Amount
		r, err := b.round(ctx, s.ID, ev.Round)
		if err != nil {
			return err
		}
		r.Contributors = append(r.Contributors, ev.Participant)
		r.Collected += ev.Amount
	case rosca.EventDepositAdded:
		s.DepositsHeld += ev.Amount
	case rosca.EventDepositClaimed:
		s.DepositsHeld -= min(s.DepositsHeld, ev.Amount)
	case rosca.EventDepositDeducted:
		s.DepositsHeld -= min(s.DepositsHeld, ev.Amount)
		s.Deducted += ev.Amount
		r, err := b.round(ctx, s.ID, ev.Round)
		if err != nil {
			return err
		}
		r.Collected += ev.Amount
		if ev.Sufficient {
			r.Covered = append(r.Covered, ev.Participant)
		}
	case rosca.EventParticipantDefaulted:
		s.Defaults++
		r, err := b.round(ctx, s.ID, ev.Round)
		if err != nil {
			return err
		}
		r.Defaulters = append(r.Defaulters, ev.Participant)
	case rosca.EventRoundStarted:
		if ev.Round > 1 {
			prev, err := b.round(ctx, s.ID, ev.Round-1)
			if err != nil {
				return err
			}
			prev.Closed, prev.ClosedAt = true, ev.At
		}
		s.Round = ev.Round
		r, err := b.round(ctx, s.ID, ev.Round)
		if err != nil {
			return err
		}
		if r.Recipient == "" {
			r.Recipient = ev.Recipient
		}
	case rosca.EventCompleted:
		s.Completed, s.CompletedAt = true, ev.At
		r, err := b.round(ctx, s.ID, ev.Round)
		if err != nil {
			return err
		}
		r.Closed, r.ClosedAt = true, ev.At
	case rosca.EventManuallyEnded:
		s.EndedBy = ev.Participant
	}
	return nil
}

func (b *batch) flush(ctx context.Context) error {
	for id, s := range b.summaries {
		data, err := json.Marshal(s)
		if err != nil {
			return err
		}
		b.ops = append(b.ops, physical.Put(summaryKey(id), data))
	}
	for id, rs := range b.rounds {
		for n, r := range rs {
			data, err := json.Marshal(r)
			if err != nil {
				return err
			}
			b.ops = append(b.ops, physical.Put(roundKey(id, n), data))
		}
	}
	return b.p.backend.Apply(ctx, b.ops)
}

// Summary returns the summary of id.
func (p *Projector) Summary(ctx context.Context, id rosca.ID) (*Summary, error) {
	data, err := p.backend.Get(ctx, summaryKey(id))
	if errors.Is(err, physical.ErrNotFound) {
		return nil, fmt.Errorf("%w: rosca %d", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	var s Summary
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decode summary %d: %w", id, err)
	}
	return &s, nil
}

// Rounds returns the round records of id in round order.
func (p *Projector) Rounds(ctx context.Context, id rosca.ID) ([]RoundRecord, error) {
	kvs, err := p.backend.Scan(ctx, roundPrefix(id))
	if err != nil {
		return nil, err
	}
	out := make([]RoundRecord, 0, len(kvs))
	for _, kv := range kvs {
		var r RoundRecord
		if err := json.Unmarshal(kv.Value, &r); err != nil {
			return nil, fmt.Errorf("decode %s: %w", kv.Key, err)
		}
		out = append(out, r)
	}
	return out, nil
}

// Events returns the log entries of id with a sequence number above after.
func (p *Projector) Events(ctx context.Context, id rosca.ID, after uint64) ([]Record, error) {
	kvs, err := p.backend.Scan(ctx, eventPrefix(id))
	if err != nil {
		return nil, err
	}
	out := make([]Record, 0, len(kvs))
	for _, kv := range kvs {
		var r Record
		if err := json.Unmarshal(kv.Value, &r); err != nil {
			return nil, fmt.Errorf("decode %s: %w", kv.Key, err)
		}
		if r.Seq > after {
			out = append(out, r)
		}
	}
	return out, nil
}
