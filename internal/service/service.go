// Package service hosts the rosca engine for a node. It serializes every
// mutating call, keeps a read cache of state bundles and fans committed
// events out to the projection, the metrics and the archive.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/puzpuzpuz/xsync/v4"
	"go.opentelemetry.io/otel/attribute"

	"github.com/gezibash/arc-rosca/internal/archive"
	"github.com/gezibash/arc-rosca/internal/cel"
	"github.com/gezibash/arc-rosca/internal/observability"
	"github.com/gezibash/arc-rosca/internal/projection"
	"github.com/gezibash/arc-rosca/internal/store"
	"github.com/gezibash/arc-rosca/pkg/logging"
	"github.com/gezibash/arc-rosca/pkg/rosca"
)

// SystemAccount is the caller recorded for sweeper-initiated manual ends.
const SystemAccount rosca.AccountID = "system"

// ErrArchiveDisabled is returned by Archived when no archive is configured.
var ErrArchiveDisabled = errors.New("archive disabled")

// Options configures a Service. Zero values select the defaults.
type Options struct {
	Clock   rosca.Clock
	Random  rosca.RandomnessSource
	Archive *archive.Archiver
	Metrics *observability.Metrics
	Logger  *logging.Logger
}

// Service runs rosca operations against persistent storage.
type Service struct {
	mu sync.Mutex

	engine    *rosca.Engine
	store     *store.Store
	ledger    *store.Ledger
	projector *projection.Projector
	archive   *archive.Archiver
	cache     *xsync.Map[rosca.ID, cached]
	clock     rosca.Clock
	metrics   *observability.Metrics
	logger    *logging.Logger
}

// cached is a cache slot. Publish bumps gen and drops state, so a read that
// loaded before a commit cannot store over the newer value.
type cached struct {
	gen   uint64
	state *rosca.State
}

// New returns a service over st, ledger and projector.
func New(st *store.Store, ledger *store.Ledger, projector *projection.Projector, opts Options) *Service {
	if opts.Clock == nil {
		opts.Clock = rosca.SystemClock
	}
	if opts.Random == nil {
		opts.Random = rosca.CryptoRandom{}
	}
	if opts.Logger == nil {
		opts.Logger = logging.New(nil)
	}
	s := &Service{
		store:     st,
		ledger:    ledger,
		projector: projector,
		archive:   opts.Archive,
		cache:     xsync.NewMap[rosca.ID, cached](),
		clock:     opts.Clock,
		metrics:   opts.Metrics,
		logger:    opts.Logger.WithComponent("service"),
	}
	s.engine = rosca.NewEngine(st, ledger, opts.Clock,
		rosca.WithRandomness(opts.Random),
		rosca.WithEventSink(s),
		rosca.WithLogger(opts.Logger.Slog()),
	)
	return s
}

// Now returns the service clock reading.
func (s *Service) Now() rosca.Moment { return s.clock.Now() }

// mutate runs fn under the service lock, wrapped in an operation.
func (s *Service) mutate(ctx context.Context, name string, attrs []attribute.KeyValue, fn func(context.Context) (*rosca.Receipt, error)) (r *rosca.Receipt, err error) {
	op, ctx := observability.StartOperation(ctx, s.metrics, "rosca."+name, attrs...)
	defer func() { op.End(err) }()

	s.mu.Lock()
	defer s.mu.Unlock()
	r, err = fn(ctx)
	if r != nil {
		op.Annotate(observability.KeyRoscaID.Int64(int64(r.RoscaID)), attribute.Int("rosca.events", len(r.Events)))
	}
	return r, err
}

// Create opens a new Rosca owned by creator.
func (s *Service) Create(ctx context.Context, creator rosca.AccountID, p rosca.CreateParams) (*rosca.Receipt, error) {
	return s.mutate(ctx, "create", observability.Caller(string(creator)), func(ctx context.Context) (*rosca.Receipt, error) {
		return s.engine.Create(ctx, creator, p)
	})
}

// Join adds who to the pending order of id, at position when non-nil.
func (s *Service) Join(ctx context.Context, id rosca.ID, who rosca.AccountID, position *uint32) (*rosca.Receipt, error) {
	return s.mutate(ctx, "join", observability.Target(uint64(id), string(who)), func(ctx context.Context) (*rosca.Receipt, error) {
		return s.engine.Join(ctx, id, who, position)
	})
}

// Leave removes who from a pending Rosca, refunding any deposit.
func (s *Service) Leave(ctx context.Context, id rosca.ID, who rosca.AccountID) (*rosca.Receipt, error) {
	return s.mutate(ctx, "leave", observability.Target(uint64(id), string(who)), func(ctx context.Context) (*rosca.Receipt, error) {
		return s.engine.Leave(ctx, id, who)
	})
}

// Start activates id.
func (s *Service) Start(ctx context.Context, id rosca.ID, who rosca.AccountID) (*rosca.Receipt, error) {
	return s.mutate(ctx, "start", observability.Target(uint64(id), string(who)), func(ctx context.Context) (*rosca.Receipt, error) {
		return s.engine.Start(ctx, id, who)
	})
}

// Contribute pays who's contribution for the current round of id.
func (s *Service) Contribute(ctx context.Context, id rosca.ID, who rosca.AccountID) (*rosca.Receipt, error) {
	return s.mutate(ctx, "contribute", observability.Target(uint64(id), string(who)), func(ctx context.Context) (*rosca.Receipt, error) {
		return s.engine.Contribute(ctx, id, who)
	})
}

// ManuallyEnd settles the outstanding rounds of id and completes it.
func (s *Service) ManuallyEnd(ctx context.Context, id rosca.ID, who rosca.AccountID) (*rosca.Receipt, error) {
	return s.mutate(ctx, "manually_end", observability.Target(uint64(id), string(who)), func(ctx context.Context) (*rosca.Receipt, error) {
		return s.engine.ManuallyEnd(ctx, id, who)
	})
}

// AddDeposit escrows amount as who's security deposit in id.
func (s *Service) AddDeposit(ctx context.Context, id rosca.ID, who rosca.AccountID, amount rosca.Balance) (*rosca.Receipt, error) {
	return s.mutate(ctx, "add_deposit", observability.Target(uint64(id), string(who)), func(ctx context.Context) (*rosca.Receipt, error) {
		return s.engine.AddDeposit(ctx, id, who, amount)
	})
}

// ClaimDeposit returns who's remaining deposit once id is over.
func (s *Service) ClaimDeposit(ctx context.Context, id rosca.ID, who rosca.AccountID) (*rosca.Receipt, error) {
	return s.mutate(ctx, "claim_deposit", observability.Target(uint64(id), string(who)), func(ctx context.Context) (*rosca.Receipt, error) {
		return s.engine.ClaimDeposit(ctx, id, who)
	})
}

// Mint credits amount to account. It is the funding path of local ledgers.
func (s *Service) Mint(ctx context.Context, asset rosca.Asset, account rosca.AccountID, amount rosca.Balance) (rosca.Balance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ledger.Mint(ctx, asset, account, amount); err != nil {
		return 0, err
	}
	return s.ledger.Balance(ctx, asset, account)
}

// Balance returns account's balance of asset.
func (s *Service) Balance(ctx context.Context, asset rosca.Asset, account rosca.AccountID) (rosca.Balance, error) {
	return s.ledger.Balance(ctx, asset, account)
}

// Get returns a copy of the state bundle of id, served from the cache when
// possible.
func (s *Service) Get(ctx context.Context, id rosca.ID) (*rosca.State, error) {
	slot, _ := s.cache.Load(id)
	if slot.state != nil {
		return slot.state.Clone(), nil
	}
	st, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	s.cache.Compute(id, func(old cached, loaded bool) (cached, xsync.ComputeOp) {
		if loaded && old.gen != slot.gen {
			return old, xsync.CancelOp
		}
		return cached{gen: slot.gen, state: st}, xsync.UpdateOp
	})
	return st.Clone(), nil
}

// List returns the Roscas matching filter, a CEL expression over the
// attributes of internal/cel. An empty filter matches everything.
func (s *Service) List(ctx context.Context, filter string) (_ []*rosca.State, err error) {
	op, ctx := observability.StartOperation(ctx, s.metrics, "rosca.list")
	defer func() { op.End(err) }()

	var f *cel.Filter
	if filter != "" {
		if f, err = cel.Compile(filter); err != nil {
			return nil, err
		}
	}
	all, err := s.store.List(ctx)
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, st := range all {
		if f == nil || f.Match(st) {
			out = append(out, st)
		}
	}
	return out, nil
}

// Summary returns the projected summary of id.
func (s *Service) Summary(ctx context.Context, id rosca.ID) (*projection.Summary, error) {
	sum, err := s.projector.Summary(ctx, id)
	if errors.Is(err, projection.ErrNotFound) {
		return nil, fmt.Errorf("%w: %d", rosca.ErrRoscaNotFound, id)
	}
	return sum, err
}

// Rounds returns the projected round records of id.
func (s *Service) Rounds(ctx context.Context, id rosca.ID) ([]projection.RoundRecord, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	return s.projector.Rounds(ctx, id)
}

// Events returns the event log of id after sequence number after.
func (s *Service) Events(ctx context.Context, id rosca.ID, after uint64) ([]projection.Record, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	return s.projector.Events(ctx, id, after)
}

// Rebuild replays the event log of id into fresh read models.
func (s *Service) Rebuild(ctx context.Context, id rosca.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.projector.Rebuild(ctx, id)
}

// Archived returns the archived snapshot of id.
func (s *Service) Archived(ctx context.Context, id rosca.ID) (*archive.Snapshot, error) {
	if s.archive == nil {
		return nil, ErrArchiveDisabled
	}
	return s.archive.Get(ctx, id)
}

// SweepExpired manually ends every active Rosca whose final pay-by deadline
// has passed, as SystemAccount. It returns the ids it ended; failures for
// individual Roscas are joined into err without stopping the sweep.
func (s *Service) SweepExpired(ctx context.Context) (ended []rosca.ID, err error) {
	op, ctx := observability.StartOperation(ctx, s.metrics, "rosca.sweep")
	defer func() { op.End(err) }()

	if n := s.projector.Pending(); n > 0 {
		if perr := s.projector.Retry(ctx); perr != nil {
			s.logger.WarnContext(ctx, "projection backlog retry failed", "error", perr, "backlog", n)
		}
	}

	all, err := s.store.List(ctx)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	var errs []error
	for _, st := range all {
		if st.Status != rosca.StatusActive || now <= st.FinalPayBy {
			continue
		}
		if _, err := s.ManuallyEnd(ctx, st.ID, SystemAccount); err != nil {
			errs = append(errs, fmt.Errorf("end rosca %d: %w", st.ID, err))
			continue
		}
		ended = append(ended, st.ID)
	}
	if len(ended) > 0 {
		s.logger.InfoContext(ctx, "swept expired roscas", "count", len(ended))
	}
	return ended, errors.Join(errs...)
}

// RefreshGauges recomputes the active rosca gauge from storage.
func (s *Service) RefreshGauges(ctx context.Context) error {
	if s.metrics == nil {
		return nil
	}
	all, err := s.store.List(ctx)
	if err != nil {
		return err
	}
	var active int
	for _, st := range all {
		if st.Status == rosca.StatusActive {
			active++
		}
	}
	s.metrics.ActiveRoscas.Set(float64(active))
	return nil
}

// Publish receives the events of each committed call. It runs inside the
// engine's commit, under the service lock.
func (s *Service) Publish(ctx context.Context, events []rosca.Event) {
	touched := map[rosca.ID]bool{}
	var completed []rosca.ID
	for _, ev := range events {
		touched[ev.RoscaID] = true
		s.observe(ev)
		if ev.Kind == rosca.EventCompleted {
			completed = append(completed, ev.RoscaID)
		}
		s.logger.WithRosca(ev.RoscaID).DebugContext(ctx, "event", "event", logging.FormatEvent(ev))
	}
	for id := range touched {
		s.invalidate(id)
	}
	if err := s.projector.Apply(ctx, events); err != nil {
		s.logger.ErrorContext(ctx, "projection apply failed", "error", err, "backlog", s.projector.Pending())
	}
	for _, id := range completed {
		s.archiveRosca(ctx, id)
	}
}

func (s *Service) invalidate(id rosca.ID) {
	s.cache.Compute(id, func(old cached, _ bool) (cached, xsync.ComputeOp) {
		return cached{gen: old.gen + 1}, xsync.UpdateOp
	})
}

func (s *Service) observe(ev rosca.Event) {
	if s.metrics == nil {
		return
	}
	s.metrics.EventsTotal.WithLabelValues(string(ev.Kind)).Inc()
	switch ev.Kind {
	case rosca.EventContributionMade:
		s.metrics.ContributionVolume.WithLabelValues(s.assetOf(ev.RoscaID)).Add(float64(ev.Amount))
	case rosca.EventDepositDeducted:
		if ev.Sufficient {
			s.metrics.DefaultsTotal.WithLabelValues("true").Inc()
		}
	case rosca.EventParticipantDefaulted:
		s.metrics.DefaultsTotal.WithLabelValues("false").Inc()
	case rosca.EventStarted:
		s.metrics.ActiveRoscas.Inc()
	case rosca.EventCompleted:
		s.metrics.ActiveRoscas.Dec()
	}
}

// assetOf labels volume by asset. The committed state is already stored.
func (s *Service) assetOf(id rosca.ID) string {
	st, err := s.Get(context.Background(), id)
	if err != nil {
		return "unknown"
	}
	return st.Config.Asset.String()
}

func (s *Service) archiveRosca(ctx context.Context, id rosca.ID) {
	if s.archive == nil {
		return
	}
	log := s.logger.WithRosca(id)
	st, err := s.store.Get(ctx, id)
	if err != nil {
		log.ErrorContext(ctx, "archive: load state", "error", err)
		return
	}
	snap := archive.Snapshot{State: st}
	if snap.Summary, err = s.projector.Summary(ctx, id); err != nil {
		log.WarnContext(ctx, "archive: summary unavailable", "error", err)
	}
	if snap.Rounds, err = s.projector.Rounds(ctx, id); err != nil {
		log.WarnContext(ctx, "archive: rounds unavailable", "error", err)
	}
	if snap.Events, err = s.projector.Events(ctx, id, 0); err != nil {
		log.WarnContext(ctx, "archive: events unavailable", "error", err)
	}
	s.archive.Submit(ctx, snap)
}

var _ rosca.EventSink = (*Service)(nil)
