// Package sweeper periodically ends Roscas whose final pay-by deadline has
// passed without anyone closing them.
package sweeper

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/gezibash/arc-rosca/pkg/rosca"
)

// DefaultTimeout bounds a single sweep.
const DefaultTimeout = 30 * time.Second

// Target is swept on every tick.
type Target interface {
	SweepExpired(ctx context.Context) ([]rosca.ID, error)
}

type Sweeper struct {
	cron    *cron.Cron
	target  Target
	spec    string
	timeout time.Duration
	logger  *slog.Logger
}

// parser accepts standard five-field specs, an optional leading seconds
// field, and descriptors such as "@every 1m" or "@hourly".
var parser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// New schedules sweeps of target on spec. Runs never overlap; a tick that
// fires while a sweep is in progress is skipped.
func New(ctx context.Context, target Target, spec string, logger *slog.Logger) (*Sweeper, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "sweeper")
	cl := cronLogger{logger}

	s := &Sweeper{
		cron:    cron.New(cron.WithParser(parser), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl))),
		target:  target,
		spec:    spec,
		timeout: DefaultTimeout,
		logger:  logger,
	}
	_, err := s.cron.AddFunc(spec, func() {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
		defer cancel()
		_, _ = s.RunOnce(rctx)
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}

// RunOnce sweeps immediately.
func (s *Sweeper) RunOnce(ctx context.Context) ([]rosca.ID, error) {
	ended, err := s.target.SweepExpired(ctx)
	if len(ended) > 0 {
		s.logger.InfoContext(ctx, "swept expired roscas", "ended", ended)
	}
	if err != nil {
		s.logger.WarnContext(ctx, "sweep failed", "error", err)
	}
	return ended, err
}

func (s *Sweeper) Start() {
	s.cron.Start()
	s.logger.Info("sweeper started", "schedule", s.spec)
}

// Stop halts scheduling and waits for a running sweep until ctx is done.
func (s *Sweeper) Stop(ctx context.Context) error {
	select {
	case <-s.cron.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// cronLogger adapts slog to cron's logger.
type cronLogger struct {
	l *slog.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.l.Debug(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.l.Error(msg, append(keysAndValues, "error", err)...)
}
