package observability

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ShutdownCoordinator closes node components in the reverse order they were
// started. It runs at most once; later calls return the first result.
type ShutdownCoordinator struct {
	mu    sync.Mutex
	steps []shutdownStep
	done  bool
	err   error
}

type shutdownStep struct {
	name string
	fn   func(context.Context) error
}

// Register adds a shutdown step. Steps registered after Shutdown has run
// are executed immediately.
func (s *ShutdownCoordinator) Register(name string, fn func(context.Context) error) {
	s.mu.Lock()
	if !s.done {
		s.steps = append(s.steps, shutdownStep{name: name, fn: fn})
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()
	_ = runStep(context.Background(), shutdownStep{name: name, fn: fn})
}

// Pending reports how many steps are waiting to run.
func (s *ShutdownCoordinator) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.steps)
}

// Shutdown runs every step, newest first, and joins their errors.
func (s *ShutdownCoordinator) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if s.done {
		s.mu.Unlock()
		return s.err
	}
	s.done = true
	steps := s.steps
	s.steps = nil
	s.mu.Unlock()

	var errs []error
	for i := len(steps) - 1; i >= 0; i-- {
		if err := runStep(ctx, steps[i]); err != nil {
			errs = append(errs, err)
		}
	}

	s.mu.Lock()
	s.err = errors.Join(errs...)
	s.mu.Unlock()
	return s.err
}

func runStep(ctx context.Context, st shutdownStep) error {
	start := time.Now()
	err := st.fn(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "component shutdown failed", "component", st.name, "error", err)
		return fmt.Errorf("%s: %w", st.name, err)
	}
	slog.DebugContext(ctx, "component stopped", "component", st.name, "took", time.Since(start))
	return nil
}
