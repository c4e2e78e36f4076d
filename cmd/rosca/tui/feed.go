package tui

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

// SubscribeFunc opens a feed of messages for the app. The feed ends when the
// channel closes or ctx is cancelled, after which Base reconnects.
type SubscribeFunc func(ctx context.Context) (<-chan tea.Msg, error)

// SubConnectedMsg tells the app its feed is open.
type SubConnectedMsg struct{}

// SubClosedMsg tells the app its feed ended.
type SubClosedMsg struct{}

const (
	minRetry = 500 * time.Millisecond
	maxRetry = 30 * time.Second
)

// RetryDelay is the wait before reconnect attempt n, counted from 0. It
// doubles from half a second and stops growing at thirty.
func RetryDelay(n int) time.Duration {
	d := minRetry
	for range n {
		d *= 2
		if d >= maxRetry {
			return maxRetry
		}
	}
	return d
}

// feed owns the current subscription. It is shared by pointer across Base
// copies so the cancel func survives bubbletea's value semantics.
type feed struct {
	open     SubscribeFunc
	cancel   context.CancelFunc
	failures int
}

type feedOpenedMsg struct{ ch <-chan tea.Msg }

type feedItemMsg struct {
	ch  <-chan tea.Msg
	msg tea.Msg
}

type feedRetryMsg struct{}

// connect replaces any open subscription. The node is pinged first so a
// dead node costs one cheap call rather than a failed subscribe.
func (f *feed) connect(parent context.Context, p Pinger) tea.Cmd {
	if f.cancel != nil {
		f.cancel()
	}
	ctx, cancel := context.WithCancel(parent)
	f.cancel = cancel
	open := f.open
	return func() tea.Msg {
		if p != nil {
			if _, err := p.Ping(ctx); err != nil {
				cancel()
				return SubClosedMsg{}
			}
		}
		ch, err := open(ctx)
		if err != nil {
			cancel()
			return SubClosedMsg{}
		}
		return feedOpenedMsg{ch: ch}
	}
}

// retry schedules the next connect and counts the failure.
func (f *feed) retry() tea.Cmd {
	d := RetryDelay(f.failures)
	f.failures++
	return tea.Tick(d, func(time.Time) tea.Msg { return feedRetryMsg{} })
}

func (f *feed) stop() {
	if f.cancel != nil {
		f.cancel()
	}
}

func next(ch <-chan tea.Msg) tea.Cmd {
	return func() tea.Msg {
		msg, ok := <-ch
		if !ok {
			return SubClosedMsg{}
		}
		return feedItemMsg{ch: ch, msg: msg}
	}
}
