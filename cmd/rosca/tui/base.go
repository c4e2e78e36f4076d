// Package tui is the frame around the rosca terminal views. It draws the
// header and footer, keeps a latency ping against the node and holds the
// app's update feed open across disconnects.
package tui

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

// Pinger measures the round trip to a node.
type Pinger interface {
	Ping(ctx context.Context) (time.Duration, error)
}

// App is a view hosted by Base.
type App interface {
	Init() tea.Cmd
	Update(msg tea.Msg) (App, tea.Cmd)
	View() (body string, help string)
	CanQuit() bool
	// Subscribe returns the feed Base keeps connected, or nil for none.
	Subscribe() SubscribeFunc
}

// PingResultMsg carries the result of a node ping.
type PingResultMsg struct {
	Latency time.Duration
	Err     error
}

// ErrMsg replaces the app view with a fatal error.
type ErrMsg struct{ Err error }

type pingTickMsg struct{}

const pingEvery = 5 * time.Second

// Base is the tea.Model that hosts an App.
type Base struct {
	ctx    context.Context
	pinger Pinger
	layout *Layout
	app    App
	feed   *feed
	err    error
}

// NewBase frames an app titled title against node.
func NewBase(ctx context.Context, p Pinger, title, node string) Base {
	return Base{ctx: ctx, pinger: p, layout: &Layout{Title: title, Node: node}}
}

// WithApp sets the hosted app.
func (b Base) WithApp(app App) Base {
	b.app = app
	if fn := app.Subscribe(); fn != nil {
		b.feed = &feed{open: fn}
	}
	return b
}

// Layout exposes the frame state, mostly for tests.
func (b Base) Layout() Layout { return *b.layout }

func (b Base) Init() tea.Cmd {
	cmds := []tea.Cmd{b.ping()}
	if b.app != nil {
		cmds = append(cmds, b.app.Init())
	}
	if b.feed != nil {
		cmds = append(cmds, b.feed.connect(b.ctx, b.pinger))
	}
	return tea.Batch(cmds...)
}

func (b Base) ping() tea.Cmd {
	p, ctx := b.pinger, b.ctx
	return func() tea.Msg {
		if p == nil {
			return PingResultMsg{}
		}
		latency, err := p.Ping(ctx)
		return PingResultMsg{Latency: latency, Err: err}
	}
}

func (b Base) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			return b.quit()
		case "q", "esc":
			if b.err != nil || (b.app != nil && b.app.CanQuit()) {
				return b.quit()
			}
		}
	case tea.WindowSizeMsg:
		b.layout.Width, b.layout.Height = msg.Width, msg.Height
	case PingResultMsg:
		b.layout.Connected = msg.Err == nil
		if msg.Err == nil {
			b.layout.Latency = msg.Latency
		}
		return b, tea.Tick(pingEvery, func(time.Time) tea.Msg { return pingTickMsg{} })
	case pingTickMsg:
		return b, b.ping()
	case ErrMsg:
		b.err = msg.Err
		return b, nil

	case feedOpenedMsg:
		b.feed.failures = 0
		cmds := b.forward(SubConnectedMsg{})
		return b, tea.Batch(append(cmds, next(msg.ch))...)
	case feedItemMsg:
		cmds := b.forward(msg.msg)
		return b, tea.Batch(append(cmds, next(msg.ch))...)
	case SubClosedMsg:
		cmds := b.forward(msg)
		if b.feed != nil {
			cmds = append(cmds, b.feed.retry())
		}
		return b, tea.Batch(cmds...)
	case feedRetryMsg:
		if b.feed == nil {
			return b, nil
		}
		return b, b.feed.connect(b.ctx, b.pinger)
	}

	cmds := b.forward(msg)
	return b, tea.Batch(cmds...)
}

func (b Base) quit() (tea.Model, tea.Cmd) {
	if b.feed != nil {
		b.feed.stop()
	}
	return b, tea.Quit
}

// forward hands msg to the app and returns its command, if any.
func (b *Base) forward(msg tea.Msg) []tea.Cmd {
	if b.app == nil {
		return nil
	}
	var cmd tea.Cmd
	b.app, cmd = b.app.Update(msg)
	if cmd == nil {
		return nil
	}
	return []tea.Cmd{cmd}
}

func (b Base) View() string {
	if b.err != nil {
		return b.layout.Render(ErrorStyle.Render("Error: "+b.err.Error()), "q: quit")
	}
	if b.app == nil {
		return b.layout.Render("", "")
	}
	body, help := b.app.View()
	return b.layout.Render(body, help)
}

// Run takes over the terminal until the app quits.
func (b Base) Run(opts ...tea.ProgramOption) error {
	_, err := tea.NewProgram(b, append([]tea.ProgramOption{tea.WithAltScreen()}, opts...)...).Run()
	return err
}
