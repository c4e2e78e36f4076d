package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
	"github.com/muesli/reflow/truncate"
	"github.com/muesli/reflow/wordwrap"
	"github.com/muesli/reflow/wrap"
	"github.com/spf13/cobra"

	"github.com/gezibash/arc-rosca/cmd/rosca/tui"
	"github.com/gezibash/arc-rosca/internal/cli"
	"github.com/gezibash/arc-rosca/internal/projection"
	"github.com/gezibash/arc-rosca/pkg/rosca"
)

const recentEvents = 8

func newWatchCmd(s *session) *cobra.Command {
	var interval time.Duration

	cmd := s.hooks(&cobra.Command{
		Use:   "watch <id>",
		Short: "Follow a rosca live in the terminal",
		Long: "Follow a rosca live in the terminal. When stdout is not a terminal the\n" +
			"current state and round schedule are printed once instead.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := rosca.ParseID(args[0])
			if err != nil {
				return err
			}
			if !isTerminal(cmd.OutOrStdout()) {
				return s.renderSnapshot(cmd.Context(), id)
			}

			node := "local"
			if addr, ok := s.client.(interface{ Addr() string }); ok {
				node = addr.Addr()
			}
			app := newWatchApp(s.client, id, interval, s.now)
			return tui.NewBase(cmd.Context(), s.client, "watch "+id.String(), node).
				WithApp(app).
				Run(tea.WithOutput(cmd.OutOrStdout()))
		},
	})
	cmd.Flags().DurationVar(&interval, "interval", 2*time.Second, "poll interval")
	return cmd
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// renderSnapshot prints the state and the rounds once.
func (s *session) renderSnapshot(ctx context.Context, id rosca.ID) error {
	st, err := s.client.Get(ctx, id)
	if err != nil {
		return err
	}
	rounds, err := s.client.Rounds(ctx, id)
	if err != nil {
		return err
	}
	if rounds == nil {
		rounds = []projection.RoundRecord{}
	}
	view := cli.StateView(s.out, st, nil, s.now())
	if s.out.Format() == cli.FormatJSON {
		return s.out.Render(cli.WithData(view, struct {
			State  *rosca.State             `json:"state"`
			Rounds []projection.RoundRecord `json:"rounds"`
		}{st, rounds}))
	}
	if err := view.Render(); err != nil {
		return err
	}
	if _, err := fmt.Fprintln(s.out.Writer()); err != nil {
		return err
	}
	return cli.RoundsTable(s.out, rounds, st.Config.Asset).Render()
}

// snapshotMsg is one poll of a rosca.
type snapshotMsg struct {
	state  *rosca.State
	rounds []projection.RoundRecord
	events []projection.Record
	err    error
}

func fetchSnapshot(ctx context.Context, c RoscaClient, id rosca.ID, after uint64) snapshotMsg {
	st, err := c.Get(ctx, id)
	if err != nil {
		return snapshotMsg{err: err}
	}
	rounds, err := c.Rounds(ctx, id)
	if err != nil {
		return snapshotMsg{err: err}
	}
	events, err := c.Events(ctx, id, after)
	if err != nil {
		return snapshotMsg{err: err}
	}
	return snapshotMsg{state: st, rounds: rounds, events: events}
}

// watchApp polls one rosca and shows its state, rounds and latest events.
type watchApp struct {
	client   RoscaClient
	id       rosca.ID
	interval time.Duration
	now      func() rosca.Moment

	spinner spinner.Model
	rounds  table.Model
	state   *rosca.State
	events  []projection.Record
	lastSeq uint64
	live    bool
	width   int
	err     error
}

func newWatchApp(c RoscaClient, id rosca.ID, interval time.Duration, now func() rosca.Moment) *watchApp {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(tui.AccentColor)

	t := table.New(
		table.WithColumns([]table.Column{
			{Title: "Round", Width: 5},
			{Title: "Recipient", Width: 14},
			{Title: "Paid", Width: 24},
			{Title: "Outstanding", Width: 24},
			{Title: "Defaulted", Width: 16},
			{Title: "Collected", Width: 14},
		}),
		table.WithFocused(true),
		table.WithHeight(6),
	)
	styles := table.DefaultStyles()
	styles.Header = styles.Header.Foreground(tui.AccentColor).Bold(true)
	styles.Selected = styles.Selected.Foreground(tui.GoldColor).Bold(true)
	t.SetStyles(styles)

	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &watchApp{client: c, id: id, interval: interval, now: now, spinner: s, rounds: t}
}

func (a *watchApp) Init() tea.Cmd { return a.spinner.Tick }

func (a *watchApp) CanQuit() bool { return true }

// Subscribe polls the node until the context ends. A failed poll closes
// the feed so Base reconnects.
func (a *watchApp) Subscribe() tui.SubscribeFunc {
	c, id, interval := a.client, a.id, a.interval
	return func(ctx context.Context) (<-chan tea.Msg, error) {
		ch := make(chan tea.Msg)
		go func() {
			defer close(ch)
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			var after uint64
			for {
				msg := fetchSnapshot(ctx, c, id, after)
				if n := len(msg.events); n > 0 {
					after = msg.events[n-1].Seq
				}
				select {
				case ch <- msg:
				case <-ctx.Done():
					return
				}
				if msg.err != nil {
					return
				}
				select {
				case <-ticker.C:
				case <-ctx.Done():
					return
				}
			}
		}()
		return ch, nil
	}
}

func (a *watchApp) Update(msg tea.Msg) (tui.App, tea.Cmd) {
	switch msg := msg.(type) {
	case tui.SubConnectedMsg:
		a.live = true
	case tui.SubClosedMsg:
		a.live = false
	case snapshotMsg:
		a.apply(msg)
	case spinner.TickMsg:
		var cmd tea.Cmd
		a.spinner, cmd = a.spinner.Update(msg)
		return a, cmd
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.rounds.SetHeight(max(msg.Height-18, 3))
	case tea.KeyMsg:
		var cmd tea.Cmd
		a.rounds, cmd = a.rounds.Update(msg)
		return a, cmd
	}
	return a, nil
}

func (a *watchApp) apply(msg snapshotMsg) {
	a.err = msg.err
	if msg.err != nil {
		return
	}
	a.state = msg.state

	asset := msg.state.Config.Asset
	rows := make([]table.Row, 0, len(msg.rounds))
	for _, r := range msg.rounds {
		rows = append(rows, table.Row{
			strconv.FormatUint(uint64(r.Number), 10),
			string(r.Recipient),
			cli.Accounts(r.Contributors),
			cli.Accounts(r.Outstanding()),
			cli.Accounts(r.Defaulters),
			cli.Amount(r.Collected, asset),
		})
	}
	a.rounds.SetRows(rows)

	for _, rec := range msg.events {
		if rec.Seq <= a.lastSeq {
			continue
		}
		a.events = append(a.events, rec)
		a.lastSeq = rec.Seq
	}
	if n := len(a.events); n > recentEvents {
		a.events = a.events[n-recentEvents:]
	}
}

func (a *watchApp) View() (string, string) {
	help := "↑/↓: scroll rounds · q: quit"
	if a.state == nil {
		if a.err != nil {
			return tui.ErrorStyle.Render(a.err.Error()), help
		}
		return a.spinner.View() + " loading rosca " + a.id.String(), help
	}

	st := a.state
	now := a.now()
	var b strings.Builder

	name := st.Config.Name
	if name == "" {
		name = "rosca " + st.ID.String()
	}
	if a.width > 30 {
		name = truncate.StringWithTail(name, uint(a.width-20), "…")
	}
	b.WriteString(tui.TitleStyle.Render(name) + "  " + tui.StatusStyle(st.Status).Render(st.Status.String()))
	if !a.live {
		b.WriteString("  " + a.spinner.View() + tui.SubtitleStyle.Render(" reconnecting"))
	}
	b.WriteString("\n\n")

	line := func(label, value string) {
		b.WriteString(tui.LabelStyle.Render(label) + value + "\n")
	}
	line("Amount", cli.Amount(st.Config.Amount, st.Config.Asset)+" every "+cli.Span(st.Config.Frequency))
	if st.Status == rosca.StatusPending {
		line("Members", fmt.Sprintf("%d of %d (min %d)", len(st.Positions), st.Config.Participants, st.Config.MinParticipants))
		line("Start by", cli.When(st.Config.StartBy, now))
	} else {
		line("Round", fmt.Sprintf("%d of %d", st.Round, st.Order.Len()))
		line("Claimant", tui.ClaimantStyle.Render(string(st.Claimant)))
		line("Next pay by", cli.When(st.NextPayBy, now))
	}
	b.WriteString("\n" + a.rounds.View() + "\n\n")

	b.WriteString(tui.SubtitleStyle.Render("Recent events") + "\n")
	for _, rec := range a.events {
		b.WriteString(feedLine(rec.Seq, tui.EventStyle(rec.Event.Kind), cli.Describe(rec.Event, st.Config.Asset), a.width))
	}
	if a.err != nil {
		b.WriteString("\n" + tui.ErrorStyle.Render(a.err.Error()))
	}
	return b.String(), help
}

// feedLine renders one event under its sequence number, wrapped to width
// with continuation lines aligned past the number. Width 0 disables wrapping.
func feedLine(seq uint64, style lipgloss.Style, text string, width int) string {
	prefix := fmt.Sprintf("%4d ", seq)
	if limit := width - len(prefix); limit >= 10 {
		text = wrap.String(wordwrap.String(text, limit), limit)
	}
	var b strings.Builder
	for i, line := range strings.Split(text, "\n") {
		if i > 0 {
			prefix = strings.Repeat(" ", len(prefix))
		}
		b.WriteString(tui.SubtitleStyle.Render(prefix) + style.Render(line) + "\n")
	}
	return b.String()
}
