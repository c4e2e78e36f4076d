package tui

import (
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// Layout is the frame state: a one line header, the app body and a help
// footer pinned to the bottom row.
type Layout struct {
	Title     string
	Node      string // node address, or "local" in-process
	Connected bool
	Latency   time.Duration
	Width     int
	Height    int
}

const (
	padX      = 2
	chromeRow = 5 // blank, header, blank, footer, blank
)

// BodySize is the room left for the app once the frame is drawn.
func (l Layout) BodySize() (width, height int) {
	return max(l.Width-2*padX, 10), max(l.Height-chromeRow, 3)
}

// Render frames body and help.
func (l Layout) Render(body, help string) string {
	width, height := l.BodySize()
	pad := strings.Repeat(" ", padX)

	left := TitleStyle.Render("rosca") + SubtitleStyle.Render(" / "+l.Title)
	right := l.nodeStatus()
	gap := max(width-lipgloss.Width(left)-lipgloss.Width(right), 1)

	var b strings.Builder
	b.WriteString("\n" + pad + left + strings.Repeat(" ", gap) + right + "\n\n")
	lines := strings.Split(body, "\n")
	for _, line := range lines {
		b.WriteString(pad + line + "\n")
	}
	b.WriteString(strings.Repeat("\n", max(height-len(lines), 0)))
	b.WriteString(HelpStyle.Render(pad+help) + "\n")
	return b.String()
}

func (l Layout) nodeStatus() string {
	if l.Node == "" {
		return ""
	}
	if !l.Connected {
		return SubtitleStyle.Render(l.Node+" offline ") + DefaultedStyle.Render("●")
	}
	s := l.Node
	if l.Latency > 0 {
		s += " " + l.Latency.Round(time.Millisecond).String()
	}
	return SubtitleStyle.Render(s+" ") + PaidStyle.Render("●")
}
