package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/gezibash/arc-rosca/pkg/rosca"
)

// Palette. Adaptive colors pick the variant for light or dark terminals.
var (
	AccentColor = lipgloss.AdaptiveColor{Light: "#5A3FC0", Dark: "#9B84F8"}
	DimColor    = lipgloss.AdaptiveColor{Light: "#8A8A8A", Dark: "#6C6C6C"}
	WarnColor   = lipgloss.AdaptiveColor{Light: "#C4314B", Dark: "#FF6B81"}
	GreenColor  = lipgloss.AdaptiveColor{Light: "#2E8B57", Dark: "#6EE7A8"}
	GoldColor   = lipgloss.AdaptiveColor{Light: "#B7791F", Dark: "#F6C65B"}
)

var (
	TitleStyle     = lipgloss.NewStyle().Foreground(AccentColor).Bold(true)
	SubtitleStyle  = lipgloss.NewStyle().Foreground(DimColor)
	HelpStyle      = SubtitleStyle
	ErrorStyle     = lipgloss.NewStyle().Foreground(WarnColor).Bold(true)
	LabelStyle     = SubtitleStyle.Width(14)
	ClaimantStyle  = lipgloss.NewStyle().Foreground(GoldColor).Bold(true)
	PaidStyle      = lipgloss.NewStyle().Foreground(GreenColor)
	DefaultedStyle = lipgloss.NewStyle().Foreground(WarnColor)
)

// StatusStyle colors a lifecycle status.
func StatusStyle(s rosca.Status) lipgloss.Style {
	base := lipgloss.NewStyle().Bold(true)
	switch s {
	case rosca.StatusActive:
		return base.Foreground(GreenColor)
	case rosca.StatusCompleted:
		return base.Foreground(AccentColor)
	default:
		return base.Foreground(DimColor)
	}
}

// EventStyle colors an event line by what it means for the pot: money in
// is green, money lost or withheld is red, rotation is gold.
func EventStyle(k rosca.EventKind) lipgloss.Style {
	switch k {
	case rosca.EventContributionMade, rosca.EventDepositAdded:
		return PaidStyle
	case rosca.EventParticipantDefaulted, rosca.EventDepositDeducted:
		return DefaultedStyle
	case rosca.EventRoundStarted, rosca.EventStarted:
		return ClaimantStyle
	default:
		return lipgloss.NewStyle()
	}
}
