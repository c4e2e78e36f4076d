// Package logging is a thin slog wrapper that knows how to tag records with
// rosca ids and accounts. Handler setup lives with the node's observability.
package logging

import (
	"log/slog"
	"strconv"
	"strings"

	"github.com/gezibash/arc-rosca/pkg/rosca"
)

// Attribute keys used across the module's log records.
const (
	KeyRosca     = "rosca_id"
	KeyComponent = "component"
)

// Logger is a *slog.Logger with rosca-aware With helpers. The zero value is
// not usable; call New.
type Logger struct {
	*slog.Logger
}

// New wraps base, or slog.Default() when base is nil.
func New(base *slog.Logger) *Logger {
	if base == nil {
		base = slog.Default()
	}
	return &Logger{Logger: base}
}

// WithRosca tags records with the rosca id.
func (l *Logger) WithRosca(id rosca.ID) *Logger {
	return &Logger{Logger: l.With(slog.Uint64(KeyRosca, uint64(id)))}
}

// WithAccount tags records with a shortened account under key.
func (l *Logger) WithAccount(key string, a rosca.AccountID) *Logger {
	return &Logger{Logger: l.With(slog.String(key, FormatAccount(a)))}
}

// WithComponent tags records with the emitting component.
func (l *Logger) WithComponent(name string) *Logger {
	return &Logger{Logger: l.With(slog.String(KeyComponent, name))}
}

// Slog returns the wrapped logger.
func (l *Logger) Slog() *slog.Logger { return l.Logger }

// FormatAccount shortens long account ids such as hex addresses.
func FormatAccount(a rosca.AccountID) string {
	s := string(a)
	if len(s) <= 16 {
		return s
	}
	return s[:16] + "..."
}

// FormatEvent renders an event as a compact single line, for example
// "contribution_made r2 bob -> alice 10".
func FormatEvent(ev rosca.Event) string {
	var b strings.Builder
	b.WriteString(string(ev.Kind))
	if ev.Round > 0 {
		b.WriteString(" r" + strconv.FormatUint(uint64(ev.Round), 10))
	}
	if ev.Participant != "" {
		b.WriteString(" " + FormatAccount(ev.Participant))
	}
	if ev.Recipient != "" {
		b.WriteString(" -> " + FormatAccount(ev.Recipient))
	}
	if ev.Amount > 0 {
		b.WriteString(" " + strconv.FormatUint(uint64(ev.Amount), 10))
	}
	return b.String()
}
