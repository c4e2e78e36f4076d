package observability

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-isatty"
	"go.opentelemetry.io/otel/trace"
)

// SetupLogger builds the process logger and installs it as the slog default.
// format "json" selects slog's JSON handler; anything else the console one.
func SetupLogger(level, format string, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}

	var h slog.Handler
	if format == "json" {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = NewConsoleHandler(w, opts)
	}

	logger := slog.New(&SpanHandler{Handler: h})
	slog.SetDefault(logger)
	return logger
}

// ParseLevel accepts slog level names, including offsets like "info+2", and
// "warning". Unknown input means info.
func ParseLevel(s string) slog.Level {
	s = strings.TrimSpace(s)
	if strings.EqualFold(s, "warning") {
		return slog.LevelWarn
	}
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

// SpanHandler adds the trace and span ids of the active span to each record.
type SpanHandler struct {
	slog.Handler
}

func (h *SpanHandler) Handle(ctx context.Context, r slog.Record) error {
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		r.AddAttrs(
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}
	return h.Handler.Handle(ctx, r)
}

func (h *SpanHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &SpanHandler{Handler: h.Handler.WithAttrs(attrs)}
}

func (h *SpanHandler) WithGroup(name string) slog.Handler {
	return &SpanHandler{Handler: h.Handler.WithGroup(name)}
}

// ConsoleHandler writes one line per record:
//
//	15:04:05 INF [rosca.contribute] operation completed duration=0.0012
//
// The operation attribute, when present, moves into the brackets. Level
// tags are colored only when the writer is a terminal.
type ConsoleHandler struct {
	level  slog.Leveler
	w      io.Writer
	mu     *sync.Mutex
	color  bool
	op     string
	prefix string // group path applied to record attributes
	pre    []byte // attributes bound with WithAttrs, already rendered
}

func NewConsoleHandler(w io.Writer, opts *slog.HandlerOptions) *ConsoleHandler {
	h := &ConsoleHandler{level: slog.LevelInfo, w: w, mu: &sync.Mutex{}}
	if opts != nil && opts.Level != nil {
		h.level = opts.Level
	}
	if f, ok := w.(*os.File); ok {
		h.color = isatty.IsTerminal(f.Fd())
	}
	return h
}

func (h *ConsoleHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *ConsoleHandler) Handle(_ context.Context, r slog.Record) error {
	var buf bytes.Buffer
	buf.WriteString(r.Time.Format(time.TimeOnly))
	buf.WriteByte(' ')
	buf.WriteString(levelTag(r.Level, h.color))

	op := h.op
	var attrs bytes.Buffer
	r.Attrs(func(a slog.Attr) bool {
		if a.Key == "operation" && h.prefix == "" {
			op = a.Value.String()
			return true
		}
		appendAttr(&attrs, h.prefix, a)
		return true
	})
	if op != "" {
		buf.WriteString(" [" + op + "]")
	}
	buf.WriteByte(' ')
	buf.WriteString(r.Message)
	buf.Write(h.pre)
	buf.Write(attrs.Bytes())
	buf.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := h.w.Write(buf.Bytes())
	return err
}

func (h *ConsoleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	c := *h
	c.pre = append([]byte(nil), h.pre...)
	for _, a := range attrs {
		if a.Key == "operation" && h.prefix == "" {
			c.op = a.Value.String()
			continue
		}
		var b bytes.Buffer
		appendAttr(&b, h.prefix, a)
		c.pre = append(c.pre, b.Bytes()...)
	}
	return &c
}

func (h *ConsoleHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	c := *h
	c.prefix = h.prefix + name + "."
	return &c
}

func appendAttr(b *bytes.Buffer, prefix string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}
	if a.Value.Kind() == slog.KindGroup {
		if a.Key != "" {
			prefix += a.Key + "."
		}
		for _, ga := range a.Value.Group() {
			appendAttr(b, prefix, ga)
		}
		return
	}
	b.WriteByte(' ')
	b.WriteString(prefix + a.Key)
	b.WriteByte('=')
	v := a.Value.String()
	if v == "" || strings.ContainsAny(v, " =\"") {
		v = strconv.Quote(v)
	}
	b.WriteString(v)
}

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorGray   = "\033[90m"
)

func levelTag(l slog.Level, color bool) string {
	tag, c := "DBG", colorGray
	switch {
	case l >= slog.LevelError:
		tag, c = "ERR", colorRed
	case l >= slog.LevelWarn:
		tag, c = "WRN", colorYellow
	case l >= slog.LevelInfo:
		tag, c = "INF", colorCyan
	}
	if !color {
		return tag
	}
	return c + tag + colorReset
}
