package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	roscaerr "github.com/gezibash/arc-rosca/pkg/errors"
)

// --- Shutdown Coordinator ---

func TestShutdownCoordinatorLIFO(t *testing.T) {
	var order []int
	sc := &ShutdownCoordinator{}
	for i := 1; i <= 3; i++ {
		sc.Register(fmt.Sprintf("h%d", i), func(ctx context.Context) error {
			order = append(order, i)
			return nil
		})
	}

	if err := sc.Shutdown(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(order) != 3 || order[0] != 3 || order[1] != 2 || order[2] != 1 {
		t.Fatalf("expected LIFO [3,2,1], got %v", order)
	}
}

func TestShutdownCoordinatorError(t *testing.T) {
	ran := 0
	boom := errors.New("fail")
	sc := &ShutdownCoordinator{}
	sc.Register("first", func(ctx context.Context) error { ran++; return nil })
	sc.Register("bad", func(ctx context.Context) error { ran++; return boom })
	sc.Register("third", func(ctx context.Context) error { ran++; return nil })

	err := sc.Shutdown(context.Background())
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped handler error, got %v", err)
	}
	if !strings.Contains(err.Error(), "bad") {
		t.Fatalf("error should name the component: %v", err)
	}
	if ran != 3 {
		t.Fatalf("expected all handlers to run, ran %d", ran)
	}
}

func TestShutdownCoordinatorRunsOnce(t *testing.T) {
	calls := 0
	boom := errors.New("fail")
	sc := &ShutdownCoordinator{}
	sc.Register("store", func(ctx context.Context) error { calls++; return boom })
	if sc.Pending() != 1 {
		t.Fatalf("pending = %d", sc.Pending())
	}

	first := sc.Shutdown(context.Background())
	second := sc.Shutdown(context.Background())
	if calls != 1 {
		t.Fatalf("step ran %d times", calls)
	}
	if !errors.Is(first, boom) || !errors.Is(second, boom) {
		t.Fatalf("errors = %v, %v", first, second)
	}

	late := false
	sc.Register("late", func(ctx context.Context) error { late = true; return nil })
	if !late || sc.Pending() != 0 {
		t.Fatal("step registered after shutdown should run immediately")
	}
}

// --- Metrics ---

func TestNewMetricsRegistersDomainMeters(t *testing.T) {
	m := NewMetrics()
	m.EventsTotal.WithLabelValues("contribution_made").Inc()
	m.ContributionVolume.WithLabelValues("usdt").Add(100)
	m.DefaultsTotal.WithLabelValues("true").Inc()
	m.ActiveRoscas.Set(2)

	families, err := m.Registry.Gather()
	if err != nil {
		t.Fatalf("gather error: %v", err)
	}
	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}
	for _, want := range []string{
		"rosca_events_total",
		"rosca_contribution_volume_total",
		"rosca_defaults_total",
		"rosca_active",
	} {
		if !names[want] {
			t.Errorf("metric %s not gathered", want)
		}
	}
	if got := testutil.ToFloat64(m.ContributionVolume.WithLabelValues("usdt")); got != 100 {
		t.Fatalf("contribution volume = %f", got)
	}
}

// --- Logging ---

func TestSetupLoggerJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := SetupLogger("info", "json", &buf)
	logger.Info("hello", "rosca_id", 7)

	var entry map[string]any
	if err := json.NewDecoder(&buf).Decode(&entry); err != nil {
		t.Fatalf("output not valid JSON: %v\nraw: %s", err, buf.String())
	}
	if entry["msg"] != "hello" {
		t.Fatalf("expected msg=hello, got %v", entry["msg"])
	}
}

func TestSetupLoggerLevels(t *testing.T) {
	tests := []struct {
		level      string
		logAt      slog.Level
		shouldShow bool
	}{
		{"debug", slog.LevelDebug, true},
		{"info", slog.LevelDebug, false},
		{"INFO", slog.LevelInfo, true},
		{"warning", slog.LevelInfo, false},
		{"warn", slog.LevelWarn, true},
		{"error", slog.LevelWarn, false},
		{"error", slog.LevelError, true},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s/%s", tt.level, tt.logAt), func(t *testing.T) {
			var buf bytes.Buffer
			logger := SetupLogger(tt.level, "json", &buf)
			logger.Log(context.Background(), tt.logAt, "test")

			if got := buf.Len() > 0; got != tt.shouldShow {
				t.Fatalf("level=%s logAt=%s: expected visible=%v got %v", tt.level, tt.logAt, tt.shouldShow, got)
			}
		})
	}
}

func TestConsoleHandlerPlainWhenNotTerminal(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewConsoleHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	logger.Warn("round closed", "round", 2, "note", "two late")

	out := buf.String()
	if strings.Contains(out, "\033[") {
		t.Fatalf("unexpected color codes for a buffer: %q", out)
	}
	if !strings.Contains(out, `WRN round closed round=2 note="two late"`) {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestConsoleHandlerOperationPrefix(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewConsoleHandler(&buf, nil)).With("operation", "rosca.join")
	logger.Info("operation completed", "rosca", 4)

	if out := buf.String(); !strings.Contains(out, "INF [rosca.join] operation completed rosca=4") {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestConsoleHandlerGroupsAndAttrs(t *testing.T) {
	var buf bytes.Buffer
	var h slog.Handler = NewConsoleHandler(&buf, nil)
	h = h.WithAttrs([]slog.Attr{slog.String("component", "engine")})
	h = h.WithGroup("rosca").WithGroup("round")
	slog.New(h).Info("advanced", "number", 3, slog.Group("pot", "asset", "usdt"))

	out := buf.String()
	for _, want := range []string{"component=engine", "rosca.round.number=3", "rosca.round.pot.asset=usdt"} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %s: %q", want, out)
		}
	}
}

func TestConsoleHandlerEnabled(t *testing.T) {
	h := NewConsoleHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelWarn})
	if h.Enabled(context.Background(), slog.LevelInfo) {
		t.Fatal("info should be disabled at warn level")
	}
	if !h.Enabled(context.Background(), slog.LevelError) {
		t.Fatal("error should be enabled at warn level")
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" WARN ":  slog.LevelWarn,
		"warning": slog.LevelWarn,
		"info+2":  slog.LevelInfo + 2,
		"bogus":   slog.LevelInfo,
		"":        slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestLevelTag(t *testing.T) {
	if got := levelTag(slog.LevelError, false); got != "ERR" {
		t.Fatalf("plain error tag = %q", got)
	}
	if got := levelTag(slog.LevelDebug, true); got != colorGray+"DBG"+colorReset {
		t.Fatalf("colored debug tag = %q", got)
	}
}

func TestSpanHandlerInjectsIDs(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(&SpanHandler{Handler: slog.NewJSONHandler(&buf, nil)})

	traceID, _ := trace.TraceIDFromHex("0102030405060708090a0b0c0d0e0f10")
	spanID, _ := trace.SpanIDFromHex("0102030405060708")
	sc := trace.NewSpanContext(trace.SpanContextConfig{TraceID: traceID, SpanID: spanID})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)
	logger.InfoContext(ctx, "traced")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatal(err)
	}
	if entry["trace_id"] != traceID.String() || entry["span_id"] != spanID.String() {
		t.Fatalf("trace ids not injected: %v", entry)
	}
}

// --- Operation ---

func TestOperationOutcomes(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		status   string
		errLabel string
	}{
		{"ok", nil, "ok", ""},
		{"rejected", fmt.Errorf("contribute: %w", roscaerr.ErrMembership), "error", "membership"},
		{"broken", fmt.Errorf("order: %w", roscaerr.ErrArithmetic), "error", "arithmetic"},
		{"internal", errors.New("disk on fire"), "error", "internal"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMetrics()
			op, _ := StartOperation(context.Background(), m, "rosca.op")
			op.End(tt.err)

			if got := testutil.ToFloat64(m.OperationTotal.WithLabelValues("rosca.op", tt.status)); got != 1 {
				t.Fatalf("operation total[%s] = %f", tt.status, got)
			}
			if tt.errLabel != "" {
				if got := testutil.ToFloat64(m.ErrorsTotal.WithLabelValues("rosca.op", tt.errLabel)); got != 1 {
					t.Fatalf("errors total[%s] = %f", tt.errLabel, got)
				}
			}
		})
	}
}

func TestOperationAnnotate(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	defer slog.SetDefault(prev)
	SetupLogger("debug", "json", &buf)

	op, _ := StartOperation(context.Background(), nil, "rosca.contribute", Target(4, "bob")...)
	op.Annotate(KeyRoscaID.Int64(4), KeyAccount.String("bob"))
	op.End(nil)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	var last map[string]any
	if err := json.Unmarshal([]byte(lines[len(lines)-1]), &last); err != nil {
		t.Fatal(err)
	}
	if last["msg"] != "operation completed" || last["operation"] != "rosca.contribute" {
		t.Fatalf("entry = %v", last)
	}
	if last["rosca.id"] != "4" || last["rosca.account"] != "bob" {
		t.Fatalf("annotations missing: %v", last)
	}
}

func TestOperationNilMetrics(t *testing.T) {
	op, _ := StartOperation(context.Background(), nil, "no.metrics")
	op.End(errors.New("ignored"))
}

// --- HTTP ---

func TestHTTPMiddlewareRecordsStatus(t *testing.T) {
	m := NewMetrics()
	h := HTTPMiddleware(m, func(*http.Request) string { return "contribute" })(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusConflict)
			_, _ = w.Write([]byte(`{"error":"already contributed"}`))
		}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/roscas/1/contribute", nil))

	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := testutil.ToFloat64(m.HTTPRequests.WithLabelValues("contribute", "409")); got != 1 {
		t.Fatalf("http requests = %f", got)
	}
}

func TestHTTPMiddlewareDefaultsToPath(t *testing.T) {
	m := NewMetrics()
	h := HTTPMiddleware(m, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))

	if got := testutil.ToFloat64(m.HTTPRequests.WithLabelValues("/health", "200")); got != 1 {
		t.Fatalf("http requests = %f", got)
	}
}

// --- Observability ---

func TestNewObservabilityNoOTLP(t *testing.T) {
	obs, err := New(context.Background(), Settings{
		LogLevel:       "info",
		LogFormat:      "json",
		ServiceName:    "rosca-test",
		ServiceVersion: "0.0.1",
	}, io.Discard)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	switch obs.TracerProvider.(type) {
	case *tracenoop.TracerProvider, tracenoop.TracerProvider:
	default:
		t.Fatalf("expected noop tracer provider, got %T", obs.TracerProvider)
	}

	rec := httptest.NewRecorder()
	obs.Metrics.EventsTotal.WithLabelValues("created").Inc()
	obs.MetricsHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(rec.Body.String(), `rosca_events_total{kind="created"} 1`) {
		t.Fatalf("metrics body missing counter:\n%s", rec.Body.String())
	}
	if err := obs.Close(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestNewObservabilityMetricsListener(t *testing.T) {
	obs, err := New(context.Background(), Settings{LogFormat: "json", MetricsAddr: "127.0.0.1:0"}, io.Discard)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer obs.Close(context.Background())

	resp, err := http.Get("http://" + obs.MetricsAddr() + "/health")
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("health status = %d", resp.StatusCode)
	}
}

func TestNewObservabilityBadProtocol(t *testing.T) {
	_, err := New(context.Background(), Settings{OTLPEndpoint: "localhost:4317", OTLPProtocol: "carrier-pigeon"}, io.Discard)
	if err == nil || !strings.Contains(err.Error(), "unknown otlp protocol") {
		t.Fatalf("err = %v", err)
	}
}

func TestSampler(t *testing.T) {
	if got := sampler(1).Description(); got != sdktrace.AlwaysSample().Description() {
		t.Errorf("ratio 1 sampler = %s", got)
	}
	if got := sampler(0.25).Description(); !strings.Contains(got, "TraceIDRatioBased{0.25}") {
		t.Errorf("ratio 0.25 sampler = %s", got)
	}
}
