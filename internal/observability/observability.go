// Package observability wires the node's logging, tracing and Prometheus
// metrics, and owns the ordered shutdown of whatever the node starts.
package observability

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

// Settings is the slice of node configuration this package reads.
type Settings struct {
	LogLevel       string
	LogFormat      string
	OTLPEndpoint   string
	OTLPProtocol   string
	ServiceName    string
	ServiceVersion string
	SampleRatio    float64
	// MetricsAddr, when set, gets a dedicated /metrics and /health listener.
	MetricsAddr string
}

// Observability is the per-process bundle handed to the node and server.
type Observability struct {
	Logger         *slog.Logger
	Metrics        *Metrics
	TracerProvider trace.TracerProvider
	Shutdown       *ShutdownCoordinator

	metricsAddr string
}

// New sets up logging first so tracer and listener failures are logged in
// the configured format. The returned value must be closed.
func New(ctx context.Context, s Settings, w io.Writer) (*Observability, error) {
	o := &Observability{
		Logger:   SetupLogger(s.LogLevel, s.LogFormat, w),
		Metrics:  NewMetrics(),
		Shutdown: &ShutdownCoordinator{},
	}

	if s.OTLPEndpoint == "" {
		o.TracerProvider = tracenoop.NewTracerProvider()
		o.Logger.DebugContext(ctx, "tracing disabled", "reason", "no otlp endpoint")
	} else {
		tp, err := newTracerProvider(ctx, s)
		if err != nil {
			return nil, fmt.Errorf("init tracer: %w", err)
		}
		o.TracerProvider = tp
		o.Shutdown.Register("tracer", tp.Shutdown)
		o.Logger.InfoContext(ctx, "tracing enabled", "endpoint", s.OTLPEndpoint, "protocol", s.OTLPProtocol)
	}

	if s.MetricsAddr != "" {
		if err := o.serveMetrics(ctx, s.MetricsAddr); err != nil {
			_ = o.Close(context.Background())
			return nil, err
		}
	}
	return o, nil
}

// Close runs the registered shutdown steps.
func (o *Observability) Close(ctx context.Context) error {
	return o.Shutdown.Shutdown(ctx)
}

// MetricsHandler serves the node registry in the Prometheus text format.
func (o *Observability) MetricsHandler() http.Handler {
	return promhttp.HandlerFor(o.Metrics.Registry, promhttp.HandlerOpts{
		ErrorLog: slog.NewLogLogger(o.Logger.Handler(), slog.LevelError),
	})
}

// MetricsAddr is the bound address of the dedicated metrics listener, or ""
// when there is none.
func (o *Observability) MetricsAddr() string { return o.metricsAddr }

// serveMetrics binds addr before returning so a taken port fails startup.
func (o *Observability) serveMetrics(ctx context.Context, addr string) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("metrics listener %s: %w", addr, err)
	}
	o.metricsAddr = ln.Addr().String()

	mux := http.NewServeMux()
	mux.Handle("GET /metrics", o.MetricsHandler())
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("OK"))
	})
	srv := &http.Server{Handler: mux, BaseContext: func(net.Listener) context.Context { return ctx }}

	go func() {
		o.Logger.Info("metrics server listening", "addr", o.metricsAddr)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			o.Logger.Error("metrics server stopped", "error", err)
		}
	}()
	o.Shutdown.Register("metrics-server", srv.Shutdown)
	return nil
}
