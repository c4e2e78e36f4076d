package observability

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	roscaerr "github.com/gezibash/arc-rosca/pkg/errors"
)

// Operation times one named unit of work and reports it three ways: a span,
// a log line at completion and the operation counters and histogram.
type Operation struct {
	name    string
	ctx     context.Context
	span    trace.Span
	metrics *Metrics
	logger  *slog.Logger
	started time.Time
	notes   []any
}

// StartOperation opens a span named name and returns the context carrying
// it. Metrics may be nil.
func StartOperation(ctx context.Context, m *Metrics, name string, attrs ...attribute.KeyValue) (*Operation, context.Context) {
	ctx, span := StartSpan(ctx, name, attrs...)
	op := &Operation{
		name:    name,
		ctx:     ctx,
		span:    span,
		metrics: m,
		logger:  slog.Default().With("operation", name),
		started: time.Now(),
	}
	op.logger.DebugContext(ctx, "operation started")
	return op, ctx
}

// Annotate adds attributes learned mid-flight. They go on the span and on
// the completion log line.
func (o *Operation) Annotate(attrs ...attribute.KeyValue) {
	o.span.SetAttributes(attrs...)
	for _, a := range attrs {
		o.notes = append(o.notes, string(a.Key), a.Value.Emit())
	}
}

// End closes the operation. Rejections carrying a domain error kind are
// expected traffic and log at warn; anything else, arithmetic faults
// included, logs at error.
func (o *Operation) End(err error) {
	elapsed := time.Since(o.started).Seconds()
	args := append([]any{"duration", elapsed}, o.notes...)
	status := "ok"

	switch kind := roscaerr.KindOf(err); {
	case err == nil:
		o.logger.DebugContext(o.ctx, "operation completed", args...)
	case kind != nil && kind != roscaerr.ErrArithmetic:
		status = "error"
		o.logger.WarnContext(o.ctx, "operation rejected", append(args, "error", err)...)
	default:
		status = "error"
		o.logger.ErrorContext(o.ctx, "operation failed", append(args, "error", err)...)
	}
	EndSpan(o.span, err)

	if o.metrics == nil {
		return
	}
	if err != nil {
		o.metrics.ErrorsTotal.WithLabelValues(o.name, roscaerr.KindName(err)).Inc()
	}
	o.metrics.OperationDuration.WithLabelValues(o.name, status).Observe(elapsed)
	o.metrics.OperationTotal.WithLabelValues(o.name, status).Inc()
}
