package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/gezibash/arc-rosca"

// Span attribute keys shared by the service, store and HTTP layers.
const (
	KeyRoscaID = attribute.Key("rosca.id")
	KeyAccount = attribute.Key("rosca.account")
	KeyAsset   = attribute.Key("rosca.asset")
)

// Target tags a span with the rosca it acts on and the acting account.
func Target(id uint64, who string) []attribute.KeyValue {
	return []attribute.KeyValue{KeyRoscaID.Int64(int64(id)), KeyAccount.String(who)}
}

// Caller tags a span with the acting account only, for calls that precede an id.
func Caller(who string) []attribute.KeyValue {
	return []attribute.KeyValue{KeyAccount.String(who)}
}

// StartSpan opens a span on the module tracer.
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, name, trace.WithAttributes(attrs...))
}

// EndSpan records err, if any, and ends span.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
