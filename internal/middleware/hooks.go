package middleware

import (
	"context"
	"log/slog"
	"net"

	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v4"
	"golang.org/x/time/rate"
)

type requestIDKey struct{}

// RequestID returns the id assigned to the call carried by ctx.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// WithRequestID stores id on ctx.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDHook assigns a request id unless the caller supplied one.
func RequestIDHook() Hook {
	return func(ctx context.Context, info *CallInfo) (context.Context, error) {
		if info.RequestID == "" {
			info.RequestID = uuid.NewString()
		}
		return WithRequestID(ctx, info.RequestID), nil
	}
}

// RateLimitHook throttles callers with a token bucket per client host.
// A non-positive limit disables throttling.
func RateLimitHook(limit float64, burst int) Hook {
	if limit <= 0 {
		return func(ctx context.Context, _ *CallInfo) (context.Context, error) { return ctx, nil }
	}
	limiters := xsync.NewMap[string, *rate.Limiter]()
	return func(ctx context.Context, info *CallInfo) (context.Context, error) {
		key := clientKey(info.RemoteAddr)
		l, _ := limiters.LoadOrCompute(key, func() (*rate.Limiter, bool) {
			return rate.NewLimiter(rate.Limit(limit), burst), false
		})
		if !l.Allow() {
			return ctx, ErrRateLimited
		}
		return ctx, nil
	}
}

func clientKey(remote string) string {
	host, _, err := net.SplitHostPort(remote)
	if err != nil {
		return remote
	}
	return host
}

// LogHook logs completed calls at debug level.
func LogHook() Hook {
	return func(ctx context.Context, info *CallInfo) (context.Context, error) {
		slog.DebugContext(ctx, "api call",
			"method", info.Method,
			"route", info.Route,
			"caller", info.Caller,
			"request_id", info.RequestID)
		return ctx, nil
	}
}
