// Package middleware runs ordered hooks around API calls.
package middleware

import (
	"context"
	"errors"
)

// ErrRateLimited is returned by the rate limit hook when a caller exceeds
// its budget.
var ErrRateLimited = errors.New("rate limited")

// CallInfo describes the current API call for hook processing.
type CallInfo struct {
	Method     string
	Route      string
	RemoteAddr string
	// Caller is the account named by the request, if any.
	Caller string
	// RequestID is assigned by the request id hook.
	RequestID string
}

// Hook processes a call. Return an error to reject it.
type Hook func(ctx context.Context, info *CallInfo) (context.Context, error)

// Chain holds ordered pre and post hooks.
type Chain struct {
	Pre  []Hook
	Post []Hook
}

// RunPre executes pre-hooks in order. Stops on first error.
func (c *Chain) RunPre(ctx context.Context, info *CallInfo) (context.Context, error) {
	return run(ctx, c.Pre, info)
}

// RunPost executes post-hooks in order. Stops on first error.
func (c *Chain) RunPost(ctx context.Context, info *CallInfo) (context.Context, error) {
	return run(ctx, c.Post, info)
}

func run(ctx context.Context, hooks []Hook, info *CallInfo) (context.Context, error) {
	for _, h := range hooks {
		var err error
		ctx, err = h(ctx, info)
		if err != nil {
			return ctx, err
		}
	}
	return ctx, nil
}
