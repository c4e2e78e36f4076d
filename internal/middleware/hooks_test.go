package middleware

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
)

func TestRequestIDHookAssigns(t *testing.T) {
	info := &CallInfo{}
	ctx, err := RequestIDHook()(context.Background(), info)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := uuid.Parse(info.RequestID); err != nil {
		t.Fatalf("request id %q is not a uuid: %v", info.RequestID, err)
	}
	if RequestID(ctx) != info.RequestID {
		t.Fatalf("context id %q, info id %q", RequestID(ctx), info.RequestID)
	}
}

func TestRequestIDHookKeepsSupplied(t *testing.T) {
	info := &CallInfo{RequestID: "from-client"}
	ctx, _ := RequestIDHook()(context.Background(), info)
	if RequestID(ctx) != "from-client" {
		t.Fatalf("got %q", RequestID(ctx))
	}
}

func TestRateLimitHook(t *testing.T) {
	hook := RateLimitHook(0.001, 2)
	call := func(addr string) error {
		_, err := hook(context.Background(), &CallInfo{RemoteAddr: addr})
		return err
	}

	for i := range 2 {
		if err := call("10.0.0.1:5000"); err != nil {
			t.Fatalf("call %d within burst: %v", i, err)
		}
	}
	if err := call("10.0.0.1:5001"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("third call from same host: err = %v", err)
	}
	if err := call("10.0.0.2:5000"); err != nil {
		t.Fatalf("other host should have its own bucket: %v", err)
	}
}

func TestRateLimitHookDisabled(t *testing.T) {
	hook := RateLimitHook(0, 0)
	for range 100 {
		if _, err := hook(context.Background(), &CallInfo{RemoteAddr: "1.1.1.1:1"}); err != nil {
			t.Fatal(err)
		}
	}
}

func TestClientKey(t *testing.T) {
	tests := map[string]string{
		"10.0.0.1:80": "10.0.0.1",
		"[::1]:8080":  "::1",
		"pipe":        "pipe",
	}
	for in, want := range tests {
		if got := clientKey(in); got != want {
			t.Errorf("clientKey(%q) = %q, want %q", in, got, want)
		}
	}
}
