package ctxutil

import (
	"context"
	"testing"
	"time"
)

func TestStringValues(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		with func(context.Context, string) context.Context
		get  func(context.Context) string
	}{
		{"user id", WithUserID, GetUserID},
		{"chat id", WithChatID, GetChatID},
		{"transport", WithTransport, GetTransport},
		{"request id", WithRequestID, func(ctx context.Context) string {
			v, _ := GetRequestID(ctx)
			return v
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := tt.get(context.Background()); got != "" {
				t.Errorf("empty context returned %q, want empty", got)
			}
			ctx := tt.with(context.Background(), "v-123")
			if got := tt.get(ctx); got != "v-123" {
				t.Errorf("got %q, want %q", got, "v-123")
			}
		})
	}
}

func TestGetRequestIDMissing(t *testing.T) {
	t.Parallel()
	if _, ok := GetRequestID(context.Background()); ok {
		t.Error("GetRequestID() ok = true on empty context")
	}
}

func TestPreserveTracing(t *testing.T) {
	t.Parallel()

	parent, cancel := context.WithTimeout(context.Background(), time.Millisecond)
	parent = WithUserID(parent, "42")
	parent = WithChatID(parent, "-100")
	parent = WithRequestID(parent, "update-7")
	parent = WithTransport(parent, "telegram")
	cancel()

	ctx := PreserveTracing(parent)

	if ctx.Err() != nil {
		t.Errorf("detached context inherited cancellation: %v", ctx.Err())
	}
	if _, ok := ctx.Deadline(); ok {
		t.Error("detached context inherited deadline")
	}
	if GetUserID(ctx) != "42" || GetChatID(ctx) != "-100" || GetTransport(ctx) != "telegram" {
		t.Errorf("tracing values not preserved: user=%q chat=%q transport=%q",
			GetUserID(ctx), GetChatID(ctx), GetTransport(ctx))
	}
	if id, _ := GetRequestID(ctx); id != "update-7" {
		t.Errorf("request id = %q, want %q", id, "update-7")
	}
}
