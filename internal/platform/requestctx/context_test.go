package requestctx

import (
	"context"
	"testing"

	"go.uber.org/zap"
)

func TestLoggerDefaultsToNoop(t *testing.T) {
	if Logger(context.Background()) != NoopLogger() {
		t.Fatalf("expected noop logger for empty context")
	}
	logger := zap.NewExample()
	ctx := WithLogger(context.Background(), logger)
	if Logger(ctx) != logger {
		t.Fatalf("expected injected logger")
	}
}

func TestClientID(t *testing.T) {
	if got := ClientID(context.Background()); got != AnonymousClient {
		t.Fatalf("expected anonymous, got %q", got)
	}
	if got := ClientID(WithClientID(context.Background(), "  ")); got != AnonymousClient {
		t.Fatalf("expected blank id stored as anonymous, got %q", got)
	}
	if got := ClientID(WithClientID(context.Background(), " kiosk-7 ")); got != "kiosk-7" {
		t.Fatalf("expected kiosk-7, got %q", got)
	}
}

func TestTraceID(t *testing.T) {
	if TraceID(context.Background()) != "" {
		t.Fatalf("expected empty trace id")
	}
	ctx := WithTrace(context.Background(), TraceInfo{TraceID: "abc"})
	if TraceID(ctx) != "abc" {
		t.Fatalf("expected trace id abc")
	}
}
