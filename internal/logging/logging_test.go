package logging

import (
	"context"
	"io"
	"log/slog"
	"testing"
)

func TestContextRoundTrip(t *testing.T) {
	t.Parallel()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx := ContextWithLogger(context.Background(), logger)

	if got := FromContext(ctx); got != logger {
		t.Fatalf("expected the attached logger, got %v", got)
	}
	if got := FromContext(context.Background()); got != nil {
		t.Fatalf("expected nil from a bare context, got %v", got)
	}
}

func TestFromContextOr(t *testing.T) {
	t.Parallel()

	attached := slog.New(slog.NewTextHandler(io.Discard, nil))
	fallback := slog.New(slog.NewTextHandler(io.Discard, nil))

	ctx := ContextWithLogger(context.Background(), attached)
	if got := FromContextOr(ctx, fallback); got != attached {
		t.Fatal("the context logger must win over the fallback")
	}
	if got := FromContextOr(context.Background(), fallback); got != fallback {
		t.Fatal("expected the fallback when the context carries no logger")
	}
	if got := FromContextOr(context.Background(), nil); got == nil {
		t.Fatal("the resolved logger must never be nil")
	}
}
