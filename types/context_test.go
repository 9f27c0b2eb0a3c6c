package types

import (
	"context"
	"testing"
)

func TestContextHelpers(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	if _, ok := SessionID(ctx); ok {
		t.Fatalf("expected empty context to carry no session id")
	}

	ctx = WithSessionID(ctx, "s1")
	if got, ok := SessionID(ctx); !ok || got != "s1" {
		t.Fatalf("SessionID mismatch: %v %v", got, ok)
	}

	ctx = WithRunID(ctx, "run")
	if got, ok := RunID(ctx); !ok || got != "run" {
		t.Fatalf("RunID mismatch: %v %v", got, ok)
	}

	ctx = WithRequestID(ctx, "req")
	if got, ok := RequestID(ctx); !ok || got != "req" {
		t.Fatalf("RequestID mismatch: %v %v", got, ok)
	}

	ctx = WithTeam(ctx, "super")
	ctx = WithTeam(ctx, "research_team")
	if got, ok := Team(ctx); !ok || got != "research_team" {
		t.Fatalf("Team mismatch: %v %v", got, ok)
	}

	if _, ok := SessionID(WithSessionID(context.Background(), "")); ok {
		t.Fatalf("empty session id should report !ok")
	}
}
