package requestctx

import (
	"context"
	"testing"
)

func TestCallerRoundTrip(t *testing.T) {
	ctx := WithCaller(context.Background(), Caller{UserID: "user-1", Role: "reviewer", SessionID: "sess-1"})
	caller, ok := CallerFromContext(ctx)
	if !ok {
		t.Fatal("expected caller")
	}
	if caller.UserID != "user-1" || caller.Role != "reviewer" || caller.SessionID != "sess-1" {
		t.Fatalf("unexpected caller %+v", caller)
	}
}

func TestCallerMissing(t *testing.T) {
	if _, ok := CallerFromContext(context.Background()); ok {
		t.Fatal("expected no caller")
	}
	if _, ok := CallerFromContext(nil); ok {
		t.Fatal("expected no caller for nil context")
	}
}

func TestCallerEmptyUserIDRejected(t *testing.T) {
	ctx := WithCaller(context.Background(), Caller{Role: "reviewer"})
	if _, ok := CallerFromContext(ctx); ok {
		t.Fatal("expected empty user id to be treated as unauthenticated")
	}
}
