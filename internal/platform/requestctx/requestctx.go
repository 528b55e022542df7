// Package requestctx carries authenticated caller identity through contexts.
package requestctx

import "context"

// Caller is the authenticated identity resolved from the session cookie.
//
// Identity is never read from request bodies; handlers trust only what the
// session middleware stored here.
type Caller struct {
	UserID    string
	Role      string
	SessionID string
}

type callerContextKey struct{}

// WithCaller stores the authenticated caller in context.
func WithCaller(ctx context.Context, caller Caller) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, callerContextKey{}, caller)
}

// CallerFromContext returns the authenticated caller stored in context.
func CallerFromContext(ctx context.Context) (Caller, bool) {
	if ctx == nil {
		return Caller{}, false
	}
	caller, ok := ctx.Value(callerContextKey{}).(Caller)
	if !ok || caller.UserID == "" {
		return Caller{}, false
	}
	return caller, true
}
