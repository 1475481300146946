package vfs

import "context"

type scopeKey struct{}

// WithScope attaches the caller's workspace scope to the context. The HTTP
// middleware sets it from the authenticated request; tools and handlers
// resolve paths against it.
func WithScope(ctx context.Context, scope Scope) context.Context {
	return context.WithValue(ctx, scopeKey{}, scope)
}

// ScopeFrom extracts the workspace scope from the context.
func ScopeFrom(ctx context.Context) (Scope, bool) {
	scope, ok := ctx.Value(scopeKey{}).(Scope)
	return scope, ok
}
