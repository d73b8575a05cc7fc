package auth

import (
	"context"

	"github.com/kaizenhq/a3hub/pkg/contextkeys"
)

// WithPrincipal adds the authenticated principal to the context
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, contextkeys.PrincipalKey, p)
}

// PrincipalFromContext retrieves the principal from context, or nil if the
// request is unauthenticated.
func PrincipalFromContext(ctx context.Context) *Principal {
	if p, ok := ctx.Value(contextkeys.PrincipalKey).(*Principal); ok {
		return p
	}
	return nil
}
