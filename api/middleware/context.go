package middleware

import (
	"context"

	"github.com/angelmondragon/marketplace-backend/pkg/auth"
)

type contextKey string

const (
	ctxPrincipal contextKey = "principal"
	ctxAccessID  contextKey = "access_id"
)

// PrincipalFromContext returns the authenticated caller, or auth.Anonymous()
// when the request carried no credentials.
func PrincipalFromContext(ctx context.Context) auth.Principal {
	if ctx == nil {
		return auth.Anonymous()
	}
	if p, ok := ctx.Value(ctxPrincipal).(auth.Principal); ok {
		return p
	}
	return auth.Anonymous()
}

// AccessIDFromContext returns the jti of the verified access token.
func AccessIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxAccessID).(string); ok {
		return v
	}
	return ""
}

// WithPrincipal seeds ctx with an identity. Tests use it to skip token minting.
func WithPrincipal(ctx context.Context, principal auth.Principal) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxPrincipal, principal)
}

func withAccessID(ctx context.Context, accessID string) context.Context {
	return context.WithValue(ctx, ctxAccessID, accessID)
}
