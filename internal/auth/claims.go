package auth

import (
	"context"

	authlib "github.com/Nissan15/hackathon/internal/platform/auth"
)

type (
	// Claims are the verified contents of an operator token.
	Claims = authlib.Claims
	// Config holds the signing secret, issuer and token lifetime.
	Config = authlib.Config
)

// ParseClaims verifies token against cfg.
func ParseClaims(token string, cfg Config) (*Claims, error) { return authlib.Parse(token, cfg) }

// WithClaims attaches claims to ctx, as the middleware does after verification.
func WithClaims(ctx context.Context, claims *Claims) context.Context {
	return authlib.WithClaims(ctx, claims)
}

// FromContext returns the claims of the signed-in operator, if any.
func FromContext(ctx context.Context) (*Claims, bool) { return authlib.FromContext(ctx) }
