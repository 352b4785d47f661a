package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
)

type claimsKey struct{}

// WithClaims returns a copy of ctx carrying claims.
func WithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, claimsKey{}, claims)
}

// FromContext returns the claims attached by WithClaims or the middleware.
func FromContext(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(claimsKey{}).(*Claims)
	return claims, ok && claims != nil
}

// Skipper reports whether a request may pass without a token.
type Skipper func(r *http.Request) bool

// Middleware validates bearer tokens and stores their claims on the request.
type Middleware struct {
	cfg  Config
	skip Skipper
}

// NewMiddleware constructs a Middleware. skip may be nil.
func NewMiddleware(cfg Config, skip Skipper) Middleware {
	return Middleware{cfg: cfg, skip: skip}
}

// Wrap guards next.
func (m Middleware) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.skip != nil && m.skip(r) {
			next.ServeHTTP(w, r)
			return
		}

		claims, err := Parse(bearerToken(r), m.cfg)
		if err != nil {
			unauthorized(w, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
	})
}

// bearerToken extracts the token of an "Authorization: Bearer" header. The
// scheme is matched case-insensitively.
func bearerToken(r *http.Request) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(r.Header.Get("Authorization")), " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// unauthorized answers 401 without echoing parser details.
func unauthorized(w http.ResponseWriter, err error) {
	detail := ErrInvalidToken.Error()
	if errors.Is(err, ErrMissingToken) {
		detail = ErrMissingToken.Error()
	}
	w.Header().Set("WWW-Authenticate", `Bearer realm="campus-carbon"`)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"type": "unauthorized", "detail": detail})
}
