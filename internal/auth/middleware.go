package auth

import (
	"net/http"
	"strings"

	authlib "github.com/Nissan15/hackathon/internal/platform/auth"
)

// publicPaths are served without a bearer token.
var publicPaths = map[string]struct{}{
	"/healthz":             {},
	"/metrics":             {},
	"/api/login":           {},
	"/api/dashboard":       {},
	"/api/recommendations": {},
	"/api/equivalencies":   {},
	"/api/factors":         {},
	"/debug/reset_admin":   {},
}

// Middleware enforces bearer-token authentication on incoming requests.
type Middleware struct {
	inner authlib.Middleware
}

// NewMiddleware constructs Middleware with validation config.
func NewMiddleware(cfg Config) Middleware {
	return Middleware{inner: authlib.NewMiddleware(cfg, IsPublic)}
}

// IsPublic reports whether r may skip authentication. Preflight requests are
// always public.
func IsPublic(r *http.Request) bool {
	if r.Method == http.MethodOptions {
		return true
	}
	_, ok := publicPaths[strings.TrimSuffix(r.URL.Path, "/")]
	return ok
}

// Wrap attaches authentication handling to an http.Handler.
func (m Middleware) Wrap(next http.Handler) http.Handler {
	return m.inner.Wrap(next)
}
