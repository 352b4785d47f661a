package auth

// Scopes granted to signed-in operators.
const (
	ScopeActivityWrite = "activity:write"
	ScopeDashboardRead = "dashboard:read"
)

// DefaultScopes are issued on every successful login.
var DefaultScopes = []string{ScopeActivityWrite, ScopeDashboardRead}
