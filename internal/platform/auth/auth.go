// Package auth issues and verifies the HS256 bearer tokens used by the
// dashboard API.
package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const defaultTTL = 24 * time.Hour

var (
	ErrMissingToken = errors.New("missing bearer token")
	ErrInvalidToken = errors.New("invalid bearer token")
)

type Config struct {
	Secret string
	Issuer string
	TTL    time.Duration
}

// Claims is the verified identity carried by a request.
type Claims struct {
	Subject   string
	Username  string
	Scopes    map[string]struct{}
	ExpiresAt time.Time
}

// HasScope is nil-safe.
func (c *Claims) HasScope(scope string) bool {
	if c == nil {
		return false
	}
	_, ok := c.Scopes[scope]
	return ok
}

// tokenClaims is the JWT body. Scopes accepts either a JSON array or a
// space separated string.
type tokenClaims struct {
	Username string    `json:"username,omitempty"`
	Scopes   scopeList `json:"scopes,omitempty"`
	jwt.RegisteredClaims
}

type scopeList []string

func (s *scopeList) UnmarshalJSON(data []byte) error {
	var joined string
	if err := json.Unmarshal(data, &joined); err == nil {
		*s = strings.Fields(joined)
		return nil
	}
	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return fmt.Errorf("scopes: %w", err)
	}
	*s = list
	return nil
}

// Issue signs a token for subject that expires cfg.TTL after now.
func Issue(cfg Config, subject, username string, scopes []string, now time.Time) (string, time.Time, error) {
	if cfg.Secret == "" {
		return "", time.Time{}, errors.New("signing secret is empty")
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = defaultTTL
	}
	expires := now.Add(ttl)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, tokenClaims{
		Username: username,
		Scopes:   scopes,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	})
	signed, err := token.SignedString([]byte(cfg.Secret))
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expires, nil
}

// Parse verifies signature, issuer and expiry. Every failure wraps
// ErrInvalidToken except an empty token, which is ErrMissingToken.
func Parse(token string, cfg Config) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrMissingToken
	}

	var body tokenClaims
	_, err := jwt.ParseWithClaims(token, &body,
		func(*jwt.Token) (any, error) { return []byte(cfg.Secret), nil },
		jwt.WithIssuer(cfg.Issuer),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if body.Subject == "" {
		return nil, fmt.Errorf("%w: no subject", ErrInvalidToken)
	}

	claims := &Claims{
		Subject:   body.Subject,
		Username:  body.Username,
		Scopes:    make(map[string]struct{}, len(body.Scopes)),
		ExpiresAt: body.ExpiresAt.Time,
	}
	for _, scope := range body.Scopes {
		if scope != "" {
			claims.Scopes[scope] = struct{}{}
		}
	}
	return claims, nil
}
