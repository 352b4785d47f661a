// Package auth signs operators in and guards the write endpoints.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/Nissan15/hackathon/internal/domain"
	authlib "github.com/Nissan15/hackathon/internal/platform/auth"
)

// Default operator restored by ResetAdmin and created by the seed command.
const (
	AdminUsername = "admin"
	AdminPassword = "admin123"
)

// UserStore persists operators.
type UserStore interface {
	FindUser(ctx context.Context, username string) (domain.User, error)
	UpsertUser(ctx context.Context, username, passwordHash string) error
}

// Session is the result of a successful login.
type Session struct {
	Token     string
	Username  string
	ExpiresAt time.Time
}

// Authenticator verifies credentials and issues tokens.
type Authenticator struct {
	users UserStore
	cfg   Config
	now   func() time.Time
}

// NewAuthenticator constructs an Authenticator.
func NewAuthenticator(users UserStore, cfg Config) *Authenticator {
	return &Authenticator{users: users, cfg: cfg, now: time.Now}
}

// Login checks the password of username and returns a signed session.
func (a *Authenticator) Login(ctx context.Context, username, password string) (Session, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return Session{}, fmt.Errorf("%w: username and password are required", domain.ErrValidation)
	}

	user, err := a.users.FindUser(ctx, username)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return Session{}, domain.ErrInvalidCredentials
		}
		return Session{}, err
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return Session{}, domain.ErrInvalidCredentials
	}

	token, expires, err := authlib.Issue(a.cfg, strconv.FormatInt(user.ID, 10), user.Username, DefaultScopes, a.now())
	if err != nil {
		return Session{}, err
	}
	return Session{Token: token, Username: user.Username, ExpiresAt: expires}, nil
}

// SetPassword creates username or replaces its password.
func (a *Authenticator) SetPassword(ctx context.Context, username, password string) error {
	hash, err := HashPassword(password)
	if err != nil {
		return err
	}
	return a.users.UpsertUser(ctx, username, hash)
}

// ResetAdmin restores the default admin credentials.
func (a *Authenticator) ResetAdmin(ctx context.Context) error {
	return a.SetPassword(ctx, AdminUsername, AdminPassword)
}

// HashPassword returns the bcrypt hash of password.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
