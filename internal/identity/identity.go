// Package identity answers "who is calling". Sign-in providers (password,
// Google) produce a Profile, JWTManager turns it into a bearer token, and the
// auth interceptor puts the validated Claims on the request context where
// ContextIdentity reads them.
package identity

import (
	"context"
	"errors"
)

// ErrUnauthenticated is returned when no user is signed in.
var ErrUnauthenticated = errors.New("not signed in")

// Profile is what an identity provider knows about a user.
type Profile struct {
	UserID      string
	DisplayName string
	Email       string
	AvatarURL   string
}

// Identity resolves the current user from a request context.
type Identity interface {
	CurrentUserID(ctx context.Context) (string, bool)
	CurrentUserProfile(ctx context.Context) (Profile, error)
}

type claimsKey struct{}

// WithClaims returns a context carrying validated token claims.
func WithClaims(ctx context.Context, c *Claims) context.Context {
	return context.WithValue(ctx, claimsKey{}, c)
}

// ClaimsFrom returns the claims stored by WithClaims, if any.
func ClaimsFrom(ctx context.Context) (*Claims, bool) {
	c, ok := ctx.Value(claimsKey{}).(*Claims)
	return c, ok && c != nil
}

// ContextIdentity reads the caller from token claims on the context.
type ContextIdentity struct{}

var _ Identity = ContextIdentity{}

func (ContextIdentity) CurrentUserID(ctx context.Context) (string, bool) {
	c, ok := ClaimsFrom(ctx)
	if !ok || c.UserID == "" {
		return "", false
	}
	return c.UserID, true
}

func (ContextIdentity) CurrentUserProfile(ctx context.Context) (Profile, error) {
	c, ok := ClaimsFrom(ctx)
	if !ok || c.UserID == "" {
		return Profile{}, ErrUnauthenticated
	}
	return c.Profile(), nil
}
