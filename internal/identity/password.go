package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/mmynk/vibecheck/internal/apperr"
	"github.com/mmynk/vibecheck/internal/models"
	"github.com/mmynk/vibecheck/internal/storage"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrWeakPassword       = errors.New("password must be at least 8 characters")
	ErrEmailExists        = errors.New("email already registered")
)

// PasswordAuthenticator implements password-based authentication using bcrypt.
// Credentials are stored at credentials/{email}, separate from user profiles.
type PasswordAuthenticator struct {
	store storage.Store
	cost  int
}

var _ Authenticator = (*PasswordAuthenticator)(nil)

// NewPasswordAuthenticator creates a new password-based authenticator.
func NewPasswordAuthenticator(store storage.Store) *PasswordAuthenticator {
	return &PasswordAuthenticator{store: store, cost: bcrypt.DefaultCost}
}

// ValidateCredential checks if the password meets minimum requirements.
func (a *PasswordAuthenticator) ValidateCredential(credential string) error {
	if len(credential) < 8 {
		return ErrWeakPassword
	}
	return nil
}

// NormalizeEmail lowercases and trims an email so it can key a credential.
func NormalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return "", apperr.Invalid("email", "required")
	}
	if !strings.Contains(email, "@") || !storage.ValidID(email) {
		return "", apperr.Invalid("email", "not a valid address")
	}
	return email, nil
}

// Register creates a credential with a hashed password.
func (a *PasswordAuthenticator) Register(ctx context.Context, email, displayName, credential string) (Profile, error) {
	email, err := NormalizeEmail(email)
	if err != nil {
		return Profile{}, err
	}
	if err := a.ValidateCredential(credential); err != nil {
		return Profile{}, err
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(credential), a.cost)
	if err != nil {
		return Profile{}, fmt.Errorf("failed to hash password: %w", err)
	}

	cred := models.Credential{
		UserID:       storage.NewID(),
		PasswordHash: string(hashed),
		CreatedAt:    time.Now(),
	}
	if err := a.store.Create(ctx, storage.CredentialPath(email), cred); err != nil {
		if errors.Is(err, storage.ErrAlreadyExists) {
			return Profile{}, ErrEmailExists
		}
		return Profile{}, fmt.Errorf("failed to create credential: %w", err)
	}

	slog.Info("Registered password credential", "user_id", cred.UserID)
	return Profile{UserID: cred.UserID, DisplayName: strings.TrimSpace(displayName), Email: email}, nil
}

// Authenticate verifies the email and password. The profile is filled from
// the user document when one exists.
func (a *PasswordAuthenticator) Authenticate(ctx context.Context, email, credential string) (Profile, error) {
	email, err := NormalizeEmail(email)
	if err != nil {
		return Profile{}, ErrInvalidCredentials
	}

	var cred models.Credential
	if err := a.store.Get(ctx, storage.CredentialPath(email), &cred); err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return Profile{}, ErrInvalidCredentials
		}
		return Profile{}, fmt.Errorf("failed to read credential: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(cred.PasswordHash), []byte(credential)); err != nil {
		return Profile{}, ErrInvalidCredentials
	}

	p := Profile{UserID: cred.UserID, Email: email}
	var u models.User
	err = a.store.Get(ctx, storage.UserPath(cred.UserID), &u)
	switch {
	case err == nil:
		p.DisplayName = u.DisplayName
		p.AvatarURL = u.AvatarURL
	case !errors.Is(err, apperr.ErrNotFound):
		return Profile{}, fmt.Errorf("failed to read user: %w", err)
	}
	return p, nil
}
