package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mmynk/vibecheck/internal/apperr"
	"github.com/mmynk/vibecheck/internal/identity"
	"github.com/mmynk/vibecheck/internal/models"
	"github.com/mmynk/vibecheck/internal/storage"
	"github.com/mmynk/vibecheck/internal/validate"
)

// UserService manages user profile documents. It never touches the
// membership edge.
type UserService struct {
	store storage.Store
}

// NewUserService creates a UserService backed by store.
func NewUserService(store storage.Store) *UserService {
	return &UserService{store: store}
}

// EnsureUser creates the user document on first sign-in, or refreshes the
// last-seen time and any changed profile fields on later sign-ins.
func (s *UserService) EnsureUser(ctx context.Context, p identity.Profile) (*models.User, error) {
	if err := checkID("userId", p.UserID); err != nil {
		return nil, err
	}
	name := validate.Clean(p.DisplayName)

	existing, err := getUser(ctx, s.store, p.UserID)
	if errors.Is(err, apperr.ErrNotFound) {
		u := &models.User{
			ID:          p.UserID,
			DisplayName: name,
			AvatarURL:   p.AvatarURL,
			Email:       p.Email,
			GroupIDs:    []string{},
			IsAvailable: true,
			CreatedAt:   now(),
			LastSeenAt:  now(),
		}
		if u.DisplayName == "" {
			u.DisplayName = models.DefaultDisplayName
		}
		if u.AvatarURL == "" {
			u.AvatarURL = models.DefaultAvatarURL
		}

		err := s.store.Create(ctx, storage.UserPath(p.UserID), u)
		if err == nil {
			slog.Info("User created", "user_id", u.ID)
			return u, nil
		}
		if !errors.Is(err, storage.ErrAlreadyExists) {
			slog.Error("EnsureUser failed", "user_id", p.UserID, "error", err)
			return nil, fmt.Errorf("failed to create user: %w", err)
		}
		// Signed in concurrently; refresh the winner's document instead.
		if existing, err = getUser(ctx, s.store, p.UserID); err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, err
	}

	seen := now()
	update := storage.Fields{"lastSeen": seen}
	if name != "" && name != existing.DisplayName {
		update["name"] = name
		existing.DisplayName = name
	}
	if p.AvatarURL != "" && p.AvatarURL != existing.AvatarURL {
		update["photoURL"] = p.AvatarURL
		existing.AvatarURL = p.AvatarURL
	}
	if p.Email != "" && p.Email != existing.Email {
		update["email"] = p.Email
		existing.Email = p.Email
	}
	if err := s.store.Write(ctx, storage.UserPath(p.UserID), update, storage.Merge); err != nil {
		slog.Error("EnsureUser failed", "user_id", p.UserID, "error", err)
		return nil, fmt.Errorf("failed to refresh user: %w", err)
	}
	existing.LastSeenAt = seen
	return existing, nil
}

// GetUser returns the user's profile.
func (s *UserService) GetUser(ctx context.Context, userID string) (*models.User, error) {
	if err := checkID("userId", userID); err != nil {
		return nil, err
	}
	return getUser(ctx, s.store, userID)
}

// UpdateProfile changes the display name and, when photoURL is not blank,
// the avatar.
func (s *UserService) UpdateProfile(ctx context.Context, userID, name, photoURL string) (*models.User, error) {
	slog.Info("UpdateProfile request received", "user_id", userID)

	name, err := validate.DisplayName(name)
	if err != nil {
		return nil, err
	}
	photoURL, err = validate.PhotoURL(photoURL)
	if err != nil {
		return nil, err
	}
	u, err := s.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	update := storage.Fields{"name": name, "updatedAt": now()}
	u.DisplayName = name
	if photoURL != "" {
		update["photoURL"] = photoURL
		u.AvatarURL = photoURL
	}
	if err := s.store.Write(ctx, storage.UserPath(userID), update, storage.Merge); err != nil {
		slog.Error("UpdateProfile failed", "user_id", userID, "error", err)
		return nil, fmt.Errorf("failed to update profile: %w", err)
	}

	slog.Info("Profile updated", "user_id", userID)
	return u, nil
}

// SetAvailability records whether the user is free to hang out.
func (s *UserService) SetAvailability(ctx context.Context, userID string, available bool) error {
	if _, err := s.GetUser(ctx, userID); err != nil {
		return err
	}
	update := storage.Fields{"isAvailable": available, "lastSeen": now()}
	if err := s.store.Write(ctx, storage.UserPath(userID), update, storage.Merge); err != nil {
		slog.Error("SetAvailability failed", "user_id", userID, "error", err)
		return fmt.Errorf("failed to set availability: %w", err)
	}
	slog.Info("Availability set", "user_id", userID, "available", available)
	return nil
}

// ListFriends returns every other user. There is no friend graph.
func (s *UserService) ListFriends(ctx context.Context, userID string) ([]models.User, error) {
	docs, err := s.store.Query(ctx, storage.UsersCollection)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}

	friends := make([]models.User, 0, len(docs))
	for _, d := range docs {
		if d.ID == userID {
			continue
		}
		var u models.User
		if err := d.DataTo(&u); err != nil {
			slog.Warn("Skipping undecodable user", "user_id", d.ID, "error", err)
			continue
		}
		u.ID = d.ID
		friends = append(friends, u)
	}
	return friends, nil
}
