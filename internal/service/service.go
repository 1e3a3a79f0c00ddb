// Package service implements the membership, participation, user and feed
// operations on top of a storage.Store. Every operation takes the acting
// user's id explicitly; nothing here reads a process-wide current user.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mmynk/vibecheck/internal/apperr"
	"github.com/mmynk/vibecheck/internal/models"
	"github.com/mmynk/vibecheck/internal/storage"
)

// checkID rejects ids that cannot be used as a path segment.
func checkID(field, id string) error {
	if strings.TrimSpace(id) == "" {
		return apperr.Invalid(field, "required")
	}
	if !storage.ValidID(id) {
		return apperr.Invalid(field, "invalid id")
	}
	return nil
}

func getGroup(ctx context.Context, store storage.Store, groupID string) (*models.Group, error) {
	var g models.Group
	if err := store.Get(ctx, storage.GroupPath(groupID), &g); err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, apperr.NotFound("group", groupID)
		}
		return nil, fmt.Errorf("failed to read group: %w", err)
	}
	g.ID = groupID
	return &g, nil
}

func getGroupTx(tx storage.Tx, groupID string) (*models.Group, error) {
	var g models.Group
	if err := tx.Get(storage.GroupPath(groupID), &g); err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, apperr.NotFound("group", groupID)
		}
		return nil, fmt.Errorf("failed to read group: %w", err)
	}
	g.ID = groupID
	return &g, nil
}

func getUser(ctx context.Context, store storage.Store, userID string) (*models.User, error) {
	var u models.User
	if err := store.Get(ctx, storage.UserPath(userID), &u); err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, apperr.NotFound("user", userID)
		}
		return nil, fmt.Errorf("failed to read user: %w", err)
	}
	u.ID = userID
	return &u, nil
}

// getUserTx returns nil without error when the user document is missing.
func getUserTx(tx storage.Tx, userID string) (*models.User, error) {
	var u models.User
	if err := tx.Get(storage.UserPath(userID), &u); err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read user: %w", err)
	}
	u.ID = userID
	return &u, nil
}

// requireMember loads the group and checks that userID belongs to it.
func requireMember(ctx context.Context, store storage.Store, userID, groupID string) (*models.Group, error) {
	if err := checkID("groupId", groupID); err != nil {
		return nil, err
	}
	g, err := getGroup(ctx, store, groupID)
	if err != nil {
		return nil, err
	}
	if !g.HasMember(userID) {
		return nil, fmt.Errorf("user %q is not a member of group %q: %w", userID, groupID, apperr.ErrForbidden)
	}
	return g, nil
}

func getVibe(ctx context.Context, store storage.Store, groupID, vibeID string) (*models.Vibe, error) {
	if err := checkID("vibeId", vibeID); err != nil {
		return nil, err
	}
	var v models.Vibe
	if err := store.Get(ctx, storage.VibePath(groupID, vibeID), &v); err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, apperr.NotFound("vibe", vibeID)
		}
		return nil, fmt.Errorf("failed to read vibe: %w", err)
	}
	v.ID = vibeID
	v.GroupID = groupID
	return &v, nil
}

// decodeVibes decodes a vibes collection, skipping undecodable documents.
func decodeVibes(docs []storage.Doc) []models.Vibe {
	vibes := make([]models.Vibe, 0, len(docs))
	for _, d := range docs {
		var v models.Vibe
		if err := d.DataTo(&v); err != nil {
			continue
		}
		v.ID = d.ID
		v.GroupID = storage.GroupIDFromVibePath(d.Path)
		vibes = append(vibes, v)
	}
	return vibes
}

// without returns ids minus id, preserving order.
func without(ids []string, id string) []string {
	out := make([]string, 0, len(ids))
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}
