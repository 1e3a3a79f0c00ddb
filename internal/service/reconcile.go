package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/mmynk/vibecheck/internal/apperr"
	"github.com/mmynk/vibecheck/internal/storage"
)

// Repair describes the changes Reconcile made to one user's group ids.
type Repair struct {
	UserID  string
	Added   []string
	Removed []string
}

// Changed reports whether anything was repaired.
func (r Repair) Changed() bool {
	return len(r.Added) > 0 || len(r.Removed) > 0
}

// Reconcile makes the user's group ids match the groups listing the user as
// a member. Half-applied membership writes from backends without
// transactions are repaired here.
func (s *MembershipService) Reconcile(ctx context.Context, userID string) (Repair, error) {
	repair := Repair{UserID: userID}

	u, err := getUser(ctx, s.store, userID)
	if errors.Is(err, apperr.ErrNotFound) {
		return repair, nil
	}
	if err != nil {
		return repair, err
	}

	docs, err := s.store.Query(ctx, storage.GroupsCollection, storage.WhereContains(storage.FieldMembers, userID))
	if err != nil {
		return repair, fmt.Errorf("failed to list groups of user: %w", err)
	}
	member := make(map[string]bool, len(docs))
	for _, d := range docs {
		member[d.ID] = true
		if !u.InGroup(d.ID) {
			repair.Added = append(repair.Added, d.ID)
		}
	}
	for _, id := range u.GroupIDs {
		if !member[id] && !slices.Contains(repair.Removed, id) {
			repair.Removed = append(repair.Removed, id)
		}
	}

	path := storage.UserPath(userID)
	for _, id := range repair.Added {
		if err := s.store.AddToSet(ctx, path, storage.FieldGroups, id); err != nil {
			return repair, fmt.Errorf("failed to repair user groups: %w", err)
		}
	}
	for _, id := range repair.Removed {
		if err := s.store.RemoveFromSet(ctx, path, storage.FieldGroups, id); err != nil {
			return repair, fmt.Errorf("failed to repair user groups: %w", err)
		}
	}

	if repair.Changed() {
		slog.Warn("Membership repaired", "user_id", userID, "added", repair.Added, "removed", repair.Removed)
	}
	return repair, nil
}

// ReconcileAll reconciles every user and returns how many were repaired.
// A failure on one user does not stop the pass.
func (s *MembershipService) ReconcileAll(ctx context.Context) (int, error) {
	docs, err := s.store.Query(ctx, storage.UsersCollection)
	if err != nil {
		return 0, fmt.Errorf("failed to list users: %w", err)
	}

	var errs []error
	repaired := 0
	for _, d := range docs {
		if err := ctx.Err(); err != nil {
			return repaired, err
		}
		r, err := s.Reconcile(ctx, d.ID)
		if err != nil {
			slog.Error("Reconcile failed", "user_id", d.ID, "error", err)
			errs = append(errs, fmt.Errorf("user %q: %w", d.ID, err))
			continue
		}
		if r.Changed() {
			repaired++
		}
	}

	slog.Info("Reconciliation finished", "users", len(docs), "repaired", repaired, "failed", len(errs))
	return repaired, errors.Join(errs...)
}
