package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mmynk/vibecheck/internal/apperr"
	"github.com/mmynk/vibecheck/internal/joincode"
	"github.com/mmynk/vibecheck/internal/models"
	"github.com/mmynk/vibecheck/internal/storage"
	"github.com/mmynk/vibecheck/internal/validate"
)

// DefaultCodeAttempts bounds join code regeneration on collision.
const DefaultCodeAttempts = 10

var errCodeTaken = errors.New("join code taken")

var now = func() time.Time { return time.Now().UTC() }

// MembershipService owns the membership edge between users and groups.
//
// The edge is stored on both sides (Group.MemberIDs and User.GroupIDs).
// Every mutation writes both sides in one storage.RunAtomic call, group
// side first. The group side is authoritative: Reconcile repairs the user
// side from it.
type MembershipService struct {
	store    storage.Store
	codes    joincode.Source
	resolver *joincode.Resolver
	attempts int
}

// MembershipOption configures a MembershipService.
type MembershipOption func(*MembershipService)

// WithCodeSource replaces the random join code generator.
func WithCodeSource(src joincode.Source) MembershipOption {
	return func(s *MembershipService) { s.codes = src }
}

// WithCodeAttempts sets how many codes CreateGroup tries before giving up.
func WithCodeAttempts(n int) MembershipOption {
	return func(s *MembershipService) {
		if n > 0 {
			s.attempts = n
		}
	}
}

// NewMembershipService creates a MembershipService backed by store.
func NewMembershipService(store storage.Store, opts ...MembershipOption) *MembershipService {
	s := &MembershipService{
		store:    store,
		codes:    joincode.Generator{},
		resolver: joincode.NewResolver(store),
		attempts: DefaultCodeAttempts,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateGroup creates a group owned by ownerID with a fresh join code.
func (s *MembershipService) CreateGroup(ctx context.Context, ownerID, name, icon string) (*models.Group, error) {
	slog.Info("CreateGroup request received", "user_id", ownerID, "name", name)

	if err := checkID("userId", ownerID); err != nil {
		return nil, err
	}
	name, err := validate.GroupName(name)
	if err != nil {
		return nil, err
	}
	icon, err = validate.GroupIcon(icon)
	if err != nil {
		return nil, err
	}

	for attempt := 1; attempt <= s.attempts; attempt++ {
		code := joincode.Normalize(s.codes.Generate())
		if !joincode.Valid(code) {
			continue
		}

		// Codes held by groups created before reservations existed only show
		// up through the resolver.
		existing, err := s.resolver.Resolve(ctx, code)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			slog.Debug("Join code collision", "code", code, "attempt", attempt)
			continue
		}

		g, err := s.createWithCode(ctx, ownerID, name, icon, code)
		if errors.Is(err, errCodeTaken) || errors.Is(err, storage.ErrAlreadyExists) {
			slog.Debug("Join code collision", "code", code, "attempt", attempt)
			continue
		}
		if err != nil {
			slog.Error("CreateGroup failed", "user_id", ownerID, "error", err)
			return nil, err
		}

		slog.Info("Group created", "group_id", g.ID, "user_id", ownerID, "code", code)
		return g, nil
	}

	slog.Error("CreateGroup failed", "user_id", ownerID, "attempts", s.attempts, "error", apperr.ErrCodeSpaceExhausted)
	return nil, fmt.Errorf("no unused join code after %d attempts: %w", s.attempts, apperr.ErrCodeSpaceExhausted)
}

func (s *MembershipService) createWithCode(ctx context.Context, ownerID, name, icon, code string) (*models.Group, error) {
	g := &models.Group{
		ID:        storage.NewID(),
		Name:      name,
		Icon:      icon,
		JoinCode:  code,
		OwnerID:   ownerID,
		MemberIDs: []string{ownerID},
		CreatedAt: now(),
	}

	err := storage.RunAtomic(ctx, s.store, func(tx storage.Tx) error {
		var held models.JoinCode
		switch err := tx.Get(storage.JoinCodePath(code), &held); {
		case err == nil:
			return errCodeTaken
		case !errors.Is(err, apperr.ErrNotFound):
			return fmt.Errorf("failed to read join code: %w", err)
		}
		owner, err := getUserTx(tx, ownerID)
		if err != nil {
			return err
		}
		if owner == nil {
			return apperr.NotFound("user", ownerID)
		}

		if err := tx.Create(storage.JoinCodePath(code), models.JoinCode{GroupID: g.ID, CreatedAt: g.CreatedAt}); err != nil {
			return err
		}
		if err := tx.Create(storage.GroupPath(g.ID), g); err != nil {
			return err
		}
		return tx.AddToSet(storage.UserPath(ownerID), storage.FieldGroups, g.ID)
	})
	if err != nil {
		return nil, err
	}
	return g, nil
}

// JoinGroupByCode adds userID to the group holding code.
// Returns ErrAlreadyMember without writing anything when userID is already
// a member.
func (s *MembershipService) JoinGroupByCode(ctx context.Context, userID, code string) (*models.Group, error) {
	slog.Info("JoinGroupByCode request received", "user_id", userID, "code", code)

	if err := checkID("userId", userID); err != nil {
		return nil, err
	}
	code = joincode.Normalize(code)
	if code == "" {
		return nil, apperr.Invalid("code", "required")
	}

	found, err := s.resolver.Resolve(ctx, code)
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, apperr.NotFound("join code", code)
	}
	if found.HasMember(userID) {
		return nil, fmt.Errorf("group %q: %w", found.ID, apperr.ErrAlreadyMember)
	}

	var joined *models.Group
	err = storage.RunAtomic(ctx, s.store, func(tx storage.Tx) error {
		g, err := getGroupTx(tx, found.ID)
		if err != nil {
			return err
		}
		if g.HasMember(userID) {
			return fmt.Errorf("group %q: %w", g.ID, apperr.ErrAlreadyMember)
		}
		u, err := getUserTx(tx, userID)
		if err != nil {
			return err
		}
		if u == nil {
			return apperr.NotFound("user", userID)
		}

		if err := tx.AddToSet(storage.GroupPath(g.ID), storage.FieldMembers, userID); err != nil {
			return err
		}
		if err := tx.AddToSet(storage.UserPath(userID), storage.FieldGroups, g.ID); err != nil {
			return err
		}
		g.MemberIDs = append(g.MemberIDs, userID)
		joined = g
		return nil
	})
	if err != nil {
		if !errors.Is(err, apperr.ErrAlreadyMember) {
			slog.Error("JoinGroupByCode failed", "user_id", userID, "group_id", found.ID, "error", err)
		}
		return nil, err
	}

	slog.Info("Group joined", "group_id", joined.ID, "user_id", userID)
	return joined, nil
}

// LeaveGroup removes the membership edge. Leaving a group the user is not
// in, or one that no longer exists, succeeds without changes.
//
// The last member leaving deletes the group with its join code and vibes.
// An owner leaving hands ownership to the first remaining member.
func (s *MembershipService) LeaveGroup(ctx context.Context, userID, groupID string) error {
	slog.Info("LeaveGroup request received", "user_id", userID, "group_id", groupID)

	if err := checkID("userId", userID); err != nil {
		return err
	}
	if err := checkID("groupId", groupID); err != nil {
		return err
	}

	var deleted bool
	err := storage.RunAtomic(ctx, s.store, func(tx storage.Tx) error {
		deleted = false

		g, err := getGroupTx(tx, groupID)
		if errors.Is(err, apperr.ErrNotFound) {
			g = nil
		} else if err != nil {
			return err
		}
		u, err := getUserTx(tx, userID)
		if err != nil {
			return err
		}

		var remaining []string
		var reservation *models.JoinCode
		if g != nil && g.HasMember(userID) {
			remaining = without(g.MemberIDs, userID)
			if len(remaining) == 0 {
				reservation, err = readReservation(tx, g.JoinCode)
				if err != nil {
					return err
				}
			}
		}

		if g != nil && g.HasMember(userID) {
			switch {
			case len(remaining) == 0:
				if reservation != nil && reservation.GroupID == groupID {
					if err := tx.Delete(storage.JoinCodePath(g.JoinCode)); err != nil {
						return err
					}
				}
				if err := tx.Delete(storage.GroupPath(groupID)); err != nil {
					return err
				}
				deleted = true
			default:
				// Members only ever change through set operations, so a join
				// landing between the read and this write is kept.
				if err := tx.RemoveFromSet(storage.GroupPath(groupID), storage.FieldMembers, userID); err != nil {
					return err
				}
				if g.OwnerID == userID {
					update := storage.Fields{storage.FieldOwner: remaining[0]}
					if err := tx.Write(storage.GroupPath(groupID), update, storage.Update); err != nil {
						return err
					}
				}
			}
		}

		if u != nil && u.InGroup(groupID) {
			return tx.RemoveFromSet(storage.UserPath(userID), storage.FieldGroups, groupID)
		}
		return nil
	})
	if err != nil {
		slog.Error("LeaveGroup failed", "user_id", userID, "group_id", groupID, "error", err)
		return err
	}

	if deleted {
		slog.Info("Last member left, group deleted", "group_id", groupID, "user_id", userID)
		return s.purgeVibes(ctx, groupID)
	}
	slog.Info("Group left", "group_id", groupID, "user_id", userID)
	return nil
}

// DeleteGroup deletes a group, its join code, its vibes and every member's
// edge. Only the owner may delete a group.
func (s *MembershipService) DeleteGroup(ctx context.Context, actorID, groupID string) error {
	slog.Info("DeleteGroup request received", "user_id", actorID, "group_id", groupID)

	if err := checkID("groupId", groupID); err != nil {
		return err
	}

	err := storage.RunAtomic(ctx, s.store, func(tx storage.Tx) error {
		g, err := getGroupTx(tx, groupID)
		if err != nil {
			return err
		}
		if g.OwnerID != actorID {
			return fmt.Errorf("only the owner can delete group %q: %w", groupID, apperr.ErrForbidden)
		}

		var members []*models.User
		for _, id := range g.MemberIDs {
			u, err := getUserTx(tx, id)
			if err != nil {
				return err
			}
			if u != nil && u.InGroup(groupID) {
				members = append(members, u)
			}
		}
		reservation, err := readReservation(tx, g.JoinCode)
		if err != nil {
			return err
		}

		if reservation != nil && reservation.GroupID == groupID {
			if err := tx.Delete(storage.JoinCodePath(g.JoinCode)); err != nil {
				return err
			}
		}
		if err := tx.Delete(storage.GroupPath(groupID)); err != nil {
			return err
		}
		for _, u := range members {
			if err := tx.RemoveFromSet(storage.UserPath(u.ID), storage.FieldGroups, groupID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if !errors.Is(err, apperr.ErrForbidden) && !errors.Is(err, apperr.ErrNotFound) {
			slog.Error("DeleteGroup failed", "user_id", actorID, "group_id", groupID, "error", err)
		}
		return err
	}

	slog.Info("Group deleted", "group_id", groupID, "user_id", actorID)
	return s.purgeVibes(ctx, groupID)
}

// RenameGroup changes a group's name and icon. Any member may rename a
// group. A blank icon keeps the current one.
func (s *MembershipService) RenameGroup(ctx context.Context, actorID, groupID, name, icon string) (*models.Group, error) {
	slog.Info("RenameGroup request received", "user_id", actorID, "group_id", groupID, "name", name)

	name, err := validate.GroupName(name)
	if err != nil {
		return nil, err
	}
	g, err := requireMember(ctx, s.store, actorID, groupID)
	if err != nil {
		return nil, err
	}
	if validate.Clean(icon) != "" {
		if icon, err = validate.GroupIcon(icon); err != nil {
			return nil, err
		}
	} else {
		icon = g.Icon
	}

	update := storage.Fields{"name": name, "icon": icon}
	err = s.store.Write(ctx, storage.GroupPath(groupID), update, storage.Update)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, apperr.NotFound("group", groupID)
	}
	if err != nil {
		slog.Error("RenameGroup failed", "group_id", groupID, "error", err)
		return nil, fmt.Errorf("failed to rename group: %w", err)
	}

	g.Name, g.Icon = name, icon
	slog.Info("Group renamed", "group_id", groupID, "user_id", actorID)
	return g, nil
}

// GetGroup returns a group the actor belongs to.
func (s *MembershipService) GetGroup(ctx context.Context, actorID, groupID string) (*models.Group, error) {
	return requireMember(ctx, s.store, actorID, groupID)
}

// ListGroupsFor resolves the user's group ids in order. Ids that no longer
// resolve, or whose group no longer lists the user, are dropped.
func (s *MembershipService) ListGroupsFor(ctx context.Context, userID string) ([]models.Group, error) {
	u, err := getUser(ctx, s.store, userID)
	if errors.Is(err, apperr.ErrNotFound) {
		return []models.Group{}, nil
	}
	if err != nil {
		return nil, err
	}

	groups := make([]models.Group, 0, len(u.GroupIDs))
	seen := make(map[string]bool, len(u.GroupIDs))
	for _, id := range u.GroupIDs {
		if seen[id] || !storage.ValidID(id) {
			continue
		}
		seen[id] = true

		g, err := getGroup(ctx, s.store, id)
		if errors.Is(err, apperr.ErrNotFound) {
			slog.Warn("Dropping stale group id", "user_id", userID, "group_id", id)
			continue
		}
		if err != nil {
			return nil, err
		}
		if !g.HasMember(userID) {
			slog.Warn("Dropping group that no longer lists user", "user_id", userID, "group_id", id)
			continue
		}
		groups = append(groups, *g)
	}
	return groups, nil
}

// purgeVibes deletes every vibe of a deleted group.
func (s *MembershipService) purgeVibes(ctx context.Context, groupID string) error {
	docs, err := s.store.Query(ctx, storage.VibesCollection(groupID))
	if err != nil {
		slog.Error("Failed to list vibes of deleted group", "group_id", groupID, "error", err)
		return fmt.Errorf("failed to list vibes: %w", err)
	}
	for _, d := range docs {
		if err := s.store.Delete(ctx, d.Path); err != nil {
			slog.Error("Failed to delete vibe of deleted group", "group_id", groupID, "vibe_id", d.ID, "error", err)
			return fmt.Errorf("failed to delete vibe: %w", err)
		}
	}
	if len(docs) > 0 {
		slog.Info("Vibes purged", "group_id", groupID, "count", len(docs))
	}
	return nil
}

// readReservation returns the reservation of code, or nil when there is none.
func readReservation(tx storage.Tx, code string) (*models.JoinCode, error) {
	if !joincode.Valid(code) {
		return nil, nil
	}
	var r models.JoinCode
	err := tx.Get(storage.JoinCodePath(code), &r)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read join code: %w", err)
	}
	return &r, nil
}
