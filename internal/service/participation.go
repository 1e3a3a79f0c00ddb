package service

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"

	"github.com/mmynk/vibecheck/internal/apperr"
	"github.com/mmynk/vibecheck/internal/models"
	"github.com/mmynk/vibecheck/internal/storage"
	"github.com/mmynk/vibecheck/internal/validate"
	"github.com/mmynk/vibecheck/internal/view"
)

// VibeInput holds the user-entered fields of a vibe.
type VibeInput struct {
	Emoji string
	Title string
	Date  string
	Time  string
	Venue string
}

func (in VibeInput) validate() (VibeInput, error) {
	var out VibeInput
	var err error
	if out.Title, err = validate.VibeTitle(in.Title); err != nil {
		return out, err
	}
	if out.Emoji, err = validate.VibeEmoji(in.Emoji); err != nil {
		return out, err
	}
	if out.Date, err = validate.Date(in.Date); err != nil {
		return out, err
	}
	if out.Time, err = validate.Time(in.Time); err != nil {
		return out, err
	}
	if out.Venue, err = validate.Venue(in.Venue); err != nil {
		return out, err
	}
	return out, nil
}

// ParticipationService manages vibes and who takes part in them.
// Every operation requires the caller to be a member of the vibe's group.
type ParticipationService struct {
	store storage.Store
}

// NewParticipationService creates a ParticipationService backed by store.
func NewParticipationService(store storage.Store) *ParticipationService {
	return &ParticipationService{store: store}
}

// SetParticipation makes userID's participation in the vibe exactly desired.
// Repeating a call changes nothing.
func (s *ParticipationService) SetParticipation(ctx context.Context, userID, groupID, vibeID string, desired bool) error {
	if _, err := requireMember(ctx, s.store, userID, groupID); err != nil {
		return err
	}
	return s.setParticipation(ctx, userID, groupID, vibeID, desired)
}

func (s *ParticipationService) setParticipation(ctx context.Context, userID, groupID, vibeID string, desired bool) error {
	if err := checkID("vibeId", vibeID); err != nil {
		return err
	}

	path := storage.VibePath(groupID, vibeID)
	var err error
	if desired {
		err = s.store.AddToSet(ctx, path, storage.FieldParticipants, userID)
	} else {
		err = s.store.RemoveFromSet(ctx, path, storage.FieldParticipants, userID)
	}
	if errors.Is(err, apperr.ErrNotFound) {
		return apperr.NotFound("vibe", vibeID)
	}
	if err != nil {
		slog.Error("SetParticipation failed", "user_id", userID, "vibe_id", vibeID, "error", err)
		return fmt.Errorf("failed to update participation: %w", err)
	}

	slog.Info("Participation set", "user_id", userID, "group_id", groupID, "vibe_id", vibeID, "joined", desired)
	return nil
}

// ToggleParticipation flips userID's participation and returns the new
// state. It reads before writing; two concurrent toggles converge on either
// state.
func (s *ParticipationService) ToggleParticipation(ctx context.Context, userID, groupID, vibeID string) (bool, error) {
	if _, err := requireMember(ctx, s.store, userID, groupID); err != nil {
		return false, err
	}
	v, err := getVibe(ctx, s.store, groupID, vibeID)
	if err != nil {
		return false, err
	}

	joined := !v.HasParticipant(userID)
	if err := s.setParticipation(ctx, userID, groupID, vibeID, joined); err != nil {
		return false, err
	}
	return joined, nil
}

// ListParticipantNames returns the display names of the vibe's
// participants in order, using UnknownUser for ids that do not resolve.
func (s *ParticipationService) ListParticipantNames(ctx context.Context, userID, groupID, vibeID string) ([]string, error) {
	if _, err := requireMember(ctx, s.store, userID, groupID); err != nil {
		return nil, err
	}
	v, err := getVibe(ctx, s.store, groupID, vibeID)
	if err != nil {
		return nil, err
	}
	return s.ParticipantNames(ctx, *v), nil
}

// ParticipantNames resolves the names of v's participants. It never fails.
func (s *ParticipationService) ParticipantNames(ctx context.Context, v models.Vibe) []string {
	return newNameCache(s.store).resolve(ctx, v.ParticipantIDs)
}

// CreateVibe proposes a new vibe in the group. The creator does not join it
// automatically.
func (s *ParticipationService) CreateVibe(ctx context.Context, userID, groupID string, in VibeInput) (*models.Vibe, error) {
	slog.Info("CreateVibe request received", "user_id", userID, "group_id", groupID, "title", in.Title)

	in, err := in.validate()
	if err != nil {
		return nil, err
	}
	if _, err := requireMember(ctx, s.store, userID, groupID); err != nil {
		return nil, err
	}

	v := &models.Vibe{
		GroupID:        groupID,
		Emoji:          in.Emoji,
		Title:          in.Title,
		Date:           in.Date,
		Time:           in.Time,
		Venue:          in.Venue,
		CreatorID:      userID,
		ParticipantIDs: []string{},
		CreatedAt:      now(),
	}
	id, err := s.store.CreateWithAutoID(ctx, storage.VibesCollection(groupID), v)
	if err != nil {
		slog.Error("CreateVibe failed", "user_id", userID, "group_id", groupID, "error", err)
		return nil, fmt.Errorf("failed to create vibe: %w", err)
	}
	v.ID = id

	slog.Info("Vibe created", "vibe_id", id, "group_id", groupID, "user_id", userID)
	return v, nil
}

// UpdateVibe replaces the user-entered fields of a vibe. Only its creator
// may edit it.
func (s *ParticipationService) UpdateVibe(ctx context.Context, userID, groupID, vibeID string, in VibeInput) (*models.Vibe, error) {
	slog.Info("UpdateVibe request received", "user_id", userID, "group_id", groupID, "vibe_id", vibeID)

	in, err := in.validate()
	if err != nil {
		return nil, err
	}
	v, err := s.ownVibe(ctx, userID, groupID, vibeID)
	if err != nil {
		return nil, err
	}

	// Cleared optional fields are removed, matching how CreateVibe stores them.
	update := storage.Fields{
		"emoji": in.Emoji,
		"title": in.Title,
		"date":  optional(in.Date),
		"time":  optional(in.Time),
		"venue": optional(in.Venue),
	}
	err = s.store.Write(ctx, storage.VibePath(groupID, vibeID), update, storage.Update)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, apperr.NotFound("vibe", vibeID)
	}
	if err != nil {
		slog.Error("UpdateVibe failed", "vibe_id", vibeID, "error", err)
		return nil, fmt.Errorf("failed to update vibe: %w", err)
	}

	v.Emoji, v.Title, v.Date, v.Time, v.Venue = in.Emoji, in.Title, in.Date, in.Time, in.Venue
	slog.Info("Vibe updated", "vibe_id", vibeID, "group_id", groupID)
	return v, nil
}

// DeleteVibe removes a vibe. Only its creator may delete it.
func (s *ParticipationService) DeleteVibe(ctx context.Context, userID, groupID, vibeID string) error {
	slog.Info("DeleteVibe request received", "user_id", userID, "group_id", groupID, "vibe_id", vibeID)

	if _, err := s.ownVibe(ctx, userID, groupID, vibeID); err != nil {
		return err
	}
	if err := s.store.Delete(ctx, storage.VibePath(groupID, vibeID)); err != nil {
		slog.Error("DeleteVibe failed", "vibe_id", vibeID, "error", err)
		return fmt.Errorf("failed to delete vibe: %w", err)
	}

	slog.Info("Vibe deleted", "vibe_id", vibeID, "group_id", groupID)
	return nil
}

// optional returns v, or storage.DeleteField when v is blank.
func optional(v string) any {
	if v == "" {
		return storage.DeleteField
	}
	return v
}

func (s *ParticipationService) ownVibe(ctx context.Context, userID, groupID, vibeID string) (*models.Vibe, error) {
	if _, err := requireMember(ctx, s.store, userID, groupID); err != nil {
		return nil, err
	}
	v, err := getVibe(ctx, s.store, groupID, vibeID)
	if err != nil {
		return nil, err
	}
	if v.CreatorID != userID {
		return nil, fmt.Errorf("only the creator can change vibe %q: %w", vibeID, apperr.ErrForbidden)
	}
	return v, nil
}

// ListVibes returns the group's vibes as seen by userID, oldest first.
func (s *ParticipationService) ListVibes(ctx context.Context, userID, groupID string) ([]view.VibeView, error) {
	if _, err := requireMember(ctx, s.store, userID, groupID); err != nil {
		return nil, err
	}
	docs, err := s.store.Query(ctx, storage.VibesCollection(groupID))
	if err != nil {
		return nil, fmt.Errorf("failed to list vibes: %w", err)
	}
	return projectVibes(ctx, newNameCache(s.store), decodeVibes(docs), userID), nil
}

// WatchGroup streams the group as seen by userID: one GroupView when the
// subscription starts and another after every change to its vibes. The
// sequence ends with an error once the user is no longer a member or the
// group is gone.
func (s *ParticipationService) WatchGroup(ctx context.Context, userID, groupID string) iter.Seq2[view.GroupView, error] {
	return func(yield func(view.GroupView, error) bool) {
		if _, err := requireMember(ctx, s.store, userID, groupID); err != nil {
			yield(view.GroupView{}, err)
			return
		}

		for snap, err := range s.store.Watch(ctx, storage.VibesCollection(groupID)) {
			if err != nil {
				if !yield(view.GroupView{}, err) {
					return
				}
				continue
			}

			g, err := requireMember(ctx, s.store, userID, groupID)
			if err != nil {
				yield(view.GroupView{}, err)
				return
			}
			vibes := projectVibes(ctx, newNameCache(s.store), decodeVibes(snap.Docs), userID)
			if !yield(view.ProjectGroup(*g, vibes), nil) {
				return
			}
		}
	}
}

// projectVibes sorts vibes and projects them for userID.
func projectVibes(ctx context.Context, names *nameCache, vibes []models.Vibe, userID string) []view.VibeView {
	view.SortVibes(vibes)
	out := make([]view.VibeView, 0, len(vibes))
	for _, v := range vibes {
		out = append(out, view.ProjectVibe(v, userID, names.resolve(ctx, v.ParticipantIDs)))
	}
	return out
}
