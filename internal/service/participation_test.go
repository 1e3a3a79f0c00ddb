package service

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/mmynk/vibecheck/internal/apperr"
	"github.com/mmynk/vibecheck/internal/models"
	"github.com/mmynk/vibecheck/internal/storage"
)

// setupGroup creates alice's group "Crew" with bob as a second member.
func setupGroup(t *testing.T, store storage.Store) *models.Group {
	t.Helper()
	addUsers(t, store, "alice", "bob", "mallory")
	membership := NewMembershipService(store)
	ctx := context.Background()

	g, err := membership.CreateGroup(ctx, "alice", "Crew", "")
	if err != nil {
		t.Fatalf("CreateGroup failed: %v", err)
	}
	if _, err := membership.JoinGroupByCode(ctx, "bob", g.JoinCode); err != nil {
		t.Fatalf("JoinGroupByCode failed: %v", err)
	}
	return g
}

func readVibe(t *testing.T, store storage.Store, groupID, vibeID string) models.Vibe {
	t.Helper()
	var v models.Vibe
	if err := store.Get(context.Background(), storage.VibePath(groupID, vibeID), &v); err != nil {
		t.Fatalf("Failed to read vibe: %v", err)
	}
	return v
}

func TestCreateVibe(t *testing.T) {
	store := newTestStore(t)
	g := setupGroup(t, store)
	svc := NewParticipationService(store)
	ctx := context.Background()

	t.Run("member creates vibe", func(t *testing.T) {
		v, err := svc.CreateVibe(ctx, "bob", g.ID, VibeInput{Title: " Movie Night ", Date: "2024-03-15", Time: "19:00", Venue: "<i>Odeon</i>"})
		if err != nil {
			t.Fatalf("CreateVibe failed: %v", err)
		}
		stored := readVibe(t, store, g.ID, v.ID)
		if stored.Title != "Movie Night" || stored.Emoji != models.DefaultVibeEmoji || stored.Venue != "Odeon" {
			t.Errorf("unexpected vibe: %+v", stored)
		}
		if stored.CreatorID != "bob" || stored.ParticipantIDs == nil || len(stored.ParticipantIDs) != 0 {
			t.Errorf("creator should not auto-join: %+v", stored)
		}
	})

	t.Run("validation", func(t *testing.T) {
		tests := []struct {
			name  string
			in    VibeInput
			field string
		}{
			{"blank title", VibeInput{Title: " "}, "title"},
			{"long title", VibeInput{Title: "This title is far too long to fit"}, "title"},
			{"text emoji", VibeInput{Title: "Ok", Emoji: "hi"}, "emoji"},
			{"bad date", VibeInput{Title: "Ok", Date: "03/15/2024"}, "date"},
			{"bad time", VibeInput{Title: "Ok", Time: "7pm"}, "time"},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				_, err := svc.CreateVibe(ctx, "alice", g.ID, tt.in)
				if field, ok := apperr.FieldOf(err); !ok || field != tt.field {
					t.Errorf("expected validation error on %s, got %v", tt.field, err)
				}
			})
		}
	})

	t.Run("non member is forbidden", func(t *testing.T) {
		_, err := svc.CreateVibe(ctx, "mallory", g.ID, VibeInput{Title: "Crash"})
		if !errors.Is(err, apperr.ErrForbidden) {
			t.Errorf("expected ErrForbidden, got %v", err)
		}
	})
}

func TestSetParticipation(t *testing.T) {
	store := newTestStore(t)
	g := setupGroup(t, store)
	svc := NewParticipationService(store)
	ctx := context.Background()

	v, err := svc.CreateVibe(ctx, "alice", g.ID, VibeInput{Title: "Pizza"})
	if err != nil {
		t.Fatalf("CreateVibe failed: %v", err)
	}

	t.Run("setting twice equals setting once", func(t *testing.T) {
		for i := 0; i < 2; i++ {
			if err := svc.SetParticipation(ctx, "bob", g.ID, v.ID, true); err != nil {
				t.Fatalf("SetParticipation #%d failed: %v", i+1, err)
			}
			if got := readVibe(t, store, g.ID, v.ID).ParticipantIDs; !slices.Equal(got, []string{"bob"}) {
				t.Errorf("participants after #%d: %v", i+1, got)
			}
		}
	})

	t.Run("unset twice", func(t *testing.T) {
		for i := 0; i < 2; i++ {
			if err := svc.SetParticipation(ctx, "bob", g.ID, v.ID, false); err != nil {
				t.Fatalf("SetParticipation #%d failed: %v", i+1, err)
			}
		}
		if got := readVibe(t, store, g.ID, v.ID).ParticipantIDs; len(got) != 0 {
			t.Errorf("expected no participants, got %v", got)
		}
	})

	t.Run("non member is forbidden", func(t *testing.T) {
		err := svc.SetParticipation(ctx, "mallory", g.ID, v.ID, true)
		if !errors.Is(err, apperr.ErrForbidden) {
			t.Errorf("expected ErrForbidden, got %v", err)
		}
	})

	t.Run("missing vibe", func(t *testing.T) {
		err := svc.SetParticipation(ctx, "bob", g.ID, "missing", true)
		if !errors.Is(err, apperr.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("toggle flips state", func(t *testing.T) {
		joined, err := svc.ToggleParticipation(ctx, "alice", g.ID, v.ID)
		if err != nil || !joined {
			t.Fatalf("first toggle: %v, %v", joined, err)
		}
		joined, err = svc.ToggleParticipation(ctx, "alice", g.ID, v.ID)
		if err != nil || joined {
			t.Fatalf("second toggle: %v, %v", joined, err)
		}
	})
}

func TestListParticipantNames(t *testing.T) {
	store := newTestStore(t)
	g := setupGroup(t, store)
	svc := NewParticipationService(store)
	ctx := context.Background()

	v, _ := svc.CreateVibe(ctx, "alice", g.ID, VibeInput{Title: "Board games"})
	svc.SetParticipation(ctx, "bob", g.ID, v.ID, true)
	// A participant whose user document has since been deleted.
	store.AddToSet(ctx, storage.VibePath(g.ID, v.ID), storage.FieldParticipants, "deleted-user")

	names, err := svc.ListParticipantNames(ctx, "alice", g.ID, v.ID)
	if err != nil {
		t.Fatalf("ListParticipantNames failed: %v", err)
	}
	if !slices.Equal(names, []string{"bob", UnknownUser}) {
		t.Errorf("names: %v", names)
	}

	if _, err := svc.ListParticipantNames(ctx, "mallory", g.ID, v.ID); !errors.Is(err, apperr.ErrForbidden) {
		t.Errorf("expected ErrForbidden, got %v", err)
	}
}

func TestUpdateAndDeleteVibe(t *testing.T) {
	store := newTestStore(t)
	g := setupGroup(t, store)
	svc := NewParticipationService(store)
	ctx := context.Background()

	v, _ := svc.CreateVibe(ctx, "alice", g.ID, VibeInput{Title: "Hike", Date: "2024-05-01"})

	t.Run("only the creator may edit", func(t *testing.T) {
		_, err := svc.UpdateVibe(ctx, "bob", g.ID, v.ID, VibeInput{Title: "Mine"})
		if !errors.Is(err, apperr.ErrForbidden) {
			t.Errorf("expected ErrForbidden, got %v", err)
		}
	})

	t.Run("creator edits", func(t *testing.T) {
		svc.SetParticipation(ctx, "bob", g.ID, v.ID, true)
		got, err := svc.UpdateVibe(ctx, "alice", g.ID, v.ID, VibeInput{Title: "Long hike", Emoji: "🥾"})
		if err != nil {
			t.Fatalf("UpdateVibe failed: %v", err)
		}
		stored := readVibe(t, store, g.ID, v.ID)
		if stored.Title != "Long hike" || stored.Emoji != "🥾" || stored.Date != "" || got.Title != "Long hike" {
			t.Errorf("unexpected vibe: %+v", stored)
		}
		if !slices.Equal(stored.ParticipantIDs, []string{"bob"}) {
			t.Errorf("edit must keep participants, got %v", stored.ParticipantIDs)
		}
	})

	t.Run("cleared fields are removed", func(t *testing.T) {
		if _, err := svc.UpdateVibe(ctx, "alice", g.ID, v.ID, VibeInput{Title: "Hike", Date: "2024-05-02", Venue: "Trailhead"}); err != nil {
			t.Fatalf("UpdateVibe failed: %v", err)
		}
		if _, err := svc.UpdateVibe(ctx, "alice", g.ID, v.ID, VibeInput{Title: "Hike"}); err != nil {
			t.Fatalf("UpdateVibe failed: %v", err)
		}
		var raw map[string]any
		if err := store.Get(ctx, storage.VibePath(g.ID, v.ID), &raw); err != nil {
			t.Fatal(err)
		}
		for _, field := range []string{"date", "time", "venue"} {
			if _, ok := raw[field]; ok {
				t.Errorf("%s stored after being cleared: %v", field, raw[field])
			}
		}
	})

	t.Run("only the creator may delete", func(t *testing.T) {
		if err := svc.DeleteVibe(ctx, "bob", g.ID, v.ID); !errors.Is(err, apperr.ErrForbidden) {
			t.Errorf("expected ErrForbidden, got %v", err)
		}
		if err := svc.DeleteVibe(ctx, "alice", g.ID, v.ID); err != nil {
			t.Fatalf("DeleteVibe failed: %v", err)
		}
		if err := svc.DeleteVibe(ctx, "alice", g.ID, v.ID); !errors.Is(err, apperr.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestListVibes(t *testing.T) {
	store := newTestStore(t)
	g := setupGroup(t, store)
	svc := NewParticipationService(store)
	ctx := context.Background()

	first, _ := svc.CreateVibe(ctx, "alice", g.ID, VibeInput{Title: "First", Date: "2024-03-15", Time: "14:30"})
	time.Sleep(time.Millisecond)
	svc.CreateVibe(ctx, "bob", g.ID, VibeInput{Title: "Second"})
	svc.SetParticipation(ctx, "bob", g.ID, first.ID, true)

	vibes, err := svc.ListVibes(ctx, "bob", g.ID)
	if err != nil {
		t.Fatalf("ListVibes failed: %v", err)
	}
	if len(vibes) != 2 || vibes[0].Title != "First" || vibes[1].Title != "Second" {
		t.Fatalf("unexpected vibes: %+v", vibes)
	}
	if !vibes[0].Joined || vibes[1].Joined {
		t.Errorf("joined flags: %v, %v", vibes[0].Joined, vibes[1].Joined)
	}
	if vibes[0].Timing != "Fri, Mar 15 at 2:30 PM" || !slices.Equal(vibes[0].ParticipantNames, []string{"bob"}) {
		t.Errorf("projection: %+v", vibes[0])
	}
	if vibes[0].GroupID != g.ID {
		t.Errorf("group id: %q", vibes[0].GroupID)
	}
}

func TestWatchGroup(t *testing.T) {
	store := newTestStore(t)
	g := setupGroup(t, store)
	svc := NewParticipationService(store)
	membership := NewMembershipService(store)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	t.Run("emits a view per change", func(t *testing.T) {
		var counts []int
		for gv, err := range svc.WatchGroup(ctx, "bob", g.ID) {
			if err != nil {
				t.Fatalf("WatchGroup error: %v", err)
			}
			counts = append(counts, gv.VibeCount)
			if len(counts) == 1 {
				if _, err := svc.CreateVibe(ctx, "alice", g.ID, VibeInput{Title: "Tacos"}); err != nil {
					t.Fatal(err)
				}
				continue
			}
			break
		}
		if !slices.Equal(counts, []int{0, 1}) {
			t.Errorf("vibe counts: %v", counts)
		}
	})

	t.Run("non member is rejected", func(t *testing.T) {
		for _, err := range svc.WatchGroup(ctx, "mallory", g.ID) {
			if !errors.Is(err, apperr.ErrForbidden) {
				t.Errorf("expected ErrForbidden, got %v", err)
			}
		}
	})

	t.Run("ends after leaving", func(t *testing.T) {
		var errs []error
		for _, err := range svc.WatchGroup(ctx, "bob", g.ID) {
			if err != nil {
				errs = append(errs, err)
				continue
			}
			if err := membership.LeaveGroup(ctx, "bob", g.ID); err != nil {
				t.Fatal(err)
			}
			// Leaving does not touch the vibes; a new vibe triggers the next view.
			if _, err := svc.CreateVibe(ctx, "alice", g.ID, VibeInput{Title: "After"}); err != nil {
				t.Fatal(err)
			}
		}
		if len(errs) != 1 || !errors.Is(errs[0], apperr.ErrForbidden) {
			t.Errorf("expected a single ErrForbidden, got %v", errs)
		}
	})
}

func TestUpdateVibe_DeletedMeanwhile(t *testing.T) {
	base := newTestStore(t)
	g := setupGroup(t, base)
	ctx := context.Background()

	v, err := NewParticipationService(base).CreateVibe(ctx, "alice", g.ID, VibeInput{Title: "Hike"})
	if err != nil {
		t.Fatal(err)
	}
	path := storage.VibePath(g.ID, v.ID)
	store := &afterGet{Store: base, path: path, hook: func() { base.Delete(ctx, path) }}

	_, err = NewParticipationService(store).UpdateVibe(ctx, "alice", g.ID, v.ID, VibeInput{Title: "Long hike"})
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	var out models.Vibe
	if err := base.Get(ctx, path, &out); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("update recreated the deleted vibe: %+v, %v", out, err)
	}
}
