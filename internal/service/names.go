package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/mmynk/vibecheck/internal/apperr"
	"github.com/mmynk/vibecheck/internal/models"
	"github.com/mmynk/vibecheck/internal/storage"
)

// UnknownUser replaces the name of a participant that cannot be resolved.
const UnknownUser = "Unknown User"

// nameCache resolves user ids to display names, reading each user once.
// It is not safe for concurrent use; create one per request.
type nameCache struct {
	store storage.Store
	names map[string]string
}

func newNameCache(store storage.Store) *nameCache {
	return &nameCache{store: store, names: make(map[string]string)}
}

// resolve returns one name per id, in order. It never fails: ids that do
// not resolve become UnknownUser.
func (c *nameCache) resolve(ctx context.Context, ids []string) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = c.name(ctx, id)
	}
	return out
}

func (c *nameCache) name(ctx context.Context, id string) string {
	if n, ok := c.names[id]; ok {
		return n
	}

	n := UnknownUser
	if storage.ValidID(id) {
		var u models.User
		err := c.store.Get(ctx, storage.UserPath(id), &u)
		switch {
		case err == nil && u.DisplayName != "":
			n = u.DisplayName
		case err == nil:
		case errors.Is(err, apperr.ErrNotFound):
			slog.Warn("Participant not found", "user_id", id)
		default:
			slog.Warn("Failed to resolve participant name", "user_id", id, "error", err)
		}
	}
	c.names[id] = n
	return n
}
