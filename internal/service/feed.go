package service

import (
	"context"
	"fmt"

	"github.com/mmynk/vibecheck/internal/storage"
	"github.com/mmynk/vibecheck/internal/view"
)

// FeedService assembles the home screen: every group of a user with its vibes.
type FeedService struct {
	store      storage.Store
	membership *MembershipService
}

// NewFeedService creates a FeedService.
func NewFeedService(store storage.Store, membership *MembershipService) *FeedService {
	return &FeedService{store: store, membership: membership}
}

// Home returns the user's groups, in the order the user joined them, each
// with its vibes projected for the user.
func (s *FeedService) Home(ctx context.Context, userID string) ([]view.GroupView, error) {
	groups, err := s.membership.ListGroupsFor(ctx, userID)
	if err != nil {
		return nil, err
	}

	names := newNameCache(s.store)
	out := make([]view.GroupView, 0, len(groups))
	for _, g := range groups {
		docs, err := s.store.Query(ctx, storage.VibesCollection(g.ID))
		if err != nil {
			return nil, fmt.Errorf("failed to list vibes of group %q: %w", g.ID, err)
		}
		out = append(out, view.ProjectGroup(g, projectVibes(ctx, names, decodeVibes(docs), userID)))
	}
	return out, nil
}
