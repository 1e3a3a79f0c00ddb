package api

import (
	"context"

	"github.com/mmynk/vibecheck/internal/models"
	"github.com/mmynk/vibecheck/internal/view"
)

func (s *Server) CreateGroup(ctx context.Context, req *CreateGroupRequest) (*GroupResponse, error) {
	uid, err := s.currentUser(ctx)
	if err != nil {
		return nil, err
	}
	g, err := s.membership.CreateGroup(ctx, uid, req.Name, req.Icon)
	if err != nil {
		return nil, err
	}
	return &GroupResponse{Group: view.ProjectGroup(*g, nil)}, nil
}

func (s *Server) JoinGroup(ctx context.Context, req *JoinGroupRequest) (*GroupResponse, error) {
	uid, err := s.currentUser(ctx)
	if err != nil {
		return nil, err
	}
	g, err := s.membership.JoinGroupByCode(ctx, uid, req.Code)
	if err != nil {
		return nil, err
	}
	return s.groupWithVibes(ctx, uid, g)
}

// LeaveGroup succeeds whether or not the user was a member.
func (s *Server) LeaveGroup(ctx context.Context, req *GroupRequest) (*Empty, error) {
	uid, err := s.currentUser(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.membership.LeaveGroup(ctx, uid, req.GroupID); err != nil {
		return nil, err
	}
	return &Empty{}, nil
}

func (s *Server) UpdateGroup(ctx context.Context, req *UpdateGroupRequest) (*GroupResponse, error) {
	uid, err := s.currentUser(ctx)
	if err != nil {
		return nil, err
	}
	g, err := s.membership.RenameGroup(ctx, uid, req.GroupID, req.Name, req.Icon)
	if err != nil {
		return nil, err
	}
	return s.groupWithVibes(ctx, uid, g)
}

func (s *Server) DeleteGroup(ctx context.Context, req *GroupRequest) (*Empty, error) {
	uid, err := s.currentUser(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.membership.DeleteGroup(ctx, uid, req.GroupID); err != nil {
		return nil, err
	}
	return &Empty{}, nil
}

func (s *Server) GetGroup(ctx context.Context, req *GroupRequest) (*GroupResponse, error) {
	uid, err := s.currentUser(ctx)
	if err != nil {
		return nil, err
	}
	g, err := s.membership.GetGroup(ctx, uid, req.GroupID)
	if err != nil {
		return nil, err
	}
	return s.groupWithVibes(ctx, uid, g)
}

// ListGroups returns the user's groups without their vibes; Home includes them.
func (s *Server) ListGroups(ctx context.Context, _ *Empty) (*ListGroupsResponse, error) {
	uid, err := s.currentUser(ctx)
	if err != nil {
		return nil, err
	}
	groups, err := s.membership.ListGroupsFor(ctx, uid)
	if err != nil {
		return nil, err
	}
	out := make([]view.GroupView, 0, len(groups))
	for _, g := range groups {
		out = append(out, view.ProjectGroup(g, nil))
	}
	return &ListGroupsResponse{Groups: out}, nil
}

func (s *Server) Home(ctx context.Context, _ *Empty) (*ListGroupsResponse, error) {
	uid, err := s.currentUser(ctx)
	if err != nil {
		return nil, err
	}
	groups, err := s.feed.Home(ctx, uid)
	if err != nil {
		return nil, err
	}
	return &ListGroupsResponse{Groups: groups}, nil
}

func (s *Server) groupWithVibes(ctx context.Context, uid string, g *models.Group) (*GroupResponse, error) {
	vibes, err := s.participation.ListVibes(ctx, uid, g.ID)
	if err != nil {
		return nil, err
	}
	return &GroupResponse{Group: view.ProjectGroup(*g, vibes)}, nil
}
