package api

import (
	"context"
	"errors"
	"log/slog"

	"connectrpc.com/connect"

	"github.com/mmynk/vibecheck/internal/apperr"
	"github.com/mmynk/vibecheck/internal/service"
	"github.com/mmynk/vibecheck/internal/view"
)

func (s *Server) CreateVibe(ctx context.Context, req *CreateVibeRequest) (*VibeResponse, error) {
	uid, err := s.currentUser(ctx)
	if err != nil {
		return nil, err
	}
	v, err := s.participation.CreateVibe(ctx, uid, req.GroupID, service.VibeInput{
		Emoji: req.Emoji,
		Title: req.Title,
		Date:  req.Date,
		Time:  req.Time,
		Venue: req.Venue,
	})
	if err != nil {
		return nil, err
	}
	return &VibeResponse{Vibe: view.ProjectVibe(*v, uid, nil)}, nil
}

func (s *Server) UpdateVibe(ctx context.Context, req *UpdateVibeRequest) (*VibeResponse, error) {
	uid, err := s.currentUser(ctx)
	if err != nil {
		return nil, err
	}
	v, err := s.participation.UpdateVibe(ctx, uid, req.GroupID, req.VibeID, service.VibeInput{
		Emoji: req.Emoji,
		Title: req.Title,
		Date:  req.Date,
		Time:  req.Time,
		Venue: req.Venue,
	})
	if err != nil {
		return nil, err
	}
	return &VibeResponse{Vibe: view.ProjectVibe(*v, uid, s.participation.ParticipantNames(ctx, *v))}, nil
}

func (s *Server) DeleteVibe(ctx context.Context, req *VibeRequest) (*Empty, error) {
	uid, err := s.currentUser(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.participation.DeleteVibe(ctx, uid, req.GroupID, req.VibeID); err != nil {
		return nil, err
	}
	return &Empty{}, nil
}

func (s *Server) SetParticipation(ctx context.Context, req *SetParticipationRequest) (*ParticipationResponse, error) {
	uid, err := s.currentUser(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.participation.SetParticipation(ctx, uid, req.GroupID, req.VibeID, req.Joined); err != nil {
		return nil, err
	}
	return &ParticipationResponse{Joined: req.Joined}, nil
}

func (s *Server) ToggleParticipation(ctx context.Context, req *VibeRequest) (*ParticipationResponse, error) {
	uid, err := s.currentUser(ctx)
	if err != nil {
		return nil, err
	}
	joined, err := s.participation.ToggleParticipation(ctx, uid, req.GroupID, req.VibeID)
	if err != nil {
		return nil, err
	}
	return &ParticipationResponse{Joined: joined}, nil
}

func (s *Server) ListVibes(ctx context.Context, req *GroupRequest) (*ListVibesResponse, error) {
	uid, err := s.currentUser(ctx)
	if err != nil {
		return nil, err
	}
	vibes, err := s.participation.ListVibes(ctx, uid, req.GroupID)
	if err != nil {
		return nil, err
	}
	return &ListVibesResponse{Vibes: vibes}, nil
}

func (s *Server) ListParticipantNames(ctx context.Context, req *VibeRequest) (*ParticipantNamesResponse, error) {
	uid, err := s.currentUser(ctx)
	if err != nil {
		return nil, err
	}
	names, err := s.participation.ListParticipantNames(ctx, uid, req.GroupID, req.VibeID)
	if err != nil {
		return nil, err
	}
	return &ParticipantNamesResponse{Names: names}, nil
}

// WatchGroup streams a GroupResponse whenever the group's vibes change. The
// stream ends when the client goes away or the user loses access.
func (s *Server) WatchGroup(ctx context.Context, req *connect.Request[GroupRequest], stream *connect.ServerStream[GroupResponse]) error {
	uid, err := s.currentUser(ctx)
	if err != nil {
		return connectError(err)
	}

	for gv, err := range s.participation.WatchGroup(ctx, uid, req.Msg.GroupID) {
		if err != nil {
			if apperr.Retryable(err) && ctx.Err() == nil {
				slog.Warn("Watch snapshot failed", "group_id", req.Msg.GroupID, "error", err)
				continue
			}
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return connectError(err)
		}
		if err := stream.Send(&GroupResponse{Group: gv}); err != nil {
			return err
		}
	}
	return nil
}
