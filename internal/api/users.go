package api

import "context"

func (s *Server) GetProfile(ctx context.Context, _ *Empty) (*UserResponse, error) {
	return s.Me(ctx, nil)
}

func (s *Server) UpdateProfile(ctx context.Context, req *UpdateProfileRequest) (*UserResponse, error) {
	uid, err := s.currentUser(ctx)
	if err != nil {
		return nil, err
	}
	u, err := s.users.UpdateProfile(ctx, uid, req.Name, req.PhotoURL)
	if err != nil {
		return nil, err
	}
	return &UserResponse{User: u}, nil
}

func (s *Server) SetAvailability(ctx context.Context, req *SetAvailabilityRequest) (*Empty, error) {
	uid, err := s.currentUser(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.users.SetAvailability(ctx, uid, req.Available); err != nil {
		return nil, err
	}
	return &Empty{}, nil
}

func (s *Server) ListFriends(ctx context.Context, _ *Empty) (*ListFriendsResponse, error) {
	uid, err := s.currentUser(ctx)
	if err != nil {
		return nil, err
	}
	friends, err := s.users.ListFriends(ctx, uid)
	if err != nil {
		return nil, err
	}
	return &ListFriendsResponse{Friends: friends}, nil
}
