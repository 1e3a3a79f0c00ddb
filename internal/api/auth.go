package api

import (
	"context"
	"log/slog"
)

// Register creates a password credential and signs the new user in.
func (s *Server) Register(ctx context.Context, req *RegisterRequest) (*AuthResponse, error) {
	slog.Info("Register request received", "email", req.Email)

	profile, err := s.passwords.Register(ctx, req.Email, req.Name, req.Password)
	if err != nil {
		return nil, err
	}
	u, err := s.users.EnsureUser(ctx, profile)
	if err != nil {
		return nil, err
	}

	slog.Info("User registered", "user_id", u.ID)
	return s.issueToken(u)
}

// Login verifies a password credential and issues a session token.
func (s *Server) Login(ctx context.Context, req *LoginRequest) (*AuthResponse, error) {
	profile, err := s.passwords.Authenticate(ctx, req.Email, req.Password)
	if err != nil {
		slog.Warn("Login failed", "email", req.Email, "error", err)
		return nil, err
	}
	u, err := s.users.EnsureUser(ctx, profile)
	if err != nil {
		return nil, err
	}
	return s.issueToken(u)
}

// Me returns the signed-in user's profile.
func (s *Server) Me(ctx context.Context, _ *Empty) (*UserResponse, error) {
	uid, err := s.currentUser(ctx)
	if err != nil {
		return nil, err
	}
	u, err := s.users.GetUser(ctx, uid)
	if err != nil {
		return nil, err
	}
	return &UserResponse{User: u}, nil
}
