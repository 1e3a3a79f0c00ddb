package api

import (
	"context"
	"net/http"

	"connectrpc.com/connect"

	"github.com/mmynk/vibecheck/internal/identity"
	"github.com/mmynk/vibecheck/internal/models"
	"github.com/mmynk/vibecheck/internal/service"
)

// Server implements every RPC on top of the services.
type Server struct {
	membership    *service.MembershipService
	participation *service.ParticipationService
	users         *service.UserService
	feed          *service.FeedService

	passwords  identity.Authenticator
	jwtManager *identity.JWTManager
	identity   identity.Identity
}

// Deps are the collaborators of a Server.
type Deps struct {
	Membership    *service.MembershipService
	Participation *service.ParticipationService
	Users         *service.UserService
	Feed          *service.FeedService

	Passwords  identity.Authenticator
	JWTManager *identity.JWTManager
}

// NewServer creates a Server. The acting user of every call is read from the
// request context, where the auth interceptor puts it.
func NewServer(d Deps) *Server {
	return &Server{
		membership:    d.Membership,
		participation: d.Participation,
		users:         d.Users,
		feed:          d.Feed,
		passwords:     d.Passwords,
		jwtManager:    d.JWTManager,
		identity:      identity.ContextIdentity{},
	}
}

// route is one Connect handler and the path it is served at.
type route struct {
	path    string
	handler http.Handler
}

func unary[Req, Res any](procedure string, fn func(context.Context, *Req) (*Res, error), opts ...connect.HandlerOption) route {
	return route{
		path: procedure,
		handler: connect.NewUnaryHandler(procedure, func(ctx context.Context, req *connect.Request[Req]) (*connect.Response[Res], error) {
			res, err := fn(ctx, req.Msg)
			if err != nil {
				return nil, connectError(err)
			}
			return connect.NewResponse(res), nil
		}, opts...),
	}
}

// routes returns the handler of every procedure.
func (s *Server) routes(opts ...connect.HandlerOption) []route {
	opts = append([]connect.HandlerOption{connect.WithCodec(Codec{})}, opts...)
	return []route{
		unary(RegisterProcedure, s.Register, opts...),
		unary(LoginProcedure, s.Login, opts...),
		unary(MeProcedure, s.Me, opts...),

		unary(CreateGroupProcedure, s.CreateGroup, opts...),
		unary(JoinGroupProcedure, s.JoinGroup, opts...),
		unary(LeaveGroupProcedure, s.LeaveGroup, opts...),
		unary(UpdateGroupProcedure, s.UpdateGroup, opts...),
		unary(DeleteGroupProcedure, s.DeleteGroup, opts...),
		unary(GetGroupProcedure, s.GetGroup, opts...),
		unary(ListGroupsProcedure, s.ListGroups, opts...),
		unary(HomeProcedure, s.Home, opts...),

		unary(CreateVibeProcedure, s.CreateVibe, opts...),
		unary(UpdateVibeProcedure, s.UpdateVibe, opts...),
		unary(DeleteVibeProcedure, s.DeleteVibe, opts...),
		unary(SetParticipationProcedure, s.SetParticipation, opts...),
		unary(ToggleParticipationProcedure, s.ToggleParticipation, opts...),
		unary(ListVibesProcedure, s.ListVibes, opts...),
		unary(ListParticipantNamesProcedure, s.ListParticipantNames, opts...),
		{
			path:    WatchGroupProcedure,
			handler: connect.NewServerStreamHandler(WatchGroupProcedure, s.WatchGroup, opts...),
		},

		unary(GetProfileProcedure, s.GetProfile, opts...),
		unary(UpdateProfileProcedure, s.UpdateProfile, opts...),
		unary(SetAvailabilityProcedure, s.SetAvailability, opts...),
		unary(ListFriendsProcedure, s.ListFriends, opts...),
	}
}

// currentUser returns the signed-in user's id.
func (s *Server) currentUser(ctx context.Context) (string, error) {
	id, ok := s.identity.CurrentUserID(ctx)
	if !ok {
		return "", identity.ErrUnauthenticated
	}
	return id, nil
}

// issueToken signs a session token for u.
func (s *Server) issueToken(u *models.User) (*AuthResponse, error) {
	token, err := s.jwtManager.Generate(profileOf(u))
	if err != nil {
		return nil, err
	}
	return &AuthResponse{Token: token, User: u}, nil
}

func profileOf(u *models.User) identity.Profile {
	return identity.Profile{
		UserID:      u.ID,
		DisplayName: u.DisplayName,
		Email:       u.Email,
		AvatarURL:   u.AvatarURL,
	}
}
