package api

import (
	"github.com/mmynk/vibecheck/internal/models"
	"github.com/mmynk/vibecheck/internal/view"
)

// Procedure names.
const (
	RegisterProcedure = "/vibecheck.v1.AuthService/Register"
	LoginProcedure    = "/vibecheck.v1.AuthService/Login"
	MeProcedure       = "/vibecheck.v1.AuthService/Me"

	CreateGroupProcedure = "/vibecheck.v1.GroupService/CreateGroup"
	JoinGroupProcedure   = "/vibecheck.v1.GroupService/JoinGroup"
	LeaveGroupProcedure  = "/vibecheck.v1.GroupService/LeaveGroup"
	UpdateGroupProcedure = "/vibecheck.v1.GroupService/UpdateGroup"
	DeleteGroupProcedure = "/vibecheck.v1.GroupService/DeleteGroup"
	GetGroupProcedure    = "/vibecheck.v1.GroupService/GetGroup"
	ListGroupsProcedure  = "/vibecheck.v1.GroupService/ListGroups"
	HomeProcedure        = "/vibecheck.v1.GroupService/Home"

	CreateVibeProcedure           = "/vibecheck.v1.VibeService/CreateVibe"
	UpdateVibeProcedure           = "/vibecheck.v1.VibeService/UpdateVibe"
	DeleteVibeProcedure           = "/vibecheck.v1.VibeService/DeleteVibe"
	SetParticipationProcedure     = "/vibecheck.v1.VibeService/SetParticipation"
	ToggleParticipationProcedure  = "/vibecheck.v1.VibeService/ToggleParticipation"
	ListVibesProcedure            = "/vibecheck.v1.VibeService/ListVibes"
	ListParticipantNamesProcedure = "/vibecheck.v1.VibeService/ListParticipantNames"
	WatchGroupProcedure           = "/vibecheck.v1.VibeService/WatchGroup"

	GetProfileProcedure      = "/vibecheck.v1.UserService/GetProfile"
	UpdateProfileProcedure   = "/vibecheck.v1.UserService/UpdateProfile"
	SetAvailabilityProcedure = "/vibecheck.v1.UserService/SetAvailability"
	ListFriendsProcedure     = "/vibecheck.v1.UserService/ListFriends"
)

// PublicProcedures can be called without a session token.
var PublicProcedures = []string{RegisterProcedure, LoginProcedure}

// Empty is the request or response of procedures that carry no data.
type Empty struct{}

// Auth

type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthResponse carries a session token for the Authorization header.
type AuthResponse struct {
	Token string       `json:"token"`
	User  *models.User `json:"user"`
}

type UserResponse struct {
	User *models.User `json:"user"`
}

// Groups

type CreateGroupRequest struct {
	Name string `json:"name"`
	Icon string `json:"icon,omitempty"`
}

type JoinGroupRequest struct {
	Code string `json:"code"`
}

type GroupRequest struct {
	GroupID string `json:"groupId"`
}

type UpdateGroupRequest struct {
	GroupID string `json:"groupId"`
	Name    string `json:"name"`
	Icon    string `json:"icon,omitempty"`
}

type GroupResponse struct {
	Group view.GroupView `json:"group"`
}

type ListGroupsResponse struct {
	Groups []view.GroupView `json:"groups"`
}

// Vibes

type CreateVibeRequest struct {
	GroupID string `json:"groupId"`
	Emoji   string `json:"emoji,omitempty"`
	Title   string `json:"title"`
	Date    string `json:"date,omitempty"`
	Time    string `json:"time,omitempty"`
	Venue   string `json:"venue,omitempty"`
}

type UpdateVibeRequest struct {
	GroupID string `json:"groupId"`
	VibeID  string `json:"vibeId"`
	Emoji   string `json:"emoji,omitempty"`
	Title   string `json:"title"`
	Date    string `json:"date,omitempty"`
	Time    string `json:"time,omitempty"`
	Venue   string `json:"venue,omitempty"`
}

type VibeRequest struct {
	GroupID string `json:"groupId"`
	VibeID  string `json:"vibeId"`
}

type SetParticipationRequest struct {
	GroupID string `json:"groupId"`
	VibeID  string `json:"vibeId"`
	Joined  bool   `json:"joined"`
}

type ParticipationResponse struct {
	Joined bool `json:"joined"`
}

type VibeResponse struct {
	Vibe view.VibeView `json:"vibe"`
}

type ListVibesResponse struct {
	Vibes []view.VibeView `json:"vibes"`
}

type ParticipantNamesResponse struct {
	Names []string `json:"names"`
}

// Users

type UpdateProfileRequest struct {
	Name     string `json:"name"`
	PhotoURL string `json:"photoURL,omitempty"`
}

type SetAvailabilityRequest struct {
	Available bool `json:"isAvailable"`
}

type ListFriendsResponse struct {
	Friends []models.User `json:"friends"`
}
