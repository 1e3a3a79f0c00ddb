// Package view turns stored groups and vibes into display-ready structures.
// Every function here is pure: callers fetch the data, view only combines it.
package view

import (
	"cmp"
	"slices"
	"time"

	"github.com/mmynk/vibecheck/internal/models"
)

// VibeView is a vibe as seen by one user.
type VibeView struct {
	ID        string `json:"id"`
	GroupID   string `json:"groupId"`
	Emoji     string `json:"emoji"`
	Title     string `json:"title"`
	Date      string `json:"date,omitempty"`
	Time      string `json:"time,omitempty"`
	Venue     string `json:"venue,omitempty"`
	Timing    string `json:"timing,omitempty"`
	CreatorID string `json:"createdBy"`

	ParticipantIDs   []string `json:"participants"`
	ParticipantNames []string `json:"participantNames"`
	ParticipantCount int      `json:"participantCount"`

	// Joined is true when the viewing user is a participant.
	Joined bool `json:"joined"`

	CreatedAt time.Time `json:"createdAt"`
}

// GroupView is a group with its projected vibes.
type GroupView struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Icon        string     `json:"icon"`
	JoinCode    string     `json:"code"`
	OwnerID     string     `json:"createdBy"`
	MemberIDs   []string   `json:"members"`
	MemberCount int        `json:"memberCount"`
	VibeCount   int        `json:"vibeCount"`
	ActiveCount int        `json:"activeCount"`
	Vibes       []VibeView `json:"vibes"`
	CreatedAt   time.Time  `json:"createdAt"`
}

// ProjectVibe builds the view of v for currentUserID. names are the
// participants' display names in the order of v.ParticipantIDs.
func ProjectVibe(v models.Vibe, currentUserID string, names []string) VibeView {
	participants := slices.Clone(v.ParticipantIDs)
	if participants == nil {
		participants = []string{}
	}
	if names == nil {
		names = []string{}
	}

	return VibeView{
		ID:               v.ID,
		GroupID:          v.GroupID,
		Emoji:            v.Emoji,
		Title:            v.Title,
		Date:             v.Date,
		Time:             v.Time,
		Venue:            v.Venue,
		Timing:           FormatEventTiming(v.Date, v.Time),
		CreatorID:        v.CreatorID,
		ParticipantIDs:   participants,
		ParticipantNames: names,
		ParticipantCount: len(participants),
		Joined:           currentUserID != "" && v.HasParticipant(currentUserID),
		CreatedAt:        v.CreatedAt,
	}
}

// ProjectGroup builds the view of g around already projected vibes.
func ProjectGroup(g models.Group, vibes []VibeView) GroupView {
	if vibes == nil {
		vibes = []VibeView{}
	}
	active := 0
	for _, v := range vibes {
		if v.Joined {
			active++
		}
	}
	members := slices.Clone(g.MemberIDs)
	if members == nil {
		members = []string{}
	}

	return GroupView{
		ID:          g.ID,
		Name:        g.Name,
		Icon:        g.Icon,
		JoinCode:    g.JoinCode,
		OwnerID:     g.OwnerID,
		MemberIDs:   members,
		MemberCount: len(members),
		VibeCount:   len(vibes),
		ActiveCount: active,
		Vibes:       vibes,
		CreatedAt:   g.CreatedAt,
	}
}

// SortVibes orders vibes oldest first, breaking ties by id.
func SortVibes(vibes []models.Vibe) {
	slices.SortStableFunc(vibes, func(a, b models.Vibe) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
}

// FormatEventTiming renders an optional date and time as
// "Fri, Mar 15 at 2:30 PM".
//
// No date renders as "". A date that does not parse is returned verbatim
// with the raw time appended; a time that does not parse is shown raw after
// " at ".
func FormatEventTiming(date, clock string) string {
	if date == "" {
		return ""
	}
	d, err := time.Parse("2006-01-02", date)
	if err != nil {
		return date + clock
	}

	out := d.Format("Mon, Jan 2")
	if clock == "" {
		return out
	}
	if t, err := time.Parse("15:04", clock); err == nil {
		return out + " at " + t.Format("3:04 PM")
	}
	return out + " at " + clock
}
