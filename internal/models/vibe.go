package models

import "time"

// DefaultVibeEmoji is used when a vibe is created without an emoji.
const DefaultVibeEmoji = "✨"

// Vibe is an ad-hoc activity proposal inside a group.
// Date, Time and Venue are optional; empty means absent.
type Vibe struct {
	// ID is the document id; not stored in the document body.
	ID string `json:"-" firestore:"-" bson:"-"`

	// GroupID is derived from the document path.
	GroupID string `json:"-" firestore:"-" bson:"-"`

	Emoji string `json:"emoji" firestore:"emoji" bson:"emoji"`
	Title string `json:"title" firestore:"title" bson:"title"`

	// Date is a calendar date (2006-01-02).
	Date string `json:"date,omitempty" firestore:"date,omitempty" bson:"date,omitempty"`

	// Time is a 24-hour clock time (15:04).
	Time  string `json:"time,omitempty" firestore:"time,omitempty" bson:"time,omitempty"`
	Venue string `json:"venue,omitempty" firestore:"venue,omitempty" bson:"venue,omitempty"`

	CreatorID string `json:"createdBy" firestore:"createdBy" bson:"createdBy"`

	// ParticipantIDs is mutated only by the participation service.
	ParticipantIDs []string  `json:"participants" firestore:"participants" bson:"participants"`
	CreatedAt      time.Time `json:"createdAt" firestore:"createdAt" bson:"createdAt"`
}

// HasParticipant reports whether userID joined the vibe.
func (v Vibe) HasParticipant(userID string) bool {
	return contains(v.ParticipantIDs, userID)
}
