package models

import "time"

// DefaultDisplayName is used when the identity provider has no display name.
const DefaultDisplayName = "User"

// DefaultAvatarURL is used when the identity provider has no photo.
const DefaultAvatarURL = "https://via.placeholder.com/150"

// User is the profile document created on first sign-in.
type User struct {
	// ID is the identity provider's stable user id.
	ID string `json:"uid" firestore:"uid" bson:"uid"`

	// DisplayName is shown next to vibes the user joined.
	DisplayName string `json:"name" firestore:"name" bson:"name"`

	AvatarURL string `json:"photoURL" firestore:"photoURL" bson:"photoURL"`
	Email     string `json:"email" firestore:"email" bson:"email"`

	// GroupIDs is the user's side of the membership edge.
	// Only the membership service mutates it.
	GroupIDs []string `json:"groups" firestore:"groups" bson:"groups"`

	IsAvailable bool      `json:"isAvailable" firestore:"isAvailable" bson:"isAvailable"`
	CreatedAt   time.Time `json:"createdAt" firestore:"createdAt" bson:"createdAt"`
	LastSeenAt  time.Time `json:"lastSeen" firestore:"lastSeen" bson:"lastSeen"`
	UpdatedAt   time.Time `json:"updatedAt,omitempty" firestore:"updatedAt,omitempty" bson:"updatedAt,omitempty"`
}

// InGroup reports whether groupID is on the user's side of the edge.
func (u User) InGroup(groupID string) bool {
	return contains(u.GroupIDs, groupID)
}

// Credential backs the local password identity provider.
// Stored at credentials/{email}.
type Credential struct {
	UserID       string    `json:"uid" firestore:"uid" bson:"uid"`
	PasswordHash string    `json:"passwordHash" firestore:"passwordHash" bson:"passwordHash"`
	CreatedAt    time.Time `json:"createdAt" firestore:"createdAt" bson:"createdAt"`
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
