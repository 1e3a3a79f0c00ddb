package models

import "time"

// DefaultGroupIcon is applied when a group is created without an icon.
const DefaultGroupIcon = "👥"

// Group is a named collection of users sharing a join code.
//
// MemberIDs always contains at least one member: the owner at creation, and
// the group is deleted when its last member leaves.
type Group struct {
	// ID is the document id; not stored in the document body.
	ID string `json:"-" firestore:"-" bson:"-"`

	Name string `json:"name" firestore:"name" bson:"name"`
	Icon string `json:"icon" firestore:"icon" bson:"icon"`

	// JoinCode is 6 characters of [A-Z0-9], stored uppercased.
	JoinCode string `json:"code" firestore:"code" bson:"code"`

	OwnerID   string    `json:"createdBy" firestore:"createdBy" bson:"createdBy"`
	MemberIDs []string  `json:"members" firestore:"members" bson:"members"`
	CreatedAt time.Time `json:"createdAt" firestore:"createdAt" bson:"createdAt"`
}

// HasMember reports whether userID is on the group's side of the edge.
func (g Group) HasMember(userID string) bool {
	return contains(g.MemberIDs, userID)
}

// JoinCode reserves a code for one group. Stored at joinCodes/{CODE}; the
// document id is the code itself, so two groups can never hold the same one.
type JoinCode struct {
	GroupID   string    `json:"groupId" firestore:"groupId" bson:"groupId"`
	CreatedAt time.Time `json:"createdAt" firestore:"createdAt" bson:"createdAt"`
}
