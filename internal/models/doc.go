// Package models defines the documents stored by vibecheck.
//
// # Documents
//
//   - User: a signed-in person and the ids of the groups they belong to
//   - Group: a named set of members sharing a join code
//   - Vibe: an ad-hoc activity proposal scoped to one group, with opt-in participants
//   - JoinCode: the reservation that makes a group's join code unique
//   - Credential: a local password sign-in record
//
// # Storage layout
//
// Field names follow the original Firestore data so existing documents stay
// readable by every backend:
//
//	users/{uid}
//	groups/{groupId}
//	groups/{groupId}/vibes/{vibeId}
//	joinCodes/{CODE}
//	credentials/{email}
//
// # Relationships
//
// The membership edge is recorded twice: User.GroupIDs and Group.MemberIDs.
// Group.MemberIDs is authoritative; the user side is repaired from it by the
// membership reconciliation pass. Vibes are owned by their group and are
// deleted with it. Participation is recorded only on Vibe.ParticipantIDs.
//
// IDs of groups and vibes are not stored inside the document; they are the
// document id and are filled in after decoding.
package models
