package storage

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Top-level collections.
const (
	UsersCollection       = "users"
	GroupsCollection      = "groups"
	JoinCodesCollection   = "joinCodes"
	CredentialsCollection = "credentials"

	vibesSubcollection = "vibes"
)

// Document field names used in queries and set operations.
const (
	FieldGroups       = "groups"
	FieldMembers      = "members"
	FieldParticipants = "participants"
	FieldCode         = "code"
	FieldOwner        = "createdBy"
)

// NewID returns a fresh document id.
func NewID() string {
	return uuid.New().String()
}

// ValidID reports whether id can be used as a single path segment.
func ValidID(id string) bool {
	return id != "" && !strings.Contains(id, "/") && id != "." && id != ".."
}

func UserPath(uid string) string { return UsersCollection + "/" + uid }

func GroupPath(groupID string) string { return GroupsCollection + "/" + groupID }

func JoinCodePath(code string) string { return JoinCodesCollection + "/" + code }

func CredentialPath(email string) string { return CredentialsCollection + "/" + email }

// VibesCollection is the subcollection holding a group's vibes.
func VibesCollection(groupID string) string {
	return GroupPath(groupID) + "/" + vibesSubcollection
}

func VibePath(groupID, vibeID string) string {
	return VibesCollection(groupID) + "/" + vibeID
}

// GroupIDFromVibePath extracts the owning group id from a vibe document path.
func GroupIDFromVibePath(path string) string {
	segs := strings.Split(path, "/")
	if len(segs) == 4 && segs[0] == GroupsCollection && segs[2] == vibesSubcollection {
		return segs[1]
	}
	return ""
}

// SplitDocPath splits a document path into its collection path and id.
func SplitDocPath(path string) (collection, id string, err error) {
	segs, err := segments(path)
	if err != nil {
		return "", "", err
	}
	if len(segs)%2 != 0 {
		return "", "", fmt.Errorf("%w: %q is a collection path, want a document path", ErrInvalidPath, path)
	}
	return strings.Join(segs[:len(segs)-1], "/"), segs[len(segs)-1], nil
}

// CheckCollectionPath validates a collection path.
func CheckCollectionPath(path string) error {
	segs, err := segments(path)
	if err != nil {
		return err
	}
	if len(segs)%2 != 1 {
		return fmt.Errorf("%w: %q is a document path, want a collection path", ErrInvalidPath, path)
	}
	return nil
}

func segments(path string) ([]string, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: empty path", ErrInvalidPath)
	}
	segs := strings.Split(path, "/")
	for _, s := range segs {
		if !ValidID(s) {
			return nil, fmt.Errorf("%w: %q has an empty or reserved segment", ErrInvalidPath, path)
		}
	}
	return segs, nil
}
