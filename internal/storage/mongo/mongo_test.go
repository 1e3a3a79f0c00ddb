package mongo

import (
	"context"
	"errors"
	"os"
	"regexp"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/mongo"

	"github.com/mmynk/vibecheck/internal/storage"
	"github.com/mmynk/vibecheck/internal/storage/storetest"
)

func TestIsNotSupported(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil error", err: nil, want: false},
		{name: "generic error", err: errors.New("some random error"), want: false},
		{
			name: "command error code 20",
			err:  mongo.CommandError{Code: 20, Message: "Transaction numbers are only allowed on a replica set member or mongos"},
			want: true,
		},
		{
			name: "command error code 263",
			err:  mongo.CommandError{Code: 263, Message: "Cannot run in a multi-document transaction"},
			want: true,
		},
		{
			name: "other command error code",
			err:  mongo.CommandError{Code: 11000, Message: "E11000 duplicate key error"},
			want: false,
		},
		{
			name: "wrapped command error",
			err:  errors.Join(errors.New("commit"), mongo.CommandError{Code: 20}),
			want: true,
		},
		{
			name: "transaction and replica set keywords",
			err:  errors.New("TRANSACTION failed: not a REPLICA SET member"),
			want: true,
		},
		{
			name: "session not supported",
			err:  errors.New("session operations are not supported on this server"),
			want: true,
		},
		{name: "single keyword", err: errors.New("transaction failed"), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsNotSupported(tt.err); got != tt.want {
				t.Errorf("IsNotSupported(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestCollectionName(t *testing.T) {
	tests := map[string]string{
		"groups":          "groups",
		"groups/g1/vibes": "vibes",
		"users":           "users",
	}
	for path, want := range tests {
		if got := collectionName(path); got != want {
			t.Errorf("collectionName(%q) = %q, want %q", path, got, want)
		}
	}
}

func TestChildPattern(t *testing.T) {
	re := regexp.MustCompile(childPattern("groups/g.1/vibes"))

	if !re.MatchString("groups/g.1/vibes/v1") {
		t.Error("expected direct child to match")
	}
	if re.MatchString("groups/gx1/vibes/v1") {
		t.Error("dot in parent id must be literal")
	}
	if re.MatchString("groups/g.1/vibes/v1/notes/n1") {
		t.Error("grandchild must not match")
	}
}

func TestBuildFilter(t *testing.T) {
	filter, err := buildFilter("groups", []storage.Filter{
		storage.Where("code", "ABC123"),
		storage.WhereContains("members", "u1"),
	})
	if err != nil {
		t.Fatalf("buildFilter failed: %v", err)
	}
	if filter[fieldParent] != "groups" || filter["code"] != "ABC123" || filter["members"] != "u1" {
		t.Errorf("unexpected filter: %v", filter)
	}

	if _, err := buildFilter("groups", []storage.Filter{storage.Where("_id", "x")}); err == nil {
		t.Error("expected reserved field to be rejected")
	}
}

func TestToDocument(t *testing.T) {
	type group struct {
		Name    string   `bson:"name"`
		Members []string `bson:"members"`
	}
	loc := location{parent: "groups", path: "groups/g1"}

	doc, err := toDocument(loc, group{Name: "G", Members: []string{"u1"}})
	if err != nil {
		t.Fatalf("toDocument failed: %v", err)
	}
	if doc[fieldID] != "groups/g1" || doc[fieldParent] != "groups" || doc["name"] != "G" {
		t.Errorf("unexpected document: %v", doc)
	}
}

// TestStoreContract runs against a live deployment when MONGO_TEST_URI is set.
// Watch needs a replica set; transactions fall back on standalone servers.
func TestStoreContract(t *testing.T) {
	uri := os.Getenv("MONGO_TEST_URI")
	if uri == "" {
		t.Skip("MONGO_TEST_URI not set")
	}
	storetest.Run(t, func(t *testing.T) storage.Store {
		store, err := New(context.Background(), uri, "vibecheck_test", 5*time.Second)
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		t.Cleanup(func() { store.Close() })
		return store
	})
}
