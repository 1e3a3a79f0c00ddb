package service

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/mmynk/vibecheck/internal/identity"
	"github.com/mmynk/vibecheck/internal/models"
	"github.com/mmynk/vibecheck/internal/storage"
	"github.com/mmynk/vibecheck/internal/storage/sqlite"
)

func newTestStore(t *testing.T) *sqlite.SQLiteStore {
	t.Helper()
	store, err := sqlite.New(filepath.Join(t.TempDir(), "test.db"), sqlite.WithPollInterval(10*time.Millisecond))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

// addUsers creates a user document per id, named after the id.
func addUsers(t *testing.T, store storage.Store, ids ...string) {
	t.Helper()
	users := NewUserService(store)
	for _, id := range ids {
		if _, err := users.EnsureUser(context.Background(), identity.Profile{UserID: id, DisplayName: id}); err != nil {
			t.Fatalf("EnsureUser(%s) failed: %v", id, err)
		}
	}
}

func readUser(t *testing.T, store storage.Store, id string) models.User {
	t.Helper()
	var u models.User
	if err := store.Get(context.Background(), storage.UserPath(id), &u); err != nil {
		t.Fatalf("Failed to read user %s: %v", id, err)
	}
	return u
}

func readGroup(t *testing.T, store storage.Store, id string) models.Group {
	t.Helper()
	var g models.Group
	if err := store.Get(context.Background(), storage.GroupPath(id), &g); err != nil {
		t.Fatalf("Failed to read group %s: %v", id, err)
	}
	g.ID = id
	return g
}

// assertSymmetric checks both sides of the membership edge agree.
func assertSymmetric(t *testing.T, store storage.Store, userID, groupID string, want bool) {
	t.Helper()
	u := readUser(t, store, userID)
	inUser := u.InGroup(groupID)

	var g models.Group
	inGroup := false
	if err := store.Get(context.Background(), storage.GroupPath(groupID), &g); err == nil {
		inGroup = g.HasMember(userID)
	}

	if inUser != want || inGroup != want {
		t.Errorf("membership %s/%s: user side %v, group side %v, want %v", userID, groupID, inUser, inGroup, want)
	}
}

// codeSeq hands out codes in order, repeating the last one.
type codeSeq struct {
	mu    sync.Mutex
	codes []string
	i     int
}

func (c *codeSeq) Generate() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	code := c.codes[min(c.i, len(c.codes)-1)]
	c.i++
	return code
}

// writeCounter counts store operations that mutate documents.
type writeCounter struct {
	mu     sync.Mutex
	writes int
}

func (c *writeCounter) ObserveOp(op string, _ time.Duration, _ error) {
	if storage.IsWriteOp(op) {
		c.mu.Lock()
		c.writes++
		c.mu.Unlock()
	}
}

func (c *writeCounter) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.writes
}

// noTxStore behaves like a backend without multi-document transactions.
type noTxStore struct {
	storage.Store
}

func (noTxStore) RunTransaction(context.Context, func(storage.Tx) error) error {
	return storage.ErrTransactionsUnsupported
}

// afterGet runs hook once, right after the first read of path.
type afterGet struct {
	storage.Store
	path string
	hook func()
	once sync.Once
}

func (s *afterGet) Get(ctx context.Context, path string, dst any) error {
	err := s.Store.Get(ctx, path, dst)
	if path == s.path {
		s.once.Do(s.hook)
	}
	return err
}
