package sqlite

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/mmynk/vibecheck/internal/apperr"
	"github.com/mmynk/vibecheck/internal/storage"
	"github.com/mmynk/vibecheck/internal/storage/storetest"
)

type record struct {
	Name    string   `json:"name"`
	Members []string `json:"members"`
	Code    string   `json:"code,omitempty"`
}

func newTestStore(t *testing.T, opts ...Option) *SQLiteStore {
	t.Helper()
	store, err := New(filepath.Join(t.TempDir(), "test.db"), opts...)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSQLiteStore(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	t.Run("Write and Get round trip", func(t *testing.T) {
		in := record{Name: "Climbing", Members: []string{"u1"}}
		if err := store.Write(ctx, "groups/g1", in, storage.Replace); err != nil {
			t.Fatalf("Write failed: %v", err)
		}

		var out record
		if err := store.Get(ctx, "groups/g1", &out); err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if out.Name != "Climbing" || !slices.Equal(out.Members, []string{"u1"}) {
			t.Errorf("unexpected record: %+v", out)
		}
	})

	t.Run("Get missing document returns NotFound", func(t *testing.T) {
		var out record
		err := store.Get(ctx, "groups/missing", &out)
		if !errors.Is(err, apperr.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("Get rejects collection paths", func(t *testing.T) {
		var out record
		if err := store.Get(ctx, "groups", &out); !errors.Is(err, storage.ErrInvalidPath) {
			t.Errorf("expected ErrInvalidPath, got %v", err)
		}
	})

	t.Run("Merge keeps other fields and creates missing documents", func(t *testing.T) {
		if err := store.Write(ctx, "groups/g1", storage.Fields{"name": "Bouldering"}, storage.Merge); err != nil {
			t.Fatalf("Merge failed: %v", err)
		}
		var out record
		store.Get(ctx, "groups/g1", &out)
		if out.Name != "Bouldering" || len(out.Members) != 1 {
			t.Errorf("merge lost fields: %+v", out)
		}

		if err := store.Write(ctx, "groups/fresh", storage.Fields{"name": "Fresh"}, storage.Merge); err != nil {
			t.Fatalf("Merge into missing doc failed: %v", err)
		}
		if err := store.Get(ctx, "groups/fresh", &out); err != nil || out.Name != "Fresh" {
			t.Errorf("expected created doc, got %+v, %v", out, err)
		}
	})

	t.Run("Create fails when the document exists", func(t *testing.T) {
		if err := store.Create(ctx, "joinCodes/ABC123", record{Name: "g1"}); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
		err := store.Create(ctx, "joinCodes/ABC123", record{Name: "g2"})
		if !errors.Is(err, storage.ErrAlreadyExists) {
			t.Errorf("expected ErrAlreadyExists, got %v", err)
		}
	})

	t.Run("CreateWithAutoID assigns distinct ids", func(t *testing.T) {
		a, err := store.CreateWithAutoID(ctx, "groups/g1/vibes", record{Name: "a"})
		if err != nil {
			t.Fatalf("CreateWithAutoID failed: %v", err)
		}
		b, _ := store.CreateWithAutoID(ctx, "groups/g1/vibes", record{Name: "b"})
		if a == "" || a == b {
			t.Errorf("expected distinct ids, got %q and %q", a, b)
		}
	})

	t.Run("Set operations are idempotent", func(t *testing.T) {
		for range 2 {
			if err := store.AddToSet(ctx, "groups/g1", "members", "u2"); err != nil {
				t.Fatalf("AddToSet failed: %v", err)
			}
		}
		var out record
		store.Get(ctx, "groups/g1", &out)
		if !slices.Equal(out.Members, []string{"u1", "u2"}) {
			t.Errorf("members after add: %v", out.Members)
		}

		for range 2 {
			if err := store.RemoveFromSet(ctx, "groups/g1", "members", "u1"); err != nil {
				t.Fatalf("RemoveFromSet failed: %v", err)
			}
		}
		store.Get(ctx, "groups/g1", &out)
		if !slices.Equal(out.Members, []string{"u2"}) {
			t.Errorf("members after remove: %v", out.Members)
		}
	})

	t.Run("Set operations on missing documents return NotFound", func(t *testing.T) {
		err := store.AddToSet(ctx, "groups/nope", "members", "u1")
		if !errors.Is(err, apperr.ErrNotFound) {
			t.Errorf("AddToSet: expected ErrNotFound, got %v", err)
		}
		err = store.RemoveFromSet(ctx, "groups/nope", "members", "u1")
		if !errors.Is(err, apperr.ErrNotFound) {
			t.Errorf("RemoveFromSet: expected ErrNotFound, got %v", err)
		}
	})

	t.Run("AddToSet treats a missing field as empty", func(t *testing.T) {
		store.Write(ctx, "users/u9", storage.Fields{"name": "Nine"}, storage.Merge)
		if err := store.AddToSet(ctx, "users/u9", "groups", "g1"); err != nil {
			t.Fatalf("AddToSet failed: %v", err)
		}
		var out struct {
			Groups []string `json:"groups"`
		}
		store.Get(ctx, "users/u9", &out)
		if !slices.Equal(out.Groups, []string{"g1"}) {
			t.Errorf("groups: %v", out.Groups)
		}
	})

	t.Run("Delete is idempotent", func(t *testing.T) {
		store.Write(ctx, "groups/gone", record{Name: "x"}, storage.Replace)
		if err := store.Delete(ctx, "groups/gone"); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
		if err := store.Delete(ctx, "groups/gone"); err != nil {
			t.Fatalf("second Delete failed: %v", err)
		}
		var out record
		if err := store.Get(ctx, "groups/gone", &out); !errors.Is(err, apperr.ErrNotFound) {
			t.Errorf("expected deleted doc to be gone, got %v", err)
		}
	})
}

func TestSQLiteStore_Query(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	store.Write(ctx, "groups/a", record{Name: "A", Members: []string{"u1", "u2"}, Code: "AAAAAA"}, storage.Replace)
	store.Write(ctx, "groups/b", record{Name: "B", Members: []string{"u2"}, Code: "BBBBBB"}, storage.Replace)
	store.Write(ctx, "groups/c", record{Name: "C", Members: []string{}}, storage.Replace)
	store.Write(ctx, "groups/a/vibes/v1", record{Name: "nested", Members: []string{"u1"}}, storage.Replace)

	tests := []struct {
		name    string
		coll    string
		filters []storage.Filter
		want    []string
	}{
		{"all documents", "groups", nil, []string{"a", "b", "c"}},
		{"equal", "groups", []storage.Filter{storage.Where("code", "BBBBBB")}, []string{"b"}},
		{"equal no match", "groups", []storage.Filter{storage.Where("code", "ZZZZZZ")}, nil},
		{"array contains", "groups", []storage.Filter{storage.WhereContains("members", "u2")}, []string{"a", "b"}},
		{"combined", "groups", []storage.Filter{storage.WhereContains("members", "u2"), storage.Where("name", "A")}, []string{"a"}},
		{"subcollection", "groups/a/vibes", nil, []string{"v1"}},
		{"empty subcollection", "groups/b/vibes", nil, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			docs, err := store.Query(ctx, tt.coll, tt.filters...)
			if err != nil {
				t.Fatalf("Query failed: %v", err)
			}
			var ids []string
			for _, d := range docs {
				ids = append(ids, d.ID)
			}
			if !slices.Equal(ids, tt.want) {
				t.Errorf("got %v, want %v", ids, tt.want)
			}
		})
	}

	t.Run("DataTo decodes documents", func(t *testing.T) {
		docs, _ := store.Query(ctx, "groups", storage.Where("code", "AAAAAA"))
		var out record
		if err := docs[0].DataTo(&out); err != nil {
			t.Fatalf("DataTo failed: %v", err)
		}
		if out.Name != "A" || docs[0].Path != "groups/a" {
			t.Errorf("unexpected doc: %+v at %s", out, docs[0].Path)
		}
	})
}

func TestSQLiteStore_RunTransaction(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	store.Write(ctx, "groups/g1", record{Name: "G", Members: []string{"u1"}}, storage.Replace)

	t.Run("commits every write", func(t *testing.T) {
		err := store.RunTransaction(ctx, func(tx storage.Tx) error {
			var g record
			if err := tx.Get("groups/g1", &g); err != nil {
				return err
			}
			if err := tx.AddToSet("groups/g1", "members", "u2"); err != nil {
				return err
			}
			return tx.Write("users/u2", storage.Fields{"groups": []string{"g1"}}, storage.Merge)
		})
		if err != nil {
			t.Fatalf("RunTransaction failed: %v", err)
		}

		var g record
		store.Get(ctx, "groups/g1", &g)
		if !slices.Contains(g.Members, "u2") {
			t.Errorf("members: %v", g.Members)
		}
	})

	t.Run("rolls back on error", func(t *testing.T) {
		boom := errors.New("boom")
		err := store.RunTransaction(ctx, func(tx storage.Tx) error {
			if err := tx.AddToSet("groups/g1", "members", "u3"); err != nil {
				return err
			}
			return boom
		})
		if !errors.Is(err, boom) {
			t.Fatalf("expected boom, got %v", err)
		}

		var g record
		store.Get(ctx, "groups/g1", &g)
		if slices.Contains(g.Members, "u3") {
			t.Error("write inside failed transaction was committed")
		}
	})

	t.Run("concurrent set updates all land", func(t *testing.T) {
		store.Write(ctx, "groups/g1/vibes/v1", record{Name: "V", Members: []string{}}, storage.Replace)

		var wg sync.WaitGroup
		for i := range 20 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := store.AddToSet(ctx, "groups/g1/vibes/v1", "members", fmt.Sprintf("u%d", i)); err != nil {
					t.Errorf("AddToSet failed: %v", err)
				}
			}()
		}
		wg.Wait()

		var v record
		store.Get(ctx, "groups/g1/vibes/v1", &v)
		if len(v.Members) != 20 {
			t.Errorf("expected 20 participants, got %d", len(v.Members))
		}
	})
}

func TestSQLiteStore_Watch(t *testing.T) {
	store := newTestStore(t, WithPollInterval(10*time.Millisecond))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	store.Write(ctx, "groups/g1/vibes/v1", record{Name: "first"}, storage.Replace)

	var sizes []int
	for snap, err := range store.Watch(ctx, "groups/g1/vibes") {
		if err != nil {
			t.Fatalf("Watch error: %v", err)
		}
		sizes = append(sizes, len(snap.Docs))
		if len(sizes) == 1 {
			// A write to another collection must not produce a snapshot here.
			store.Write(ctx, "groups/g2/vibes/x", record{Name: "other"}, storage.Replace)
			store.Write(ctx, "groups/g1/vibes/v2", record{Name: "second"}, storage.Replace)
			continue
		}
		break
	}

	if !slices.Equal(sizes, []int{1, 2}) {
		t.Errorf("snapshot sizes: got %v, want [1 2]", sizes)
	}
}

func TestSQLiteStore_WatchStopsOnCancel(t *testing.T) {
	store := newTestStore(t, WithPollInterval(10*time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan int)
	go func() {
		n := 0
		for range store.Watch(ctx, "groups") {
			n++
		}
		done <- n
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case n := <-done:
		if n != 1 {
			t.Errorf("expected only the initial snapshot, got %d", n)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Watch did not stop after cancel")
	}
}

func TestStoreContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) storage.Store {
		return newTestStore(t, WithPollInterval(10*time.Millisecond))
	})
}
