// Package storetest holds a behavioural test suite that every storage.Store
// backend must pass.
package storetest

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/mmynk/vibecheck/internal/apperr"
	"github.com/mmynk/vibecheck/internal/storage"
)

type item struct {
	Name string   `json:"name" firestore:"name" bson:"name"`
	Tags []string `json:"tags" firestore:"tags" bson:"tags"`
	Code string   `json:"code" firestore:"code" bson:"code"`
}

// Run exercises newStore's Store. Each subtest works under a fresh root
// document so that shared databases (emulators) do not leak state.
func Run(t *testing.T, newStore func(t *testing.T) storage.Store) {
	ctx := context.Background()

	setup := func(t *testing.T) (storage.Store, string) {
		return newStore(t), "suites/" + storage.NewID() + "/items"
	}

	t.Run("get returns what was written", func(t *testing.T) {
		store, coll := setup(t)
		path := coll + "/a"
		if err := store.Write(ctx, path, item{Name: "a", Tags: []string{"x"}}, storage.Replace); err != nil {
			t.Fatalf("Write: %v", err)
		}
		var got item
		if err := store.Get(ctx, path, &got); err != nil {
			t.Fatalf("Get: %v", err)
		}
		if got.Name != "a" || !slices.Equal(got.Tags, []string{"x"}) {
			t.Errorf("got %+v", got)
		}
	})

	t.Run("missing documents are NotFound", func(t *testing.T) {
		store, coll := setup(t)
		var got item
		if err := store.Get(ctx, coll+"/none", &got); !errors.Is(err, apperr.ErrNotFound) {
			t.Errorf("Get: %v", err)
		}
		if err := store.AddToSet(ctx, coll+"/none", "tags", "x"); !errors.Is(err, apperr.ErrNotFound) {
			t.Errorf("AddToSet: %v", err)
		}
		if err := store.Delete(ctx, coll+"/none"); err != nil {
			t.Errorf("Delete of missing doc: %v", err)
		}
	})

	t.Run("merge keeps unspecified fields", func(t *testing.T) {
		store, coll := setup(t)
		path := coll + "/m"
		store.Write(ctx, path, item{Name: "old", Code: "C1", Tags: []string{}}, storage.Replace)
		if err := store.Write(ctx, path, storage.Fields{"name": "new"}, storage.Merge); err != nil {
			t.Fatalf("Merge: %v", err)
		}
		var got item
		store.Get(ctx, path, &got)
		if got.Name != "new" || got.Code != "C1" {
			t.Errorf("got %+v", got)
		}
	})

	t.Run("update needs an existing document", func(t *testing.T) {
		store, coll := setup(t)
		path := coll + "/u"
		if err := store.Write(ctx, path, storage.Fields{"name": "ghost"}, storage.Update); !errors.Is(err, apperr.ErrNotFound) {
			t.Fatalf("Update of missing doc: %v", err)
		}
		var got item
		if err := store.Get(ctx, path, &got); !errors.Is(err, apperr.ErrNotFound) {
			t.Errorf("Update created a document: %+v, %v", got, err)
		}

		store.Write(ctx, path, item{Name: "old", Code: "C1", Tags: []string{"x"}}, storage.Replace)
		update := storage.Fields{"name": "new", "code": storage.DeleteField}
		if err := store.Write(ctx, path, update, storage.Update); err != nil {
			t.Fatalf("Update: %v", err)
		}
		store.Get(ctx, path, &got)
		if got.Name != "new" || !slices.Equal(got.Tags, []string{"x"}) {
			t.Errorf("got %+v", got)
		}
		docs, err := store.Query(ctx, coll, storage.Where("code", "C1"))
		if err != nil || len(docs) != 0 {
			t.Errorf("deleted field still matches: %v %v", docs, err)
		}
	})

	t.Run("create refuses to overwrite", func(t *testing.T) {
		store, coll := setup(t)
		if err := store.Create(ctx, coll+"/c", item{Name: "first"}); err != nil {
			t.Fatalf("Create: %v", err)
		}
		if err := store.Create(ctx, coll+"/c", item{Name: "second"}); !errors.Is(err, storage.ErrAlreadyExists) {
			t.Errorf("second Create: %v", err)
		}
	})

	t.Run("set operations are idempotent", func(t *testing.T) {
		store, coll := setup(t)
		path := coll + "/s"
		store.Write(ctx, path, item{Tags: []string{}}, storage.Replace)
		store.AddToSet(ctx, path, "tags", "x")
		store.AddToSet(ctx, path, "tags", "x")
		store.AddToSet(ctx, path, "tags", "y")
		store.RemoveFromSet(ctx, path, "tags", "y")
		store.RemoveFromSet(ctx, path, "tags", "y")

		var got item
		store.Get(ctx, path, &got)
		if !slices.Equal(got.Tags, []string{"x"}) {
			t.Errorf("tags: %v", got.Tags)
		}
	})

	t.Run("query filters", func(t *testing.T) {
		store, coll := setup(t)
		store.Write(ctx, coll+"/a", item{Name: "a", Tags: []string{"u1", "u2"}, Code: "AAA"}, storage.Replace)
		store.Write(ctx, coll+"/b", item{Name: "b", Tags: []string{"u2"}, Code: "BBB"}, storage.Replace)

		docs, err := store.Query(ctx, coll, storage.WhereContains("tags", "u1"))
		if err != nil || len(docs) != 1 || docs[0].ID != "a" {
			t.Errorf("array contains: %v %v", docs, err)
		}
		docs, err = store.Query(ctx, coll, storage.Where("code", "BBB"))
		if err != nil || len(docs) != 1 || docs[0].ID != "b" {
			t.Errorf("equal: %v %v", docs, err)
		}
		docs, err = store.Query(ctx, coll)
		if err != nil || len(docs) != 2 {
			t.Errorf("all: %v %v", docs, err)
		}
	})

	t.Run("transactions commit together", func(t *testing.T) {
		store, coll := setup(t)
		store.Write(ctx, coll+"/t1", item{Tags: []string{}}, storage.Replace)
		store.Write(ctx, coll+"/t2", item{Tags: []string{}}, storage.Replace)

		err := storage.RunAtomic(ctx, store, func(tx storage.Tx) error {
			var a item
			if err := tx.Get(coll+"/t1", &a); err != nil {
				return err
			}
			if err := tx.AddToSet(coll+"/t1", "tags", "t2"); err != nil {
				return err
			}
			return tx.AddToSet(coll+"/t2", "tags", "t1")
		})
		if err != nil {
			t.Fatalf("RunAtomic: %v", err)
		}

		var a, b item
		store.Get(ctx, coll+"/t1", &a)
		store.Get(ctx, coll+"/t2", &b)
		if !slices.Contains(a.Tags, "t2") || !slices.Contains(b.Tags, "t1") {
			t.Errorf("t1=%v t2=%v", a.Tags, b.Tags)
		}
	})

	t.Run("concurrent set updates converge", func(t *testing.T) {
		store, coll := setup(t)
		path := coll + "/c"
		store.Write(ctx, path, item{Tags: []string{}}, storage.Replace)

		var wg sync.WaitGroup
		for _, v := range []string{"a", "b", "c", "d", "e"} {
			wg.Add(1)
			go func() {
				defer wg.Done()
				err := storage.Retry(ctx, storage.DefaultRetry, func() error {
					return store.AddToSet(ctx, path, "tags", v)
				})
				if err != nil {
					t.Errorf("AddToSet %s: %v", v, err)
				}
			}()
		}
		wg.Wait()

		var got item
		store.Get(ctx, path, &got)
		if len(got.Tags) != 5 {
			t.Errorf("tags: %v", got.Tags)
		}
	})

	t.Run("watch sees later writes", func(t *testing.T) {
		store, coll := setup(t)
		store.Write(ctx, coll+"/w1", item{Name: "w1"}, storage.Replace)

		wctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()

		var sizes []int
		for snap, err := range store.Watch(wctx, coll) {
			if err != nil {
				t.Fatalf("Watch: %v", err)
			}
			sizes = append(sizes, len(snap.Docs))
			if len(snap.Docs) == 2 {
				break
			}
			if len(sizes) == 1 {
				store.Write(ctx, coll+"/w2", item{Name: "w2"}, storage.Replace)
			}
		}
		if len(sizes) < 2 || sizes[0] != 1 || sizes[len(sizes)-1] != 2 {
			t.Errorf("snapshot sizes: %v", sizes)
		}
	})
}
