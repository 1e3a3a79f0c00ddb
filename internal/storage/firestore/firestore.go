// Package firestore implements storage.Store on Cloud Firestore.
//
// Paths map one to one onto Firestore document and collection paths, set
// operations use ArrayUnion/ArrayRemove, and Watch is backed by query
// snapshot listeners.
package firestore

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/mmynk/vibecheck/internal/apperr"
	"github.com/mmynk/vibecheck/internal/storage"
)

var _ storage.Store = (*Store)(nil)

// Store is a Firestore-backed storage.Store.
type Store struct {
	client *firestore.Client
}

// New connects to the Firestore database of projectID. credentialsFile may be
// empty to use application default credentials or the emulator.
func New(ctx context.Context, projectID, credentialsFile string) (*Store, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	client, err := firestore.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create firestore client: %w", err)
	}
	return &Store{client: client}, nil
}

// Close closes the client.
func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) doc(path string) (*firestore.DocumentRef, error) {
	if _, _, err := storage.SplitDocPath(path); err != nil {
		return nil, err
	}
	return s.client.Doc(path), nil
}

func (s *Store) collection(path string) (*firestore.CollectionRef, error) {
	if err := storage.CheckCollectionPath(path); err != nil {
		return nil, err
	}
	return s.client.Collection(path), nil
}

func (s *Store) Get(ctx context.Context, path string, dst any) error {
	ref, err := s.doc(path)
	if err != nil {
		return err
	}
	snap, err := ref.Get(ctx)
	if err != nil {
		return classify(path, err)
	}
	return snap.DataTo(dst)
}

func (s *Store) Query(ctx context.Context, collection string, filters ...storage.Filter) ([]storage.Doc, error) {
	coll, err := s.collection(collection)
	if err != nil {
		return nil, err
	}
	q, err := applyFilters(coll.Query, filters)
	if err != nil {
		return nil, err
	}

	snaps, err := q.OrderBy(firestore.DocumentID, firestore.Asc).Documents(ctx).GetAll()
	if err != nil {
		return nil, classify(collection, err)
	}
	return toDocs(collection, snaps), nil
}

// Watch streams snapshots from a Firestore listener. The listener stops when
// the loop exits, ctx is cancelled, or the listener fails.
func (s *Store) Watch(ctx context.Context, collection string) iter.Seq2[storage.Snapshot, error] {
	return func(yield func(storage.Snapshot, error) bool) {
		coll, err := s.collection(collection)
		if err != nil {
			yield(storage.Snapshot{}, err)
			return
		}

		it := coll.Snapshots(ctx)
		defer it.Stop()

		for {
			qs, err := it.Next()
			if err != nil {
				if errors.Is(err, iterator.Done) || ctx.Err() != nil || status.Code(err) == codes.Canceled {
					return
				}
				slog.Warn("Firestore listener failed", "collection", collection, "error", err)
				yield(storage.Snapshot{}, classify(collection, err))
				return
			}

			snaps, err := qs.Documents.GetAll()
			if err != nil {
				if !yield(storage.Snapshot{}, classify(collection, err)) {
					return
				}
				continue
			}
			snap := storage.Snapshot{Collection: collection, Docs: toDocs(collection, snaps), ReadAt: qs.ReadTime}
			if !yield(snap, nil) {
				return
			}
		}
	}
}

func (s *Store) Write(ctx context.Context, path string, data any, mode storage.Mode) error {
	ref, err := s.doc(path)
	if err != nil {
		return err
	}
	if mode == storage.Update {
		ups, err := updates(data)
		if err != nil {
			return err
		}
		_, err = ref.Update(ctx, ups)
		return classify(path, err)
	}
	data, opts, err := setArgs(data, mode)
	if err != nil {
		return err
	}
	_, err = ref.Set(ctx, data, opts...)
	return classify(path, err)
}

func (s *Store) Create(ctx context.Context, path string, data any) error {
	ref, err := s.doc(path)
	if err != nil {
		return err
	}
	_, err = ref.Create(ctx, data)
	return classify(path, err)
}

func (s *Store) CreateWithAutoID(ctx context.Context, collection string, data any) (string, error) {
	coll, err := s.collection(collection)
	if err != nil {
		return "", err
	}
	ref := coll.NewDoc()
	if _, err := ref.Create(ctx, data); err != nil {
		return "", classify(collection, err)
	}
	return ref.ID, nil
}

func (s *Store) AddToSet(ctx context.Context, path, field, value string) error {
	ref, err := s.doc(path)
	if err != nil {
		return err
	}
	_, err = ref.Update(ctx, []firestore.Update{{Path: field, Value: firestore.ArrayUnion(value)}})
	return classify(path, err)
}

func (s *Store) RemoveFromSet(ctx context.Context, path, field, value string) error {
	ref, err := s.doc(path)
	if err != nil {
		return err
	}
	_, err = ref.Update(ctx, []firestore.Update{{Path: field, Value: firestore.ArrayRemove(value)}})
	return classify(path, err)
}

func (s *Store) Delete(ctx context.Context, path string) error {
	ref, err := s.doc(path)
	if err != nil {
		return err
	}
	_, err = ref.Delete(ctx)
	return classify(path, err)
}

// RunTransaction runs fn in a Firestore transaction. Firestore retries fn on
// contention, so it may run more than once.
func (s *Store) RunTransaction(ctx context.Context, fn func(tx storage.Tx) error) error {
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		return fn(&txn{store: s, tx: tx})
	})
	return classify("transaction", err)
}

type txn struct {
	store *Store
	tx    *firestore.Transaction
}

func (t *txn) Get(path string, dst any) error {
	ref, err := t.store.doc(path)
	if err != nil {
		return err
	}
	snap, err := t.tx.Get(ref)
	if err != nil {
		return classify(path, err)
	}
	return snap.DataTo(dst)
}

func (t *txn) Write(path string, data any, mode storage.Mode) error {
	ref, err := t.store.doc(path)
	if err != nil {
		return err
	}
	if mode == storage.Update {
		ups, err := updates(data)
		if err != nil {
			return err
		}
		return t.tx.Update(ref, ups)
	}
	data, opts, err := setArgs(data, mode)
	if err != nil {
		return err
	}
	return t.tx.Set(ref, data, opts...)
}

func (t *txn) Create(path string, data any) error {
	ref, err := t.store.doc(path)
	if err != nil {
		return err
	}
	return t.tx.Create(ref, data)
}

func (t *txn) AddToSet(path, field, value string) error {
	ref, err := t.store.doc(path)
	if err != nil {
		return err
	}
	return t.tx.Update(ref, []firestore.Update{{Path: field, Value: firestore.ArrayUnion(value)}})
}

func (t *txn) RemoveFromSet(path, field, value string) error {
	ref, err := t.store.doc(path)
	if err != nil {
		return err
	}
	return t.tx.Update(ref, []firestore.Update{{Path: field, Value: firestore.ArrayRemove(value)}})
}

func (t *txn) Delete(path string) error {
	ref, err := t.store.doc(path)
	if err != nil {
		return err
	}
	return t.tx.Delete(ref)
}

// setArgs converts a Write payload to Set arguments. Merge writes must be
// storage.Fields.
func setArgs(data any, mode storage.Mode) (any, []firestore.SetOption, error) {
	if mode != storage.Merge {
		return data, nil, nil
	}
	fields, ok := data.(storage.Fields)
	if !ok {
		return nil, nil, fmt.Errorf("merge write needs storage.Fields, got %T", data)
	}
	return map[string]any(fields), []firestore.SetOption{firestore.MergeAll}, nil
}

// updates converts an Update payload to field updates. Firestore rejects
// the commit with NotFound when the document is missing.
func updates(data any) ([]firestore.Update, error) {
	fields, ok := data.(storage.Fields)
	if !ok {
		return nil, fmt.Errorf("update write needs storage.Fields, got %T", data)
	}
	ups := make([]firestore.Update, 0, len(fields))
	for k, v := range fields {
		if v == storage.DeleteField {
			v = firestore.Delete
		}
		ups = append(ups, firestore.Update{Path: k, Value: v})
	}
	return ups, nil
}

func applyFilters(q firestore.Query, filters []storage.Filter) (firestore.Query, error) {
	for _, f := range filters {
		switch f.Op {
		case storage.Equal:
			q = q.Where(f.Field, "==", f.Value)
		case storage.ArrayContains:
			q = q.Where(f.Field, "array-contains", f.Value)
		default:
			return q, fmt.Errorf("unsupported filter op %d", f.Op)
		}
	}
	return q, nil
}

func toDocs(collection string, snaps []*firestore.DocumentSnapshot) []storage.Doc {
	docs := make([]storage.Doc, 0, len(snaps))
	for _, snap := range snaps {
		docs = append(docs, storage.NewDoc(collection+"/"+snap.Ref.ID, snap.DataTo))
	}
	return docs
}

// classify maps gRPC status codes onto the apperr and storage taxonomy.
func classify(path string, err error) error {
	if err == nil {
		return nil
	}
	switch status.Code(err) {
	case codes.NotFound:
		return fmt.Errorf("%s: %w", path, errors.Join(apperr.ErrNotFound, err))
	case codes.AlreadyExists:
		return fmt.Errorf("%s: %w", path, errors.Join(storage.ErrAlreadyExists, err))
	case codes.Unavailable, codes.DeadlineExceeded, codes.Aborted, codes.ResourceExhausted, codes.Internal:
		return apperr.Transient(fmt.Errorf("%s: %w", path, err))
	}
	return err
}
