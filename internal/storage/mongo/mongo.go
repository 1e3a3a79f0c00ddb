// Package mongo implements storage.Store on MongoDB.
//
// A path's last collection segment names the MongoDB collection. Documents
// keep their full path in _id and their collection path in _parent, so
// subcollections of different parents share one MongoDB collection.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"regexp"
	"strings"
	"sync/atomic"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/mmynk/vibecheck/internal/apperr"
	"github.com/mmynk/vibecheck/internal/storage"
)

const (
	fieldID     = "_id"
	fieldParent = "_parent"
)

var _ storage.Store = (*Store)(nil)

// Store is a MongoDB-backed storage.Store.
type Store struct {
	client *mongo.Client
	db     *mongo.Database

	// noTxn is set once the deployment has rejected a transaction.
	noTxn atomic.Bool
}

// New connects to uri and uses the named database.
func New(ctx context.Context, uri, database string, timeout time.Duration) (*Store, error) {
	opts := options.Client().ApplyURI(uri)
	if timeout > 0 {
		opts.SetTimeout(timeout)
	}

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongo: %w", err)
	}

	return &Store{client: client, db: client.Database(database)}, nil
}

// Close disconnects the client.
func (s *Store) Close() error {
	return s.client.Disconnect(context.Background())
}

// location is a document or collection path resolved to a MongoDB collection.
type location struct {
	coll   *mongo.Collection
	parent string
	path   string
}

// locateDoc resolves a document path. _parent is the document's collection path.
func (s *Store) locateDoc(path string) (location, error) {
	parent, _, err := storage.SplitDocPath(path)
	if err != nil {
		return location{}, err
	}
	return location{coll: s.db.Collection(collectionName(parent)), parent: parent, path: path}, nil
}

func (s *Store) locateCollection(path string) (location, error) {
	if err := storage.CheckCollectionPath(path); err != nil {
		return location{}, err
	}
	return location{coll: s.db.Collection(collectionName(path)), parent: path, path: path}, nil
}

// collectionName returns the last segment of a collection path.
func collectionName(path string) string {
	return path[strings.LastIndex(path, "/")+1:]
}

func (s *Store) Get(ctx context.Context, path string, dst any) error {
	loc, err := s.locateDoc(path)
	if err != nil {
		return err
	}
	err = loc.coll.FindOne(ctx, bson.M{fieldID: path}).Decode(dst)
	if err == mongo.ErrNoDocuments {
		return apperr.NotFound("document", path)
	}
	return classify(path, err)
}

func (s *Store) Query(ctx context.Context, collection string, filters ...storage.Filter) ([]storage.Doc, error) {
	loc, err := s.locateCollection(collection)
	if err != nil {
		return nil, err
	}
	filter, err := buildFilter(loc.parent, filters)
	if err != nil {
		return nil, err
	}
	return s.find(ctx, loc, filter)
}

func (s *Store) find(ctx context.Context, loc location, filter bson.M) ([]storage.Doc, error) {
	cur, err := loc.coll.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: fieldID, Value: 1}}))
	if err != nil {
		return nil, classify(loc.path, err)
	}
	var raws []bson.Raw
	if err := cur.All(ctx, &raws); err != nil {
		return nil, classify(loc.path, err)
	}

	docs := make([]storage.Doc, 0, len(raws))
	for _, raw := range raws {
		path, ok := raw.Lookup(fieldID).StringValueOK()
		if !ok {
			continue
		}
		docs = append(docs, storage.NewDoc(path, func(dst any) error {
			return bson.Unmarshal(raw, dst)
		}))
	}
	return docs, nil
}

// Watch yields the collection's documents, then re-reads them after every
// change event on a change stream. Change streams need a replica set.
func (s *Store) Watch(ctx context.Context, collection string) iter.Seq2[storage.Snapshot, error] {
	return func(yield func(storage.Snapshot, error) bool) {
		loc, err := s.locateCollection(collection)
		if err != nil {
			yield(storage.Snapshot{}, err)
			return
		}

		pipeline := mongo.Pipeline{{{Key: "$match", Value: bson.M{
			"documentKey._id": bson.M{"$regex": childPattern(collection)},
		}}}}
		stream, err := loc.coll.Watch(ctx, pipeline)
		if err != nil {
			yield(storage.Snapshot{}, classify(collection, err))
			return
		}
		defer stream.Close(context.Background())

		for {
			docs, err := s.find(ctx, loc, bson.M{fieldParent: loc.parent})
			if ctx.Err() != nil {
				return
			}
			snap := storage.Snapshot{Collection: collection, Docs: docs, ReadAt: time.Now()}
			if !yield(snap, err) {
				return
			}

			if !stream.Next(ctx) {
				if ctx.Err() == nil && stream.Err() != nil {
					slog.Warn("Mongo change stream ended", "collection", collection, "error", stream.Err())
					yield(storage.Snapshot{}, classify(collection, stream.Err()))
				}
				return
			}
		}
	}
}

// childPattern matches ids of documents directly inside collection.
func childPattern(collection string) string {
	return "^" + regexp.QuoteMeta(collection+"/") + "[^/]+$"
}

func (s *Store) Write(ctx context.Context, path string, data any, mode storage.Mode) error {
	loc, err := s.locateDoc(path)
	if err != nil {
		return err
	}

	if mode == storage.Update {
		fields, ok := data.(storage.Fields)
		if !ok {
			return fmt.Errorf("update write needs storage.Fields, got %T", data)
		}
		set, unset := bson.M{}, bson.M{}
		for k, v := range fields {
			if v == storage.DeleteField {
				unset[k] = ""
			} else {
				set[k] = v
			}
		}
		update := bson.M{}
		if len(set) > 0 {
			update["$set"] = set
		}
		if len(unset) > 0 {
			update["$unset"] = unset
		}
		if len(update) == 0 {
			update["$set"] = bson.M{fieldParent: loc.parent}
		}
		return s.updateOne(ctx, path, loc, update)
	}

	if mode == storage.Merge {
		fields, ok := data.(storage.Fields)
		if !ok {
			return fmt.Errorf("merge write needs storage.Fields, got %T", data)
		}
		update := bson.M{
			"$set":         map[string]any(fields),
			"$setOnInsert": bson.M{fieldParent: loc.parent},
		}
		_, err = loc.coll.UpdateOne(ctx, bson.M{fieldID: path}, update, options.Update().SetUpsert(true))
		return classify(path, err)
	}

	doc, err := toDocument(loc, data)
	if err != nil {
		return err
	}
	_, err = loc.coll.ReplaceOne(ctx, bson.M{fieldID: path}, doc, options.Replace().SetUpsert(true))
	return classify(path, err)
}

func (s *Store) Create(ctx context.Context, path string, data any) error {
	loc, err := s.locateDoc(path)
	if err != nil {
		return err
	}
	doc, err := toDocument(loc, data)
	if err != nil {
		return err
	}
	_, err = loc.coll.InsertOne(ctx, doc)
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("%s: %w", path, storage.ErrAlreadyExists)
	}
	return classify(path, err)
}

func (s *Store) CreateWithAutoID(ctx context.Context, collection string, data any) (string, error) {
	if err := storage.CheckCollectionPath(collection); err != nil {
		return "", err
	}
	id := primitive.NewObjectID().Hex()
	if err := s.Create(ctx, collection+"/"+id, data); err != nil {
		return "", err
	}
	return id, nil
}

func (s *Store) AddToSet(ctx context.Context, path, field, value string) error {
	return s.updateSet(ctx, path, bson.M{"$addToSet": bson.M{field: value}})
}

func (s *Store) RemoveFromSet(ctx context.Context, path, field, value string) error {
	return s.updateSet(ctx, path, bson.M{"$pull": bson.M{field: value}})
}

func (s *Store) updateSet(ctx context.Context, path string, update bson.M) error {
	loc, err := s.locateDoc(path)
	if err != nil {
		return err
	}
	return s.updateOne(ctx, path, loc, update)
}

// updateOne applies update to an existing document, never inserting one.
func (s *Store) updateOne(ctx context.Context, path string, loc location, update bson.M) error {
	res, err := loc.coll.UpdateOne(ctx, bson.M{fieldID: path}, update)
	if err != nil {
		return classify(path, err)
	}
	if res.MatchedCount == 0 {
		return apperr.NotFound("document", path)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, path string) error {
	loc, err := s.locateDoc(path)
	if err != nil {
		return err
	}
	_, err = loc.coll.DeleteOne(ctx, bson.M{fieldID: path})
	return classify(path, err)
}

// RunTransaction runs fn in a multi-document transaction. Standalone
// deployments reject transactions; after the first rejection every call
// returns storage.ErrTransactionsUnsupported so storage.RunAtomic can fall
// back to sequential writes.
func (s *Store) RunTransaction(ctx context.Context, fn func(tx storage.Tx) error) error {
	if s.noTxn.Load() {
		return storage.ErrTransactionsUnsupported
	}

	sess, err := s.client.StartSession()
	if err != nil {
		return classify("session", err)
	}
	defer sess.EndSession(context.Background())

	_, err = sess.WithTransaction(ctx, func(sc mongo.SessionContext) (any, error) {
		return nil, fn(&txn{ctx: sc, store: s})
	})
	if IsNotSupported(err) {
		s.noTxn.Store(true)
		slog.Warn("MongoDB deployment does not support transactions", "error", err)
		return fmt.Errorf("%w: %w", storage.ErrTransactionsUnsupported, err)
	}
	return classify("transaction", err)
}

// txn runs store operations within a session context.
type txn struct {
	ctx   context.Context
	store *Store
}

func (t *txn) Get(path string, dst any) error { return t.store.Get(t.ctx, path, dst) }

func (t *txn) Write(path string, data any, mode storage.Mode) error {
	return t.store.Write(t.ctx, path, data, mode)
}

func (t *txn) Create(path string, data any) error { return t.store.Create(t.ctx, path, data) }

func (t *txn) AddToSet(path, field, value string) error {
	return t.store.AddToSet(t.ctx, path, field, value)
}

func (t *txn) RemoveFromSet(path, field, value string) error {
	return t.store.RemoveFromSet(t.ctx, path, field, value)
}

func (t *txn) Delete(path string) error { return t.store.Delete(t.ctx, path) }

// toDocument encodes data and stamps it with its path and parent.
func toDocument(loc location, data any) (bson.M, error) {
	raw, err := bson.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", loc.path, err)
	}
	doc := bson.M{}
	if err := bson.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", loc.path, err)
	}
	doc[fieldID] = loc.path
	doc[fieldParent] = loc.parent
	return doc, nil
}

// buildFilter translates storage filters. MongoDB equality on an array field
// already matches containment, so both operators map to the same clause.
func buildFilter(parent string, filters []storage.Filter) (bson.M, error) {
	filter := bson.M{fieldParent: parent}
	for _, f := range filters {
		if strings.HasPrefix(f.Field, "_") {
			return nil, fmt.Errorf("reserved field %q", f.Field)
		}
		switch f.Op {
		case storage.Equal, storage.ArrayContains:
			filter[f.Field] = f.Value
		default:
			return nil, fmt.Errorf("unsupported filter op %d", f.Op)
		}
	}
	return filter, nil
}

// classify marks network errors and timeouts as transient.
func classify(path string, err error) error {
	if err == nil {
		return nil
	}
	if mongo.IsNetworkError(err) || mongo.IsTimeout(err) {
		return apperr.Transient(fmt.Errorf("%s: %w", path, err))
	}
	return err
}

// IsNotSupported reports whether err means the deployment cannot run
// multi-document transactions (standalone servers, some emulators).
func IsNotSupported(err error) bool {
	if err == nil {
		return false
	}

	var ce mongo.CommandError
	if errors.As(err, &ce) {
		switch ce.Code {
		case 20, 51, 263:
			return true
		}
	}

	msg := strings.ToLower(err.Error())
	has := func(s string) bool { return strings.Contains(msg, s) }
	switch {
	case has("transaction") && has("replica set"):
		return true
	case has("session") && has("not supported"):
		return true
	case has("transaction") && has("session"):
		return true
	case has("illegal operation"):
		return true
	}
	return false
}
