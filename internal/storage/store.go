// Package storage provides the document store contract used by every service.
//
// Documents live at slash-separated paths ("groups/g1", "groups/g1/vibes/v1").
// A collection path has an odd number of segments, a document path an even
// number. Backends (sqlite, firestore, mongo) implement Store; services never
// depend on a concrete backend.
package storage

import (
	"context"
	"errors"
	"iter"
	"time"
)

var (
	// ErrAlreadyExists is returned by Create when the document exists.
	ErrAlreadyExists = errors.New("document already exists")

	// ErrTransactionsUnsupported is returned by RunTransaction when the backend
	// cannot run multi-document transactions (e.g. a standalone MongoDB).
	// RunAtomic falls back to sequential writes when it sees this error.
	ErrTransactionsUnsupported = errors.New("transactions not supported")

	// ErrInvalidPath is returned for malformed document or collection paths.
	ErrInvalidPath = errors.New("invalid path")
)

// Mode selects how Write treats an existing document.
type Mode int

const (
	// Replace overwrites the whole document.
	Replace Mode = iota
	// Merge sets the given top-level fields and keeps the rest, creating the
	// document when it does not exist. Data must be Fields.
	Merge
	// Update sets the given top-level fields of an existing document and
	// fails with ErrNotFound when it is missing. Data must be Fields; a field
	// set to DeleteField is removed.
	Update
)

func (m Mode) String() string {
	switch m {
	case Merge:
		return "merge"
	case Update:
		return "update"
	}
	return "replace"
}

// Fields is a partial document used with Merge and Update writes.
type Fields map[string]any

type deleteField struct{}

// DeleteField removes a field in an Update write.
var DeleteField any = deleteField{}

// Op is a query filter operator.
type Op int

const (
	// Equal matches documents whose field equals Value.
	Equal Op = iota
	// ArrayContains matches documents whose array field contains Value.
	ArrayContains
)

// Filter restricts a Query to matching documents.
type Filter struct {
	Field string
	Op    Op
	Value string
}

// Where builds an Equal filter.
func Where(field, value string) Filter {
	return Filter{Field: field, Op: Equal, Value: value}
}

// WhereContains builds an ArrayContains filter.
func WhereContains(field, value string) Filter {
	return Filter{Field: field, Op: ArrayContains, Value: value}
}

// Doc is one document of a query result or snapshot. Its data is decoded
// lazily into the caller's struct by DataTo.
type Doc struct {
	ID   string
	Path string

	decode func(dst any) error
}

// NewDoc is used by backends to build a Doc around their native decoder.
func NewDoc(path string, decode func(dst any) error) Doc {
	_, id, _ := SplitDocPath(path)
	return Doc{ID: id, Path: path, decode: decode}
}

// DataTo decodes the document into dst, which must be a pointer to a struct
// tagged for every backend (json, firestore, bson).
func (d Doc) DataTo(dst any) error {
	if d.decode == nil {
		return errors.New("storage: document has no data")
	}
	return d.decode(dst)
}

// Snapshot is the complete current content of a collection.
type Snapshot struct {
	Collection string
	Docs       []Doc
	ReadAt     time.Time
}

// Store is the document store adapter.
//
// Single-document operations (Write, AddToSet, RemoveFromSet, Delete) are
// atomic at document granularity. AddToSet and RemoveFromSet are idempotent
// and commutative, which is what makes concurrent participation updates safe
// without coordination.
type Store interface {
	// Get decodes the document at path into dst.
	// Returns an error wrapping apperr.ErrNotFound when it does not exist.
	Get(ctx context.Context, path string, dst any) error

	// Query returns the documents of a collection matching every filter,
	// or all documents when no filter is given.
	Query(ctx context.Context, collection string, filters ...Filter) ([]Doc, error)

	// Watch returns a lazy sequence of full collection snapshots: an initial
	// snapshot followed by a new one after every change. Each range over the
	// sequence opens its own subscription, which is released when the loop
	// exits or ctx is cancelled. Snapshots never regress for a subscriber.
	Watch(ctx context.Context, collection string) iter.Seq2[Snapshot, error]

	// Write stores data at path according to mode.
	Write(ctx context.Context, path string, data any, mode Mode) error

	// Create stores data at path, failing with ErrAlreadyExists if a document is there.
	Create(ctx context.Context, path string, data any) error

	// CreateWithAutoID stores data under a new id in collection and returns the id.
	CreateWithAutoID(ctx context.Context, collection string, data any) (string, error)

	// AddToSet adds value to the array field, if absent.
	// Returns an error wrapping apperr.ErrNotFound when the document does not exist.
	AddToSet(ctx context.Context, path, field, value string) error

	// RemoveFromSet removes value from the array field, if present.
	// Returns an error wrapping apperr.ErrNotFound when the document does not exist.
	RemoveFromSet(ctx context.Context, path, field, value string) error

	// Delete removes the document at path. Deleting a missing document is not an error.
	Delete(ctx context.Context, path string) error

	// RunTransaction runs fn atomically. fn may be invoked more than once and
	// must not have side effects outside tx. Backends that require it expect
	// every read to happen before the first write.
	RunTransaction(ctx context.Context, fn func(tx Tx) error) error

	// Close releases any resources held by the store.
	Close() error
}

// Tx is the set of operations available inside RunTransaction.
// Semantics match the Store methods of the same name.
type Tx interface {
	Get(path string, dst any) error
	Write(path string, data any, mode Mode) error
	Create(path string, data any) error
	AddToSet(path, field, value string) error
	RemoveFromSet(path, field, value string) error
	Delete(path string) error
}
