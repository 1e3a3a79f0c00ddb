// Package sqlite provides a SQLite-backed implementation of the storage.Store interface.
//
// Documents are stored as JSON. Queries use json_extract and json_each, and
// Watch polls a per-collection version counter.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"os"
	"path/filepath"
	"time"

	"modernc.org/sqlite" // Pure Go SQLite driver (no CGO)
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/mmynk/vibecheck/internal/apperr"
	"github.com/mmynk/vibecheck/internal/storage"
)

// Ensure SQLiteStore implements storage.Store
var _ storage.Store = (*SQLiteStore)(nil)

// DefaultPollInterval is how often Watch checks a collection for changes.
const DefaultPollInterval = 500 * time.Millisecond

// SQLiteStore implements storage.Store using SQLite.
type SQLiteStore struct {
	db           *sql.DB
	pollInterval time.Duration
}

// Option configures a SQLiteStore.
type Option func(*SQLiteStore)

// WithPollInterval sets how often watchers poll for changes.
func WithPollInterval(d time.Duration) Option {
	return func(s *SQLiteStore) {
		if d > 0 {
			s.pollInterval = d
		}
	}
}

// New creates a new SQLiteStore with the given database path.
// It creates the parent directories and runs migrations automatically.
func New(dbPath string, opts ...Option) (*SQLiteStore, error) {
	dsn := ":memory:"
	if dbPath != ":memory:" {
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
		dsn = "file:" + dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One connection serializes writers and keeps ":memory:" databases shared.
	db.SetMaxOpenConns(1)

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	s := &SQLiteStore{db: db, pollInterval: DefaultPollInterval}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Get decodes the document at path into dst.
func (s *SQLiteStore) Get(ctx context.Context, path string, dst any) error {
	collection, id, err := storage.SplitDocPath(path)
	if err != nil {
		return err
	}

	var data string
	err = s.db.QueryRowContext(ctx,
		"SELECT data FROM documents WHERE collection = ? AND id = ?",
		collection, id,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return apperr.NotFound("document", path)
	}
	if err != nil {
		return classify(fmt.Errorf("failed to get %s: %w", path, err))
	}

	if err := json.Unmarshal([]byte(data), dst); err != nil {
		return fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return nil
}

// Query returns the documents in collection matching every filter, ordered by id.
func (s *SQLiteStore) Query(ctx context.Context, collection string, filters ...storage.Filter) ([]storage.Doc, error) {
	if err := storage.CheckCollectionPath(collection); err != nil {
		return nil, err
	}
	docs, err := queryDocs(ctx, s.db, collection, filters)
	if err != nil {
		return nil, classify(err)
	}
	return docs, nil
}

// Watch polls collection and yields a snapshot whenever its version moves.
func (s *SQLiteStore) Watch(ctx context.Context, collection string) iter.Seq2[storage.Snapshot, error] {
	return func(yield func(storage.Snapshot, error) bool) {
		if err := storage.CheckCollectionPath(collection); err != nil {
			yield(storage.Snapshot{}, err)
			return
		}
		s.poll(ctx, collection, yield)
	}
}

// Write stores data at path according to mode.
func (s *SQLiteStore) Write(ctx context.Context, path string, data any, mode storage.Mode) error {
	return s.withTx(ctx, func(t *txn) error { return t.Write(path, data, mode) })
}

// Create stores data at path, failing if the document exists.
func (s *SQLiteStore) Create(ctx context.Context, path string, data any) error {
	return s.withTx(ctx, func(t *txn) error { return t.Create(path, data) })
}

// CreateWithAutoID stores data under a fresh id in collection.
func (s *SQLiteStore) CreateWithAutoID(ctx context.Context, collection string, data any) (string, error) {
	if err := storage.CheckCollectionPath(collection); err != nil {
		return "", err
	}
	id := storage.NewID()
	if err := s.Create(ctx, collection+"/"+id, data); err != nil {
		return "", err
	}
	return id, nil
}

// AddToSet adds value to the array field of the document at path.
func (s *SQLiteStore) AddToSet(ctx context.Context, path, field, value string) error {
	return s.withTx(ctx, func(t *txn) error { return t.AddToSet(path, field, value) })
}

// RemoveFromSet removes value from the array field of the document at path.
func (s *SQLiteStore) RemoveFromSet(ctx context.Context, path, field, value string) error {
	return s.withTx(ctx, func(t *txn) error { return t.RemoveFromSet(path, field, value) })
}

// Delete removes the document at path.
func (s *SQLiteStore) Delete(ctx context.Context, path string) error {
	return s.withTx(ctx, func(t *txn) error { return t.Delete(path) })
}

// RunTransaction runs fn inside a single SQLite transaction.
func (s *SQLiteStore) RunTransaction(ctx context.Context, fn func(tx storage.Tx) error) error {
	return s.withTx(ctx, func(t *txn) error { return fn(t) })
}

func (s *SQLiteStore) withTx(ctx context.Context, fn func(t *txn) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return classify(fmt.Errorf("failed to begin transaction: %w", err))
	}
	defer tx.Rollback()

	if err := fn(&txn{ctx: ctx, tx: tx}); err != nil {
		return classify(err)
	}

	if err := tx.Commit(); err != nil {
		return classify(fmt.Errorf("failed to commit transaction: %w", err))
	}
	return nil
}

// classify marks lock contention and deadline errors as transient.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return apperr.Transient(err)
	}
	var serr *sqlite.Error
	if errors.As(err, &serr) {
		switch serr.Code() & 0xff {
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
			return apperr.Transient(err)
		}
	}
	return err
}
