package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mmynk/vibecheck/internal/storage"
)

// poll yields the initial snapshot and then one per observed version change
// until ctx is done or the consumer stops. Read errors are reported to the
// consumer and polling continues.
func (s *SQLiteStore) poll(ctx context.Context, collection string, yield func(storage.Snapshot, error) bool) {
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	last := int64(-1)
	for {
		version, snap, err := s.snapshot(ctx, collection, last)
		switch {
		case ctx.Err() != nil:
			return
		case err != nil:
			slog.Warn("Watch poll failed", "collection", collection, "error", err)
			if !yield(storage.Snapshot{}, classify(err)) {
				return
			}
		case version > last:
			last = version
			if !yield(snap, nil) {
				return
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// snapshot reads the collection version and, when it is newer than since,
// the collection's documents in the same transaction.
func (s *SQLiteStore) snapshot(ctx context.Context, collection string, since int64) (int64, storage.Snapshot, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, storage.Snapshot{}, fmt.Errorf("failed to begin snapshot: %w", err)
	}
	defer tx.Rollback()

	var version int64
	err = tx.QueryRowContext(ctx,
		"SELECT version FROM collection_versions WHERE collection = ?",
		collection,
	).Scan(&version)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return 0, storage.Snapshot{}, fmt.Errorf("failed to read version of %s: %w", collection, err)
	}
	if version <= since {
		return version, storage.Snapshot{}, nil
	}

	docs, err := queryDocs(ctx, tx, collection, nil)
	if err != nil {
		return 0, storage.Snapshot{}, err
	}
	return version, storage.Snapshot{Collection: collection, Docs: docs, ReadAt: time.Now()}, nil
}
