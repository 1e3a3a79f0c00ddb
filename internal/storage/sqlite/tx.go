package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/mmynk/vibecheck/internal/apperr"
	"github.com/mmynk/vibecheck/internal/storage"
)

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// txn implements storage.Tx on top of a SQL transaction.
type txn struct {
	ctx context.Context
	tx  *sql.Tx
}

func (t *txn) Get(path string, dst any) error {
	collection, id, err := storage.SplitDocPath(path)
	if err != nil {
		return err
	}
	raw, ok, err := t.load(collection, id)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.NotFound("document", path)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return nil
}

func (t *txn) Write(path string, data any, mode storage.Mode) error {
	collection, id, err := storage.SplitDocPath(path)
	if err != nil {
		return err
	}

	if mode == storage.Replace {
		raw, err := json.Marshal(data)
		if err != nil {
			return fmt.Errorf("failed to encode %s: %w", path, err)
		}
		return t.put(collection, id, raw)
	}

	var removed []string
	if mode == storage.Update {
		set, ok := data.(storage.Fields)
		if !ok {
			return fmt.Errorf("update write needs storage.Fields, got %T", data)
		}
		kept := storage.Fields{}
		for k, v := range set {
			if v == storage.DeleteField {
				removed = append(removed, k)
			} else {
				kept[k] = v
			}
		}
		data = kept
	}

	fields, err := toFields(data)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}
	doc, found, err := t.loadFields(collection, id)
	if err != nil {
		return err
	}
	if mode == storage.Update && !found {
		return apperr.NotFound("document", path)
	}
	for k, v := range fields {
		doc[k] = v
	}
	for _, k := range removed {
		delete(doc, k)
	}
	return t.putFields(collection, id, doc)
}

func (t *txn) Create(path string, data any) error {
	collection, id, err := storage.SplitDocPath(path)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}

	res, err := t.tx.ExecContext(t.ctx,
		`INSERT INTO documents (collection, id, data, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (collection, id) DO NOTHING`,
		collection, id, string(raw), time.Now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%s: %w", path, storage.ErrAlreadyExists)
	}
	return t.bump(collection)
}

func (t *txn) AddToSet(path, field, value string) error {
	return t.updateSet(path, field, func(set []string) ([]string, bool) {
		if slices.Contains(set, value) {
			return set, false
		}
		return append(set, value), true
	})
}

func (t *txn) RemoveFromSet(path, field, value string) error {
	return t.updateSet(path, field, func(set []string) ([]string, bool) {
		i := slices.Index(set, value)
		if i < 0 {
			return set, false
		}
		return slices.Delete(set, i, i+1), true
	})
}

func (t *txn) Delete(path string) error {
	collection, id, err := storage.SplitDocPath(path)
	if err != nil {
		return err
	}
	res, err := t.tx.ExecContext(t.ctx,
		"DELETE FROM documents WHERE collection = ? AND id = ?",
		collection, id,
	)
	if err != nil {
		return fmt.Errorf("failed to delete %s: %w", path, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil
	}
	return t.bump(collection)
}

// updateSet rewrites an array field. A missing or null field counts as empty.
func (t *txn) updateSet(path, field string, change func([]string) ([]string, bool)) error {
	collection, id, err := storage.SplitDocPath(path)
	if err != nil {
		return err
	}
	doc, ok, err := t.loadFields(collection, id)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.NotFound("document", path)
	}

	var set []string
	if raw, ok := doc[field]; ok && string(raw) != "null" {
		if err := json.Unmarshal(raw, &set); err != nil {
			return fmt.Errorf("field %s of %s is not a string array: %w", field, path, err)
		}
	}

	set, changed := change(set)
	if !changed {
		return nil
	}
	if set == nil {
		set = []string{}
	}
	raw, err := json.Marshal(set)
	if err != nil {
		return err
	}
	doc[field] = raw
	return t.putFields(collection, id, doc)
}

func (t *txn) load(collection, id string) ([]byte, bool, error) {
	var data string
	err := t.tx.QueryRowContext(t.ctx,
		"SELECT data FROM documents WHERE collection = ? AND id = ?",
		collection, id,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read %s/%s: %w", collection, id, err)
	}
	return []byte(data), true, nil
}

func (t *txn) loadFields(collection, id string) (map[string]json.RawMessage, bool, error) {
	raw, ok, err := t.load(collection, id)
	if err != nil || !ok {
		return map[string]json.RawMessage{}, false, err
	}
	doc := map[string]json.RawMessage{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, false, fmt.Errorf("failed to decode %s/%s: %w", collection, id, err)
	}
	return doc, true, nil
}

func (t *txn) putFields(collection, id string, doc map[string]json.RawMessage) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	return t.put(collection, id, raw)
}

func (t *txn) put(collection, id string, raw []byte) error {
	_, err := t.tx.ExecContext(t.ctx,
		`INSERT INTO documents (collection, id, data, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (collection, id) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		collection, id, string(raw), time.Now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to write %s/%s: %w", collection, id, err)
	}
	return t.bump(collection)
}

func (t *txn) bump(collection string) error {
	_, err := t.tx.ExecContext(t.ctx,
		`INSERT INTO collection_versions (collection, version) VALUES (?, 1)
		 ON CONFLICT (collection) DO UPDATE SET version = version + 1`,
		collection,
	)
	if err != nil {
		return fmt.Errorf("failed to bump version of %s: %w", collection, err)
	}
	return nil
}

// toFields encodes a Merge payload into top-level JSON fields.
func toFields(data any) (map[string]json.RawMessage, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("merge data must encode to an object: %w", err)
	}
	return fields, nil
}

// queryDocs runs a filtered collection query against q.
func queryDocs(ctx context.Context, q querier, collection string, filters []storage.Filter) ([]storage.Doc, error) {
	var sb strings.Builder
	sb.WriteString("SELECT id, data FROM documents WHERE collection = ?")
	args := []any{collection}

	for _, f := range filters {
		switch f.Op {
		case storage.Equal:
			sb.WriteString(" AND json_extract(data, ?) = ?")
		case storage.ArrayContains:
			sb.WriteString(" AND EXISTS (SELECT 1 FROM json_each(data, ?) WHERE json_each.value = ?)")
		default:
			return nil, fmt.Errorf("unsupported filter op %d", f.Op)
		}
		args = append(args, "$."+f.Field, f.Value)
	}
	sb.WriteString(" ORDER BY id")

	rows, err := q.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", collection, err)
	}
	defer rows.Close()

	var docs []storage.Doc
	for rows.Next() {
		var id, data string
		if err := rows.Scan(&id, &data); err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", collection, err)
		}
		raw := []byte(data)
		docs = append(docs, storage.NewDoc(collection+"/"+id, func(dst any) error {
			return json.Unmarshal(raw, dst)
		}))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate %s: %w", collection, err)
	}
	return docs, nil
}
