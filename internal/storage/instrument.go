package storage

import (
	"context"
	"iter"
	"time"
)

// Operation names reported to an Observer. Operations inside a transaction
// use the same names as their direct counterparts.
const (
	OpGet           = "get"
	OpQuery         = "query"
	OpWatch         = "watch_snapshot"
	OpWrite         = "write"
	OpCreate        = "create"
	OpCreateAutoID  = "create_auto_id"
	OpAddToSet      = "add_to_set"
	OpRemoveFromSet = "remove_from_set"
	OpDelete        = "delete"
	OpTransaction   = "transaction"
)

// IsWriteOp reports whether op mutates a document.
func IsWriteOp(op string) bool {
	switch op {
	case OpWrite, OpCreate, OpCreateAutoID, OpAddToSet, OpRemoveFromSet, OpDelete:
		return true
	}
	return false
}

// Observer receives one call per store operation.
type Observer interface {
	ObserveOp(op string, d time.Duration, err error)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(op string, d time.Duration, err error)

func (f ObserverFunc) ObserveOp(op string, d time.Duration, err error) { f(op, d, err) }

// Instrument wraps s so that every operation is reported to o.
func Instrument(s Store, o Observer) Store {
	return &instrumented{next: s, obs: o}
}

type instrumented struct {
	next Store
	obs  Observer
}

func (s *instrumented) observe(op string, start time.Time, err error) error {
	s.obs.ObserveOp(op, time.Since(start), err)
	return err
}

func (s *instrumented) Get(ctx context.Context, path string, dst any) error {
	start := time.Now()
	return s.observe(OpGet, start, s.next.Get(ctx, path, dst))
}

func (s *instrumented) Query(ctx context.Context, collection string, filters ...Filter) ([]Doc, error) {
	start := time.Now()
	docs, err := s.next.Query(ctx, collection, filters...)
	return docs, s.observe(OpQuery, start, err)
}

func (s *instrumented) Watch(ctx context.Context, collection string) iter.Seq2[Snapshot, error] {
	return func(yield func(Snapshot, error) bool) {
		start := time.Now()
		for snap, err := range s.next.Watch(ctx, collection) {
			s.observe(OpWatch, start, err)
			if !yield(snap, err) {
				return
			}
			start = time.Now()
		}
	}
}

func (s *instrumented) Write(ctx context.Context, path string, data any, mode Mode) error {
	start := time.Now()
	return s.observe(OpWrite, start, s.next.Write(ctx, path, data, mode))
}

func (s *instrumented) Create(ctx context.Context, path string, data any) error {
	start := time.Now()
	return s.observe(OpCreate, start, s.next.Create(ctx, path, data))
}

func (s *instrumented) CreateWithAutoID(ctx context.Context, collection string, data any) (string, error) {
	start := time.Now()
	id, err := s.next.CreateWithAutoID(ctx, collection, data)
	return id, s.observe(OpCreateAutoID, start, err)
}

func (s *instrumented) AddToSet(ctx context.Context, path, field, value string) error {
	start := time.Now()
	return s.observe(OpAddToSet, start, s.next.AddToSet(ctx, path, field, value))
}

func (s *instrumented) RemoveFromSet(ctx context.Context, path, field, value string) error {
	start := time.Now()
	return s.observe(OpRemoveFromSet, start, s.next.RemoveFromSet(ctx, path, field, value))
}

func (s *instrumented) Delete(ctx context.Context, path string) error {
	start := time.Now()
	return s.observe(OpDelete, start, s.next.Delete(ctx, path))
}

func (s *instrumented) RunTransaction(ctx context.Context, fn func(tx Tx) error) error {
	start := time.Now()
	err := s.next.RunTransaction(ctx, func(tx Tx) error {
		return fn(&instrumentedTx{next: tx, obs: s.obs})
	})
	return s.observe(OpTransaction, start, err)
}

func (s *instrumented) Close() error {
	return s.next.Close()
}

type instrumentedTx struct {
	next Tx
	obs  Observer
}

func (t *instrumentedTx) observe(op string, start time.Time, err error) error {
	t.obs.ObserveOp(op, time.Since(start), err)
	return err
}

func (t *instrumentedTx) Get(path string, dst any) error {
	start := time.Now()
	return t.observe(OpGet, start, t.next.Get(path, dst))
}

func (t *instrumentedTx) Write(path string, data any, mode Mode) error {
	start := time.Now()
	return t.observe(OpWrite, start, t.next.Write(path, data, mode))
}

func (t *instrumentedTx) Create(path string, data any) error {
	start := time.Now()
	return t.observe(OpCreate, start, t.next.Create(path, data))
}

func (t *instrumentedTx) AddToSet(path, field, value string) error {
	start := time.Now()
	return t.observe(OpAddToSet, start, t.next.AddToSet(path, field, value))
}

func (t *instrumentedTx) RemoveFromSet(path, field, value string) error {
	start := time.Now()
	return t.observe(OpRemoveFromSet, start, t.next.RemoveFromSet(path, field, value))
}

func (t *instrumentedTx) Delete(path string) error {
	start := time.Now()
	return t.observe(OpDelete, start, t.next.Delete(path))
}
