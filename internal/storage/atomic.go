package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mmynk/vibecheck/internal/apperr"
)

// RetryPolicy bounds the retries of follow-up writes when a transaction is
// not available.
type RetryPolicy struct {
	Attempts  int
	BaseDelay time.Duration
	MaxDelay  time.Duration
}

// DefaultRetry is used by RunAtomic.
var DefaultRetry = RetryPolicy{
	Attempts:  5,
	BaseDelay: 50 * time.Millisecond,
	MaxDelay:  time.Second,
}

// RunAtomic runs fn in a transaction. If the backend cannot run
// transactions, fn runs against the store directly: the first write commits
// the change and every later write is retried on Transient failures until it
// succeeds or the retry budget is spent. Readers must then tolerate briefly
// seeing only the first write; the membership reconciliation pass repairs
// anything left behind.
func RunAtomic(ctx context.Context, store Store, fn func(tx Tx) error) error {
	return RunAtomicWithRetry(ctx, store, DefaultRetry, fn)
}

// RunAtomicWithRetry is RunAtomic with an explicit retry policy.
func RunAtomicWithRetry(ctx context.Context, store Store, policy RetryPolicy, fn func(tx Tx) error) error {
	err := store.RunTransaction(ctx, fn)
	if !errors.Is(err, ErrTransactionsUnsupported) {
		return err
	}

	slog.Warn("Transactions unavailable, applying writes sequentially")
	return fn(&directTx{ctx: ctx, store: store, policy: policy})
}

// directTx applies operations immediately against the store.
type directTx struct {
	ctx    context.Context
	store  Store
	policy RetryPolicy
	wrote  bool
}

func (t *directTx) Get(path string, dst any) error {
	return t.store.Get(t.ctx, path, dst)
}

func (t *directTx) Write(path string, data any, mode Mode) error {
	return t.apply(func() error { return t.store.Write(t.ctx, path, data, mode) })
}

func (t *directTx) Create(path string, data any) error {
	return t.apply(func() error { return t.store.Create(t.ctx, path, data) })
}

func (t *directTx) AddToSet(path, field, value string) error {
	return t.apply(func() error { return t.store.AddToSet(t.ctx, path, field, value) })
}

func (t *directTx) RemoveFromSet(path, field, value string) error {
	return t.apply(func() error { return t.store.RemoveFromSet(t.ctx, path, field, value) })
}

func (t *directTx) Delete(path string) error {
	return t.apply(func() error { return t.store.Delete(t.ctx, path) })
}

// apply runs the first write once; later writes complete an already
// committed change, so they are retried.
func (t *directTx) apply(op func() error) error {
	if !t.wrote {
		if err := op(); err != nil {
			return err
		}
		t.wrote = true
		return nil
	}
	return Retry(t.ctx, t.policy, op)
}

// Retry runs op until it succeeds, fails with a non-transient error, or the
// policy's attempts are used up. Delays double from BaseDelay up to MaxDelay.
func Retry(ctx context.Context, policy RetryPolicy, op func() error) error {
	attempts := max(policy.Attempts, 1)
	delay := policy.BaseDelay

	var err error
	for i := 0; i < attempts; i++ {
		if err = op(); err == nil || !apperr.Retryable(err) {
			return err
		}
		if i == attempts-1 {
			break
		}

		slog.Warn("Retrying write", "attempt", i+1, "error", err)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return apperr.Transient(ctx.Err())
		case <-timer.C:
		}
		delay = min(delay*2, policy.MaxDelay)
	}
	return fmt.Errorf("write failed after %d attempts: %w", attempts, err)
}
