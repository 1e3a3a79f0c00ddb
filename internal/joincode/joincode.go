// Package joincode produces and resolves the short codes users share to
// invite others into a group. Codes are not secrets; collision handling is
// left to the caller, which reserves codes in the store.
package joincode

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"

	"github.com/mmynk/vibecheck/internal/apperr"
	"github.com/mmynk/vibecheck/internal/models"
	"github.com/mmynk/vibecheck/internal/storage"
)

const (
	// Alphabet is the set of characters a code is drawn from.
	Alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	// Length is the number of characters in a code.
	Length = 6
)

// Source produces candidate codes.
type Source interface {
	Generate() string
}

// Generator draws codes uniformly from Alphabet.
type Generator struct{}

// Generate returns a random code.
func (Generator) Generate() string {
	var b [Length]byte
	for i := range b {
		b[i] = Alphabet[rand.IntN(len(Alphabet))]
	}
	return string(b[:])
}

// Normalize trims and uppercases a user-entered code.
func Normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Valid reports whether a normalized code has the right shape.
func Valid(code string) bool {
	if len(code) != Length {
		return false
	}
	for i := 0; i < len(code); i++ {
		if !strings.ContainsRune(Alphabet, rune(code[i])) {
			return false
		}
	}
	return true
}

// Resolver looks codes up in the store.
type Resolver struct {
	store storage.Store
}

// NewResolver creates a Resolver over store.
func NewResolver(store storage.Store) *Resolver {
	return &Resolver{store: store}
}

// Resolve returns the group holding code, or nil if no group holds it.
// The reservation document is consulted first; groups created before
// reservations existed are found by their code field.
func (r *Resolver) Resolve(ctx context.Context, code string) (*models.Group, error) {
	code = Normalize(code)
	if !Valid(code) {
		return nil, nil
	}

	var reservation models.JoinCode
	err := r.store.Get(ctx, storage.JoinCodePath(code), &reservation)
	switch {
	case err == nil:
		g, err := r.loadGroup(ctx, reservation.GroupID)
		if err != nil || g != nil {
			return g, err
		}
		// Stale reservation: fall through to the field lookup.
	case !errors.Is(err, apperr.ErrNotFound):
		return nil, fmt.Errorf("failed to read join code: %w", err)
	}

	docs, err := r.store.Query(ctx, storage.GroupsCollection, storage.Where(storage.FieldCode, code))
	if err != nil {
		return nil, fmt.Errorf("failed to look up join code: %w", err)
	}
	if len(docs) == 0 {
		return nil, nil
	}

	var g models.Group
	if err := docs[0].DataTo(&g); err != nil {
		return nil, fmt.Errorf("failed to decode group: %w", err)
	}
	g.ID = docs[0].ID
	return &g, nil
}

func (r *Resolver) loadGroup(ctx context.Context, groupID string) (*models.Group, error) {
	if !storage.ValidID(groupID) {
		return nil, nil
	}
	var g models.Group
	err := r.store.Get(ctx, storage.GroupPath(groupID), &g)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read group: %w", err)
	}
	g.ID = groupID
	return &g, nil
}
