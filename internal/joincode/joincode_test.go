package joincode

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mmynk/vibecheck/internal/models"
	"github.com/mmynk/vibecheck/internal/storage"
	"github.com/mmynk/vibecheck/internal/storage/sqlite"
)

func TestGenerate(t *testing.T) {
	var g Generator
	seen := make(map[string]bool)
	for range 1000 {
		code := g.Generate()
		if !Valid(code) {
			t.Fatalf("generated invalid code %q", code)
		}
		seen[code] = true
	}
	// 36^6 possibilities; a thousand draws colliding more than a couple of
	// times would mean the generator is broken.
	if len(seen) < 995 {
		t.Errorf("too many collisions: %d distinct of 1000", len(seen))
	}
}

func TestNormalizeAndValid(t *testing.T) {
	tests := []struct {
		in        string
		want      string
		wantValid bool
	}{
		{"abc123", "ABC123", true},
		{"  xk92qz ", "XK92QZ", true},
		{"ABC12", "ABC12", false},
		{"ABC1234", "ABC1234", false},
		{"AB-123", "AB-123", false},
		{"", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := Normalize(tt.in)
			if got != tt.want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
			}
			if Valid(got) != tt.wantValid {
				t.Errorf("Valid(%q) = %v, want %v", got, !tt.wantValid, tt.wantValid)
			}
		})
	}
}

func TestResolver(t *testing.T) {
	store, err := sqlite.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer store.Close()
	ctx := context.Background()

	reserved := models.Group{Name: "Reserved", JoinCode: "RES123", MemberIDs: []string{"u1"}}
	store.Write(ctx, storage.GroupPath("g1"), reserved, storage.Replace)
	store.Write(ctx, storage.JoinCodePath("RES123"), models.JoinCode{GroupID: "g1", CreatedAt: time.Now()}, storage.Replace)

	legacy := models.Group{Name: "Legacy", JoinCode: "OLD999", MemberIDs: []string{"u2"}}
	store.Write(ctx, storage.GroupPath("g2"), legacy, storage.Replace)

	store.Write(ctx, storage.JoinCodePath("GONE00"), models.JoinCode{GroupID: "deleted"}, storage.Replace)

	r := NewResolver(store)

	tests := []struct {
		name   string
		code   string
		wantID string
	}{
		{"reservation", "RES123", "g1"},
		{"case-insensitive", " res123", "g1"},
		{"legacy code field", "old999", "g2"},
		{"unknown", "ZZZZZZ", ""},
		{"stale reservation", "GONE00", ""},
		{"malformed", "nope", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, err := r.Resolve(ctx, tt.code)
			if err != nil {
				t.Fatalf("Resolve failed: %v", err)
			}
			if tt.wantID == "" {
				if g != nil {
					t.Errorf("expected no group, got %s", g.ID)
				}
				return
			}
			if g == nil || g.ID != tt.wantID {
				t.Fatalf("expected group %s, got %+v", tt.wantID, g)
			}
			if !strings.EqualFold(g.JoinCode, strings.TrimSpace(tt.code)) {
				t.Errorf("code mismatch: %s", g.JoinCode)
			}
		})
	}
}
