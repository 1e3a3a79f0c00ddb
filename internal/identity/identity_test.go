package identity

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/oauth2"

	"github.com/mmynk/vibecheck/internal/apperr"
	"github.com/mmynk/vibecheck/internal/models"
	"github.com/mmynk/vibecheck/internal/storage"
	"github.com/mmynk/vibecheck/internal/storage/sqlite"
)

func setupStore(t *testing.T) storage.Store {
	t.Helper()
	store, err := sqlite.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestJWTManager(t *testing.T) {
	m := NewJWTManager("test-secret", time.Hour)
	profile := Profile{UserID: "u1", DisplayName: "Ana", Email: "ana@example.com", AvatarURL: "https://img/ana.png"}

	t.Run("round trip", func(t *testing.T) {
		token, err := m.Generate(profile)
		if err != nil {
			t.Fatalf("Generate failed: %v", err)
		}
		claims, err := m.Validate(token)
		if err != nil {
			t.Fatalf("Validate failed: %v", err)
		}
		if claims.Profile() != profile {
			t.Errorf("got %+v, want %+v", claims.Profile(), profile)
		}
	})

	t.Run("wrong secret", func(t *testing.T) {
		token, _ := NewJWTManager("other", time.Hour).Generate(profile)
		if _, err := m.Validate(token); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("expected ErrInvalidToken, got %v", err)
		}
	})

	t.Run("expired", func(t *testing.T) {
		token, _ := NewJWTManager("test-secret", -time.Minute).Generate(profile)
		if _, err := m.Validate(token); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("expected ErrInvalidToken, got %v", err)
		}
	})

	t.Run("garbage", func(t *testing.T) {
		if _, err := m.Validate("not.a.token"); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("expected ErrInvalidToken, got %v", err)
		}
	})
}

func TestContextIdentity(t *testing.T) {
	var id ContextIdentity
	ctx := context.Background()

	if _, ok := id.CurrentUserID(ctx); ok {
		t.Error("expected no user on a bare context")
	}
	if _, err := id.CurrentUserProfile(ctx); !errors.Is(err, ErrUnauthenticated) {
		t.Errorf("expected ErrUnauthenticated, got %v", err)
	}

	ctx = WithClaims(ctx, &Claims{UserID: "u1", Name: "Ana"})
	uid, ok := id.CurrentUserID(ctx)
	if !ok || uid != "u1" {
		t.Errorf("CurrentUserID = %q, %v", uid, ok)
	}
	p, err := id.CurrentUserProfile(ctx)
	if err != nil || p.DisplayName != "Ana" {
		t.Errorf("CurrentUserProfile = %+v, %v", p, err)
	}
}

func TestPasswordAuthenticator(t *testing.T) {
	store := setupStore(t)
	auth := NewPasswordAuthenticator(store)
	auth.cost = bcrypt.MinCost
	ctx := context.Background()

	var registered Profile

	t.Run("Register creates a credential", func(t *testing.T) {
		p, err := auth.Register(ctx, "  Ana@Example.com ", "Ana", "password123")
		if err != nil {
			t.Fatalf("Register failed: %v", err)
		}
		if p.UserID == "" || p.Email != "ana@example.com" || p.DisplayName != "Ana" {
			t.Errorf("unexpected profile: %+v", p)
		}
		registered = p
	})

	t.Run("Register rejects duplicates case-insensitively", func(t *testing.T) {
		_, err := auth.Register(ctx, "ANA@example.com", "Other", "password123")
		if !errors.Is(err, ErrEmailExists) {
			t.Errorf("expected ErrEmailExists, got %v", err)
		}
	})

	t.Run("Register validates input", func(t *testing.T) {
		if _, err := auth.Register(ctx, "bob@example.com", "Bob", "short"); !errors.Is(err, ErrWeakPassword) {
			t.Errorf("expected ErrWeakPassword, got %v", err)
		}
		if _, err := auth.Register(ctx, "bob/evil@example.com", "Bob", "password123"); !errors.Is(err, apperr.ErrValidation) {
			t.Errorf("expected validation error, got %v", err)
		}
		if _, err := auth.Register(ctx, "", "Bob", "password123"); !errors.Is(err, apperr.ErrValidation) {
			t.Errorf("expected validation error, got %v", err)
		}
	})

	t.Run("Authenticate accepts the right password", func(t *testing.T) {
		store.Write(ctx, storage.UserPath(registered.UserID), models.User{ID: registered.UserID, DisplayName: "Ana B"}, storage.Replace)

		p, err := auth.Authenticate(ctx, "ana@example.com", "password123")
		if err != nil {
			t.Fatalf("Authenticate failed: %v", err)
		}
		if p.UserID != registered.UserID || p.DisplayName != "Ana B" {
			t.Errorf("unexpected profile: %+v", p)
		}
	})

	t.Run("Authenticate rejects bad credentials", func(t *testing.T) {
		if _, err := auth.Authenticate(ctx, "ana@example.com", "wrong-password"); !errors.Is(err, ErrInvalidCredentials) {
			t.Errorf("wrong password: %v", err)
		}
		if _, err := auth.Authenticate(ctx, "nobody@example.com", "password123"); !errors.Is(err, ErrInvalidCredentials) {
			t.Errorf("unknown email: %v", err)
		}
	})
}

func TestGoogleProvider(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		if r.Form.Get("code") != "good-code" {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"error":"invalid_grant"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"tok","token_type":"Bearer","expires_in":3600}`))
	})
	mux.HandleFunc("/userinfo", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode(map[string]string{
			"id": "10987", "email": "ana@gmail.com", "name": "Ana", "picture": "https://img/ana.png",
		})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	p := NewGoogleProvider("client", "secret", "http://localhost:8080",
		WithEndpoint(oauth2.Endpoint{
			AuthURL:   srv.URL + "/auth",
			TokenURL:  srv.URL + "/token",
			AuthStyle: oauth2.AuthStyleInParams,
		}),
		WithUserInfoURL(srv.URL+"/userinfo"),
	)

	t.Run("AuthCodeURL carries state and redirect", func(t *testing.T) {
		u := p.AuthCodeURL("xyz")
		if !strings.Contains(u, "state=xyz") || !strings.Contains(u, "auth%2Fgoogle%2Fcallback") {
			t.Errorf("unexpected URL: %s", u)
		}
	})

	t.Run("Exchange returns the Google profile", func(t *testing.T) {
		profile, err := p.Exchange(context.Background(), "good-code")
		if err != nil {
			t.Fatalf("Exchange failed: %v", err)
		}
		want := Profile{UserID: "10987", DisplayName: "Ana", Email: "ana@gmail.com", AvatarURL: "https://img/ana.png"}
		if profile != want {
			t.Errorf("got %+v, want %+v", profile, want)
		}
	})

	t.Run("Exchange fails on a bad code", func(t *testing.T) {
		if _, err := p.Exchange(context.Background(), "bad-code"); err == nil {
			t.Error("expected error")
		}
	})
}
