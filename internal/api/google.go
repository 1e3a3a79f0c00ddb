package api

import (
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/securecookie"

	"github.com/mmynk/vibecheck/internal/identity"
	"github.com/mmynk/vibecheck/internal/service"
)

const (
	stateCookieName = "vibecheck_oauth_state"
	stateMaxAge     = 600
)

// GoogleHandler serves the Google sign-in redirect and callback. The OAuth
// state round-trips in a signed, short-lived cookie.
type GoogleHandler struct {
	provider   *identity.GoogleProvider
	users      *service.UserService
	jwtManager *identity.JWTManager
	cookies    *securecookie.SecureCookie
	secure     bool
}

// NewGoogleHandler creates a GoogleHandler. hashKey signs the state cookie;
// a random key is generated when it is empty, which invalidates in-flight
// sign-ins on restart. secure marks the cookie HTTPS-only.
func NewGoogleHandler(provider *identity.GoogleProvider, users *service.UserService, jwtManager *identity.JWTManager, hashKey []byte, secure bool) *GoogleHandler {
	if len(hashKey) == 0 {
		hashKey = securecookie.GenerateRandomKey(32)
	}
	cookies := securecookie.New(hashKey, nil)
	cookies.MaxAge(stateMaxAge)

	return &GoogleHandler{
		provider:   provider,
		users:      users,
		jwtManager: jwtManager,
		cookies:    cookies,
		secure:     secure,
	}
}

// Routes returns the router mounted at /auth/google.
func (h *GoogleHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.ServeLogin)
	r.Get("/callback", h.ServeCallback)
	return r
}

// ServeLogin redirects to Google's consent screen.
func (h *GoogleHandler) ServeLogin(w http.ResponseWriter, r *http.Request) {
	key := securecookie.GenerateRandomKey(32)
	if key == nil {
		slog.Error("Failed to generate OAuth state")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	state := base64.RawURLEncoding.EncodeToString(key)

	encoded, err := h.cookies.Encode(stateCookieName, state)
	if err != nil {
		slog.Error("Failed to encode OAuth state", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	http.SetCookie(w, h.stateCookie(encoded, stateMaxAge))
	http.Redirect(w, r, h.provider.AuthCodeURL(state), http.StatusFound)
}

// ServeCallback completes sign-in and responds with a session token.
func (h *GoogleHandler) ServeCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if e := q.Get("error"); e != "" {
		slog.Warn("Google sign-in declined", "error", e)
		http.Error(w, "sign-in cancelled", http.StatusUnauthorized)
		return
	}

	if err := h.checkState(r, q.Get("state")); err != nil {
		slog.Warn("Invalid OAuth state", "error", err)
		http.Error(w, "invalid sign-in state", http.StatusBadRequest)
		return
	}
	http.SetCookie(w, h.stateCookie("", -1))

	profile, err := h.provider.Exchange(r.Context(), q.Get("code"))
	if err != nil {
		slog.Warn("Google code exchange failed", "error", err)
		http.Error(w, "sign-in failed", http.StatusUnauthorized)
		return
	}
	u, err := h.users.EnsureUser(r.Context(), profile)
	if err != nil {
		slog.Error("Failed to upsert Google user", "user_id", profile.UserID, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	token, err := h.jwtManager.Generate(profileOf(u))
	if err != nil {
		slog.Error("Failed to issue token", "user_id", u.ID, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	slog.Info("Google sign-in", "user_id", u.ID)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(AuthResponse{Token: token, User: u})
}

func (h *GoogleHandler) checkState(r *http.Request, state string) error {
	c, err := r.Cookie(stateCookieName)
	if err != nil {
		return errors.New("state cookie missing")
	}
	var want string
	if err := h.cookies.Decode(stateCookieName, c.Value, &want); err != nil {
		return err
	}
	if state == "" || subtle.ConstantTimeCompare([]byte(state), []byte(want)) != 1 {
		return errors.New("state mismatch")
	}
	return nil
}

func (h *GoogleHandler) stateCookie(value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     stateCookieName,
		Value:    value,
		Path:     "/auth/google",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteLaxMode,
	}
}
