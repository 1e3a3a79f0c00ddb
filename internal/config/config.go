// Package config loads vibecheck's runtime configuration from the environment.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Store backends.
const (
	BackendSQLite    = "sqlite"
	BackendFirestore = "firestore"
	BackendMongo     = "mongo"
)

// developmentSecret signs tokens when ENV=development and JWT_SECRET is unset.
const developmentSecret = "vibecheck-development-secret-do-not-use"

// StoreConfig selects and configures the document store backend.
type StoreConfig struct {
	Backend string

	// SQLitePath is the database file for the sqlite backend.
	SQLitePath string

	// PollInterval is how often the sqlite backend checks watched collections.
	PollInterval time.Duration

	FirestoreProjectID       string
	FirestoreCredentialsFile string // optional; falls back to application default credentials

	MongoURI      string
	MongoDatabase string

	// Timeout bounds every store round trip; exceeding it surfaces a Transient error.
	Timeout time.Duration
}

// AuthConfig holds session token and sign-in configuration.
type AuthConfig struct {
	JWTSecret string
	TokenTTL  time.Duration

	GoogleClientID     string
	GoogleClientSecret string
	BaseURL            string // e.g. "https://vibecheck.example.com"

	// StateCookieKey authenticates the OAuth state cookie.
	StateCookieKey []byte
}

// GoogleEnabled reports whether Google sign-in is configured.
func (a AuthConfig) GoogleEnabled() bool {
	return a.GoogleClientID != "" && a.GoogleClientSecret != ""
}

type Config struct {
	Port        string
	Environment string
	Store       StoreConfig
	Auth        AuthConfig

	// JoinCodeAttempts bounds join-code regeneration on collision.
	JoinCodeAttempts int

	// ReconcileInterval runs the membership reconciliation pass; 0 disables it.
	ReconcileInterval time.Duration
}

// Load reads configuration from environment variables.
// It fails fast with clear errors for missing required values.
func Load() (*Config, error) {
	var missing []string

	port := getEnv("PORT", "8080")

	env := getEnv("ENV", "development")
	if env != "development" && env != "staging" && env != "production" {
		return nil, fmt.Errorf("invalid ENV value %q: must be development, staging, or production", env)
	}

	store := StoreConfig{
		Backend:                  strings.ToLower(getEnv("STORE_BACKEND", BackendSQLite)),
		SQLitePath:               getEnv("DB_PATH", "./data/vibecheck.db"),
		PollInterval:             getEnvDuration("WATCH_POLL_INTERVAL", 500*time.Millisecond),
		FirestoreProjectID:       os.Getenv("FIRESTORE_PROJECT_ID"),
		FirestoreCredentialsFile: os.Getenv("FIRESTORE_CREDENTIALS_FILE"),
		MongoURI:                 os.Getenv("MONGO_URI"),
		MongoDatabase:            os.Getenv("MONGO_DATABASE"),
		Timeout:                  getEnvDuration("STORE_TIMEOUT", 10*time.Second),
	}

	switch store.Backend {
	case BackendSQLite:
	case BackendFirestore:
		if store.FirestoreProjectID == "" {
			missing = append(missing, "FIRESTORE_PROJECT_ID")
		}
	case BackendMongo:
		if store.MongoURI == "" {
			missing = append(missing, "MONGO_URI")
		}
		if store.MongoDatabase == "" {
			missing = append(missing, "MONGO_DATABASE")
		}
	default:
		return nil, fmt.Errorf("invalid STORE_BACKEND value %q: must be sqlite, firestore, or mongo", store.Backend)
	}

	auth := AuthConfig{
		JWTSecret:          os.Getenv("JWT_SECRET"),
		TokenTTL:           getEnvDuration("TOKEN_TTL", 24*time.Hour),
		GoogleClientID:     os.Getenv("GOOGLE_CLIENT_ID"),
		GoogleClientSecret: os.Getenv("GOOGLE_CLIENT_SECRET"),
		BaseURL:            strings.TrimRight(getEnv("BASE_URL", "http://localhost:"+port), "/"),
		StateCookieKey:     []byte(os.Getenv("STATE_COOKIE_KEY")),
	}

	if auth.JWTSecret == "" {
		if env == "development" {
			auth.JWTSecret = developmentSecret
		} else {
			missing = append(missing, "JWT_SECRET")
		}
	}

	if auth.GoogleEnabled() && len(auth.StateCookieKey) == 0 {
		if env == "development" {
			auth.StateCookieKey = []byte(auth.JWTSecret)
		} else {
			missing = append(missing, "STATE_COOKIE_KEY")
		}
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required environment variables: %v", missing)
	}

	if (auth.GoogleClientID == "") != (auth.GoogleClientSecret == "") {
		return nil, fmt.Errorf("GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET must be set together")
	}

	if err := validateBaseURL(auth.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid BASE_URL: %w", err)
	}

	if store.Backend == BackendMongo {
		if err := validateMongoURI(store.MongoURI); err != nil {
			return nil, fmt.Errorf("invalid MONGO_URI: %w", err)
		}
	}

	attempts := getEnvInt("JOIN_CODE_ATTEMPTS", 10)
	if attempts < 1 {
		return nil, fmt.Errorf("invalid JOIN_CODE_ATTEMPTS %d: must be at least 1", attempts)
	}

	return &Config{
		Port:              port,
		Environment:       env,
		Store:             store,
		Auth:              auth,
		JoinCodeAttempts:  attempts,
		ReconcileInterval: getEnvDuration("RECONCILE_INTERVAL", 0),
	}, nil
}

// validateBaseURL ensures the public base URL is absolute.
func validateBaseURL(raw string) error {
	parsed, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("malformed URL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("URL must use http or https scheme, got %q", parsed.Scheme)
	}
	if parsed.Host == "" {
		return fmt.Errorf("URL must include a host")
	}
	return nil
}

// validateMongoURI ensures the connection string uses a mongodb scheme.
func validateMongoURI(raw string) error {
	parsed, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("malformed URL: %w", err)
	}
	if parsed.Scheme != "mongodb" && parsed.Scheme != "mongodb+srv" {
		return fmt.Errorf("URL must use mongodb or mongodb+srv scheme, got %q", parsed.Scheme)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

// getEnvInt reads an environment variable as an integer with a default fallback.
func getEnvInt(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	intVal, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return intVal
}

// getEnvDuration reads an environment variable as a time.Duration with a default fallback.
func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return defaultVal
	}
	return d
}
