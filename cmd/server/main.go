package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"connectrpc.com/connect"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/mmynk/vibecheck/internal/api"
	"github.com/mmynk/vibecheck/internal/config"
	"github.com/mmynk/vibecheck/internal/identity"
	"github.com/mmynk/vibecheck/internal/metrics"
	"github.com/mmynk/vibecheck/internal/middleware"
	"github.com/mmynk/vibecheck/internal/service"
	"github.com/mmynk/vibecheck/internal/storage"
	"github.com/mmynk/vibecheck/internal/storage/firestore"
	"github.com/mmynk/vibecheck/internal/storage/mongo"
	"github.com/mmynk/vibecheck/internal/storage/sqlite"
	"github.com/mmynk/vibecheck/pkg/logging"
)

func main() {
	logging.Setup()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("Server failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	base, err := openStore(ctx, cfg.Store)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer base.Close()
	store := storage.Instrument(base, m)
	slog.Info("Storage initialized", "backend", cfg.Store.Backend)

	jwtManager := identity.NewJWTManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	membership := service.NewMembershipService(store, service.WithCodeAttempts(cfg.JoinCodeAttempts))
	users := service.NewUserService(store)

	srv := api.NewServer(api.Deps{
		Membership:    membership,
		Participation: service.NewParticipationService(store),
		Users:         users,
		Feed:          service.NewFeedService(store, membership),
		Passwords:     identity.NewPasswordAuthenticator(store),
		JWTManager:    jwtManager,
	})

	routerCfg := api.RouterConfig{
		Interceptors: []connect.Interceptor{
			middleware.NewMetricsInterceptor(m),
			middleware.NewAuthInterceptor(jwtManager, api.PublicProcedures...),
			middleware.LoggingInterceptor{},
			middleware.TimeoutInterceptor(cfg.Store.Timeout),
		},
		Gatherer: reg,
	}
	if cfg.Auth.GoogleEnabled() {
		provider := identity.NewGoogleProvider(cfg.Auth.GoogleClientID, cfg.Auth.GoogleClientSecret, cfg.Auth.BaseURL)
		secure := cfg.Environment != "development"
		routerCfg.Google = api.NewGoogleHandler(provider, users, jwtManager, cfg.Auth.StateCookieKey, secure)
		slog.Info("Google sign-in enabled", "callback", cfg.Auth.BaseURL+"/auth/google/callback")
	}

	if cfg.ReconcileInterval > 0 {
		go reconcileLoop(ctx, membership, m, cfg.ReconcileInterval)
	}

	// h2c serves HTTP/2 without TLS, which Connect streaming needs behind plain listeners.
	handler := h2c.NewHandler(corsMiddleware(srv.Router(routerCfg)), &http2.Server{})
	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Connect server starting", "address", httpServer.Addr, "env", cfg.Environment)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

// openStore connects the configured backend.
func openStore(ctx context.Context, cfg config.StoreConfig) (storage.Store, error) {
	switch cfg.Backend {
	case config.BackendFirestore:
		return firestore.New(ctx, cfg.FirestoreProjectID, cfg.FirestoreCredentialsFile)
	case config.BackendMongo:
		return mongo.New(ctx, cfg.MongoURI, cfg.MongoDatabase, cfg.Timeout)
	default:
		return sqlite.New(cfg.SQLitePath, sqlite.WithPollInterval(cfg.PollInterval))
	}
}

// reconcileLoop repairs membership edges every interval until ctx ends.
func reconcileLoop(ctx context.Context, membership *service.MembershipService, m *metrics.Metrics, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			repaired, err := membership.ReconcileAll(ctx)
			m.ObserveReconcile(repaired, err)
			if err != nil {
				slog.Warn("Membership reconciliation incomplete", "repaired", repaired, "error", err)
			}
		}
	}
}

// corsMiddleware adds CORS headers for browser clients.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type, Connect-Protocol-Version, Connect-Timeout-Ms")
		w.Header().Set("Access-Control-Expose-Headers", "Connect-Protocol-Version, Connect-Timeout-Ms, X-Invalid-Field")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
