package middleware

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"connectrpc.com/connect"

	"github.com/mmynk/vibecheck/internal/identity"
)

func TestBearerToken(t *testing.T) {
	tests := []struct {
		name    string
		header  string
		want    string
		wantErr error
	}{
		{"valid", "Bearer abc.def", "abc.def", nil},
		{"lowercase scheme", "bearer abc", "abc", nil},
		{"missing", "", "", identity.ErrMissingToken},
		{"wrong scheme", "Basic dXNlcg==", "", identity.ErrInvalidToken},
		{"no token", "Bearer ", "", identity.ErrInvalidToken},
		{"no separator", "Bearer", "", identity.ErrInvalidToken},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := http.Header{}
			if tt.header != "" {
				h.Set("Authorization", tt.header)
			}
			got, err := bearerToken(h)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected error %v, got %v", tt.wantErr, err)
			}
			if got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestAuthenticate(t *testing.T) {
	jwtManager := identity.NewJWTManager("secret", time.Hour)
	token, err := jwtManager.Generate(identity.Profile{UserID: "user-1", DisplayName: "Ana"})
	if err != nil {
		t.Fatalf("failed to generate token: %v", err)
	}
	i := NewAuthInterceptor(jwtManager, "/svc/Public")

	header := func(v string) http.Header {
		h := http.Header{}
		if v != "" {
			h.Set("Authorization", v)
		}
		return h
	}

	t.Run("valid token sets the user", func(t *testing.T) {
		ctx, err := i.authenticate(context.Background(), "/svc/Private", header("Bearer "+token))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got := UserID(ctx); got != "user-1" {
			t.Errorf("expected user-1, got %q", got)
		}
	})

	t.Run("private procedure needs a token", func(t *testing.T) {
		_, err := i.authenticate(context.Background(), "/svc/Private", header(""))
		if connect.CodeOf(err) != connect.CodeUnauthenticated {
			t.Errorf("expected unauthenticated, got %v", err)
		}
		_, err = i.authenticate(context.Background(), "/svc/Private", header("Bearer forged"))
		if connect.CodeOf(err) != connect.CodeUnauthenticated {
			t.Errorf("expected unauthenticated, got %v", err)
		}
	})

	t.Run("public procedure ignores bad tokens", func(t *testing.T) {
		ctx, err := i.authenticate(context.Background(), "/svc/Public", header("Bearer forged"))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got := UserID(ctx); got != "" {
			t.Errorf("expected no user, got %q", got)
		}
	})
}

type recordingObserver struct {
	procedure, code string
}

func (r *recordingObserver) ObserveRPC(procedure, code string, _ time.Duration) {
	r.procedure, r.code = procedure, code
}

func TestCodeOf(t *testing.T) {
	if got := codeOf(nil); got != "ok" {
		t.Errorf("expected ok, got %q", got)
	}
	err := connect.NewError(connect.CodeNotFound, errors.New("missing"))
	if got := codeOf(err); got != "not_found" {
		t.Errorf("expected not_found, got %q", got)
	}
}

func TestTimeoutInterceptor(t *testing.T) {
	var deadline bool
	next := connect.UnaryFunc(func(ctx context.Context, _ connect.AnyRequest) (connect.AnyResponse, error) {
		_, deadline = ctx.Deadline()
		return nil, nil
	})

	TimeoutInterceptor(time.Second)(next)(context.Background(), connect.NewRequest(&struct{}{}))
	if !deadline {
		t.Error("expected a deadline")
	}
	TimeoutInterceptor(0)(next)(context.Background(), connect.NewRequest(&struct{}{}))
	if deadline {
		t.Error("zero timeout must not set a deadline")
	}
}

func TestMetricsInterceptorUnary(t *testing.T) {
	obs := &recordingObserver{}
	next := connect.UnaryFunc(func(context.Context, connect.AnyRequest) (connect.AnyResponse, error) {
		return nil, connect.NewError(connect.CodePermissionDenied, errors.New("no"))
	})
	NewMetricsInterceptor(obs).WrapUnary(next)(context.Background(), connect.NewRequest(&struct{}{}))
	if obs.code != "permission_denied" {
		t.Errorf("expected permission_denied, got %q", obs.code)
	}
}
