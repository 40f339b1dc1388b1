package accounts

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/example/threads-platform/internal/store"
)

func testCfg() AuthConfig {
	return AuthConfig{
		JWTSecret:       []byte("test-secret"),
		AccessTokenTTL:  15 * time.Minute,
		RefreshTokenTTL: 30 * 24 * time.Hour,
	}
}

func newTestService() *Service {
	mem := store.NewMemoryStore()
	return NewService(mem, mem, testCfg())
}

// ─── register ───

func TestRegisterIssuesTokens(t *testing.T) {
	svc := newTestService()

	res, err := svc.Register(context.Background(), "alice@example.com", "alice", "correct-horse")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if res.User.Username != "alice" {
		t.Errorf("username = %q, want %q", res.User.Username, "alice")
	}
	if res.AccessToken == "" || res.RefreshToken == "" {
		t.Error("expected both tokens to be issued")
	}
	if res.ExpiresIn <= 0 {
		t.Errorf("expires_in = %d, want positive", res.ExpiresIn)
	}

	claims, err := svc.Tokens.ParseAccessToken(res.AccessToken)
	if err != nil {
		t.Fatalf("ParseAccessToken: %v", err)
	}
	if claims.Subject != res.User.ID {
		t.Errorf("token subject = %q, want %q", claims.Subject, res.User.ID)
	}
	if claims.Username != "alice" {
		t.Errorf("token username = %q, want %q", claims.Username, "alice")
	}
}

func TestRegisterValidation(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	cases := []struct {
		name     string
		email    string
		username string
		password string
		field    string
	}{
		{"bad email", "not-an-email", "alice", "correct-horse", "email"},
		{"short username", "alice@example.com", "al", "correct-horse", "username"},
		{"username with spaces", "alice@example.com", "a l i c e", "correct-horse", "username"},
		{"short password", "alice@example.com", "alice", "short", "password"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Register(ctx, tc.email, tc.username, tc.password)
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("err = %v, want ValidationError", err)
			}
			if verr.Field != tc.field {
				t.Errorf("field = %q, want %q", verr.Field, tc.field)
			}
		})
	}
}

func TestRegisterDuplicate(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	if _, err := svc.Register(ctx, "alice@example.com", "alice", "correct-horse"); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if _, err := svc.Register(ctx, "alice@example.com", "alice2", "correct-horse"); !errors.Is(err, ErrUserExists) {
		t.Errorf("duplicate email err = %v, want ErrUserExists", err)
	}
	if _, err := svc.Register(ctx, "other@example.com", "ALICE", "correct-horse"); !errors.Is(err, ErrUserExists) {
		t.Errorf("duplicate username err = %v, want ErrUserExists", err)
	}
}

// ─── login ───

func TestLoginByEmailAndUsername(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	if _, err := svc.Register(ctx, "alice@example.com", "alice", "correct-horse"); err != nil {
		t.Fatalf("Register: %v", err)
	}

	for _, login := range []string{"alice@example.com", "alice", "Alice"} {
		if _, err := svc.Login(ctx, login, "correct-horse"); err != nil {
			t.Errorf("Login(%q): %v", login, err)
		}
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	if _, err := svc.Register(ctx, "alice@example.com", "alice", "correct-horse"); err != nil {
		t.Fatalf("Register: %v", err)
	}

	if _, err := svc.Login(ctx, "alice", "wrong-password"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("wrong password err = %v, want ErrInvalidCredentials", err)
	}
	if _, err := svc.Login(ctx, "nobody", "correct-horse"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("unknown login err = %v, want ErrInvalidCredentials", err)
	}
}

// ─── refresh rotation ───

func TestRefreshRotatesSession(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	reg, err := svc.Register(ctx, "alice@example.com", "alice", "correct-horse")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	ref, err := svc.Refresh(ctx, reg.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if ref.RefreshToken == reg.RefreshToken {
		t.Error("expected a new refresh token after rotation")
	}
	if ref.User.ID != reg.User.ID {
		t.Errorf("user id = %q, want %q", ref.User.ID, reg.User.ID)
	}

	// The old token was replaced and must no longer work.
	if _, err := svc.Refresh(ctx, reg.RefreshToken); !errors.Is(err, ErrInvalidRefresh) {
		t.Errorf("reused token err = %v, want ErrInvalidRefresh", err)
	}
	// The new one still does.
	if _, err := svc.Refresh(ctx, ref.RefreshToken); err != nil {
		t.Errorf("Refresh with rotated token: %v", err)
	}
}

func TestRefreshRejectsGarbage(t *testing.T) {
	svc := newTestService()
	if _, err := svc.Refresh(context.Background(), "no-such-token"); !errors.Is(err, ErrInvalidRefresh) {
		t.Errorf("err = %v, want ErrInvalidRefresh", err)
	}
}

// ─── logout ───

func TestLogoutRevokesSession(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	reg, err := svc.Register(ctx, "alice@example.com", "alice", "correct-horse")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := svc.Logout(ctx, reg.RefreshToken); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if _, err := svc.Refresh(ctx, reg.RefreshToken); !errors.Is(err, ErrInvalidRefresh) {
		t.Errorf("refresh after logout err = %v, want ErrInvalidRefresh", err)
	}
	// Logging out the same token again is a no-op, not an error.
	if err := svc.Logout(ctx, reg.RefreshToken); err != nil {
		t.Errorf("repeat Logout: %v", err)
	}
}
