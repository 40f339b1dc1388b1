package tokens

import (
	"testing"
	"time"
)

func testService() Service {
	return Service{
		Secret:          []byte("test-secret"),
		AccessTokenTTL:  15 * time.Minute,
		RefreshTokenTTL: 30 * 24 * time.Hour,
	}
}

func TestAccessTokenRoundTrip(t *testing.T) {
	svc := testService()
	now := time.Now().UTC()

	signed, exp, err := svc.NewAccessToken("user-1", "alice", now)
	if err != nil {
		t.Fatalf("NewAccessToken: %v", err)
	}
	if got, want := exp, now.Add(svc.AccessTokenTTL); !got.Equal(want) {
		t.Errorf("expiry = %v, want %v", got, want)
	}

	claims, err := svc.ParseAccessToken(signed)
	if err != nil {
		t.Fatalf("ParseAccessToken: %v", err)
	}
	if claims.Subject != "user-1" {
		t.Errorf("subject = %q, want %q", claims.Subject, "user-1")
	}
	if claims.Username != "alice" {
		t.Errorf("username = %q, want %q", claims.Username, "alice")
	}
}

func TestAccessTokenExpired(t *testing.T) {
	svc := testService()
	past := time.Now().UTC().Add(-time.Hour)

	signed, _, err := svc.NewAccessToken("user-1", "alice", past)
	if err != nil {
		t.Fatalf("NewAccessToken: %v", err)
	}
	if _, err := svc.ParseAccessToken(signed); err == nil {
		t.Fatal("expected expired token to fail parse")
	}
}

func TestAccessTokenWrongSecret(t *testing.T) {
	svc := testService()
	signed, _, err := svc.NewAccessToken("user-1", "alice", time.Now().UTC())
	if err != nil {
		t.Fatalf("NewAccessToken: %v", err)
	}

	other := svc
	other.Secret = []byte("different-secret")
	if _, err := other.ParseAccessToken(signed); err == nil {
		t.Fatal("expected wrong-secret parse to fail")
	}
}

func TestAccessTokenMissingSecret(t *testing.T) {
	svc := testService()
	svc.Secret = nil
	if _, _, err := svc.NewAccessToken("user-1", "alice", time.Now().UTC()); err == nil {
		t.Fatal("expected error for missing secret")
	}
}

func TestNewRefreshToken(t *testing.T) {
	raw, hash, err := NewRefreshToken()
	if err != nil {
		t.Fatalf("NewRefreshToken: %v", err)
	}
	if raw == "" || hash == "" {
		t.Fatal("expected non-empty token and hash")
	}
	if HashRefreshToken(raw) != hash {
		t.Error("HashRefreshToken does not reproduce stored hash")
	}

	raw2, hash2, err := NewRefreshToken()
	if err != nil {
		t.Fatalf("NewRefreshToken: %v", err)
	}
	if raw == raw2 || hash == hash2 {
		t.Error("expected distinct tokens on successive calls")
	}
}
