package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/example/threads-platform/internal/accounts"
	"github.com/example/threads-platform/internal/store"
)

func newAuthService() *accounts.Service {
	mem := store.NewMemoryStore()
	return accounts.NewService(mem, mem, accounts.AuthConfig{
		JWTSecret:       []byte("test-secret"),
		AccessTokenTTL:  15 * time.Minute,
		RefreshTokenTTL: 30 * 24 * time.Hour,
	})
}

func TestRegisterEndpoint(t *testing.T) {
	svc := newAuthService()
	handler := Register(svc)

	req := setupReq(http.MethodPost, "/v1/auth/register",
		`{"email":"alice@example.com","username":"alice","password":"correct-horse"}`, nil, "", "")

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp authResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.User.Username != "alice" || resp.AccessToken == "" || resp.RefreshToken == "" {
		t.Fatalf("incomplete auth response %+v", resp)
	}
}

func TestRegisterEndpoint_Validation(t *testing.T) {
	svc := newAuthService()
	handler := Register(svc)

	req := setupReq(http.MethodPost, "/v1/auth/register",
		`{"email":"bad","username":"alice","password":"correct-horse"}`, nil, "", "")

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestRegisterEndpoint_Duplicate(t *testing.T) {
	svc := newAuthService()
	handler := Register(svc)
	body := `{"email":"alice@example.com","username":"alice","password":"correct-horse"}`

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, setupReq(http.MethodPost, "/v1/auth/register", body, nil, "", ""))
	if rr.Code != http.StatusCreated {
		t.Fatalf("first register: %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, setupReq(http.MethodPost, "/v1/auth/register", body, nil, "", ""))
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rr.Code)
	}
}

func TestLoginEndpoint(t *testing.T) {
	svc := newAuthService()
	if _, err := svc.Register(context.Background(), "alice@example.com", "alice", "correct-horse"); err != nil {
		t.Fatalf("seed register: %v", err)
	}

	handler := Login(svc)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, setupReq(http.MethodPost, "/v1/auth/login",
		`{"login":"alice","password":"correct-horse"}`, nil, "", ""))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, setupReq(http.MethodPost, "/v1/auth/login",
		`{"login":"alice","password":"wrong"}`, nil, "", ""))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
}

func TestRefreshEndpoint(t *testing.T) {
	svc := newAuthService()
	reg, err := svc.Register(context.Background(), "alice@example.com", "alice", "correct-horse")
	if err != nil {
		t.Fatalf("seed register: %v", err)
	}

	handler := Refresh(svc)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, setupReq(http.MethodPost, "/v1/auth/refresh",
		`{"refresh_token":"`+reg.RefreshToken+`"}`, nil, "", ""))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	// The consumed token no longer works.
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, setupReq(http.MethodPost, "/v1/auth/refresh",
		`{"refresh_token":"`+reg.RefreshToken+`"}`, nil, "", ""))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for reused token, got %d", rr.Code)
	}
}

func TestLogoutEndpoint(t *testing.T) {
	svc := newAuthService()
	reg, err := svc.Register(context.Background(), "alice@example.com", "alice", "correct-horse")
	if err != nil {
		t.Fatalf("seed register: %v", err)
	}

	rr := httptest.NewRecorder()
	Logout(svc).ServeHTTP(rr, setupReq(http.MethodPost, "/v1/auth/logout",
		`{"refresh_token":"`+reg.RefreshToken+`"}`, nil, "", ""))
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	Refresh(svc).ServeHTTP(rr, setupReq(http.MethodPost, "/v1/auth/refresh",
		`{"refresh_token":"`+reg.RefreshToken+`"}`, nil, "", ""))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 after logout, got %d", rr.Code)
	}
}

func TestMeEndpoint(t *testing.T) {
	svc := newAuthService()
	reg, err := svc.Register(context.Background(), "alice@example.com", "alice", "correct-horse")
	if err != nil {
		t.Fatalf("seed register: %v", err)
	}

	handler := Me(svc)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, setupReq(http.MethodGet, "/v1/auth/me", "", nil, reg.User.ID, "alice"))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var u userResponse
	if err := json.NewDecoder(rr.Body).Decode(&u); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if u.ID != reg.User.ID || u.Email != "alice@example.com" {
		t.Fatalf("unexpected user %+v", u)
	}

	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, setupReq(http.MethodGet, "/v1/auth/me", "", nil, "", ""))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without identity, got %d", rr.Code)
	}
}
