// Package handlers exposes the HTTP surface of the threads service: account
// endpoints backed by the accounts service and thread endpoints backed by a
// store.ThreadStore, with engagement events published as a side effect.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/example/threads-platform/internal/accounts"
	"github.com/example/threads-platform/internal/platform/api"
	"github.com/example/threads-platform/internal/platform/auth"
	"github.com/example/threads-platform/internal/platform/httpserver"
)

type registerRequest struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type authResponse struct {
	User         userResponse `json:"user"`
	AccessToken  string       `json:"access_token"`
	RefreshToken string       `json:"refresh_token"`
	ExpiresIn    int64        `json:"expires_in"`
}

type userResponse struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	Username string `json:"username"`
}

func toAuthResponse(res accounts.AuthResult) authResponse {
	return authResponse{
		User:         userResponse{ID: res.User.ID, Email: res.User.Email, Username: res.User.Username},
		AccessToken:  res.AccessToken,
		RefreshToken: res.RefreshToken,
		ExpiresIn:    res.ExpiresIn,
	}
}

// Register handles POST /v1/auth/register
func Register(svc *accounts.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reqID := httpserver.RequestIDFromContext(r.Context())

		var req registerRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
			api.BadRequest(w, "INVALID_JSON", "invalid JSON", reqID, nil)
			return
		}

		res, err := svc.Register(r.Context(), req.Email, req.Username, req.Password)
		if err != nil {
			writeAccountsError(w, err, reqID)
			return
		}
		api.WriteJSON(w, http.StatusCreated, toAuthResponse(res))
	}
}

// Login handles POST /v1/auth/login
func Login(svc *accounts.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reqID := httpserver.RequestIDFromContext(r.Context())

		var req loginRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
			api.BadRequest(w, "INVALID_JSON", "invalid JSON", reqID, nil)
			return
		}

		res, err := svc.Login(r.Context(), req.Login, req.Password)
		if err != nil {
			writeAccountsError(w, err, reqID)
			return
		}
		api.WriteJSON(w, http.StatusOK, toAuthResponse(res))
	}
}

// Refresh handles POST /v1/auth/refresh
func Refresh(svc *accounts.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reqID := httpserver.RequestIDFromContext(r.Context())

		var req refreshRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
			api.BadRequest(w, "INVALID_JSON", "invalid JSON", reqID, nil)
			return
		}

		res, err := svc.Refresh(r.Context(), req.RefreshToken)
		if err != nil {
			writeAccountsError(w, err, reqID)
			return
		}
		api.WriteJSON(w, http.StatusOK, toAuthResponse(res))
	}
}

// Logout handles POST /v1/auth/logout
func Logout(svc *accounts.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reqID := httpserver.RequestIDFromContext(r.Context())

		var req refreshRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
			api.BadRequest(w, "INVALID_JSON", "invalid JSON", reqID, nil)
			return
		}

		if err := svc.Logout(r.Context(), req.RefreshToken); err != nil {
			writeAccountsError(w, err, reqID)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// Me handles GET /v1/auth/me
func Me(svc *accounts.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reqID := httpserver.RequestIDFromContext(r.Context())

		userID, ok := auth.UserIDFromContext(r.Context())
		if !ok || strings.TrimSpace(userID) == "" {
			api.Unauthorized(w, "UNAUTHORIZED", "authentication required", reqID)
			return
		}

		u, err := svc.Me(r.Context(), userID)
		if err != nil {
			api.NotFound(w, "NOT_FOUND", "user not found", reqID)
			return
		}
		api.WriteJSON(w, http.StatusOK, userResponse{ID: u.ID, Email: u.Email, Username: u.Username})
	}
}

func writeAccountsError(w http.ResponseWriter, err error, reqID string) {
	var verr *accounts.ValidationError
	switch {
	case errors.As(err, &verr):
		api.BadRequest(w, "VALIDATION", "invalid "+verr.Field, reqID, map[string]any{verr.Field: verr.Message})
	case errors.Is(err, accounts.ErrUserExists):
		api.Conflict(w, "USER_ALREADY_EXISTS", "user already exists", reqID, nil)
	case errors.Is(err, accounts.ErrInvalidCredentials):
		api.Unauthorized(w, "AUTH_INVALID_CREDENTIALS", "invalid credentials", reqID)
	case errors.Is(err, accounts.ErrInvalidRefresh):
		api.Unauthorized(w, "AUTH_INVALID_REFRESH", "invalid refresh token", reqID)
	default:
		api.Internal(w, reqID)
	}
}
