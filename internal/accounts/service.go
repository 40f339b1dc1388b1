// Package accounts implements registration, login and refresh session
// rotation on top of the store interfaces. Passwords are bcrypt-hashed and
// refresh tokens are opaque, stored only as sha256 digests.
package accounts

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/example/threads-platform/internal/domain"
	"github.com/example/threads-platform/internal/store"
	"github.com/example/threads-platform/internal/tokens"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidRefresh     = errors.New("invalid refresh token")
	ErrUserExists         = errors.New("user already exists")
)

// ValidationError reports a rejected input field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return "validation: " + e.Field + " " + e.Message
}

// AuthResult is what a successful register, login or refresh hands back.
type AuthResult struct {
	User         domain.User
	AccessToken  string
	RefreshToken string
	ExpiresIn    int64
}

type Service struct {
	Users    store.UserStore
	Sessions store.SessionStore
	Tokens   tokens.Service
	Cfg      AuthConfig
}

func NewService(users store.UserStore, sessions store.SessionStore, cfg AuthConfig) *Service {
	return &Service{
		Users:    users,
		Sessions: sessions,
		Tokens: tokens.Service{
			Secret:          cfg.JWTSecret,
			AccessTokenTTL:  cfg.AccessTokenTTL,
			RefreshTokenTTL: cfg.RefreshTokenTTL,
		},
		Cfg: cfg,
	}
}

func (s *Service) Register(ctx context.Context, email, username, password string) (AuthResult, error) {
	email = strings.TrimSpace(email)
	username = strings.TrimSpace(username)

	if !isValidEmail(email) {
		return AuthResult{}, &ValidationError{Field: "email", Message: "invalid"}
	}
	if !isValidUsername(username) {
		return AuthResult{}, &ValidationError{Field: "username", Message: "invalid"}
	}
	if len(password) < 8 {
		return AuthResult{}, &ValidationError{Field: "password", Message: "min length 8"}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return AuthResult{}, err
	}

	u, err := s.Users.CreateUser(ctx, store.CreateUserParams{Email: email, Username: username, PasswordHash: string(hash)})
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			return AuthResult{}, ErrUserExists
		}
		return AuthResult{}, err
	}

	return s.issueTokens(ctx, u)
}

func (s *Service) Login(ctx context.Context, login, password string) (AuthResult, error) {
	login = strings.TrimSpace(login)
	if login == "" {
		return AuthResult{}, &ValidationError{Field: "login", Message: "required"}
	}
	if password == "" {
		return AuthResult{}, &ValidationError{Field: "password", Message: "required"}
	}

	row, err := s.Users.FindUserByLogin(ctx, login)
	if err != nil {
		return AuthResult{}, ErrInvalidCredentials
	}
	if bcrypt.CompareHashAndPassword([]byte(row.PasswordHash), []byte(password)) != nil {
		return AuthResult{}, ErrInvalidCredentials
	}

	return s.issueTokens(ctx, row.User)
}

// Refresh rotates a refresh session: the presented token's session is
// replaced by a fresh one and a new access token is issued.
func (s *Service) Refresh(ctx context.Context, raw string) (AuthResult, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return AuthResult{}, &ValidationError{Field: "refresh_token", Message: "required"}
	}

	sess, err := s.Sessions.GetRefreshSessionByHash(ctx, tokens.HashRefreshToken(raw))
	if err != nil {
		return AuthResult{}, ErrInvalidRefresh
	}
	now := time.Now().UTC()
	if sess.RevokedAt != nil || now.After(sess.ExpiresAt) {
		return AuthResult{}, ErrInvalidRefresh
	}

	u, err := s.Users.GetUserByID(ctx, sess.UserID)
	if err != nil {
		return AuthResult{}, err
	}

	access, exp, err := s.Tokens.NewAccessToken(u.ID, u.Username, now)
	if err != nil {
		return AuthResult{}, err
	}
	newRaw, newHash, err := tokens.NewRefreshToken()
	if err != nil {
		return AuthResult{}, err
	}
	newID := uuid.New()
	if err := s.Sessions.ReplaceRefreshSession(ctx, sess.ID, newID, now); err != nil {
		return AuthResult{}, err
	}
	if err := s.Sessions.CreateRefreshSession(ctx, store.CreateRefreshSessionParams{
		SessionID: newID,
		UserID:    sess.UserID,
		TokenHash: newHash,
		ExpiresAt: now.Add(s.Cfg.RefreshTokenTTL),
		Now:       now,
	}); err != nil {
		return AuthResult{}, err
	}

	return AuthResult{
		User:         u,
		AccessToken:  access,
		RefreshToken: newRaw,
		ExpiresIn:    int64(time.Until(exp).Seconds()),
	}, nil
}

// Logout revokes the session behind the presented refresh token. Unknown
// tokens are ignored so logout is idempotent.
func (s *Service) Logout(ctx context.Context, raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return &ValidationError{Field: "refresh_token", Message: "required"}
	}
	sess, err := s.Sessions.GetRefreshSessionByHash(ctx, tokens.HashRefreshToken(raw))
	if err == nil {
		_ = s.Sessions.RevokeRefreshSession(ctx, sess.ID, time.Now().UTC())
	}
	return nil
}

func (s *Service) Me(ctx context.Context, userID string) (domain.User, error) {
	return s.Users.GetUserByID(ctx, userID)
}

func (s *Service) issueTokens(ctx context.Context, u domain.User) (AuthResult, error) {
	now := time.Now().UTC()
	access, exp, err := s.Tokens.NewAccessToken(u.ID, u.Username, now)
	if err != nil {
		return AuthResult{}, err
	}
	refreshRaw, refreshHash, err := tokens.NewRefreshToken()
	if err != nil {
		return AuthResult{}, err
	}
	if err := s.Sessions.CreateRefreshSession(ctx, store.CreateRefreshSessionParams{
		SessionID: uuid.New(),
		UserID:    u.ID,
		TokenHash: refreshHash,
		ExpiresAt: now.Add(s.Cfg.RefreshTokenTTL),
		Now:       now,
	}); err != nil {
		return AuthResult{}, err
	}

	return AuthResult{
		User:         u,
		AccessToken:  access,
		RefreshToken: refreshRaw,
		ExpiresIn:    int64(time.Until(exp).Seconds()),
	}, nil
}

var usernameRe = regexp.MustCompile(`^[a-zA-Z0-9_]{3,32}$`)

func isValidUsername(s string) bool {
	return usernameRe.MatchString(s)
}

var emailRe = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

func isValidEmail(s string) bool {
	if len(s) > 254 {
		return false
	}
	return emailRe.MatchString(s)
}
