// Package store defines the persistence gateway for users and thread
// aggregates, with interchangeable in-memory, SQLite, Postgres and MongoDB
// backends. Mutations load the aggregate, apply an engagement rule and write
// the new state back; durable backends guard the write with a version stamp.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/example/threads-platform/internal/domain"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrForbidden = errors.New("forbidden")
	ErrConflict  = errors.New("conflict")
)

// CreateUserParams carries the fields of a new account. The password arrives
// already hashed; stores never see plaintext credentials.
type CreateUserParams struct {
	Email        string
	Username     string
	PasswordHash string
}

// UserRow pairs a user with the stored credential hash for login checks.
type UserRow struct {
	User         domain.User
	PasswordHash string
}

// UserStore persists accounts.
type UserStore interface {
	// CreateUser inserts a new account. Returns ErrConflict when the email
	// or username is already taken.
	CreateUser(ctx context.Context, p CreateUserParams) (domain.User, error)
	// FindUserByLogin resolves an account by email or username,
	// case-insensitively. Returns ErrNotFound when absent.
	FindUserByLogin(ctx context.Context, login string) (UserRow, error)
	GetUserByID(ctx context.Context, id string) (domain.User, error)
}

// CreateRefreshSessionParams carries a new refresh session. Only the sha256
// hash of the opaque token is stored.
type CreateRefreshSessionParams struct {
	SessionID uuid.UUID
	UserID    string
	TokenHash string
	ExpiresAt time.Time
	Now       time.Time
}

// RefreshSession is a stored refresh token session.
type RefreshSession struct {
	ID        uuid.UUID
	UserID    string
	TokenHash string
	ExpiresAt time.Time
	RevokedAt *time.Time
}

// SessionStore persists refresh sessions.
type SessionStore interface {
	CreateRefreshSession(ctx context.Context, p CreateRefreshSessionParams) error
	GetRefreshSessionByHash(ctx context.Context, tokenHash string) (RefreshSession, error)
	RevokeRefreshSession(ctx context.Context, sessionID uuid.UUID, now time.Time) error
	ReplaceRefreshSession(ctx context.Context, oldID, newID uuid.UUID, now time.Time) error
}

// ThreadStore is the gateway for thread aggregates. Every mutating operation
// resolves the target, delegates to the engagement rules for the new state,
// durably writes it back and returns the updated thread. Missing targets map
// to ErrNotFound; delete by a non-author maps to ErrForbidden.
type ThreadStore interface {
	// ListThreads returns all threads newest-first.
	ListThreads(ctx context.Context) ([]domain.Thread, error)
	GetThread(ctx context.Context, id string) (domain.Thread, error)
	CreateThread(ctx context.Context, d domain.ThreadDraft) (domain.Thread, error)
	// DeleteThread removes the thread only when requestingUsername matches
	// the thread's author.
	DeleteThread(ctx context.Context, id, requestingUsername string) error
	ToggleThreadLike(ctx context.Context, threadID, userID string) (domain.Thread, error)
	AppendComment(ctx context.Context, threadID string, d domain.CommentDraft) (domain.Thread, error)
	ToggleCommentLike(ctx context.Context, threadID, commentID, userID string) (domain.Thread, error)
	AppendReply(ctx context.Context, threadID, commentID string, d domain.ReplyDraft) (domain.Thread, error)
	ToggleReplyLike(ctx context.Context, threadID, commentID, replyID, userID string) (domain.Thread, error)
}
