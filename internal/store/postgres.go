package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/example/threads-platform/internal/domain"
	"github.com/example/threads-platform/internal/engagement"
)

// casAttempts bounds the re-read loop when a versioned write loses the race
// against a concurrent mutation of the same aggregate.
const casAttempts = 5

var errVersionConflict = fmt.Errorf("aggregate version conflict: %w", ErrConflict)

// PostgresStore persists users, refresh sessions and thread aggregates in
// Postgres. Threads are stored as one JSONB document per aggregate with a
// version stamp checked on every write.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// EnsureSchema creates the tables when they do not exist yet.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS users (
	id            uuid PRIMARY KEY,
	email         text NOT NULL,
	username      text NOT NULL,
	password_hash text NOT NULL,
	created_at    timestamptz NOT NULL DEFAULT now()
);
CREATE UNIQUE INDEX IF NOT EXISTS users_email_key ON users (lower(email));
CREATE UNIQUE INDEX IF NOT EXISTS users_username_key ON users (lower(username));

CREATE TABLE IF NOT EXISTS refresh_sessions (
	id         uuid PRIMARY KEY,
	user_id    uuid NOT NULL,
	token_hash text NOT NULL UNIQUE,
	expires_at timestamptz NOT NULL,
	created_at timestamptz NOT NULL,
	revoked_at timestamptz,
	replaced_by_session_id uuid
);

CREATE TABLE IF NOT EXISTS threads (
	id         uuid PRIMARY KEY,
	author     text NOT NULL,
	created_at timestamptz NOT NULL,
	version    bigint NOT NULL DEFAULT 1,
	doc        jsonb NOT NULL
);
CREATE INDEX IF NOT EXISTS threads_created_at_idx ON threads (created_at DESC);
`
	_, err := s.pool.Exec(ctx, ddl)
	return err
}

func (s *PostgresStore) CreateUser(ctx context.Context, p CreateUserParams) (domain.User, error) {
	const q = `INSERT INTO users (id, email, username, password_hash)
	           VALUES (gen_random_uuid(), $1, $2, $3)
	           RETURNING id::text, email, username, created_at`
	var u domain.User
	err := s.pool.QueryRow(ctx, q, p.Email, p.Username, p.PasswordHash).
		Scan(&u.ID, &u.Email, &u.Username, &u.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return domain.User{}, ErrConflict
		}
		return domain.User{}, err
	}
	return u, nil
}

func (s *PostgresStore) FindUserByLogin(ctx context.Context, login string) (UserRow, error) {
	const q = `SELECT id::text, email, username, password_hash, created_at
	           FROM users
	           WHERE lower(email) = lower($1) OR lower(username) = lower($1)
	           LIMIT 1`
	var row UserRow
	err := s.pool.QueryRow(ctx, q, login).
		Scan(&row.User.ID, &row.User.Email, &row.User.Username, &row.PasswordHash, &row.User.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return UserRow{}, ErrNotFound
		}
		return UserRow{}, err
	}
	return row, nil
}

func (s *PostgresStore) GetUserByID(ctx context.Context, id string) (domain.User, error) {
	const q = `SELECT id::text, email, username, created_at FROM users WHERE id = $1`
	var u domain.User
	err := s.pool.QueryRow(ctx, q, id).Scan(&u.ID, &u.Email, &u.Username, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.User{}, ErrNotFound
		}
		return domain.User{}, err
	}
	return u, nil
}

func (s *PostgresStore) CreateRefreshSession(ctx context.Context, p CreateRefreshSessionParams) error {
	const q = `INSERT INTO refresh_sessions (id, user_id, token_hash, expires_at, created_at)
	           VALUES ($1, $2, $3, $4, $5)`
	_, err := s.pool.Exec(ctx, q, p.SessionID, p.UserID, p.TokenHash, p.ExpiresAt, p.Now)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrConflict
		}
		return err
	}
	return nil
}

func (s *PostgresStore) GetRefreshSessionByHash(ctx context.Context, tokenHash string) (RefreshSession, error) {
	const q = `SELECT id, user_id::text, token_hash, expires_at, revoked_at
	           FROM refresh_sessions WHERE token_hash = $1 LIMIT 1`
	var rs RefreshSession
	err := s.pool.QueryRow(ctx, q, tokenHash).
		Scan(&rs.ID, &rs.UserID, &rs.TokenHash, &rs.ExpiresAt, &rs.RevokedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return RefreshSession{}, ErrNotFound
		}
		return RefreshSession{}, err
	}
	return rs, nil
}

func (s *PostgresStore) RevokeRefreshSession(ctx context.Context, sessionID uuid.UUID, now time.Time) error {
	const q = `UPDATE refresh_sessions SET revoked_at = $2 WHERE id = $1 AND revoked_at IS NULL`
	_, err := s.pool.Exec(ctx, q, sessionID, now)
	return err
}

func (s *PostgresStore) ReplaceRefreshSession(ctx context.Context, oldID, newID uuid.UUID, now time.Time) error {
	const q = `UPDATE refresh_sessions SET revoked_at = $3, replaced_by_session_id = $2
	           WHERE id = $1 AND revoked_at IS NULL`
	_, err := s.pool.Exec(ctx, q, oldID, newID, now)
	return err
}

func (s *PostgresStore) ListThreads(ctx context.Context) ([]domain.Thread, error) {
	const q = `SELECT doc FROM threads ORDER BY created_at DESC, id DESC`
	rows, err := s.pool.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.Thread{}
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		t, err := decodeThreadDoc(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *PostgresStore) GetThread(ctx context.Context, id string) (domain.Thread, error) {
	t, _, err := s.loadThread(ctx, id)
	return t, err
}

func (s *PostgresStore) CreateThread(ctx context.Context, d domain.ThreadDraft) (domain.Thread, error) {
	t := engagement.NewThread(d, time.Now())
	doc, err := json.Marshal(t)
	if err != nil {
		return domain.Thread{}, err
	}
	const q = `INSERT INTO threads (id, author, created_at, version, doc) VALUES ($1, $2, $3, 1, $4)`
	if _, err := s.pool.Exec(ctx, q, t.ID, t.Author, t.CreatedAt, doc); err != nil {
		return domain.Thread{}, err
	}
	return t, nil
}

func (s *PostgresStore) DeleteThread(ctx context.Context, id, requestingUsername string) error {
	t, _, err := s.loadThread(ctx, id)
	if err != nil {
		return err
	}
	if !engagement.AuthorizeDelete(t, requestingUsername) {
		return ErrForbidden
	}
	tag, err := s.pool.Exec(ctx, `DELETE FROM threads WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ToggleThreadLike(ctx context.Context, threadID, userID string) (domain.Thread, error) {
	return s.mutate(ctx, threadID, func(t *domain.Thread) error {
		engagement.ToggleThreadLike(t, userID)
		return nil
	})
}

func (s *PostgresStore) AppendComment(ctx context.Context, threadID string, d domain.CommentDraft) (domain.Thread, error) {
	return s.mutate(ctx, threadID, func(t *domain.Thread) error {
		engagement.AddComment(t, engagement.NewComment(d, time.Now()))
		return nil
	})
}

func (s *PostgresStore) ToggleCommentLike(ctx context.Context, threadID, commentID, userID string) (domain.Thread, error) {
	return s.mutate(ctx, threadID, func(t *domain.Thread) error {
		if !engagement.ToggleCommentLike(t, commentID, userID) {
			return ErrNotFound
		}
		return nil
	})
}

func (s *PostgresStore) AppendReply(ctx context.Context, threadID, commentID string, d domain.ReplyDraft) (domain.Thread, error) {
	return s.mutate(ctx, threadID, func(t *domain.Thread) error {
		if !engagement.AddReply(t, commentID, engagement.NewReply(d, time.Now())) {
			return ErrNotFound
		}
		return nil
	})
}

func (s *PostgresStore) ToggleReplyLike(ctx context.Context, threadID, commentID, replyID, userID string) (domain.Thread, error) {
	return s.mutate(ctx, threadID, func(t *domain.Thread) error {
		if !engagement.ToggleReplyLike(t, commentID, replyID, userID) {
			return ErrNotFound
		}
		return nil
	})
}

// mutate runs a read-modify-write cycle guarded by the version stamp.
// A concurrent writer bumping the version between our read and write makes
// the UPDATE match zero rows; we re-read and reapply, bounded by casAttempts.
func (s *PostgresStore) mutate(ctx context.Context, threadID string, fn func(*domain.Thread) error) (domain.Thread, error) {
	for attempt := 0; attempt < casAttempts; attempt++ {
		t, version, err := s.loadThread(ctx, threadID)
		if err != nil {
			return domain.Thread{}, err
		}
		if err := fn(&t); err != nil {
			return domain.Thread{}, err
		}
		doc, err := json.Marshal(t)
		if err != nil {
			return domain.Thread{}, err
		}
		const q = `UPDATE threads SET doc = $1, version = version + 1
		           WHERE id = $2 AND version = $3`
		tag, err := s.pool.Exec(ctx, q, doc, threadID, version)
		if err != nil {
			return domain.Thread{}, err
		}
		if tag.RowsAffected() == 1 {
			return t, nil
		}
	}
	return domain.Thread{}, errVersionConflict
}

func (s *PostgresStore) loadThread(ctx context.Context, id string) (domain.Thread, int64, error) {
	const q = `SELECT doc, version FROM threads WHERE id = $1`
	var doc []byte
	var version int64
	err := s.pool.QueryRow(ctx, q, id).Scan(&doc, &version)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Thread{}, 0, ErrNotFound
		}
		return domain.Thread{}, 0, err
	}
	t, err := decodeThreadDoc(doc)
	return t, version, err
}

func decodeThreadDoc(doc []byte) (domain.Thread, error) {
	var t domain.Thread
	if err := json.Unmarshal(doc, &t); err != nil {
		return domain.Thread{}, err
	}
	t.Normalize()
	return t, nil
}
