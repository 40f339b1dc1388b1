package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/example/threads-platform/internal/domain"
	"github.com/example/threads-platform/internal/engagement"
)

// SQLiteStore is the embedded local backend: a single database file holding
// users, refresh sessions and thread aggregates as JSON documents. Aggregate
// writes carry the same version check as the Postgres backend.
type SQLiteStore struct {
	db *sqlx.DB
}

// OpenSQLite opens (and if needed creates) the database file at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// A single writer avoids SQLITE_BUSY under concurrent mutations.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(`PRAGMA journal_mode = WAL; PRAGMA foreign_keys = ON;`); err != nil {
		db.Close()
		return nil, err
	}
	s := &SQLiteStore{db: db}
	if err := s.ensureSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) ensureSchema() error {
	const ddl = `
CREATE TABLE IF NOT EXISTS users (
	id            TEXT PRIMARY KEY,
	email         TEXT NOT NULL COLLATE NOCASE UNIQUE,
	username      TEXT NOT NULL COLLATE NOCASE UNIQUE,
	password_hash TEXT NOT NULL,
	created_at    TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS refresh_sessions (
	id         TEXT PRIMARY KEY,
	user_id    TEXT NOT NULL,
	token_hash TEXT NOT NULL UNIQUE,
	expires_at TIMESTAMP NOT NULL,
	created_at TIMESTAMP NOT NULL,
	revoked_at TIMESTAMP
);
CREATE TABLE IF NOT EXISTS threads (
	id         TEXT PRIMARY KEY,
	author     TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL,
	version    INTEGER NOT NULL DEFAULT 1,
	doc        TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS threads_created_at_idx ON threads (created_at DESC);
`
	_, err := s.db.Exec(ddl)
	return err
}

func (s *SQLiteStore) CreateUser(ctx context.Context, p CreateUserParams) (domain.User, error) {
	u := domain.User{
		ID:        uuid.NewString(),
		Email:     p.Email,
		Username:  p.Username,
		CreatedAt: time.Now().UTC(),
	}
	const q = `INSERT INTO users (id, email, username, password_hash, created_at) VALUES (?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, q, u.ID, u.Email, u.Username, p.PasswordHash, u.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.User{}, ErrConflict
		}
		return domain.User{}, err
	}
	return u, nil
}

func (s *SQLiteStore) FindUserByLogin(ctx context.Context, login string) (UserRow, error) {
	const q = `SELECT id, email, username, password_hash, created_at FROM users
	           WHERE email = ? OR username = ? LIMIT 1`
	var rec struct {
		ID           string    `db:"id"`
		Email        string    `db:"email"`
		Username     string    `db:"username"`
		PasswordHash string    `db:"password_hash"`
		CreatedAt    time.Time `db:"created_at"`
	}
	if err := s.db.GetContext(ctx, &rec, q, login, login); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return UserRow{}, ErrNotFound
		}
		return UserRow{}, err
	}
	return UserRow{
		User:         domain.User{ID: rec.ID, Email: rec.Email, Username: rec.Username, CreatedAt: rec.CreatedAt},
		PasswordHash: rec.PasswordHash,
	}, nil
}

func (s *SQLiteStore) GetUserByID(ctx context.Context, id string) (domain.User, error) {
	const q = `SELECT id, email, username, created_at FROM users WHERE id = ?`
	var rec struct {
		ID        string    `db:"id"`
		Email     string    `db:"email"`
		Username  string    `db:"username"`
		CreatedAt time.Time `db:"created_at"`
	}
	if err := s.db.GetContext(ctx, &rec, q, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.User{}, ErrNotFound
		}
		return domain.User{}, err
	}
	return domain.User{ID: rec.ID, Email: rec.Email, Username: rec.Username, CreatedAt: rec.CreatedAt}, nil
}

func (s *SQLiteStore) CreateRefreshSession(ctx context.Context, p CreateRefreshSessionParams) error {
	const q = `INSERT INTO refresh_sessions (id, user_id, token_hash, expires_at, created_at)
	           VALUES (?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, q, p.SessionID.String(), p.UserID, p.TokenHash, p.ExpiresAt, p.Now)
	if err != nil && isUniqueViolation(err) {
		return ErrConflict
	}
	return err
}

func (s *SQLiteStore) GetRefreshSessionByHash(ctx context.Context, tokenHash string) (RefreshSession, error) {
	const q = `SELECT id, user_id, token_hash, expires_at, revoked_at
	           FROM refresh_sessions WHERE token_hash = ? LIMIT 1`
	var rec struct {
		ID        string     `db:"id"`
		UserID    string     `db:"user_id"`
		TokenHash string     `db:"token_hash"`
		ExpiresAt time.Time  `db:"expires_at"`
		RevokedAt *time.Time `db:"revoked_at"`
	}
	if err := s.db.GetContext(ctx, &rec, q, tokenHash); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return RefreshSession{}, ErrNotFound
		}
		return RefreshSession{}, err
	}
	id, err := uuid.Parse(rec.ID)
	if err != nil {
		return RefreshSession{}, err
	}
	return RefreshSession{
		ID:        id,
		UserID:    rec.UserID,
		TokenHash: rec.TokenHash,
		ExpiresAt: rec.ExpiresAt,
		RevokedAt: rec.RevokedAt,
	}, nil
}

func (s *SQLiteStore) RevokeRefreshSession(ctx context.Context, sessionID uuid.UUID, now time.Time) error {
	const q = `UPDATE refresh_sessions SET revoked_at = ? WHERE id = ? AND revoked_at IS NULL`
	_, err := s.db.ExecContext(ctx, q, now, sessionID.String())
	return err
}

func (s *SQLiteStore) ReplaceRefreshSession(ctx context.Context, oldID, _ uuid.UUID, now time.Time) error {
	return s.RevokeRefreshSession(ctx, oldID, now)
}

func (s *SQLiteStore) ListThreads(ctx context.Context) ([]domain.Thread, error) {
	var docs []string
	const q = `SELECT doc FROM threads ORDER BY created_at DESC, id DESC`
	if err := s.db.SelectContext(ctx, &docs, q); err != nil {
		return nil, err
	}
	out := []domain.Thread{}
	for _, doc := range docs {
		t, err := decodeThreadDoc([]byte(doc))
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

func (s *SQLiteStore) GetThread(ctx context.Context, id string) (domain.Thread, error) {
	t, _, err := s.loadThread(ctx, id)
	return t, err
}

func (s *SQLiteStore) CreateThread(ctx context.Context, d domain.ThreadDraft) (domain.Thread, error) {
	t := engagement.NewThread(d, time.Now())
	doc, err := json.Marshal(t)
	if err != nil {
		return domain.Thread{}, err
	}
	const q = `INSERT INTO threads (id, author, created_at, version, doc) VALUES (?, ?, ?, 1, ?)`
	if _, err := s.db.ExecContext(ctx, q, t.ID, t.Author, t.CreatedAt, string(doc)); err != nil {
		return domain.Thread{}, err
	}
	return t, nil
}

func (s *SQLiteStore) DeleteThread(ctx context.Context, id, requestingUsername string) error {
	t, _, err := s.loadThread(ctx, id)
	if err != nil {
		return err
	}
	if !engagement.AuthorizeDelete(t, requestingUsername) {
		return ErrForbidden
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM threads WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) ToggleThreadLike(ctx context.Context, threadID, userID string) (domain.Thread, error) {
	return s.mutate(ctx, threadID, func(t *domain.Thread) error {
		engagement.ToggleThreadLike(t, userID)
		return nil
	})
}

func (s *SQLiteStore) AppendComment(ctx context.Context, threadID string, d domain.CommentDraft) (domain.Thread, error) {
	return s.mutate(ctx, threadID, func(t *domain.Thread) error {
		engagement.AddComment(t, engagement.NewComment(d, time.Now()))
		return nil
	})
}

func (s *SQLiteStore) ToggleCommentLike(ctx context.Context, threadID, commentID, userID string) (domain.Thread, error) {
	return s.mutate(ctx, threadID, func(t *domain.Thread) error {
		if !engagement.ToggleCommentLike(t, commentID, userID) {
			return ErrNotFound
		}
		return nil
	})
}

func (s *SQLiteStore) AppendReply(ctx context.Context, threadID, commentID string, d domain.ReplyDraft) (domain.Thread, error) {
	return s.mutate(ctx, threadID, func(t *domain.Thread) error {
		if !engagement.AddReply(t, commentID, engagement.NewReply(d, time.Now())) {
			return ErrNotFound
		}
		return nil
	})
}

func (s *SQLiteStore) ToggleReplyLike(ctx context.Context, threadID, commentID, replyID, userID string) (domain.Thread, error) {
	return s.mutate(ctx, threadID, func(t *domain.Thread) error {
		if !engagement.ToggleReplyLike(t, commentID, replyID, userID) {
			return ErrNotFound
		}
		return nil
	})
}

func (s *SQLiteStore) mutate(ctx context.Context, threadID string, fn func(*domain.Thread) error) (domain.Thread, error) {
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
		const q = `UPDATE threads SET doc = ?, version = version + 1 WHERE id = ? AND version = ?`
		res, err := s.db.ExecContext(ctx, q, string(doc), threadID, version)
		if err != nil {
			return domain.Thread{}, err
		}
		if n, _ := res.RowsAffected(); n == 1 {
			return t, nil
		}
	}
	return domain.Thread{}, errVersionConflict
}

func (s *SQLiteStore) loadThread(ctx context.Context, id string) (domain.Thread, int64, error) {
	var rec struct {
		Doc     string `db:"doc"`
		Version int64  `db:"version"`
	}
	const q = `SELECT doc, version FROM threads WHERE id = ?`
	if err := s.db.GetContext(ctx, &rec, q, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Thread{}, 0, ErrNotFound
		}
		return domain.Thread{}, 0, err
	}
	t, err := decodeThreadDoc([]byte(rec.Doc))
	return t, rec.Version, err
}

// modernc.org/sqlite surfaces constraint failures as plain errors; match on
// the SQLite error text.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
