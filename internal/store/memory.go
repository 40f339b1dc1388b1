package store

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/example/threads-platform/internal/domain"
	"github.com/example/threads-platform/internal/engagement"
)

// MemoryStore is a development-only backend holding users, sessions and
// threads in process memory. The mutex serializes read-modify-write cycles,
// so concurrent toggles on the same aggregate cannot lose updates.
type MemoryStore struct {
	mu       sync.RWMutex
	users    map[string]memoryUser       // id -> user
	sessions map[uuid.UUID]RefreshSession // id -> session
	threads  []domain.Thread              // newest first
}

type memoryUser struct {
	user         domain.User
	passwordHash string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:    make(map[string]memoryUser),
		sessions: make(map[uuid.UUID]RefreshSession),
	}
}

func (s *MemoryStore) CreateUser(_ context.Context, p CreateUserParams) (domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.users {
		if strings.EqualFold(u.user.Email, p.Email) || strings.EqualFold(u.user.Username, p.Username) {
			return domain.User{}, ErrConflict
		}
	}

	u := domain.User{
		ID:        uuid.NewString(),
		Email:     p.Email,
		Username:  p.Username,
		CreatedAt: time.Now().UTC(),
	}
	s.users[u.ID] = memoryUser{user: u, passwordHash: p.PasswordHash}
	return u, nil
}

func (s *MemoryStore) FindUserByLogin(_ context.Context, login string) (UserRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	login = strings.TrimSpace(login)
	if login == "" {
		return UserRow{}, ErrNotFound
	}
	for _, u := range s.users {
		if strings.EqualFold(u.user.Email, login) || strings.EqualFold(u.user.Username, login) {
			return UserRow{User: u.user, PasswordHash: u.passwordHash}, nil
		}
	}
	return UserRow{}, ErrNotFound
}

func (s *MemoryStore) GetUserByID(_ context.Context, id string) (domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return domain.User{}, ErrNotFound
	}
	return u.user, nil
}

func (s *MemoryStore) CreateRefreshSession(_ context.Context, p CreateRefreshSessionParams) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[p.SessionID]; ok {
		return ErrConflict
	}
	s.sessions[p.SessionID] = RefreshSession{
		ID:        p.SessionID,
		UserID:    p.UserID,
		TokenHash: p.TokenHash,
		ExpiresAt: p.ExpiresAt,
	}
	return nil
}

func (s *MemoryStore) GetRefreshSessionByHash(_ context.Context, tokenHash string) (RefreshSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, sess := range s.sessions {
		if sess.TokenHash == tokenHash {
			return sess, nil
		}
	}
	return RefreshSession{}, ErrNotFound
}

func (s *MemoryStore) RevokeRefreshSession(_ context.Context, sessionID uuid.UUID, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok || sess.RevokedAt != nil {
		return nil
	}
	sess.RevokedAt = &now
	s.sessions[sessionID] = sess
	return nil
}

func (s *MemoryStore) ReplaceRefreshSession(_ context.Context, oldID, _ uuid.UUID, now time.Time) error {
	return s.RevokeRefreshSession(context.Background(), oldID, now)
}

func (s *MemoryStore) ListThreads(_ context.Context) ([]domain.Thread, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Thread, len(s.threads))
	for i, t := range s.threads {
		out[i] = t.Clone()
	}
	return out, nil
}

func (s *MemoryStore) GetThread(_ context.Context, id string) (domain.Thread, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t := s.findThread(id)
	if t == nil {
		return domain.Thread{}, ErrNotFound
	}
	return t.Clone(), nil
}

func (s *MemoryStore) CreateThread(_ context.Context, d domain.ThreadDraft) (domain.Thread, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := engagement.NewThread(d, time.Now())
	// Prepend: the listing order is newest first.
	s.threads = append([]domain.Thread{t}, s.threads...)
	return t.Clone(), nil
}

func (s *MemoryStore) DeleteThread(_ context.Context, id, requestingUsername string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, t := range s.threads {
		if t.ID != id {
			continue
		}
		if !engagement.AuthorizeDelete(t, requestingUsername) {
			return ErrForbidden
		}
		s.threads = append(s.threads[:i], s.threads[i+1:]...)
		return nil
	}
	return ErrNotFound
}

func (s *MemoryStore) ToggleThreadLike(_ context.Context, threadID, userID string) (domain.Thread, error) {
	return s.mutate(threadID, func(t *domain.Thread) error {
		engagement.ToggleThreadLike(t, userID)
		return nil
	})
}

func (s *MemoryStore) AppendComment(_ context.Context, threadID string, d domain.CommentDraft) (domain.Thread, error) {
	return s.mutate(threadID, func(t *domain.Thread) error {
		engagement.AddComment(t, engagement.NewComment(d, time.Now()))
		return nil
	})
}

func (s *MemoryStore) ToggleCommentLike(_ context.Context, threadID, commentID, userID string) (domain.Thread, error) {
	return s.mutate(threadID, func(t *domain.Thread) error {
		if !engagement.ToggleCommentLike(t, commentID, userID) {
			return ErrNotFound
		}
		return nil
	})
}

func (s *MemoryStore) AppendReply(_ context.Context, threadID, commentID string, d domain.ReplyDraft) (domain.Thread, error) {
	return s.mutate(threadID, func(t *domain.Thread) error {
		if !engagement.AddReply(t, commentID, engagement.NewReply(d, time.Now())) {
			return ErrNotFound
		}
		return nil
	})
}

func (s *MemoryStore) ToggleReplyLike(_ context.Context, threadID, commentID, replyID, userID string) (domain.Thread, error) {
	return s.mutate(threadID, func(t *domain.Thread) error {
		if !engagement.ToggleReplyLike(t, commentID, replyID, userID) {
			return ErrNotFound
		}
		return nil
	})
}

// mutate runs fn against the live aggregate under the write lock and returns
// a clone of the result.
func (s *MemoryStore) mutate(threadID string, fn func(*domain.Thread) error) (domain.Thread, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := s.findThread(threadID)
	if t == nil {
		return domain.Thread{}, ErrNotFound
	}
	if err := fn(t); err != nil {
		return domain.Thread{}, err
	}
	return t.Clone(), nil
}

func (s *MemoryStore) findThread(id string) *domain.Thread {
	for i := range s.threads {
		if s.threads[i].ID == id {
			return &s.threads[i]
		}
	}
	return nil
}
