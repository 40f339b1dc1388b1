// Package reconcile keeps an optimistic local view of the thread feed in
// front of a slower gateway. Mutations apply the predicted outcome locally
// first, then confirm against the gateway: on success the server's aggregate
// replaces the prediction, on failure the snapshot taken before the mutation
// is restored and the error surfaces to the caller. There are no automatic
// retries.
package reconcile

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/example/threads-platform/internal/domain"
	"github.com/example/threads-platform/internal/engagement"
	"github.com/example/threads-platform/internal/store"
)

// Gateway is the confirmed source of truth behind the cache. Both the local
// store backends and threadclient.Client satisfy it.
type Gateway = store.ThreadStore

type Cache struct {
	gw  Gateway
	log *zap.Logger

	mu      sync.RWMutex
	threads []domain.Thread // newest-first
	loaded  bool
}

func NewCache(gw Gateway, log *zap.Logger) *Cache {
	if log == nil {
		log = zap.NewNop()
	}
	return &Cache{gw: gw, log: log}
}

// Load replaces the local view with the gateway's current state.
func (c *Cache) Load(ctx context.Context) error {
	threads, err := c.gw.ListThreads(ctx)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.threads = threads
	c.loaded = true
	c.mu.Unlock()
	return nil
}

// Threads returns the current local view, newest-first.
func (c *Cache) Threads() []domain.Thread {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]domain.Thread, len(c.threads))
	for i := range c.threads {
		out[i] = c.threads[i].Clone()
	}
	return out
}

// Thread returns one thread from the local view.
func (c *Cache) Thread(id string) (domain.Thread, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for i := range c.threads {
		if c.threads[i].ID == id {
			return c.threads[i].Clone(), true
		}
	}
	return domain.Thread{}, false
}

// CreateThread shows a provisional thread at the head of the feed while the
// gateway call is in flight. The provisional entry is swapped for the
// server's aggregate on success and removed on failure.
func (c *Cache) CreateThread(ctx context.Context, d domain.ThreadDraft) (domain.Thread, error) {
	provisional := engagement.NewThread(d, time.Now().UTC())

	c.mu.Lock()
	c.threads = append([]domain.Thread{provisional.Clone()}, c.threads...)
	c.mu.Unlock()

	created, err := c.gw.CreateThread(ctx, d)
	if err != nil {
		c.removeLocal(provisional.ID)
		c.log.Warn("create rolled back", zap.Error(err))
		return domain.Thread{}, err
	}

	c.mu.Lock()
	for i := range c.threads {
		if c.threads[i].ID == provisional.ID {
			c.threads[i] = created.Clone()
			break
		}
	}
	c.mu.Unlock()
	return created, nil
}

// DeleteThread removes the thread locally, then confirms. A rejected delete
// puts the thread back in its original position.
func (c *Cache) DeleteThread(ctx context.Context, id, requestingUsername string) error {
	c.mu.Lock()
	idx := -1
	var snapshot domain.Thread
	for i := range c.threads {
		if c.threads[i].ID == id {
			idx = i
			snapshot = c.threads[i].Clone()
			break
		}
	}
	if idx >= 0 {
		c.threads = append(c.threads[:idx:idx], c.threads[idx+1:]...)
	}
	c.mu.Unlock()

	if err := c.gw.DeleteThread(ctx, id, requestingUsername); err != nil {
		if idx >= 0 {
			c.mu.Lock()
			rest := c.threads
			c.threads = make([]domain.Thread, 0, len(rest)+1)
			c.threads = append(c.threads, rest[:idx]...)
			c.threads = append(c.threads, snapshot)
			c.threads = append(c.threads, rest[idx:]...)
			c.mu.Unlock()
		}
		c.log.Warn("delete rolled back", zap.String("thread_id", id), zap.Error(err))
		return err
	}
	return nil
}

func (c *Cache) ToggleThreadLike(ctx context.Context, threadID, userID string) (domain.Thread, error) {
	return c.reconcile(ctx, threadID,
		func(t *domain.Thread) { engagement.ToggleThreadLike(t, userID) },
		func(ctx context.Context) (domain.Thread, error) {
			return c.gw.ToggleThreadLike(ctx, threadID, userID)
		})
}

func (c *Cache) AppendComment(ctx context.Context, threadID string, d domain.CommentDraft) (domain.Thread, error) {
	return c.reconcile(ctx, threadID,
		func(t *domain.Thread) { engagement.AddComment(t, engagement.NewComment(d, time.Now().UTC())) },
		func(ctx context.Context) (domain.Thread, error) {
			return c.gw.AppendComment(ctx, threadID, d)
		})
}

func (c *Cache) ToggleCommentLike(ctx context.Context, threadID, commentID, userID string) (domain.Thread, error) {
	return c.reconcile(ctx, threadID,
		func(t *domain.Thread) { engagement.ToggleCommentLike(t, commentID, userID) },
		func(ctx context.Context) (domain.Thread, error) {
			return c.gw.ToggleCommentLike(ctx, threadID, commentID, userID)
		})
}

func (c *Cache) AppendReply(ctx context.Context, threadID, commentID string, d domain.ReplyDraft) (domain.Thread, error) {
	return c.reconcile(ctx, threadID,
		func(t *domain.Thread) { engagement.AddReply(t, commentID, engagement.NewReply(d, time.Now().UTC())) },
		func(ctx context.Context) (domain.Thread, error) {
			return c.gw.AppendReply(ctx, threadID, commentID, d)
		})
}

func (c *Cache) ToggleReplyLike(ctx context.Context, threadID, commentID, replyID, userID string) (domain.Thread, error) {
	return c.reconcile(ctx, threadID,
		func(t *domain.Thread) { engagement.ToggleReplyLike(t, commentID, replyID, userID) },
		func(ctx context.Context) (domain.Thread, error) {
			return c.gw.ToggleReplyLike(ctx, threadID, commentID, replyID, userID)
		})
}

// reconcile runs one optimistic mutation against a single thread: predict
// locally, confirm remotely, then commit the server's aggregate or restore
// the snapshot.
func (c *Cache) reconcile(ctx context.Context, threadID string, predict func(*domain.Thread), confirm func(context.Context) (domain.Thread, error)) (domain.Thread, error) {
	c.mu.Lock()
	var snapshot domain.Thread
	found := false
	for i := range c.threads {
		if c.threads[i].ID == threadID {
			snapshot = c.threads[i].Clone()
			predict(&c.threads[i])
			found = true
			break
		}
	}
	c.mu.Unlock()

	confirmed, err := confirm(ctx)
	if err != nil {
		if found {
			c.replaceLocal(snapshot)
		}
		c.log.Warn("mutation rolled back", zap.String("thread_id", threadID), zap.Error(err))
		return domain.Thread{}, err
	}

	c.replaceLocal(confirmed)
	return confirmed, nil
}

func (c *Cache) replaceLocal(t domain.Thread) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.threads {
		if c.threads[i].ID == t.ID {
			c.threads[i] = t.Clone()
			return
		}
	}
}

func (c *Cache) removeLocal(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.threads {
		if c.threads[i].ID == id {
			c.threads = append(c.threads[:i:i], c.threads[i+1:]...)
			return
		}
	}
}
