package reconcile

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/example/threads-platform/internal/domain"
	"github.com/example/threads-platform/internal/store"
)

var errGatewayDown = errors.New("gateway down")

// failingGateway passes calls through to a real store until failing is set,
// then rejects every mutation.
type failingGateway struct {
	store.ThreadStore
	failing bool
}

func (g *failingGateway) CreateThread(ctx context.Context, d domain.ThreadDraft) (domain.Thread, error) {
	if g.failing {
		return domain.Thread{}, errGatewayDown
	}
	return g.ThreadStore.CreateThread(ctx, d)
}

func (g *failingGateway) DeleteThread(ctx context.Context, id, username string) error {
	if g.failing {
		return errGatewayDown
	}
	return g.ThreadStore.DeleteThread(ctx, id, username)
}

func (g *failingGateway) ToggleThreadLike(ctx context.Context, threadID, userID string) (domain.Thread, error) {
	if g.failing {
		return domain.Thread{}, errGatewayDown
	}
	return g.ThreadStore.ToggleThreadLike(ctx, threadID, userID)
}

func (g *failingGateway) AppendComment(ctx context.Context, threadID string, d domain.CommentDraft) (domain.Thread, error) {
	if g.failing {
		return domain.Thread{}, errGatewayDown
	}
	return g.ThreadStore.AppendComment(ctx, threadID, d)
}

func newTestCache(t *testing.T) (*Cache, *failingGateway, *store.MemoryStore) {
	t.Helper()
	mem := store.NewMemoryStore()
	gw := &failingGateway{ThreadStore: mem}
	return NewCache(gw, nil), gw, mem
}

func TestLoadAndThreads(t *testing.T) {
	cache, _, mem := newTestCache(t)
	ctx := context.Background()

	_, _ = mem.CreateThread(ctx, domain.ThreadDraft{Content: "older", Author: "alice"})
	newest, _ := mem.CreateThread(ctx, domain.ThreadDraft{Content: "newer", Author: "bob"})

	if err := cache.Load(ctx); err != nil {
		t.Fatalf("Load: %v", err)
	}
	threads := cache.Threads()
	if len(threads) != 2 || threads[0].ID != newest.ID {
		t.Fatalf("expected newest-first view, got %+v", threads)
	}
}

func TestCreateThreadCommitsServerState(t *testing.T) {
	cache, _, mem := newTestCache(t)
	ctx := context.Background()
	if err := cache.Load(ctx); err != nil {
		t.Fatalf("Load: %v", err)
	}

	created, err := cache.CreateThread(ctx, domain.ThreadDraft{Content: "hello", Author: "alice"})
	if err != nil {
		t.Fatalf("CreateThread: %v", err)
	}

	local, ok := cache.Thread(created.ID)
	if !ok {
		t.Fatal("created thread missing from local view")
	}
	remote, err := mem.GetThread(ctx, created.ID)
	if err != nil {
		t.Fatalf("GetThread: %v", err)
	}
	if !reflect.DeepEqual(local, remote) {
		t.Fatalf("local view diverged from server state:\nlocal  %+v\nremote %+v", local, remote)
	}
}

func TestCreateThreadRollsBack(t *testing.T) {
	cache, gw, _ := newTestCache(t)
	ctx := context.Background()
	if err := cache.Load(ctx); err != nil {
		t.Fatalf("Load: %v", err)
	}

	gw.failing = true
	if _, err := cache.CreateThread(ctx, domain.ThreadDraft{Content: "doomed", Author: "alice"}); !errors.Is(err, errGatewayDown) {
		t.Fatalf("err = %v, want gateway error", err)
	}
	if got := cache.Threads(); len(got) != 0 {
		t.Fatalf("expected provisional thread removed, got %+v", got)
	}
}

func TestToggleLikeRollsBackToSnapshot(t *testing.T) {
	cache, gw, mem := newTestCache(t)
	ctx := context.Background()

	th, _ := mem.CreateThread(ctx, domain.ThreadDraft{Content: "hello", Author: "alice"})
	if err := cache.Load(ctx); err != nil {
		t.Fatalf("Load: %v", err)
	}
	before, _ := cache.Thread(th.ID)

	gw.failing = true
	if _, err := cache.ToggleThreadLike(ctx, th.ID, "user-b"); !errors.Is(err, errGatewayDown) {
		t.Fatalf("err = %v, want gateway error", err)
	}

	after, _ := cache.Thread(th.ID)
	if !reflect.DeepEqual(before, after) {
		t.Fatalf("rollback did not restore snapshot:\nbefore %+v\nafter  %+v", before, after)
	}
}

func TestToggleLikeCommitsServerState(t *testing.T) {
	cache, _, mem := newTestCache(t)
	ctx := context.Background()

	th, _ := mem.CreateThread(ctx, domain.ThreadDraft{Content: "hello", Author: "alice"})
	if err := cache.Load(ctx); err != nil {
		t.Fatalf("Load: %v", err)
	}

	updated, err := cache.ToggleThreadLike(ctx, th.ID, "user-b")
	if err != nil {
		t.Fatalf("ToggleThreadLike: %v", err)
	}
	if updated.Likes != 1 {
		t.Fatalf("likes = %d, want 1", updated.Likes)
	}

	local, _ := cache.Thread(th.ID)
	remote, _ := mem.GetThread(ctx, th.ID)
	if !reflect.DeepEqual(local, remote) {
		t.Fatal("local view diverged from server state after commit")
	}
}

func TestAppendCommentRollsBack(t *testing.T) {
	cache, gw, mem := newTestCache(t)
	ctx := context.Background()

	th, _ := mem.CreateThread(ctx, domain.ThreadDraft{Content: "hello", Author: "alice"})
	if err := cache.Load(ctx); err != nil {
		t.Fatalf("Load: %v", err)
	}

	gw.failing = true
	if _, err := cache.AppendComment(ctx, th.ID, domain.CommentDraft{Content: "nope", Author: "bob"}); !errors.Is(err, errGatewayDown) {
		t.Fatalf("err = %v, want gateway error", err)
	}
	local, _ := cache.Thread(th.ID)
	if len(local.Comments) != 0 {
		t.Fatalf("expected comment rolled back, got %+v", local.Comments)
	}
}

func TestDeleteThreadRollsBackInPlace(t *testing.T) {
	cache, gw, mem := newTestCache(t)
	ctx := context.Background()

	_, _ = mem.CreateThread(ctx, domain.ThreadDraft{Content: "first", Author: "alice"})
	mid, _ := mem.CreateThread(ctx, domain.ThreadDraft{Content: "second", Author: "alice"})
	_, _ = mem.CreateThread(ctx, domain.ThreadDraft{Content: "third", Author: "alice"})
	if err := cache.Load(ctx); err != nil {
		t.Fatalf("Load: %v", err)
	}
	before := cache.Threads()

	gw.failing = true
	if err := cache.DeleteThread(ctx, mid.ID, "alice"); !errors.Is(err, errGatewayDown) {
		t.Fatalf("err = %v, want gateway error", err)
	}
	if !reflect.DeepEqual(before, cache.Threads()) {
		t.Fatal("rollback did not restore feed order")
	}
}

func TestDeleteThreadCommits(t *testing.T) {
	cache, _, mem := newTestCache(t)
	ctx := context.Background()

	th, _ := mem.CreateThread(ctx, domain.ThreadDraft{Content: "bye", Author: "alice"})
	if err := cache.Load(ctx); err != nil {
		t.Fatalf("Load: %v", err)
	}

	if err := cache.DeleteThread(ctx, th.ID, "alice"); err != nil {
		t.Fatalf("DeleteThread: %v", err)
	}
	if _, ok := cache.Thread(th.ID); ok {
		t.Fatal("deleted thread still in local view")
	}
	if _, err := mem.GetThread(ctx, th.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected thread gone from store, got %v", err)
	}
}
