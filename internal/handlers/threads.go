package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/example/threads-platform/internal/domain"
	"github.com/example/threads-platform/internal/events"
	"github.com/example/threads-platform/internal/platform/api"
	"github.com/example/threads-platform/internal/platform/auth"
	"github.com/example/threads-platform/internal/platform/httpserver"
	"github.com/example/threads-platform/internal/store"
)

type createThreadRequest struct {
	Content  string `json:"content"`
	ImageURL string `json:"image_url,omitempty"`
}

type listThreadsResponse struct {
	Threads []domain.Thread `json:"threads"`
}

// ListThreads handles GET /v1/threads. An optional q= parameter filters by
// substring match on content and author, case-insensitively.
func ListThreads(ts store.ThreadStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reqID := httpserver.RequestIDFromContext(r.Context())

		threads, err := ts.ListThreads(r.Context())
		if err != nil {
			api.Internal(w, reqID)
			return
		}

		if q := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("q"))); q != "" {
			filtered := make([]domain.Thread, 0, len(threads))
			for _, t := range threads {
				if strings.Contains(strings.ToLower(t.Content), q) || strings.Contains(strings.ToLower(t.Author), q) {
					filtered = append(filtered, t)
				}
			}
			threads = filtered
		}

		api.WriteJSON(w, http.StatusOK, listThreadsResponse{Threads: threads})
	}
}

// GetThread handles GET /v1/threads/{thread_id}
func GetThread(ts store.ThreadStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reqID := httpserver.RequestIDFromContext(r.Context())

		threadID := strings.TrimSpace(chi.URLParam(r, "thread_id"))
		if threadID == "" {
			api.BadRequest(w, "MISSING_ID", "thread_id is required", reqID, nil)
			return
		}

		t, err := ts.GetThread(r.Context(), threadID)
		if err != nil {
			writeStoreError(w, err, reqID)
			return
		}
		api.WriteJSON(w, http.StatusOK, t)
	}
}

// CreateThread handles POST /v1/threads
func CreateThread(ts store.ThreadStore, pub *events.Publisher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reqID := httpserver.RequestIDFromContext(r.Context())

		userID, username, ok := requireIdentity(w, r, reqID)
		if !ok {
			return
		}

		var req createThreadRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
			api.BadRequest(w, "INVALID_JSON", "invalid JSON", reqID, nil)
			return
		}
		if strings.TrimSpace(req.Content) == "" {
			api.BadRequest(w, "EMPTY_CONTENT", "content must not be empty", reqID, nil)
			return
		}

		t, err := ts.CreateThread(r.Context(), domain.ThreadDraft{
			Content:  req.Content,
			Author:   username,
			ImageURL: strings.TrimSpace(req.ImageURL),
		})
		if err != nil {
			writeStoreError(w, err, reqID)
			return
		}

		pub.Publish(events.SubjectThreadCreated, "thread_created", userID, map[string]any{"thread_id": t.ID})
		api.WriteJSON(w, http.StatusCreated, t)
	}
}

// DeleteThread handles DELETE /v1/threads/{thread_id}. Only the author may
// delete a thread.
func DeleteThread(ts store.ThreadStore, pub *events.Publisher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reqID := httpserver.RequestIDFromContext(r.Context())

		userID, username, ok := requireIdentity(w, r, reqID)
		if !ok {
			return
		}

		threadID := strings.TrimSpace(chi.URLParam(r, "thread_id"))
		if threadID == "" {
			api.BadRequest(w, "MISSING_ID", "thread_id is required", reqID, nil)
			return
		}

		if err := ts.DeleteThread(r.Context(), threadID, username); err != nil {
			writeStoreError(w, err, reqID)
			return
		}

		pub.Publish(events.SubjectThreadDeleted, "thread_deleted", userID, map[string]any{"thread_id": threadID})
		w.WriteHeader(http.StatusNoContent)
	}
}

// LikeThread handles POST /v1/threads/{thread_id}/like. A second like by the
// same user removes the first one.
func LikeThread(ts store.ThreadStore, pub *events.Publisher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reqID := httpserver.RequestIDFromContext(r.Context())

		userID, _, ok := requireIdentity(w, r, reqID)
		if !ok {
			return
		}

		threadID := strings.TrimSpace(chi.URLParam(r, "thread_id"))
		if threadID == "" {
			api.BadRequest(w, "MISSING_ID", "thread_id is required", reqID, nil)
			return
		}

		t, err := ts.ToggleThreadLike(r.Context(), threadID, userID)
		if err != nil {
			writeStoreError(w, err, reqID)
			return
		}

		pub.Publish(events.SubjectThreadLiked, "thread_liked", userID, map[string]any{"thread_id": threadID, "likes": t.Likes})
		api.WriteJSON(w, http.StatusOK, t)
	}
}

func requireIdentity(w http.ResponseWriter, r *http.Request, reqID string) (userID, username string, ok bool) {
	userID, idOK := auth.UserIDFromContext(r.Context())
	username, nameOK := auth.UsernameFromContext(r.Context())
	if !idOK || userID == "" || !nameOK || username == "" {
		api.Unauthorized(w, "UNAUTHORIZED", "authentication required", reqID)
		return "", "", false
	}
	return userID, username, true
}

func writeStoreError(w http.ResponseWriter, err error, reqID string) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		api.NotFound(w, "NOT_FOUND", "thread not found", reqID)
	case errors.Is(err, store.ErrForbidden):
		api.Forbidden(w, "FORBIDDEN", "not the author", reqID)
	case errors.Is(err, store.ErrConflict):
		api.Conflict(w, "CONFLICT", "concurrent update, retry", reqID, nil)
	default:
		api.Internal(w, reqID)
	}
}
