package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/example/threads-platform/internal/domain"
	"github.com/example/threads-platform/internal/events"
	"github.com/example/threads-platform/internal/platform/api"
	"github.com/example/threads-platform/internal/platform/httpserver"
	"github.com/example/threads-platform/internal/store"
)

type createCommentRequest struct {
	Content string `json:"content"`
}

// AddComment handles POST /v1/threads/{thread_id}/comments
func AddComment(ts store.ThreadStore, pub *events.Publisher) http.HandlerFunc {
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

		var req createCommentRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
			api.BadRequest(w, "INVALID_JSON", "invalid JSON", reqID, nil)
			return
		}
		if strings.TrimSpace(req.Content) == "" {
			api.BadRequest(w, "EMPTY_CONTENT", "content must not be empty", reqID, nil)
			return
		}

		t, err := ts.AppendComment(r.Context(), threadID, domain.CommentDraft{Content: req.Content, Author: username})
		if err != nil {
			writeStoreError(w, err, reqID)
			return
		}

		pub.Publish(events.SubjectCommentAdded, "comment_added", userID, map[string]any{"thread_id": threadID})
		api.WriteJSON(w, http.StatusCreated, t)
	}
}

// LikeComment handles POST /v1/threads/{thread_id}/comments/{comment_id}/like
func LikeComment(ts store.ThreadStore, pub *events.Publisher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reqID := httpserver.RequestIDFromContext(r.Context())

		userID, _, ok := requireIdentity(w, r, reqID)
		if !ok {
			return
		}

		threadID := strings.TrimSpace(chi.URLParam(r, "thread_id"))
		commentID := strings.TrimSpace(chi.URLParam(r, "comment_id"))
		if threadID == "" || commentID == "" {
			api.BadRequest(w, "MISSING_ID", "thread_id and comment_id are required", reqID, nil)
			return
		}

		t, err := ts.ToggleCommentLike(r.Context(), threadID, commentID, userID)
		if err != nil {
			writeStoreError(w, err, reqID)
			return
		}

		pub.Publish(events.SubjectCommentLiked, "comment_liked", userID, map[string]any{
			"thread_id":  threadID,
			"comment_id": commentID,
		})
		api.WriteJSON(w, http.StatusOK, t)
	}
}

// AddReply handles POST /v1/threads/{thread_id}/comments/{comment_id}/replies
func AddReply(ts store.ThreadStore, pub *events.Publisher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reqID := httpserver.RequestIDFromContext(r.Context())

		userID, username, ok := requireIdentity(w, r, reqID)
		if !ok {
			return
		}

		threadID := strings.TrimSpace(chi.URLParam(r, "thread_id"))
		commentID := strings.TrimSpace(chi.URLParam(r, "comment_id"))
		if threadID == "" || commentID == "" {
			api.BadRequest(w, "MISSING_ID", "thread_id and comment_id are required", reqID, nil)
			return
		}

		var req createCommentRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
			api.BadRequest(w, "INVALID_JSON", "invalid JSON", reqID, nil)
			return
		}
		if strings.TrimSpace(req.Content) == "" {
			api.BadRequest(w, "EMPTY_CONTENT", "content must not be empty", reqID, nil)
			return
		}

		t, err := ts.AppendReply(r.Context(), threadID, commentID, domain.ReplyDraft{Content: req.Content, Author: username})
		if err != nil {
			writeStoreError(w, err, reqID)
			return
		}

		pub.Publish(events.SubjectReplyAdded, "reply_added", userID, map[string]any{
			"thread_id":  threadID,
			"comment_id": commentID,
		})
		api.WriteJSON(w, http.StatusCreated, t)
	}
}

// LikeReply handles POST /v1/threads/{thread_id}/comments/{comment_id}/replies/{reply_id}/like
func LikeReply(ts store.ThreadStore, pub *events.Publisher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reqID := httpserver.RequestIDFromContext(r.Context())

		userID, _, ok := requireIdentity(w, r, reqID)
		if !ok {
			return
		}

		threadID := strings.TrimSpace(chi.URLParam(r, "thread_id"))
		commentID := strings.TrimSpace(chi.URLParam(r, "comment_id"))
		replyID := strings.TrimSpace(chi.URLParam(r, "reply_id"))
		if threadID == "" || commentID == "" || replyID == "" {
			api.BadRequest(w, "MISSING_ID", "thread_id, comment_id and reply_id are required", reqID, nil)
			return
		}

		t, err := ts.ToggleReplyLike(r.Context(), threadID, commentID, replyID, userID)
		if err != nil {
			writeStoreError(w, err, reqID)
			return
		}

		pub.Publish(events.SubjectReplyLiked, "reply_liked", userID, map[string]any{
			"thread_id":  threadID,
			"comment_id": commentID,
			"reply_id":   replyID,
		})
		api.WriteJSON(w, http.StatusOK, t)
	}
}
