// Package engagement implements the mutation rules for thread aggregates:
// like toggling, comment and reply insertion, and the delete authorization
// rule. All functions are pure over the aggregate handed to them; stores
// load an aggregate, apply a rule, and write the result back.
package engagement

import (
	"time"

	"github.com/google/uuid"

	"github.com/example/threads-platform/internal/domain"
)

// NewThread builds a fully initialized thread from a draft.
func NewThread(d domain.ThreadDraft, now time.Time) domain.Thread {
	return domain.Thread{
		ID:        uuid.NewString(),
		Content:   d.Content,
		Author:    d.Author,
		ImageURL:  d.ImageURL,
		Likes:     0,
		LikedBy:   []string{},
		CreatedAt: now.UTC(),
		Comments:  []domain.Comment{},
	}
}

// NewComment builds a fully initialized comment from a draft.
func NewComment(d domain.CommentDraft, now time.Time) domain.Comment {
	return domain.Comment{
		ID:        uuid.NewString(),
		Content:   d.Content,
		Author:    d.Author,
		Likes:     0,
		LikedBy:   []string{},
		CreatedAt: now.UTC(),
		Replies:   []domain.Reply{},
	}
}

// NewReply builds a fully initialized reply from a draft.
func NewReply(d domain.ReplyDraft, now time.Time) domain.Reply {
	return domain.Reply{
		ID:        uuid.NewString(),
		Content:   d.Content,
		Author:    d.Author,
		Likes:     0,
		LikedBy:   []string{},
		CreatedAt: now.UTC(),
	}
}

// ToggleThreadLike flips userID's membership in the thread's liker set and
// adjusts the count to match. Applying it twice restores the original state.
func ToggleThreadLike(t *domain.Thread, userID string) {
	t.LikedBy, t.Likes = toggle(t.LikedBy, userID)
}

// ToggleCommentLike applies the toggle rule to the comment with the given id.
// Returns false if the comment is not part of the thread.
func ToggleCommentLike(t *domain.Thread, commentID, userID string) bool {
	c := findComment(t, commentID)
	if c == nil {
		return false
	}
	c.LikedBy, c.Likes = toggle(c.LikedBy, userID)
	return true
}

// ToggleReplyLike applies the toggle rule to a reply nested under the given
// comment. Returns false if either the comment or the reply is absent.
func ToggleReplyLike(t *domain.Thread, commentID, replyID, userID string) bool {
	c := findComment(t, commentID)
	if c == nil {
		return false
	}
	for i := range c.Replies {
		if c.Replies[i].ID == replyID {
			r := &c.Replies[i]
			r.LikedBy, r.Likes = toggle(r.LikedBy, userID)
			return true
		}
	}
	return false
}

// AddComment appends the comment to the thread's sequence, oldest first.
func AddComment(t *domain.Thread, c domain.Comment) {
	t.Comments = append(t.Comments, c)
}

// AddReply appends the reply to the identified comment's sequence.
// Returns false if the comment is not part of the thread.
func AddReply(t *domain.Thread, commentID string, r domain.Reply) bool {
	c := findComment(t, commentID)
	if c == nil {
		return false
	}
	c.Replies = append(c.Replies, r)
	return true
}

// AuthorizeDelete reports whether the named user may delete the thread.
// Only the author may.
func AuthorizeDelete(t domain.Thread, username string) bool {
	return username != "" && t.Author == username
}

func findComment(t *domain.Thread, commentID string) *domain.Comment {
	for i := range t.Comments {
		if t.Comments[i].ID == commentID {
			return &t.Comments[i]
		}
	}
	return nil
}

// toggle removes userID from the set if present, otherwise adds it, and
// returns the new set together with its size so the stored count can never
// drift from the set.
func toggle(likedBy []string, userID string) ([]string, int) {
	for i, id := range likedBy {
		if id == userID {
			out := make([]string, 0, len(likedBy)-1)
			out = append(out, likedBy[:i]...)
			out = append(out, likedBy[i+1:]...)
			return out, len(out)
		}
	}
	out := append(append([]string(nil), likedBy...), userID)
	return out, len(out)
}
