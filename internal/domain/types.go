package domain

import "time"

// User is an account holder. The username doubles as the display name and
// as the ownership key on threads (threads store it by value).
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"created_at"`
}

// Thread is a top-level post together with its full engagement state.
// A thread exclusively owns its comments; they have no identity outside it.
type Thread struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	Author    string    `json:"author"` // username at creation time, not a live reference
	ImageURL  string    `json:"image_url,omitempty"`
	Likes     int       `json:"likes"`
	LikedBy   []string  `json:"liked_by"`
	CreatedAt time.Time `json:"created_at"`
	Comments  []Comment `json:"comments"`
}

// Comment is a reply to a thread, itself repliable.
type Comment struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	Author    string    `json:"author"`
	Likes     int       `json:"likes"`
	LikedBy   []string  `json:"liked_by"`
	CreatedAt time.Time `json:"created_at"`
	Replies   []Reply   `json:"replies"`
}

// Reply is the leaf of the engagement hierarchy.
type Reply struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	Author    string    `json:"author"`
	Likes     int       `json:"likes"`
	LikedBy   []string  `json:"liked_by"`
	CreatedAt time.Time `json:"created_at"`
}

// ThreadDraft carries the caller-supplied fields of a new thread.
type ThreadDraft struct {
	Content  string `json:"content"`
	Author   string `json:"author"`
	ImageURL string `json:"image_url,omitempty"`
}

// CommentDraft carries the caller-supplied fields of a new comment.
type CommentDraft struct {
	Content string `json:"content"`
	Author  string `json:"author"`
}

// ReplyDraft carries the caller-supplied fields of a new reply.
type ReplyDraft struct {
	Content string `json:"content"`
	Author  string `json:"author"`
}

// Clone returns a deep copy. Stores and caches hand out clones so callers
// can never reach into shared aggregate state.
func (t Thread) Clone() Thread {
	out := t
	out.LikedBy = append([]string(nil), t.LikedBy...)
	out.Comments = make([]Comment, len(t.Comments))
	for i, c := range t.Comments {
		out.Comments[i] = c.Clone()
	}
	return out
}

// Clone returns a deep copy of the comment and its replies.
func (c Comment) Clone() Comment {
	out := c
	out.LikedBy = append([]string(nil), c.LikedBy...)
	out.Replies = make([]Reply, len(c.Replies))
	for i, r := range c.Replies {
		out.Replies[i] = r
		out.Replies[i].LikedBy = append([]string(nil), r.LikedBy...)
	}
	return out
}

// Normalize repairs aggregates decoded from documents written before every
// field was initialized at construction time: nil slices become empty and
// like counts are re-derived from the liker sets.
func (t *Thread) Normalize() {
	if t.LikedBy == nil {
		t.LikedBy = []string{}
	}
	if t.Comments == nil {
		t.Comments = []Comment{}
	}
	t.Likes = len(t.LikedBy)
	for i := range t.Comments {
		c := &t.Comments[i]
		if c.LikedBy == nil {
			c.LikedBy = []string{}
		}
		if c.Replies == nil {
			c.Replies = []Reply{}
		}
		c.Likes = len(c.LikedBy)
		for j := range c.Replies {
			r := &c.Replies[j]
			if r.LikedBy == nil {
				r.LikedBy = []string{}
			}
			r.Likes = len(r.LikedBy)
		}
	}
}
