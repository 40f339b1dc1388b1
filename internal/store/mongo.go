package store

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/example/threads-platform/internal/domain"
	"github.com/example/threads-platform/internal/engagement"
)

// MongoThreadStore keeps one document per thread aggregate in a MongoDB
// collection. Accounts stay in the local store; this backend covers threads
// only. Writes are guarded by a version field in the replace filter.
type MongoThreadStore struct {
	coll *mongo.Collection
}

// NewMongoThreadStore wraps the "threads" collection of the given database.
func NewMongoThreadStore(db *mongo.Database) *MongoThreadStore {
	return &MongoThreadStore{coll: db.Collection("threads")}
}

// threadDoc is the persisted shape of a thread aggregate.
type threadDoc struct {
	ID        string       `bson:"_id"`
	Content   string       `bson:"content"`
	Author    string       `bson:"author"`
	ImageURL  string       `bson:"image_url,omitempty"`
	LikedBy   []string     `bson:"liked_by"`
	CreatedAt time.Time    `bson:"created_at"`
	Comments  []commentDoc `bson:"comments"`
	Version   int64        `bson:"version"`
}

type commentDoc struct {
	ID        string     `bson:"id"`
	Content   string     `bson:"content"`
	Author    string     `bson:"author"`
	LikedBy   []string   `bson:"liked_by"`
	CreatedAt time.Time  `bson:"created_at"`
	Replies   []replyDoc `bson:"replies"`
}

type replyDoc struct {
	ID        string    `bson:"id"`
	Content   string    `bson:"content"`
	Author    string    `bson:"author"`
	LikedBy   []string  `bson:"liked_by"`
	CreatedAt time.Time `bson:"created_at"`
}

func toThreadDoc(t domain.Thread, version int64) threadDoc {
	doc := threadDoc{
		ID:        t.ID,
		Content:   t.Content,
		Author:    t.Author,
		ImageURL:  t.ImageURL,
		LikedBy:   t.LikedBy,
		CreatedAt: t.CreatedAt,
		Comments:  make([]commentDoc, len(t.Comments)),
		Version:   version,
	}
	for i, c := range t.Comments {
		cd := commentDoc{
			ID:        c.ID,
			Content:   c.Content,
			Author:    c.Author,
			LikedBy:   c.LikedBy,
			CreatedAt: c.CreatedAt,
			Replies:   make([]replyDoc, len(c.Replies)),
		}
		for j, r := range c.Replies {
			cd.Replies[j] = replyDoc{ID: r.ID, Content: r.Content, Author: r.Author, LikedBy: r.LikedBy, CreatedAt: r.CreatedAt}
		}
		doc.Comments[i] = cd
	}
	return doc
}

func (d threadDoc) toDomain() domain.Thread {
	t := domain.Thread{
		ID:        d.ID,
		Content:   d.Content,
		Author:    d.Author,
		ImageURL:  d.ImageURL,
		LikedBy:   d.LikedBy,
		CreatedAt: d.CreatedAt,
		Comments:  make([]domain.Comment, len(d.Comments)),
	}
	for i, cd := range d.Comments {
		c := domain.Comment{
			ID:        cd.ID,
			Content:   cd.Content,
			Author:    cd.Author,
			LikedBy:   cd.LikedBy,
			CreatedAt: cd.CreatedAt,
			Replies:   make([]domain.Reply, len(cd.Replies)),
		}
		for j, rd := range cd.Replies {
			c.Replies[j] = domain.Reply{ID: rd.ID, Content: rd.Content, Author: rd.Author, LikedBy: rd.LikedBy, CreatedAt: rd.CreatedAt}
		}
		t.Comments[i] = c
	}
	t.Normalize()
	return t
}

func (s *MongoThreadStore) ListThreads(ctx context.Context) ([]domain.Thread, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}})
	cur, err := s.coll.Find(ctx, bson.D{}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	out := []domain.Thread{}
	for cur.Next(ctx) {
		var doc threadDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		out = append(out, doc.toDomain())
	}
	return out, cur.Err()
}

func (s *MongoThreadStore) GetThread(ctx context.Context, id string) (domain.Thread, error) {
	doc, err := s.loadDoc(ctx, id)
	if err != nil {
		return domain.Thread{}, err
	}
	return doc.toDomain(), nil
}

func (s *MongoThreadStore) CreateThread(ctx context.Context, d domain.ThreadDraft) (domain.Thread, error) {
	t := engagement.NewThread(d, time.Now())
	if _, err := s.coll.InsertOne(ctx, toThreadDoc(t, 1)); err != nil {
		return domain.Thread{}, err
	}
	return t, nil
}

func (s *MongoThreadStore) DeleteThread(ctx context.Context, id, requestingUsername string) error {
	doc, err := s.loadDoc(ctx, id)
	if err != nil {
		return err
	}
	if !engagement.AuthorizeDelete(doc.toDomain(), requestingUsername) {
		return ErrForbidden
	}
	res, err := s.coll.DeleteOne(ctx, bson.D{{Key: "_id", Value: id}})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoThreadStore) ToggleThreadLike(ctx context.Context, threadID, userID string) (domain.Thread, error) {
	return s.mutate(ctx, threadID, func(t *domain.Thread) error {
		engagement.ToggleThreadLike(t, userID)
		return nil
	})
}

func (s *MongoThreadStore) AppendComment(ctx context.Context, threadID string, d domain.CommentDraft) (domain.Thread, error) {
	return s.mutate(ctx, threadID, func(t *domain.Thread) error {
		engagement.AddComment(t, engagement.NewComment(d, time.Now()))
		return nil
	})
}

func (s *MongoThreadStore) ToggleCommentLike(ctx context.Context, threadID, commentID, userID string) (domain.Thread, error) {
	return s.mutate(ctx, threadID, func(t *domain.Thread) error {
		if !engagement.ToggleCommentLike(t, commentID, userID) {
			return ErrNotFound
		}
		return nil
	})
}

func (s *MongoThreadStore) AppendReply(ctx context.Context, threadID, commentID string, d domain.ReplyDraft) (domain.Thread, error) {
	return s.mutate(ctx, threadID, func(t *domain.Thread) error {
		if !engagement.AddReply(t, commentID, engagement.NewReply(d, time.Now())) {
			return ErrNotFound
		}
		return nil
	})
}

func (s *MongoThreadStore) ToggleReplyLike(ctx context.Context, threadID, commentID, replyID, userID string) (domain.Thread, error) {
	return s.mutate(ctx, threadID, func(t *domain.Thread) error {
		if !engagement.ToggleReplyLike(t, commentID, replyID, userID) {
			return ErrNotFound
		}
		return nil
	})
}

// mutate reloads, reapplies and replaces the document until the version
// filter matches, bounded by casAttempts.
func (s *MongoThreadStore) mutate(ctx context.Context, threadID string, fn func(*domain.Thread) error) (domain.Thread, error) {
	for attempt := 0; attempt < casAttempts; attempt++ {
		doc, err := s.loadDoc(ctx, threadID)
		if err != nil {
			return domain.Thread{}, err
		}
		t := doc.toDomain()
		if err := fn(&t); err != nil {
			return domain.Thread{}, err
		}
		filter := bson.D{{Key: "_id", Value: threadID}, {Key: "version", Value: doc.Version}}
		res, err := s.coll.ReplaceOne(ctx, filter, toThreadDoc(t, doc.Version+1))
		if err != nil {
			return domain.Thread{}, err
		}
		if res.MatchedCount == 1 {
			return t, nil
		}
	}
	return domain.Thread{}, errVersionConflict
}

func (s *MongoThreadStore) loadDoc(ctx context.Context, id string) (threadDoc, error) {
	var doc threadDoc
	err := s.coll.FindOne(ctx, bson.D{{Key: "_id", Value: id}}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return threadDoc{}, ErrNotFound
		}
		return threadDoc{}, err
	}
	return doc, nil
}
