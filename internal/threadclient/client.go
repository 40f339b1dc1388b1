// Package threadclient is an HTTP client for the threads API. It satisfies
// store.ThreadStore, so the optimistic cache and other callers can sit on a
// remote server the same way they sit on a local backend.
package threadclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/example/threads-platform/internal/domain"
	"github.com/example/threads-platform/internal/platform/api"
	"github.com/example/threads-platform/internal/store"
)

type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	token      string
}

type Option func(*Client)

// WithHTTPClient overrides the default client, e.g. for tests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.HTTPClient = hc }
}

// WithToken sets the bearer token attached to mutating requests.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetToken replaces the bearer token, e.g. after a refresh.
func (c *Client) SetToken(token string) { c.token = token }

type listThreadsResponse struct {
	Threads []domain.Thread `json:"threads"`
}

func (c *Client) ListThreads(ctx context.Context) ([]domain.Thread, error) {
	var out listThreadsResponse
	if err := c.do(ctx, http.MethodGet, "/v1/threads", nil, &out); err != nil {
		return nil, err
	}
	return out.Threads, nil
}

func (c *Client) GetThread(ctx context.Context, id string) (domain.Thread, error) {
	var t domain.Thread
	err := c.do(ctx, http.MethodGet, "/v1/threads/"+id, nil, &t)
	return t, err
}

func (c *Client) CreateThread(ctx context.Context, d domain.ThreadDraft) (domain.Thread, error) {
	body := map[string]string{"content": d.Content}
	if d.ImageURL != "" {
		body["image_url"] = d.ImageURL
	}
	var t domain.Thread
	err := c.do(ctx, http.MethodPost, "/v1/threads", body, &t)
	return t, err
}

func (c *Client) DeleteThread(ctx context.Context, id, _ string) error {
	return c.do(ctx, http.MethodDelete, "/v1/threads/"+id, nil, nil)
}

func (c *Client) ToggleThreadLike(ctx context.Context, threadID, _ string) (domain.Thread, error) {
	var t domain.Thread
	err := c.do(ctx, http.MethodPost, "/v1/threads/"+threadID+"/like", nil, &t)
	return t, err
}

func (c *Client) AppendComment(ctx context.Context, threadID string, d domain.CommentDraft) (domain.Thread, error) {
	var t domain.Thread
	err := c.do(ctx, http.MethodPost, "/v1/threads/"+threadID+"/comments", map[string]string{"content": d.Content}, &t)
	return t, err
}

func (c *Client) ToggleCommentLike(ctx context.Context, threadID, commentID, _ string) (domain.Thread, error) {
	var t domain.Thread
	err := c.do(ctx, http.MethodPost, "/v1/threads/"+threadID+"/comments/"+commentID+"/like", nil, &t)
	return t, err
}

func (c *Client) AppendReply(ctx context.Context, threadID, commentID string, d domain.ReplyDraft) (domain.Thread, error) {
	var t domain.Thread
	err := c.do(ctx, http.MethodPost, "/v1/threads/"+threadID+"/comments/"+commentID+"/replies", map[string]string{"content": d.Content}, &t)
	return t, err
}

func (c *Client) ToggleReplyLike(ctx context.Context, threadID, commentID, replyID, _ string) (domain.Thread, error) {
	var t domain.Thread
	err := c.do(ctx, http.MethodPost, "/v1/threads/"+threadID+"/comments/"+commentID+"/replies/"+replyID+"/like", nil, &t)
	return t, err
}

// do performs one request and decodes the response into out when out is
// non-nil. Error envelopes map onto the store sentinels so callers see the
// same errors regardless of backend.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("threadclient: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(io.LimitReader(resp.Body, 2<<20))
	if err != nil {
		return err
	}

	if resp.StatusCode >= 400 {
		return decodeError(resp.StatusCode, b)
	}
	if out == nil || len(b) == 0 {
		return nil
	}
	if err := json.Unmarshal(b, out); err != nil {
		return fmt.Errorf("threadclient: decode error: %w", err)
	}
	return nil
}

func decodeError(status int, body []byte) error {
	var envelope api.ErrorResponse
	if err := json.Unmarshal(body, &envelope); err == nil {
		switch envelope.Error.Code {
		case "NOT_FOUND":
			return store.ErrNotFound
		case "FORBIDDEN":
			return store.ErrForbidden
		case "CONFLICT":
			return store.ErrConflict
		}
		if envelope.Error.Code != "" {
			return fmt.Errorf("threadclient: %s: %s", envelope.Error.Code, envelope.Error.Message)
		}
	}
	switch status {
	case http.StatusNotFound:
		return store.ErrNotFound
	case http.StatusForbidden:
		return store.ErrForbidden
	case http.StatusConflict:
		return store.ErrConflict
	}
	return fmt.Errorf("threadclient: status %d", status)
}

var _ store.ThreadStore = (*Client)(nil)
