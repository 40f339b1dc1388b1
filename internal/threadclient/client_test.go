package threadclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/example/threads-platform/internal/domain"
	"github.com/example/threads-platform/internal/store"
)

func TestListThreads(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/threads" || r.Method != http.MethodGet {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"threads": []domain.Thread{{ID: "t1", Content: "hello", Author: "alice"}},
		})
	}))
	defer srv.Close()

	c := New(srv.URL)
	threads, err := c.ListThreads(context.Background())
	if err != nil {
		t.Fatalf("ListThreads: %v", err)
	}
	if len(threads) != 1 || threads[0].ID != "t1" {
		t.Fatalf("unexpected threads %+v", threads)
	}
}

func TestCreateThreadSendsToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer tok-123" {
			t.Errorf("authorization = %q", got)
		}
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["content"] != "hello" {
			t.Errorf("content = %q", body["content"])
		}
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(domain.Thread{ID: "t1", Content: "hello", Author: "alice"})
	}))
	defer srv.Close()

	c := New(srv.URL, WithToken("tok-123"))
	created, err := c.CreateThread(context.Background(), domain.ThreadDraft{Content: "hello", Author: "alice"})
	if err != nil {
		t.Fatalf("CreateThread: %v", err)
	}
	if created.ID != "t1" {
		t.Fatalf("unexpected thread %+v", created)
	}
}

func TestErrorEnvelopeMapping(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"not found", http.StatusNotFound, `{"error":{"code":"NOT_FOUND","message":"thread not found"}}`, store.ErrNotFound},
		{"forbidden", http.StatusForbidden, `{"error":{"code":"FORBIDDEN","message":"not the author"}}`, store.ErrForbidden},
		{"conflict", http.StatusConflict, `{"error":{"code":"CONFLICT","message":"concurrent update"}}`, store.ErrConflict},
		{"bare status", http.StatusNotFound, `not json`, store.ErrNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			c := New(srv.URL)
			_, err := c.GetThread(context.Background(), "t1")
			if !errors.Is(err, tc.want) {
				t.Fatalf("err = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestTransportErrorWrapped(t *testing.T) {
	c := New("http://127.0.0.1:1")
	if _, err := c.ListThreads(context.Background()); err == nil {
		t.Fatal("expected transport error")
	}
}
