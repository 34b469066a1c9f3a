package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/goliatone/go-community-cache/decorator"
	"github.com/goliatone/go-community-cache/internal/like"
	"github.com/goliatone/go-community-cache/internal/metrics"
	"github.com/goliatone/go-community-cache/internal/persistence"
	"github.com/goliatone/go-community-cache/internal/post"
)

// fakePosts records calls and returns canned results.
type fakePosts struct {
	mu     sync.Mutex
	calls  []string
	actors []string
	err    error
}

func (f *fakePosts) record(ctx context.Context, call string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
	actor, _ := decorator.ActorFrom(ctx)
	f.actors = append(f.actors, actor)
	return f.err
}

func (f *fakePosts) GetPost(ctx context.Context, id int64) (persistence.Post, error) {
	if err := f.record(ctx, fmt.Sprintf("get %d", id)); err != nil {
		return persistence.Post{}, err
	}
	return persistence.Post{ID: id, Title: "hello"}, nil
}

func (f *fakePosts) TopPosts(ctx context.Context, groupID int64) ([]persistence.Post, error) {
	if err := f.record(ctx, fmt.Sprintf("top %d", groupID)); err != nil {
		return nil, err
	}
	return []persistence.Post{{ID: 2}, {ID: 1}}, nil
}

func (f *fakePosts) UpdatePost(ctx context.Context, id int64, in post.UpdateInput) (persistence.Post, error) {
	if err := f.record(ctx, fmt.Sprintf("update %d %s", id, in.Title)); err != nil {
		return persistence.Post{}, err
	}
	return persistence.Post{ID: id, Title: in.Title}, nil
}

func (f *fakePosts) DeletePost(ctx context.Context, id int64) error {
	return f.record(ctx, fmt.Sprintf("delete %d", id))
}

func (f *fakePosts) ToggleLike(ctx context.Context, kind like.Kind, subjectID, memberID int64) (like.Result, error) {
	if err := f.record(ctx, fmt.Sprintf("like %s %d by %d", kind, subjectID, memberID)); err != nil {
		return like.Result{}, err
	}
	return like.Result{Liked: true, LikeID: 7, LikeCount: 3}, nil
}

func (f *fakePosts) IsLiked(ctx context.Context, kind like.Kind, subjectID, memberID int64) (bool, error) {
	return true, f.record(ctx, fmt.Sprintf("liked? %s %d by %d", kind, subjectID, memberID))
}

func newTestServer(t *testing.T, posts PostService, checks map[string]Checker) (*httptest.Server, *metrics.Collector) {
	t.Helper()
	collector := metrics.NewCollector("test")
	srv := httptest.NewServer(NewRouter(posts, collector, checks, nil).Setup())
	t.Cleanup(srv.Close)
	return srv, collector
}

func do(t *testing.T, method, url, member, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	if err != nil {
		t.Fatalf("new request failed: %v", err)
	}
	if member != "" {
		req.Header.Set(MemberHeader, member)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s failed: %v", method, url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestRoutes(t *testing.T) {
	tests := []struct {
		name     string
		method   string
		path     string
		member   string
		body     string
		status   int
		wantCall string
	}{
		{name: "get post", method: http.MethodGet, path: "/api/posts/1", status: http.StatusOK, wantCall: "get 1"},
		{name: "update post", method: http.MethodPut, path: "/api/posts/1", body: `{"title":"new"}`, status: http.StatusOK, wantCall: "update 1 new"},
		{name: "delete post", method: http.MethodDelete, path: "/api/posts/1", status: http.StatusNoContent, wantCall: "delete 1"},
		{name: "top posts", method: http.MethodGet, path: "/api/groups/3/posts/top", status: http.StatusOK, wantCall: "top 3"},
		{name: "toggle like", method: http.MethodPost, path: "/api/likes/comment/5", member: "2", status: http.StatusOK, wantCall: "like comment 5 by 2"},
		{name: "is liked", method: http.MethodGet, path: "/api/likes/post/5", member: "2", status: http.StatusOK, wantCall: "liked? post 5 by 2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := &fakePosts{}
			srv, _ := newTestServer(t, fake, nil)

			resp := do(t, tt.method, srv.URL+tt.path, tt.member, tt.body)
			if resp.StatusCode != tt.status {
				t.Fatalf("expected status %d, got %d", tt.status, resp.StatusCode)
			}
			if len(fake.calls) != 1 || fake.calls[0] != tt.wantCall {
				t.Errorf("expected call %q, got %v", tt.wantCall, fake.calls)
			}
		})
	}
}

func TestMemberHeaderBecomesActor(t *testing.T) {
	fake := &fakePosts{}
	srv, _ := newTestServer(t, fake, nil)

	do(t, http.MethodGet, srv.URL+"/api/posts/1", "42", "")
	do(t, http.MethodGet, srv.URL+"/api/posts/1", "", "")

	if len(fake.actors) != 2 || fake.actors[0] != "42" || fake.actors[1] != "" {
		t.Errorf("unexpected actors %v", fake.actors)
	}

	if resp := do(t, http.MethodGet, srv.URL+"/api/posts/1", "not-a-number", ""); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 for invalid member header, got %d", resp.StatusCode)
	}
}

func TestBadRequests(t *testing.T) {
	fake := &fakePosts{}
	srv, _ := newTestServer(t, fake, nil)

	tests := []struct {
		name   string
		method string
		path   string
		member string
		body   string
		status int
	}{
		{name: "bad post id", method: http.MethodGet, path: "/api/posts/abc", status: http.StatusBadRequest},
		{name: "bad body", method: http.MethodPut, path: "/api/posts/1", body: "{", status: http.StatusBadRequest},
		{name: "missing title", method: http.MethodPut, path: "/api/posts/1", body: `{}`, status: http.StatusBadRequest},
		{name: "like without member", method: http.MethodPost, path: "/api/likes/post/1", status: http.StatusUnauthorized},
		{name: "unknown kind", method: http.MethodPost, path: "/api/likes/photo/1", member: "1", status: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := do(t, tt.method, srv.URL+tt.path, tt.member, tt.body)
			if resp.StatusCode != tt.status {
				t.Errorf("expected status %d, got %d", tt.status, resp.StatusCode)
			}
		})
	}
	if len(fake.calls) != 0 {
		t.Errorf("expected no service calls, got %v", fake.calls)
	}
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{name: "not found", err: fmt.Errorf("post 1: %w", persistence.ErrNotFound), status: http.StatusNotFound},
		{name: "lock timeout", err: &decorator.LockTimeoutError{Key: "lock:like_post:1"}, status: http.StatusConflict},
		{name: "duplicate", err: like.ErrDuplicateAssociation, status: http.StatusConflict},
		{name: "other", err: errors.New("boom"), status: http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := newTestServer(t, &fakePosts{err: tt.err}, nil)
			resp := do(t, http.MethodPost, srv.URL+"/api/likes/post/1", "1", "")
			if resp.StatusCode != tt.status {
				t.Errorf("expected status %d, got %d", tt.status, resp.StatusCode)
			}
		})
	}
}

func TestHealthz(t *testing.T) {
	checks := map[string]Checker{
		"cache": func(context.Context) error { return nil },
		"db":    func(context.Context) error { return errors.New("connection refused") },
	}
	srv, _ := newTestServer(t, &fakePosts{}, checks)

	resp := do(t, http.MethodGet, srv.URL+"/healthz", "", "")
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", resp.StatusCode)
	}
	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if body["cache"] != "ok" || body["db"] != "connection refused" {
		t.Errorf("unexpected health body %v", body)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, &fakePosts{}, nil)
	do(t, http.MethodGet, srv.URL+"/api/posts/1", "", "")

	resp := do(t, http.MethodGet, srv.URL+"/metrics", "", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if !strings.Contains(string(body), `test_http_requests_total{method="GET",route="/api/posts/{postID}`) {
		t.Errorf("expected request metric, got:\n%s", body)
	}
}
