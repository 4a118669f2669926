package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/cbwinslow/crawl4ai/internal/domain"
)

type mockCommentPoster struct {
	mu    sync.Mutex
	err   error
	calls []postedComment
}

type postedComment struct {
	Repo   string
	Number int
	Body   string
}

func (m *mockCommentPoster) PostComment(_ context.Context, repo string, number int, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.calls = append(m.calls, postedComment{Repo: repo, Number: number, Body: body})
	return nil
}

type mockCrawlRequester struct {
	mu       sync.Mutex
	err      error
	requests []CrawlRequest
}

func (m *mockCrawlRequester) RequestCrawl(_ context.Context, req CrawlRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.requests = append(m.requests, req)
	return nil
}

func TestPingHandler_ValidPayload(t *testing.T) {
	h := NewPingHandler()

	err := h.Process(context.Background(), domain.Delivery{
		DeliveryID: "d1",
		Event:      domain.EventPing,
		Payload:    []byte(`{"zen":"Keep it logically awesome."}`),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestPingHandler_MalformedPayload(t *testing.T) {
	h := NewPingHandler()

	err := h.Process(context.Background(), domain.Delivery{
		Payload: []byte(`{`),
	})
	if err == nil {
		t.Fatal("expected decode error, got nil")
	}
}

func TestPushHandler_RequestsCrawl(t *testing.T) {
	crawler := &mockCrawlRequester{}
	h := NewPushHandler(crawler)

	payload := `{"ref":"refs/heads/main","after":"abcdef0123456789","repository":{"full_name":"octocat/hello-world"}}`
	err := h.Process(context.Background(), domain.Delivery{
		Event:   domain.EventPush,
		Payload: []byte(payload),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(crawler.requests) != 1 {
		t.Fatalf("expected 1 crawl request, got %d", len(crawler.requests))
	}
	req := crawler.requests[0]
	if req.Repository != "octocat/hello-world" {
		t.Errorf("expected repository octocat/hello-world, got %q", req.Repository)
	}
	if req.Ref != "refs/heads/main" {
		t.Errorf("expected ref refs/heads/main, got %q", req.Ref)
	}
	if req.Reason != "push abcdef0" {
		t.Errorf("expected short-sha reason, got %q", req.Reason)
	}
}

func TestPushHandler_CrawlFailurePropagates(t *testing.T) {
	crawler := &mockCrawlRequester{err: errors.New("engine busy")}
	h := NewPushHandler(crawler)

	err := h.Process(context.Background(), domain.Delivery{
		Payload: []byte(`{"ref":"refs/heads/main","repository":{"full_name":"a/b"}}`),
	})
	if err == nil {
		t.Fatal("expected crawl failure to propagate for retry, got nil")
	}
}

func TestIssuesHandler_OpenedPostsComment(t *testing.T) {
	comments := &mockCommentPoster{}
	h := NewIssuesHandler(comments)

	payload := `{"action":"opened","issue":{"number":42},"repository":{"full_name":"octocat/hello-world"}}`
	err := h.Process(context.Background(), domain.Delivery{Payload: []byte(payload)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(comments.calls) != 1 {
		t.Fatalf("expected 1 comment, got %d", len(comments.calls))
	}
	if comments.calls[0].Repo != "octocat/hello-world" || comments.calls[0].Number != 42 {
		t.Errorf("comment posted to wrong target: %+v", comments.calls[0])
	}
}

func TestIssuesHandler_OtherActionsIgnored(t *testing.T) {
	comments := &mockCommentPoster{err: errors.New("should not be called")}
	h := NewIssuesHandler(comments)

	payload := `{"action":"closed","issue":{"number":42},"repository":{"full_name":"a/b"}}`
	if err := h.Process(context.Background(), domain.Delivery{Payload: []byte(payload)}); err != nil {
		t.Fatalf("expected closed action to be ignored, got %v", err)
	}
}

func TestIssueCommentHandler_CreatedOnly(t *testing.T) {
	h := NewIssueCommentHandler(&mockCommentPoster{})

	created := `{"action":"created","issue":{"number":1},"comment":{"body":"hi"},"repository":{"full_name":"a/b"}}`
	if err := h.Process(context.Background(), domain.Delivery{Payload: []byte(created)}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	edited := `{"action":"edited","issue":{"number":1},"comment":{"body":"hi"},"repository":{"full_name":"a/b"}}`
	if err := h.Process(context.Background(), domain.Delivery{Payload: []byte(edited)}); err != nil {
		t.Fatalf("expected edited action to be ignored, got %v", err)
	}
}

func TestPullRequestHandler_OpenedCrawlsAndComments(t *testing.T) {
	comments := &mockCommentPoster{}
	crawler := &mockCrawlRequester{}
	h := NewPullRequestHandler(comments, crawler)

	payload := `{"action":"opened","pull_request":{"number":7,"head":{"ref":"feature/x"}},"repository":{"full_name":"octocat/hello-world"}}`
	if err := h.Process(context.Background(), domain.Delivery{Payload: []byte(payload)}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(crawler.requests) != 1 {
		t.Fatalf("expected 1 crawl request, got %d", len(crawler.requests))
	}
	if crawler.requests[0].Ref != "feature/x" {
		t.Errorf("expected head ref crawled, got %q", crawler.requests[0].Ref)
	}
	if len(comments.calls) != 1 {
		t.Fatalf("expected 1 comment, got %d", len(comments.calls))
	}
}

func TestPullRequestHandler_SynchronizeCrawlsWithoutComment(t *testing.T) {
	comments := &mockCommentPoster{err: errors.New("should not be called")}
	crawler := &mockCrawlRequester{}
	h := NewPullRequestHandler(comments, crawler)

	payload := `{"action":"synchronize","pull_request":{"number":7,"head":{"ref":"feature/x"}},"repository":{"full_name":"a/b"}}`
	if err := h.Process(context.Background(), domain.Delivery{Payload: []byte(payload)}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(crawler.requests) != 1 {
		t.Fatalf("expected crawl on synchronize, got %d requests", len(crawler.requests))
	}
}

func TestPullRequestHandler_ClosedIgnored(t *testing.T) {
	crawler := &mockCrawlRequester{err: errors.New("should not be called")}
	h := NewPullRequestHandler(&mockCommentPoster{}, crawler)

	payload := `{"action":"closed","pull_request":{"number":7,"head":{"ref":"x"}},"repository":{"full_name":"a/b"}}`
	if err := h.Process(context.Background(), domain.Delivery{Payload: []byte(payload)}); err != nil {
		t.Fatalf("expected closed action to be ignored, got %v", err)
	}
}
