package dispatch

import (
	"context"
	"fmt"
	"log"

	json "github.com/goccy/go-json"

	"github.com/cbwinslow/crawl4ai/internal/domain"
)

// CommentPoster posts a comment on an issue or pull request through the
// hosting platform's API.
type CommentPoster interface {
	PostComment(ctx context.Context, repo string, number int, body string) error
}

// CrawlRequester asks the external crawling engine to (re)crawl a
// repository. The engine runs outside this process; implementations only
// hand the request over.
type CrawlRequester interface {
	RequestCrawl(ctx context.Context, req CrawlRequest) error
}

// CrawlRequest describes one crawl to enqueue.
type CrawlRequest struct {
	Repository string
	Ref        string
	Reason     string
}

// PingHandler acknowledges the sender's ping event.
type PingHandler struct{}

func NewPingHandler() *PingHandler {
	return &PingHandler{}
}

func (h *PingHandler) Process(_ context.Context, d domain.Delivery) error {
	var payload struct {
		Zen string `json:"zen"`
	}
	if err := json.Unmarshal(d.Payload, &payload); err != nil {
		return fmt.Errorf("ping: decode payload: %w", err)
	}
	log.Printf("dispatch: ping delivery=%s zen=%q", d.DeliveryID, payload.Zen)
	return nil
}

// PushHandler turns a content change into a crawl request for the
// affected repository.
type PushHandler struct {
	crawler CrawlRequester
}

func NewPushHandler(crawler CrawlRequester) *PushHandler {
	return &PushHandler{crawler: crawler}
}

func (h *PushHandler) Process(ctx context.Context, d domain.Delivery) error {
	var payload struct {
		Ref        string `json:"ref"`
		After      string `json:"after"`
		Repository struct {
			FullName string `json:"full_name"`
		} `json:"repository"`
	}
	if err := json.Unmarshal(d.Payload, &payload); err != nil {
		return fmt.Errorf("push: decode payload: %w", err)
	}

	req := CrawlRequest{
		Repository: payload.Repository.FullName,
		Ref:        payload.Ref,
		Reason:     "push " + shortSHA(payload.After),
	}
	if err := h.crawler.RequestCrawl(ctx, req); err != nil {
		return fmt.Errorf("push: request crawl for %s: %w", req.Repository, err)
	}
	return nil
}

func shortSHA(sha string) string {
	if len(sha) > 7 {
		return sha[:7]
	}
	return sha
}

// IssuesHandler acknowledges newly opened issues with a comment.
// Other issue actions are accepted and ignored.
type IssuesHandler struct {
	comments CommentPoster
}

func NewIssuesHandler(comments CommentPoster) *IssuesHandler {
	return &IssuesHandler{comments: comments}
}

func (h *IssuesHandler) Process(ctx context.Context, d domain.Delivery) error {
	var payload struct {
		Action string `json:"action"`
		Issue  struct {
			Number int `json:"number"`
		} `json:"issue"`
		Repository struct {
			FullName string `json:"full_name"`
		} `json:"repository"`
	}
	if err := json.Unmarshal(d.Payload, &payload); err != nil {
		return fmt.Errorf("issues: decode payload: %w", err)
	}

	if payload.Action != "opened" {
		log.Printf("dispatch: issues delivery=%s action=%s ignored", d.DeliveryID, payload.Action)
		return nil
	}

	body := "Thanks for the report. The crawl dashboard has picked this up."
	if err := h.comments.PostComment(ctx, payload.Repository.FullName, payload.Issue.Number, body); err != nil {
		return fmt.Errorf("issues: post comment on %s#%d: %w", payload.Repository.FullName, payload.Issue.Number, err)
	}
	return nil
}

// IssueCommentHandler watches discussion on issues. It only reacts to
// freshly created comments; edits and deletions are ignored.
type IssueCommentHandler struct {
	comments CommentPoster
}

func NewIssueCommentHandler(comments CommentPoster) *IssueCommentHandler {
	return &IssueCommentHandler{comments: comments}
}

func (h *IssueCommentHandler) Process(ctx context.Context, d domain.Delivery) error {
	var payload struct {
		Action string `json:"action"`
		Issue  struct {
			Number int `json:"number"`
		} `json:"issue"`
		Comment struct {
			Body string `json:"body"`
		} `json:"comment"`
		Repository struct {
			FullName string `json:"full_name"`
		} `json:"repository"`
	}
	if err := json.Unmarshal(d.Payload, &payload); err != nil {
		return fmt.Errorf("issue_comment: decode payload: %w", err)
	}

	if payload.Action != "created" {
		return nil
	}

	log.Printf("dispatch: issue_comment delivery=%s repo=%s issue=%d",
		d.DeliveryID, payload.Repository.FullName, payload.Issue.Number)
	return nil
}

// PullRequestHandler acknowledges newly opened pull requests and requests
// a crawl of the source branch so the dashboard can preview the change.
type PullRequestHandler struct {
	comments CommentPoster
	crawler  CrawlRequester
}

func NewPullRequestHandler(comments CommentPoster, crawler CrawlRequester) *PullRequestHandler {
	return &PullRequestHandler{comments: comments, crawler: crawler}
}

func (h *PullRequestHandler) Process(ctx context.Context, d domain.Delivery) error {
	var payload struct {
		Action      string `json:"action"`
		PullRequest struct {
			Number int `json:"number"`
			Head   struct {
				Ref string `json:"ref"`
			} `json:"head"`
		} `json:"pull_request"`
		Repository struct {
			FullName string `json:"full_name"`
		} `json:"repository"`
	}
	if err := json.Unmarshal(d.Payload, &payload); err != nil {
		return fmt.Errorf("pull_request: decode payload: %w", err)
	}

	if payload.Action != "opened" && payload.Action != "synchronize" {
		return nil
	}

	req := CrawlRequest{
		Repository: payload.Repository.FullName,
		Ref:        payload.PullRequest.Head.Ref,
		Reason:     fmt.Sprintf("pull request #%d %s", payload.PullRequest.Number, payload.Action),
	}
	if err := h.crawler.RequestCrawl(ctx, req); err != nil {
		return fmt.Errorf("pull_request: request crawl for %s: %w", req.Repository, err)
	}

	if payload.Action == "opened" {
		body := "A preview crawl of this branch has been queued."
		if err := h.comments.PostComment(ctx, payload.Repository.FullName, payload.PullRequest.Number, body); err != nil {
			return fmt.Errorf("pull_request: post comment on %s#%d: %w", payload.Repository.FullName, payload.PullRequest.Number, err)
		}
	}
	return nil
}
