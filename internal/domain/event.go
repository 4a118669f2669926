package domain

// EventType identifies a webhook event type as reported by the sender's
// event header. The set of handled types is closed; anything else is
// accepted by the pipeline and recorded as unhandled.
type EventType string

const (
	EventPing         EventType = "ping"
	EventPush         EventType = "push"
	EventIssues       EventType = "issues"
	EventIssueComment EventType = "issue_comment"
	EventPullRequest  EventType = "pull_request"
)

// Known reports whether t belongs to the closed set of handled event types.
func (t EventType) Known() bool {
	switch t {
	case EventPing, EventPush, EventIssues, EventIssueComment, EventPullRequest:
		return true
	default:
		return false
	}
}
