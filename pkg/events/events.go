package events

import (
	"context"
	"time"
)

// Type names a lifecycle transition
type Type string

const (
	TypeCollected    Type = "collected"     // search results persisted as crawl results
	TypeDepthCrawled Type = "depth_crawled" // depth result written
	TypeStored       Type = "stored"        // record marked stored
	TypeDeleted      Type = "deleted"       // record and depth result removed
	TypeRuleRepaired Type = "rule_repaired" // selectors of a site rule rewritten
)

// Event is one lifecycle notification. ID is the crawl result or rule it concerns.
type Event struct {
	Type       Type              `json:"type"`
	ID         string            `json:"id"`
	Keyword    string            `json:"keyword,omitempty"`
	Source     string            `json:"source,omitempty"`
	URL        string            `json:"url,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
	OccurredAt time.Time         `json:"occurred_at"`
}

// Publisher delivers lifecycle events. Publish errors never roll back the operation that raised the event.
type Publisher interface {
	Publish(ctx context.Context, events ...Event) error
	Close() error
}

// NoopPublisher drops every event. Used when events are disabled.
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, ...Event) error { return nil }

func (NoopPublisher) Close() error { return nil }
