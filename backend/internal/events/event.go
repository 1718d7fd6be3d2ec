package events

import (
	"context"
	"time"
)

// EventPagePublished is emitted by the CMS whenever a page goes online,
// offline or is edited while online.
const EventPagePublished = "PAGE_PUBLISHED"

type PageEvent struct {
	EventType   string    `json:"eventType"`
	SiteID      uint64    `json:"siteId"`
	PageID      uint64    `json:"pageId,omitempty"`
	PublishedAt time.Time `json:"publishedAt"`
}

// Invalidator drops the rendered sitemaps of a site.
type Invalidator interface {
	Invalidate(ctx context.Context, site uint64, source string) error
}
