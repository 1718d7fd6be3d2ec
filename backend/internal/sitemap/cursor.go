package sitemap

import (
	"context"

	"sitemap-service/backend/internal/entity"
	"sitemap-service/backend/internal/repo"
)

const fetchBatch = 500

// Cursor is the lazily paginated page subset of one leaf. Nothing is
// fetched until Total, Len or Each is called.
type Cursor struct {
	q      repo.PageQuery
	filter repo.PageFilter
	total  *int64
}

func NewCursor(q repo.PageQuery, f repo.PageFilter) *Cursor {
	return &Cursor{q: q, filter: f}
}

func (c *Cursor) Filter() repo.PageFilter { return c.filter }

// Total is the number of pages matching the filter regardless of the
// Offset/Limit window. It is queried once.
func (c *Cursor) Total(ctx context.Context) (int64, error) {
	if c.total != nil {
		return *c.total, nil
	}
	n, err := c.q.Count(ctx, c.filter)
	if err != nil {
		return 0, err
	}
	c.total = &n
	return n, nil
}

// Len is the number of pages inside the window.
func (c *Cursor) Len(ctx context.Context) (int64, error) {
	total, err := c.Total(ctx)
	if err != nil {
		return 0, err
	}
	n := total - int64(c.filter.Offset)
	if n < 0 {
		n = 0
	}
	if c.filter.Limit > 0 && n > int64(c.filter.Limit) {
		n = int64(c.filter.Limit)
	}
	return n, nil
}

// Each streams the window's pages in fetchBatch sized queries.
func (c *Cursor) Each(ctx context.Context, fn func(entity.Page) error) error {
	for offset := 0; ; {
		pages, err := c.q.Fetch(ctx, c.filter, offset, fetchBatch)
		if err != nil {
			return err
		}
		for _, p := range pages {
			if err := fn(p); err != nil {
				return err
			}
		}
		if len(pages) < fetchBatch {
			return nil
		}
		offset += len(pages)
	}
}
