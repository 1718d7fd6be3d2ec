package repo

import (
	"context"

	"sitemap-service/backend/internal/entity"
)

// PageFilter narrows the page set. It is a plain value: copying it clones it.
// Zero fields are not applied, except Online which is always applied.
type PageFilter struct {
	SiteID    uint64
	Online    bool
	LayoutID  uint64
	SectionID uint64
	Year      int
	// Offset/Limit window the matching pages; Limit 0 means unbounded.
	Offset int
	Limit  int
}

// PageQuery 定义了 sitemap 引擎读取页面的契约
type PageQuery interface {
	// Count returns the number of pages matching f, ignoring its
	// Offset/Limit window.
	Count(ctx context.Context, f PageFilter) (int64, error)
	// Fetch returns pages of the filter window, offset/limit relative to it,
	// ordered by modification date then id.
	Fetch(ctx context.Context, f PageFilter, offset, limit int) ([]entity.Page, error)
	// Selection returns the distinct values of a discriminator ("layout" or
	// "section") among the pages matching f.
	Selection(ctx context.Context, name string, f PageFilter) ([]entity.Choice, error)
	// Oldest returns the least recently modified matching page, nil if none.
	Oldest(ctx context.Context, f PageFilter) (*entity.Page, error)
}
