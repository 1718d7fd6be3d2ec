package sitemap

import (
	"context"
	"log"
	"strconv"

	"sitemap-service/backend/internal/repo"
)

// Collector partitions the online pages of a site into leaves, one per
// fully resolved URL of its pattern.
type Collector struct {
	name     string
	pattern  string
	accepts  []string
	limit    int
	query    repo.PageQuery
	registry *Registry
}

// NewCollector binds pattern to the accepted discriminators. limit is the
// sitemap protocol's num_loc_per_page used by {index}.
func NewCollector(name, pattern string, accepts []string, limit int, q repo.PageQuery, reg *Registry) *Collector {
	return &Collector{
		name:     name,
		pattern:  pattern,
		accepts:  accepts,
		limit:    limit,
		query:    q,
		registry: reg,
	}
}

func (c *Collector) Name() string      { return c.name }
func (c *Collector) Pattern() string   { return c.pattern }
func (c *Collector) Accepts() []string { return c.accepts }

// Discriminators returns the accepted discriminators that appear in the
// pattern, in pattern order. Unknown placeholders stay literal.
func (c *Collector) Discriminators() []string {
	accepted := map[string]bool{}
	for _, a := range c.accepts {
		accepted[a] = true
	}
	var ds []string
	for _, name := range placeholders(c.pattern) {
		if accepted[name] && c.registry.Known(name) {
			ds = append(ds, name)
		}
	}
	return ds
}

// Collect returns the url -> page subset mapping of site. It is rebuilt on
// every call. Query failures are logged and drop the failing branch.
func (c *Collector) Collect(ctx context.Context, site uint64, preset Preset) (*Mapping[*Cursor], error) {
	ds := c.Discriminators()
	out := NewMapping[*Cursor]()
	base := repo.PageFilter{SiteID: site, Online: true}
	c.partition(ctx, out, base, c.pattern, ds, PresetFrom(preset, ds))
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Keys returns the resolved URLs of Collect.
func (c *Collector) Keys(ctx context.Context, site uint64, preset Preset) ([]string, error) {
	m, err := c.Collect(ctx, site, preset)
	if err != nil {
		return nil, err
	}
	return m.Keys(), nil
}

// partition returns the number of pages matched under f, ignoring any
// Offset/Limit window; {index} uses it to decide whether to continue.
func (c *Collector) partition(ctx context.Context, out *Mapping[*Cursor], f repo.PageFilter, pattern string, ds []string, preset Preset) int64 {
	if ctx.Err() != nil {
		return 0
	}
	if len(ds) == 0 {
		cur := NewCursor(c.query, f)
		total, err := cur.Total(ctx)
		if err != nil {
			log.Printf("sitemap: op=collect collector=%s url=%s err=%v", c.name, pattern, err)
			return 0
		}
		if !out.Set(pattern, cur) {
			log.Printf("sitemap: op=collect collector=%s url=%s duplicate url, keeping first", c.name, pattern)
		}
		return total
	}

	name, rest := ds[0], ds[1:]
	if name == IndexName {
		return c.paginate(ctx, out, f, pattern, rest, preset)
	}
	d, _ := c.registry.Lookup(name)
	values, err := d.Enumerate(ctx, c.query, f, preset.lookup(name))
	if err != nil {
		log.Printf("sitemap: op=collect collector=%s discriminator=%s err=%v", c.name, name, err)
		return 0
	}
	var total int64
	for _, v := range values {
		total += c.partition(ctx, out, d.Narrow(f, v), substitute(pattern, name, v.Key), rest, preset)
	}
	return total
}

// paginate emits {index} pages of c.limit pages each while the matched
// total exceeds what the emitted pages can hold. Page 1 is always emitted.
func (c *Collector) paginate(ctx context.Context, out *Mapping[*Cursor], f repo.PageFilter, pattern string, rest []string, preset Preset) int64 {
	if c.limit <= 0 {
		log.Printf("sitemap: op=collect collector=%s num_loc_per_page=%d, using one unbounded page", c.name, c.limit)
		return c.partition(ctx, out, f, substitute(pattern, IndexName, "1"), rest, preset)
	}

	if p := preset.lookup(IndexName); p != nil {
		page, err := strconv.Atoi(*p)
		if err != nil || page < 1 {
			return 0
		}
		pf := pageWindow(f, page, c.limit)
		if page > 1 {
			// 超出范围的页不生成
			total, err := c.query.Count(ctx, f)
			if err != nil {
				log.Printf("sitemap: op=collect collector=%s index=%d err=%v", c.name, page, err)
				return 0
			}
			if total <= int64(pf.Offset) {
				return 0
			}
		}
		return c.partition(ctx, out, pf, substitute(pattern, IndexName, strconv.Itoa(page)), rest, preset)
	}

	var total int64
	for page := 1; ; page++ {
		pf := pageWindow(f, page, c.limit)
		total = c.partition(ctx, out, pf, substitute(pattern, IndexName, strconv.Itoa(page)), rest, preset)
		if total <= int64(c.limit)*int64(page) {
			return total
		}
	}
}

func pageWindow(f repo.PageFilter, page, limit int) repo.PageFilter {
	f.Offset = (page - 1) * limit
	f.Limit = limit
	return f
}
