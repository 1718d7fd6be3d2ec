package sitemap

import (
	"context"
	"log"
	"strconv"
	"strings"
	"time"

	"sitemap-service/backend/internal/entity"
)

// Document is one rendered shard.
type Document struct {
	URL          string
	LastModified time.Time
	Body         []byte
}

// RenderParams carries the per-request rendering context.
type RenderParams struct {
	// BaseURL prefixes page paths and shard names, e.g. https://example.org.
	BaseURL string
	// ChangeFreq is used for pages without their own change frequency.
	ChangeFreq string
	// Now is the document lastmod; zero means time.Now().
	Now time.Time
}

func (p RenderParams) now() time.Time {
	if p.Now.IsZero() {
		return time.Now()
	}
	return p.Now
}

// Decorator renders the mapping of its collector into documents.
type Decorator interface {
	// ID is the sitemap route id the decorator is registered under.
	ID() string
	Pattern() string
	Accepts() []string
	Render(ctx context.Context, site uint64, preset Preset, params RenderParams) (*Mapping[Document], error)
}

// URLSetDecorator renders one <urlset> per leaf of a Collector.
type URLSetDecorator struct {
	id        string
	collector *Collector
}

func NewURLSetDecorator(id string, c *Collector) *URLSetDecorator {
	return &URLSetDecorator{id: id, collector: c}
}

func (d *URLSetDecorator) ID() string        { return d.id }
func (d *URLSetDecorator) Pattern() string   { return d.collector.Pattern() }
func (d *URLSetDecorator) Accepts() []string { return d.collector.Accepts() }
func (d *URLSetDecorator) Collector() *Collector {
	return d.collector
}

func (d *URLSetDecorator) Render(ctx context.Context, site uint64, preset Preset, params RenderParams) (*Mapping[Document], error) {
	collected, err := d.collector.Collect(ctx, site, preset)
	if err != nil {
		return nil, err
	}
	now := params.now()
	out := NewMapping[Document]()
	err = collected.Each(func(url string, cur *Cursor) error {
		set := URLSet{Xmlns: sitemapNS}
		err := cur.Each(ctx, func(p entity.Page) error {
			set.URLs = append(set.URLs, pageURL(p, params))
			return nil
		})
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Printf("sitemap: op=render decorator=%s url=%s err=%v", d.id, url, err)
			set.URLs = nil
		}
		body, err := encodeXML(set)
		if err != nil {
			log.Printf("sitemap: op=render decorator=%s url=%s err=%v", d.id, url, err)
			body = nil
		}
		out.Set(url, Document{URL: url, LastModified: now, Body: body})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func pageURL(p entity.Page, params RenderParams) URL {
	u := URL{
		Loc:        joinURL(params.BaseURL, p.Path),
		LastMod:    lastmod(p.UpdatedAt),
		ChangeFreq: p.ChangeFreq,
	}
	if u.ChangeFreq == "" {
		u.ChangeFreq = params.ChangeFreq
	}
	if p.Priority > 0 {
		u.Priority = strconv.FormatFloat(p.Priority, 'f', 1, 64)
	}
	return u
}

// IndexDecorator renders one <sitemapindex> per bucket of an
// IndexCollector. Child locations point at the gzip archives.
type IndexDecorator struct {
	id        string
	collector *IndexCollector
}

func NewIndexDecorator(id string, c *IndexCollector) *IndexDecorator {
	return &IndexDecorator{id: id, collector: c}
}

func (d *IndexDecorator) ID() string        { return d.id }
func (d *IndexDecorator) Pattern() string   { return d.collector.Pattern() }
func (d *IndexDecorator) Accepts() []string { return d.collector.Accepts() }

func (d *IndexDecorator) Render(ctx context.Context, site uint64, preset Preset, params RenderParams) (*Mapping[Document], error) {
	collected, err := d.collector.Collect(ctx, site, preset)
	if err != nil {
		return nil, err
	}
	now := params.now()
	out := NewMapping[Document]()
	_ = collected.Each(func(url string, locs []string) error {
		idx := SitemapIndex{Xmlns: sitemapNS}
		for _, loc := range locs {
			idx.Sitemaps = append(idx.Sitemaps, SitemapRef{
				Loc:     joinURL(params.BaseURL, ArchiveName(loc)),
				LastMod: lastmod(now),
			})
		}
		body, err := encodeXML(idx)
		if err != nil {
			log.Printf("sitemap: op=render decorator=%s url=%s err=%v", d.id, url, err)
			body = nil
		}
		out.Set(url, Document{URL: url, LastModified: now, Body: body})
		return nil
	})
	return out, nil
}

// ArchiveName rewrites a .xml location to its .xml.gz archive.
func ArchiveName(loc string) string {
	if strings.HasSuffix(loc, ".xml") {
		return loc + ".gz"
	}
	return loc
}

func joinURL(base, path string) string {
	if base == "" {
		return path
	}
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(path, "/")
}
