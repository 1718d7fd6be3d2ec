package manager

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	pkgerrors "github.com/pkg/errors"
	"golang.org/x/sync/singleflight"

	"sitemap-service/backend/internal/cache"
	"sitemap-service/backend/internal/metrics"
	"sitemap-service/backend/internal/sitemap"
	"sitemap-service/backend/internal/storage"
)

var (
	ErrNotFound     = errors.New("sitemap: document not found")
	ErrUnknownRoute = errors.New("sitemap: unknown route")
)

// Invalidation triggers, used as metric labels.
const (
	SourceHTTP  = "http"
	SourceKafka = "kafka"
	SourceCLI   = "cli"
)

// 固定在过去的 Expires，客户端每次都要重新验证
const expiredDate = "Thu, 01 Jan 1970 00:00:00 GMT"

type Options struct {
	// Debug disables the origin cache.
	Debug bool
	// ChangeFreq is the default <changefreq> of pages.
	ChangeFreq string
	// MaxRenders bounds concurrent renders; 0 means DefaultMaxRenders.
	MaxRenders int
	// Now stamps rendered documents; nil means time.Now.
	Now func() time.Time
}

// Request is one document request, already routed.
type Request struct {
	SiteID  uint64
	BaseURL string
	// RouteID selects the decorator; Attributes are the route attributes.
	RouteID    string
	Attributes map[string]string
	// URL is the requested document name, e.g. sitemap_article_2.xml.
	URL             string
	IfModifiedSince time.Time
}

type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// Manager drives collection and rendering behind the origin cache and
// shapes the HTTP response. Decorators are registered once at startup.
type Manager struct {
	cache      cache.SitemapCache
	files      *storage.FileStore
	decorators map[string]sitemap.Decorator
	order      []string
	opts       Options
	sf         singleflight.Group
	sem        *Semaphore
}

// New wires a Manager. c and files may be nil: the manager then always
// regenerates, or never dumps, respectively.
func New(c cache.SitemapCache, files *storage.FileStore, opts Options, decorators ...sitemap.Decorator) *Manager {
	m := &Manager{
		cache:      c,
		files:      files,
		decorators: make(map[string]sitemap.Decorator, len(decorators)),
		opts:       opts,
		sem:        NewSemaphore(opts.MaxRenders),
	}
	for _, d := range decorators {
		if _, dup := m.decorators[d.ID()]; dup {
			log.Printf("manager: decorator %s registered twice, keeping first", d.ID())
			continue
		}
		m.decorators[d.ID()] = d
		m.order = append(m.order, d.ID())
	}
	return m
}

// Decorators returns the registered decorators in registration order.
func (m *Manager) Decorators() []sitemap.Decorator {
	out := make([]sitemap.Decorator, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.decorators[id])
	}
	return out
}

func (m *Manager) now() time.Time {
	if m.opts.Now != nil {
		return m.opts.Now()
	}
	return time.Now()
}

// Serve answers a document request: REQUESTED -> CACHE_LOOKUP -> HIT ->
// RESPOND, or MISS -> COLLECT_AND_RENDER -> CACHE_STORE -> RESPOND.
// Failures degrade to 404; the sitemap path never answers 500.
func (m *Manager) Serve(ctx context.Context, req Request) *Response {
	cached := m.cacheAvailable(ctx)
	entry := m.lookup(ctx, req, cached)
	if entry == nil {
		var err error
		entry, err = m.regenerate(ctx, req, cached)
		if err != nil {
			return m.failure(req, "xml", err)
		}
	}
	resp := m.respond(req, entry.LastModified, []byte(entry.URLSet), "text/xml")
	metrics.CounterDocumentsServed.WithLabelValues("xml", strconv.Itoa(resp.Status)).Inc()
	return resp
}

func (m *Manager) cacheAvailable(ctx context.Context) bool {
	if m.opts.Debug || m.cache == nil {
		return false
	}
	if err := m.cache.Ping(ctx); err != nil {
		log.Printf("manager: op=cache_ping err=%v, serving uncached", err)
		return false
	}
	return true
}

func (m *Manager) lookup(ctx context.Context, req Request, cached bool) *cache.Entry {
	if !cached {
		metrics.CounterCacheLookups.WithLabelValues(metrics.CacheUnavailable).Inc()
		return nil
	}
	e, err := m.cache.Get(ctx, req.SiteID, req.URL)
	if err != nil {
		log.Printf("manager: op=cache_get site=%d url=%s err=%v", req.SiteID, req.URL, err)
		metrics.CounterCacheLookups.WithLabelValues(metrics.CacheError).Inc()
		return nil
	}
	if e == nil {
		metrics.CounterCacheLookups.WithLabelValues(metrics.CacheMiss).Inc()
		return nil
	}
	metrics.CounterCacheLookups.WithLabelValues(metrics.CacheHit).Inc()
	return e
}

// regenerate renders the route and returns the entry of the requested URL.
// Concurrent misses on the same document share one render. The shared render
// does not inherit the cancellation of whichever caller started it: a caller
// that goes away stops waiting, the others still get the result.
func (m *Manager) regenerate(ctx context.Context, req Request, store bool) (*cache.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	key := strconv.FormatUint(req.SiteID, 10) + "|" + req.RouteID + "|" + req.URL
	shared := context.WithoutCancel(ctx)
	ch := m.sf.DoChan(key, func() (any, error) {
		if err := m.sem.Acquire(shared); err != nil {
			return nil, err
		}
		defer m.sem.Release()

		d, ok := m.decorators[req.RouteID]
		if !ok {
			return nil, pkgerrors.Wrapf(ErrUnknownRoute, "route=%s", req.RouteID)
		}
		entries, err := m.render(shared, d, req.SiteID, req.BaseURL, sitemap.PresetFrom(req.Attributes, d.Accepts()))
		if err != nil {
			return nil, err
		}
		if store {
			if err := m.cache.Store(shared, req.SiteID, entries); err != nil {
				log.Printf("manager: op=cache_store site=%d route=%s err=%v", req.SiteID, req.RouteID, err)
			}
		}
		e, ok := entries[req.URL]
		if !ok {
			return nil, pkgerrors.Wrapf(ErrNotFound, "url=%s", req.URL)
		}
		return &e, nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return nil, r.Err
		}
		return r.Val.(*cache.Entry), nil
	}
}

// render collects and renders one decorator and dumps every document.
func (m *Manager) render(ctx context.Context, d sitemap.Decorator, site uint64, baseURL string, preset sitemap.Preset) (map[string]cache.Entry, error) {
	start := time.Now()
	docs, err := d.Render(ctx, site, preset, sitemap.RenderParams{
		BaseURL:    baseURL,
		ChangeFreq: m.opts.ChangeFreq,
		Now:        m.now(),
	})
	metrics.HistogramRender.WithLabelValues(d.ID()).Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "render route=%s site=%d", d.ID(), site)
	}
	entries := make(map[string]cache.Entry, docs.Len())
	_ = docs.Each(func(url string, doc sitemap.Document) error {
		entries[url] = cache.Entry{LastModified: doc.LastModified, URLSet: string(doc.Body)}
		if m.files != nil {
			if err := m.files.Write(site, url, doc.Body, doc.LastModified); err != nil {
				log.Printf("manager: op=dump site=%d url=%s err=%v", site, url, err)
			}
		}
		return nil
	})
	return entries, nil
}

func (m *Manager) respond(req Request, mod time.Time, body []byte, contentType string) *Response {
	h := http.Header{}
	h.Set("Content-Type", contentType)
	if !mod.IsZero() {
		h.Set("Last-Modified", mod.UTC().Format(http.TimeFormat))
	}
	h.Set("Cache-Control", "no-cache, no-store, must-revalidate")
	h.Set("Pragma", "no-cache")
	h.Set("Expires", expiredDate)

	// Last-Modified 只有秒精度
	if !req.IfModifiedSince.IsZero() && !mod.IsZero() && !mod.Truncate(time.Second).After(req.IfModifiedSince) {
		return &Response{Status: http.StatusNotModified, Header: h}
	}
	return &Response{Status: http.StatusOK, Header: h, Body: body}
}

func (m *Manager) failure(req Request, variant string, err error) *Response {
	status := http.StatusNotFound
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		status = http.StatusServiceUnavailable
		log.Printf("manager: op=serve site=%d url=%s err=%v", req.SiteID, req.URL, err)
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrUnknownRoute):
	default:
		log.Printf("manager: op=serve site=%d url=%s err=%v", req.SiteID, req.URL, err)
	}
	metrics.CounterDocumentsServed.WithLabelValues(variant, strconv.Itoa(status)).Inc()
	return &Response{Status: status, Header: http.Header{}}
}

// Invalidate drops the cached and dumped documents of site.
func (m *Manager) Invalidate(ctx context.Context, site uint64, source string) error {
	metrics.CounterInvalidations.WithLabelValues(source).Inc()
	var errs []error
	if m.cache != nil {
		if err := m.cache.Invalidate(ctx, site); err != nil {
			errs = append(errs, err)
		}
	}
	if m.files != nil {
		if err := m.files.Purge(site); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Dump renders every registered route of site without presets, writes the
// documents to the dump directory and, when available, the cache. It
// returns the number of documents rendered.
func (m *Manager) Dump(ctx context.Context, site uint64, baseURL string) (int, error) {
	cached := m.cacheAvailable(ctx)
	n := 0
	for _, id := range m.order {
		entries, err := m.render(ctx, m.decorators[id], site, baseURL, nil)
		if err != nil {
			return n, err
		}
		if cached {
			if err := m.cache.Store(ctx, site, entries); err != nil {
				log.Printf("manager: op=cache_store site=%d route=%s err=%v", site, id, err)
			}
		}
		n += len(entries)
	}
	return n, nil
}
