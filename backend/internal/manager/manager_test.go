package manager

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"sitemap-service/backend/internal/cache/cachetest"
	"sitemap-service/backend/internal/entity"
	"sitemap-service/backend/internal/repo/repotest"
	"sitemap-service/backend/internal/sitemap"
	"sitemap-service/backend/internal/storage"
)

var renderAt = time.Date(2026, time.October, 15, 8, 30, 0, 0, time.UTC)

func fixedNow() time.Time { return renderAt }

type fixture struct {
	pages *repotest.Pages
	cache *cachetest.Memory
	fs    afero.Fs
	files *storage.FileStore
	m     *Manager
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	pages := repotest.New(map[uint64]string{1: "Home", 2: "Article"})
	for i := 1; i <= 130; i++ {
		layout := uint64(2)
		if i <= 2 {
			layout = 1
		}
		pages.Add(entity.Page{
			ID:        uint64(i),
			SiteID:    1,
			LayoutID:  layout,
			Path:      fmt.Sprintf("/p/%d", i),
			Online:    true,
			UpdatedAt: time.Date(2025, time.May, 1, 0, 0, i, 0, time.UTC),
		})
	}
	reg := sitemap.NewRegistry(fixedNow)
	layouts := sitemap.NewCollector("layouts", "sitemap_{layout}_{index}.xml", []string{sitemap.LayoutName, sitemap.IndexName}, 100, pages, reg)
	index := sitemap.NewIndexCollector("index", "sitemap_index.xml")
	index.Register(layouts)

	f := &fixture{pages: pages, cache: cachetest.New(), fs: afero.NewMemMapFs()}
	f.files = storage.NewFileStore(f.fs, "/dump")
	opts.Now = fixedNow
	f.m = New(f.cache, f.files, opts,
		sitemap.NewURLSetDecorator("layouts", layouts),
		sitemap.NewIndexDecorator("index", index),
	)
	return f
}

func articleReq(page string) Request {
	return Request{
		SiteID:     1,
		BaseURL:    "https://example.org",
		RouteID:    "layouts",
		Attributes: map[string]string{sitemap.LayoutName: "article", sitemap.IndexName: page},
		URL:        "sitemap_article_" + page + ".xml",
	}
}

func TestServe_Headers(t *testing.T) {
	f := newFixture(t, Options{ChangeFreq: "weekly"})

	resp := f.m.Serve(context.Background(), articleReq("1"))
	require.Equal(t, http.StatusOK, resp.Status)
	require.Equal(t, "text/xml", resp.Header.Get("Content-Type"))
	require.Equal(t, "Thu, 15 Oct 2026 08:30:00 GMT", resp.Header.Get("Last-Modified"))
	require.Contains(t, resp.Header.Get("Cache-Control"), "no-cache")
	require.Equal(t, "no-cache", resp.Header.Get("Pragma"))
	require.Equal(t, expiredDate, resp.Header.Get("Expires"))
	require.Equal(t, 100, bytes.Count(resp.Body, []byte("<url>")))
	require.Contains(t, string(resp.Body), "<loc>https://example.org/p/3</loc>")
	require.Contains(t, string(resp.Body), "<changefreq>weekly</changefreq>")
}

func TestServe_CacheHitSkipsCollector(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	first := f.m.Serve(ctx, articleReq("2"))
	require.Equal(t, http.StatusOK, first.Status)
	calls := f.pages.Calls()
	require.Equal(t, 1, f.cache.Stores())

	second := f.m.Serve(ctx, articleReq("2"))
	require.Equal(t, http.StatusOK, second.Status)
	require.Equal(t, first.Body, second.Body)
	require.Equal(t, calls, f.pages.Calls(), "collector ran again on a cache hit")
	require.Equal(t, 28, bytes.Count(second.Body, []byte("<url>")))
}

func TestServe_CacheUnreachable(t *testing.T) {
	f := newFixture(t, Options{})
	f.cache.Down = errors.New("dial tcp 127.0.0.1:6379: connection refused")
	ctx := context.Background()

	first := f.m.Serve(ctx, articleReq("1"))
	require.Equal(t, http.StatusOK, first.Status)
	calls := f.pages.Calls()

	second := f.m.Serve(ctx, articleReq("1"))
	require.Equal(t, http.StatusOK, second.Status)
	require.Equal(t, first.Body, second.Body)
	require.Greater(t, f.pages.Calls(), calls)
}

func TestServe_DebugBypassesCache(t *testing.T) {
	f := newFixture(t, Options{Debug: true})

	resp := f.m.Serve(context.Background(), articleReq("1"))
	require.Equal(t, http.StatusOK, resp.Status)
	require.Zero(t, f.cache.Stores())
	require.Zero(t, f.cache.Len(1))
}

func TestServe_NotFound(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	cases := []Request{
		articleReq("3"),
		{SiteID: 1, RouteID: "layouts", Attributes: map[string]string{sitemap.LayoutName: "nope", sitemap.IndexName: "1"}, URL: "sitemap_nope_1.xml"},
		{SiteID: 1, RouteID: "missing", URL: "sitemap_home_1.xml"},
		// 用 id 命中的预设生成的是 slug 形式的 URL
		{SiteID: 1, RouteID: "layouts", Attributes: map[string]string{sitemap.LayoutName: "2", sitemap.IndexName: "1"}, URL: "sitemap_2_1.xml"},
	}
	for _, req := range cases {
		resp := f.m.Serve(ctx, req)
		require.Equal(t, http.StatusNotFound, resp.Status, req.URL)
		require.Empty(t, resp.Body)
	}
}

func TestServe_NotModified(t *testing.T) {
	f := newFixture(t, Options{})
	req := articleReq("1")
	req.IfModifiedSince = renderAt

	resp := f.m.Serve(context.Background(), req)
	require.Equal(t, http.StatusNotModified, resp.Status)
	require.Empty(t, resp.Body)

	req.IfModifiedSince = renderAt.Add(-time.Hour)
	resp = f.m.Serve(context.Background(), req)
	require.Equal(t, http.StatusOK, resp.Status)
}

func TestServe_Canceled(t *testing.T) {
	f := newFixture(t, Options{Debug: true})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	resp := f.m.Serve(ctx, articleReq("1"))
	require.Equal(t, http.StatusServiceUnavailable, resp.Status)
}

func TestServe_Index(t *testing.T) {
	f := newFixture(t, Options{})

	resp := f.m.Serve(context.Background(), Request{SiteID: 1, BaseURL: "https://example.org", RouteID: "index", URL: "sitemap_index.xml"})
	require.Equal(t, http.StatusOK, resp.Status)
	body := string(resp.Body)
	require.Contains(t, body, "<loc>https://example.org/sitemap_home_1.xml.gz</loc>")
	require.Contains(t, body, "<loc>https://example.org/sitemap_article_2.xml.gz</loc>")
	require.NotContains(t, body, "sitemap_article_3")
}

func gunzip(t *testing.T, b []byte) []byte {
	t.Helper()
	zr, err := gzip.NewReader(bytes.NewReader(b))
	require.NoError(t, err)
	out, err := io.ReadAll(zr)
	require.NoError(t, err)
	return out
}

func TestArchive_MatchesDocument(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	doc := f.m.Serve(ctx, articleReq("1"))
	require.Equal(t, http.StatusOK, doc.Status)
	stores := f.cache.Stores()

	gz := f.m.Archive(ctx, articleReq("1"))
	require.Equal(t, http.StatusOK, gz.Status)
	require.Equal(t, "application/gzip", gz.Header.Get("Content-Type"))
	require.Equal(t, doc.Body, gunzip(t, gz.Body))
	require.Equal(t, stores, f.cache.Stores())
}

func TestArchive_RendersWhenNotDumped(t *testing.T) {
	f := newFixture(t, Options{})

	gz := f.m.Archive(context.Background(), articleReq("2"))
	require.Equal(t, http.StatusOK, gz.Status)
	require.Equal(t, 28, bytes.Count(gunzip(t, gz.Body), []byte("<url>")))
	require.Zero(t, f.cache.Stores(), "archive path populated the origin cache")

	ok, err := afero.Exists(f.fs, "/dump/1/sitemap_article_2.xml")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestArchive_NotFound(t *testing.T) {
	f := newFixture(t, Options{})

	resp := f.m.Archive(context.Background(), articleReq("9"))
	require.Equal(t, http.StatusNotFound, resp.Status)
}

func TestInvalidate(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	require.Equal(t, http.StatusOK, f.m.Serve(ctx, articleReq("1")).Status)
	require.NotZero(t, f.cache.Len(1))

	require.NoError(t, f.m.Invalidate(ctx, 1, SourceCLI))
	require.Zero(t, f.cache.Len(1))
	ok, err := afero.Exists(f.fs, "/dump/1/sitemap_article_1.xml")
	require.NoError(t, err)
	require.False(t, ok)

	calls := f.pages.Calls()
	require.Equal(t, http.StatusOK, f.m.Serve(ctx, articleReq("1")).Status)
	require.Greater(t, f.pages.Calls(), calls)
}

func TestDump(t *testing.T) {
	f := newFixture(t, Options{})

	n, err := f.m.Dump(context.Background(), 1, "https://example.org")
	require.NoError(t, err)
	// home_1, article_1, article_2 and the index
	require.Equal(t, 4, n)
	require.Equal(t, 4, f.cache.Len(1))
	for _, name := range []string{"sitemap_home_1.xml", "sitemap_article_1.xml", "sitemap_article_2.xml", "sitemap_index.xml"} {
		ok, err := afero.Exists(f.fs, "/dump/1/"+name)
		require.NoError(t, err)
		require.True(t, ok, name)
	}
}

func TestServe_ConcurrentMisses(t *testing.T) {
	f := newFixture(t, Options{MaxRenders: 2})
	ctx := context.Background()

	var wg sync.WaitGroup
	statuses := make([]int, 16)
	for i := range statuses {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			page := "1"
			if i%2 == 1 {
				page = "2"
			}
			statuses[i] = f.m.Serve(ctx, articleReq(page)).Status
		}(i)
	}
	wg.Wait()
	for i, s := range statuses {
		require.Equal(t, http.StatusOK, s, "request %d", i)
	}
}

// gateDecorator holds every render until release is closed.
type gateDecorator struct {
	sitemap.Decorator
	once    sync.Once
	started chan struct{}
	release chan struct{}
	renders atomic.Int32
}

func (g *gateDecorator) Render(ctx context.Context, site uint64, preset sitemap.Preset, params sitemap.RenderParams) (*sitemap.Mapping[sitemap.Document], error) {
	g.renders.Add(1)
	g.once.Do(func() { close(g.started) })
	<-g.release
	return g.Decorator.Render(ctx, site, preset, params)
}

func TestServe_SharedRenderOutlivesFirstCaller(t *testing.T) {
	f := newFixture(t, Options{})
	gate := &gateDecorator{
		Decorator: f.m.decorators["layouts"],
		started:   make(chan struct{}),
		release:   make(chan struct{}),
	}
	m := New(f.cache, f.files, Options{Debug: true, Now: fixedNow}, gate)

	first, cancel := context.WithCancel(context.Background())
	firstDone := make(chan *Response, 1)
	go func() { firstDone <- m.Serve(first, articleReq("1")) }()
	<-gate.started

	secondDone := make(chan *Response, 1)
	go func() { secondDone <- m.Serve(context.Background(), articleReq("1")) }()
	// 等第二个请求加入同一次渲染
	time.Sleep(100 * time.Millisecond)

	cancel()
	require.Equal(t, http.StatusServiceUnavailable, (<-firstDone).Status)

	close(gate.release)
	resp := <-secondDone
	require.Equal(t, http.StatusOK, resp.Status)
	require.NotEmpty(t, resp.Body)
	require.EqualValues(t, 1, gate.renders.Load())
}

func TestSemaphore(t *testing.T) {
	s := NewSemaphore(1)
	require.Error(t, s.Release())
	require.NoError(t, s.Acquire(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := s.Acquire(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.NoError(t, s.Release())
}
