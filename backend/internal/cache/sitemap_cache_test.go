package cache

import (
	"context"
	"strings"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	redis "github.com/redis/go-redis/v9"
)

func TestSitemapKey(t *testing.T) {
	a, b := sitemapKey(1), sitemapKey(1)
	if a != b {
		t.Fatalf("sitemapKey(1) = %q then %q, want stable", a, b)
	}
	if sitemapKey(2) == a {
		t.Fatalf("sitemapKey(2) = sitemapKey(1) = %q", a)
	}
	if !strings.HasPrefix(a, "sitemap:{") || !strings.HasSuffix(a, "}") {
		t.Fatalf("sitemapKey(1) = %q, want sitemap:{<hash>}", a)
	}
	doc := documentKey(1, "sitemap_index.xml")
	if doc != a+":sitemap_index.xml" {
		t.Fatalf("documentKey(1, sitemap_index.xml) = %q, want %q", doc, a+":sitemap_index.xml")
	}
}

func TestTTLWithJitter(t *testing.T) {
	if got := ttlWithJitter(0); got != 0 {
		t.Fatalf("ttlWithJitter(0) = %v, want 0", got)
	}
	if got := ttlWithJitter(-time.Second); got != 0 {
		t.Fatalf("ttlWithJitter(-1s) = %v, want 0", got)
	}
	if got := ttlWithJitter(time.Nanosecond); got != time.Nanosecond {
		t.Fatalf("ttlWithJitter(1ns) = %v, want 1ns", got)
	}
	for i := 0; i < 100; i++ {
		got := ttlWithJitter(time.Hour)
		if got < time.Hour || got >= time.Hour+6*time.Minute {
			t.Fatalf("ttlWithJitter(1h) = %v, want [1h, 1h6m)", got)
		}
		got = ttlWithJitter(DefaultTTL * 30)
		if got >= DefaultTTL*30+MaxJitter {
			t.Fatalf("ttlWithJitter(30d) = %v, jitter over %v", got, MaxJitter)
		}
	}
}

func TestEntryJSON(t *testing.T) {
	e := Entry{LastModified: time.Date(2026, 10, 15, 8, 0, 0, 0, time.UTC), URLSet: "urlset"}
	raw, err := json.Marshal(e)
	if err != nil {
		t.Fatalf("Marshal error: %v", err)
	}
	want := `{"last_modified":"2026-10-15T08:00:00Z","urlset":"urlset"}`
	if string(raw) != want {
		t.Fatalf("Marshal() = %s, want %s", raw, want)
	}
}

func TestRedisSitemapCache(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:6379"})
	// 若 Redis 未启动则跳过
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		t.Skipf("skip: redis not available: %v", err)
	}
	const site = 987654321
	ctx := context.Background()
	c := NewRedisSitemapCache(rdb, time.Minute)
	defer c.Invalidate(ctx, site)

	got, err := c.Get(ctx, site, "sitemap_home_1.xml")
	if err != nil || got != nil {
		t.Fatalf("Get() on empty cache = %v, %v, want nil, nil", got, err)
	}

	mod := time.Date(2026, 10, 15, 8, 0, 0, 0, time.UTC)
	err = c.Store(ctx, site, map[string]Entry{
		"sitemap_home_1.xml":    {LastModified: mod, URLSet: "<urlset>home</urlset>"},
		"sitemap_article_1.xml": {LastModified: mod, URLSet: "<urlset>article</urlset>"},
	})
	if err != nil {
		t.Fatalf("Store error: %v", err)
	}

	got, err = c.Get(ctx, site, "sitemap_home_1.xml")
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if got == nil || got.URLSet != "<urlset>home</urlset>" || !got.LastModified.Equal(mod) {
		t.Fatalf("Get() = %+v, want home entry at %v", got, mod)
	}

	ttl, err := rdb.TTL(ctx, documentKey(site, "sitemap_home_1.xml")).Result()
	if err != nil {
		t.Fatalf("TTL error: %v", err)
	}
	if ttl <= 0 || ttl > time.Minute+6*time.Second {
		t.Fatalf("TTL = %v, want (0, 1m6s]", ttl)
	}

	if err := c.Invalidate(ctx, site); err != nil {
		t.Fatalf("Invalidate error: %v", err)
	}
	got, err = c.Get(ctx, site, "sitemap_article_1.xml")
	if err != nil || got != nil {
		t.Fatalf("Get() after Invalidate = %v, %v, want nil, nil", got, err)
	}
}

func TestRedisSitemapCache_EntriesExpireIndependently(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:6379"})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		t.Skipf("skip: redis not available: %v", err)
	}
	const site = 987654322
	ctx := context.Background()
	// 抖动上限 ttl/10
	c := NewRedisSitemapCache(rdb, time.Second)
	defer c.Invalidate(ctx, site)

	mod := time.Date(2026, 10, 15, 8, 0, 0, 0, time.UTC)
	if err := c.Store(ctx, site, map[string]Entry{"sitemap_index.xml": {LastModified: mod, URLSet: "old index"}}); err != nil {
		t.Fatalf("Store(index) error: %v", err)
	}
	// 同站点其他文档不断写入，不能延长 index 的寿命
	for i := 0; i < 4; i++ {
		time.Sleep(400 * time.Millisecond)
		if err := c.Store(ctx, site, map[string]Entry{"sitemap_article_1.xml": {LastModified: mod, URLSet: "article"}}); err != nil {
			t.Fatalf("Store(article) error: %v", err)
		}
	}

	got, err := c.Get(ctx, site, "sitemap_index.xml")
	if err != nil || got != nil {
		t.Fatalf("Get(index) after 1.6s with ttl 1s = %+v, %v, want nil, nil", got, err)
	}
	got, err = c.Get(ctx, site, "sitemap_article_1.xml")
	if err != nil || got == nil || got.URLSet != "article" {
		t.Fatalf("Get(article) = %+v, %v, want fresh article", got, err)
	}

	if err := c.Invalidate(ctx, site); err != nil {
		t.Fatalf("Invalidate error: %v", err)
	}
	n, err := rdb.Exists(ctx, sitemapKey(site), documentKey(site, "sitemap_article_1.xml")).Result()
	if err != nil || n != 0 {
		t.Fatalf("Exists() after Invalidate = %d, %v, want 0", n, err)
	}
}
