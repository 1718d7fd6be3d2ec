package cache

import (
	"context"
	"errors"
	"time"

	json "github.com/goccy/go-json"
	pkgerrors "github.com/pkg/errors"
	redis "github.com/redis/go-redis/v9"
)

// Entry is one rendered document as stored in the origin cache.
type Entry struct {
	LastModified time.Time `json:"last_modified"`
	URLSet       string    `json:"urlset"`
}

// SitemapCache stores the rendered documents of a site. A miss is not an
// error: Get returns nil, nil.
type SitemapCache interface {
	Ping(ctx context.Context) error
	Get(ctx context.Context, site uint64, url string) (*Entry, error)
	Store(ctx context.Context, site uint64, entries map[string]Entry) error
	Invalidate(ctx context.Context, site uint64) error
}

// 具体实现：基于 redis 的 SitemapCache，单机和集群都可以
type redisSitemapCache struct {
	rdb redis.UniversalClient
	ttl time.Duration
}

func NewRedisSitemapCache(rdb redis.UniversalClient, ttl time.Duration) SitemapCache {
	return &redisSitemapCache{rdb: rdb, ttl: ttl}
}

func (c *redisSitemapCache) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

func (c *redisSitemapCache) Get(ctx context.Context, site uint64, url string) (*Entry, error) {
	raw, err := c.rdb.Get(ctx, documentKey(site, url)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, pkgerrors.Wrapf(err, "cache get site=%d url=%s", site, url)
	}
	var e Entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, pkgerrors.Wrapf(err, "cache decode site=%d url=%s", site, url)
	}
	return &e, nil
}

// Store writes every entry under its own key with a fresh TTL, so storing one
// document never extends the life of the others. The url set only tracks
// what Invalidate has to delete.
func (c *redisSitemapCache) Store(ctx context.Context, site uint64, entries map[string]Entry) error {
	if len(entries) == 0 {
		return nil
	}
	docs := make(map[string][]byte, len(entries))
	urls := make([]any, 0, len(entries))
	for url, e := range entries {
		raw, err := json.Marshal(e)
		if err != nil {
			return pkgerrors.Wrapf(err, "cache encode site=%d url=%s", site, url)
		}
		docs[url] = raw
		urls = append(urls, url)
	}
	set := sitemapKey(site)
	ttl := ttlWithJitter(c.ttl)
	_, err := c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for url, raw := range docs {
			pipe.Set(ctx, documentKey(site, url), raw, ttl)
		}
		pipe.SAdd(ctx, set, urls...)
		if ttl > 0 {
			// 集合比文档多活一个抖动上限，过期的成员删除时无副作用
			pipe.Expire(ctx, set, ttl+MaxJitter)
		}
		return nil
	})
	return pkgerrors.Wrapf(err, "cache store site=%d", site)
}

func (c *redisSitemapCache) Invalidate(ctx context.Context, site uint64) error {
	set := sitemapKey(site)
	urls, err := c.rdb.SMembers(ctx, set).Result()
	if err != nil {
		return pkgerrors.Wrapf(err, "cache invalidate site=%d", site)
	}
	keys := make([]string, 0, len(urls)+1)
	keys = append(keys, set)
	for _, url := range urls {
		keys = append(keys, documentKey(site, url))
	}
	return pkgerrors.Wrapf(c.rdb.Del(ctx, keys...).Err(), "cache invalidate site=%d", site)
}
