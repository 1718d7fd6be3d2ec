package main

import (
	"context"
	"log"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"sitemap-service/backend/config"
	"sitemap-service/backend/internal/cache"
	"sitemap-service/backend/internal/manager"
	"sitemap-service/backend/internal/mysqldb"
	"sitemap-service/backend/internal/repo"
	"sitemap-service/backend/internal/sitemap"
	"sitemap-service/backend/internal/storage"
)

// defaultIndexID is the route id of the index built from
// sitemap.index_pattern.
const defaultIndexID = "index"

// engine is the startup-time registry of collectors, decorators and routes.
type engine struct {
	decorators []sitemap.Decorator
	router     *sitemap.Router
}

// buildEngine registers one decorator per configured sitemap in ascending
// id order. Index sitemaps list every urlset sitemap.
func buildEngine(cfg *config.Config, q repo.PageQuery, now func() time.Time) *engine {
	reg := sitemap.NewRegistry(now)
	e := &engine{router: sitemap.NewRouter()}

	var collectors []*sitemap.Collector
	var indexes []*sitemap.IndexCollector
	for _, sm := range cfg.OrderedSitemaps() {
		switch sm.Decorator {
		case config.DecoratorIndex:
			ic := sitemap.NewIndexCollector(sm.ID, sm.Pattern)
			indexes = append(indexes, ic)
			e.add(sitemap.NewIndexDecorator(sm.ID, ic), reg)
		default:
			c := sitemap.NewCollector(sm.ID, sm.Pattern, sm.Accepts, cfg.Limit(sm), q, reg)
			collectors = append(collectors, c)
			e.add(sitemap.NewURLSetDecorator(sm.ID, c), reg)
		}
	}
	if _, taken := cfg.Sitemaps[defaultIndexID]; !taken && cfg.Sitemap.IndexPattern != "" {
		ic := sitemap.NewIndexCollector(defaultIndexID, cfg.Sitemap.IndexPattern)
		indexes = append(indexes, ic)
		e.add(sitemap.NewIndexDecorator(defaultIndexID, ic), reg)
	}
	for _, ic := range indexes {
		for _, c := range collectors {
			ic.Register(c)
		}
	}
	return e
}

func (e *engine) add(d sitemap.Decorator, reg *sitemap.Registry) {
	e.decorators = append(e.decorators, d)
	e.router.Add(sitemap.NewRoute(d.ID(), d.Pattern(), d.Accepts(), reg))
}

// deps owns the process-wide clients. close releases them.
type deps struct {
	cfg     *config.Config
	engine  *engine
	manager *manager.Manager
	rdb     redis.UniversalClient
}

func (d *deps) close() {
	if d.rdb != nil {
		_ = d.rdb.Close()
	}
}

// wire opens MySQL and Redis and assembles the manager. An unreachable
// Redis is not fatal: the manager pings it on every request.
func wire(cfg *config.Config) (*deps, error) {
	db, err := mysqldb.Open(cfg.Mysql.DSN)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "open mysql")
	}
	pages := mysqldb.NewMySQLPageRepo(db)

	var rdb redis.UniversalClient
	var sc cache.SitemapCache
	if len(cfg.Redis.Addrs) > 0 {
		rdb = redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:    cfg.Redis.Addrs,
			Password: cfg.Redis.Password,
		})
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Printf("ping redis failed, serving uncached until it is back: %v", err)
		}
		cancel()
		sc = cache.NewRedisSitemapCache(rdb, cfg.Sitemap.CacheTTL)
	}

	e := buildEngine(cfg, pages, time.Now)
	m := manager.New(sc, storage.NewOsFileStore(cfg.Storage.Dir), manager.Options{
		Debug:      cfg.Running.Debug,
		ChangeFreq: cfg.Sitemap.ChangeFreq,
	}, e.decorators...)
	return &deps{cfg: cfg, engine: e, manager: m, rdb: rdb}, nil
}
