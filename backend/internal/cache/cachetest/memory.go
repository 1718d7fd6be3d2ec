// Package cachetest provides an in-memory cache.SitemapCache for tests.
package cachetest

import (
	"context"
	"sync"

	"sitemap-service/backend/internal/cache"
)

// Memory is an in-memory cache.SitemapCache. Setting Down makes Ping fail
// the way an unreachable Redis would.
type Memory struct {
	mu     sync.Mutex
	sites  map[uint64]map[string]cache.Entry
	stores int
	Down   error
}

var _ cache.SitemapCache = (*Memory)(nil)

func New() *Memory {
	return &Memory{sites: map[uint64]map[string]cache.Entry{}}
}

func (m *Memory) Ping(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Down
}

func (m *Memory) Get(ctx context.Context, site uint64, url string) (*cache.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Down != nil {
		return nil, m.Down
	}
	e, ok := m.sites[site][url]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

func (m *Memory) Store(ctx context.Context, site uint64, entries map[string]cache.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Down != nil {
		return m.Down
	}
	m.stores++
	if m.sites[site] == nil {
		m.sites[site] = map[string]cache.Entry{}
	}
	for url, e := range entries {
		m.sites[site][url] = e
	}
	return nil
}

func (m *Memory) Invalidate(ctx context.Context, site uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Down != nil {
		return m.Down
	}
	delete(m.sites, site)
	return nil
}

// Stores returns how many Store calls succeeded.
func (m *Memory) Stores() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stores
}

// Len returns the number of entries cached for site.
func (m *Memory) Len(site uint64) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sites[site])
}
