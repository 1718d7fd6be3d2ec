// Package repotest provides an in-memory repo.PageQuery for tests.
package repotest

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"sitemap-service/backend/internal/entity"
	"sitemap-service/backend/internal/repo"
)

// Pages is an in-memory repo.PageQuery. Layouts maps layout ids to labels;
// section labels are the titles of the section pages.
type Pages struct {
	mu      sync.Mutex
	pages   []entity.Page
	layouts map[uint64]string
	calls   int
	// Err, when set, is returned by every query.
	Err error
}

var _ repo.PageQuery = (*Pages)(nil)

func New(layouts map[uint64]string, pages ...entity.Page) *Pages {
	if layouts == nil {
		layouts = map[uint64]string{}
	}
	return &Pages{layouts: layouts, pages: pages}
}

// Add appends pages.
func (s *Pages) Add(pages ...entity.Page) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pages = append(s.pages, pages...)
}

// Calls returns how many queries were served.
func (s *Pages) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func (s *Pages) begin() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.Err
}

func (s *Pages) match(f repo.PageFilter) []entity.Page {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []entity.Page
	for _, p := range s.pages {
		if p.SiteID != f.SiteID || p.Online != f.Online {
			continue
		}
		if f.LayoutID != 0 && p.LayoutID != f.LayoutID {
			continue
		}
		if f.SectionID != 0 && p.Section() != f.SectionID {
			continue
		}
		if f.Year != 0 && p.UpdatedAt.UTC().Year() != f.Year {
			continue
		}
		out = append(out, p)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.Before(out[j].UpdatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (s *Pages) Count(ctx context.Context, f repo.PageFilter) (int64, error) {
	if err := s.begin(); err != nil {
		return 0, err
	}
	return int64(len(s.match(f))), nil
}

func (s *Pages) Fetch(ctx context.Context, f repo.PageFilter, offset, limit int) ([]entity.Page, error) {
	if err := s.begin(); err != nil {
		return nil, err
	}
	all := s.match(f)
	lo := f.Offset
	hi := len(all)
	if f.Limit > 0 && lo+f.Limit < hi {
		hi = lo + f.Limit
	}
	lo += offset
	if limit > 0 && lo+limit < hi {
		hi = lo + limit
	}
	if lo >= hi {
		return nil, nil
	}
	return append([]entity.Page(nil), all[lo:hi]...), nil
}

func (s *Pages) Selection(ctx context.Context, name string, f repo.PageFilter) ([]entity.Choice, error) {
	if err := s.begin(); err != nil {
		return nil, err
	}
	ids := map[uint64]bool{}
	for _, p := range s.match(f) {
		switch name {
		case "layout":
			ids[p.LayoutID] = true
		case "section":
			ids[p.Section()] = true
		default:
			return nil, fmt.Errorf("no selection for %q", name)
		}
	}
	choices := make([]entity.Choice, 0, len(ids))
	for id := range ids {
		choices = append(choices, entity.Choice{ID: id, Label: s.label(name, id)})
	}
	sort.Slice(choices, func(i, j int) bool { return choices[i].ID < choices[j].ID })
	return choices, nil
}

func (s *Pages) label(name string, id uint64) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if name == "layout" {
		return s.layouts[id]
	}
	for _, p := range s.pages {
		if p.ID == id {
			return p.Title
		}
	}
	return ""
}

func (s *Pages) Oldest(ctx context.Context, f repo.PageFilter) (*entity.Page, error) {
	if err := s.begin(); err != nil {
		return nil, err
	}
	all := s.match(f)
	if len(all) == 0 {
		return nil, nil
	}
	p := all[0]
	return &p, nil
}
