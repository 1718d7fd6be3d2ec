package sitemap

import (
	"context"
	"strconv"
	"time"

	"github.com/pkg/errors"

	"sitemap-service/backend/internal/entity"
	"sitemap-service/backend/internal/repo"
)

// Discriminator names shipped with the engine.
const (
	LayoutName  = "layout"
	SectionName = "section"
	YearName    = "year"
	// IndexName is the pagination ordinal. It has no strategy of its own:
	// the Collector pages the filter with Limits.NumLocPerPage.
	IndexName = "index"
)

// Value is one selected value of a discriminator. Key replaces the
// {name} placeholder in a URL pattern.
type Value struct {
	ID    uint64
	Label string
	Key   string
}

// Discriminator is a named partitioning axis.
type Discriminator interface {
	Name() string
	// Enumerate lists the values selectable under f. A non-nil preset
	// collapses the result to that single value, or to nothing when the
	// preset does not exist.
	Enumerate(ctx context.Context, q repo.PageQuery, f repo.PageFilter, preset *string) ([]Value, error)
	// Narrow returns a copy of f restricted to v.
	Narrow(f repo.PageFilter, v Value) repo.PageFilter
}

// Registry holds the discriminators known to the process. It is built
// once at startup and only read afterwards.
type Registry struct {
	byName map[string]Discriminator
}

// NewRegistry returns a registry with the layout, section and year
// discriminators. now drives the year upper bound.
func NewRegistry(now func() time.Time) *Registry {
	if now == nil {
		now = time.Now
	}
	r := &Registry{byName: map[string]Discriminator{}}
	r.Register(choiceDiscriminator{name: LayoutName, narrow: func(f repo.PageFilter, id uint64) repo.PageFilter {
		f.LayoutID = id
		return f
	}})
	r.Register(choiceDiscriminator{name: SectionName, narrow: func(f repo.PageFilter, id uint64) repo.PageFilter {
		f.SectionID = id
		return f
	}})
	r.Register(yearDiscriminator{now: now})
	return r
}

func (r *Registry) Register(d Discriminator) {
	r.byName[d.Name()] = d
}

func (r *Registry) Lookup(name string) (Discriminator, bool) {
	d, ok := r.byName[name]
	return d, ok
}

// Known reports whether name can partition a pattern.
func (r *Registry) Known(name string) bool {
	if name == IndexName {
		return true
	}
	_, ok := r.byName[name]
	return ok
}

// choiceDiscriminator selects among the distinct layouts or sections of the
// matching pages. Keys are slugs of the choice labels.
type choiceDiscriminator struct {
	name   string
	narrow func(repo.PageFilter, uint64) repo.PageFilter
}

func (d choiceDiscriminator) Name() string { return d.name }

func (d choiceDiscriminator) Enumerate(ctx context.Context, q repo.PageQuery, f repo.PageFilter, preset *string) ([]Value, error) {
	choices, err := q.Selection(ctx, d.name, f)
	if err != nil {
		return nil, errors.Wrapf(err, "enumerate %s", d.name)
	}
	values := make([]Value, 0, len(choices))
	for _, c := range choices {
		v := choiceValue(c)
		if preset != nil {
			// preset 可以是 slug 也可以是 id
			if *preset == v.Key || *preset == strconv.FormatUint(c.ID, 10) {
				return []Value{v}, nil
			}
			continue
		}
		values = append(values, v)
	}
	if preset != nil {
		return nil, nil
	}
	return values, nil
}

func (d choiceDiscriminator) Narrow(f repo.PageFilter, v Value) repo.PageFilter {
	return d.narrow(f, v.ID)
}

func choiceValue(c entity.Choice) Value {
	key := Slugify(c.Label)
	if key == "" {
		key = strconv.FormatUint(c.ID, 10)
	}
	return Value{ID: c.ID, Label: c.Label, Key: key}
}

// yearDiscriminator enumerates every year from the oldest matching page's
// modification year up to the current (or preset) year, inclusive. Years
// without pages are still enumerated.
type yearDiscriminator struct {
	now func() time.Time
}

func (yearDiscriminator) Name() string { return YearName }

func (d yearDiscriminator) Enumerate(ctx context.Context, q repo.PageQuery, f repo.PageFilter, preset *string) ([]Value, error) {
	oldest, err := q.Oldest(ctx, f)
	if err != nil {
		return nil, errors.Wrap(err, "year lower bound")
	}
	if oldest == nil {
		return nil, nil
	}
	// 年份窗口按 UTC 计算
	lo, hi := oldest.UpdatedAt.UTC().Year(), d.now().UTC().Year()
	if preset != nil {
		y, err := strconv.Atoi(*preset)
		if err != nil || y < lo {
			return nil, nil
		}
		return []Value{yearValue(y)}, nil
	}
	values := make([]Value, 0, hi-lo+1)
	for y := lo; y <= hi; y++ {
		values = append(values, yearValue(y))
	}
	return values, nil
}

func (yearDiscriminator) Narrow(f repo.PageFilter, v Value) repo.PageFilter {
	f.Year = int(v.ID)
	return f
}

func yearValue(y int) Value {
	s := strconv.Itoa(y)
	return Value{ID: uint64(y), Label: s, Key: s}
}
