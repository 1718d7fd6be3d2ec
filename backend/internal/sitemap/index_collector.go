package sitemap

import (
	"context"
	"log"
)

// KeySource is anything that resolves the URLs of its shards.
type KeySource interface {
	Name() string
	Keys(ctx context.Context, site uint64, preset Preset) ([]string, error)
}

// IndexCollector lists the URLs of every other registered collector under
// a single bucket, in registration order.
type IndexCollector struct {
	name    string
	pattern string
	sources []KeySource
}

func NewIndexCollector(name, pattern string) *IndexCollector {
	return &IndexCollector{name: name, pattern: pattern}
}

// Register appends a source. Sources are registered at startup only.
func (ic *IndexCollector) Register(src KeySource) {
	ic.sources = append(ic.sources, src)
}

func (ic *IndexCollector) Name() string      { return ic.name }
func (ic *IndexCollector) Pattern() string   { return ic.pattern }
func (ic *IndexCollector) Accepts() []string { return nil }

func (ic *IndexCollector) Collect(ctx context.Context, site uint64, preset Preset) (*Mapping[[]string], error) {
	locs := []string{}
	for _, src := range ic.sources {
		if src.Name() == ic.name {
			continue
		}
		keys, err := src.Keys(ctx, site, preset)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			log.Printf("sitemap: op=collect_index source=%s err=%v", src.Name(), err)
			continue
		}
		locs = append(locs, keys...)
	}
	// 索引自身的占位符只做替换，不做枚举
	url := ic.pattern
	for name, v := range preset {
		url = substitute(url, name, v)
	}
	out := NewMapping[[]string]()
	out.Set(url, locs)
	return out, nil
}

// Keys lets an index be listed by another index.
func (ic *IndexCollector) Keys(ctx context.Context, site uint64, preset Preset) ([]string, error) {
	m, err := ic.Collect(ctx, site, preset)
	if err != nil {
		return nil, err
	}
	return m.Keys(), nil
}
