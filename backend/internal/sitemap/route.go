package sitemap

import (
	"regexp"
	"sort"
	"strings"
)

// Route matches requested document names against a decorator's pattern and
// extracts the discriminator values as route attributes.
type Route struct {
	ID      string
	Pattern string
	re      *regexp.Regexp
	literal int
}

// NewRoute compiles pattern. Only accepted, known placeholders become
// attributes; other placeholders must appear literally.
func NewRoute(id, pattern string, accepts []string, reg *Registry) *Route {
	accepted := map[string]bool{}
	for _, a := range accepts {
		accepted[a] = reg.Known(a)
	}
	var b strings.Builder
	b.WriteString("^")
	literal := 0
	seen := map[string]bool{}
	last := 0
	for _, loc := range placeholderRe.FindAllStringSubmatchIndex(pattern, -1) {
		lit := pattern[last:loc[0]]
		b.WriteString(regexp.QuoteMeta(lit))
		literal += len(lit)
		name := pattern[loc[2]:loc[3]]
		switch {
		case !accepted[name]:
			b.WriteString(regexp.QuoteMeta(pattern[loc[0]:loc[1]]))
			literal += loc[1] - loc[0]
		case seen[name]:
			b.WriteString(valueClass(name))
		default:
			seen[name] = true
			b.WriteString("(?P<" + name + ">" + valueClass(name) + ")")
		}
		last = loc[1]
	}
	b.WriteString(regexp.QuoteMeta(pattern[last:]))
	literal += len(pattern) - last
	b.WriteString("$")
	return &Route{ID: id, Pattern: pattern, re: regexp.MustCompile(b.String()), literal: literal}
}

func valueClass(name string) string {
	switch name {
	case YearName, IndexName:
		return `\d+`
	default:
		return `[^/]+?`
	}
}

// Match returns the route attributes of name.
func (r *Route) Match(name string) (map[string]string, bool) {
	m := r.re.FindStringSubmatch(name)
	if m == nil {
		return nil, false
	}
	attrs := map[string]string{}
	for i, sub := range r.re.SubexpNames() {
		if sub != "" {
			attrs[sub] = m[i]
		}
	}
	return attrs, true
}

// Router resolves a document name to a route. Routes with more literal
// text are tried first so that specific patterns win over generic ones.
type Router struct {
	routes []*Route
}

func NewRouter() *Router { return &Router{} }

func (rt *Router) Add(r *Route) {
	rt.routes = append(rt.routes, r)
	sort.SliceStable(rt.routes, func(i, j int) bool { return rt.routes[i].literal > rt.routes[j].literal })
}

func (rt *Router) Match(name string) (string, map[string]string, bool) {
	for _, r := range rt.routes {
		if attrs, ok := r.Match(name); ok {
			return r.ID, attrs, true
		}
	}
	return "", nil, false
}
