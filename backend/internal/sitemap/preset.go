package sitemap

import (
	"regexp"
	"strings"
)

// Preset pins discriminators to one concrete value each, usually taken
// from route attributes.
type Preset map[string]string

// PresetFrom keeps the attributes whose name is accepted.
func PresetFrom(attrs map[string]string, accepts []string) Preset {
	p := Preset{}
	for _, name := range accepts {
		if v, ok := attrs[name]; ok {
			p[name] = v
		}
	}
	return p
}

func (p Preset) lookup(name string) *string {
	v, ok := p[name]
	if !ok {
		return nil
	}
	return &v
}

var placeholderRe = regexp.MustCompile(`\{([a-z_]+)\}`)

// placeholders returns the placeholder names of pattern in order of first
// occurrence.
func placeholders(pattern string) []string {
	var names []string
	seen := map[string]bool{}
	for _, m := range placeholderRe.FindAllStringSubmatch(pattern, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			names = append(names, m[1])
		}
	}
	return names
}

func substitute(pattern, name, value string) string {
	return strings.ReplaceAll(pattern, "{"+name+"}", value)
}
