package sitemap

import "testing"

func TestSlugify(t *testing.T) {
	cases := map[string]string{
		"Article":           "article",
		"Événements & News": "evenements-news",
		"  Home  Page ":     "home-page",
		"Ünïcödé":           "unicode",
		"---":               "",
		"2024 Archive":      "2024-archive",
	}
	for in, want := range cases {
		if got := Slugify(in); got != want {
			t.Fatalf("Slugify(%q) = %q, want %q", in, got, want)
		}
	}
}
