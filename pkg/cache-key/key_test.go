package cachekey

import (
	"net/http"
	"net/url"
	"testing"
)

func mustParse(t *testing.T, rawURL string) *url.URL {
	t.Helper()
	u, err := url.Parse(rawURL)
	if err != nil {
		t.Fatalf("Could not parse %s: %s", rawURL, err)
	}
	return u
}

func TestNormalizeStripsQuery(t *testing.T) {
	a, _ := NormalizeString("https://x/a?foo=1")
	b, _ := NormalizeString("https://x/a?bar=2")
	if a != "https://x/a" || a != b {
		t.Fatalf("Normalized keys are %s and %s", a, b)
	}
}

func TestNormalizeStripsFragmentAndUser(t *testing.T) {
	key, err := NormalizeString("https://user:pass@x/a/b.js?v=3#top")
	if err != nil {
		t.Fatal(err)
	}
	if key != "https://x/a/b.js" {
		t.Fatalf("Key is %s", key)
	}
}

func TestNormalizeHostAndDefaultPort(t *testing.T) {
	tests := map[string]string{
		"https://Example.COM:443/a":   "https://example.com/a",
		"HTTP://example.com:80/a":     "http://example.com/a",
		"https://example.com:/a":      "https://example.com/a",
		"https://example.com:8443/a":  "https://example.com:8443/a",
		"http://example.com:443/a":    "http://example.com:443/a",
		"http://[::1]:80/a":           "http://[::1]/a",
		"https://example.com/A/b.js?": "https://example.com/A/b.js",
	}
	for raw, want := range tests {
		got, err := NormalizeString(raw)
		if err != nil {
			t.Fatalf("%s: %s", raw, err)
		}
		if got != want {
			t.Fatalf("Normalized %s to %s, expected %s", raw, got, want)
		}
	}
}

func TestNormalizeIsIdempotent(t *testing.T) {
	once, _ := NormalizeString("https://x/app/?q=1")
	twice, _ := NormalizeString(once)
	if once != twice {
		t.Fatalf("Key changed from %s to %s", once, twice)
	}
}

func TestResolve(t *testing.T) {
	base := mustParse(t, "https://example.com/elm-interest-calculator/")
	tests := map[string]string{
		"/elm-interest-calculator/": "https://example.com/elm-interest-calculator/",
		"manifest.json":             "https://example.com/elm-interest-calculator/manifest.json",
		"./style.css":               "https://example.com/elm-interest-calculator/style.css",
		"../other.js":               "https://example.com/other.js",
	}
	for ref, want := range tests {
		u, err := Resolve(base, ref)
		if err != nil {
			t.Fatalf("%s: %s", ref, err)
		}
		if got := u.String(); got != want {
			t.Fatalf("Resolved %s to %s, expected %s", ref, got, want)
		}
	}
}

func TestResolveDropsLastSegmentOfBase(t *testing.T) {
	base := mustParse(t, "https://example.com/app/sw.js")
	u, err := Resolve(base, "elm.js")
	if err != nil {
		t.Fatal(err)
	}
	if u.String() != "https://example.com/app/elm.js" {
		t.Fatalf("Resolved to %s", u)
	}
}

func TestResolveWithoutBase(t *testing.T) {
	if _, err := Resolve(nil, "elm.js"); err == nil {
		t.Fatal("Expected error without base")
	}
}

func TestEligibleExactMatchOnly(t *testing.T) {
	base := mustParse(t, "https://example.com/app/")
	keyer, err := NewCacheKeyer(base, []string{"/app/", "elm.js", "style.css"})
	if err != nil {
		t.Fatal(err)
	}
	eligible := func(method, rawURL string) bool {
		r, _ := http.NewRequest(method, rawURL, nil)
		return keyer.Eligible(r)
	}

	if !eligible("GET", "https://example.com/app/elm.js?lang=fi") {
		t.Fatal("Query variant of precached resource should be eligible")
	}
	if !eligible("GET", "https://example.com/app/") {
		t.Fatal("Start page should be eligible")
	}
	if eligible("GET", "https://example.com/app/nested/elm.js") {
		t.Fatal("Nested path sharing a suffix must not be eligible")
	}
	if eligible("GET", "https://other.example.com/app/elm.js") {
		t.Fatal("Other origin must not be eligible")
	}
	if !eligible("GET", "https://EXAMPLE.com:443/app/elm.js") {
		t.Fatal("Host case and default port should not change eligibility")
	}
	if eligible("POST", "https://example.com/app/elm.js") {
		t.Fatal("POST must not be eligible")
	}
}

func TestCacheKeyerDeduplicates(t *testing.T) {
	base := mustParse(t, "https://example.com/app/")
	keyer, err := NewCacheKeyer(base, []string{"elm.js", "./elm.js", "elm.js?v=2", "style.css"})
	if err != nil {
		t.Fatal(err)
	}
	if len(keyer.URLs) != 2 {
		t.Fatalf("URLs are %v", keyer.URLs)
	}
	if keyer.URLs[0] != "https://example.com/app/elm.js" {
		t.Fatalf("First URL is %s", keyer.URLs[0])
	}
}
