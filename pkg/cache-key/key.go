package cachekey

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

var defaultPorts = map[string]string{
	"http":  "80",
	"https": "443",
}

// Normalize returns the cache key for a URL: scheme, host and path,
// without query string, fragment or user info.
// The host is lowercased and a default port for the scheme is dropped.
// Relative URLs normalize to their path only.
func Normalize(u *url.URL) string {
	if u == nil {
		return ""
	}
	n := url.URL{
		Scheme:  strings.ToLower(u.Scheme),
		Host:    normalizeHost(u),
		Path:    u.Path,
		RawPath: u.RawPath,
	}
	return n.String()
}

func normalizeHost(u *url.URL) string {
	host := strings.ToLower(u.Host)
	if port := u.Port(); port != "" && port == defaultPorts[strings.ToLower(u.Scheme)] {
		host = strings.TrimSuffix(host, ":"+port)
	}
	return strings.TrimSuffix(host, ":")
}

// NormalizeString parses and normalizes a raw URL.
func NormalizeString(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	return Normalize(u), nil
}

// Resolve resolves a (possibly relative) resource path against the base URL,
// the same way an HTTP client resolves a link on a page served from base.
// Note that the last path segment of base is dropped unless it ends in a slash.
func Resolve(base *url.URL, ref string) (*url.URL, error) {
	if base == nil {
		return nil, fmt.Errorf("No base URL to resolve %q against", ref)
	}
	refURL, err := url.Parse(ref)
	if err != nil {
		return nil, fmt.Errorf("Could not parse resource %q: %w", ref, err)
	}
	return base.ResolveReference(refURL), nil
}

// CacheKeyer decides which requests map to which keys.
// It holds the resolved precache list of one deployment.
type CacheKeyer struct {
	// Base URL that relative resources were resolved against.
	Base *url.URL
	// Normalized, absolute URLs in precache list order.
	URLs []string

	keys map[string]struct{}
}

// NewCacheKeyer resolves every resource against base.
// Duplicates (after normalization) are kept only once, in first-seen order.
func NewCacheKeyer(base *url.URL, resources []string) (CacheKeyer, error) {
	c := CacheKeyer{
		Base: base,
		URLs: make([]string, 0, len(resources)),
		keys: make(map[string]struct{}, len(resources)),
	}
	for _, res := range resources {
		u, err := Resolve(base, res)
		if err != nil {
			return c, err
		}
		key := Normalize(u)
		if _, ok := c.keys[key]; ok {
			continue
		}
		c.keys[key] = struct{}{}
		c.URLs = append(c.URLs, key)
	}
	return c, nil
}

// GetKey returns the cache key for the request.
func (c CacheKeyer) GetKey(r *http.Request) string {
	return Normalize(r.URL)
}

// Has reports whether the key belongs to the precache list.
// Matching is exact: no suffix or prefix matching is done.
func (c CacheKeyer) Has(key string) bool {
	_, ok := c.keys[key]
	return ok
}

// Eligible reports whether the request should be handled cache-first.
// Only GET requests for a precached URL qualify.
func (c CacheKeyer) Eligible(r *http.Request) bool {
	if r.Method != http.MethodGet {
		return false
	}
	return c.Has(c.GetKey(r))
}
