package precache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"

	"github.com/always-cache/precache/cache"
	cachekey "github.com/always-cache/precache/pkg/cache-key"
	serializer "github.com/always-cache/precache/pkg/response-serializer"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var ErrNotInitialized = errors.New("Precache not initialized")

type Config struct {
	// Storage the named cache is opened from.
	Storage cache.Storage
	// Name of the cache store. DefaultCacheName is used if empty.
	CacheName string
	// Resources to precache, relative to BaseURL. DefaultResources is used if nil.
	Resources []string
	// URL of the deployment. Resources are resolved against it,
	// and in proxy mode requests are forwarded to its origin.
	BaseURL url.URL
	// Transport used for network fetches. http.DefaultTransport is used if nil.
	Transport http.RoundTripper
	// Logger to use. The global zerolog logger is used if nil.
	Logger *zerolog.Logger
}

// Precache intercepts requests for a fixed list of resources and serves them cache-first.
// It starts out passing every request through to the network,
// and starts serving from the cache once Init has succeeded.
type Precache struct {
	storage   cache.Storage
	cacheName string
	keyer     cachekey.CacheKeyer
	transport http.RoundTripper
	log       zerolog.Logger

	mu    sync.RWMutex
	cache cache.Cache
}

// New creates a Precache instance.
// It resolves the resources, but does not touch the storage or the network.
func New(config Config) (*Precache, error) {
	if config.Storage == nil {
		return nil, fmt.Errorf("No cache storage configured")
	}
	if config.BaseURL.Scheme == "" || config.BaseURL.Host == "" {
		return nil, fmt.Errorf("Base URL must be absolute, got %q", config.BaseURL.String())
	}

	var logger zerolog.Logger
	if config.Logger == nil {
		logger = log.Logger
	} else {
		logger = *config.Logger
	}

	p := &Precache{
		storage:   config.Storage,
		cacheName: config.CacheName,
		transport: config.Transport,
	}
	if p.cacheName == "" {
		p.cacheName = DefaultCacheName
	}
	if p.transport == nil {
		p.transport = http.DefaultTransport
	}
	resources := config.Resources
	if resources == nil {
		resources = DefaultResources
	}

	base := config.BaseURL
	keyer, err := cachekey.NewCacheKeyer(&base, resources)
	if err != nil {
		return nil, err
	}
	p.keyer = keyer

	// create a child logger and add defaults
	p.log = logger.With().
		Str("cache", p.cacheName).
		Str("base", base.String()).
		Logger()

	return p, nil
}

// Init opens the cache and stores a network response for every resource.
// It blocks until all resources are stored.
// If any resource cannot be fetched, or is not a success, nothing is stored,
// an error is returned and the instance keeps passing requests through.
func (p *Precache) Init(ctx context.Context) error {
	c, err := p.storage.Open(p.cacheName)
	if err != nil {
		return fmt.Errorf("Could not open cache %s: %w", p.cacheName, err)
	}

	// follow redirects when precaching, the final response is stored under the requested URL
	client := &http.Client{Transport: p.transport}
	entries := make([]cache.CacheEntry, 0, len(p.keyer.URLs))
	for _, u := range p.keyer.URLs {
		p.log.Trace().Str("url", u).Msg("Precaching")
		bytes, err := fetchForPrecache(ctx, client, u)
		if err != nil {
			return fmt.Errorf("Could not precache %s: %w", u, err)
		}
		entries = append(entries, cache.CacheEntry{Key: u, Bytes: bytes})
	}
	if err := c.PutAll(entries); err != nil {
		return fmt.Errorf("Could not write precached resources: %w", err)
	}

	p.mu.Lock()
	p.cache = c
	p.mu.Unlock()

	p.log.Info().Int("resources", len(entries)).Msg("Precache installed")
	return nil
}

func fetchForPrecache(ctx context.Context, client *http.Client, u string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	res, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	if !isStorable(res.StatusCode) {
		io.Copy(io.Discard, res.Body)
		res.Body.Close()
		return nil, fmt.Errorf("Response status %d", res.StatusCode)
	}
	sRes, err := serializer.FromResponse(res)
	if err != nil {
		return nil, err
	}
	return serializer.StoredResponseToBytes(sRes)
}

// Ready reports whether Init has succeeded, i.e. requests are served cache-first.
func (p *Precache) Ready() bool {
	return p.openCache() != nil
}

func (p *Precache) openCache() cache.Cache {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.cache
}

// Eligible reports whether the request is handled cache-first.
func (p *Precache) Eligible(r *http.Request) bool {
	return p.keyer.Eligible(r)
}

// CacheName returns the name of the cache store.
func (p *Precache) CacheName() string {
	return p.cacheName
}

// Resources returns the absolute, normalized URLs of the precache list.
func (p *Precache) Resources() []string {
	return append([]string(nil), p.keyer.URLs...)
}

// Keys returns the keys currently stored in the cache.
func (p *Precache) Keys() ([]string, error) {
	c := p.openCache()
	if c == nil {
		return nil, ErrNotInitialized
	}
	keys := make([]string, 0)
	err := c.Keys(func(key string) {
		keys = append(keys, key)
	})
	return keys, err
}

// RoundTrip implements the http.RoundTripper interface.
// Eligible requests are served cache-first, everything else goes to the network unmodified.
// Network failures of eligible requests are reported as a 502 response, not as an error.
func (p *Precache) RoundTrip(r *http.Request) (*http.Response, error) {
	c := p.openCache()
	if c == nil {
		p.log.Trace().Str("url", r.URL.String()).Msg("Not installed, passing through")
		return p.transport.RoundTrip(r)
	}
	if !p.keyer.Eligible(r) {
		p.log.Trace().Str("method", r.Method).Str("url", r.URL.String()).Msg("Passing through")
		return p.transport.RoundTrip(r)
	}
	return p.cacheFirst(c, r), nil
}

// closeRequestBody closes the body of a request that never reaches the transport.
func closeRequestBody(r *http.Request) {
	if r.Body != nil {
		r.Body.Close()
	}
}

// isStorable reports whether a response with this status may be stored.
// Partial content is a fragment of the resource and never stored.
func isStorable(statusCode int) bool {
	return statusCode >= 200 && statusCode < 300 && statusCode != http.StatusPartialContent
}
