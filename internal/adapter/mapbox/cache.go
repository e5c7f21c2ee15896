package mapbox

import (
	"container/list"
	"context"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/disaster-feed-service/internal/domain"
	"github.com/couchcryptid/disaster-feed-service/internal/observability"
)

// DefaultMissTTL is how long a location with no match is remembered.
const DefaultMissTTL = 30 * time.Minute

// CachedGeocoder memoizes a Geocoder. The same profile locations show up on
// every tick, so hits are kept until evicted and misses ("Earth", "my
// couch") for DefaultMissTTL. Errors are never cached.
type CachedGeocoder struct {
	inner      domain.Geocoder
	maxEntries int
	missTTL    time.Duration
	clock      clockwork.Clock
	metrics    *observability.Metrics

	mu      sync.Mutex
	order   *list.List // front is most recently used
	entries map[string]*list.Element
}

type cacheEntry struct {
	key     string
	match   *domain.PlaceMatch // nil for a remembered miss
	expires time.Time          // zero for hits
}

// CacheOption configures a CachedGeocoder.
type CacheOption func(*CachedGeocoder)

// WithMissTTL overrides DefaultMissTTL. Zero disables negative caching.
func WithMissTTL(d time.Duration) CacheOption {
	return func(c *CachedGeocoder) { c.missTTL = d }
}

// WithClock sets the clock used to expire misses.
func WithClock(clock clockwork.Clock) CacheOption {
	return func(c *CachedGeocoder) { c.clock = clock }
}

// NewCachedGeocoder wraps inner with an LRU of at most maxEntries locations.
func NewCachedGeocoder(inner domain.Geocoder, maxEntries int, metrics *observability.Metrics, opts ...CacheOption) *CachedGeocoder {
	c := &CachedGeocoder{
		inner:      inner,
		maxEntries: max(maxEntries, 1),
		missTTL:    DefaultMissTTL,
		clock:      clockwork.NewRealClock(),
		metrics:    metrics,
		order:      list.New(),
		entries:    make(map[string]*list.Element),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Locate implements domain.Geocoder.
func (c *CachedGeocoder) Locate(ctx context.Context, location string) (*domain.PlaceMatch, error) {
	key := cacheKey(location)
	if match, ok := c.lookup(key); ok {
		c.metrics.GeocodeCache.WithLabelValues("hit").Inc()
		return match, nil
	}
	c.metrics.GeocodeCache.WithLabelValues("miss").Inc()

	match, err := c.inner.Locate(ctx, location)
	if err != nil {
		return nil, err
	}
	if match != nil || c.missTTL > 0 {
		c.store(key, match)
	}
	return match, nil
}

// Len reports the number of cached locations, expired misses included.
func (c *CachedGeocoder) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

func (c *CachedGeocoder) lookup(key string) (*domain.PlaceMatch, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	e := el.Value.(*cacheEntry)
	if !e.expires.IsZero() && !c.clock.Now().Before(e.expires) {
		c.order.Remove(el)
		delete(c.entries, key)
		return nil, false
	}
	c.order.MoveToFront(el)
	return e.match, true
}

func (c *CachedGeocoder) store(key string, match *domain.PlaceMatch) {
	e := &cacheEntry{key: key, match: match}
	if match == nil {
		e.expires = c.clock.Now().Add(c.missTTL)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[key]; ok {
		el.Value = e
		c.order.MoveToFront(el)
		return
	}
	c.entries[key] = c.order.PushFront(e)
	for c.order.Len() > c.maxEntries {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*cacheEntry).key)
	}
}

// cacheKey folds case and whitespace so "New York, NY" and "new york,  ny"
// share an entry.
func cacheKey(location string) string {
	return strings.Join(strings.Fields(strings.ToLower(location)), " ")
}
