package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Cache defaults.
const (
	DefaultCacheTTL       = 5 * time.Minute
	DefaultSweepThreshold = 1000
)

// TokenCache memoizes a Verifier. Entries are keyed by the SHA-256 of the
// raw token and live until the earlier of the cache TTL and the token's
// own expiry. Failed verifications are not cached.
type TokenCache struct {
	verifier  Verifier
	ttl       time.Duration
	threshold int
	now       func() time.Time
	logger    *slog.Logger
	metrics   *CacheMetrics

	mu      sync.RWMutex
	entries map[string]cacheEntry

	hits   atomic.Int64
	misses atomic.Int64
}

type cacheEntry struct {
	claims    Claims
	expiresAt time.Time
}

// CacheStats is a point-in-time view of the cache.
type CacheStats struct {
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
	Size   int   `json:"size"`
}

// CacheOption configures a TokenCache.
type CacheOption func(*TokenCache)

// WithTTL sets the maximum lifetime of an entry.
func WithTTL(d time.Duration) CacheOption {
	return func(c *TokenCache) {
		if d > 0 {
			c.ttl = d
		}
	}
}

// WithSweepThreshold sets the size above which a store triggers a sweep.
func WithSweepThreshold(n int) CacheOption {
	return func(c *TokenCache) {
		if n > 0 {
			c.threshold = n
		}
	}
}

// WithCacheClock replaces time.Now.
func WithCacheClock(now func() time.Time) CacheOption {
	return func(c *TokenCache) { c.now = now }
}

// WithCacheLogger sets the logger.
func WithCacheLogger(l *slog.Logger) CacheOption {
	return func(c *TokenCache) { c.logger = l }
}

// WithCacheMetrics enables Prometheus hit/miss counters.
func WithCacheMetrics(m *CacheMetrics) CacheOption {
	return func(c *TokenCache) { c.metrics = m }
}

// NewTokenCache wraps v.
func NewTokenCache(v Verifier, opts ...CacheOption) *TokenCache {
	c := &TokenCache{
		verifier:  v,
		ttl:       DefaultCacheTTL,
		threshold: DefaultSweepThreshold,
		now:       time.Now,
		logger:    slog.New(slog.DiscardHandler),
		entries:   make(map[string]cacheEntry),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the claims for token, calling the verifier only when no live
// entry exists. The returned Claims must not be modified.
func (c *TokenCache) Get(ctx context.Context, token string) (*Claims, error) {
	key := hashToken(token)
	now := c.now()

	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if ok {
		if now.Before(e.expiresAt) {
			c.hits.Add(1)
			c.metrics.hit()
			c.logger.Debug("token cache hit", "subject", e.claims.Subject)
			claims := e.claims
			return &claims, nil
		}
		c.evict(key, now)
	}

	c.misses.Add(1)
	c.metrics.miss()
	claims, err := c.verifier.Verify(ctx, token)
	if err != nil {
		return nil, err
	}
	c.store(key, claims)
	return claims, nil
}

// evict removes key if its entry is still expired.
func (c *TokenCache) evict(key string, now time.Time) {
	c.mu.Lock()
	if e, ok := c.entries[key]; ok && !now.Before(e.expiresAt) {
		delete(c.entries, key)
	}
	c.mu.Unlock()
}

func (c *TokenCache) store(key string, claims *Claims) {
	now := c.now()
	exp := now.Add(c.ttl)
	if !claims.ExpiresAt.IsZero() && claims.ExpiresAt.Before(exp) {
		exp = claims.ExpiresAt
	}
	if !now.Before(exp) {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry{claims: *claims, expiresAt: exp}
	if len(c.entries) > c.threshold {
		n := c.sweepLocked(now)
		c.logger.Debug("token cache swept", "removed", n, "size", len(c.entries))
	}
}

// Sweep drops every expired entry and returns how many were removed.
func (c *TokenCache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sweepLocked(c.now())
}

func (c *TokenCache) sweepLocked(now time.Time) int {
	removed := 0
	for k, e := range c.entries {
		if !now.Before(e.expiresAt) {
			delete(c.entries, k)
			removed++
		}
	}
	return removed
}

// Len returns the number of stored entries, live or not yet swept.
func (c *TokenCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Stats returns hit and miss counts and the current size.
func (c *TokenCache) Stats() CacheStats {
	return CacheStats{Hits: c.hits.Load(), Misses: c.misses.Load(), Size: c.Len()}
}

func hashToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}

// CacheMetrics holds the Prometheus counters of a TokenCache.
type CacheMetrics struct {
	lookups *prometheus.CounterVec
}

// NewCacheMetrics registers the cache counters on reg.
func NewCacheMetrics(reg prometheus.Registerer) *CacheMetrics {
	f := promauto.With(reg)
	return &CacheMetrics{
		lookups: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "securecore",
			Subsystem: "auth",
			Name:      "token_cache_lookups_total",
			Help:      "Credential cache lookups by result.",
		}, []string{"result"}),
	}
}

func (m *CacheMetrics) hit() {
	if m != nil {
		m.lookups.WithLabelValues("hit").Inc()
	}
}

func (m *CacheMetrics) miss() {
	if m != nil {
		m.lookups.WithLabelValues("miss").Inc()
	}
}
