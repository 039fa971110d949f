package provider

import (
	"context"
	"sync"
	"time"

	"github.com/liamcoop/linker/internal/logger"
	"github.com/liamcoop/linker/internal/metrics"
)

// SnapshotCache provides an abstraction for caching snapshots
// This allows swapping between in-memory, Redis, or other caching implementations
type SnapshotCache interface {
	// Get retrieves the cached snapshot, returns nil on a miss or expiry
	Get(ctx context.Context) (*Snapshot, error)

	// Set stores a snapshot
	Set(ctx context.Context, s *Snapshot) error

	// Invalidate clears the cache, forcing a reload on next Get
	Invalidate(ctx context.Context) error
}

// CacheConfig holds configuration for cache behavior
type CacheConfig struct {
	// TTL is the time-to-live for a cached snapshot
	// Set to 0 for no expiration (manual invalidation only)
	TTL time.Duration
}

// DefaultCacheConfig returns sensible defaults for snapshot caching
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		TTL: 0, // No TTL - only invalidate on mutations
	}
}

// InMemorySnapshotCache is a simple in-memory implementation of SnapshotCache
// Thread-safe for concurrent access
type InMemorySnapshotCache struct {
	snapshot *Snapshot
	cachedAt time.Time
	config   CacheConfig
	mu       sync.RWMutex
}

// NewInMemorySnapshotCache creates a new in-memory snapshot cache
func NewInMemorySnapshotCache(config CacheConfig) *InMemorySnapshotCache {
	return &InMemorySnapshotCache{config: config}
}

func (c *InMemorySnapshotCache) Get(context.Context) (*Snapshot, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.snapshot == nil {
		return nil, nil
	}

	if c.config.TTL > 0 && time.Since(c.cachedAt) > c.config.TTL {
		return nil, nil
	}

	return c.snapshot, nil
}

func (c *InMemorySnapshotCache) Set(_ context.Context, s *Snapshot) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.snapshot = s
	c.cachedAt = time.Now()
	return nil
}

func (c *InMemorySnapshotCache) Invalidate(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.snapshot = nil
	return nil
}

// CachedProvider serves snapshots from a cache, loading from the wrapped
// Provider on a miss. Cache failures degrade to loading directly.
// A snapshot loaded before an invalidation is never written to the cache.
type CachedProvider struct {
	source  Provider
	cache   SnapshotCache
	backend string

	mu         sync.Mutex
	generation uint64
}

// NewCachedProvider wraps source with cache. backend labels the cache in
// metrics, e.g. "memory" or "redis".
func NewCachedProvider(source Provider, cache SnapshotCache, backend string) *CachedProvider {
	return &CachedProvider{source: source, cache: cache, backend: backend}
}

func (p *CachedProvider) Snapshot(ctx context.Context) (*Snapshot, error) {
	cached, err := p.cache.Get(ctx)
	if err != nil {
		metrics.SnapshotCache.WithLabelValues(p.backend, "error").Inc()
		logger.Warn("Snapshot cache read failed", "backend", p.backend, "error", err)
	}
	if cached != nil {
		metrics.SnapshotCache.WithLabelValues(p.backend, "hit").Inc()
		return cached, nil
	}
	metrics.SnapshotCache.WithLabelValues(p.backend, "miss").Inc()

	p.mu.Lock()
	generation := p.generation
	p.mu.Unlock()

	snapshot, err := p.source.Snapshot(ctx)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.generation != generation {
		// A write landed while loading; this snapshot may predate it
		return snapshot, nil
	}
	if err := p.cache.Set(ctx, snapshot); err != nil {
		metrics.SnapshotCache.WithLabelValues(p.backend, "error").Inc()
		logger.Warn("Snapshot cache write failed", "backend", p.backend, "error", err)
	}

	return snapshot, nil
}

// Invalidate drops the cached snapshot after a write
func (p *CachedProvider) Invalidate(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.generation++
	if err := p.cache.Invalidate(ctx); err != nil {
		logger.Error("Snapshot cache invalidation failed", "backend", p.backend, "error", err)
	}
}
