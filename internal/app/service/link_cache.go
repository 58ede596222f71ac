package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sifan077/linkgate/internal/app/model"
	"github.com/sifan077/linkgate/internal/app/repository"
	infraPrometheus "github.com/sifan077/linkgate/internal/infra/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// ErrLookupTimeout is returned when a directory read does not finish within the
// configured lookup timeout.
var ErrLookupTimeout = errors.New("link lookup timed out")

const (
	defaultCacheSize     = 100_000
	defaultCacheShards   = 16
	defaultCacheTTL      = 30 * time.Second
	defaultNegativeTTL   = 5 * time.Second
	defaultLookupTimeout = 500 * time.Millisecond
)

// LinkLookup is the directory read the cache falls back to on a miss.
type LinkLookup interface {
	GetByCode(ctx context.Context, code string) (*model.Link, error)
}

// LinkCacheConfig sizes the cache. Zero values fall back to defaults.
type LinkCacheConfig struct {
	Size          int
	Shards        int
	TTL           time.Duration
	NegativeTTL   time.Duration
	LookupTimeout time.Duration
}

// LinkCacheDeps groups the collaborators of a LinkCache.
type LinkCacheDeps struct {
	Lookup  LinkLookup
	Logger  *zap.Logger
	Metrics *infraPrometheus.Metrics
	Now     func() time.Time
}

// cacheEntry is a snapshot of a directory read. A nil link marks a negative entry.
type cacheEntry struct {
	link      *model.Link
	expiresAt time.Time
}

// LinkCache is a read-through, TTL-bounded, sharded LRU in front of the link
// directory. Concurrent misses for one code share a single directory read.
type LinkCache struct {
	lookup  LinkLookup
	logger  *zap.Logger
	metrics *infraPrometheus.Metrics
	now     func() time.Time

	shards []*lru.Cache[string, cacheEntry]
	mask   uint64
	group  singleflight.Group
	// generation is bumped by Invalidate. A load that observes a different
	// value after its directory read does not store its result. storeMu makes
	// the check-and-add in store atomic with respect to Invalidate.
	generation atomic.Uint64
	storeMu    sync.Mutex

	ttl           time.Duration
	negativeTTL   time.Duration
	lookupTimeout time.Duration
}

// NewLinkCache builds a cache over deps.Lookup.
func NewLinkCache(cfg LinkCacheConfig, deps LinkCacheDeps) (*LinkCache, error) {
	if deps.Lookup == nil {
		return nil, errors.New("link cache: lookup is required")
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics := deps.Metrics
	if metrics == nil {
		metrics = infraPrometheus.NewMetrics(nil)
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}

	if cfg.Size <= 0 {
		cfg.Size = defaultCacheSize
	}
	if cfg.Shards <= 0 {
		cfg.Shards = defaultCacheShards
	}
	if cfg.TTL <= 0 {
		cfg.TTL = defaultCacheTTL
	}
	if cfg.NegativeTTL <= 0 {
		cfg.NegativeTTL = defaultNegativeTTL
	}
	if cfg.LookupTimeout <= 0 {
		cfg.LookupTimeout = defaultLookupTimeout
	}

	shardCount := nextPowerOfTwo(cfg.Shards)
	if shardCount > cfg.Size {
		shardCount = 1
	}
	perShard := cfg.Size / shardCount

	shards := make([]*lru.Cache[string, cacheEntry], shardCount)
	for i := range shards {
		shard, err := lru.New[string, cacheEntry](perShard)
		if err != nil {
			return nil, fmt.Errorf("link cache: create shard: %w", err)
		}
		shards[i] = shard
	}

	return &LinkCache{
		lookup:        deps.Lookup,
		logger:        logger,
		metrics:       metrics,
		now:           now,
		shards:        shards,
		mask:          uint64(shardCount - 1),
		ttl:           cfg.TTL,
		negativeTTL:   cfg.NegativeTTL,
		lookupTimeout: cfg.LookupTimeout,
	}, nil
}

// Get returns the link for code, reading through to the directory on a miss or
// stale entry. It returns repository.ErrLinkNotFound for unknown codes and
// ErrLookupTimeout when the directory read outlives the lookup timeout.
// The returned link is a copy owned by the caller.
func (c *LinkCache) Get(ctx context.Context, code string) (*model.Link, error) {
	if entry, ok := c.fresh(code); ok {
		if entry.link == nil {
			c.metrics.CacheNegativeHits.Inc()
			return nil, repository.ErrLinkNotFound
		}
		c.metrics.CacheHits.Inc()
		return cloneLink(entry.link), nil
	}
	c.metrics.CacheMisses.Inc()

	ch := c.group.DoChan(code, func() (interface{}, error) {
		return c.load(code)
	})

	timer := time.NewTimer(c.lookupTimeout)
	defer timer.Stop()

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		entry := res.Val.(cacheEntry)
		if entry.link == nil {
			return nil, repository.ErrLinkNotFound
		}
		return cloneLink(entry.link), nil
	case <-timer.C:
		return nil, ErrLookupTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Invalidate drops any cached entry for code so the next Get reads through.
// A directory read already in flight still answers its own waiters but is not
// cached.
func (c *LinkCache) Invalidate(code string) {
	c.storeMu.Lock()
	c.generation.Add(1)
	c.group.Forget(code)
	c.shard(code).Remove(code)
	c.storeMu.Unlock()
}

// Len returns the number of cached entries, stale ones included.
func (c *LinkCache) Len() int {
	n := 0
	for _, s := range c.shards {
		n += s.Len()
	}
	return n
}

// load runs once per in-flight code. It re-checks the cache first so a caller
// that missed just before another flight completed does not read again.
// The directory call is detached from any request context and always runs to
// completion (bounded by the lookup timeout) so its result can populate the cache.
func (c *LinkCache) load(code string) (cacheEntry, error) {
	gen := c.generation.Load()
	if entry, ok := c.fresh(code); ok {
		return entry, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.lookupTimeout)
	defer cancel()

	link, err := c.lookup.GetByCode(ctx, code)
	switch {
	case err == nil:
		c.metrics.DirectoryLookups.WithLabelValues("found").Inc()
		entry := cacheEntry{link: cloneLink(link), expiresAt: c.now().Add(c.ttl)}
		c.store(code, entry, gen)
		return entry, nil
	case errors.Is(err, repository.ErrLinkNotFound):
		c.metrics.DirectoryLookups.WithLabelValues("not_found").Inc()
		entry := cacheEntry{expiresAt: c.now().Add(c.negativeTTL)}
		c.store(code, entry, gen)
		return entry, nil
	case errors.Is(err, context.DeadlineExceeded):
		c.metrics.DirectoryLookups.WithLabelValues("timeout").Inc()
		c.logger.Warn("directory lookup timed out", zap.String("code", code), zap.Duration("timeout", c.lookupTimeout))
		return cacheEntry{}, ErrLookupTimeout
	default:
		c.metrics.DirectoryLookups.WithLabelValues("error").Inc()
		c.logger.Warn("directory lookup failed", zap.String("code", code), zap.Error(err))
		return cacheEntry{}, fmt.Errorf("lookup %q: %w", code, err)
	}
}

// store caches entry unless an invalidation happened since gen was read.
func (c *LinkCache) store(code string, entry cacheEntry, gen uint64) {
	c.storeMu.Lock()
	defer c.storeMu.Unlock()
	if c.generation.Load() != gen {
		return
	}
	c.shard(code).Add(code, entry)
}

// fresh returns the cached entry for code if it has not expired. Expired
// entries stay in place until the next load overwrites them or LRU evicts them.
func (c *LinkCache) fresh(code string) (cacheEntry, bool) {
	entry, ok := c.shard(code).Get(code)
	if !ok || !c.now().Before(entry.expiresAt) {
		return cacheEntry{}, false
	}
	return entry, true
}

func (c *LinkCache) shard(code string) *lru.Cache[string, cacheEntry] {
	return c.shards[xxhash.Sum64String(code)&c.mask]
}

func cloneLink(link *model.Link) *model.Link {
	cp := *link
	return &cp
}

func nextPowerOfTwo(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}
