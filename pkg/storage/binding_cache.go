package storage

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	DefaultBindingCacheSize = 1024
	DefaultBindingCacheTTL  = 5 * time.Minute
)

// BindingSource is the persisted side of a BindingCache.
type BindingSource interface {
	GetAuditChannel(ctx context.Context, guildID string) (string, bool, error)
}

type cachedBinding struct {
	channelID string
	ok        bool
}

// BindingCache serves audit channel lookups from a bounded, expiring LRU in
// front of the store. Misses are cached too, so unbound guilds cost one
// query per TTL. Safe for concurrent use.
type BindingCache struct {
	source BindingSource
	lru    *expirable.LRU[string, cachedBinding]
}

// NewBindingCache wraps source. Non-positive size or ttl use the defaults.
func NewBindingCache(source BindingSource, size int, ttl time.Duration) *BindingCache {
	if size <= 0 {
		size = DefaultBindingCacheSize
	}
	if ttl <= 0 {
		ttl = DefaultBindingCacheTTL
	}
	return &BindingCache{
		source: source,
		lru:    expirable.NewLRU[string, cachedBinding](size, nil, ttl),
	}
}

// AuditChannel implements audit.BindingLookup. Lookup errors are not cached.
func (c *BindingCache) AuditChannel(ctx context.Context, guildID string) (string, bool, error) {
	if v, hit := c.lru.Get(guildID); hit {
		return v.channelID, v.ok, nil
	}
	channelID, ok, err := c.source.GetAuditChannel(ctx, guildID)
	if err != nil {
		return "", false, err
	}
	c.lru.Add(guildID, cachedBinding{channelID: channelID, ok: ok})
	return channelID, ok, nil
}

// Invalidate drops a cached entry.
func (c *BindingCache) Invalidate(guildID string) {
	c.lru.Remove(guildID)
}

// Len is the number of cached entries.
func (c *BindingCache) Len() int {
	return c.lru.Len()
}
