package filters

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/maypok86/otter"
)

// RoleReader reads persisted role assignments.
type RoleReader interface {
	HasRole(ctx context.Context, uid int64, role string) (bool, error)
}

// RoleCache is a read-through TTL cache in front of the role table.
type RoleCache struct {
	src   RoleReader
	cache otter.Cache[string, bool]
}

// NewRoleCache builds a cache holding up to capacity entries for ttl.
func NewRoleCache(src RoleReader, capacity int, ttl time.Duration) (*RoleCache, error) {
	if capacity <= 0 {
		capacity = 10_000
	}
	if ttl <= 0 {
		ttl = time.Minute
	}
	c, err := otter.MustBuilder[string, bool](capacity).WithTTL(ttl).Build()
	if err != nil {
		return nil, fmt.Errorf("role cache with capacity %d: %w", capacity, err)
	}
	return &RoleCache{src: src, cache: c}, nil
}

func roleKey(uid int64, role string) string {
	return strconv.FormatInt(uid, 10) + ":" + role
}

// Has answers from the cache or loads and remembers the stored value.
func (c *RoleCache) Has(ctx context.Context, uid int64, role string) (bool, error) {
	key := roleKey(uid, role)
	if v, ok := c.cache.Get(key); ok {
		return v, nil
	}
	v, err := c.src.HasRole(ctx, uid, role)
	if err != nil {
		return false, err
	}
	c.cache.Set(key, v)
	return v, nil
}

// Invalidate drops the cached value so the next Has reads the store.
func (c *RoleCache) Invalidate(uid int64, role string) {
	c.cache.Delete(roleKey(uid, role))
}

// Close stops the cache's background workers.
func (c *RoleCache) Close() {
	c.cache.Close()
}
