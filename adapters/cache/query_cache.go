// Package cache keeps short-lived API query results.
package cache

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/layer-3/moduls/ports"
	"golang.org/x/sync/singleflight"
)

const userPrefix = "user:"

// QueryCache is a size- and time-bounded cache of query results.
// Keys built with UserKey belong to one wallet address and are dropped
// together by InvalidateUser.
//
// Every invalidation bumps an epoch. A load that started before an
// invalidation returns its value to its callers but does not store it.
type QueryCache struct {
	entries *expirable.LRU[string, any]
	group   singleflight.Group

	mu    sync.Mutex
	epoch uint64
}

// NewQueryCache creates a cache holding at most size entries for ttl each
func NewQueryCache(size int, ttl time.Duration) *QueryCache {
	return &QueryCache{
		entries: expirable.NewLRU[string, any](size, nil, ttl),
	}
}

var _ ports.UserCache = (*QueryCache)(nil)

// Key joins parts into a cache key
func Key(parts ...string) string {
	return strings.Join(parts, ":")
}

// UserKey builds a key scoped to address
func UserKey(address string, parts ...string) string {
	return userPrefix + strings.ToLower(address) + ":" + Key(parts...)
}

// Fetch returns the cached value for key or loads and stores it.
// Concurrent fetches of the same key share one load.
func Fetch[T any](ctx context.Context, c *QueryCache, key string, load func(context.Context) (T, error)) (T, error) {
	if cached, ok := c.entries.Get(key); ok {
		if value, ok := cached.(T); ok {
			return value, nil
		}
	}

	epoch := c.currentEpoch()
	result, err, _ := c.group.Do(flightKey(key, epoch), func() (any, error) {
		value, err := load(ctx)
		if err != nil {
			return nil, err
		}
		c.store(key, value, epoch)
		return value, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}

	return result.(T), nil
}

func flightKey(key string, epoch uint64) string {
	return key + "#" + strconv.FormatUint(epoch, 10)
}

func (c *QueryCache) currentEpoch() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.epoch
}

// store adds value unless the cache was invalidated after the load began
func (c *QueryCache) store(key string, value any, epoch uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.epoch != epoch {
		return
	}
	c.entries.Add(key, value)
}

// Invalidate drops key so the next Fetch reloads it
func (c *QueryCache) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.epoch++
	c.entries.Remove(key)
}

// InvalidatePrefix drops every key starting with prefix
func (c *QueryCache) InvalidatePrefix(prefix string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.epoch++
	for _, key := range c.entries.Keys() {
		if strings.HasPrefix(key, prefix) {
			c.entries.Remove(key)
		}
	}
}

// InvalidateUser drops every key scoped to address
func (c *QueryCache) InvalidateUser(address string) {
	c.InvalidatePrefix(userPrefix + strings.ToLower(address) + ":")
}

// Purge empties the cache
func (c *QueryCache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.epoch++
	c.entries.Purge()
}

// Len returns the number of live entries
func (c *QueryCache) Len() int {
	return c.entries.Len()
}
