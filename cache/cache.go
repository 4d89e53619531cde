// Package cache keeps recently fetched API data for a short time and collapses
// concurrent loads of the same key.
package cache

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/go-authgate/climate-cli/apierr"
)

const (
	DefaultSize = 64
	DefaultTTL  = 5 * time.Minute
)

// ErrorSink receives the message of every failed load.
type ErrorSink interface {
	Set(msg string)
}

// Cache is safe for concurrent use.
type Cache struct {
	entries *expirable.LRU[string, any]
	group   singleflight.Group
	errs    ErrorSink
	logger  *zap.Logger

	mu sync.Mutex
	// generation advances on Purge so loads started before it are not stored.
	generation uint64
}

// New returns a Cache holding up to size entries for ttl each. errs may be nil.
func New(size int, ttl time.Duration, errs ErrorSink, logger *zap.Logger) *Cache {
	if size <= 0 {
		size = DefaultSize
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache{
		entries: expirable.NewLRU[string, any](size, nil, ttl),
		errs:    errs,
		logger:  logger.With(zap.String("component", "cache")),
	}
}

// Purge drops every entry. In-flight loads finish but their results are not kept.
func (c *Cache) Purge() {
	c.mu.Lock()
	c.generation++
	c.mu.Unlock()

	c.entries.Purge()
	c.logger.Debug("cache purged")
}

// Len returns the number of live entries.
func (c *Cache) Len() int {
	return c.entries.Len()
}

func (c *Cache) currentGeneration() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation
}

func (c *Cache) store(generation uint64, key string, v any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if generation == c.generation {
		c.entries.Add(key, v)
	}
}

// Fetch returns the cached value for key or loads it with fn. Failed loads are
// not cached or retried; their message goes to the error sink before the
// error is returned.
func Fetch[T any](ctx context.Context, c *Cache, key string, fn func(ctx context.Context) (T, error)) (T, error) {
	if v, ok := c.entries.Get(key); ok {
		if typed, ok := v.(T); ok {
			return typed, nil
		}
	}

	generation := c.currentGeneration()
	ch := c.group.DoChan(strconv.FormatUint(generation, 10)+"/"+key, func() (any, error) {
		v, err := fn(context.WithoutCancel(ctx))
		if err != nil {
			return nil, err
		}
		c.store(generation, key, v)
		return v, nil
	})

	var zero T
	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			c.logger.Debug("load failed", zap.String("key", key), zap.Error(res.Err))
			if c.errs != nil {
				c.errs.Set(apierr.Message(res.Err))
			}
			return zero, res.Err
		}
		typed, _ := res.Val.(T)
		return typed, nil
	}
}
