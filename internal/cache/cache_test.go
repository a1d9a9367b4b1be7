package cache

import (
	"context"
	"errors"
	"sync"
	"time"
)

// fakeClock: управляемое время для тестов TTL.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 10, 29, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

var errCacheDown = errors.New("connection refused")

// failingCache отвечает ошибкой, пока down=true.
type failingCache struct {
	mu    sync.Mutex
	down  bool
	calls int
	inner *MemoryCache
}

func newFailingCache() *failingCache {
	return &failingCache{down: true, inner: NewMemoryCache()}
}

func (c *failingCache) setDown(down bool) {
	c.mu.Lock()
	c.down = down
	c.mu.Unlock()
}

func (c *failingCache) check() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if c.down {
		return errCacheDown
	}
	return nil
}

func (c *failingCache) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func (c *failingCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := c.check(); err != nil {
		return nil, false, err
	}
	return c.inner.Get(ctx, key)
}

func (c *failingCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := c.check(); err != nil {
		return err
	}
	return c.inner.Set(ctx, key, value, ttl)
}

func (c *failingCache) Delete(ctx context.Context, keys ...string) error {
	if err := c.check(); err != nil {
		return err
	}
	return c.inner.Delete(ctx, keys...)
}
