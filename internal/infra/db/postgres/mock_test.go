//go:build !integration

package postgres

import (
	"context"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"

	"interview-copilot/internal/domain/model"
)

// --- Mocks for cache decorator tests ---

type mockInnerProfileRepo struct {
	calls    int
	FindFunc func(ctx context.Context, requesterID string) (*model.Profile, error)
}

func (m *mockInnerProfileRepo) FindByRequester(ctx context.Context, requesterID string) (*model.Profile, error) {
	m.calls++
	return m.FindFunc(ctx, requesterID)
}

// memCache behaves like Redis for Get/Set: a missing key yields redis.Nil.
type memCache struct {
	mu     sync.Mutex
	data   map[string]string
	ttls   map[string]time.Duration
	getErr error
	setErr error
}

func newMemCache() *memCache {
	return &memCache{data: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (c *memCache) Get(_ context.Context, key string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.getErr != nil {
		return "", c.getErr
	}
	v, ok := c.data[key]
	if !ok {
		return "", redis.Nil
	}
	return v, nil
}

func (c *memCache) Set(_ context.Context, key string, value interface{}, expiration time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.setErr != nil {
		return c.setErr
	}
	switch v := value.(type) {
	case []byte:
		c.data[key] = string(v)
	case string:
		c.data[key] = v
	}
	c.ttls[key] = expiration
	return nil
}
