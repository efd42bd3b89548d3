package cache

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

const memoryDefaultTTL = 24 * time.Hour

// MemoryConfig holds in-process cache settings.
type MemoryConfig struct {
	MaxSize         int
	CleanupInterval time.Duration
}

// MemoryOption configures the in-process cache.
type MemoryOption func(*MemoryConfig)

func WithMemoryMaxSize(size int) MemoryOption {
	return func(c *MemoryConfig) { c.MaxSize = size }
}

func WithMemoryCleanup(interval time.Duration) MemoryOption {
	return func(c *MemoryConfig) { c.CleanupInterval = interval }
}

type memoryItem struct {
	data     []byte
	expireAt time.Time
	touched  time.Time
}

func (m *memoryItem) expired(now time.Time) bool { return now.After(m.expireAt) }

// MemoryCache implements Service in process memory with LRU eviction at
// capacity. Values round-trip through JSON so Get behaves exactly like the
// Redis backend.
type MemoryCache struct {
	mu      sync.Mutex
	items   map[string]*memoryItem
	maxSize int
	janitor *time.Ticker
}

// NewMemoryCache creates an in-process cache and starts its expiry janitor.
func NewMemoryCache(opts ...MemoryOption) *MemoryCache {
	cfg := &MemoryConfig{
		MaxSize:         1000,
		CleanupInterval: 5 * time.Minute,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	mc := &MemoryCache{
		items:   make(map[string]*memoryItem),
		maxSize: cfg.MaxSize,
		janitor: time.NewTicker(cfg.CleanupInterval),
	}
	go mc.cleanupLoop()
	return mc
}

func (mc *MemoryCache) Set(_ context.Context, key string, value interface{}, expiration time.Duration) error {
	var data []byte
	switch v := value.(type) {
	case string:
		data = []byte(v)
	default:
		var err error
		if data, err = json.Marshal(value); err != nil {
			return err
		}
	}

	now := time.Now()
	if expiration <= 0 {
		expiration = memoryDefaultTTL
	}

	mc.mu.Lock()
	defer mc.mu.Unlock()
	if len(mc.items) >= mc.maxSize {
		mc.evictOldestLocked()
	}
	mc.items[key] = &memoryItem{data: data, expireAt: now.Add(expiration), touched: now}
	return nil
}

func (mc *MemoryCache) Get(_ context.Context, key string, dest interface{}) error {
	now := time.Now()

	mc.mu.Lock()
	item, ok := mc.items[key]
	if !ok || item.expired(now) {
		if ok {
			delete(mc.items, key)
		}
		mc.mu.Unlock()
		return ErrCacheMiss
	}
	item.touched = now
	data := item.data
	mc.mu.Unlock()

	if strPtr, ok := dest.(*string); ok {
		*strPtr = string(data)
		return nil
	}
	return json.Unmarshal(data, dest)
}

func (mc *MemoryCache) Delete(_ context.Context, keys ...string) error {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	for _, key := range keys {
		delete(mc.items, key)
	}
	return nil
}

func (mc *MemoryCache) Exists(_ context.Context, keys ...string) (bool, error) {
	now := time.Now()
	mc.mu.Lock()
	defer mc.mu.Unlock()
	for _, key := range keys {
		if item, ok := mc.items[key]; ok && !item.expired(now) {
			return true, nil
		}
	}
	return false, nil
}

func (mc *MemoryCache) TryLock(_ context.Context, key string, ttl time.Duration) (bool, error) {
	now := time.Now()
	mc.mu.Lock()
	defer mc.mu.Unlock()
	if item, ok := mc.items[key]; ok && !item.expired(now) {
		return false, nil
	}
	mc.items[key] = &memoryItem{data: []byte("locked"), expireAt: now.Add(ttl), touched: now}
	return true, nil
}

func (mc *MemoryCache) Unlock(ctx context.Context, key string) error {
	return mc.Delete(ctx, key)
}

func (mc *MemoryCache) evictOldestLocked() {
	var oldestKey string
	var oldest time.Time
	for key, item := range mc.items {
		if oldestKey == "" || item.touched.Before(oldest) {
			oldestKey = key
			oldest = item.touched
		}
	}
	if oldestKey != "" {
		delete(mc.items, oldestKey)
	}
}

func (mc *MemoryCache) cleanupLoop() {
	for range mc.janitor.C {
		now := time.Now()
		mc.mu.Lock()
		for key, item := range mc.items {
			if item.expired(now) {
				delete(mc.items, key)
			}
		}
		mc.mu.Unlock()
	}
}

// Close stops the expiry janitor.
func (mc *MemoryCache) Close() error {
	mc.janitor.Stop()
	return nil
}

var _ Service = (*MemoryCache)(nil)
