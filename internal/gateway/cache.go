package gateway

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// TextCache stores card text. Cards never change once printed, so
// entries only expire to bound memory.
type TextCache interface {
	Get(ctx context.Context, cardID string) (string, bool, error)
	Set(ctx context.Context, cardID, text string) error
}

// CardTextCache wraps a Gateway so card text lookups hit the cache first
// and concurrent misses for the same card share one fetch.
type CardTextCache struct {
	Gateway
	cache  TextCache
	group  singleflight.Group
	logger *zap.Logger
}

func NewCardTextCache(next Gateway, cache TextCache, logger *zap.Logger) *CardTextCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CardTextCache{Gateway: next, cache: cache, logger: logger}
}

type textResult struct {
	text  string
	found bool
}

func (c *CardTextCache) FetchCardText(ctx context.Context, cardID string) (string, bool, error) {
	text, ok, err := c.cache.Get(ctx, cardID)
	if err != nil {
		c.logger.Warn("card cache read failed", zap.String("card_id", cardID), zap.Error(err))
	}
	if ok {
		return text, true, nil
	}

	v, err, _ := c.group.Do(cardID, func() (any, error) {
		text, found, err := c.Gateway.FetchCardText(ctx, cardID)
		if err != nil {
			return nil, err
		}
		if found {
			if err := c.cache.Set(ctx, cardID, text); err != nil {
				c.logger.Warn("card cache write failed", zap.String("card_id", cardID), zap.Error(err))
			}
		}
		return textResult{text: text, found: found}, nil
	})
	if err != nil {
		return "", false, err
	}
	r := v.(textResult)
	return r.text, r.found, nil
}

type RedisTextCache struct {
	client *redis.Client
	ttl    time.Duration
}

const keyCardText = "card-text-"

func NewRedisTextCache(addr, password string, db int, ttl time.Duration) *RedisTextCache {
	return &RedisTextCache{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
			DB:       db,
		}),
		ttl: ttl,
	}
}

func (r *RedisTextCache) Get(ctx context.Context, cardID string) (string, bool, error) {
	text, err := r.client.Get(ctx, keyCardText+cardID).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return text, true, nil
}

func (r *RedisTextCache) Set(ctx context.Context, cardID, text string) error {
	return r.client.Set(ctx, keyCardText+cardID, text, r.ttl).Err()
}

func (r *RedisTextCache) Close() error { return r.client.Close() }

// MemoryTextCache is used when no redis is configured.
type MemoryTextCache struct {
	mu    sync.RWMutex
	texts map[string]string
}

func NewMemoryTextCache() *MemoryTextCache {
	return &MemoryTextCache{texts: make(map[string]string)}
}

func (m *MemoryTextCache) Get(_ context.Context, cardID string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	text, ok := m.texts[cardID]
	return text, ok, nil
}

func (m *MemoryTextCache) Set(_ context.Context, cardID, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.texts[cardID] = text
	return nil
}
