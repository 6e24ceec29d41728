package view

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dukex/stepwise/pkg/models"
	"github.com/redis/go-redis/v9"
)

// Key identifies a composed view.
type Key struct {
	Model string
	Field string
	Step  string
}

// Cache stores composed views. Implementations must be safe for concurrent use.
type Cache interface {
	Get(ctx context.Context, key Key) (*models.ViewDocument, bool, error)
	Set(ctx context.Context, key Key, document *models.ViewDocument) error
	// Invalidate drops every view of the (model, field) process.
	Invalidate(ctx context.Context, model, field string) error
}

// MemoryCache is a process local Cache.
type MemoryCache struct {
	mu        sync.RWMutex
	documents map[Key]*models.ViewDocument
}

// NewMemoryCache creates an empty in-memory cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{documents: make(map[Key]*models.ViewDocument)}
}

func (c *MemoryCache) Get(_ context.Context, key Key) (*models.ViewDocument, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	document, ok := c.documents[key]

	return document, ok, nil
}

func (c *MemoryCache) Set(_ context.Context, key Key, document *models.ViewDocument) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.documents[key] = document

	return nil
}

func (c *MemoryCache) Invalidate(_ context.Context, model, field string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key := range c.documents {
		if key.Model == model && key.Field == field {
			delete(c.documents, key)
		}
	}

	return nil
}

const redisKeyPrefix = "stepwise:view:"

// RedisCache shares composed views between API instances.
type RedisCache struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewRedisCache creates a cache on client. A zero ttl keeps entries until
// they are invalidated.
func NewRedisCache(client redis.UniversalClient, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl}
}

func (c *RedisCache) Get(ctx context.Context, key Key) (*models.ViewDocument, bool, error) {
	payload, err := c.client.Get(ctx, redisKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}

		return nil, false, fmt.Errorf("failed to read cached view: %w", err)
	}

	var document models.ViewDocument

	if err := json.Unmarshal(payload, &document); err != nil {
		return nil, false, fmt.Errorf("failed to decode cached view: %w", err)
	}

	return &document, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key Key, document *models.ViewDocument) error {
	payload, err := json.Marshal(document)
	if err != nil {
		return fmt.Errorf("failed to encode view: %w", err)
	}

	err = c.client.Set(ctx, redisKey(key), payload, c.ttl).Err()
	if err != nil {
		return fmt.Errorf("failed to cache view: %w", err)
	}

	return nil
}

func (c *RedisCache) Invalidate(ctx context.Context, model, field string) error {
	pattern := redisKeyPrefix + escapeKey(model) + ":" + escapeKey(field) + ":*"
	iter := c.client.Scan(ctx, 0, pattern, 100).Iterator()

	keys := make([]string, 0)
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}

	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to scan cached views: %w", err)
	}

	if len(keys) == 0 {
		return nil
	}

	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to drop cached views: %w", err)
	}

	return nil
}

var keyEscaper = strings.NewReplacer(":", "%3A", "*", "%2A", "?", "%3F", "[", "%5B", "]", "%5D", `\`, "%5C")

// escapeKey keeps model and field names from acting as separators or glob
// characters in SCAN patterns.
func escapeKey(part string) string {
	return keyEscaper.Replace(part)
}

func redisKey(key Key) string {
	return redisKeyPrefix + escapeKey(key.Model) + ":" + escapeKey(key.Field) + ":" + escapeKey(key.Step)
}
