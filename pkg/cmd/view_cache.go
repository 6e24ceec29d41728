package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/dukex/stepwise/pkg/view"
	"github.com/redis/go-redis/v9"
)

// NewViewCache returns a Redis backed cache when redisURL is set, an
// in-memory one otherwise. The returned close function releases the client.
func NewViewCache(ctx context.Context, redisURL string, ttl time.Duration) (view.Cache, func() error, error) {
	if redisURL == "" {
		return view.NewMemoryCache(), func() error { return nil }, nil
	}

	options, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid redis url: %w", err)
	}

	client := redis.NewClient(options)

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()

		return nil, nil, fmt.Errorf("failed to reach redis: %w", err)
	}

	return view.NewRedisCache(client, ttl), client.Close, nil
}
