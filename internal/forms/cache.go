package forms

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"admissions-forms/internal/models"

	"github.com/redis/go-redis/v9"
)

var ErrCacheMiss = errors.New("cache miss")

// Cache holds recently served forms keyed by slug.
type Cache interface {
	Get(ctx context.Context, slug string) (*models.FormDefinition, error)
	Set(ctx context.Context, f *models.FormDefinition) error
	Invalidate(ctx context.Context, slugs ...string) error
}

const cacheKeyPrefix = "forms:slug:"

type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl}
}

func cacheKey(slug string) string {
	return cacheKeyPrefix + slug
}

func (c *RedisCache) Get(ctx context.Context, slug string) (*models.FormDefinition, error) {
	raw, err := c.client.Get(ctx, cacheKey(slug)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}
	var f models.FormDefinition
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("decode cached form: %w", err)
	}
	return &f, nil
}

func (c *RedisCache) Set(ctx context.Context, f *models.FormDefinition) error {
	raw, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("encode form: %w", err)
	}
	if err := c.client.Set(ctx, cacheKey(f.Slug), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (c *RedisCache) Invalidate(ctx context.Context, slugs ...string) error {
	if len(slugs) == 0 {
		return nil
	}
	keys := make([]string, len(slugs))
	for i, s := range slugs {
		keys[i] = cacheKey(s)
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}
