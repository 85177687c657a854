package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrMiss is returned by Get when the key does not exist.
var ErrMiss = errors.New("cache miss")

// Cache is a namespaced string key/value view over a Redis client. The
// client is resolved on every call so a reconnected client is picked up.
type Cache struct {
	client    func() redis.UniversalClient
	Namespace string
}

// Get value from Redis
func (c *Cache) Get(ctx context.Context, key string) (string, error) {
	val, err := c.client().Get(ctx, c.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrMiss
	}
	return val, err
}

// Store data to Redis. A zero ttl keeps the key forever.
func (c *Cache) Store(ctx context.Context, key string, ttl time.Duration, value interface{}) error {
	return c.client().Set(ctx, c.key(key), value, ttl).Err()
}

func (c *Cache) Flush(ctx context.Context) error {
	keys, err := c.client().Keys(ctx, c.Namespace+":*").Result()
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	//using pipeline to delete keys efficiently
	pl := c.client().Pipeline()

	for _, key := range keys {
		pl.Del(ctx, key)
	}

	_, err = pl.Exec(ctx)
	return err
}

// Delete key from Redis
func (c *Cache) Remove(ctx context.Context, key string) error {
	return c.client().Del(ctx, c.key(key)).Err()
}

func (c *Cache) Ping(ctx context.Context) error {
	return c.client().Ping(ctx).Err()
}

func (c *Cache) key(k string) string {
	return c.Namespace + ":" + k
}

func NewCache(namespace string, client func() redis.UniversalClient) *Cache {
	return &Cache{
		Namespace: namespace,
		client:    client,
	}
}

// Static adapts a fixed client for NewCache.
func Static(rc redis.UniversalClient) func() redis.UniversalClient {
	return func() redis.UniversalClient { return rc }
}
