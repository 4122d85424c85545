// Copyright 2025 The PinMap Authors
// SPDX-License-Identifier: Apache-2.0

package geocoding

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisTTL is how long entries live in Redis.
const DefaultRedisTTL = 30 * 24 * time.Hour

// RedisCache layers a shared Redis store behind a local cache so answers
// survive restarts and are shared between processes. Redis failures are
// logged and treated as misses.
type RedisCache struct {
	local  Cache
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewRedisCache wraps local (a MemoryCache when nil) with client.
func NewRedisCache(client redis.UniversalClient, local Cache, ttl time.Duration) *RedisCache {
	if local == nil {
		local = NewMemoryCache()
	}

	if ttl <= 0 {
		ttl = DefaultRedisTTL
	}

	return &RedisCache{local: local, client: client, prefix: "pinmap:geocode:", ttl: ttl}
}

// OpenRedis connects to the server described by a redis:// URL.
func OpenRedis(ctx context.Context, rawURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()

		return nil, fmt.Errorf("pinging redis: %w", err)
	}

	return client, nil
}

// Get implements Cache.
func (c *RedisCache) Get(ctx context.Context, key string) (*Entry, bool) {
	if e, ok := c.local.Get(ctx, key); ok {
		return e, true
	}

	s, err := c.client.Get(ctx, c.prefix+key).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.Printf("redis get %s: %v", key, err)
		}

		return nil, false
	}

	var e Entry
	if err := json.Unmarshal([]byte(s), &e); err != nil {
		log.Printf("redis entry %s: %v", key, err)

		return nil, false
	}

	c.local.Set(ctx, key, &e)

	return &e, true
}

// Set implements Cache.
func (c *RedisCache) Set(ctx context.Context, key string, e *Entry) {
	c.local.Set(ctx, key, e)

	b, err := json.Marshal(e)
	if err != nil {
		log.Printf("encoding cache entry %s: %v", key, err)

		return
	}

	if err := c.client.Set(ctx, c.prefix+key, b, c.ttl).Err(); err != nil {
		log.Printf("redis set %s: %v", key, err)
	}
}
