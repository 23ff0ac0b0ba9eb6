// Package cache keeps document match results in redis.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/siegzhong-maker/knowledge/internal/domain"
)

const keyPrefix = "knowledge:match:"

// kv is the subset of the redis client the cache uses.
type kv interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
}

// MatchCache stores match results as JSON with a fixed TTL.
type MatchCache struct {
	client kv
	ttl    time.Duration
}

// NewMatchCache wraps an existing redis client.
func NewMatchCache(client kv, ttl time.Duration) *MatchCache {
	return &MatchCache{client: client, ttl: ttl}
}

// Conn opens a redis client and checks it answers PING.
func Conn(ctx context.Context, addr, password string, db int, timeout time.Duration) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:        addr,
		Password:    password,
		DB:          db,
		DialTimeout: timeout,
	})

	pong, err := client.Ping(ctx).Result()
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	if pong != "PONG" {
		client.Close()
		return nil, fmt.Errorf("expected PONG, got %s", pong)
	}
	return client, nil
}

// Get returns the cached result for key. A miss is not an error.
func (c *MatchCache) Get(ctx context.Context, key string) (domain.MatchResult, bool, error) {
	val, err := c.client.Get(ctx, keyPrefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return domain.MatchResult{}, false, nil
	}
	if err != nil {
		return domain.MatchResult{}, false, err
	}

	var result domain.MatchResult
	if err := json.Unmarshal([]byte(val), &result); err != nil {
		return domain.MatchResult{}, false, fmt.Errorf("decode cached match: %w", err)
	}
	return result, true, nil
}

// Set stores result under key for the cache TTL.
func (c *MatchCache) Set(ctx context.Context, key string, result domain.MatchResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, keyPrefix+key, data, c.ttl).Err()
}
