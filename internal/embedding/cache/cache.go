// Package cache memoizes embeddings in Redis. Concurrent misses for the
// same text share one upstream call.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"courserag/internal/embedding"
	"courserag/internal/logger"
)

const keyPrefix = "courserag:emb:"

// Embedder wraps another Embedder with a Redis lookaside cache. Redis
// failures degrade to uncached embedding.
type Embedder struct {
	next   embedding.Embedder
	client *redis.Client
	ttl    time.Duration
	group  singleflight.Group
	logger *slog.Logger
	hits   atomic.Int64
	misses atomic.Int64
}

func New(next embedding.Embedder, client *redis.Client, ttl time.Duration) *Embedder {
	return &Embedder{
		next:   next,
		client: client,
		ttl:    ttl,
		logger: logger.WithComponent("embedding-cache"),
	}
}

func (c *Embedder) Name() string   { return c.next.Name() }
func (c *Embedder) Dimension() int { return c.next.Dimension() }

func (c *Embedder) Embed(ctx context.Context, text string) ([]float64, error) {
	key := c.buildKey(text)
	if v, ok := c.get(ctx, key); ok {
		return v, nil
	}
	val, err, _ := c.group.Do(key, func() (any, error) {
		if v, ok := c.get(ctx, key); ok {
			return v, nil
		}
		v, err := c.next.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		c.set(ctx, key, v)
		return v, nil
	})
	if err != nil {
		return nil, err
	}
	return val.([]float64), nil
}

// Stats returns cumulative hit and miss counts.
func (c *Embedder) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// Invalidate drops every cached vector for this embedder.
func (c *Embedder) Invalidate(ctx context.Context) (int64, error) {
	var deleted int64
	iter := c.client.Scan(ctx, 0, c.prefix()+"*", 100).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			return deleted, fmt.Errorf("deleting key %s: %w", iter.Val(), err)
		}
		deleted++
	}
	if err := iter.Err(); err != nil {
		return deleted, fmt.Errorf("scanning cache keys: %w", err)
	}
	c.logger.Info("cache invalidated", "keys_deleted", deleted)
	return deleted, nil
}

func (c *Embedder) get(ctx context.Context, key string) ([]float64, bool) {
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Error("cache get failed", "key", key, "error", err)
		}
		c.misses.Add(1)
		return nil, false
	}
	var v []float64
	if err := json.Unmarshal(data, &v); err != nil {
		c.logger.Error("cache unmarshal failed", "key", key, "error", err)
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	return v, true
}

func (c *Embedder) set(ctx context.Context, key string, v []float64) {
	data, err := json.Marshal(v)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.logger.Error("cache set failed", "key", key, "error", err)
	}
}

func (c *Embedder) prefix() string {
	return keyPrefix + strings.ReplaceAll(c.next.Name(), ":", "_") + ":"
}

func (c *Embedder) buildKey(text string) string {
	hash := sha256.Sum256([]byte(text))
	return fmt.Sprintf("%s%x", c.prefix(), hash[:16])
}
