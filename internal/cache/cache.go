// Package cache keeps recent source fetch results in Redis so repeated
// searches within the TTL do not hit the source again.
package cache

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/FranksOps/painminer/internal/metrics"
	"github.com/FranksOps/painminer/internal/scraper"
	"github.com/redis/go-redis/v9"
)

// DefaultTTL is used when NewFetcher is given a non-positive ttl.
const DefaultTTL = 30 * time.Minute

// Source is the fetch operation being cached.
type Source interface {
	Fetch(ctx context.Context, source, query string) []scraper.RawPost
}

// NewRedisClient parses redisURL and verifies connectivity.
func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("redis.ParseURL(%q): %w", redisURL, err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return client, nil
}

// Key returns the Redis key for a (source, query) pair.
func Key(source, query string) string {
	sum := sha1.Sum([]byte(query))
	return "painminer:fetch:" + source + ":" + hex.EncodeToString(sum[:])
}

// Fetcher decorates a Source with a Redis read-through cache. Redis errors
// are logged and never fail a fetch.
type Fetcher struct {
	next   Source
	rdb    redis.Cmdable
	ttl    time.Duration
	logger *slog.Logger
}

func NewFetcher(next Source, rdb redis.Cmdable, ttl time.Duration, logger *slog.Logger) *Fetcher {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Fetcher{next: next, rdb: rdb, ttl: ttl, logger: logger}
}

func (f *Fetcher) Fetch(ctx context.Context, source, query string) []scraper.RawPost {
	key := Key(source, query)

	raw, err := f.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var posts []scraper.RawPost
		if err := json.Unmarshal(raw, &posts); err == nil {
			metrics.CacheLookupsTotal.WithLabelValues("hit").Inc()
			metrics.RecordFetch(source, metrics.OutcomeCacheHit, len(posts), 0)
			return posts
		}
		f.logger.Warn("discarding corrupt cache entry", "key", key)
		metrics.CacheLookupsTotal.WithLabelValues("error").Inc()
	case errors.Is(err, redis.Nil):
		metrics.CacheLookupsTotal.WithLabelValues("miss").Inc()
	default:
		f.logger.Warn("cache lookup failed", "key", key, "error", err)
		metrics.CacheLookupsTotal.WithLabelValues("error").Inc()
	}

	posts := f.next.Fetch(ctx, source, query)
	if len(posts) == 0 {
		return posts
	}

	data, err := json.Marshal(posts)
	if err != nil {
		f.logger.Warn("cache encode failed", "key", key, "error", err)
		return posts
	}
	if err := f.rdb.Set(ctx, key, data, f.ttl).Err(); err != nil {
		f.logger.Warn("cache store failed", "key", key, "error", err)
	}
	return posts
}
