package cache

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mdkashifakram/LLMGuardian/pkg/observability/logging"
	"github.com/mdkashifakram/LLMGuardian/pkg/observability/metrics"
)

// DefaultL2TTL is the Redis entry lifetime when none is configured.
const DefaultL2TTL = 24 * time.Hour

// clearScanCount sizes the SCAN batches used by Clear.
const clearScanCount = 200

// RedisTierOptions configures the network-backed tier.
type RedisTierOptions struct {
	Enabled   bool
	Addr      string
	Username  string
	Password  string
	DB        int
	PoolSize  int
	TTL       time.Duration
	KeyPrefix string
}

// RedisTier is the shared tier. Every operation swallows I/O errors: reads
// degrade to misses and writes to drops, so a Redis outage slows the cache
// down without ever failing a request.
type RedisTier struct {
	client    *redis.Client
	ttl       time.Duration
	keyPrefix string
	enabled   bool

	hits   int64
	misses int64
}

// NewRedisTier connects the shared tier. A disabled configuration returns an
// inert tier; an unreachable server is logged and the tier stays enabled so
// it recovers when Redis comes back.
func NewRedisTier(opts RedisTierOptions) *RedisTier {
	if !opts.Enabled {
		logging.Debugf("redis tier disabled")
		return &RedisTier{enabled: false}
	}

	if opts.TTL <= 0 {
		opts.TTL = DefaultL2TTL
	}
	if opts.KeyPrefix == "" {
		opts.KeyPrefix = DefaultKeyPrefix
	}

	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Username: opts.Username,
		Password: opts.Password,
		DB:       opts.DB,
		PoolSize: opts.PoolSize,
	})

	tier := &RedisTier{
		client:    client,
		ttl:       opts.TTL,
		keyPrefix: opts.KeyPrefix,
		enabled:   true,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		logging.Warnf("redis tier unreachable at %s, continuing degraded: %v", opts.Addr, err)
	} else {
		logging.Infof("redis tier connected to %s (db %d, ttl %s)", opts.Addr, opts.DB, opts.TTL)
	}

	return tier
}

// Enabled reports whether the tier was configured on.
func (t *RedisTier) Enabled() bool { return t.enabled }

// Get returns the cached value for key. Disabled tiers and I/O failures
// both read as misses.
func (t *RedisTier) Get(ctx context.Context, key string) (string, bool) {
	if !t.enabled {
		return "", false
	}

	value, err := t.client.Get(ctx, key).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			logging.Warnf("redis tier read failed for %s: %v", key, err)
		}
		atomic.AddInt64(&t.misses, 1)
		metrics.RecordCacheMiss(TierL2)
		return "", false
	}

	atomic.AddInt64(&t.hits, 1)
	metrics.RecordCacheHit(TierL2)
	return value, true
}

// Set stores value under key with the tier TTL. Failures are dropped.
func (t *RedisTier) Set(ctx context.Context, key, value string) {
	if !t.enabled {
		return
	}

	start := time.Now()
	status := "ok"
	if err := t.client.Set(ctx, key, value, t.ttl).Err(); err != nil {
		logging.Warnf("redis tier write failed for %s: %v", key, err)
		status = "error"
	}
	metrics.RecordCacheOperation(TierL2, "set", status, time.Since(start).Seconds())
}

// Delete removes key. Failures are dropped.
func (t *RedisTier) Delete(ctx context.Context, key string) {
	if !t.enabled {
		return
	}

	start := time.Now()
	status := "ok"
	if err := t.client.Del(ctx, key).Err(); err != nil {
		logging.Warnf("redis tier delete failed for %s: %v", key, err)
		status = "error"
	}
	metrics.RecordCacheOperation(TierL2, "delete", status, time.Since(start).Seconds())
}

// Clear removes every key under the configured prefix, scanning in batches
// so unrelated keys sharing the server are untouched.
func (t *RedisTier) Clear(ctx context.Context) {
	if !t.enabled {
		return
	}

	start := time.Now()
	status := "ok"
	pattern := t.keyPrefix + ":*"
	var cursor uint64
	removed := 0
	for {
		keys, next, err := t.client.Scan(ctx, cursor, pattern, clearScanCount).Result()
		if err != nil {
			logging.Warnf("redis tier clear scan failed: %v", err)
			status = "error"
			break
		}
		if len(keys) > 0 {
			if err := t.client.Del(ctx, keys...).Err(); err != nil {
				logging.Warnf("redis tier clear delete failed: %v", err)
				status = "error"
				break
			}
			removed += len(keys)
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	metrics.RecordCacheOperation(TierL2, "clear", status, time.Since(start).Seconds())
	logging.Debugf("redis tier cleared %d keys under %s", removed, pattern)
}

// Stats returns a snapshot of the tier counters. Size is not tracked for
// the shared tier.
func (t *RedisTier) Stats() TierStats {
	return TierStats{
		Hits:   atomic.LoadInt64(&t.hits),
		Misses: atomic.LoadInt64(&t.misses),
	}
}

// CheckConnection pings the server. Disabled tiers are always healthy.
func (t *RedisTier) CheckConnection(ctx context.Context) error {
	if !t.enabled {
		return nil
	}
	return t.client.Ping(ctx).Err()
}

// Close releases the client connection pool.
func (t *RedisTier) Close() error {
	if !t.enabled {
		return nil
	}
	return t.client.Close()
}
