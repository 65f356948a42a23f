// Package redisstore implements the counter store contract on Redis.
// Window mutations run as Lua scripts so concurrent requests from the same
// identity cannot race past a limit: the prune/count/add sequence of the
// sliding window and the increment-with-expiry of the fixed window are each
// a single atomic unit on the server.
package redisstore

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/pollyhq/ratekeeper/internal/config"
	"github.com/pollyhq/ratekeeper/internal/domain/service"
	"github.com/pollyhq/ratekeeper/pkg/errors"
	"github.com/pollyhq/ratekeeper/pkg/logger"
)

var _ service.CounterStore = (*Store)(nil)

// fixedIncrScript atomically increments a counter, arming the window TTL
// only on first creation, and reports the post-increment count with the
// remaining TTL in seconds.
var fixedIncrScript = redis.NewScript(`
local count = redis.call('INCR', KEYS[1])
if count == 1 then
    redis.call('EXPIRE', KEYS[1], ARGV[1])
end
local ttl = redis.call('TTL', KEYS[1])
return {count, ttl}
`)

// slidingEvalScript prunes timestamps at or before the window start, counts
// the survivors and adds the current request only when the count is still
// below the limit. Returns the pre-add count; a rejected request leaves the
// set untouched.
var slidingEvalScript = redis.NewScript(`
redis.call('ZREMRANGEBYSCORE', KEYS[1], 0, ARGV[1])
local count = redis.call('ZCARD', KEYS[1])
if count < tonumber(ARGV[2]) then
    redis.call('ZADD', KEYS[1], ARGV[3], ARGV[4])
    redis.call('EXPIRE', KEYS[1], ARGV[5])
end
return count
`)

// Store is the Redis-backed counter store.
type Store struct {
	client redis.UniversalClient
	log    logger.Logger
}

// New wraps an existing Redis client. Tests construct clients against
// miniredis through this path.
func New(client redis.UniversalClient, log logger.Logger) *Store {
	return &Store{client: client, log: log.WithComponent("redisstore")}
}

// Connect creates a client from configuration and verifies connectivity.
// Timeouts and retries are bounded so an unresponsive store can never hang
// a request longer than the configured timeouts allow.
func Connect(cfg config.RedisConfig, log logger.Logger) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		MaxRetries:   cfg.MaxRetries,
	})

	ctx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.ErrStoreUnavailable(err)
	}

	store := New(client, log)
	store.log.Info(context.Background(), "redis counter store connected",
		logger.String("addr", fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)),
		logger.Int("pool_size", cfg.PoolSize),
	)
	return store, nil
}

// FixedIncr implements service.CounterStore.
func (s *Store) FixedIncr(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	res, err := fixedIncrScript.Run(ctx, s.client, []string{key}, int(window/time.Second)).Result()
	if err != nil {
		return 0, 0, errors.ErrStoreUnavailable(err)
	}

	values, ok := res.([]interface{})
	if !ok || len(values) != 2 {
		return 0, 0, errors.ErrStoreUnavailable(fmt.Errorf("unexpected script result %v", res))
	}
	count := values[0].(int64)
	ttlSecs := values[1].(int64)
	if ttlSecs < 0 {
		// Key existed without an expiry; should not happen, but never
		// report a window longer than configured.
		ttlSecs = int64(window / time.Second)
	}
	return count, time.Duration(ttlSecs) * time.Second, nil
}

// FixedPeek implements service.CounterStore. It reads count and TTL in one
// pipeline without mutating the counter.
func (s *Store) FixedPeek(ctx context.Context, key string) (int64, time.Duration, error) {
	pipe := s.client.Pipeline()
	getCmd := pipe.Get(ctx, key)
	ttlCmd := pipe.TTL(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return 0, 0, errors.ErrStoreUnavailable(err)
	}

	count, err := getCmd.Int64()
	if err == redis.Nil {
		return 0, 0, nil
	}
	if err != nil {
		return 0, 0, errors.ErrStoreUnavailable(err)
	}

	ttl := ttlCmd.Val()
	if ttl < 0 {
		ttl = 0
	}
	return count, ttl, nil
}

// SlidingEval implements service.CounterStore.
func (s *Store) SlidingEval(ctx context.Context, key string, now time.Time, window time.Duration, limit int) (int64, error) {
	nowMs := now.UnixMilli()
	windowStart := nowMs - window.Milliseconds()
	member := fmt.Sprintf("%d-%s", nowMs, uuid.NewString())

	res, err := slidingEvalScript.Run(ctx, s.client, []string{key},
		windowStart, limit, nowMs, member, int(window/time.Second)).Result()
	if err != nil {
		return 0, errors.ErrStoreUnavailable(err)
	}

	count, ok := res.(int64)
	if !ok {
		return 0, errors.ErrStoreUnavailable(fmt.Errorf("unexpected script result %v", res))
	}
	return count, nil
}

// SlidingPeek implements service.CounterStore.
func (s *Store) SlidingPeek(ctx context.Context, key string, now time.Time, window time.Duration) (int64, error) {
	windowStart := now.UnixMilli() - window.Milliseconds()
	count, err := s.client.ZCount(ctx, key,
		fmt.Sprintf("(%d", windowStart), "+inf").Result()
	if err != nil {
		return 0, errors.ErrStoreUnavailable(err)
	}
	return count, nil
}

// Keys implements service.CounterStore via SCAN. Admin-only; never used on
// the request hot path.
func (s *Store) Keys(ctx context.Context, pattern string) ([]string, error) {
	var keys []string
	iter := s.client.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, errors.ErrStoreUnavailable(err)
	}
	return keys, nil
}

// Delete implements service.CounterStore.
func (s *Store) Delete(ctx context.Context, keys ...string) (int64, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	removed, err := s.client.Del(ctx, keys...).Result()
	if err != nil {
		return 0, errors.ErrStoreUnavailable(err)
	}
	return removed, nil
}

// Ping implements service.CounterStore.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return errors.ErrStoreUnavailable(err)
	}
	return nil
}

// Close releases the client connections.
func (s *Store) Close() error {
	return s.client.Close()
}
