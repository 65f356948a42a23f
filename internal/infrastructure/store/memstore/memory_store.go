// Package memstore implements the counter store contract in process
// memory. It exists for local development and tests; production
// deployments use the Redis driver, which is the only one that gives
// cross-instance accounting.
package memstore

import (
	"context"
	"path"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/pollyhq/ratekeeper/internal/domain/service"
)

var _ service.CounterStore = (*Store)(nil)

// slidingLog is the in-memory counterpart of a Redis sorted set: request
// timestamps in milliseconds, pruned on access.
type slidingLog struct {
	times     []int64
	expiresAt time.Time
}

// Store keeps fixed-window counters in a go-cache (TTL handling for free)
// and sliding logs in a mutex-guarded map.
type Store struct {
	counters *gocache.Cache

	mu   sync.Mutex
	logs map[string]*slidingLog
}

// New creates an empty in-memory counter store.
func New() *Store {
	return &Store{
		counters: gocache.New(gocache.NoExpiration, time.Minute),
		logs:     make(map[string]*slidingLog),
	}
}

// FixedIncr implements service.CounterStore.
func (s *Store) FixedIncr(_ context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.counters.Add(key, int64(1), window); err == nil {
		return 1, window, nil
	}
	count, err := s.counters.IncrementInt64(key, 1)
	if err != nil {
		// The entry expired between Add and Increment; start a new window.
		s.counters.Set(key, int64(1), window)
		return 1, window, nil
	}
	_, expiry, _ := s.counters.GetWithExpiration(key)
	ttl := time.Until(expiry)
	if ttl < 0 {
		ttl = 0
	}
	return count, ttl, nil
}

// FixedPeek implements service.CounterStore.
func (s *Store) FixedPeek(_ context.Context, key string) (int64, time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	value, expiry, found := s.counters.GetWithExpiration(key)
	if !found {
		return 0, 0, nil
	}
	ttl := time.Until(expiry)
	if ttl < 0 {
		ttl = 0
	}
	return value.(int64), ttl, nil
}

// SlidingEval implements service.CounterStore. The whole prune/count/add
// sequence runs under one lock, mirroring the atomicity of the Redis
// script.
func (s *Store) SlidingEval(_ context.Context, key string, now time.Time, window time.Duration, limit int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	log := s.logs[key]
	if log == nil {
		log = &slidingLog{}
		s.logs[key] = log
	}

	nowMs := now.UnixMilli()
	log.prune(nowMs - window.Milliseconds())
	count := int64(len(log.times))
	if count < int64(limit) {
		log.times = append(log.times, nowMs)
		log.expiresAt = now.Add(window)
	}
	return count, nil
}

// SlidingPeek implements service.CounterStore.
func (s *Store) SlidingPeek(_ context.Context, key string, now time.Time, window time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	log := s.logs[key]
	if log == nil {
		return 0, nil
	}
	log.prune(now.UnixMilli() - window.Milliseconds())
	return int64(len(log.times)), nil
}

// Keys implements service.CounterStore with glob matching over both the
// counter cache and the sliding logs.
func (s *Store) Keys(_ context.Context, pattern string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var keys []string
	for key := range s.counters.Items() {
		if matched, _ := path.Match(pattern, key); matched {
			keys = append(keys, key)
		}
	}
	now := time.Now()
	for key, log := range s.logs {
		if len(log.times) == 0 || log.expiresAt.Before(now) {
			continue
		}
		if matched, _ := path.Match(pattern, key); matched {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

// Delete implements service.CounterStore.
func (s *Store) Delete(_ context.Context, keys ...string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var removed int64
	for _, key := range keys {
		if _, found := s.counters.Get(key); found {
			s.counters.Delete(key)
			removed++
		}
		if _, found := s.logs[key]; found {
			delete(s.logs, key)
			removed++
		}
	}
	return removed, nil
}

// Ping implements service.CounterStore.
func (s *Store) Ping(context.Context) error { return nil }

// Close implements service.CounterStore.
func (s *Store) Close() error { return nil }

// prune drops timestamps at or before cutoff (milliseconds).
func (l *slidingLog) prune(cutoff int64) {
	keep := l.times[:0]
	for _, ts := range l.times {
		if ts > cutoff {
			keep = append(keep, ts)
		}
	}
	l.times = keep
}
