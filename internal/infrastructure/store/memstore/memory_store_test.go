package memstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFixedIncrCounts(t *testing.T) {
	store := New()
	ctx := context.Background()

	for want := int64(1); want <= 3; want++ {
		count, ttl, err := store.FixedIncr(ctx, "ratelimit:test:k", time.Minute)
		require.NoError(t, err)
		assert.Equal(t, want, count)
		assert.Greater(t, ttl, time.Duration(0))
	}
}

func TestFixedPeekDoesNotMutate(t *testing.T) {
	store := New()
	ctx := context.Background()

	count, _, err := store.FixedPeek(ctx, "missing")
	require.NoError(t, err)
	assert.Zero(t, count)

	_, _, err = store.FixedIncr(ctx, "ratelimit:test:k", time.Minute)
	require.NoError(t, err)

	count, _, err = store.FixedPeek(ctx, "ratelimit:test:k")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestSlidingEvalNonConsumption(t *testing.T) {
	store := New()
	ctx := context.Background()
	now := time.Now()

	for i := int64(0); i < 2; i++ {
		before, err := store.SlidingEval(ctx, "sliding:test:k", now, time.Minute, 2)
		require.NoError(t, err)
		assert.Equal(t, i, before)
	}
	for i := 0; i < 4; i++ {
		before, err := store.SlidingEval(ctx, "sliding:test:k", now, time.Minute, 2)
		require.NoError(t, err)
		assert.Equal(t, int64(2), before)
	}

	count, err := store.SlidingPeek(ctx, "sliding:test:k", now, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func TestSlidingWindowSlides(t *testing.T) {
	store := New()
	ctx := context.Background()
	start := time.Now()

	_, err := store.SlidingEval(ctx, "sliding:test:k", start, time.Minute, 5)
	require.NoError(t, err)

	before, err := store.SlidingEval(ctx, "sliding:test:k", start.Add(61*time.Second), time.Minute, 5)
	require.NoError(t, err)
	assert.Zero(t, before)
}

func TestKeysMatchesBothStructures(t *testing.T) {
	store := New()
	ctx := context.Background()
	now := time.Now()

	_, _, err := store.FixedIncr(ctx, "ratelimit:polls:create:ip:1.2.3.4", time.Minute)
	require.NoError(t, err)
	_, err = store.SlidingEval(ctx, "sliding:polls:vote:ip:1.2.3.4", now, time.Minute, 5)
	require.NoError(t, err)
	_, err = store.SlidingEval(ctx, "sliding:polls:vote:ip:9.9.9.9", now, time.Minute, 5)
	require.NoError(t, err)

	keys, err := store.Keys(ctx, "*1.2.3.4*")
	require.NoError(t, err)
	assert.Len(t, keys, 2)
}

func TestDeleteRemovesCounters(t *testing.T) {
	store := New()
	ctx := context.Background()
	now := time.Now()

	_, _, err := store.FixedIncr(ctx, "ratelimit:k", time.Minute)
	require.NoError(t, err)
	_, err = store.SlidingEval(ctx, "sliding:k", now, time.Minute, 5)
	require.NoError(t, err)

	removed, err := store.Delete(ctx, "ratelimit:k", "sliding:k", "absent")
	require.NoError(t, err)
	assert.Equal(t, int64(2), removed)

	count, _, err := store.FixedPeek(ctx, "ratelimit:k")
	require.NoError(t, err)
	assert.Zero(t, count)
}
