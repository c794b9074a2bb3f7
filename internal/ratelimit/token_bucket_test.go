package ratelimit

import (
	"context"
	"math"
	"os"
	"testing"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBucketPolicy(t *testing.T) {
	assert.NoError(t, BucketPolicy{Rate: 20, Burst: 40}.validate())
	assert.ErrorIs(t, BucketPolicy{Rate: 0, Burst: 40}.validate(), ErrInvalidPolicy)
	assert.ErrorIs(t, BucketPolicy{Rate: 1, Burst: 0}.validate(), ErrInvalidPolicy)
	assert.ErrorIs(t, BucketPolicy{Rate: math.Inf(1), Burst: 1}.validate(), ErrInvalidPolicy)

	assert.Equal(t, 4*time.Second, BucketPolicy{Rate: 20, Burst: 40}.idleTTL())
	assert.Equal(t, time.Second, BucketPolicy{Rate: 1000, Burst: 1}.idleTTL())
}

func TestTakeRejectsBadInput(t *testing.T) {
	var unset *TokenBucket
	d, err := unset.Take(context.Background(), "k", BucketPolicy{Rate: 1, Burst: 5})
	assert.ErrorIs(t, err, ErrLimiterUnconfigured)
	assert.False(t, d.Allowed)
	assert.Equal(t, 5, d.Limit)

	assert.Nil(t, NewTokenBucket(nil))
}

func TestReplyNumber(t *testing.T) {
	assert.Equal(t, float64(3), replyNumber(int64(3)))
	assert.Equal(t, 12.5, replyNumber("12.5"))
	assert.Zero(t, replyNumber("nan-ish"))
	assert.Zero(t, replyNumber(nil))
}

// Runs against a real redis when REDIS_ADDR is set.
func TestRedisBucketDrainsAndRefuses(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()

	bucket := NewTokenBucket(client)
	key := "bucket-test-" + time.Now().Format("150405.000000")
	policy := BucketPolicy{Rate: 0.5, Burst: 2}

	for i := 0; i < 2; i++ {
		d, err := bucket.Take(context.Background(), key, policy)
		require.NoError(t, err)
		assert.True(t, d.Allowed)
	}
	d, err := bucket.Take(context.Background(), key, policy)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Zero(t, d.Remaining)
	assert.Greater(t, d.RetryAfter, time.Duration(0))
}
