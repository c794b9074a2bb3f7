package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/tokenledger/internal/config"
	"github.com/smallbiznis/tokenledger/internal/observability/metrics"
	"go.uber.org/fx"
)

const (
	keyUsageIngestUser = "tokenledger:usage:ingest:user:%s"

	EndpointUsageIngest = "usage_ingest"
)

// UsageIngestLimiter caps how fast one user's usage reports are accepted.
type UsageIngestLimiter struct {
	bucket  *TokenBucket
	policy  BucketPolicy
	metrics *metrics.Metrics
}

type UsageIngestParams struct {
	fx.In

	Config  config.Config
	Redis   *redis.Client    `optional:"true"`
	Metrics *metrics.Metrics `optional:"true"`
}

// NewUsageIngestLimiter returns nil when rate limiting is disabled.
func NewUsageIngestLimiter(p UsageIngestParams) (*UsageIngestLimiter, error) {
	limitCfg := p.Config.RateLimit
	if !limitCfg.Enabled {
		return nil, nil
	}
	if p.Redis == nil {
		return nil, errors.New("rate limit requires REDIS_ADDR")
	}
	if limitCfg.UsageIngestUserRate <= 0 || limitCfg.UsageIngestUserBurst <= 0 {
		return nil, errors.New("usage ingest user rate limit must be positive")
	}

	return &UsageIngestLimiter{
		bucket:  NewTokenBucket(p.Redis),
		policy:  BucketPolicy{Rate: limitCfg.UsageIngestUserRate, Burst: limitCfg.UsageIngestUserBurst},
		metrics: p.Metrics,
	}, nil
}

func (l *UsageIngestLimiter) Enabled() bool {
	return l != nil && l.bucket != nil
}

// AllowUser takes one token from the user's ingest bucket.
func (l *UsageIngestLimiter) AllowUser(ctx context.Context, userID string) (Decision, error) {
	if !l.Enabled() {
		return Decision{Allowed: true}, nil
	}
	res, err := l.bucket.Take(ctx, fmt.Sprintf(keyUsageIngestUser, strings.TrimSpace(userID)), l.policy)
	if err != nil {
		l.metrics.RecordRateLimitDenied(ctx, EndpointUsageIngest, "error")
		return res, err
	}
	if res.Allowed {
		l.metrics.RecordRateLimitAllowed(ctx, EndpointUsageIngest)
	} else {
		l.metrics.RecordRateLimitDenied(ctx, EndpointUsageIngest, "user_limit")
	}
	return res, nil
}
