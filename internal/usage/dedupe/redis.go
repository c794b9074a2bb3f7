package dedupe

import (
	"context"
	"time"

	redis "github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "tokenledger:dedupe:"

// Redis shares processed keys between instances. Keys expire after the
// retention window.
type Redis struct {
	client    *redis.Client
	retention time.Duration
}

func NewRedis(client *redis.Client, retention time.Duration) *Redis {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &Redis{client: client, retention: retention}
}

func (r *Redis) IsNew(ctx context.Context, key string) (bool, error) {
	n, err := r.client.Exists(ctx, redisKeyPrefix+key).Result()
	if err != nil {
		return false, err
	}
	return n == 0, nil
}

func (r *Redis) MarkProcessed(ctx context.Context, key string) error {
	return r.client.SetNX(ctx, redisKeyPrefix+key, 1, r.retention).Err()
}
