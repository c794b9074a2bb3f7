package ratelimit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

// releaseLeaseScript deletes the key only while it still holds the lease token,
// so a lease that expired and was taken by another instance is left alone.
var releaseLeaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

var (
	errLockNotConfigured = errors.New("lock client not configured")
	errEmptyLockKey      = errors.New("lock key is empty")
	errInvalidLeaseTTL   = errors.New("lock ttl must be positive")
)

// Locker hands out redis leases keyed by resource.
type Locker struct {
	client *redis.Client
}

// Lease is a held lock. The token proves ownership on release.
type Lease struct {
	Key   string
	Token string
}

func NewLocker(client *redis.Client) *Locker {
	if client == nil {
		return nil
	}
	return &Locker{client: client}
}

// Acquire makes one SET NX PX attempt. It reports false without error when
// another holder has the key.
func (l *Locker) Acquire(ctx context.Context, key string, ttl time.Duration) (Lease, bool, error) {
	if l == nil || l.client == nil {
		return Lease{}, false, errLockNotConfigured
	}
	if key == "" {
		return Lease{}, false, errEmptyLockKey
	}
	if ttl <= 0 {
		return Lease{}, false, errInvalidLeaseTTL
	}

	lease := Lease{Key: key, Token: uuid.NewString()}
	ok, err := l.client.SetNX(ctx, key, lease.Token, ttl).Result()
	if err != nil || !ok {
		return Lease{}, false, err
	}
	return lease, true, nil
}

func (l *Locker) Release(ctx context.Context, lease Lease) error {
	if l == nil || l.client == nil || lease.Key == "" || lease.Token == "" {
		return nil
	}
	return releaseLeaseScript.Run(ctx, l.client, []string{lease.Key}, lease.Token).Err()
}
