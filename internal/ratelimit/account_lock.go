package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/tokenledger/internal/config"
	"github.com/smallbiznis/tokenledger/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	keyAccountLock   = "tokenledger:account:lock:%s"
	lockPollInterval = 25 * time.Millisecond
	releaseTimeout   = 2 * time.Second
)

// AccountLocker serializes balance mutations for one user.
type AccountLocker interface {
	// Lock blocks until the account is held or the wait budget runs out.
	// Timeouts wrap metrics.ErrLockContention.
	Lock(ctx context.Context, userID string) (unlock func(), err error)
}

type AccountLockerParams struct {
	fx.In

	Config config.Config
	Log    *zap.Logger
	Redis  *redis.Client          `optional:"true"`
	Worker *metrics.WorkerMetrics `optional:"true"`
}

func NewAccountLocker(p AccountLockerParams) (AccountLocker, error) {
	switch p.Config.Lock.Backend {
	case config.BackendRedis:
		if p.Redis == nil {
			return nil, errors.New("account lock backend redis requires REDIS_ADDR")
		}
		p.Log.Named("account.lock").Info("using redis account lock")
		return NewRedisAccountLocker(NewLocker(p.Redis), p.Config.Lock.TTL, p.Config.Lock.Wait, p.Worker), nil
	default:
		return NewLocalAccountLocker(p.Config.Lock.Wait, p.Worker), nil
	}
}

type keyedLock struct {
	ch   chan struct{}
	refs int
}

// LocalAccountLocker is a keyed mutex for single-instance deployments.
type LocalAccountLocker struct {
	mu      sync.Mutex
	locks   map[string]*keyedLock
	wait    time.Duration
	metrics *metrics.WorkerMetrics
}

func NewLocalAccountLocker(wait time.Duration, m *metrics.WorkerMetrics) *LocalAccountLocker {
	return &LocalAccountLocker{
		locks:   make(map[string]*keyedLock),
		wait:    wait,
		metrics: m,
	}
}

func (l *LocalAccountLocker) Lock(ctx context.Context, userID string) (func(), error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, errors.New("lock key is empty")
	}
	start := time.Now()

	l.mu.Lock()
	k := l.locks[userID]
	if k == nil {
		k = &keyedLock{ch: make(chan struct{}, 1)}
		l.locks[userID] = k
	}
	k.refs++
	l.mu.Unlock()

	waitCtx := ctx
	if l.wait > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, l.wait)
		defer cancel()
	}

	select {
	case k.ch <- struct{}{}:
		l.metrics.ObserveLockWait(metrics.LockResourceAccount, time.Since(start))
		var once sync.Once
		return func() {
			once.Do(func() {
				<-k.ch
				l.release(userID, k)
			})
		}, nil
	case <-waitCtx.Done():
		l.release(userID, k)
		l.metrics.ObserveLockWait(metrics.LockResourceAccount, time.Since(start))
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("account %s: %w", userID, metrics.ErrLockContention)
	}
}

// Held reports the number of accounts with a holder or waiter.
func (l *LocalAccountLocker) Held() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}

func (l *LocalAccountLocker) release(userID string, k *keyedLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	k.refs--
	if k.refs == 0 {
		delete(l.locks, userID)
	}
}

// RedisAccountLocker holds a SET NX PX lease per account so several
// instances can share one database.
type RedisAccountLocker struct {
	locker  *Locker
	ttl     time.Duration
	wait    time.Duration
	metrics *metrics.WorkerMetrics
}

func NewRedisAccountLocker(locker *Locker, ttl, wait time.Duration, m *metrics.WorkerMetrics) *RedisAccountLocker {
	return &RedisAccountLocker{locker: locker, ttl: ttl, wait: wait, metrics: m}
}

func (l *RedisAccountLocker) Lock(ctx context.Context, userID string) (func(), error) {
	userID = strings.TrimSpace(userID)
	key := fmt.Sprintf(keyAccountLock, userID)
	start := time.Now()
	deadline := start.Add(l.wait)

	for {
		lease, ok, err := l.locker.Acquire(ctx, key, l.ttl)
		if err != nil {
			return nil, err
		}
		if ok {
			l.metrics.ObserveLockWait(metrics.LockResourceAccount, time.Since(start))
			var once sync.Once
			return func() {
				once.Do(func() {
					releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
					defer cancel()
					_ = l.locker.Release(releaseCtx, lease)
				})
			}, nil
		}
		if !time.Now().Before(deadline) {
			l.metrics.ObserveLockWait(metrics.LockResourceAccount, time.Since(start))
			return nil, fmt.Errorf("account %s: %w", userID, metrics.ErrLockContention)
		}

		timer := time.NewTimer(lockPollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}
