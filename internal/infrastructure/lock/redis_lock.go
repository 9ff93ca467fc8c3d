// Package lock keeps two engines from trading the same account by holding a
// Redis key for as long as the process runs.
package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/bimaindrawans/binance-algo/internal/domain"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const unlockLua = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('DEL', KEYS[1])
end
return 0
`

const refreshLua = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('PEXPIRE', KEYS[1], ARGV[2])
end
return 0
`

type Config struct {
	Addr     string
	Password string
	DB       int
}

type RedisLock struct {
	rdb       *redis.Client
	unlockSc  *redis.Script
	refreshSc *redis.Script
	logger    *zap.Logger
}

// NewRedisLock connects and pings the server.
func NewRedisLock(ctx context.Context, cfg Config, logger *zap.Logger) (*RedisLock, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}
	return &RedisLock{
		rdb:       rdb,
		unlockSc:  redis.NewScript(unlockLua),
		refreshSc: redis.NewScript(refreshLua),
		logger:    logger.With(zap.String("component", "instance_lock")),
	}, nil
}

func (l *RedisLock) Close() error {
	return l.rdb.Close()
}

func lockKey(key string) string {
	return "lock:" + key
}

// Acquire returns domain.ErrLockHeld when another holder owns key. The
// returned unlock func only deletes the key if it still carries our token
// and is safe to call more than once.
func (l *RedisLock) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	lease, err := l.AcquireLease(ctx, key, ttl)
	if err != nil {
		return nil, err
	}
	return lease.Release, nil
}

// Lease is a held lock that Keep extends until its context ends.
type Lease struct {
	lock     *RedisLock
	key      string
	token    string
	ttl      time.Duration
	released bool
}

func (l *RedisLock) AcquireLease(ctx context.Context, key string, ttl time.Duration) (*Lease, error) {
	token := uuid.New().String()

	ok, err := l.rdb.SetNX(ctx, lockKey(key), token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, domain.ErrLockHeld
	}
	l.logger.Info("Instance lock acquired", zap.String("key", key), zap.Duration("ttl", ttl))
	return &Lease{lock: l, key: key, token: token, ttl: ttl}, nil
}

func (le *Lease) Release() {
	if le.released {
		return
	}
	le.released = true

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = le.lock.unlockSc.Run(ctx, le.lock.rdb, []string{lockKey(le.key)}, le.token).Err()
}

// Keep extends the TTL every ttl/3 until ctx is cancelled, then releases the
// lease. It returns an error if the key was taken over or expired.
func (le *Lease) Keep(ctx context.Context) error {
	defer le.Release()

	ticker := time.NewTicker(le.ttl / 3)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			n, err := le.lock.refreshSc.Run(ctx, le.lock.rdb, []string{lockKey(le.key)}, le.token, le.ttl.Milliseconds()).Int64()
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				le.lock.logger.Warn("Lock refresh failed", zap.Error(err))
				continue
			}
			if n == 0 {
				return fmt.Errorf("instance lock %s lost", le.key)
			}
		}
	}
}

// Hold acquires key and keeps it until ctx is cancelled.
func (l *RedisLock) Hold(ctx context.Context, key string, ttl time.Duration) error {
	lease, err := l.AcquireLease(ctx, key, ttl)
	if err != nil {
		return err
	}
	return lease.Keep(ctx)
}

var _ domain.InstanceLock = (*RedisLock)(nil)
