package collabsync

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// DistributedLock guards exclusive access to one resource id across
// processes.
type DistributedLock interface {
	// Acquire makes one attempt to take the lock, returning whether it was
	// obtained; timeout is how long the lock lasts before it expires unless
	// refreshed or released. It does not wait for a lock held by another
	// owner.
	Acquire(ctx context.Context, timeout time.Duration) (bool, error)

	// Release gives the lock back up, returning whether this owner actually
	// held it.
	Release(ctx context.Context) (bool, error)

	// Refresh resets the lock's expiry to ttl from now, returning whether
	// this owner still held it.
	Refresh(ctx context.Context, ttl time.Duration) (bool, error)
}

// DistributedLockManager hands out DistributedLock handles for resource
// ids.
type DistributedLockManager interface {
	GetLock(resourceID, ownerID string) DistributedLock
	Close() error
}

// NoOpDistributedLockManager is the default lock manager for single-process
// deployments and tests: every Acquire trivially succeeds.
type NoOpDistributedLockManager struct{}

// NewNoOpDistributedLockManager creates a lock manager that never contends.
func NewNoOpDistributedLockManager() *NoOpDistributedLockManager {
	return &NoOpDistributedLockManager{}
}

func (m *NoOpDistributedLockManager) GetLock(_, _ string) DistributedLock {
	return noOpDistributedLock{}
}

func (m *NoOpDistributedLockManager) Close() error { return nil }

type noOpDistributedLock struct{}

func (noOpDistributedLock) Acquire(context.Context, time.Duration) (bool, error) { return true, nil }
func (noOpDistributedLock) Release(context.Context) (bool, error)                { return true, nil }
func (noOpDistributedLock) Refresh(context.Context, time.Duration) (bool, error) { return true, nil }

// redisReleaseScript deletes the lock key only if it still holds this
// owner's value, so one owner can never release another's lock.
const redisReleaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end`

// redisRefreshScript extends the lock key's TTL only if it still holds this
// owner's value.
const redisRefreshScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("EXPIRE", KEYS[1], ARGV[2])
else
	return 0
end`

// RedisDistributedLockManager backs DistributedLock with Redis SETNX plus
// owner-checked Lua release/refresh scripts.
type RedisDistributedLockManager struct {
	client *redis.Client
}

// NewRedisDistributedLockManager wraps an existing Redis client for locking.
func NewRedisDistributedLockManager(client *redis.Client) *RedisDistributedLockManager {
	return &RedisDistributedLockManager{client: client}
}

func (m *RedisDistributedLockManager) GetLock(resourceID, ownerID string) DistributedLock {
	return &redisDistributedLock{
		client:     m.client,
		resourceID: resourceID,
		ownerID:    ownerID,
		lockKey:    fmt.Sprintf("collabsync:lock:%s", resourceID),
	}
}

func (m *RedisDistributedLockManager) Close() error { return nil }

type redisDistributedLock struct {
	client     *redis.Client
	resourceID string
	ownerID    string
	lockKey    string

	stopRefresh chan struct{}
}

func (l *redisDistributedLock) Acquire(ctx context.Context, timeout time.Duration) (bool, error) {
	ok, err := l.client.SetNX(ctx, l.lockKey, l.ownerID, timeout).Result()
	if err != nil {
		return false, fmt.Errorf("collabsync: acquire lock: %w", err)
	}
	if !ok {
		return false, nil
	}

	l.stopRefresh = make(chan struct{})
	l.startAutoRefresh(timeout)
	return true, nil
}

func (l *redisDistributedLock) Release(ctx context.Context) (bool, error) {
	if l.stopRefresh != nil {
		close(l.stopRefresh)
		l.stopRefresh = nil
	}

	res, err := l.client.Eval(ctx, redisReleaseScript, []string{l.lockKey}, l.ownerID).Result()
	if err != nil {
		return false, fmt.Errorf("collabsync: release lock: %w", err)
	}
	return asDeletedCount(res) > 0, nil
}

func (l *redisDistributedLock) Refresh(ctx context.Context, ttl time.Duration) (bool, error) {
	res, err := l.client.Eval(ctx, redisRefreshScript, []string{l.lockKey}, l.ownerID, int(ttl.Seconds())).Result()
	if err != nil {
		return false, fmt.Errorf("collabsync: refresh lock: %w", err)
	}
	return asDeletedCount(res) > 0, nil
}

// startAutoRefresh keeps the lock alive for the duration of a long revert,
// refreshing at a third of the TTL so a crashed holder's lock still expires
// on its own.
func (l *redisDistributedLock) startAutoRefresh(ttl time.Duration) {
	interval := ttl / 3
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	stop := l.stopRefresh

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				refreshCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				_, _ = l.Refresh(refreshCtx, ttl)
				cancel()
			}
		}
	}()
}

func asDeletedCount(res any) int64 {
	switch v := res.(type) {
	case int64:
		return v
	case int:
		return int64(v)
	default:
		return 0
	}
}
