package redis

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/turtacn/occurrence-matrix/pkg/errors"
)

var (
	ErrLockNotAcquired = errors.New(errors.ErrCodeConflict, "failed to acquire lock")
	ErrLockNotHeld     = errors.New(errors.ErrCodeConflict, "lock not held by this owner")
)

type LockOption func(*lockConfig)

func WithLockTTL(ttl time.Duration) LockOption {
	return func(c *lockConfig) { c.ttl = ttl }
}

func WithRetryDelay(delay time.Duration) LockOption {
	return func(c *lockConfig) { c.retryDelay = delay }
}

func WithRetryCount(count int) LockOption {
	return func(c *lockConfig) { c.retryCount = count }
}

type lockConfig struct {
	ttl        time.Duration
	retryDelay time.Duration
	retryCount int
}

// Mutex is a single-owner lock held in one Redis key.  The builder takes one
// per (table, date) so two runs never publish the same snapshot at once.
type Mutex struct {
	client *Client
	key    string
	value  string
	config lockConfig
}

var mutexUnlockScript = redis.NewScript(`
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("DEL", KEYS[1])
	else
		return 0
	end
`)

var mutexExtendScript = redis.NewScript(`
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("PEXPIRE", KEYS[1], ARGV[2])
	else
		return 0
	end
`)

// NewMutex returns an unlocked Mutex named name.
func NewMutex(client *Client, name string, opts ...LockOption) *Mutex {
	cfg := lockConfig{
		ttl:        5 * time.Minute,
		retryDelay: 200 * time.Millisecond,
		retryCount: 1,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.retryCount < 1 {
		cfg.retryCount = 1
	}
	return &Mutex{
		client: client,
		key:    client.config.KeyPrefix + "lock:" + name,
		value:  uuid.New().String(),
		config: cfg,
	}
}

// Key returns the Redis key holding the lock.
func (m *Mutex) Key() string { return m.key }

// Lock tries to take the lock up to the configured retry count.
func (m *Mutex) Lock(ctx context.Context) error {
	for i := 0; i < m.config.retryCount; i++ {
		ok, err := m.client.SetNX(ctx, m.key, m.value, m.config.ttl).Result()
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeCacheError, "failed to set lock")
		}
		if ok {
			return nil
		}
		if i == m.config.retryCount-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(m.config.retryDelay):
		}
	}
	return ErrLockNotAcquired.WithDetail(m.key)
}

// Unlock releases the lock if this Mutex still owns it.
func (m *Mutex) Unlock(ctx context.Context) error {
	res, err := m.client.runScript(ctx, mutexUnlockScript, []string{m.key}, m.value).Int64()
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeCacheError, "failed to release lock")
	}
	if res == 0 {
		return ErrLockNotHeld.WithDetail(m.key)
	}
	return nil
}

// Extend resets the TTL if this Mutex still owns the lock.
func (m *Mutex) Extend(ctx context.Context, ttl time.Duration) (bool, error) {
	res, err := m.client.runScript(ctx, mutexExtendScript, []string{m.key}, m.value, ttl.Milliseconds()).Int64()
	if err != nil {
		return false, errors.Wrap(err, errors.ErrCodeCacheError, "failed to extend lock")
	}
	return res == 1, nil
}

// TTL returns the remaining lifetime of the lock key.
func (m *Mutex) TTL(ctx context.Context) (time.Duration, error) {
	return m.client.PTTL(ctx, m.key).Result()
}
