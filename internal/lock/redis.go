package lock

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"courserag/internal/logger"
)

const lockPrefix = "courserag:lock:"

var ErrNotHeld = errors.New("lock not held by this instance")

// Redis is a distributed Locker using SETNX with a TTL. Each instance has a
// unique owner ID so it can only release or extend its own locks.
type Redis struct {
	client       *redis.Client
	ownerID      string
	ttl          time.Duration
	pollInterval time.Duration
}

func NewRedis(client *redis.Client, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &Redis{
		client:       client,
		ownerID:      generateOwnerID(),
		ttl:          ttl,
		pollInterval: 50 * time.Millisecond,
	}
}

// generateOwnerID creates a unique identifier for this lock holder.
// Format: hostname:pid:uuid
func generateOwnerID() string {
	hostname, _ := os.Hostname()
	return fmt.Sprintf("%s:%d:%s", hostname, os.Getpid(), uuid.NewString())
}

func (l *Redis) OwnerID() string { return l.ownerID }

// Acquire tries once. It reports false when another owner holds the lock.
func (l *Redis) Acquire(ctx context.Context, name string) (bool, error) {
	ok, err := l.client.SetNX(ctx, lockPrefix+name, l.ownerID, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire lock %s: %w", name, err)
	}
	return ok, nil
}

var releaseScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`)

// Release is safe to call when the lock has expired or is held by another
// owner; neither is touched.
func (l *Redis) Release(ctx context.Context, name string) error {
	_, err := releaseScript.Run(ctx, l.client, []string{lockPrefix + name}, l.ownerID).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release lock %s: %w", name, err)
	}
	return nil
}

var extendScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("pexpire", KEYS[1], ARGV[2])
	else
		return 0
	end
`)

func (l *Redis) Extend(ctx context.Context, name string) error {
	res, err := extendScript.Run(ctx, l.client, []string{lockPrefix + name}, l.ownerID, l.ttl.Milliseconds()).Int64()
	if err != nil {
		return fmt.Errorf("extend lock %s: %w", name, err)
	}
	if res == 0 {
		return fmt.Errorf("%w: %s", ErrNotHeld, name)
	}
	return nil
}

// Lock polls until the lock is acquired or ctx is done. The TTL is renewed
// while the lock is held. Release errors in the returned function are
// ignored; the TTL frees the key regardless.
func (l *Redis) Lock(ctx context.Context, key string) (func(), error) {
	ticker := time.NewTicker(l.pollInterval)
	defer ticker.Stop()
	for {
		ok, err := l.Acquire(ctx, key)
		if err != nil {
			return nil, err
		}
		if ok {
			stop := make(chan struct{})
			done := make(chan struct{})
			go func() {
				defer close(done)
				l.keepAlive(key, stop)
			}()
			var once sync.Once
			return func() {
				once.Do(func() {
					close(stop)
					<-done
					ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					_ = l.Release(ctx, key)
				})
			}, nil
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return nil, fmt.Errorf("waiting for lock %s: %w", key, ctx.Err())
		}
	}
}

// keepAlive extends key every third of the TTL until stop is closed or the
// lock is lost.
func (l *Redis) keepAlive(key string, stop <-chan struct{}) {
	ticker := time.NewTicker(max(l.ttl/3, time.Millisecond))
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}
		ctx, cancel := context.WithTimeout(context.Background(), l.ttl/3+time.Second)
		err := l.Extend(ctx, key)
		cancel()
		if errors.Is(err, ErrNotHeld) {
			logger.WithComponent("lock").Warn("lock lost while held", "key", key)
			return
		}
		if err != nil {
			logger.WithComponent("lock").Warn("renewing lock", "key", key, "error", err)
		}
	}
}
