package shared

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RecurrenceLockKey builds the redis key guarding recurrence runs.
func RecurrenceLockKey() string {
	return "invoices:recurrence:run:lock"
}

// InvoiceSweepLockKey builds the redis key guarding the overdue sweep.
func InvoiceSweepLockKey() string {
	return "invoices:overdue:sweep:lock"
}

// ChainSyncLockKey builds the redis key guarding payment-reference syncs.
func ChainSyncLockKey() string {
	return "invoices:chain:sync:lock"
}

// ErrLockHeld is returned when another holder owns the lock.
var ErrLockHeld = errors.New("lock already held")

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RunLock is a redis mutex with an owner token and expiry.
type RunLock struct {
	client *redis.Client
	key    string
	token  string
}

// AcquireRunLock takes the lock for ttl or returns ErrLockHeld.
func AcquireRunLock(ctx context.Context, client *redis.Client, key string, ttl time.Duration) (*RunLock, error) {
	if client == nil {
		return nil, errors.New("run lock: redis client not configured")
	}
	token := uuid.NewString()
	ok, err := client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("run lock: acquire %s: %w", key, err)
	}
	if !ok {
		return nil, ErrLockHeld
	}
	return &RunLock{client: client, key: key, token: token}, nil
}

// Release drops the lock when still owned.
func (l *RunLock) Release(ctx context.Context) error {
	if l == nil {
		return nil
	}
	if err := releaseScript.Run(ctx, l.client, []string{l.key}, l.token).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("run lock: release %s: %w", l.key, err)
	}
	return nil
}
