package shared

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestRunLockExcludesSecondHolder(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	ctx := context.Background()

	first, err := AcquireRunLock(ctx, client, RecurrenceLockKey(), time.Minute)
	require.NoError(t, err)

	_, err = AcquireRunLock(ctx, client, RecurrenceLockKey(), time.Minute)
	require.ErrorIs(t, err, ErrLockHeld)

	require.NoError(t, first.Release(ctx))

	second, err := AcquireRunLock(ctx, client, RecurrenceLockKey(), time.Minute)
	require.NoError(t, err)
	require.NoError(t, second.Release(ctx))
}

func TestRunLockReleaseKeepsForeignOwner(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	ctx := context.Background()

	stale, err := AcquireRunLock(ctx, client, ChainSyncLockKey(), time.Second)
	require.NoError(t, err)
	mr.FastForward(2 * time.Second)

	fresh, err := AcquireRunLock(ctx, client, ChainSyncLockKey(), time.Minute)
	require.NoError(t, err)

	require.NoError(t, stale.Release(ctx))
	require.True(t, mr.Exists(ChainSyncLockKey()))
	require.NoError(t, fresh.Release(ctx))
	require.False(t, mr.Exists(ChainSyncLockKey()))
}
