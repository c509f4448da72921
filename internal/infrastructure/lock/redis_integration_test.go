//go:build integration

package lock_test

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"

	"costledger/internal/core/apperror"
	"costledger/internal/core/entity"
	"costledger/internal/core/id"
	"costledger/internal/infrastructure/lock"
)

func newRedis(t *testing.T) redis.UniversalClient {
	t.Helper()
	ctx := context.Background()

	container, err := tcredis.Run(ctx, "redis:7-alpine")
	require.NoError(t, err, "start redis container")
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	url, err := container.ConnectionString(ctx)
	require.NoError(t, err)
	opts, err := redis.ParseURL(url)
	require.NoError(t, err)

	rdb := redis.NewClient(opts)
	t.Cleanup(func() { _ = rdb.Close() })
	require.NoError(t, rdb.Ping(ctx).Err())
	return rdb
}

func newLocker(rdb redis.UniversalClient) *lock.RedisLocker {
	return lock.NewRedisLocker(rdb, lock.Options{
		TTL:     10 * time.Second,
		Retries: 2,
		Backoff: 10 * time.Millisecond,
	})
}

func scope() entity.Scope {
	return entity.Scope{ItemID: id.New(), WarehouseID: id.New()}
}

func TestRedisLocker_AcquireRelease(t *testing.T) {
	if testing.Short() {
		t.Skip("integration test")
	}
	ctx := context.Background()
	l := newLocker(newRedis(t))
	a, b := scope(), scope()

	release, err := l.Acquire(ctx, []entity.Scope{a, b, a})
	require.NoError(t, err)
	release(ctx)

	release, err = l.Acquire(ctx, []entity.Scope{b})
	require.NoError(t, err, "scope is free after release")
	release(ctx)
}

func TestRedisLocker_Contention(t *testing.T) {
	if testing.Short() {
		t.Skip("integration test")
	}
	ctx := context.Background()
	rdb := newRedis(t)
	first, second := newLocker(rdb), newLocker(rdb)
	s := scope()

	release, err := first.Acquire(ctx, []entity.Scope{s})
	require.NoError(t, err)

	_, err = second.Acquire(ctx, []entity.Scope{s})
	require.Error(t, err)
	assert.True(t, apperror.HasCode(err, apperror.CodeConcurrentModification))
	assert.True(t, apperror.IsRetryable(err))

	release(ctx)
	release2, err := second.Acquire(ctx, []entity.Scope{s})
	require.NoError(t, err)
	release2(ctx)
}

func TestRedisLocker_WaitsWithinRetries(t *testing.T) {
	if testing.Short() {
		t.Skip("integration test")
	}
	ctx := context.Background()
	rdb := newRedis(t)
	holder := newLocker(rdb)
	waiter := lock.NewRedisLocker(rdb, lock.Options{TTL: 10 * time.Second, Retries: 50, Backoff: 20 * time.Millisecond})
	s := scope()

	release, err := holder.Acquire(ctx, []entity.Scope{s})
	require.NoError(t, err)
	go func() {
		time.Sleep(100 * time.Millisecond)
		release(context.Background())
	}()

	release2, err := waiter.Acquire(ctx, []entity.Scope{s})
	require.NoError(t, err)
	release2(ctx)
}

func TestRedisLocker_FailedAcquireReleasesHeldScopes(t *testing.T) {
	if testing.Short() {
		t.Skip("integration test")
	}
	ctx := context.Background()
	rdb := newRedis(t)
	first, second := newLocker(rdb), newLocker(rdb)

	low := entity.Scope{ItemID: id.MustParse("00000000-0000-7000-8000-000000000001"), WarehouseID: id.New()}
	high := entity.Scope{ItemID: id.MustParse("00000000-0000-7000-8000-000000000002"), WarehouseID: id.New()}

	release, err := first.Acquire(ctx, []entity.Scope{high})
	require.NoError(t, err)
	defer release(ctx)

	// low is taken first, then high fails.
	_, err = second.Acquire(ctx, []entity.Scope{high, low})
	require.Error(t, err)

	releaseLow, err := first.Acquire(ctx, []entity.Scope{low})
	require.NoError(t, err, "low must not stay locked after the failed attempt")
	releaseLow(ctx)
}
