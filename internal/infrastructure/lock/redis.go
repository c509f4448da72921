// Package lock provides a Redis ScopeLocker for deployments where transitions
// and recalculation run against a database shared with other writers that do
// not take the Postgres advisory locks.
package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"

	"costledger/internal/core/apperror"
	"costledger/internal/core/entity"
	"costledger/internal/domain/registers/stock"
	"costledger/pkg/logger"
)

const keyPrefix = "costledger:scope:"

// RedisLocker holds one redislock per (item, warehouse) scope.
type RedisLocker struct {
	client  *redislock.Client
	ttl     time.Duration
	retries int
	backoff time.Duration
}

var _ stock.ScopeLocker = (*RedisLocker)(nil)

// Options tune lock acquisition.
type Options struct {
	// TTL must exceed the longest transition or recalculation group.
	TTL time.Duration
	// Retries and Backoff bound the wait for a held scope.
	Retries int
	Backoff time.Duration
}

// NewRedisLocker creates a locker on an existing client.
func NewRedisLocker(rdb redis.UniversalClient, opts Options) *RedisLocker {
	if opts.TTL <= 0 {
		opts.TTL = time.Minute
	}
	if opts.Backoff <= 0 {
		opts.Backoff = 50 * time.Millisecond
	}
	if opts.Retries <= 0 {
		opts.Retries = 100
	}
	return &RedisLocker{
		client:  redislock.New(rdb),
		ttl:     opts.TTL,
		retries: opts.Retries,
		backoff: opts.Backoff,
	}
}

// Acquire implements stock.ScopeLocker. Scopes are taken in sorted order; on
// failure the ones already held are released.
func (l *RedisLocker) Acquire(ctx context.Context, scopes []entity.Scope) (func(context.Context), error) {
	scopes = stock.NormalizeScopes(scopes)
	held := make([]*redislock.Lock, 0, len(scopes))

	release := func(ctx context.Context) {
		for i := len(held) - 1; i >= 0; i-- {
			if err := held[i].Release(ctx); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
				logger.Warn(ctx, "release scope lock", "key", held[i].Key(), "error", err)
			}
		}
	}

	opts := &redislock.Options{
		RetryStrategy: redislock.LimitRetry(redislock.LinearBackoff(l.backoff), l.retries),
	}
	for _, scope := range scopes {
		lock, err := l.client.Obtain(ctx, keyPrefix+scope.String(), l.ttl, opts)
		if errors.Is(err, redislock.ErrNotObtained) {
			release(context.WithoutCancel(ctx))
			return nil, apperror.NewConcurrentModification("stock scope", scope.String())
		}
		if err != nil {
			release(context.WithoutCancel(ctx))
			return nil, fmt.Errorf("obtain scope lock %s: %w", scope, err)
		}
		held = append(held, lock)
	}
	return release, nil
}
