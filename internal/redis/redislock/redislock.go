// Package redislock is a single-key Redis mutex with an owner token, used to
// keep periodic jobs to one instance at a time.
package redislock

import (
	"context"
	"time"

	"bidledger/internal/redis/redis_scripts"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type Locker struct {
	rdc *redis.Client
}

func New(rdc *redis.Client) *Locker { return &Locker{rdc: rdc} }

// TryAcquire takes key for at most ttl. ok is false if another owner holds
// it. release is safe to call after the lock expired.
func (l *Locker) TryAcquire(ctx context.Context, key string, ttl time.Duration) (release func(), ok bool, err error) {
	token := uuid.NewString()
	ok, err = l.rdc.SetNX(ctx, key, token, ttl).Result()
	if err != nil || !ok {
		return func() {}, false, err
	}
	return func() {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		if err := redis_scripts.LockRelease.Run(rctx, l.rdc, []string{key}, token).Err(); err != nil {
			zap.L().Warn("lock_release_failed", zap.String("key", key), zap.Error(err))
		}
	}, true, nil
}
