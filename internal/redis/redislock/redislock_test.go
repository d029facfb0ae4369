package redislock

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"bidledger/internal/redis/redis_scripts"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocker_AcquireAndRelease(t *testing.T) {
	db, mock := redismock.NewClientMock()
	l := New(db)

	var token string
	mock.CustomMatch(func(_, actual []interface{}) error {
		if actual[1] != "lock:job" {
			return fmt.Errorf("unexpected key %v", actual[1])
		}
		token, _ = actual[2].(string)
		return nil
	}).ExpectSetNX("lock:job", "", time.Minute).SetVal(true)

	mock.CustomMatch(func(_, actual []interface{}) error {
		if actual[1] != redis_scripts.LockRelease.Hash() {
			return errors.New("unexpected script")
		}
		if actual[len(actual)-1] != token {
			return fmt.Errorf("released with %v, acquired with %s", actual[len(actual)-1], token)
		}
		return nil
	}).ExpectEvalSha(redis_scripts.LockRelease.Hash(), []string{"lock:job"}, "").SetVal(int64(1))

	release, ok, err := l.TryAcquire(context.Background(), "lock:job", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	assert.NotEmpty(t, token)

	release()
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLocker_Held(t *testing.T) {
	db, mock := redismock.NewClientMock()
	l := New(db)

	mock.CustomMatch(func(_, _ []interface{}) error { return nil }).
		ExpectSetNX("lock:job", "", time.Minute).SetVal(false)

	release, ok, err := l.TryAcquire(context.Background(), "lock:job", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)
	release()
	assert.NoError(t, mock.ExpectationsWereMet())
}
