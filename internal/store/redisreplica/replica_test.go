package redisreplica

import (
	"context"
	"errors"
	"testing"
	"time"

	"bidledger/internal/models"
	"bidledger/internal/redis/redis_scripts"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2025, 7, 27, 16, 0, 0, 0, time.UTC)

func TestReplica_Get(t *testing.T) {
	db, mock := redismock.NewClientMock()
	r := New(db)

	mock.ExpectHGetAll("auc:a1").SetVal(map[string]string{
		"sid": "alice",
		"rp":  "100",
		"ea":  "1753632000000",
		"ua":  "1753632000000000",
		"del": "0",
	})

	a, err := r.Get(context.Background(), "a1")
	require.NoError(t, err)
	assert.Equal(t, "alice", a.Seller)
	assert.EqualValues(t, 100, a.ReservePrice)
	assert.Equal(t, t0, a.AuctionEnd)
	assert.Equal(t, t0, a.UpdatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReplica_GetMissingOrDeleted(t *testing.T) {
	db, mock := redismock.NewClientMock()
	r := New(db)

	mock.ExpectHGetAll("auc:none").SetVal(map[string]string{})
	_, err := r.Get(context.Background(), "none")
	assert.ErrorIs(t, err, models.ErrNotFound)

	mock.ExpectHGetAll("auc:gone").SetVal(map[string]string{"ua": "1", "del": "1"})
	_, err = r.Get(context.Background(), "gone")
	assert.ErrorIs(t, err, models.ErrNotFound)

	mock.ExpectHGetAll("auc:err").SetErr(errors.New("conn refused"))
	_, err = r.Get(context.Background(), "err")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, models.ErrNotFound)
}

func TestReplica_Upsert(t *testing.T) {
	db, mock := redismock.NewClientMock()
	r := New(db)

	c := models.AuctionChanged{ID: "a1", Seller: "alice", ReservePrice: 100, AuctionEnd: t0.Add(time.Hour), UpdatedAt: t0}
	args := []interface{}{"alice", "100", "1753635600000", "1753632000000000"}

	mock.ExpectEvalSha(redis_scripts.ReplicaUpsert.Hash(), []string{"auc:a1"}, args...).SetVal(int64(1))
	ok, err := r.Upsert(context.Background(), c)
	require.NoError(t, err)
	assert.True(t, ok)

	mock.ExpectEvalSha(redis_scripts.ReplicaUpsert.Hash(), []string{"auc:a1"}, args...).SetVal(int64(0))
	ok, err = r.Upsert(context.Background(), c)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReplica_Remove(t *testing.T) {
	db, mock := redismock.NewClientMock()
	r := New(db)

	mock.ExpectEvalSha(redis_scripts.ReplicaRemove.Hash(), []string{"auc:a1"}, "1753632000000000", "604800").
		SetVal(int64(1))
	ok, err := r.Remove(context.Background(), "a1", t0)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}
