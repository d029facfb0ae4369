// Package redisreplica keeps the bidding service's copy of auctions in Redis
// hashes, one per auction at auc:<id>.
package redisreplica

import (
	"context"
	"strconv"
	"time"

	"bidledger/internal/models"
	"bidledger/internal/redis/redis_scripts"
	"bidledger/internal/store"

	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix    = "auc:"
	tombstoneTTL = 7 * 24 * time.Hour
)

func Key(auctionID string) string { return keyPrefix + auctionID }

type Replica struct {
	rdc *redis.Client
}

var _ store.AuctionReplica = (*Replica)(nil)

func New(rdc *redis.Client) *Replica { return &Replica{rdc: rdc} }

func (r *Replica) Get(ctx context.Context, id string) (*models.Auction, error) {
	data, err := r.rdc.HGetAll(ctx, Key(id)).Result()
	if err != nil {
		return nil, err
	}
	if len(data) == 0 || data["del"] == "1" {
		return nil, models.NotFound("auction", id)
	}

	reserve, _ := strconv.ParseInt(data["rp"], 10, 64)
	endMs, _ := strconv.ParseInt(data["ea"], 10, 64)
	updUs, _ := strconv.ParseInt(data["ua"], 10, 64)
	return &models.Auction{
		ID:           id,
		Seller:       data["sid"],
		ReservePrice: reserve,
		AuctionEnd:   time.UnixMilli(endMs).UTC(),
		UpdatedAt:    time.UnixMicro(updUs).UTC(),
	}, nil
}

func (r *Replica) Upsert(ctx context.Context, c models.AuctionChanged) (bool, error) {
	n, err := redis_scripts.ReplicaUpsert.Run(ctx, r.rdc,
		[]string{Key(c.ID)},
		c.Seller,
		strconv.FormatInt(c.ReservePrice, 10),
		strconv.FormatInt(c.AuctionEnd.UnixMilli(), 10),
		strconv.FormatInt(c.UpdatedAt.UnixMicro(), 10),
	).Int()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *Replica) Remove(ctx context.Context, id string, at time.Time) (bool, error) {
	n, err := redis_scripts.ReplicaRemove.Run(ctx, r.rdc,
		[]string{Key(id)},
		strconv.FormatInt(at.UnixMicro(), 10),
		strconv.FormatInt(int64(tombstoneTTL/time.Second), 10),
	).Int()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
