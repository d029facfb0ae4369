package auctionwatcher

import (
	"context"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const timerKeyPrefix = "auc_t:"

// EndNotifier is told when an auction's end timer fires.
type EndNotifier interface {
	AuctionEnded(ctx context.Context, auctionID string) error
}

// Timers keeps one expiring key per auction. The key expires at the
// auction's end, which is what Run listens for.
type Timers struct {
	rdb *redis.Client
}

func NewTimers(rdb *redis.Client) *Timers { return &Timers{rdb: rdb} }

func (t *Timers) ScheduleEnd(ctx context.Context, auctionID string, end time.Time) error {
	key := timerKeyPrefix + auctionID
	pipe := t.rdb.TxPipeline()
	pipe.Set(ctx, key, end.Unix(), 0)
	pipe.PExpireAt(ctx, key, end)
	_, err := pipe.Exec(ctx)
	return err
}

func (t *Timers) CancelEnd(ctx context.Context, auctionID string) error {
	return t.rdb.Del(ctx, timerKeyPrefix+auctionID).Err()
}

// Run listens to key-expiry events and announces ended auctions.
// Run must be started once at service boot.
func Run(ctx context.Context, rdb *redis.Client, n EndNotifier) {
	if err := rdb.ConfigSet(ctx, "notify-keyspace-events", "Ex").Err(); err != nil {
		zap.L().Warn("auctionwatcher.config_set", zap.Error(err))
	}
	ps := rdb.PSubscribe(ctx, "__keyevent@*__:expired")
	defer ps.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case m, ok := <-ps.Channel():
			if !ok {
				return
			}
			id, ok := strings.CutPrefix(m.Payload, timerKeyPrefix)
			if !ok {
				continue
			}
			if err := n.AuctionEnded(ctx, id); err != nil {
				zap.L().Warn("auctionwatcher.notify", zap.String("auction_id", id), zap.Error(err))
			}
		}
	}
}
