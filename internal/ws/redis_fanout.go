package ws

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
)

func EventsChannel(auctionID string) string { return "auc:" + auctionID + ":events" }

// RedisNotifier publishes live events on the auction's Redis channel, so
// every instance holding viewers of that auction forwards them.
type RedisNotifier struct {
	rdb *redis.Client
}

func NewRedisNotifier(rdb *redis.Client) *RedisNotifier { return &RedisNotifier{rdb: rdb} }

func (n *RedisNotifier) HighBidChanged(ctx context.Context, auctionID string, amount int64) error {
	return n.publish(ctx, redisEvent{Event: EventHighBid, AuctionID: auctionID, Amount: amount})
}

func (n *RedisNotifier) AuctionEnded(ctx context.Context, auctionID string) error {
	return n.publish(ctx, redisEvent{Event: EventEnded, AuctionID: auctionID})
}

func (n *RedisNotifier) publish(ctx context.Context, evt redisEvent) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	return n.rdb.Publish(ctx, EventsChannel(evt.AuctionID), payload).Err()
}

// HubNotifier broadcasts straight to the local hub. It is used when there is
// no Redis to fan out through.
type HubNotifier struct {
	hub *Hub
}

func NewHubNotifier(hub *Hub) *HubNotifier { return &HubNotifier{hub: hub} }

func (n *HubNotifier) HighBidChanged(_ context.Context, auctionID string, amount int64) error {
	return n.send(redisEvent{Event: EventHighBid, AuctionID: auctionID, Amount: amount})
}

func (n *HubNotifier) AuctionEnded(_ context.Context, auctionID string) error {
	return n.send(redisEvent{Event: EventEnded, AuctionID: auctionID})
}

func (n *HubNotifier) send(evt redisEvent) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	msg, err := wrapRedisEvent(string(payload))
	if err != nil {
		return err
	}
	n.hub.Broadcast(evt.AuctionID, msg)
	return nil
}
