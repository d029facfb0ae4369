package ws

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// subscriptionManager guarantees that we have **exactly one** Redis
// subscription per "auc:<id>:events" channel, no matter how many websocket
// clients join the same auction room.
type subscriptionManager struct {
	base context.Context
	rdb  *redis.Client
	hub  *Hub
	mu   sync.Mutex
	subs map[string]*subEntry // auctionID -> subscription data
}

type subEntry struct {
	refCnt int
	cancel context.CancelFunc
}

func newSubscriptionManager(base context.Context, rdb *redis.Client, hub *Hub) *subscriptionManager {
	return &subscriptionManager{
		base: base,
		rdb:  rdb,
		hub:  hub,
		subs: make(map[string]*subEntry),
	}
}

// Subscribe ensures that the process is subscribed to the auction's channel;
// subsequent calls for the same auction only increment the ref-counter.
func (sm *subscriptionManager) Subscribe(auctionID string) {
	sm.mu.Lock()
	if e, ok := sm.subs[auctionID]; ok {
		e.refCnt++
		sm.mu.Unlock()
		return
	}

	// First viewer: create the Redis SUB and its fan-out loop.
	ctx, cancel := context.WithCancel(sm.base)
	ps := sm.rdb.Subscribe(ctx, EventsChannel(auctionID))

	sm.subs[auctionID] = &subEntry{refCnt: 1, cancel: cancel}
	sm.mu.Unlock()

	go func() {
		defer ps.Close()

		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-ps.Channel():
				if !ok { // Redis connection closed.
					return
				}
				wrapped, err := wrapRedisEvent(m.Payload)
				if err != nil {
					zap.L().Warn("ws.wrap_event_failed", zap.String("auction_id", auctionID), zap.Error(err))
					continue
				}
				sm.hub.Broadcast(auctionID, wrapped)
			}
		}
	}()
}

// Unsubscribe decrements the ref-counter and tears the Redis SUB down when the
// last websocket client leaves the room.
func (sm *subscriptionManager) Unsubscribe(auctionID string) {
	sm.mu.Lock()
	e, ok := sm.subs[auctionID]
	if !ok {
		sm.mu.Unlock()
		return
	}
	e.refCnt--
	if e.refCnt > 0 {
		sm.mu.Unlock()
		return
	}
	delete(sm.subs, auctionID)
	sm.mu.Unlock()

	// Outside the lock: stop the fan-out goroutine.
	e.cancel()
}

// wrapRedisEvent turns
//
//	{"event":"high_bid","auction_id":"a1","amount":120}
//
// into
//
//	{"event":"auctions/high_bid","body":{"auction_id":"a1","amount":120}}
func wrapRedisEvent(payload string) ([]byte, error) {
	var evt redisEvent
	if err := json.Unmarshal([]byte(payload), &evt); err != nil {
		return nil, err
	}
	if evt.Event == "" {
		evt.Event = "unknown"
	}
	return frame(evt.Event, struct {
		AuctionID string `json:"auction_id"`
		Amount    int64  `json:"amount,omitempty"`
	}{evt.AuctionID, evt.Amount})
}

func frame(event string, body any) ([]byte, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: "auctions/" + event, Body: raw})
}
