package ws

import "encoding/json"

// Envelope wraps every WS frame.
type Envelope struct {
	Event string          `json:"event"`          // e.g. "auctions/high_bid"
	Body  json.RawMessage `json:"body,omitempty"` // arbitrary JSON object
}

const (
	EventSnapshot = "snapshot"
	EventHighBid  = "high_bid"
	EventEnded    = "ended"
)

// redisEvent is what instances publish on auc:<id>:events.
type redisEvent struct {
	Event     string `json:"event"`
	AuctionID string `json:"auction_id"`
	Amount    int64  `json:"amount,omitempty"`
}

type ErrorBody struct {
	Error string `json:"error"`
}
