package models

import "time"

// Bid is written once by the bidding service and never edited.
type Bid struct {
	ID          string      `json:"id"`
	AuctionID   string      `json:"auction_id"`
	Bidder      string      `json:"bidder"`
	Amount      int64       `json:"amount"`
	BidTime     time.Time   `json:"bid_time"`
	Disposition Disposition `json:"disposition"`
}
