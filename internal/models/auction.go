package models

import "time"

// LifecycleState is derived from wall-clock time; there is no close action.
type LifecycleState string

const (
	Open  LifecycleState = "Open"
	Ended LifecycleState = "Ended"
)

type Item struct {
	Make     string `json:"make"`
	Model    string `json:"model"`
	Year     int    `json:"year"`
	Color    string `json:"color"`
	Mileage  int    `json:"mileage"`
	ImageURL string `json:"image_url"`
}

// Auction is the auction of record. CurrentHighBid is nil until the first
// accepted bid has been projected onto it.
type Auction struct {
	ID             string    `json:"id"`
	Seller         string    `json:"seller"`
	Item           Item      `json:"item"`
	ReservePrice   int64     `json:"reserve_price"`
	AuctionEnd     time.Time `json:"auction_end"`
	CurrentHighBid *int64    `json:"current_high_bid"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func (a *Auction) HasReservePrice() bool { return a.ReservePrice > 0 }

// State is Ended once now is past AuctionEnd.
func (a *Auction) State(now time.Time) LifecycleState {
	if now.After(a.AuctionEnd) {
		return Ended
	}
	return Open
}
