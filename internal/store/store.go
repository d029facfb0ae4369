// Package store declares the persistence contracts the bidding and auction
// services depend on. Implementations live in the sub-packages.
package store

import (
	"context"
	"time"

	"bidledger/internal/models"
)

// BidTx is the view of the bid store available inside a decision region.
type BidTx interface {
	// LeadingBid returns the highest accepting bid for the auction, or nil.
	LeadingBid(ctx context.Context, auctionID string) (*models.Bid, error)
	Insert(ctx context.Context, bid *models.Bid) (string, error)
}

type BidStore interface {
	// WithAuctionLock runs fn while no other caller, in this process or any
	// other, can run fn for the same auction. Writes made through tx are
	// committed only if fn returns nil.
	WithAuctionLock(ctx context.Context, auctionID string, fn func(ctx context.Context, tx BidTx) error) error
	// ListForAuction returns every bid for the auction, newest first.
	ListForAuction(ctx context.Context, auctionID string) ([]models.Bid, error)
	// Leaders returns the current leader of each auction whose leader was
	// placed at or after since.
	Leaders(ctx context.Context, since time.Time) ([]models.Bid, error)
}

// AuctionReader is the read side the bidding service evaluates bids against.
type AuctionReader interface {
	Get(ctx context.Context, id string) (*models.Auction, error)
}

// AuctionReplica is the bidding service's copy of the auction fields it
// decides on, fed by lifecycle events. Both writes keep whichever version has
// the newer UpdatedAt and report whether they changed anything.
type AuctionReplica interface {
	AuctionReader
	Upsert(ctx context.Context, a models.AuctionChanged) (bool, error)
	Remove(ctx context.Context, id string, at time.Time) (bool, error)
}

type SetResult int

const (
	Skipped SetResult = iota
	Applied
)

func (r SetResult) String() string {
	if r == Applied {
		return "applied"
	}
	return "skipped"
}

type AuctionStore interface {
	AuctionReader
	List(ctx context.Context, updatedAfter *time.Time) ([]models.Auction, error)
	Create(ctx context.Context, a *models.Auction) error
	// Update persists item, reserve and end fields. It never writes the
	// cached high bid.
	Update(ctx context.Context, a *models.Auction) error
	Delete(ctx context.Context, id string) error
	// ConditionalSetHighBid atomically stores amount as the cached high bid
	// iff none is stored yet or amount is strictly greater than it.
	ConditionalSetHighBid(ctx context.Context, id string, amount int64) (SetResult, error)
}

// FailedMessage is a delivery that exhausted its attempts.
type FailedMessage struct {
	ID         int64
	Consumer   string
	Subject    string
	Payload    []byte
	Reason     string
	FailedAt   time.Time
	ReplayedAt *time.Time
}

type FailedMessageStore interface {
	Record(ctx context.Context, m *FailedMessage) error
	Pending(ctx context.Context, limit int) ([]FailedMessage, error)
	MarkReplayed(ctx context.Context, id int64, at time.Time) error
}
