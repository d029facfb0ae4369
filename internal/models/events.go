package models

import (
	"errors"
	"strings"
	"time"
)

const (
	SubjectBidAccepted    = "bids.accepted"
	SubjectAuctionCreated = "auctions.created"
	SubjectAuctionUpdated = "auctions.updated"
	SubjectAuctionDeleted = "auctions.deleted"
	SubjectDeadLetter     = "dlq"
)

// BidAccepted is published once per bid that became the auction leader.
// Consumers must tolerate duplicates and arbitrary arrival order.
type BidAccepted struct {
	AuctionID   string      `json:"auctionId"`
	BidID       string      `json:"bidId"`
	Amount      int64       `json:"amount"`
	Disposition Disposition `json:"disposition"`
	SubmittedAt time.Time   `json:"submittedAt"`
}

var errNotAccepting = errors.New("bid is not accepting")

func NewBidAccepted(b *Bid) (BidAccepted, error) {
	if !b.Disposition.IsAccepting() {
		return BidAccepted{}, errNotAccepting
	}
	return BidAccepted{
		AuctionID:   b.AuctionID,
		BidID:       b.ID,
		Amount:      b.Amount,
		Disposition: b.Disposition,
		SubmittedAt: b.BidTime,
	}, nil
}

// AuctionChanged carries the fields the bidding service replicates. It is
// the body of the created, updated and deleted lifecycle events.
type AuctionChanged struct {
	ID           string    `json:"id"`
	Seller       string    `json:"seller"`
	ReservePrice int64     `json:"reservePrice"`
	AuctionEnd   time.Time `json:"auctionEnd"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

func NewAuctionChanged(a *Auction) AuctionChanged {
	return AuctionChanged{
		ID:           a.ID,
		Seller:       a.Seller,
		ReservePrice: a.ReservePrice,
		AuctionEnd:   a.AuctionEnd,
		UpdatedAt:    a.UpdatedAt,
	}
}

// Subject joins subject tokens, e.g. Subject(SubjectBidAccepted, id).
func Subject(base string, tokens ...string) string {
	return strings.Join(append([]string{base}, tokens...), ".")
}

// Wildcard matches every subject under base.
func Wildcard(base string) string { return base + ".>" }
