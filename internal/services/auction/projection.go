package auction

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"bidledger/internal/bus"
	"bidledger/internal/models"
	"bidledger/internal/store"

	"go.uber.org/zap"
)

type Outcome int

const (
	Ignored Outcome = iota
	Applied
)

func (o Outcome) String() string {
	if o == Applied {
		return "applied"
	}
	return "ignored"
}

type HighBidStore interface {
	ConditionalSetHighBid(ctx context.Context, id string, amount int64) (store.SetResult, error)
}

// LiveNotifier pushes a changed high bid to live viewers. Failures are
// logged only.
type LiveNotifier interface {
	HighBidChanged(ctx context.Context, auctionID string, amount int64) error
}

// Projector keeps each auction's cached high bid equal to the highest
// accepting amount it has seen. Events may arrive duplicated and in any
// order; the cached value only ever grows.
type Projector struct {
	auctions HighBidStore
	live     LiveNotifier
}

func NewProjector(auctions HighBidStore, live LiveNotifier) *Projector {
	return &Projector{auctions: auctions, live: live}
}

func (p *Projector) OnBidAccepted(ctx context.Context, evt models.BidAccepted) (Outcome, error) {
	if !evt.Disposition.IsAccepting() {
		return Ignored, nil
	}

	res, err := p.auctions.ConditionalSetHighBid(ctx, evt.AuctionID, evt.Amount)
	if errors.Is(err, models.ErrNotFound) {
		zap.L().Warn("projection.unknown_auction",
			zap.String("auction_id", evt.AuctionID),
			zap.String("bid_id", evt.BidID))
		return Ignored, nil
	}
	if err != nil {
		zap.L().Error("projection.apply_failed",
			zap.String("auction_id", evt.AuctionID),
			zap.String("bid_id", evt.BidID),
			zap.Error(err))
		return Ignored, models.ProjectionApply(evt.AuctionID, err)
	}
	if res != store.Applied {
		return Ignored, nil
	}

	zap.L().Info("projection.applied",
		zap.String("auction_id", evt.AuctionID),
		zap.Int64("amount", evt.Amount))
	if p.live != nil {
		if err := p.live.HighBidChanged(ctx, evt.AuctionID, evt.Amount); err != nil {
			zap.L().Warn("projection.notify_failed", zap.String("auction_id", evt.AuctionID), zap.Error(err))
		}
	}
	return Applied, nil
}

// HandleMessage is the bus handler for bids.accepted.*. Payloads that cannot
// be decoded are dead-lettered without retries.
func (p *Projector) HandleMessage(ctx context.Context, msg bus.Message) error {
	var evt models.BidAccepted
	if err := json.Unmarshal(msg.Data, &evt); err != nil {
		return bus.Permanent(fmt.Errorf("decode %s: %w", msg.Subject, err))
	}
	if evt.AuctionID == "" {
		return bus.Permanent(fmt.Errorf("decode %s: missing auction id", msg.Subject))
	}
	_, err := p.OnBidAccepted(ctx, evt)
	return err
}
