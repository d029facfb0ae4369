// Package bidding is the bid acceptance engine. It owns the bid store and is
// the only writer of bids.
package bidding

import (
	"context"
	"errors"
	"time"

	"bidledger/internal/bus"
	"bidledger/internal/models"
	"bidledger/internal/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type BidEventPublisher interface {
	PublishBidAccepted(ctx context.Context, evt models.BidAccepted) error
}

type IBiddingService interface {
	PlaceBid(ctx context.Context, auctionID, bidder string, amount int64) (*models.Bid, error)
	BidsForAuction(ctx context.Context, auctionID string) ([]models.Bid, error)
}

type Options struct {
	// PlaceTimeout bounds auction lookup plus the decision region.
	PlaceTimeout time.Duration
	// PublishTimeout bounds publishing after commit, retries included.
	PublishTimeout time.Duration
	Now            func() time.Time
}

type biddingService struct {
	bids     store.BidStore
	auctions store.AuctionReader
	events   BidEventPublisher
	opts     Options
}

var _ IBiddingService = (*biddingService)(nil)

func NewBiddingService(bids store.BidStore, auctions store.AuctionReader, events BidEventPublisher, opts Options) IBiddingService {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.PublishTimeout <= 0 {
		opts.PublishTimeout = 10 * time.Second
	}
	return &biddingService{bids: bids, auctions: auctions, events: events, opts: opts}
}

// PlaceBid evaluates and records one bid. The disposition is decided while
// holding the auction's decision region, so concurrent bids on the same
// auction see each other's effects. Any recorded bid, whatever its
// disposition, is returned without error.
func (svc *biddingService) PlaceBid(ctx context.Context, auctionID, bidder string, amount int64) (*models.Bid, error) {
	if amount <= 0 {
		return nil, models.ErrInvalidAmount
	}

	if svc.opts.PlaceTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, svc.opts.PlaceTimeout)
		defer cancel()
	}

	auction, err := svc.auctions.Get(ctx, auctionID)
	if errors.Is(err, models.ErrNotFound) {
		return nil, err
	}
	if err != nil {
		return nil, models.Persistence("load auction", err)
	}
	if auction.Seller == bidder {
		return nil, models.ErrSelfBid
	}

	bid := &models.Bid{
		ID:        uuid.NewString(),
		AuctionID: auctionID,
		Bidder:    bidder,
		Amount:    amount,
	}
	err = svc.bids.WithAuctionLock(ctx, auctionID, func(ctx context.Context, tx store.BidTx) error {
		leader, err := tx.LeadingBid(ctx, auctionID)
		if err != nil {
			return err
		}
		bid.BidTime = svc.opts.Now().UTC()
		bid.Disposition = models.Decide(auction, leader, amount, bid.BidTime)
		_, err = tx.Insert(ctx, bid)
		return err
	})
	if err != nil {
		zap.L().Error("bid_place_failed", zap.String("auction_id", auctionID), zap.Error(err))
		return nil, models.Persistence("place bid", err)
	}

	zap.L().Info("bid_placed",
		zap.String("auction_id", auctionID),
		zap.String("bid_id", bid.ID),
		zap.String("bidder", bidder),
		zap.Int64("amount", amount),
		zap.String("disposition", string(bid.Disposition)))

	if bid.Disposition.IsAccepting() {
		svc.publishAccepted(ctx, bid)
	}
	return bid, nil
}

// publishAccepted runs after the region committed. It ignores the caller's
// cancellation: the bid is already recorded and its event must go out.
func (svc *biddingService) publishAccepted(ctx context.Context, bid *models.Bid) {
	evt, err := models.NewBidAccepted(bid)
	if err != nil {
		return
	}
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), svc.opts.PublishTimeout)
	defer cancel()

	err = svc.events.PublishBidAccepted(pctx, evt)
	if err != nil && !errors.Is(err, bus.ErrDuplicate) {
		// the bid stays recorded; the reconciler republishes the leader later
		zap.L().Warn("bid_publish_deferred",
			zap.String("auction_id", bid.AuctionID),
			zap.String("bid_id", bid.ID),
			zap.Error(err))
	}
}

// BidsForAuction lists bids newest first.
func (svc *biddingService) BidsForAuction(ctx context.Context, auctionID string) ([]models.Bid, error) {
	bids, err := svc.bids.ListForAuction(ctx, auctionID)
	if err != nil {
		return nil, models.Persistence("list bids", err)
	}
	if len(bids) == 0 {
		return nil, models.NotFound("bids for auction", auctionID)
	}
	return bids, nil
}
