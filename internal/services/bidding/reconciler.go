package bidding

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bidledger/internal/bus"
	"bidledger/internal/models"
	"bidledger/internal/store"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Locker keeps a sweep to one bidding instance at a time.
type Locker interface {
	TryAcquire(ctx context.Context, key string, ttl time.Duration) (release func(), ok bool, err error)
}

const (
	reconcileLockKey = "lock:reconcile"
	sweepLockTTL     = time.Minute
)

// Reconciler republishes the current leader of recently active auctions.
// It covers BidAccepted events that were committed but never published.
// The projection applies a republished leader only if it is still higher
// than the cached value.
type Reconciler struct {
	bids     store.BidStore
	events   BidEventPublisher
	lock     Locker
	lookback time.Duration
	now      func() time.Time
	cron     *cron.Cron
}

func NewReconciler(bids store.BidStore, events BidEventPublisher, lock Locker, lookback time.Duration) *Reconciler {
	return &Reconciler{
		bids:     bids,
		events:   events,
		lock:     lock,
		lookback: lookback,
		now:      time.Now,
		cron:     cron.New(cron.WithSeconds()),
	}
}

// Republished counts the leaders a reconcile run put on the bus. Duplicates
// were still inside the bus duplicate window and were not delivered again.
type Republished struct {
	Sent       int
	Duplicates int
}

// Start schedules Sweep on spec (a six-field cron expression or a
// descriptor such as "@every 1m") until ctx is done.
func (r *Reconciler) Start(ctx context.Context, spec string) error {
	_, err := r.cron.AddFunc(spec, func() {
		res, err := r.Sweep(ctx)
		if err != nil {
			zap.L().Error("reconcile.sweep_failed", zap.Error(err))
			return
		}
		zap.L().Debug("reconcile.sweep_done", zap.Int("republished", res.Sent), zap.Int("duplicates", res.Duplicates))
	})
	if err != nil {
		return fmt.Errorf("schedule reconcile %q: %w", spec, err)
	}
	r.cron.Start()
	zap.L().Info("reconcile.scheduled", zap.String("schedule", spec), zap.Duration("lookback", r.lookback))

	go func() {
		<-ctx.Done()
		<-r.cron.Stop().Done()
	}()
	return nil
}

// Sweep republishes every leader placed within the lookback window. It does
// nothing if another instance is sweeping.
func (r *Reconciler) Sweep(ctx context.Context) (Republished, error) {
	var res Republished
	if r.lock != nil {
		release, ok, err := r.lock.TryAcquire(ctx, reconcileLockKey, sweepLockTTL)
		if err != nil {
			return res, fmt.Errorf("acquire reconcile lock: %w", err)
		}
		if !ok {
			zap.L().Debug("reconcile.skipped_locked")
			return res, nil
		}
		defer release()
	}

	leaders, err := r.bids.Leaders(ctx, r.now().Add(-r.lookback))
	if err != nil {
		return res, models.Persistence("load leaders", err)
	}

	var errs []error
	for i := range leaders {
		dup, err := r.republish(ctx, &leaders[i])
		switch {
		case err != nil:
			errs = append(errs, err)
		case dup:
			res.Duplicates++
		default:
			res.Sent++
		}
	}
	return res, errors.Join(errs...)
}

// ReconcileAuction republishes the current leader of one auction regardless
// of when it was placed. duplicate reports that the bus dropped the event
// because the same bid was published within its duplicate window.
func (r *Reconciler) ReconcileAuction(ctx context.Context, auctionID string) (leader *models.Bid, duplicate bool, err error) {
	bids, err := r.bids.ListForAuction(ctx, auctionID)
	if err != nil {
		return nil, false, models.Persistence("list bids", err)
	}
	for i := range bids {
		b := &bids[i]
		if b.Disposition.IsAccepting() && (leader == nil || b.Amount > leader.Amount) {
			leader = b
		}
	}
	if leader == nil {
		return nil, false, models.NotFound("leading bid for auction", auctionID)
	}
	if duplicate, err = r.republish(ctx, leader); err != nil {
		return nil, false, err
	}
	return leader, duplicate, nil
}

func (r *Reconciler) republish(ctx context.Context, leader *models.Bid) (duplicate bool, err error) {
	evt, err := models.NewBidAccepted(leader)
	if err != nil {
		return false, err
	}
	err = r.events.PublishBidAccepted(ctx, evt)
	switch {
	case errors.Is(err, bus.ErrDuplicate):
		zap.L().Debug("reconcile.duplicate",
			zap.String("auction_id", leader.AuctionID),
			zap.String("bid_id", leader.ID))
		return true, nil
	case err != nil:
		zap.L().Warn("reconcile.publish_failed", zap.String("auction_id", leader.AuctionID), zap.Error(err))
		return false, err
	}
	zap.L().Debug("reconcile.republished",
		zap.String("auction_id", leader.AuctionID),
		zap.String("bid_id", leader.ID),
		zap.Int64("amount", leader.Amount))
	return false, nil
}
