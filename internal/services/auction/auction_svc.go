package auction

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"bidledger/internal/bus"
	"bidledger/internal/models"
	"bidledger/internal/store"

	"go.uber.org/zap"
)

type AuctionInput struct {
	Item         models.Item
	ReservePrice int64
	AuctionEnd   time.Time
}

type ItemUpdate struct {
	Make     *string
	Model    *string
	Year     *int
	Color    *string
	Mileage  *int
	ImageURL *string
}

// EndScheduler arms the timer that announces an auction's end to live
// viewers. It is optional.
type EndScheduler interface {
	ScheduleEnd(ctx context.Context, auctionID string, end time.Time) error
	CancelEnd(ctx context.Context, auctionID string) error
}

type IAuctionService interface {
	ListAuctions(ctx context.Context, updatedAfter *time.Time) ([]models.Auction, error)
	GetAuction(ctx context.Context, id string) (*models.Auction, error)
	CreateAuction(ctx context.Context, seller string, in AuctionInput) (*models.Auction, error)
	UpdateAuction(ctx context.Context, id, user string, upd ItemUpdate) (*models.Auction, error)
	DeleteAuction(ctx context.Context, id, user string) error
}

type auctionService struct {
	auctions store.AuctionStore
	pub      bus.Publisher
	timers   EndScheduler
	now      func() time.Time
}

var _ IAuctionService = (*auctionService)(nil)

// NewAuctionService wires the auction of record. pub should already retry;
// lifecycle events that still fail are logged and not retried here.
func NewAuctionService(auctions store.AuctionStore, pub bus.Publisher, timers EndScheduler) IAuctionService {
	return &auctionService{
		auctions: auctions,
		pub:      pub,
		timers:   timers,
		now:      time.Now,
	}
}

func (svc *auctionService) ListAuctions(ctx context.Context, updatedAfter *time.Time) ([]models.Auction, error) {
	list, err := svc.auctions.List(ctx, updatedAfter)
	if err != nil {
		return nil, models.Persistence("list auctions", err)
	}
	return list, nil
}

func (svc *auctionService) GetAuction(ctx context.Context, id string) (*models.Auction, error) {
	a, err := svc.auctions.Get(ctx, id)
	if err != nil {
		return nil, classify("get auction", err)
	}
	return a, nil
}

func (svc *auctionService) CreateAuction(ctx context.Context, seller string, in AuctionInput) (*models.Auction, error) {
	switch {
	case seller == "":
		return nil, fmt.Errorf("%w: seller is required", models.ErrValidation)
	case in.ReservePrice < 0:
		return nil, fmt.Errorf("%w: reserve price must not be negative", models.ErrValidation)
	case !in.AuctionEnd.After(svc.now()):
		return nil, fmt.Errorf("%w: auction end must be in the future", models.ErrValidation)
	}

	a := &models.Auction{
		Seller:       seller,
		Item:         in.Item,
		ReservePrice: in.ReservePrice,
		AuctionEnd:   in.AuctionEnd.UTC(),
	}
	if err := svc.auctions.Create(ctx, a); err != nil {
		return nil, models.Persistence("create auction", err)
	}
	zap.L().Info("auction_created", zap.String("auction_id", a.ID), zap.String("seller", seller))

	svc.publish(ctx, models.SubjectAuctionCreated, models.NewAuctionChanged(a))
	svc.scheduleEnd(ctx, a)
	return a, nil
}

// UpdateAuction changes item fields only. Reserve, end and the cached high
// bid are never touched here.
func (svc *auctionService) UpdateAuction(ctx context.Context, id, user string, upd ItemUpdate) (*models.Auction, error) {
	a, err := svc.auctions.Get(ctx, id)
	if err != nil {
		return nil, classify("get auction", err)
	}
	if a.Seller != user {
		return nil, fmt.Errorf("update auction %s: %w", id, models.ErrForbidden)
	}

	set(&a.Item.Make, upd.Make)
	set(&a.Item.Model, upd.Model)
	set(&a.Item.Year, upd.Year)
	set(&a.Item.Color, upd.Color)
	set(&a.Item.Mileage, upd.Mileage)
	set(&a.Item.ImageURL, upd.ImageURL)

	if err := svc.auctions.Update(ctx, a); err != nil {
		return nil, classify("update auction", err)
	}
	zap.L().Info("auction_updated", zap.String("auction_id", id))

	svc.publish(ctx, models.SubjectAuctionUpdated, models.NewAuctionChanged(a))
	return a, nil
}

func (svc *auctionService) DeleteAuction(ctx context.Context, id, user string) error {
	a, err := svc.auctions.Get(ctx, id)
	if err != nil {
		return classify("get auction", err)
	}
	if a.Seller != user {
		return fmt.Errorf("delete auction %s: %w", id, models.ErrForbidden)
	}
	if err := svc.auctions.Delete(ctx, id); err != nil {
		return classify("delete auction", err)
	}
	zap.L().Info("auction_deleted", zap.String("auction_id", id))

	svc.publish(ctx, models.SubjectAuctionDeleted, models.AuctionChanged{
		ID:        id,
		Seller:    a.Seller,
		UpdatedAt: svc.now().UTC(),
	})
	if svc.timers != nil {
		if err := svc.timers.CancelEnd(ctx, id); err != nil {
			zap.L().Warn("auction_end_timer_cancel_failed", zap.String("auction_id", id), zap.Error(err))
		}
	}
	return nil
}

// publish runs after the row is committed and never fails the request.
func (svc *auctionService) publish(ctx context.Context, base string, evt models.AuctionChanged) {
	data, err := json.Marshal(evt)
	if err != nil {
		return
	}
	subject := models.Subject(base, evt.ID)
	msgID := subject + "@" + strconv.FormatInt(evt.UpdatedAt.UnixMicro(), 10)

	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := svc.pub.Publish(pctx, subject, data, msgID); err != nil && !errors.Is(err, bus.ErrDuplicate) {
		zap.L().Error("auction_event_publish_failed",
			zap.String("subject", subject),
			zap.Error(models.Publish(subject, err)))
	}
}

func (svc *auctionService) scheduleEnd(ctx context.Context, a *models.Auction) {
	if svc.timers == nil {
		return
	}
	if err := svc.timers.ScheduleEnd(ctx, a.ID, a.AuctionEnd); err != nil {
		zap.L().Warn("auction_end_timer_failed", zap.String("auction_id", a.ID), zap.Error(err))
	}
}

func classify(op string, err error) error {
	if errors.Is(err, models.ErrNotFound) {
		return err
	}
	return models.Persistence(op, err)
}

func set[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}
