package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"bidledger/internal/models"
	"bidledger/internal/store"

	"github.com/google/uuid"
)

type AuctionStore struct {
	mu       sync.RWMutex
	auctions map[string]models.Auction
	now      func() time.Time
}

var _ store.AuctionStore = (*AuctionStore)(nil)

func NewAuctionStore() *AuctionStore {
	return &AuctionStore{auctions: make(map[string]models.Auction), now: time.Now}
}

func (s *AuctionStore) Get(_ context.Context, id string) (*models.Auction, error) {
	s.mu.RLock()
	a, ok := s.auctions[id]
	s.mu.RUnlock()
	if !ok {
		return nil, models.NotFound("auction", id)
	}
	return clone(a), nil
}

func (s *AuctionStore) List(_ context.Context, updatedAfter *time.Time) ([]models.Auction, error) {
	s.mu.RLock()
	out := make([]models.Auction, 0, len(s.auctions))
	for _, a := range s.auctions {
		if updatedAfter != nil && !a.UpdatedAt.After(*updatedAfter) {
			continue
		}
		out = append(out, *clone(a))
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].AuctionEnd.Before(out[j].AuctionEnd) })
	return out, nil
}

func (s *AuctionStore) Create(_ context.Context, a *models.Auction) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	now := s.now().UTC()
	a.CreatedAt, a.UpdatedAt = now, now
	a.CurrentHighBid = nil

	s.mu.Lock()
	s.auctions[a.ID] = *clone(*a)
	s.mu.Unlock()
	return nil
}

func (s *AuctionStore) Update(_ context.Context, a *models.Auction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.auctions[a.ID]
	if !ok {
		return models.NotFound("auction", a.ID)
	}
	cur.Item = a.Item
	cur.ReservePrice = a.ReservePrice
	cur.AuctionEnd = a.AuctionEnd
	cur.UpdatedAt = s.now().UTC()
	s.auctions[a.ID] = cur
	*a = *clone(cur)
	return nil
}

func (s *AuctionStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.auctions[id]; !ok {
		return models.NotFound("auction", id)
	}
	delete(s.auctions, id)
	return nil
}

func (s *AuctionStore) ConditionalSetHighBid(_ context.Context, id string, amount int64) (store.SetResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.auctions[id]
	if !ok {
		return store.Skipped, models.NotFound("auction", id)
	}
	if a.CurrentHighBid != nil && *a.CurrentHighBid >= amount {
		return store.Skipped, nil
	}
	a.CurrentHighBid = &amount
	s.auctions[id] = a
	return store.Applied, nil
}

func clone(a models.Auction) *models.Auction {
	if a.CurrentHighBid != nil {
		v := *a.CurrentHighBid
		a.CurrentHighBid = &v
	}
	return &a
}
