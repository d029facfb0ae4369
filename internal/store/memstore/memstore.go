// Package memstore keeps bids, auctions and failed messages in process
// memory. It backs the IN_MEMORY development mode and service tests.
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

type BidStore struct {
	mu    sync.RWMutex
	bids  map[string][]models.Bid // auctionID -> bids in insertion order
	locks sync.Map                // auctionID -> *sync.Mutex
}

var _ store.BidStore = (*BidStore)(nil)

func NewBidStore() *BidStore {
	return &BidStore{bids: make(map[string][]models.Bid)}
}

func (s *BidStore) lockFor(auctionID string) *sync.Mutex {
	m, _ := s.locks.LoadOrStore(auctionID, &sync.Mutex{})
	return m.(*sync.Mutex)
}

// WithAuctionLock serializes fn per auction. Inserts are staged and only
// become visible when fn returns nil.
func (s *BidStore) WithAuctionLock(ctx context.Context, auctionID string, fn func(context.Context, store.BidTx) error) error {
	l := s.lockFor(auctionID)
	l.Lock()
	defer l.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	tx := &bidTx{s: s}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	s.mu.Lock()
	for _, b := range tx.staged {
		s.bids[b.AuctionID] = append(s.bids[b.AuctionID], b)
	}
	s.mu.Unlock()
	return nil
}

func (s *BidStore) ListForAuction(_ context.Context, auctionID string) ([]models.Bid, error) {
	s.mu.RLock()
	out := append([]models.Bid(nil), s.bids[auctionID]...)
	s.mu.RUnlock()
	sort.SliceStable(out, func(i, j int) bool { return out[i].BidTime.After(out[j].BidTime) })
	return out, nil
}

func (s *BidStore) Leaders(_ context.Context, since time.Time) ([]models.Bid, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Bid
	for _, bids := range s.bids {
		if l := leader(bids); l != nil && !l.BidTime.Before(since) {
			out = append(out, *l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AuctionID < out[j].AuctionID })
	return out, nil
}

func leader(bids []models.Bid) *models.Bid {
	var best *models.Bid
	for i := range bids {
		b := &bids[i]
		if !b.Disposition.IsAccepting() {
			continue
		}
		if best == nil || b.Amount > best.Amount {
			best = b
		}
	}
	return best
}

type bidTx struct {
	s      *BidStore
	staged []models.Bid
}

func (tx *bidTx) LeadingBid(_ context.Context, auctionID string) (*models.Bid, error) {
	tx.s.mu.RLock()
	all := append(append([]models.Bid(nil), tx.s.bids[auctionID]...), tx.staged...)
	tx.s.mu.RUnlock()
	l := leader(all)
	if l == nil {
		return nil, nil
	}
	out := *l
	return &out, nil
}

func (tx *bidTx) Insert(_ context.Context, b *models.Bid) (string, error) {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	tx.staged = append(tx.staged, *b)
	return b.ID, nil
}
