package memstore

import (
	"context"
	"sync"
	"time"

	"bidledger/internal/models"
	"bidledger/internal/store"
)

type replicaEntry struct {
	auction models.Auction
	deleted bool
}

// Replica is the in-memory AuctionReplica. Deleted auctions leave a
// tombstone so late lifecycle events cannot resurrect them.
type Replica struct {
	mu      sync.RWMutex
	entries map[string]replicaEntry
}

var _ store.AuctionReplica = (*Replica)(nil)

func NewReplica() *Replica {
	return &Replica{entries: make(map[string]replicaEntry)}
}

func (r *Replica) Get(_ context.Context, id string) (*models.Auction, error) {
	r.mu.RLock()
	e, ok := r.entries[id]
	r.mu.RUnlock()
	if !ok || e.deleted {
		return nil, models.NotFound("auction", id)
	}
	a := e.auction
	return &a, nil
}

func (r *Replica) Upsert(_ context.Context, c models.AuctionChanged) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[c.ID]; ok && !c.UpdatedAt.After(e.auction.UpdatedAt) {
		return false, nil
	}
	r.entries[c.ID] = replicaEntry{auction: models.Auction{
		ID:           c.ID,
		Seller:       c.Seller,
		ReservePrice: c.ReservePrice,
		AuctionEnd:   c.AuctionEnd,
		UpdatedAt:    c.UpdatedAt,
	}}
	return true, nil
}

func (r *Replica) Remove(_ context.Context, id string, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if ok && (e.deleted || e.auction.UpdatedAt.After(at)) {
		return false, nil
	}
	r.entries[id] = replicaEntry{auction: models.Auction{ID: id, UpdatedAt: at}, deleted: true}
	return true, nil
}
