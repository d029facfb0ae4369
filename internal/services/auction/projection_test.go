package auction

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"bidledger/internal/bus"
	"bidledger/internal/bus/membus"
	"bidledger/internal/models"
	"bidledger/internal/services/bidding"
	"bidledger/internal/store"
	"bidledger/internal/store/memstore"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2025, 7, 27, 16, 0, 0, 0, time.UTC)

type recordingLive struct {
	mu      sync.Mutex
	amounts []int64
}

func (r *recordingLive) HighBidChanged(_ context.Context, _ string, amount int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.amounts = append(r.amounts, amount)
	return nil
}

func newAuction(t *testing.T, s *memstore.AuctionStore) string {
	t.Helper()
	a := &models.Auction{Seller: "alice", ReservePrice: 100, AuctionEnd: t0.Add(time.Hour)}
	require.NoError(t, s.Create(context.Background(), a))
	return a.ID
}

func accepted(id string, amount int64) models.BidAccepted {
	return models.BidAccepted{AuctionID: id, BidID: "b", Amount: amount, Disposition: models.Accepted, SubmittedAt: t0}
}

func highBid(t *testing.T, s *memstore.AuctionStore, id string) *int64 {
	t.Helper()
	a, err := s.Get(context.Background(), id)
	require.NoError(t, err)
	return a.CurrentHighBid
}

func TestProjector_OrderIndependent(t *testing.T) {
	perms := [][]int64{
		{50, 30, 80}, {50, 80, 30}, {30, 50, 80},
		{30, 80, 50}, {80, 50, 30}, {80, 30, 50},
	}
	for _, perm := range perms {
		s := memstore.NewAuctionStore()
		id := newAuction(t, s)
		p := NewProjector(s, nil)
		for _, amount := range perm {
			_, err := p.OnBidAccepted(context.Background(), accepted(id, amount))
			require.NoError(t, err)
		}
		got := highBid(t, s, id)
		require.NotNil(t, got, "perm %v", perm)
		assert.EqualValues(t, 80, *got, "perm %v", perm)
	}
}

func TestProjector_Idempotent(t *testing.T) {
	s := memstore.NewAuctionStore()
	id := newAuction(t, s)
	live := &recordingLive{}
	p := NewProjector(s, live)

	out, err := p.OnBidAccepted(context.Background(), accepted(id, 50))
	require.NoError(t, err)
	assert.Equal(t, Applied, out)

	out, err = p.OnBidAccepted(context.Background(), accepted(id, 50))
	require.NoError(t, err)
	assert.Equal(t, Ignored, out)

	assert.EqualValues(t, 50, *highBid(t, s, id))
	assert.Equal(t, []int64{50}, live.amounts)
}

func TestProjector_Monotonic(t *testing.T) {
	s := memstore.NewAuctionStore()
	id := newAuction(t, s)
	p := NewProjector(s, nil)

	var last int64
	for _, amount := range []int64{10, 90, 20, 95, 5, 95, 100, 1} {
		_, err := p.OnBidAccepted(context.Background(), accepted(id, amount))
		require.NoError(t, err)
		cur := *highBid(t, s, id)
		assert.GreaterOrEqual(t, cur, last)
		last = cur
	}
	assert.EqualValues(t, 100, last)
}

func TestProjector_IgnoresNonAccepting(t *testing.T) {
	s := memstore.NewAuctionStore()
	id := newAuction(t, s)
	p := NewProjector(s, nil)

	for _, d := range []models.Disposition{models.TooLow, models.Finished, "accepted", ""} {
		evt := accepted(id, 1000)
		evt.Disposition = d
		out, err := p.OnBidAccepted(context.Background(), evt)
		require.NoError(t, err)
		assert.Equal(t, Ignored, out)
	}
	assert.Nil(t, highBid(t, s, id))

	evt := accepted(id, 40)
	evt.Disposition = models.AcceptedBelowReserve
	out, err := p.OnBidAccepted(context.Background(), evt)
	require.NoError(t, err)
	assert.Equal(t, Applied, out)
}

func TestProjector_UnknownAuctionIgnored(t *testing.T) {
	p := NewProjector(memstore.NewAuctionStore(), nil)
	out, err := p.OnBidAccepted(context.Background(), accepted("missing", 10))
	require.NoError(t, err)
	assert.Equal(t, Ignored, out)
}

type brokenStore struct{}

func (brokenStore) ConditionalSetHighBid(context.Context, string, int64) (store.SetResult, error) {
	return store.Skipped, errors.New("conn refused")
}

func TestProjector_StoreFailure(t *testing.T) {
	p := NewProjector(brokenStore{}, nil)
	_, err := p.OnBidAccepted(context.Background(), accepted("a1", 10))
	assert.ErrorIs(t, err, models.ErrProjectionApply)
	assert.False(t, bus.IsPermanent(err))
}

func TestProjector_HandleMessage(t *testing.T) {
	s := memstore.NewAuctionStore()
	id := newAuction(t, s)
	p := NewProjector(s, nil)

	data, _ := json.Marshal(accepted(id, 70))
	require.NoError(t, p.HandleMessage(context.Background(), bus.Message{Subject: "bids.accepted." + id, Data: data}))
	assert.EqualValues(t, 70, *highBid(t, s, id))

	err := p.HandleMessage(context.Background(), bus.Message{Subject: "bids.accepted.x", Data: []byte("garbage")})
	assert.True(t, bus.IsPermanent(err))
}

// Bids placed through the bidding service reach the auction of record over
// the bus, and the cached high bid ends at the highest accepted amount.
func TestEndToEnd_BidsProjectOverBus(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	b := membus.New()
	auctions := memstore.NewAuctionStore()
	id := newAuction(t, auctions)

	replica := memstore.NewReplica()
	a, _ := auctions.Get(ctx, id)
	_, err := replica.Upsert(ctx, models.NewAuctionChanged(a))
	require.NoError(t, err)

	proj := NewProjector(auctions, nil)
	sub := bus.Subscription{
		Name:          "projection",
		Subject:       models.Wildcard(models.SubjectBidAccepted),
		RetryInterval: time.Millisecond,
		MaxAttempts:   5,
	}
	go func() { _ = b.Subscribe(ctx, sub, proj.HandleMessage) }()
	require.Eventually(t, func() bool { return b.Subscribed("projection") }, time.Second, time.Millisecond)

	svc := bidding.NewBiddingService(memstore.NewBidStore(), replica,
		bidding.NewEventPublisher(b, 3, time.Millisecond),
		bidding.Options{Now: func() time.Time { return t0 }})

	for _, amount := range []int64{80, 120, 110, 120} {
		_, err := svc.PlaceBid(ctx, id, "bob", amount)
		require.NoError(t, err)
	}

	require.Eventually(t, func() bool {
		h := highBid(t, auctions, id)
		return h != nil && *h == 120
	}, time.Second, 5*time.Millisecond)
}
