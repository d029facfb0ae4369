package bidding

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"bidledger/internal/bus"
	"bidledger/internal/bus/membus"
	"bidledger/internal/models"
	"bidledger/internal/store"
	"bidledger/internal/store/memstore"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type flakyPublisher struct {
	failures int
	calls    int
	subject  string
	msgID    string
	data     []byte
}

func (p *flakyPublisher) Publish(_ context.Context, subject string, data []byte, msgID string) error {
	p.calls++
	if p.calls <= p.failures {
		return errors.New("nats: timeout")
	}
	p.subject, p.msgID, p.data = subject, msgID, data
	return nil
}

func TestEventPublisher_RetriesWithBackoff(t *testing.T) {
	pub := &flakyPublisher{failures: 2}
	ep := NewEventPublisher(pub, 3, time.Millisecond)

	evt := models.BidAccepted{AuctionID: "a1", BidID: "b1", Amount: 80, Disposition: models.Accepted, SubmittedAt: t0}
	require.NoError(t, ep.PublishBidAccepted(context.Background(), evt))
	assert.Equal(t, 3, pub.calls)
	assert.Equal(t, "bids.accepted.a1", pub.subject)
	assert.Equal(t, "b1", pub.msgID)

	var got models.BidAccepted
	require.NoError(t, json.Unmarshal(pub.data, &got))
	assert.Equal(t, evt, got)
}

func TestEventPublisher_GivesUp(t *testing.T) {
	pub := &flakyPublisher{failures: 10}
	ep := NewEventPublisher(pub, 2, time.Millisecond)

	err := ep.PublishBidAccepted(context.Background(), models.BidAccepted{AuctionID: "a1", BidID: "b1"})
	assert.ErrorIs(t, err, models.ErrPublish)
	assert.Equal(t, 2, pub.calls)
}

func TestEventPublisher_StopsOnContextDone(t *testing.T) {
	pub := &flakyPublisher{failures: 10}
	ep := NewEventPublisher(pub, 5, time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := ep.PublishBidAccepted(ctx, models.BidAccepted{AuctionID: "a1", BidID: "b1"})
	assert.ErrorIs(t, err, models.ErrPublish)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, pub.calls)
}

func lifecycle(t *testing.T, subject string, c models.AuctionChanged) bus.Message {
	t.Helper()
	data, err := json.Marshal(c)
	require.NoError(t, err)
	return bus.Message{Subject: models.Subject(subject, c.ID), Data: data}
}

func TestReplicaSync(t *testing.T) {
	replica := memstore.NewReplica()
	rs := NewReplicaSync(replica)
	ctx := context.Background()

	created := models.AuctionChanged{ID: "a1", Seller: "alice", ReservePrice: 100, AuctionEnd: t0.Add(time.Hour), UpdatedAt: t0}
	updated := created
	updated.ReservePrice = 150
	updated.UpdatedAt = t0.Add(time.Minute)

	// update delivered before create
	require.NoError(t, rs.HandleMessage(ctx, lifecycle(t, models.SubjectAuctionUpdated, updated)))
	require.NoError(t, rs.HandleMessage(ctx, lifecycle(t, models.SubjectAuctionCreated, created)))

	a, err := replica.Get(ctx, "a1")
	require.NoError(t, err)
	assert.EqualValues(t, 150, a.ReservePrice)

	// redelivery is harmless
	require.NoError(t, rs.HandleMessage(ctx, lifecycle(t, models.SubjectAuctionUpdated, updated)))

	deleted := models.AuctionChanged{ID: "a1", UpdatedAt: t0.Add(time.Hour)}
	require.NoError(t, rs.HandleMessage(ctx, lifecycle(t, models.SubjectAuctionDeleted, deleted)))
	_, err = replica.Get(ctx, "a1")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestReplicaSync_BadPayloadIsPermanent(t *testing.T) {
	rs := NewReplicaSync(memstore.NewReplica())

	err := rs.HandleMessage(context.Background(), bus.Message{Subject: "auctions.created.a1", Data: []byte("{")})
	assert.True(t, bus.IsPermanent(err))

	err = rs.HandleMessage(context.Background(), bus.Message{Subject: "auctions.created.a1", Data: []byte(`{}`)})
	assert.True(t, bus.IsPermanent(err))

	err = rs.HandleMessage(context.Background(), bus.Message{Subject: "auctions.closed.a1", Data: []byte(`{"id":"a1"}`)})
	assert.True(t, bus.IsPermanent(err))
}

type stubLock struct {
	held     bool
	released bool
}

func (l *stubLock) TryAcquire(context.Context, string, time.Duration) (func(), bool, error) {
	if l.held {
		return func() {}, false, nil
	}
	return func() { l.released = true }, true, nil
}

func seedBids(t *testing.T, bids *memstore.BidStore, list ...models.Bid) {
	t.Helper()
	for _, b := range list {
		err := bids.WithAuctionLock(context.Background(), b.AuctionID, func(ctx context.Context, tx store.BidTx) error {
			_, err := tx.Insert(ctx, &b)
			return err
		})
		require.NoError(t, err)
	}
}

func TestReconciler_Sweep(t *testing.T) {
	bids := memstore.NewBidStore()
	seedBids(t, bids,
		models.Bid{ID: "old", AuctionID: "a1", Amount: 10, BidTime: t0.Add(-2 * time.Hour), Disposition: models.Accepted},
		models.Bid{ID: "recent", AuctionID: "a2", Amount: 20, BidTime: t0.Add(-time.Minute), Disposition: models.AcceptedBelowReserve},
		models.Bid{ID: "low", AuctionID: "a2", Amount: 5, BidTime: t0, Disposition: models.TooLow},
	)
	events := &fakeEvents{}
	lock := &stubLock{}
	r := NewReconciler(bids, events, lock, time.Hour)
	r.now = func() time.Time { return t0 }

	res, err := r.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Republished{Sent: 1}, res)
	require.Len(t, events.published(), 1)
	assert.Equal(t, "recent", events.published()[0].BidID)
	assert.True(t, lock.released)
}

func TestReconciler_SweepSkipsWhenLocked(t *testing.T) {
	events := &fakeEvents{}
	r := NewReconciler(memstore.NewBidStore(), events, &stubLock{held: true}, time.Hour)

	res, err := r.Sweep(context.Background())
	require.NoError(t, err)
	assert.Zero(t, res)
}

func TestReconciler_SweepReportsPublishErrors(t *testing.T) {
	bids := memstore.NewBidStore()
	seedBids(t, bids, models.Bid{ID: "b1", AuctionID: "a1", Amount: 10, BidTime: t0, Disposition: models.Accepted})
	r := NewReconciler(bids, &fakeEvents{fail: errors.New("bus down")}, nil, time.Hour)
	r.now = func() time.Time { return t0 }

	res, err := r.Sweep(context.Background())
	assert.Error(t, err)
	assert.Zero(t, res)
}

func TestReconciler_ReconcileAuction(t *testing.T) {
	bids := memstore.NewBidStore()
	seedBids(t, bids,
		models.Bid{ID: "b1", AuctionID: "a1", Amount: 10, BidTime: t0, Disposition: models.AcceptedBelowReserve},
		models.Bid{ID: "b2", AuctionID: "a1", Amount: 30, BidTime: t0.Add(time.Second), Disposition: models.Accepted},
		models.Bid{ID: "b3", AuctionID: "a1", Amount: 90, BidTime: t0.Add(2 * time.Second), Disposition: models.Finished},
	)
	events := &fakeEvents{}
	r := NewReconciler(bids, events, nil, time.Hour)

	leader, dup, err := r.ReconcileAuction(context.Background(), "a1")
	require.NoError(t, err)
	assert.Equal(t, "b2", leader.ID)
	assert.False(t, dup)
	require.Len(t, events.published(), 1)
	assert.EqualValues(t, 30, events.published()[0].Amount)

	_, _, err = r.ReconcileAuction(context.Background(), "nobids")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestReconciler_ReportsDuplicates(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bids := memstore.NewBidStore()
	seedBids(t, bids,
		models.Bid{ID: "b1", AuctionID: "a1", Amount: 10, BidTime: t0, Disposition: models.Accepted},
		models.Bid{ID: "b2", AuctionID: "a2", Amount: 20, BidTime: t0, Disposition: models.Accepted},
	)
	mb := membus.New(membus.WithDuplicateWindow(time.Minute))
	events := NewEventPublisher(mb, 3, time.Millisecond)
	r := NewReconciler(bids, events, nil, time.Hour)
	r.now = func() time.Time { return t0 }

	// b1 already went out when it was placed
	evt, err := models.NewBidAccepted(&models.Bid{ID: "b1", AuctionID: "a1", Amount: 10, BidTime: t0, Disposition: models.Accepted})
	require.NoError(t, err)
	require.NoError(t, events.PublishBidAccepted(ctx, evt))

	res, err := r.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, Republished{Sent: 1, Duplicates: 1}, res)

	_, dup, err := r.ReconcileAuction(ctx, "a2")
	require.NoError(t, err)
	assert.True(t, dup)
}

func TestEventPublisher_DuplicateIsNotAFailure(t *testing.T) {
	mb := membus.New()
	ep := NewEventPublisher(mb, 3, time.Millisecond)
	evt := models.BidAccepted{AuctionID: "a1", BidID: "b1", Amount: 80, Disposition: models.Accepted, SubmittedAt: t0}

	require.NoError(t, ep.PublishBidAccepted(context.Background(), evt))
	err := ep.PublishBidAccepted(context.Background(), evt)
	assert.ErrorIs(t, err, bus.ErrDuplicate)
	assert.NotErrorIs(t, err, models.ErrPublish)
}
