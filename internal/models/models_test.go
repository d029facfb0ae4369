package models

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2025, 7, 27, 16, 0, 0, 0, time.UTC)

func openAuction(reserve int64) *Auction {
	return &Auction{ID: "a1", Seller: "alice", ReservePrice: reserve, AuctionEnd: now.Add(time.Hour)}
}

func TestDisposition_IsAccepting(t *testing.T) {
	assert.True(t, Accepted.IsAccepting())
	assert.True(t, AcceptedBelowReserve.IsAccepting())
	assert.False(t, TooLow.IsAccepting())
	assert.False(t, Finished.IsAccepting())
	assert.False(t, Disposition("accepted").IsAccepting())
}

func TestParseDisposition(t *testing.T) {
	d, err := ParseDisposition("AcceptedBelowReserve")
	require.NoError(t, err)
	assert.Equal(t, AcceptedBelowReserve, d)

	_, err = ParseDisposition("Rejected")
	assert.Error(t, err)
}

func TestDecide(t *testing.T) {
	leader := &Bid{Amount: 120, Disposition: Accepted}

	cases := []struct {
		name    string
		auction *Auction
		leader  *Bid
		amount  int64
		want    Disposition
	}{
		{"first bid below reserve", openAuction(100), nil, 80, AcceptedBelowReserve},
		{"first bid at reserve", openAuction(100), nil, 100, AcceptedBelowReserve},
		{"first bid above reserve", openAuction(100), nil, 101, Accepted},
		{"no reserve", openAuction(0), nil, 1, Accepted},
		{"beats leader", openAuction(100), leader, 121, Accepted},
		{"equals leader", openAuction(100), leader, 120, TooLow},
		{"below leader", openAuction(100), leader, 100, TooLow},
		{"beats leader below reserve", openAuction(500), leader, 130, AcceptedBelowReserve},
		{"ended auction", &Auction{AuctionEnd: now.Add(-time.Second), ReservePrice: 0}, nil, 1_000_000, Finished},
		{"ended auction ignores leader", &Auction{AuctionEnd: now.Add(-time.Second)}, leader, 1, Finished},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Decide(tc.auction, tc.leader, tc.amount, now))
		})
	}
}

func TestAuction_State(t *testing.T) {
	a := &Auction{AuctionEnd: now}
	assert.Equal(t, Open, a.State(now))
	assert.Equal(t, Open, a.State(now.Add(-time.Minute)))
	assert.Equal(t, Ended, a.State(now.Add(time.Nanosecond)))
}

func TestAuction_HasReservePrice(t *testing.T) {
	assert.True(t, (&Auction{ReservePrice: 10}).HasReservePrice())
	assert.False(t, (&Auction{ReservePrice: 0}).HasReservePrice())
}

func TestNewBidAccepted(t *testing.T) {
	bid := &Bid{ID: "b1", AuctionID: "a1", Amount: 80, BidTime: now, Disposition: AcceptedBelowReserve}
	evt, err := NewBidAccepted(bid)
	require.NoError(t, err)

	raw, err := json.Marshal(evt)
	require.NoError(t, err)
	assert.JSONEq(t,
		`{"auctionId":"a1","bidId":"b1","amount":80,"disposition":"AcceptedBelowReserve","submittedAt":"2025-07-27T16:00:00Z"}`,
		string(raw))

	_, err = NewBidAccepted(&Bid{Disposition: TooLow})
	assert.Error(t, err)
	_, err = NewBidAccepted(&Bid{Disposition: Finished})
	assert.Error(t, err)
}

func TestSubject(t *testing.T) {
	assert.Equal(t, "bids.accepted.a1", Subject(SubjectBidAccepted, "a1"))
	assert.Equal(t, "auctions.>", Wildcard("auctions"))
}

func TestErrorKinds(t *testing.T) {
	assert.True(t, errors.Is(ErrSelfBid, ErrValidation))
	assert.True(t, errors.Is(ErrInvalidAmount, ErrValidation))

	cause := errors.New("conn refused")
	err := Persistence("insert bid", cause)
	assert.True(t, errors.Is(err, ErrPersistence))
	assert.True(t, errors.Is(err, cause))

	assert.True(t, errors.Is(ProjectionApply("a1", cause), ErrProjectionApply))
	assert.True(t, errors.Is(Publish("bids.accepted.a1", cause), ErrPublish))
	assert.True(t, errors.Is(NotFound("auction", "a1"), ErrNotFound))
}
