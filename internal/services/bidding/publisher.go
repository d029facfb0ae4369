package bidding

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"bidledger/internal/bus"
	"bidledger/internal/models"
)

// EventPublisher puts BidAccepted events on the bus. Each event uses the bid
// ID as its message ID, so a republish of the same bid is deduplicated by
// the bus where it can. A dropped republish returns bus.ErrDuplicate
// unwrapped; it is not a publish failure.
type EventPublisher struct {
	pub bus.Publisher
}

func NewEventPublisher(pub bus.Publisher, attempts int, backoff time.Duration) *EventPublisher {
	return &EventPublisher{pub: bus.WithRetry(pub, attempts, backoff)}
}

func (p *EventPublisher) PublishBidAccepted(ctx context.Context, evt models.BidAccepted) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	subject := models.Subject(models.SubjectBidAccepted, evt.AuctionID)
	if err := p.pub.Publish(ctx, subject, data, evt.BidID); err != nil {
		if errors.Is(err, bus.ErrDuplicate) {
			return bus.ErrDuplicate
		}
		return models.Publish(subject, err)
	}
	return nil
}
