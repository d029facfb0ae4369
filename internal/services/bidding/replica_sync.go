package bidding

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"bidledger/internal/bus"
	"bidledger/internal/models"
	"bidledger/internal/store"

	"go.uber.org/zap"
)

// ReplicaSync applies auction lifecycle events to the bidding side's auction
// replica. Both writes keep the newer version, so redelivered or reordered
// events converge.
type ReplicaSync struct {
	replica store.AuctionReplica
}

func NewReplicaSync(replica store.AuctionReplica) *ReplicaSync {
	return &ReplicaSync{replica: replica}
}

func (rs *ReplicaSync) HandleMessage(ctx context.Context, msg bus.Message) error {
	var evt models.AuctionChanged
	if err := json.Unmarshal(msg.Data, &evt); err != nil {
		return bus.Permanent(fmt.Errorf("decode %s: %w", msg.Subject, err))
	}
	if evt.ID == "" {
		return bus.Permanent(fmt.Errorf("decode %s: missing auction id", msg.Subject))
	}

	var (
		changed bool
		err     error
	)
	switch {
	case strings.HasPrefix(msg.Subject, models.SubjectAuctionDeleted+"."):
		changed, err = rs.replica.Remove(ctx, evt.ID, evt.UpdatedAt)
	case strings.HasPrefix(msg.Subject, models.SubjectAuctionCreated+"."),
		strings.HasPrefix(msg.Subject, models.SubjectAuctionUpdated+"."):
		changed, err = rs.replica.Upsert(ctx, evt)
	default:
		return bus.Permanent(fmt.Errorf("unexpected subject %s", msg.Subject))
	}
	if err != nil {
		return fmt.Errorf("replica %s: %w", evt.ID, err)
	}

	zap.L().Debug("replica_sync",
		zap.String("subject", msg.Subject),
		zap.String("auction_id", evt.ID),
		zap.Bool("changed", changed))
	return nil
}
