package auction

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"bidledger/internal/bus"
	"bidledger/internal/store"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const replayBatch = 100

// FailedMessages records dead letters and puts them back on their original
// subject on demand or on a schedule.
type FailedMessages struct {
	store store.FailedMessageStore
	pub   bus.Publisher
	now   func() time.Time
	cron  *cron.Cron
}

func NewFailedMessages(st store.FailedMessageStore, pub bus.Publisher) *FailedMessages {
	return &FailedMessages{
		store: st,
		pub:   pub,
		now:   time.Now,
		cron:  cron.New(cron.WithSeconds()),
	}
}

// HandleMessage is the bus handler for the dead-letter subject.
func (f *FailedMessages) HandleMessage(ctx context.Context, msg bus.Message) error {
	m := &store.FailedMessage{
		Consumer: msg.Header[bus.HeaderConsumer],
		Subject:  msg.Header[bus.HeaderOriginalSubject],
		Payload:  msg.Data,
		Reason:   msg.Header[bus.HeaderReason],
		FailedAt: f.now().UTC(),
	}
	if m.Subject == "" {
		return bus.Permanent(fmt.Errorf("dead letter on %s has no original subject", msg.Subject))
	}
	if err := f.store.Record(ctx, m); err != nil {
		return fmt.Errorf("record failed message: %w", err)
	}
	zap.L().Warn("failed_message_recorded",
		zap.Int64("id", m.ID),
		zap.String("consumer", m.Consumer),
		zap.String("subject", m.Subject),
		zap.String("reason", m.Reason))
	return nil
}

// ReplayPending republishes every unreplayed message and returns how many
// went out.
func (f *FailedMessages) ReplayPending(ctx context.Context) (int, error) {
	pending, err := f.store.Pending(ctx, replayBatch)
	if err != nil {
		return 0, fmt.Errorf("load failed messages: %w", err)
	}

	var (
		n    int
		errs []error
	)
	for _, m := range pending {
		msgID := "replay-" + strconv.FormatInt(m.ID, 10)
		// a duplicate means an earlier replay already reached the bus
		if err := f.pub.Publish(ctx, m.Subject, m.Payload, msgID); err != nil && !errors.Is(err, bus.ErrDuplicate) {
			errs = append(errs, fmt.Errorf("replay %d: %w", m.ID, err))
			continue
		}
		if err := f.store.MarkReplayed(ctx, m.ID, f.now().UTC()); err != nil {
			errs = append(errs, fmt.Errorf("mark %d replayed: %w", m.ID, err))
			continue
		}
		n++
	}
	if n > 0 {
		zap.L().Info("failed_messages_replayed", zap.Int("count", n))
	}
	return n, errors.Join(errs...)
}

func (f *FailedMessages) Start(ctx context.Context, spec string) error {
	_, err := f.cron.AddFunc(spec, func() {
		if _, err := f.ReplayPending(ctx); err != nil {
			zap.L().Error("failed_messages_replay_error", zap.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("schedule replay %q: %w", spec, err)
	}
	f.cron.Start()
	go func() {
		<-ctx.Done()
		<-f.cron.Stop().Done()
	}()
	return nil
}
