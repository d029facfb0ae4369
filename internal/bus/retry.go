package bus

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

type retrying struct {
	next     Publisher
	attempts int
	backoff  time.Duration
}

// WithRetry wraps p so a failed Publish is retried up to attempts times in
// total, waiting backoff after the first failure and doubling it after each
// further one.
func WithRetry(p Publisher, attempts int, backoff time.Duration) Publisher {
	if attempts < 1 {
		attempts = 1
	}
	return &retrying{next: p, attempts: attempts, backoff: backoff}
}

func (r *retrying) Publish(ctx context.Context, subject string, data []byte, msgID string) error {
	wait := r.backoff
	var err error
	for attempt := 1; ; attempt++ {
		err = r.next.Publish(ctx, subject, data, msgID)
		if err == nil || errors.Is(err, ErrDuplicate) {
			return err
		}
		if attempt >= r.attempts {
			return fmt.Errorf("after %d attempts: %w", attempt, err)
		}
		zap.L().Debug("publish_retry",
			zap.String("subject", subject),
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(err))

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return fmt.Errorf("after %d attempts: %w", attempt, ctx.Err())
		case <-t.C:
		}
		wait *= 2
	}
}
