// Package bus is the at-least-once message bus the two services talk over.
package bus

import (
	"context"
	"errors"
	"fmt"
	"time"
)

type Message struct {
	Subject string
	Data    []byte
	ID      string
	// Header is only set on dead letters.
	Header map[string]string
	// Attempt is 1 on the first delivery.
	Attempt int
}

// Handler processes one delivery. A nil return acknowledges it; any other
// error schedules a redelivery unless it is Permanent.
type Handler func(ctx context.Context, msg Message) error

type Subscription struct {
	// Name is the durable consumer name. Deliveries are load-balanced across
	// every subscriber sharing it.
	Name              string
	Subject           string
	RetryInterval     time.Duration
	MaxAttempts       int
	HandlerTimeout    time.Duration
	DeadLetterSubject string
}

func (s Subscription) Validate() error {
	if s.Name == "" || s.Subject == "" {
		return errors.New("subscription needs a name and a subject")
	}
	if s.MaxAttempts < 1 {
		return fmt.Errorf("subscription %s: max attempts must be at least 1", s.Name)
	}
	return nil
}

type Publisher interface {
	// Publish returns once the bus has durably accepted the message. msgID
	// lets the bus drop duplicates of the same logical message; a dropped
	// republish returns ErrDuplicate.
	Publish(ctx context.Context, subject string, data []byte, msgID string) error
}

type Subscriber interface {
	// Subscribe delivers matching messages to h until ctx is done.
	Subscribe(ctx context.Context, sub Subscription, h Handler) error
}

// Dead-letter headers carried next to the original payload.
const (
	HeaderOriginalSubject = "Dlq-Original-Subject"
	HeaderConsumer        = "Dlq-Consumer"
	HeaderReason          = "Dlq-Reason"
)

var (
	ErrPermanent = errors.New("permanent failure")
	// ErrDuplicate means the bus already holds a message with the same msgID
	// inside its duplicate window. Nothing was delivered; the earlier copy
	// stands.
	ErrDuplicate = errors.New("duplicate message")
)

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() []error {
	return []error{ErrPermanent, e.err}
}

// Permanent marks err as not worth retrying; the delivery is dead-lettered
// right away.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

func IsPermanent(err error) bool { return errors.Is(err, ErrPermanent) }

// DeadLetterSubject is the subject dead letters of consumer are routed to.
func DeadLetterSubject(base, consumer string) string {
	return base + "." + consumer
}
