package models

import (
	"errors"
	"fmt"
)

// Error kinds. Concrete errors wrap one of these so callers can classify
// them with errors.Is.
var (
	ErrValidation      = errors.New("validation failed")
	ErrNotFound        = errors.New("not found")
	ErrForbidden       = errors.New("forbidden")
	ErrPersistence     = errors.New("persistence failure")
	ErrPublish         = errors.New("publish failure")
	ErrProjectionApply = errors.New("projection apply failure")
)

var (
	ErrInvalidAmount = fmt.Errorf("%w: bid amount must be positive", ErrValidation)
	ErrSelfBid       = fmt.Errorf("%w: you cannot place a bid on your own auction", ErrValidation)
)

// Persistence wraps a store failure of op.
func Persistence(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrPersistence, err)
}

func Publish(subject string, err error) error {
	return fmt.Errorf("publish %s: %w: %w", subject, ErrPublish, err)
}

func ProjectionApply(auctionID string, err error) error {
	return fmt.Errorf("apply high bid to auction %s: %w: %w", auctionID, ErrProjectionApply, err)
}

func NotFound(what, id string) error {
	return fmt.Errorf("%s %s: %w", what, id, ErrNotFound)
}
