package models

import (
	"fmt"
	"time"
)

// Disposition is the outcome assigned to a bid when it is evaluated.
type Disposition string

const (
	Accepted             Disposition = "Accepted"
	AcceptedBelowReserve Disposition = "AcceptedBelowReserve"
	TooLow               Disposition = "TooLow"
	Finished             Disposition = "Finished"
)

// IsAccepting reports whether a bid with this disposition became the leader.
// Both accepting values move the cached high bid.
func (d Disposition) IsAccepting() bool {
	return d == Accepted || d == AcceptedBelowReserve
}

func (d Disposition) Valid() bool {
	switch d {
	case Accepted, AcceptedBelowReserve, TooLow, Finished:
		return true
	}
	return false
}

func ParseDisposition(s string) (Disposition, error) {
	d := Disposition(s)
	if !d.Valid() {
		return "", fmt.Errorf("unknown disposition %q", s)
	}
	return d, nil
}

// Decide classifies a bid of amount against the auction and its current
// leader (nil when no accepting bid exists yet). Branches are evaluated in
// order and each one is terminal.
func Decide(a *Auction, leader *Bid, amount int64, now time.Time) Disposition {
	if a.State(now) == Ended {
		return Finished
	}
	if leader == nil || amount > leader.Amount {
		if amount > a.ReservePrice {
			return Accepted
		}
		return AcceptedBelowReserve
	}
	return TooLow
}
