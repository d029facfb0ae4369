// Package pgstore implements the stores on Postgres through database/sql
// and the pgx stdlib driver.
package pgstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"bidledger/internal/models"
	"bidledger/internal/store"

	"github.com/google/uuid"
)

type BidStore struct {
	db *sql.DB
}

var _ store.BidStore = (*BidStore)(nil)

func NewBidStore(db *sql.DB) *BidStore { return &BidStore{db: db} }

const bidColumns = `id, auction_id, bidder, amount, bid_time, disposition`

// WithAuctionLock runs fn in a transaction holding the auction's advisory
// lock. The lock is released on commit or rollback, so every bidding
// instance sharing the database serializes on the same auction.
func (s *BidStore) WithAuctionLock(ctx context.Context, auctionID string, fn func(context.Context, store.BidTx) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, auctionID); err != nil {
		return fmt.Errorf("lock auction %s: %w", auctionID, err)
	}
	if err = fn(ctx, &bidTx{tx: tx}); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *BidStore) ListForAuction(ctx context.Context, auctionID string) ([]models.Bid, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+bidColumns+` FROM bids WHERE auction_id = $1 ORDER BY bid_time DESC, id`, auctionID)
	if err != nil {
		return nil, err
	}
	return scanBids(rows)
}

func (s *BidStore) Leaders(ctx context.Context, since time.Time) ([]models.Bid, error) {
	const q = `
	SELECT ` + bidColumns + ` FROM (
	    SELECT DISTINCT ON (auction_id) ` + bidColumns + `
	      FROM bids
	     WHERE disposition IN ('Accepted', 'AcceptedBelowReserve')
	  ORDER BY auction_id, amount DESC
	) leaders
	WHERE bid_time >= $1
	ORDER BY auction_id`
	rows, err := s.db.QueryContext(ctx, q, since)
	if err != nil {
		return nil, err
	}
	return scanBids(rows)
}

type bidTx struct {
	tx *sql.Tx
}

func (t *bidTx) LeadingBid(ctx context.Context, auctionID string) (*models.Bid, error) {
	const q = `SELECT ` + bidColumns + `
	             FROM bids
	            WHERE auction_id = $1 AND disposition IN ('Accepted', 'AcceptedBelowReserve')
	         ORDER BY amount DESC
	            LIMIT 1`
	b, err := scanBid(t.tx.QueryRowContext(ctx, q, auctionID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return b, nil
}

func (t *bidTx) Insert(ctx context.Context, b *models.Bid) (string, error) {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	const ins = `INSERT INTO bids (` + bidColumns + `) VALUES ($1, $2, $3, $4, $5, $6)`
	if _, err := t.tx.ExecContext(ctx, ins,
		b.ID, b.AuctionID, b.Bidder, b.Amount, b.BidTime, string(b.Disposition)); err != nil {
		return "", err
	}
	return b.ID, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBid(r rowScanner) (*models.Bid, error) {
	var (
		b    models.Bid
		disp string
	)
	if err := r.Scan(&b.ID, &b.AuctionID, &b.Bidder, &b.Amount, &b.BidTime, &disp); err != nil {
		return nil, err
	}
	d, err := models.ParseDisposition(disp)
	if err != nil {
		return nil, err
	}
	b.Disposition = d
	b.BidTime = b.BidTime.UTC()
	return &b, nil
}

func scanBids(rows *sql.Rows) ([]models.Bid, error) {
	defer rows.Close()
	var out []models.Bid
	for rows.Next() {
		b, err := scanBid(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}
