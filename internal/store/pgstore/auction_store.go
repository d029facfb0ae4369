package pgstore

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"bidledger/internal/models"
	"bidledger/internal/store"

	"github.com/google/uuid"
)

type AuctionStore struct {
	db  *sql.DB
	now func() time.Time
}

var _ store.AuctionStore = (*AuctionStore)(nil)

func NewAuctionStore(db *sql.DB) *AuctionStore {
	return &AuctionStore{db: db, now: time.Now}
}

const auctionColumns = `id, seller, make, model, year, color, mileage, image_url,
	reserve_price, auction_end, current_high_bid, created_at, updated_at`

func scanAuction(r rowScanner) (*models.Auction, error) {
	var (
		a    models.Auction
		high sql.NullInt64
	)
	err := r.Scan(&a.ID, &a.Seller,
		&a.Item.Make, &a.Item.Model, &a.Item.Year, &a.Item.Color, &a.Item.Mileage, &a.Item.ImageURL,
		&a.ReservePrice, &a.AuctionEnd, &high, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if high.Valid {
		a.CurrentHighBid = &high.Int64
	}
	a.AuctionEnd = a.AuctionEnd.UTC()
	a.CreatedAt = a.CreatedAt.UTC()
	a.UpdatedAt = a.UpdatedAt.UTC()
	return &a, nil
}

func (s *AuctionStore) Get(ctx context.Context, id string) (*models.Auction, error) {
	a, err := scanAuction(s.db.QueryRowContext(ctx,
		`SELECT `+auctionColumns+` FROM auctions WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.NotFound("auction", id)
	}
	return a, err
}

func (s *AuctionStore) List(ctx context.Context, updatedAfter *time.Time) ([]models.Auction, error) {
	var (
		rows *sql.Rows
		err  error
	)
	base := `SELECT ` + auctionColumns + ` FROM auctions`
	if updatedAfter != nil {
		rows, err = s.db.QueryContext(ctx, base+` WHERE updated_at > $1 ORDER BY auction_end`, *updatedAfter)
	} else {
		rows, err = s.db.QueryContext(ctx, base+` ORDER BY auction_end`)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	list := make([]models.Auction, 0)
	for rows.Next() {
		a, err := scanAuction(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *a)
	}
	return list, rows.Err()
}

// Create inserts a; the cached high bid always starts empty.
func (s *AuctionStore) Create(ctx context.Context, a *models.Auction) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	now := s.now().UTC()
	a.CreatedAt, a.UpdatedAt = now, now
	a.CurrentHighBid = nil

	const ins = `
	INSERT INTO auctions (id, seller, make, model, year, color, mileage, image_url,
	                      reserve_price, auction_end, created_at, updated_at)
	     VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`
	_, err := s.db.ExecContext(ctx, ins,
		a.ID, a.Seller,
		a.Item.Make, a.Item.Model, a.Item.Year, a.Item.Color, a.Item.Mileage, a.Item.ImageURL,
		a.ReservePrice, a.AuctionEnd, a.CreatedAt, a.UpdatedAt)
	return err
}

func (s *AuctionStore) Update(ctx context.Context, a *models.Auction) error {
	const upd = `
	UPDATE auctions
	   SET make = $2, model = $3, year = $4, color = $5, mileage = $6, image_url = $7,
	       reserve_price = $8, auction_end = $9, updated_at = $10
	 WHERE id = $1
	RETURNING ` + auctionColumns
	got, err := scanAuction(s.db.QueryRowContext(ctx, upd,
		a.ID,
		a.Item.Make, a.Item.Model, a.Item.Year, a.Item.Color, a.Item.Mileage, a.Item.ImageURL,
		a.ReservePrice, a.AuctionEnd, s.now().UTC()))
	if errors.Is(err, sql.ErrNoRows) {
		return models.NotFound("auction", a.ID)
	}
	if err != nil {
		return err
	}
	*a = *got
	return nil
}

func (s *AuctionStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM auctions WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return models.NotFound("auction", id)
	}
	return nil
}

// ConditionalSetHighBid is a single compare-and-set statement. When nothing
// was updated it tells a stale amount apart from a missing auction.
func (s *AuctionStore) ConditionalSetHighBid(ctx context.Context, id string, amount int64) (store.SetResult, error) {
	const upd = `
	UPDATE auctions
	   SET current_high_bid = $2
	 WHERE id = $1
	   AND (current_high_bid IS NULL OR current_high_bid < $2)`
	res, err := s.db.ExecContext(ctx, upd, id, amount)
	if err != nil {
		return store.Skipped, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return store.Skipped, err
	}
	if n == 1 {
		return store.Applied, nil
	}

	var exists bool
	if err := s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM auctions WHERE id = $1)`, id).Scan(&exists); err != nil {
		return store.Skipped, err
	}
	if !exists {
		return store.Skipped, models.NotFound("auction", id)
	}
	return store.Skipped, nil
}
