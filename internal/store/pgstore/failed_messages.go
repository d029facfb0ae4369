package pgstore

import (
	"context"
	"database/sql"
	"strconv"
	"time"

	"bidledger/internal/models"
	"bidledger/internal/store"
)

type FailedMessageStore struct {
	db *sql.DB
}

var _ store.FailedMessageStore = (*FailedMessageStore)(nil)

func NewFailedMessageStore(db *sql.DB) *FailedMessageStore { return &FailedMessageStore{db: db} }

func (s *FailedMessageStore) Record(ctx context.Context, m *store.FailedMessage) error {
	if m.FailedAt.IsZero() {
		m.FailedAt = time.Now().UTC()
	}
	const ins = `
	INSERT INTO failed_messages (consumer, subject, payload, reason, failed_at)
	     VALUES ($1, $2, $3, $4, $5)
	  RETURNING id`
	return s.db.QueryRowContext(ctx, ins, m.Consumer, m.Subject, m.Payload, m.Reason, m.FailedAt).Scan(&m.ID)
}

func (s *FailedMessageStore) Pending(ctx context.Context, limit int) ([]store.FailedMessage, error) {
	const q = `
	SELECT id, consumer, subject, payload, reason, failed_at
	  FROM failed_messages
	 WHERE replayed_at IS NULL
	 ORDER BY id
	 LIMIT $1`
	rows, err := s.db.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.FailedMessage
	for rows.Next() {
		var m store.FailedMessage
		if err := rows.Scan(&m.ID, &m.Consumer, &m.Subject, &m.Payload, &m.Reason, &m.FailedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *FailedMessageStore) MarkReplayed(ctx context.Context, id int64, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `UPDATE failed_messages SET replayed_at = $2 WHERE id = $1`, id, at)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return models.NotFound("failed message", strconv.FormatInt(id, 10))
	}
	return nil
}
