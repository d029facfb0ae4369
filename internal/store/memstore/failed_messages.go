package memstore

import (
	"context"
	"strconv"
	"sync"
	"time"

	"bidledger/internal/models"
	"bidledger/internal/store"
)

type FailedMessageStore struct {
	mu     sync.Mutex
	nextID int64
	rows   []store.FailedMessage
}

var _ store.FailedMessageStore = (*FailedMessageStore)(nil)

func NewFailedMessageStore() *FailedMessageStore { return &FailedMessageStore{} }

func (s *FailedMessageStore) Record(_ context.Context, m *store.FailedMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	m.ID = s.nextID
	if m.FailedAt.IsZero() {
		m.FailedAt = time.Now().UTC()
	}
	row := *m
	row.Payload = append([]byte(nil), m.Payload...)
	s.rows = append(s.rows, row)
	return nil
}

// Pending returns unreplayed messages, oldest first.
func (s *FailedMessageStore) Pending(_ context.Context, limit int) ([]store.FailedMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []store.FailedMessage
	for _, r := range s.rows {
		if r.ReplayedAt != nil {
			continue
		}
		out = append(out, r)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *FailedMessageStore) MarkReplayed(_ context.Context, id int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.rows {
		if s.rows[i].ID == id {
			s.rows[i].ReplayedAt = &at
			return nil
		}
	}
	return models.NotFound("failed message", strconv.FormatInt(id, 10))
}
