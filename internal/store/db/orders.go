package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/himanstore/dmpilot/internal/store"
)

// OrderStore implements store.OrderStore.
type OrderStore struct {
	db *sql.DB
}

func (s *OrderStore) Get(ctx context.Context, conversationID string) (*store.OrderCandidate, error) {
	var (
		c        store.OrderCandidate
		note     sql.NullString
		payload  sql.NullString
		placedMs sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT conversation_id, status, note, payload, history, placed_ms, updated_ms
		FROM order_candidates WHERE conversation_id = $1`,
		conversationID,
	).Scan(&c.ConversationID, &c.Status, &note, &payload, (*rawString)(&c.History), &placedMs, &c.UpdatedMs)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get candidate: %w", err)
	}
	c.Note = note.String
	if payload.Valid {
		c.Payload = []byte(payload.String)
	}
	c.PlacedMs = placedMs.Int64
	return &c, nil
}

func (s *OrderStore) Upsert(ctx context.Context, c store.OrderCandidate) error {
	history := c.History
	if len(history) == 0 {
		history = []byte("[]")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO order_candidates (conversation_id, status, note, payload, history, placed_ms, updated_ms)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (conversation_id) DO UPDATE SET
			status = excluded.status,
			note = excluded.note,
			payload = excluded.payload,
			history = excluded.history,
			placed_ms = excluded.placed_ms,
			updated_ms = excluded.updated_ms`,
		c.ConversationID, c.Status, nilStr(c.Note), nilRaw(c.Payload), string(history),
		nilMs(c.PlacedMs), c.UpdatedMs,
	)
	if err != nil {
		return fmt.Errorf("upsert candidate: %w", err)
	}
	return nil
}

func nilMs(ms int64) any {
	if ms == 0 {
		return nil
	}
	return ms
}

// rawString scans a TEXT column directly into json.RawMessage.
type rawString []byte

func (r *rawString) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*r = nil
	case string:
		*r = []byte(v)
	case []byte:
		*r = append([]byte(nil), v...)
	default:
		return fmt.Errorf("unsupported raw scan type %T", src)
	}
	return nil
}
