package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/himanstore/dmpilot/internal/store"
)

// OutboundStore implements store.OutboundStore. provider_message_id carries
// a UNIQUE constraint, which is what makes webhook echoes idempotent.
type OutboundStore struct {
	db *sql.DB
}

func (s *OutboundStore) Insert(ctx context.Context, rec store.OutboundMessage) error {
	if rec.ID == "" {
		rec.ID = uuid.Must(uuid.NewV7()).String()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO outbound_messages (id, conversation_id, provider_message_id, text, seq, product_id, created_ms)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		rec.ID, rec.ConversationID, rec.ProviderMessageID, rec.Text, rec.Seq, nilStr(rec.ProductID), rec.CreatedMs,
	)
	if err != nil {
		return fmt.Errorf("insert outbound: %w", err)
	}
	return nil
}

func (s *OutboundStore) LastSentMs(ctx context.Context, conversationID string) (int64, error) {
	var ms sql.NullInt64
	err := s.db.QueryRowContext(ctx, `
		SELECT MAX(created_ms) FROM outbound_messages WHERE conversation_id = $1`,
		conversationID,
	).Scan(&ms)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("last sent: %w", err)
	}
	return ms.Int64, nil
}

func (s *OutboundStore) HasProviderMessage(ctx context.Context, providerMessageID string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `
		SELECT 1 FROM outbound_messages WHERE provider_message_id = $1 LIMIT 1`,
		providerMessageID,
	).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("has provider message: %w", err)
	}
	return true, nil
}

func (s *OutboundStore) CountFor(ctx context.Context, conversationID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM outbound_messages WHERE conversation_id = $1`,
		conversationID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count outbound: %w", err)
	}
	return n, nil
}
