package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/himanstore/dmpilot/internal/store"
)

// MessageStore implements store.MessageStore.
type MessageStore struct {
	db *sql.DB
}

func (s *MessageStore) Insert(ctx context.Context, msg store.Message) error {
	if msg.ID == "" {
		msg.ID = uuid.Must(uuid.NewV7()).String()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (id, conversation_id, direction, text, timestamp_ms, provider_message_id)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		msg.ID, msg.ConversationID, msg.Direction, msg.Text, msg.TimestampMs, nilStr(msg.ProviderMessageID),
	)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

// History returns the newest limit messages in ascending timestamp order.
func (s *MessageStore) History(ctx context.Context, conversationID string, limit int) ([]store.Message, error) {
	if limit <= 0 {
		limit = 40
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, conversation_id, direction, text, timestamp_ms, provider_message_id FROM (
			SELECT id, conversation_id, direction, text, timestamp_ms, provider_message_id
			FROM messages
			WHERE conversation_id = $1
			ORDER BY timestamp_ms DESC
			LIMIT $2
		) recent ORDER BY timestamp_ms ASC`,
		conversationID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("history: %w", err)
	}
	defer rows.Close()

	var out []store.Message
	for rows.Next() {
		var m store.Message
		var pmid sql.NullString
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Direction, &m.Text, &m.TimestampMs, &pmid); err != nil {
			return nil, fmt.Errorf("history scan: %w", err)
		}
		m.ProviderMessageID = pmid.String
		out = append(out, m)
	}
	return out, rows.Err()
}

func nilStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}
