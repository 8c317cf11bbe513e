package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/himanstore/dmpilot/internal/store"
)

// ReplyLogStore implements store.ReplyLogStore. Rows are append-only.
type ReplyLogStore struct {
	db *sql.DB
}

func (s *ReplyLogStore) Append(ctx context.Context, entry store.ReplyLogEntry) (string, error) {
	if entry.ID == "" {
		entry.ID = uuid.Must(uuid.NewV7()).String()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO reply_log (id, conversation_id, text, confidence, reason, status, attempt_no, action_requests, memory, created_ms)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		entry.ID, entry.ConversationID, entry.Text, entry.Confidence, nilStr(entry.Reason),
		entry.Status, entry.AttemptNo, nilRaw(entry.Actions), nilRaw(entry.Memory), entry.CreatedMs,
	)
	if err != nil {
		return "", fmt.Errorf("append reply log: %w", err)
	}
	return entry.ID, nil
}

func (s *ReplyLogStore) ActiveConversationsSince(ctx context.Context, sinceMs int64, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 200
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT conversation_id FROM reply_log
		WHERE created_ms >= $1 AND status IN ('sent','suggested')
		LIMIT $2`,
		sinceMs, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("active conversations: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("active conversations scan: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func nilRaw(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}
