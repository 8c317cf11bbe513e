package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/himanstore/dmpilot/internal/store"
)

// NotificationStore implements store.NotificationStore.
type NotificationStore struct {
	db *sql.DB
}

func (s *NotificationStore) Insert(ctx context.Context, n store.AdminNotification) error {
	if n.ID == "" {
		n.ID = uuid.Must(uuid.NewV7()).String()
	}
	if n.Severity == "" {
		n.Severity = "normal"
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO admin_notifications (id, conversation_id, text, severity, metadata, created_ms)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		n.ID, nilStr(n.ConversationID), n.Text, n.Severity, nilRaw(n.Metadata), n.CreatedMs,
	)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}
