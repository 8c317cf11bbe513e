// Package notify persists admin escalations and broadcasts them to operator
// channels. Persistence is authoritative; broadcast failures are logged and
// never fail the calling cycle.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/himanstore/dmpilot/internal/store"
)

// Broadcaster pushes one escalation to an operator channel.
type Broadcaster interface {
	Broadcast(ctx context.Context, n store.AdminNotification) error
	Name() string
}

// Notifier writes escalations to the store and fans them out.
type Notifier struct {
	store        store.NotificationStore
	broadcasters []Broadcaster
}

func New(st store.NotificationStore, broadcasters ...Broadcaster) *Notifier {
	return &Notifier{store: st, broadcasters: broadcasters}
}

// Notify records the escalation and broadcasts it best-effort.
func (n *Notifier) Notify(ctx context.Context, conversationID, text, severity string) error {
	if severity == "" {
		severity = "normal"
	}
	rec := store.AdminNotification{
		ConversationID: conversationID,
		Text:           text,
		Severity:       severity,
		CreatedMs:      time.Now().UnixMilli(),
	}
	if err := n.store.Insert(ctx, rec); err != nil {
		return fmt.Errorf("persist notification: %w", err)
	}

	for _, b := range n.broadcasters {
		if err := b.Broadcast(ctx, rec); err != nil {
			slog.Warn("notification broadcast failed",
				"channel", b.Name(),
				"conversation", conversationID,
				"error", err)
		}
	}
	return nil
}
