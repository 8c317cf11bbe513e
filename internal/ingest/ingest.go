// Package ingest records inbound webhook events into the transcript and the
// conversation state table.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/himanstore/dmpilot/internal/store"
)

// InboundMessage is one customer message event from the platform webhook.
type InboundMessage struct {
	ConversationID    string
	Text              string
	TimestampMs       int64
	ProviderMessageID string
	// ProductRef is the ad or post catalog reference, when the platform
	// attached one to the event.
	ProductRef string
}

// Ingestor persists inbound messages and keeps the automation state current.
type Ingestor struct {
	stores store.Stores
}

func New(stores store.Stores) *Ingestor {
	return &Ingestor{stores: stores}
}

// Record stores one inbound event. Webhook echoes of the system's own sends
// are detected by provider message id and dropped without touching state, so
// a sent reply never re-arms the debounce timer.
func (i *Ingestor) Record(ctx context.Context, msg InboundMessage) error {
	if msg.ConversationID == "" {
		return fmt.Errorf("inbound message missing conversation id")
	}
	if msg.TimestampMs == 0 {
		msg.TimestampMs = time.Now().UnixMilli()
	}

	if msg.ProviderMessageID != "" {
		echo, err := i.stores.Outbound.HasProviderMessage(ctx, msg.ProviderMessageID)
		if err != nil {
			return fmt.Errorf("echo check: %w", err)
		}
		if echo {
			slog.Debug("dropping webhook echo",
				"conversation", msg.ConversationID,
				"provider_message_id", msg.ProviderMessageID)
			return nil
		}
	}

	err := i.stores.Messages.Insert(ctx, store.Message{
		ConversationID:    msg.ConversationID,
		Direction:         "in",
		Text:              msg.Text,
		TimestampMs:       msg.TimestampMs,
		ProviderMessageID: msg.ProviderMessageID,
	})
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}

	if err := i.stores.Conversations.UpsertOnInbound(ctx, msg.ConversationID, msg.TimestampMs); err != nil {
		return fmt.Errorf("upsert conversation state: %w", err)
	}

	if ref := strings.TrimSpace(msg.ProductRef); ref != "" {
		i.linkProduct(ctx, msg.ConversationID, ref, msg.TimestampMs)
	}
	return nil
}

// linkProduct resolves the platform's catalog reference and anchors the
// conversation to it. Resolution failures are logged, not returned: the
// message itself is already recorded.
func (i *Ingestor) linkProduct(ctx context.Context, conversationID, ref string, nowMs int64) {
	product, err := i.stores.Catalog.ProductBySlugOrSKU(ctx, ref)
	if err != nil {
		slog.Warn("product ref lookup failed", "conversation", conversationID, "ref", ref, "error", err)
		return
	}
	if product == nil {
		slog.Warn("unknown product ref", "conversation", conversationID, "ref", ref)
		return
	}
	if err := i.stores.Conversations.SetProduct(ctx, conversationID, product.ID, nowMs); err != nil {
		slog.Warn("anchor product failed", "conversation", conversationID, "product", product.ID, "error", err)
	}
}
