// Package store defines the persistence interfaces for the reply automation
// pipeline. A single database/sql implementation lives in store/db and works
// against Postgres (managed mode) and SQLite (standalone mode).
package store

import (
	"context"
	"encoding/json"

	"github.com/himanstore/dmpilot/internal/memory"
)

// Status is the conversation automation status.
type Status string

const (
	StatusPending    Status = "pending"
	StatusRunning    Status = "running"
	StatusPaused     Status = "paused"
	StatusSuggested  Status = "suggested"
	StatusSent       Status = "sent"
	StatusError      Status = "error"
	StatusNeedsAdmin Status = "needs_admin"
	StatusNeedsLink  Status = "needs_link"
	StatusExhausted  Status = "exhausted"
)

// Terminal reports whether the status is a terminal escalation that inbound
// activity must not reset.
func (s Status) Terminal() bool {
	return s == StatusNeedsAdmin || s == StatusNeedsLink
}

// ConversationState is one row of automation state per conversation.
// NextAttemptMs == 0 means "no scheduled attempt" (stored as NULL).
type ConversationState struct {
	ConversationID string
	Status         Status
	LastInboundMs  int64
	PostponeCount  int
	NextAttemptMs  int64
	ProductID      string // catalog anchor from ad/post link; empty = unlinked
	Memory         memory.Memory
	UpdatedMs      int64
}

// ReplyLogEntry is one append-only audit record per pipeline decision.
type ReplyLogEntry struct {
	ID             string
	ConversationID string
	Text           string
	Confidence     float64
	Reason         string
	Status         string // sent | suggested | no_reply | error | info
	AttemptNo      int
	CreatedMs      int64
	Actions        json.RawMessage
	Memory         json.RawMessage
}

// OutboundMessage is one unit actually sent through the transport.
type OutboundMessage struct {
	ID                string
	ConversationID    string
	ProviderMessageID string
	Text              string
	Seq               int
	ProductID         string
	CreatedMs         int64
}

// Message is one transcript row, inbound or outbound.
type Message struct {
	ID                string
	ConversationID    string
	Direction         string // "in" | "out"
	Text              string
	TimestampMs       int64
	ProviderMessageID string
}

// Product is a catalog anchor for a conversation.
type Product struct {
	ID                string
	Slug              string
	Name              string
	DefaultPrice      float64 // 0 = no override
	AutoReply         bool
	SystemPrompt      string
	VariantExclusions string // JSON: {"colors":[...],"sizes":[...]}
}

// Variant is one sellable product variant.
type Variant struct {
	SKU       string
	ProductID string
	Name      string
	Color     string
	Size      string
	Price     float64
}

// ProductImage is a catalog image eligible for automated sending.
type ProductImage struct {
	ID         string
	ProductID  string
	URL        string
	VariantKey string
	Send       bool
	SendOrder  int // 0 = unordered, sorts after explicit orders
	Position   int
}

// OrderCandidate tracks sales progress for a conversation.
type OrderCandidate struct {
	ConversationID string
	Status         string // interested | very-interested | not-interested | placed
	Note           string
	Payload        json.RawMessage
	History        json.RawMessage // append-only event list
	PlacedMs       int64
	UpdatedMs      int64
}

// AdminNotification is a persisted operator escalation.
type AdminNotification struct {
	ID             string
	ConversationID string
	Text           string
	Severity       string
	Metadata       json.RawMessage
	CreatedMs      int64
}

// ConversationStore holds per-conversation automation state. Claim is the
// system's only concurrency primitive.
type ConversationStore interface {
	// UpsertOnInbound extends the inbound watermark and resets
	// postpone_count and status to pending, unless the row is running or in
	// a terminal escalation.
	UpsertOnInbound(ctx context.Context, conversationID string, inboundMs int64) error

	// Claim atomically moves {pending,paused} → running. Returns false when
	// another worker owns the row.
	Claim(ctx context.Context, conversationID string, nowMs int64) (bool, error)

	// Release is the single writer after every processing attempt.
	Release(ctx context.Context, conversationID string, status Status, mem memory.Memory, nowMs int64) error

	// Postpone releases back to paused with an incremented postpone_count
	// and a scheduled next attempt.
	Postpone(ctx context.Context, conversationID string, nextAttemptMs, nowMs int64) error

	// SetProduct records the catalog anchor for a conversation.
	SetProduct(ctx context.Context, conversationID, productID string, nowMs int64) error

	Get(ctx context.Context, conversationID string) (*ConversationState, error)

	// DueBatch returns conversations eligible for processing, nulls-first by
	// next_attempt_ms, bounded by limit.
	DueBatch(ctx context.Context, nowMs int64, autoRetryMax, limit int) ([]ConversationState, error)
}

// MessageStore persists transcript rows and serves pipeline history.
type MessageStore interface {
	Insert(ctx context.Context, msg Message) error
	History(ctx context.Context, conversationID string, limit int) ([]Message, error)
}

// ReplyLogStore is the append-only audit trail.
type ReplyLogStore interface {
	Append(ctx context.Context, entry ReplyLogEntry) (string, error)
	// ActiveConversationsSince lists conversations with reply activity after
	// sinceMs, for the order-candidate sweep.
	ActiveConversationsSince(ctx context.Context, sinceMs int64, limit int) ([]string, error)
}

// OutboundStore records sent units and answers idempotency queries.
type OutboundStore interface {
	Insert(ctx context.Context, rec OutboundMessage) error
	// LastSentMs returns the newest created_ms for the conversation, 0 when
	// nothing was ever sent.
	LastSentMs(ctx context.Context, conversationID string) (int64, error)
	// HasProviderMessage reports whether the provider message id belongs to
	// a message this system sent (webhook echo detection).
	HasProviderMessage(ctx context.Context, providerMessageID string) (bool, error)
	// CountFor returns the number of units ever sent for the conversation.
	CountFor(ctx context.Context, conversationID string) (int, error)
}

// CatalogStore resolves products, variants, and images.
type CatalogStore interface {
	ProductByID(ctx context.Context, id string) (*Product, error)
	ProductBySlugOrSKU(ctx context.Context, key string) (*Product, error)
	VariantsFor(ctx context.Context, productID string) ([]Variant, error)
	// ImagesFor returns send-flagged images for the product, variant-key
	// preferred, ordered by send order then position.
	ImagesFor(ctx context.Context, productID, variantKey string, limit int) ([]ProductImage, error)
}

// OrderStore persists order candidates; transition rules live in
// internal/orders.
type OrderStore interface {
	Get(ctx context.Context, conversationID string) (*OrderCandidate, error)
	Upsert(ctx context.Context, candidate OrderCandidate) error
}

// NotificationStore persists admin escalations.
type NotificationStore interface {
	Insert(ctx context.Context, n AdminNotification) error
}

// SettingsStore reads runtime key/value settings.
type SettingsStore interface {
	// Bool returns the boolean setting, or def when the key is absent.
	Bool(ctx context.Context, key string, def bool) (bool, error)
}

// SettingAutoReplyEnabled is the global automation toggle key.
const SettingAutoReplyEnabled = "auto_reply_enabled"

// Stores bundles every store interface.
type Stores struct {
	Conversations ConversationStore
	Messages      MessageStore
	ReplyLog      ReplyLogStore
	Outbound      OutboundStore
	Catalog       CatalogStore
	Orders        OrderStore
	Notifications NotificationStore
	Settings      SettingsStore
}
