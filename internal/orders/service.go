// Package orders tracks per-conversation sales progress. A conversation has
// at most one order candidate whose status only moves forward: once placed,
// nothing downgrades it.
package orders

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/himanstore/dmpilot/internal/store"
)

// Candidate statuses.
const (
	StatusInterested     = "interested"
	StatusVeryInterested = "very-interested"
	StatusNotInterested  = "not-interested"
	StatusPlaced         = "placed"
)

// rank orders statuses by sales progress. Transitions never move to a lower
// rank except the explicit not-interested downgrade, which itself never
// touches a placed order.
var rank = map[string]int{
	StatusNotInterested:  0,
	StatusInterested:     1,
	StatusVeryInterested: 2,
	StatusPlaced:         3,
}

type historyEvent struct {
	Status string `json:"status"`
	Note   string `json:"note,omitempty"`
	AtMs   int64  `json:"at_ms"`
}

// Service applies transition rules over the order store.
type Service struct {
	store store.OrderStore
	now   func() time.Time
}

func New(st store.OrderStore) *Service {
	return &Service{store: st, now: time.Now}
}

// MarkInterested records customer interest.
func (s *Service) MarkInterested(ctx context.Context, conversationID, note string) error {
	return s.transition(ctx, conversationID, StatusInterested, note, nil)
}

// MarkVeryInterested records strong interest (sizing and address talk).
func (s *Service) MarkVeryInterested(ctx context.Context, conversationID, note string) error {
	return s.transition(ctx, conversationID, StatusVeryInterested, note, nil)
}

// MarkNotInterested records an explicit decline. Placed orders are immune.
func (s *Service) MarkNotInterested(ctx context.Context, conversationID, note string) error {
	existing, err := s.store.Get(ctx, conversationID)
	if err != nil {
		return err
	}
	if existing != nil && existing.Status == StatusPlaced {
		return nil
	}
	return s.force(ctx, existing, conversationID, StatusNotInterested, note, nil)
}

// SubmitOrder promotes the candidate to placed with the given payload
// (cart, address, phone as emitted by the serializer).
func (s *Service) SubmitOrder(ctx context.Context, conversationID, note string, payload json.RawMessage) error {
	return s.transition(ctx, conversationID, StatusPlaced, note, payload)
}

// Snapshot returns the candidate, or nil when none exists.
func (s *Service) Snapshot(ctx context.Context, conversationID string) (*store.OrderCandidate, error) {
	return s.store.Get(ctx, conversationID)
}

func (s *Service) transition(ctx context.Context, conversationID, status, note string, payload json.RawMessage) error {
	existing, err := s.store.Get(ctx, conversationID)
	if err != nil {
		return err
	}
	if existing != nil && rank[existing.Status] >= rank[status] {
		// Already at or past this stage; keep a fresher payload though.
		if status == StatusPlaced && len(payload) > 0 {
			existing.Payload = payload
			existing.UpdatedMs = s.now().UnixMilli()
			return s.store.Upsert(ctx, *existing)
		}
		return nil
	}
	return s.force(ctx, existing, conversationID, status, note, payload)
}

func (s *Service) force(ctx context.Context, existing *store.OrderCandidate, conversationID, status, note string, payload json.RawMessage) error {
	nowMs := s.now().UnixMilli()

	candidate := store.OrderCandidate{ConversationID: conversationID}
	if existing != nil {
		candidate = *existing
	}
	candidate.Status = status
	candidate.Note = note
	candidate.UpdatedMs = nowMs
	if len(payload) > 0 {
		candidate.Payload = payload
	}
	if status == StatusPlaced && candidate.PlacedMs == 0 {
		candidate.PlacedMs = nowMs
	}

	history, err := appendHistory(candidate.History, historyEvent{Status: status, Note: note, AtMs: nowMs})
	if err != nil {
		return fmt.Errorf("append order history: %w", err)
	}
	candidate.History = history

	return s.store.Upsert(ctx, candidate)
}

func appendHistory(raw json.RawMessage, event historyEvent) (json.RawMessage, error) {
	var events []historyEvent
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &events); err != nil {
			// A corrupt history never blocks the transition.
			events = nil
		}
	}
	events = append(events, event)
	return json.Marshal(events)
}
