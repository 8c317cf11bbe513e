package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/himanstore/dmpilot/internal/notify"
	"github.com/himanstore/dmpilot/internal/pipeline"
	"github.com/himanstore/dmpilot/internal/store"
)

// Config tunes the worker loop.
type Config struct {
	ScanInterval          time.Duration
	BatchSize             int
	DebounceSeconds       int
	PostponeWindowSeconds int
	PostponeMax           int
	AutoRetryMax          int
	ConfidenceThreshold   float64
	GuardWindow           time.Duration
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		ScanInterval:          500 * time.Millisecond,
		BatchSize:             20,
		DebounceSeconds:       30,
		PostponeWindowSeconds: 180,
		PostponeMax:           3,
		AutoRetryMax:          3,
		ConfidenceThreshold:   0.49,
		GuardWindow:           10 * time.Second,
	}
}

// Processor runs one full cycle for a conversation the scanner has claimed.
type Processor struct {
	stores     store.Stores
	pipe       *pipeline.Pipeline
	dispatcher *Dispatcher
	effects    *SideEffects
	notifier   *notify.Notifier
	cfg        Config
	now        func() time.Time
}

func NewProcessor(stores store.Stores, pipe *pipeline.Pipeline, dispatcher *Dispatcher, effects *SideEffects, notifier *notify.Notifier, cfg Config) *Processor {
	return &Processor{
		stores:     stores,
		pipe:       pipe,
		dispatcher: dispatcher,
		effects:    effects,
		notifier:   notifier,
		cfg:        cfg,
		now:        time.Now,
	}
}

// Process handles one claimed conversation end to end. It always releases
// the claim: every path below ends in Release or Postpone.
func (p *Processor) Process(ctx context.Context, conversationID string) error {
	state, err := p.stores.Conversations.Get(ctx, conversationID)
	if err != nil {
		return fmt.Errorf("load state: %w", err)
	}
	if state == nil {
		return fmt.Errorf("claimed conversation %s has no state row", conversationID)
	}

	nowMs := p.now().UnixMilli()
	verdict := evaluateDebounce(state.LastInboundMs, nowMs, p.cfg.DebounceSeconds, p.cfg.PostponeWindowSeconds, state.PostponeCount, p.cfg.PostponeMax)
	switch {
	case verdict.Exhaust:
		slog.Warn("postpone budget spent, giving up",
			"conversation", conversationID,
			"postpone_count", state.PostponeCount)
		return p.releaseBare(ctx, state, store.StatusExhausted, "info", "postpone budget exhausted")
	case verdict.Wait:
		slog.Debug("postponing, customer still typing",
			"conversation", conversationID,
			"postpone_count", state.PostponeCount+1)
		return p.stores.Conversations.Postpone(ctx, conversationID, verdict.NextAttemptMs, nowMs)
	}

	decision, pctx, err := p.pipe.Run(ctx, state)
	if err != nil {
		return p.handlePipelineError(ctx, state, err)
	}

	mem, adminRequested := p.effects.Apply(ctx, conversationID, decision)
	decision.Memory = mem

	if !decision.ShouldReply {
		return p.finishNoReply(ctx, state, decision, adminRequested)
	}

	input, err := ResolvePolicyInput(ctx, p.stores, conversationID, pctx.Product, p.cfg.ConfidenceThreshold)
	if err != nil {
		return p.release(ctx, state, store.StatusError, decision, "error", err.Error())
	}
	outcome := EvaluatePolicy(decision, input)

	if !outcome.Send {
		slog.Info("reply held as suggestion",
			"conversation", conversationID,
			"reason", outcome.Reason,
			"confidence", decision.Confidence)
		if outcome.Reason == "low_confidence" {
			text := fmt.Sprintf("draft held for review (confidence %.2f): %s", decision.Confidence, decision.ReplyText)
			if nerr := p.notifier.Notify(ctx, conversationID, text, "normal"); nerr != nil {
				slog.Error("suggestion notify failed", "conversation", conversationID, "error", nerr)
			}
		}
		return p.release(ctx, state, statusOr(adminRequested, store.StatusSuggested), decision, "suggested", outcome.Reason)
	}

	mem, delivered, err := p.dispatcher.Dispatch(ctx, conversationID, decision, pctx)
	decision.Memory = mem
	switch {
	case errors.Is(err, ErrGuardWindow):
		return p.release(ctx, state, statusOr(adminRequested, store.StatusSuggested), decision, "suggested", "guard_window")
	case err != nil:
		slog.Error("dispatch failed",
			"conversation", conversationID,
			"delivered", delivered,
			"error", err)
		return p.release(ctx, state, statusOr(adminRequested, store.StatusSuggested), decision, "error", "transport: "+err.Error())
	}

	slog.Info("reply sent",
		"conversation", conversationID,
		"units", delivered,
		"confidence", decision.Confidence)
	return p.release(ctx, state, statusOr(adminRequested, store.StatusSent), decision, "sent", outcome.Reason)
}

func (p *Processor) handlePipelineError(ctx context.Context, state *store.ConversationState, err error) error {
	conversationID := state.ConversationID

	if errors.Is(err, pipeline.ErrMissingContext) {
		slog.Warn("conversation has no product link", "conversation", conversationID)
		if nerr := p.notifier.Notify(ctx, conversationID, "conversation needs a product link", "normal"); nerr != nil {
			slog.Error("needs-link notify failed", "conversation", conversationID, "error", nerr)
		}
		return p.releaseBare(ctx, state, store.StatusNeedsLink, "info", "missing product context")
	}

	slog.Error("pipeline failed", "conversation", conversationID, "error", err)
	return p.releaseBare(ctx, state, store.StatusError, "error", err.Error())
}

// finishNoReply parks a conversation the serializer declined to answer.
// Retried paused rows that keep declining stop retrying once the retry
// budget is spent; a fresh inbound message resets everything.
func (p *Processor) finishNoReply(ctx context.Context, state *store.ConversationState, decision *pipeline.Decision, adminRequested bool) error {
	status := store.StatusPaused
	if adminRequested {
		status = store.StatusNeedsAdmin
	} else if state.PostponeCount >= p.cfg.AutoRetryMax {
		status = store.StatusExhausted
	}
	return p.release(ctx, state, status, decision, "no_reply", decision.Reason)
}

func (p *Processor) release(ctx context.Context, state *store.ConversationState, status store.Status, decision *pipeline.Decision, logStatus, reason string) error {
	p.appendLog(ctx, state, decision, logStatus, reason)
	if err := p.stores.Conversations.Release(ctx, state.ConversationID, status, decision.Memory, p.now().UnixMilli()); err != nil {
		return fmt.Errorf("release %s: %w", state.ConversationID, err)
	}
	return nil
}

// releaseBare releases without a decision (pipeline never produced one).
func (p *Processor) releaseBare(ctx context.Context, state *store.ConversationState, status store.Status, logStatus, reason string) error {
	entry := store.ReplyLogEntry{
		ConversationID: state.ConversationID,
		Status:         logStatus,
		Reason:         reason,
		AttemptNo:      state.PostponeCount,
		CreatedMs:      p.now().UnixMilli(),
	}
	if _, err := p.stores.ReplyLog.Append(ctx, entry); err != nil {
		slog.Error("reply log append failed", "conversation", state.ConversationID, "error", err)
	}
	if err := p.stores.Conversations.Release(ctx, state.ConversationID, status, state.Memory, p.now().UnixMilli()); err != nil {
		return fmt.Errorf("release %s: %w", state.ConversationID, err)
	}
	return nil
}

func (p *Processor) appendLog(ctx context.Context, state *store.ConversationState, decision *pipeline.Decision, logStatus, reason string) {
	actions, _ := json.Marshal(decision.Actions)
	entry := store.ReplyLogEntry{
		ConversationID: state.ConversationID,
		Text:           decision.ReplyText,
		Confidence:     decision.Confidence,
		Reason:         reason,
		Status:         logStatus,
		AttemptNo:      state.PostponeCount,
		CreatedMs:      p.now().UnixMilli(),
		Actions:        actions,
		Memory:         decision.Memory.Encode(),
	}
	if _, err := p.stores.ReplyLog.Append(ctx, entry); err != nil {
		slog.Error("reply log append failed", "conversation", state.ConversationID, "error", err)
	}
}

func statusOr(adminRequested bool, status store.Status) store.Status {
	if adminRequested {
		return store.StatusNeedsAdmin
	}
	return status
}
