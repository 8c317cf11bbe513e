// Package worker runs the reply automation loop: a scanner claims due
// conversations, a processor runs the generation pipeline for each, and a
// dispatcher sends what the policy gate approves.
package worker

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/himanstore/dmpilot/internal/store"
	"github.com/himanstore/dmpilot/internal/telemetry"
)

// Scanner polls for due conversations and drives the processor. The claim
// CAS in the store is the only cross-worker synchronization; any number of
// scanners can run against the same database.
type Scanner struct {
	conversations store.ConversationStore
	processor     *Processor
	cfg           Config
	tracer        trace.Tracer
	now           func() time.Time
}

func NewScanner(conversations store.ConversationStore, processor *Processor, cfg Config) *Scanner {
	return &Scanner{
		conversations: conversations,
		processor:     processor,
		cfg:           cfg,
		tracer:        telemetry.Tracer("dmpilot/worker"),
		now:           time.Now,
	}
}

// Run polls until ctx is cancelled. The conversation being processed when
// cancellation arrives finishes its cycle; the claim release is part of it.
func (s *Scanner) Run(ctx context.Context) error {
	slog.Info("scanner started",
		"interval", s.cfg.ScanInterval,
		"batch", s.cfg.BatchSize,
		"debounce_seconds", s.cfg.DebounceSeconds)

	ticker := time.NewTicker(s.cfg.ScanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("scanner stopped")
			return ctx.Err()
		case <-ticker.C:
			s.scanOnce(ctx)
		}
	}
}

func (s *Scanner) scanOnce(ctx context.Context) {
	nowMs := s.now().UnixMilli()
	batch, err := s.conversations.DueBatch(ctx, nowMs, s.cfg.AutoRetryMax, s.cfg.BatchSize)
	if err != nil {
		slog.Error("due batch query failed", "error", err)
		return
	}

	for _, state := range batch {
		if ctx.Err() != nil {
			return
		}
		claimed, err := s.conversations.Claim(ctx, state.ConversationID, s.now().UnixMilli())
		if err != nil {
			slog.Error("claim failed", "conversation", state.ConversationID, "error", err)
			continue
		}
		if !claimed {
			continue
		}
		s.processClaimed(ctx, state.ConversationID)
	}
}

// processClaimed runs one cycle with error isolation: one conversation's
// failure never stops the batch.
func (s *Scanner) processClaimed(ctx context.Context, conversationID string) {
	ctx, span := s.tracer.Start(ctx, "worker.process",
		trace.WithAttributes(attribute.String("conversation.id", conversationID)))
	defer span.End()

	start := s.now()
	err := s.processor.Process(ctx, conversationID)
	elapsed := s.now().Sub(start)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		slog.Error("processing failed",
			"conversation", conversationID,
			"elapsed", elapsed,
			"error", err)
		return
	}
	slog.Debug("processing complete", "conversation", conversationID, "elapsed", elapsed)
}
