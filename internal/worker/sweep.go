package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/adhocore/gronx"

	"github.com/himanstore/dmpilot/internal/orders"
	"github.com/himanstore/dmpilot/internal/store"
)

// SweepConfig tunes the periodic order-candidate sweep.
type SweepConfig struct {
	// Schedule is a cron expression; the sweep runs when it is due.
	Schedule string
	// Lookback bounds how far back reply activity counts as recent.
	Lookback time.Duration
	// Limit caps conversations examined per run.
	Limit int
}

// DefaultSweepConfig sweeps every ten minutes over the last day of activity.
func DefaultSweepConfig() SweepConfig {
	return SweepConfig{
		Schedule: "*/10 * * * *",
		Lookback: 24 * time.Hour,
		Limit:    200,
	}
}

// Sweeper backfills order candidates for recently active conversations whose
// memory shows buying signals the serializer never turned into an explicit
// action: items in the cart or an advanced sale step.
type Sweeper struct {
	stores store.Stores
	orders *orders.Service
	cfg    SweepConfig
	gron   *gronx.Gronx
	now    func() time.Time
}

func NewSweeper(stores store.Stores, orderSvc *orders.Service, cfg SweepConfig) *Sweeper {
	if cfg.Schedule == "" {
		cfg.Schedule = DefaultSweepConfig().Schedule
	}
	if cfg.Lookback <= 0 {
		cfg.Lookback = DefaultSweepConfig().Lookback
	}
	if cfg.Limit <= 0 {
		cfg.Limit = DefaultSweepConfig().Limit
	}
	return &Sweeper{
		stores: stores,
		orders: orderSvc,
		cfg:    cfg,
		gron:   gronx.New(),
		now:    time.Now,
	}
}

// Run ticks once a minute and sweeps when the cron schedule is due.
func (s *Sweeper) Run(ctx context.Context) error {
	slog.Info("order sweep started", "schedule", s.cfg.Schedule, "lookback", s.cfg.Lookback)

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("order sweep stopped")
			return ctx.Err()
		case <-ticker.C:
			due, err := s.gron.IsDue(s.cfg.Schedule, s.now())
			if err != nil {
				slog.Error("bad sweep schedule", "schedule", s.cfg.Schedule, "error", err)
				return err
			}
			if due {
				s.sweepOnce(ctx)
			}
		}
	}
}

func (s *Sweeper) sweepOnce(ctx context.Context) {
	sinceMs := s.now().Add(-s.cfg.Lookback).UnixMilli()
	ids, err := s.stores.ReplyLog.ActiveConversationsSince(ctx, sinceMs, s.cfg.Limit)
	if err != nil {
		slog.Error("sweep query failed", "error", err)
		return
	}

	promoted := 0
	for _, id := range ids {
		if ctx.Err() != nil {
			return
		}
		state, err := s.stores.Conversations.Get(ctx, id)
		if err != nil || state == nil {
			continue
		}
		mem := state.Memory.Normalize()
		switch {
		case mem.AdvancedSaleStep():
			if err := s.orders.MarkVeryInterested(ctx, id, "sweep: advanced sale step"); err == nil {
				promoted++
			}
		case len(mem.Cart) > 0:
			if err := s.orders.MarkInterested(ctx, id, "sweep: items in cart"); err == nil {
				promoted++
			}
		}
	}
	slog.Info("order sweep complete", "examined", len(ids), "promoted", promoted)
}
