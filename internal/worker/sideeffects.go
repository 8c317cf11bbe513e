package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/himanstore/dmpilot/internal/memory"
	"github.com/himanstore/dmpilot/internal/notify"
	"github.com/himanstore/dmpilot/internal/orders"
	"github.com/himanstore/dmpilot/internal/pipeline"
	"github.com/himanstore/dmpilot/internal/store"
)

// SideEffects applies the serializer's action requests. Each action is
// independent: a failing one is logged and the rest still run, so a broken
// order write never blocks a focus change.
type SideEffects struct {
	stores   store.Stores
	orders   *orders.Service
	notifier *notify.Notifier
}

func NewSideEffects(stores store.Stores, orderSvc *orders.Service, notifier *notify.Notifier) *SideEffects {
	return &SideEffects{stores: stores, orders: orderSvc, notifier: notifier}
}

// Apply runs every action and returns the updated memory plus whether any
// action escalated to an operator.
func (s *SideEffects) Apply(ctx context.Context, conversationID string, dec *pipeline.Decision) (memory.Memory, bool) {
	mem := dec.Memory
	adminRequested := false
	orderTouched := false

	for _, a := range dec.Actions {
		switch a.Kind {
		case pipeline.ActionChangeFocus:
			mem = s.changeFocus(ctx, conversationID, a, mem)

		case pipeline.ActionAddCartItem:
			if a.CartItem == nil {
				slog.Warn("add_cart_item without payload", "conversation", conversationID)
				continue
			}
			mem = mem.WithCartItem(*a.CartItem)

		case pipeline.ActionOrderInterested:
			orderTouched = true
			if err := s.orders.MarkInterested(ctx, conversationID, orderNote(a)); err != nil {
				slog.Error("mark interested failed", "conversation", conversationID, "error", err)
			}

		case pipeline.ActionOrderVeryInterested:
			orderTouched = true
			if err := s.orders.MarkVeryInterested(ctx, conversationID, orderNote(a)); err != nil {
				slog.Error("mark very interested failed", "conversation", conversationID, "error", err)
			}

		case pipeline.ActionSubmitOrder:
			orderTouched = true
			var payload json.RawMessage
			if a.Order != nil {
				payload = a.Order.Payload
			}
			if err := s.orders.SubmitOrder(ctx, conversationID, orderNote(a), payload); err != nil {
				slog.Error("submit order failed", "conversation", conversationID, "error", err)
			} else {
				mem = mem.WithStep(memory.StepConfirmed)
			}

		case pipeline.ActionAdminAttention:
			adminRequested = true
			text, severity := "operator attention requested", ""
			if a.Admin != nil {
				if a.Admin.Text != "" {
					text = a.Admin.Text
				}
				severity = a.Admin.Severity
			}
			if err := s.notifier.Notify(ctx, conversationID, text, severity); err != nil {
				slog.Error("admin notify failed", "conversation", conversationID, "error", err)
			}

		case pipeline.ActionSendImages:
			// Image selection and memory bookkeeping happen in the dispatcher,
			// where the actual send lives.
		}
	}

	// A customer deep in address or payment talk counts as very interested
	// even when the serializer forgot to say so.
	if !orderTouched && mem.AdvancedSaleStep() {
		if err := s.orders.MarkVeryInterested(ctx, conversationID, "advanced sale step"); err != nil {
			slog.Error("fallback order promotion failed", "conversation", conversationID, "error", err)
		} else {
			slog.Info("order candidate promoted", "conversation", conversationID, "fallback", true)
		}
	}
	return mem, adminRequested
}

func (s *SideEffects) changeFocus(ctx context.Context, conversationID string, a pipeline.Action, mem memory.Memory) memory.Memory {
	if a.Focus == nil || a.Focus.SlugOrSKU == "" {
		slog.Warn("change_focus_product without payload", "conversation", conversationID)
		return mem
	}
	product, err := s.stores.Catalog.ProductBySlugOrSKU(ctx, a.Focus.SlugOrSKU)
	if err != nil || product == nil {
		slog.Warn("focus product not found", "conversation", conversationID, "ref", a.Focus.SlugOrSKU, "error", err)
		return mem
	}
	if err := s.stores.Conversations.SetProduct(ctx, conversationID, product.ID, time.Now().UnixMilli()); err != nil {
		slog.Error("anchor focus product failed", "conversation", conversationID, "error", err)
	}
	return mem.WithFocusProduct(product.ID)
}

func orderNote(a pipeline.Action) string {
	if a.Order != nil {
		return a.Order.Note
	}
	return ""
}
