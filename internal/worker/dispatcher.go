package worker

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/himanstore/dmpilot/internal/channels"
	"github.com/himanstore/dmpilot/internal/memory"
	"github.com/himanstore/dmpilot/internal/pipeline"
	"github.com/himanstore/dmpilot/internal/store"
)

// Dispatcher turns an approved reply into platform messages and records what
// actually went out.
type Dispatcher struct {
	transport channels.Transport
	outbound  store.OutboundStore
	messages  store.MessageStore
	guard     time.Duration
	now       func() time.Time
}

func NewDispatcher(transport channels.Transport, outbound store.OutboundStore, messages store.MessageStore, guard time.Duration) *Dispatcher {
	return &Dispatcher{
		transport: transport,
		outbound:  outbound,
		messages:  messages,
		guard:     guard,
		now:       time.Now,
	}
}

// ErrGuardWindow reports a send suppressed because another reply left within
// the guard interval.
var ErrGuardWindow = fmt.Errorf("send suppressed by guard window")

// Dispatch sends the decision's reply. The text splits on blank lines into
// separate messages; image candidates not yet recorded in memory ride along
// with the last unit. Returns the updated memory (image bookkeeping) and the
// number of units delivered.
func (d *Dispatcher) Dispatch(ctx context.Context, conversationID string, dec *pipeline.Decision, pctx *pipeline.Context) (memory.Memory, int, error) {
	mem := dec.Memory

	last, err := d.outbound.LastSentMs(ctx, conversationID)
	if err != nil {
		return mem, 0, fmt.Errorf("read last sent: %w", err)
	}
	nowMs := d.now().UnixMilli()
	if last > 0 && nowMs-last < d.guard.Milliseconds() {
		return mem, 0, ErrGuardWindow
	}

	units := SplitUnits(dec.ReplyText)
	if len(units) == 0 {
		return mem, 0, nil
	}

	var imageURLs []string
	var imageIDs []string
	if wantsImages(dec) && !mem.ImagesSentFor(pctx.Product.ID) {
		for _, img := range pctx.ImageCandidates {
			imageURLs = append(imageURLs, img.URL)
			imageIDs = append(imageIDs, img.ID)
		}
	}

	delivered := 0
	for i, unit := range units {
		images := []string(nil)
		if i == len(units)-1 {
			images = imageURLs
		}
		ids, err := d.transport.Send(ctx, conversationID, unit, images)
		d.record(ctx, conversationID, pctx.Product.ID, unit, i, ids)
		if err != nil {
			return mem, delivered, fmt.Errorf("send unit %d/%d: %w", i+1, len(units), err)
		}
		delivered++
	}

	if len(imageIDs) > 0 {
		mem = mem.WithImagesSent(pctx.Product.ID, imageIDs)
	}
	return mem, delivered, nil
}

// record persists outbound and transcript rows for delivered provider ids.
// Bookkeeping failures are logged, not returned: the message is already out.
func (d *Dispatcher) record(ctx context.Context, conversationID, productID, text string, seq int, providerIDs []string) {
	nowMs := d.now().UnixMilli()
	for _, pid := range providerIDs {
		err := d.outbound.Insert(ctx, store.OutboundMessage{
			ConversationID:    conversationID,
			ProviderMessageID: pid,
			Text:              text,
			Seq:               seq,
			ProductID:         productID,
			CreatedMs:         nowMs,
		})
		if err != nil {
			slog.Error("record outbound failed", "conversation", conversationID, "error", err)
		}
	}
	if len(providerIDs) > 0 {
		err := d.messages.Insert(ctx, store.Message{
			ConversationID:    conversationID,
			Direction:         "out",
			Text:              text,
			TimestampMs:       nowMs,
			ProviderMessageID: providerIDs[0],
		})
		if err != nil {
			slog.Error("record transcript failed", "conversation", conversationID, "error", err)
		}
	}
}

// SplitUnits breaks reply text on blank lines into send units. Single
// newlines stay inside a unit.
func SplitUnits(text string) []string {
	var units []string
	for _, chunk := range strings.Split(text, "\n\n") {
		chunk = strings.TrimSpace(chunk)
		if chunk != "" {
			units = append(units, chunk)
		}
	}
	return units
}

func wantsImages(dec *pipeline.Decision) bool {
	for _, a := range dec.Actions {
		if a.Kind == pipeline.ActionSendImages {
			return true
		}
	}
	return false
}
