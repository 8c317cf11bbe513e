package worker

import (
	"context"
	"fmt"

	"github.com/himanstore/dmpilot/internal/pipeline"
	"github.com/himanstore/dmpilot/internal/store"
)

// PolicyInput is everything the send/suggest gate looks at, resolved once
// per cycle so the decision is stable within it.
type PolicyInput struct {
	GlobalEnabled  bool
	ProductEnabled bool
	FirstContact   bool
	Threshold      float64
}

// ResolvePolicyInput loads the gate inputs for the conversation.
func ResolvePolicyInput(ctx context.Context, st store.Stores, conversationID string, product *store.Product, threshold float64) (PolicyInput, error) {
	global, err := st.Settings.Bool(ctx, store.SettingAutoReplyEnabled, false)
	if err != nil {
		return PolicyInput{}, fmt.Errorf("read global toggle: %w", err)
	}
	sent, err := st.Outbound.CountFor(ctx, conversationID)
	if err != nil {
		return PolicyInput{}, fmt.Errorf("count outbound: %w", err)
	}
	return PolicyInput{
		GlobalEnabled:  global,
		ProductEnabled: product.AutoReply,
		FirstContact:   sent == 0,
		Threshold:      threshold,
	}, nil
}

// PolicyOutcome says what happens to a draft the pipeline wants to send.
type PolicyOutcome struct {
	Send   bool
	Status store.Status
	Reason string
}

// EvaluatePolicy gates a positive decision. The pipeline always drafts; this
// gate decides between sending and recording a suggestion. Toggles are a hard
// gate at both levels and are never overridden. Confidence is a soft gate
// with exactly one override: the first outbound message of a conversation is
// sent regardless of confidence, so a cold conversation cannot stall.
func EvaluatePolicy(d *pipeline.Decision, in PolicyInput) PolicyOutcome {
	switch {
	case !in.GlobalEnabled:
		return PolicyOutcome{Status: store.StatusSuggested, Reason: "auto_reply_disabled"}
	case !in.ProductEnabled:
		return PolicyOutcome{Status: store.StatusSuggested, Reason: "product_auto_reply_disabled"}
	case in.FirstContact:
		return PolicyOutcome{Send: true, Status: store.StatusSent, Reason: "first_contact"}
	case d.Confidence < in.Threshold:
		return PolicyOutcome{Status: store.StatusSuggested, Reason: "low_confidence"}
	}
	return PolicyOutcome{Send: true, Status: store.StatusSent, Reason: "auto"}
}
