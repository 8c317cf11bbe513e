package worker

import (
	"context"
	"testing"

	"github.com/himanstore/dmpilot/internal/pipeline"
	"github.com/himanstore/dmpilot/internal/store"
)

func TestEvaluatePolicy(t *testing.T) {
	base := PolicyInput{GlobalEnabled: true, ProductEnabled: true, Threshold: 0.49}

	tests := []struct {
		name       string
		confidence float64
		input      func(PolicyInput) PolicyInput
		wantSend   bool
		wantReason string
	}{
		{"confident auto send", 0.8, nil, true, "auto"},
		{"at threshold sends", 0.49, nil, true, "auto"},
		{"below threshold held", 0.2, nil, false, "low_confidence"},
		{"global toggle off", 0.9, func(in PolicyInput) PolicyInput {
			in.GlobalEnabled = false
			return in
		}, false, "auto_reply_disabled"},
		{"product toggle off", 0.9, func(in PolicyInput) PolicyInput {
			in.ProductEnabled = false
			return in
		}, false, "product_auto_reply_disabled"},
		{"first contact overrides low confidence", 0.2, func(in PolicyInput) PolicyInput {
			in.FirstContact = true
			return in
		}, true, "first_contact"},
		{"first contact never overrides toggles", 0.9, func(in PolicyInput) PolicyInput {
			in.FirstContact = true
			in.GlobalEnabled = false
			return in
		}, false, "auto_reply_disabled"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := base
			if tt.input != nil {
				in = tt.input(in)
			}
			got := EvaluatePolicy(&pipeline.Decision{ShouldReply: true, Confidence: tt.confidence}, in)
			if got.Send != tt.wantSend || got.Reason != tt.wantReason {
				t.Errorf("EvaluatePolicy = %+v, want send=%v reason=%q", got, tt.wantSend, tt.wantReason)
			}
		})
	}
}

func TestResolvePolicyInput(t *testing.T) {
	stores, _, _, outbound, _ := newFakeStores()
	product := &store.Product{ID: "p1", AutoReply: true}

	in, err := ResolvePolicyInput(context.Background(), stores, "c1", product, 0.49)
	if err != nil {
		t.Fatal(err)
	}
	if !in.GlobalEnabled || !in.ProductEnabled || !in.FirstContact {
		t.Errorf("fresh conversation input = %+v", in)
	}

	outbound.Insert(context.Background(), store.OutboundMessage{ConversationID: "c1", ProviderMessageID: "m1"})
	in, err = ResolvePolicyInput(context.Background(), stores, "c1", product, 0.49)
	if err != nil {
		t.Fatal(err)
	}
	if in.FirstContact {
		t.Error("conversation with outbound history still reads as first contact")
	}
}
