package worker

import (
	"context"
	"testing"

	"github.com/himanstore/dmpilot/internal/memory"
	"github.com/himanstore/dmpilot/internal/notify"
	"github.com/himanstore/dmpilot/internal/orders"
	"github.com/himanstore/dmpilot/internal/pipeline"
	"github.com/himanstore/dmpilot/internal/store"
)

func sideEffectsFixture() (*SideEffects, store.Stores, *fakeConversations, *fakeCatalog) {
	stores, conv, _, _, catalog := newFakeStores()
	effects := NewSideEffects(stores, orders.New(stores.Orders), notify.New(stores.Notifications))
	return effects, stores, conv, catalog
}

func TestApply_ChangeFocus(t *testing.T) {
	effects, _, conv, catalog := sideEffectsFixture()
	catalog.products["p2"] = &store.Product{ID: "p2", Slug: "mont-y", Name: "Mont Y"}
	conv.put(store.ConversationState{ConversationID: "c1", Status: store.StatusRunning})

	dec := &pipeline.Decision{
		Memory: memory.New(),
		Actions: []pipeline.Action{
			{Kind: pipeline.ActionChangeFocus, Focus: &pipeline.FocusPayload{SlugOrSKU: "mont-y"}},
		},
	}
	mem, admin := effects.Apply(context.Background(), "c1", dec)

	if admin {
		t.Error("focus change flagged admin")
	}
	if mem.FocusProductID != "p2" {
		t.Errorf("memory focus = %q, want p2", mem.FocusProductID)
	}
	s, _ := conv.Get(context.Background(), "c1")
	if s.ProductID != "p2" {
		t.Errorf("conversation anchor = %q, want p2", s.ProductID)
	}
}

func TestApply_UnknownFocusKeepsMemory(t *testing.T) {
	effects, _, conv, _ := sideEffectsFixture()
	conv.put(store.ConversationState{ConversationID: "c1", Status: store.StatusRunning})

	dec := &pipeline.Decision{
		Memory: memory.New().WithFocusProduct("p1"),
		Actions: []pipeline.Action{
			{Kind: pipeline.ActionChangeFocus, Focus: &pipeline.FocusPayload{SlugOrSKU: "nope"}},
		},
	}
	mem, _ := effects.Apply(context.Background(), "c1", dec)
	if mem.FocusProductID != "p1" {
		t.Errorf("focus changed to %q on failed lookup", mem.FocusProductID)
	}
}

func TestApply_OrderProgression(t *testing.T) {
	effects, stores, _, _ := sideEffectsFixture()

	dec := &pipeline.Decision{
		Memory:  memory.New(),
		Actions: []pipeline.Action{{Kind: pipeline.ActionOrderVeryInterested}},
	}
	effects.Apply(context.Background(), "c1", dec)

	c, _ := stores.Orders.Get(context.Background(), "c1")
	if c == nil || c.Status != orders.StatusVeryInterested {
		t.Fatalf("candidate = %+v", c)
	}

	// A later weaker signal must not downgrade.
	dec = &pipeline.Decision{
		Memory:  memory.New(),
		Actions: []pipeline.Action{{Kind: pipeline.ActionOrderInterested}},
	}
	effects.Apply(context.Background(), "c1", dec)

	c, _ = stores.Orders.Get(context.Background(), "c1")
	if c.Status != orders.StatusVeryInterested {
		t.Errorf("status downgraded to %q", c.Status)
	}
}

func TestApply_FallbackPromotion(t *testing.T) {
	effects, stores, _, _ := sideEffectsFixture()

	dec := &pipeline.Decision{
		Memory: memory.New().WithStep(memory.StepAddress),
	}
	effects.Apply(context.Background(), "c1", dec)

	c, _ := stores.Orders.Get(context.Background(), "c1")
	if c == nil || c.Status != orders.StatusVeryInterested {
		t.Errorf("advanced sale step did not promote candidate: %+v", c)
	}
}

func TestApply_NoFallbackWhenOrderTouched(t *testing.T) {
	effects, stores, _, _ := sideEffectsFixture()

	dec := &pipeline.Decision{
		Memory:  memory.New().WithStep(memory.StepAddress),
		Actions: []pipeline.Action{{Kind: pipeline.ActionOrderInterested}},
	}
	effects.Apply(context.Background(), "c1", dec)

	c, _ := stores.Orders.Get(context.Background(), "c1")
	if c.Status != orders.StatusInterested {
		t.Errorf("explicit action overridden by fallback: %q", c.Status)
	}
}
