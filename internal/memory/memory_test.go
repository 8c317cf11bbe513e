package memory

import (
	"testing"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want func(m Memory) bool
	}{
		{"empty input", "", func(m Memory) bool { return len(m.Cart) == 0 && m.Cart != nil }},
		{"malformed json", "{not json", func(m Memory) bool { return len(m.Cart) == 0 && m.Cart != nil }},
		{"valid snapshot", `{"cart":[{"sku":"A1","quantity":2}],"last_step":"sizing"}`, func(m Memory) bool {
			return len(m.Cart) == 1 && m.Cart[0].Quantity == 2 && m.LastStep == "sizing"
		}},
		{"null cart normalized", `{"cart":null}`, func(m Memory) bool { return m.Cart != nil }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Decode([]byte(tt.raw))
			if !tt.want(got) {
				t.Errorf("Decode(%q) = %+v", tt.raw, got)
			}
		})
	}
}

func TestWithCartItem_MergesBySKU(t *testing.T) {
	m := New().WithCartItem(CartItem{SKU: "A1", Quantity: 1})
	m = m.WithCartItem(CartItem{SKU: "A1", Quantity: 2})
	m = m.WithCartItem(CartItem{SKU: "B2"})

	if len(m.Cart) != 2 {
		t.Fatalf("got %d cart items, want 2", len(m.Cart))
	}
	if m.Cart[0].Quantity != 3 {
		t.Errorf("merged quantity = %d, want 3", m.Cart[0].Quantity)
	}
	if m.Cart[1].Quantity != 1 {
		t.Errorf("defaulted quantity = %d, want 1", m.Cart[1].Quantity)
	}
}

func TestCopyOnWrite(t *testing.T) {
	orig := New().WithCartItem(CartItem{SKU: "A1", Quantity: 1})
	mod := orig.WithCartItem(CartItem{SKU: "A1", Quantity: 5})

	if orig.Cart[0].Quantity != 1 {
		t.Errorf("original mutated: quantity = %d", orig.Cart[0].Quantity)
	}
	if mod.Cart[0].Quantity != 6 {
		t.Errorf("copy quantity = %d, want 6", mod.Cart[0].Quantity)
	}

	withImages := mod.WithImagesSent("p1", []string{"img1"})
	if mod.ImagesSentFor("p1") {
		t.Error("original gained image state")
	}
	if !withImages.ImagesSentFor("p1") {
		t.Error("copy missing image state")
	}
}

func TestWithImagesSent_Dedup(t *testing.T) {
	m := New().WithImagesSent("p1", []string{"b", "a"})
	m = m.WithImagesSent("p1", []string{"a", "c", ""})

	got := m.SentImages["p1"]
	if len(got) != 3 {
		t.Fatalf("got %v, want 3 unique ids", got)
	}
	if got[0] != "a" || got[1] != "b" || got[2] != "c" {
		t.Errorf("ids not sorted: %v", got)
	}
}

func TestAdvancedSaleStep(t *testing.T) {
	tests := []struct {
		step string
		want bool
	}{
		{StepGreeting, false},
		{StepSizing, false},
		{StepPricing, false},
		{StepAddress, true},
		{StepPayment, true},
		{StepConfirmed, true},
		{" Payment ", true},
		{"", false},
	}
	for _, tt := range tests {
		m := Memory{LastStep: tt.step}
		if got := m.AdvancedSaleStep(); got != tt.want {
			t.Errorf("AdvancedSaleStep(%q) = %v, want %v", tt.step, got, tt.want)
		}
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	m := New().
		WithCartItem(CartItem{SKU: "A1", Color: "black", Size: "M", Price: 499, Quantity: 1}).
		WithFocusProduct("p42").
		WithStep(StepAddress).
		WithImagesSent("p42", []string{"i1", "i2"})

	got := Decode(m.Encode())
	if got.FocusProductID != "p42" || got.LastStep != StepAddress {
		t.Errorf("round trip lost fields: %+v", got)
	}
	if len(got.Cart) != 1 || got.Cart[0].SKU != "A1" {
		t.Errorf("round trip lost cart: %+v", got.Cart)
	}
	if !got.ImagesSentFor("p42") {
		t.Error("round trip lost sent images")
	}
}
