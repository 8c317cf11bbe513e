// Package memory holds the per-conversation automation memory snapshot.
//
// Memory is treated as a value: every pipeline stage receives a snapshot and
// returns a new one. Mutating helpers copy before writing so two workers (or
// a worker and a test) never share backing slices or maps.
package memory

import (
	"encoding/json"
	"sort"
	"strings"
)

// Sales-step markers recorded by the serializer stage in LastStep.
// Steps at or past StepAddress indicate an advanced sale and feed the
// conservative order-candidate fallback.
const (
	StepGreeting  = "greeting"
	StepSizing    = "sizing"
	StepPricing   = "pricing"
	StepAddress   = "address"
	StepPayment   = "payment"
	StepConfirmed = "confirmed"
)

// CartItem is one product variant the customer has committed to.
type CartItem struct {
	SKU      string  `json:"sku"`
	Name     string  `json:"name,omitempty"`
	Color    string  `json:"color,omitempty"`
	Size     string  `json:"size,omitempty"`
	Price    float64 `json:"price,omitempty"`
	Quantity int     `json:"quantity"`
}

// Memory is the opaque structured snapshot carried in conversation state.
// Cart is always non-nil after Normalize; callers persist only normalized
// values.
type Memory struct {
	Cart           []CartItem          `json:"cart"`
	FocusProductID string              `json:"focus_product_id,omitempty"`
	LastStep       string              `json:"last_step,omitempty"`
	HailSent       bool                `json:"hail_sent,omitempty"`
	IntroShared    bool                `json:"intro_shared,omitempty"`
	ContactFlags   map[string]bool     `json:"contact_flags,omitempty"`
	// SentImages maps product id → image ids already dispatched for that
	// product focus. Guards against resending the same image set.
	SentImages map[string][]string `json:"sent_images,omitempty"`
}

// New returns an empty normalized memory.
func New() Memory {
	return Memory{Cart: []CartItem{}}
}

// Normalize returns a copy whose cart is non-nil. Safe on the zero value.
func (m Memory) Normalize() Memory {
	out := m.clone()
	if out.Cart == nil {
		out.Cart = []CartItem{}
	}
	return out
}

func (m Memory) clone() Memory {
	out := m
	if m.Cart != nil {
		out.Cart = make([]CartItem, len(m.Cart))
		copy(out.Cart, m.Cart)
	}
	if m.ContactFlags != nil {
		out.ContactFlags = make(map[string]bool, len(m.ContactFlags))
		for k, v := range m.ContactFlags {
			out.ContactFlags[k] = v
		}
	}
	if m.SentImages != nil {
		out.SentImages = make(map[string][]string, len(m.SentImages))
		for k, v := range m.SentImages {
			ids := make([]string, len(v))
			copy(ids, v)
			out.SentImages[k] = ids
		}
	}
	return out
}

// WithCartItem returns a copy with the item appended, or its quantity merged
// when the SKU is already in the cart.
func (m Memory) WithCartItem(item CartItem) Memory {
	if item.Quantity <= 0 {
		item.Quantity = 1
	}
	out := m.Normalize()
	for i, existing := range out.Cart {
		if existing.SKU == item.SKU {
			out.Cart[i].Quantity += item.Quantity
			return out
		}
	}
	out.Cart = append(out.Cart, item)
	return out
}

// WithFocusProduct returns a copy focused on the given product id.
func (m Memory) WithFocusProduct(productID string) Memory {
	out := m.Normalize()
	out.FocusProductID = productID
	return out
}

// WithStep returns a copy with LastStep set.
func (m Memory) WithStep(step string) Memory {
	out := m.Normalize()
	out.LastStep = step
	return out
}

// WithImagesSent returns a copy recording that the given image ids were
// dispatched for productID. Ids already present are not duplicated.
func (m Memory) WithImagesSent(productID string, imageIDs []string) Memory {
	out := m.Normalize()
	if out.SentImages == nil {
		out.SentImages = make(map[string][]string)
	}
	seen := make(map[string]bool, len(out.SentImages[productID]))
	for _, id := range out.SentImages[productID] {
		seen[id] = true
	}
	merged := append([]string(nil), out.SentImages[productID]...)
	for _, id := range imageIDs {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		merged = append(merged, id)
	}
	sort.Strings(merged)
	out.SentImages[productID] = merged
	return out
}

// ImagesSentFor reports whether any image has already been dispatched for
// the product.
func (m Memory) ImagesSentFor(productID string) bool {
	return len(m.SentImages[productID]) > 0
}

// AdvancedSaleStep reports whether LastStep indicates the customer reached
// the address/payment phase. Drives the order-candidate fallback promotion.
func (m Memory) AdvancedSaleStep() bool {
	switch strings.ToLower(strings.TrimSpace(m.LastStep)) {
	case StepAddress, StepPayment, StepConfirmed:
		return true
	}
	return false
}

// Decode parses a stored JSON snapshot. Empty or malformed input yields a
// fresh normalized memory rather than an error: state rows written before
// the memory column existed must stay processable.
func Decode(raw []byte) Memory {
	if len(raw) == 0 {
		return New()
	}
	var m Memory
	if err := json.Unmarshal(raw, &m); err != nil {
		return New()
	}
	return m.Normalize()
}

// Encode serializes a normalized snapshot for persistence.
func (m Memory) Encode() []byte {
	data, err := json.Marshal(m.Normalize())
	if err != nil {
		// Memory contains only marshalable fields; keep the invariant anyway.
		return []byte(`{"cart":[]}`)
	}
	return data
}
