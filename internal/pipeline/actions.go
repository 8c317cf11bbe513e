package pipeline

import (
	"encoding/json"
	"log/slog"

	"github.com/himanstore/dmpilot/internal/memory"
)

// ActionKind identifies one of the closed set of side-effect intents the
// serializer stage may emit. Dispatch is an exhaustive switch, never a string
// lookup into registered callbacks.
type ActionKind string

const (
	ActionChangeFocus         ActionKind = "change_focus_product"
	ActionAddCartItem         ActionKind = "add_cart_item"
	ActionOrderInterested     ActionKind = "mark_order_interested"
	ActionOrderVeryInterested ActionKind = "mark_order_very_interested"
	ActionSubmitOrder         ActionKind = "submit_order"
	ActionAdminAttention      ActionKind = "request_admin_attention"
	ActionSendImages          ActionKind = "send_product_images"
)

func (k ActionKind) known() bool {
	switch k {
	case ActionChangeFocus, ActionAddCartItem, ActionOrderInterested,
		ActionOrderVeryInterested, ActionSubmitOrder, ActionAdminAttention,
		ActionSendImages:
		return true
	}
	return false
}

// Action is one typed side-effect request. Exactly the payload field matching
// Kind is set; the others stay nil.
type Action struct {
	Kind        ActionKind       `json:"kind"`
	Focus       *FocusPayload    `json:"focus,omitempty"`
	CartItem    *memory.CartItem `json:"cart_item,omitempty"`
	Order       *OrderPayload    `json:"order,omitempty"`
	Admin       *AdminPayload    `json:"admin,omitempty"`
	Images      *ImagesPayload   `json:"images,omitempty"`
}

// FocusPayload switches the conversation's product focus.
type FocusPayload struct {
	SlugOrSKU string `json:"slug_or_sku"`
}

// OrderPayload carries order-candidate transitions and submissions.
type OrderPayload struct {
	Note    string          `json:"note,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"` // submit_order only
}

// AdminPayload requests operator attention.
type AdminPayload struct {
	Text     string `json:"text"`
	Severity string `json:"severity,omitempty"`
}

// ImagesPayload asks for the focus product's image set to be sent.
type ImagesPayload struct {
	VariantKey string `json:"variant_key,omitempty"`
}

// decodeActions parses the serializer's action_requests list, dropping
// unknown kinds with a warning. Dropping happens here, at the trust boundary,
// so downstream dispatch can switch exhaustively.
func decodeActions(raw json.RawMessage, conversationID string) []Action {
	if len(raw) == 0 {
		return nil
	}
	var parsed []Action
	if err := json.Unmarshal(raw, &parsed); err != nil {
		slog.Warn("unparseable action_requests", "conversation", conversationID, "error", err)
		return nil
	}
	out := parsed[:0]
	for _, a := range parsed {
		if !a.Kind.known() {
			slog.Warn("dropping unknown action kind", "conversation", conversationID, "kind", a.Kind)
			continue
		}
		out = append(out, a)
	}
	return out
}
