package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/himanstore/dmpilot/internal/memory"
	"github.com/himanstore/dmpilot/internal/store"
)

// StockLine is one variant as shown to the generation backend.
type StockLine struct {
	SKU   string
	Name  string
	Color string
	Size  string
	Price float64
}

// Context is everything the two generation stages see for one cycle.
type Context struct {
	Product             *store.Product
	Stock               []StockLine
	History             []store.Message
	LastCustomerMessage string
	IntroShared         bool
	ProductNameShared   bool
	SizingHint          string
	ImageCandidates     []store.ProductImage
	Memory              memory.Memory
}

type variantExclusions struct {
	Colors []string `json:"colors"`
	Sizes  []string `json:"sizes"`
}

// BuildContext assembles the generation context for a claimed conversation.
// The focus product comes from memory first, then the conversation's catalog
// anchor; failing both resolves to ErrMissingContext.
func BuildContext(ctx context.Context, st store.Stores, state *store.ConversationState, historyLimit, imageLimit int) (*Context, error) {
	product, err := resolveFocus(ctx, st.Catalog, state)
	if err != nil {
		return nil, err
	}

	variants, err := st.Catalog.VariantsFor(ctx, product.ID)
	if err != nil {
		return nil, fmt.Errorf("load variants for %s: %w", product.ID, err)
	}
	stock := buildStock(product, variants)

	history, err := st.Messages.History(ctx, state.ConversationID, historyLimit)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}

	mem := state.Memory.Normalize()
	c := &Context{
		Product: product,
		Stock:   stock,
		History: history,
		Memory:  mem,
	}
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Direction == "in" {
			c.LastCustomerMessage = history[i].Text
			break
		}
	}
	c.IntroShared, c.ProductNameShared = conversationFlags(history, product.Name)
	c.IntroShared = c.IntroShared || mem.IntroShared

	if h, w := ParseHeightWeight(c.LastCustomerMessage); h != 0 && w != 0 {
		if s := SuggestSize(h, w, availableSizes(stock)); s != "" {
			c.SizingHint = fmt.Sprintf("customer is %dcm/%dkg, suggest size %s", h, w, s)
		}
	}

	if !mem.ImagesSentFor(product.ID) {
		key := guessVariantKey(c.LastCustomerMessage, variants)
		images, err := st.Catalog.ImagesFor(ctx, product.ID, key, imageLimit)
		if err != nil {
			return nil, fmt.Errorf("load images: %w", err)
		}
		c.ImageCandidates = images
	}
	return c, nil
}

func resolveFocus(ctx context.Context, catalog store.CatalogStore, state *store.ConversationState) (*store.Product, error) {
	for _, id := range []string{state.Memory.FocusProductID, state.ProductID} {
		if id == "" {
			continue
		}
		p, err := catalog.ProductByID(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("resolve product %s: %w", id, err)
		}
		if p != nil {
			return p, nil
		}
	}
	return nil, ErrMissingContext
}

// buildStock applies the product's variant exclusions and default price
// overlay. A product with no variants still gets one synthetic line so the
// backend always sees purchasable stock.
func buildStock(product *store.Product, variants []store.Variant) []StockLine {
	excl := parseExclusions(product.VariantExclusions)
	out := make([]StockLine, 0, len(variants))
	for _, v := range variants {
		if excl.excludes(v.Color, v.Size) {
			continue
		}
		price := v.Price
		if price == 0 && product.DefaultPrice > 0 {
			price = product.DefaultPrice
		}
		out = append(out, StockLine{
			SKU:   v.SKU,
			Name:  v.Name,
			Color: v.Color,
			Size:  v.Size,
			Price: price,
		})
	}
	if len(out) == 0 {
		out = append(out, StockLine{
			SKU:   product.Slug,
			Name:  product.Name,
			Price: product.DefaultPrice,
		})
	}
	return out
}

func parseExclusions(raw string) variantExclusions {
	var excl variantExclusions
	if raw != "" {
		_ = json.Unmarshal([]byte(raw), &excl)
	}
	return excl
}

func (e variantExclusions) excludes(color, size string) bool {
	for _, c := range e.Colors {
		if strings.EqualFold(c, color) {
			return true
		}
	}
	for _, s := range e.Sizes {
		if strings.EqualFold(s, size) {
			return true
		}
	}
	return false
}

// conversationFlags derives what the shop side has already shared: a price
// was quoted (the currency marker appears in an outbound message) and the
// product was named.
func conversationFlags(history []store.Message, productName string) (introShared, nameShared bool) {
	name := strings.ToLower(strings.TrimSpace(productName))
	for _, m := range history {
		if m.Direction != "out" {
			continue
		}
		if strings.Contains(m.Text, "₺") || strings.Contains(strings.ToLower(m.Text), "adet") {
			introShared = true
		}
		if name != "" && strings.Contains(strings.ToLower(m.Text), name) {
			nameShared = true
		}
	}
	return introShared, nameShared
}

func availableSizes(stock []StockLine) []string {
	seen := make(map[string]bool, len(stock))
	var out []string
	for _, s := range stock {
		if s.Size == "" || seen[s.Size] {
			continue
		}
		seen[s.Size] = true
		out = append(out, s.Size)
	}
	return out
}

// guessVariantKey returns a variant color as image filter when the customer's
// last message names exactly one of the stocked colors.
func guessVariantKey(text string, variants []store.Variant) string {
	lower := strings.ToLower(text)
	match := ""
	for _, v := range variants {
		color := strings.ToLower(strings.TrimSpace(v.Color))
		if color == "" || !strings.Contains(lower, color) {
			continue
		}
		if match != "" && match != color {
			return ""
		}
		match = color
	}
	return match
}
