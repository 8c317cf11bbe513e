// Package pipeline implements the two-stage reply generation flow: an agent
// stage drafts a reply from the conversation context, then a serializer stage
// converts the draft into a structured decision the worker can act on.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/himanstore/dmpilot/internal/providers"
	"github.com/himanstore/dmpilot/internal/store"
)

// Config tunes the generation stages.
type Config struct {
	AgentModel       string
	SerializerModel  string
	AgentPrompt      string
	SerializerPrompt string
	Temperature      float64
	MaxTokens        int
	HistoryLimit     int
	ImageLimit       int
}

// Pipeline drives both generation stages against one backend.
type Pipeline struct {
	provider providers.Provider
	stores   store.Stores
	cfg      Config
}

func New(provider providers.Provider, stores store.Stores, cfg Config) *Pipeline {
	if cfg.AgentPrompt == "" {
		cfg.AgentPrompt = defaultAgentPrompt
	}
	if cfg.SerializerPrompt == "" {
		cfg.SerializerPrompt = defaultSerializerPrompt
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 40
	}
	if cfg.ImageLimit <= 0 {
		cfg.ImageLimit = 3
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 1024
	}
	return &Pipeline{provider: provider, stores: stores, cfg: cfg}
}

// Run executes one full cycle for a claimed conversation and returns the
// serializer's decision plus the context it was drawn from.
func (p *Pipeline) Run(ctx context.Context, state *store.ConversationState) (*Decision, *Context, error) {
	c, err := BuildContext(ctx, p.stores, state, p.cfg.HistoryLimit, p.cfg.ImageLimit)
	if err != nil {
		return nil, nil, err
	}

	draft, err := p.draft(ctx, c)
	if err != nil {
		return nil, c, fmt.Errorf("%w: agent stage: %v", ErrGeneration, err)
	}

	decision, err := p.serialize(ctx, c, draft)
	if err != nil {
		return nil, c, err
	}

	slog.Debug("pipeline cycle complete",
		"conversation", state.ConversationID,
		"should_reply", decision.ShouldReply,
		"confidence", decision.Confidence,
		"actions", len(decision.Actions))
	return decision, c, nil
}

func (p *Pipeline) draft(ctx context.Context, c *Context) (string, error) {
	system := p.cfg.AgentPrompt
	if sp := strings.TrimSpace(c.Product.SystemPrompt); sp != "" {
		system += "\n\n" + sp
	}

	msgs := []providers.Message{
		{Role: "system", Content: system},
		{Role: "system", Content: renderProductInfo(c)},
	}
	for _, m := range c.History {
		role := "user"
		if m.Direction == "out" {
			role = "assistant"
		}
		msgs = append(msgs, providers.Message{Role: role, Content: m.Text})
	}

	resp, err := p.provider.Chat(ctx, providers.ChatRequest{
		Messages: msgs,
		Model:    p.cfg.AgentModel,
		Options: map[string]any{
			providers.OptMaxTokens:   p.cfg.MaxTokens,
			providers.OptTemperature: p.cfg.Temperature,
		},
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.Content), nil
}

func (p *Pipeline) serialize(ctx context.Context, c *Context, draft string) (*Decision, error) {
	resp, err := p.provider.Chat(ctx, providers.ChatRequest{
		Messages: []providers.Message{
			{Role: "system", Content: p.cfg.SerializerPrompt},
			{Role: "user", Content: renderSerializerInput(c, draft)},
		},
		Model: p.cfg.SerializerModel,
		Options: map[string]any{
			providers.OptMaxTokens: p.cfg.MaxTokens,
			providers.OptJSONMode:  true,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: serializer stage: %v", ErrGeneration, err)
	}

	decision, err := DecodeDecision(resp.Content, c.Memory, conversationID(c))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGeneration, err)
	}
	return &decision, nil
}

func conversationID(c *Context) string {
	if len(c.History) > 0 {
		return c.History[0].ConversationID
	}
	return ""
}

func renderProductInfo(c *Context) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Product in focus: %s (%s)\n", c.Product.Name, c.Product.Slug)
	b.WriteString("Stock:\n")
	for _, s := range c.Stock {
		fmt.Fprintf(&b, "  - sku=%s", s.SKU)
		if s.Color != "" {
			fmt.Fprintf(&b, " color=%s", s.Color)
		}
		if s.Size != "" {
			fmt.Fprintf(&b, " size=%s", s.Size)
		}
		if s.Price > 0 {
			fmt.Fprintf(&b, " price=%.2f₺", s.Price)
		}
		b.WriteByte('\n')
	}
	if c.IntroShared {
		b.WriteString("The price has already been shared in this conversation.\n")
	}
	if c.ProductNameShared {
		b.WriteString("The product name has already been shared.\n")
	}
	if c.SizingHint != "" {
		fmt.Fprintf(&b, "Sizing: %s\n", c.SizingHint)
	}
	if n := len(c.ImageCandidates); n > 0 {
		fmt.Fprintf(&b, "%d product photo(s) are available to send on request.\n", n)
	}
	return b.String()
}

func renderSerializerInput(c *Context, draft string) string {
	var b strings.Builder
	b.WriteString("Current conversation memory:\n")
	b.Write(c.Memory.Encode())
	b.WriteString("\n\nLast customer message:\n")
	b.WriteString(c.LastCustomerMessage)
	b.WriteString("\n\nDrafted reply:\n")
	b.WriteString(draft)
	return b.String()
}
