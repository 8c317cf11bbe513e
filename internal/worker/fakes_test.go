package worker

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/himanstore/dmpilot/internal/memory"
	"github.com/himanstore/dmpilot/internal/providers"
	"github.com/himanstore/dmpilot/internal/store"
)

// In-memory store fakes. Claim/Release mirror the CAS semantics of the SQL
// implementation closely enough for concurrency tests.

type fakeConversations struct {
	mu     sync.Mutex
	states map[string]*store.ConversationState
}

func newFakeConversations() *fakeConversations {
	return &fakeConversations{states: make(map[string]*store.ConversationState)}
}

func (f *fakeConversations) put(s store.ConversationState) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := s
	f.states[s.ConversationID] = &cp
}

func (f *fakeConversations) UpsertOnInbound(_ context.Context, id string, inboundMs int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.states[id]
	if !ok {
		f.states[id] = &store.ConversationState{
			ConversationID: id,
			Status:         store.StatusPending,
			LastInboundMs:  inboundMs,
		}
		return nil
	}
	s.LastInboundMs = inboundMs
	if s.Status.Terminal() || s.Status == store.StatusRunning {
		return nil
	}
	s.Status = store.StatusPending
	s.PostponeCount = 0
	s.NextAttemptMs = 0
	return nil
}

func (f *fakeConversations) Claim(_ context.Context, id string, nowMs int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.states[id]
	if !ok {
		return false, nil
	}
	if s.Status != store.StatusPending && s.Status != store.StatusPaused {
		return false, nil
	}
	s.Status = store.StatusRunning
	s.UpdatedMs = nowMs
	return true, nil
}

func (f *fakeConversations) Release(_ context.Context, id string, status store.Status, mem memory.Memory, nowMs int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.states[id]
	if !ok {
		return fmt.Errorf("release of unknown conversation %s", id)
	}
	s.Status = status
	s.Memory = mem
	s.NextAttemptMs = 0
	s.UpdatedMs = nowMs
	return nil
}

func (f *fakeConversations) Postpone(_ context.Context, id string, nextAttemptMs, nowMs int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.states[id]
	if !ok {
		return fmt.Errorf("postpone of unknown conversation %s", id)
	}
	s.Status = store.StatusPaused
	s.PostponeCount++
	s.NextAttemptMs = nextAttemptMs
	s.UpdatedMs = nowMs
	return nil
}

func (f *fakeConversations) SetProduct(_ context.Context, id, productID string, nowMs int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.states[id]; ok {
		s.ProductID = productID
		s.UpdatedMs = nowMs
	}
	return nil
}

func (f *fakeConversations) Get(_ context.Context, id string) (*store.ConversationState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.states[id]
	if !ok {
		return nil, nil
	}
	cp := *s
	return &cp, nil
}

func (f *fakeConversations) DueBatch(_ context.Context, nowMs int64, autoRetryMax, limit int) ([]store.ConversationState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []store.ConversationState
	for _, s := range f.states {
		due := s.NextAttemptMs == 0 || s.NextAttemptMs <= nowMs
		switch {
		case s.Status == store.StatusPending && due:
		case s.Status == store.StatusPaused && s.PostponeCount <= autoRetryMax && s.NextAttemptMs != 0 && due:
		default:
			continue
		}
		out = append(out, *s)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

type fakeMessages struct {
	mu   sync.Mutex
	rows []store.Message
}

func (f *fakeMessages) Insert(_ context.Context, msg store.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows = append(f.rows, msg)
	return nil
}

func (f *fakeMessages) History(_ context.Context, conversationID string, limit int) ([]store.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []store.Message
	for _, m := range f.rows {
		if m.ConversationID == conversationID {
			out = append(out, m)
		}
	}
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

type fakeReplyLog struct {
	mu      sync.Mutex
	entries []store.ReplyLogEntry
}

func (f *fakeReplyLog) Append(_ context.Context, e store.ReplyLogEntry) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e.ID = strconv.Itoa(len(f.entries) + 1)
	f.entries = append(f.entries, e)
	return e.ID, nil
}

func (f *fakeReplyLog) ActiveConversationsSince(_ context.Context, sinceMs int64, limit int) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	seen := make(map[string]bool)
	var out []string
	for _, e := range f.entries {
		if e.CreatedMs < sinceMs || seen[e.ConversationID] {
			continue
		}
		if e.Status != "sent" && e.Status != "suggested" {
			continue
		}
		seen[e.ConversationID] = true
		out = append(out, e.ConversationID)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (f *fakeReplyLog) last() *store.ReplyLogEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.entries) == 0 {
		return nil
	}
	e := f.entries[len(f.entries)-1]
	return &e
}

type fakeOutbound struct {
	mu   sync.Mutex
	rows []store.OutboundMessage
}

func (f *fakeOutbound) Insert(_ context.Context, rec store.OutboundMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows = append(f.rows, rec)
	return nil
}

func (f *fakeOutbound) LastSentMs(_ context.Context, conversationID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var last int64
	for _, r := range f.rows {
		if r.ConversationID == conversationID && r.CreatedMs > last {
			last = r.CreatedMs
		}
	}
	return last, nil
}

func (f *fakeOutbound) HasProviderMessage(_ context.Context, providerMessageID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.rows {
		if r.ProviderMessageID == providerMessageID {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeOutbound) CountFor(_ context.Context, conversationID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, r := range f.rows {
		if r.ConversationID == conversationID {
			n++
		}
	}
	return n, nil
}

type fakeCatalog struct {
	products map[string]*store.Product
	variants map[string][]store.Variant
	images   map[string][]store.ProductImage
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{
		products: make(map[string]*store.Product),
		variants: make(map[string][]store.Variant),
		images:   make(map[string][]store.ProductImage),
	}
}

func (f *fakeCatalog) ProductByID(_ context.Context, id string) (*store.Product, error) {
	return f.products[id], nil
}

func (f *fakeCatalog) ProductBySlugOrSKU(_ context.Context, key string) (*store.Product, error) {
	for _, p := range f.products {
		if p.Slug == key {
			return p, nil
		}
	}
	for pid, vs := range f.variants {
		for _, v := range vs {
			if v.SKU == key {
				return f.products[pid], nil
			}
		}
	}
	return nil, nil
}

func (f *fakeCatalog) VariantsFor(_ context.Context, productID string) ([]store.Variant, error) {
	return f.variants[productID], nil
}

func (f *fakeCatalog) ImagesFor(_ context.Context, productID, variantKey string, limit int) ([]store.ProductImage, error) {
	var out []store.ProductImage
	for _, img := range f.images[productID] {
		if !img.Send {
			continue
		}
		if img.VariantKey != "" && variantKey != "" && img.VariantKey != variantKey {
			continue
		}
		out = append(out, img)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

type fakeOrders struct {
	mu         sync.Mutex
	candidates map[string]*store.OrderCandidate
}

func newFakeOrders() *fakeOrders {
	return &fakeOrders{candidates: make(map[string]*store.OrderCandidate)}
}

func (f *fakeOrders) Get(_ context.Context, conversationID string) (*store.OrderCandidate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.candidates[conversationID]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (f *fakeOrders) Upsert(_ context.Context, c store.OrderCandidate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := c
	f.candidates[c.ConversationID] = &cp
	return nil
}

type fakeNotifications struct {
	mu   sync.Mutex
	rows []store.AdminNotification
}

func (f *fakeNotifications) Insert(_ context.Context, n store.AdminNotification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows = append(f.rows, n)
	return nil
}

type fakeSettings struct {
	values map[string]bool
}

func (f *fakeSettings) Bool(_ context.Context, key string, def bool) (bool, error) {
	if v, ok := f.values[key]; ok {
		return v, nil
	}
	return def, nil
}

func newFakeStores() (store.Stores, *fakeConversations, *fakeReplyLog, *fakeOutbound, *fakeCatalog) {
	conv := newFakeConversations()
	replyLog := &fakeReplyLog{}
	outbound := &fakeOutbound{}
	catalog := newFakeCatalog()
	stores := store.Stores{
		Conversations: conv,
		Messages:      &fakeMessages{},
		ReplyLog:      replyLog,
		Outbound:      outbound,
		Catalog:       catalog,
		Orders:        newFakeOrders(),
		Notifications: &fakeNotifications{},
		Settings:      &fakeSettings{values: map[string]bool{store.SettingAutoReplyEnabled: true}},
	}
	return stores, conv, replyLog, outbound, catalog
}

// scriptedProvider returns canned responses: the first call gets the agent
// draft, the second the serializer JSON, then it repeats.
type scriptedProvider struct {
	mu        sync.Mutex
	draft     string
	decisions []string
	calls     int
	err       error
}

func (p *scriptedProvider) Chat(_ context.Context, req providers.ChatRequest) (*providers.ChatResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return nil, p.err
	}
	p.calls++
	if jsonMode, _ := req.Options[providers.OptJSONMode].(bool); jsonMode {
		d := p.decisions[0]
		if len(p.decisions) > 1 {
			p.decisions = p.decisions[1:]
		}
		return &providers.ChatResponse{Content: d, FinishReason: "stop"}, nil
	}
	return &providers.ChatResponse{Content: p.draft, FinishReason: "stop"}, nil
}

func (p *scriptedProvider) DefaultModel() string { return "test-model" }
func (p *scriptedProvider) Name() string         { return "scripted" }

func (p *scriptedProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

// fakeTransport records sends and can fail after a number of units.
type fakeTransport struct {
	mu        sync.Mutex
	sent      []sentUnit
	failAfter int // fail when len(sent) reaches this; 0 = never
	nextID    int
}

type sentUnit struct {
	Ref    string
	Text   string
	Images []string
}

func (f *fakeTransport) Send(_ context.Context, ref, text string, imageURLs []string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAfter > 0 && len(f.sent) >= f.failAfter {
		return nil, fmt.Errorf("transport unavailable")
	}
	f.sent = append(f.sent, sentUnit{Ref: ref, Text: text, Images: imageURLs})
	f.nextID++
	ids := []string{fmt.Sprintf("mid-%d", f.nextID)}
	for range imageURLs {
		f.nextID++
		ids = append(ids, fmt.Sprintf("mid-%d", f.nextID))
	}
	return ids, nil
}
