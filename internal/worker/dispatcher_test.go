package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/himanstore/dmpilot/internal/memory"
	"github.com/himanstore/dmpilot/internal/pipeline"
	"github.com/himanstore/dmpilot/internal/store"
)

func TestSplitUnits(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{"single unit", "Merhaba!", []string{"Merhaba!"}},
		{"blank line split", "Fiyat 799₺.\n\nKaç adet istersiniz?", []string{"Fiyat 799₺.", "Kaç adet istersiniz?"}},
		{"single newline stays", "line one\nline two", []string{"line one\nline two"}},
		{"extra blanks trimmed", "\n\na\n\n\n\nb\n\n", []string{"a", "b"}},
		{"empty", "   ", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SplitUnits(tt.text)
			if len(got) != len(tt.want) {
				t.Fatalf("got %d units %v, want %d", len(got), got, len(tt.want))
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("unit %d = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func dispatchFixture() (*Dispatcher, *fakeTransport, *fakeOutbound, *pipeline.Context) {
	transport := &fakeTransport{}
	outbound := &fakeOutbound{}
	messages := &fakeMessages{}
	d := NewDispatcher(transport, outbound, messages, 10*time.Second)
	pctx := &pipeline.Context{
		Product: &store.Product{ID: "p1", Slug: "kaban-x", Name: "Kaban X"},
		ImageCandidates: []store.ProductImage{
			{ID: "i1", ProductID: "p1", URL: "https://img/1.jpg", Send: true},
			{ID: "i2", ProductID: "p1", URL: "https://img/2.jpg", Send: true},
		},
	}
	return d, transport, outbound, pctx
}

func TestDispatch_SplitsAndRecords(t *testing.T) {
	d, transport, outbound, pctx := dispatchFixture()
	dec := &pipeline.Decision{
		ShouldReply: true,
		ReplyText:   "Fiyat 799₺.\n\nKaç adet istersiniz?",
		Memory:      memory.New(),
	}

	_, delivered, err := d.Dispatch(context.Background(), "c1", dec, pctx)
	if err != nil {
		t.Fatal(err)
	}
	if delivered != 2 {
		t.Errorf("delivered = %d, want 2", delivered)
	}
	if len(transport.sent) != 2 {
		t.Fatalf("transport got %d units", len(transport.sent))
	}
	n, _ := outbound.CountFor(context.Background(), "c1")
	if n != 2 {
		t.Errorf("outbound rows = %d, want 2", n)
	}
}

func TestDispatch_GuardWindow(t *testing.T) {
	d, transport, outbound, pctx := dispatchFixture()
	outbound.Insert(context.Background(), store.OutboundMessage{
		ConversationID: "c1",
		CreatedMs:      time.Now().UnixMilli(),
	})

	dec := &pipeline.Decision{ShouldReply: true, ReplyText: "hi", Memory: memory.New()}
	_, _, err := d.Dispatch(context.Background(), "c1", dec, pctx)
	if !errors.Is(err, ErrGuardWindow) {
		t.Fatalf("err = %v, want ErrGuardWindow", err)
	}
	if len(transport.sent) != 0 {
		t.Error("guard window still sent units")
	}
}

func TestDispatch_ImagesOnceOnly(t *testing.T) {
	d, transport, _, pctx := dispatchFixture()
	dec := &pipeline.Decision{
		ShouldReply: true,
		ReplyText:   "İşte fotoğraflar",
		Memory:      memory.New(),
		Actions:     []pipeline.Action{{Kind: pipeline.ActionSendImages}},
	}

	mem, _, err := d.Dispatch(context.Background(), "c1", dec, pctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(transport.sent[0].Images) != 2 {
		t.Fatalf("images attached = %v", transport.sent[0].Images)
	}
	if !mem.ImagesSentFor("p1") {
		t.Error("memory not updated with sent images")
	}

	// Second dispatch with the updated memory must not resend images.
	d2, transport2, _, _ := dispatchFixture()
	dec2 := &pipeline.Decision{
		ShouldReply: true,
		ReplyText:   "tekrar",
		Memory:      mem,
		Actions:     []pipeline.Action{{Kind: pipeline.ActionSendImages}},
	}
	if _, _, err := d2.Dispatch(context.Background(), "c1", dec2, pctx); err != nil {
		t.Fatal(err)
	}
	if len(transport2.sent[0].Images) != 0 {
		t.Errorf("images resent: %v", transport2.sent[0].Images)
	}
}

func TestDispatch_PartialFailure(t *testing.T) {
	d, transport, outbound, pctx := dispatchFixture()
	transport.failAfter = 1

	dec := &pipeline.Decision{
		ShouldReply: true,
		ReplyText:   "a\n\nb\n\nc",
		Memory:      memory.New(),
	}
	_, delivered, err := d.Dispatch(context.Background(), "c1", dec, pctx)
	if err == nil {
		t.Fatal("expected transport error")
	}
	if delivered != 1 {
		t.Errorf("delivered = %d, want 1", delivered)
	}
	n, _ := outbound.CountFor(context.Background(), "c1")
	if n != 1 {
		t.Errorf("outbound rows = %d, want only the delivered unit", n)
	}
}
