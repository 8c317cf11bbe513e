package worker

import (
	"context"
	"testing"
	"time"

	"github.com/himanstore/dmpilot/internal/store"
)

func newScannerFixture(t *testing.T, decisions ...string) (*Scanner, *processorFixture) {
	t.Helper()
	f := newProcessorFixture(t, decisions...)
	s := NewScanner(f.conv, f.processor, DefaultConfig())
	return s, f
}

func TestScanOnce_ProcessesDueConversation(t *testing.T) {
	s, f := newScannerFixture(t,
		`{"should_reply":true,"reply_text":"Fiyat 799₺.","confidence":0.9}`)
	f.seedConversation(t, "c1", time.Minute)
	f.conv.put(*mustState(t, f, "c1", store.StatusPending))

	s.scanOnce(context.Background())

	if got := f.state(t, "c1").Status; got != store.StatusSent {
		t.Errorf("status = %s, want sent", got)
	}
}

func TestScanOnce_SkipsParkedConversations(t *testing.T) {
	s, f := newScannerFixture(t)

	// Paused with no scheduled attempt: waits for fresh inbound.
	f.conv.put(store.ConversationState{
		ConversationID: "parked",
		Status:         store.StatusPaused,
		LastInboundMs:  time.Now().Add(-time.Hour).UnixMilli(),
	})
	// Terminal escalation: never picked up.
	f.conv.put(store.ConversationState{
		ConversationID: "escalated",
		Status:         store.StatusNeedsAdmin,
		LastInboundMs:  time.Now().Add(-time.Hour).UnixMilli(),
	})

	s.scanOnce(context.Background())

	if f.provider.callCount() != 0 {
		t.Error("backend invoked for parked conversations")
	}
	if got := f.state(t, "parked").Status; got != store.StatusPaused {
		t.Errorf("parked status = %s", got)
	}
	if got := f.state(t, "escalated").Status; got != store.StatusNeedsAdmin {
		t.Errorf("escalated status = %s", got)
	}
}

func TestScanOnce_RetriesScheduledPause(t *testing.T) {
	s, f := newScannerFixture(t,
		`{"should_reply":true,"reply_text":"ok","confidence":0.9}`)
	f.seedConversation(t, "c1", time.Minute)
	state := mustState(t, f, "c1", store.StatusPaused)
	state.PostponeCount = 1
	state.NextAttemptMs = time.Now().Add(-time.Second).UnixMilli()
	f.conv.put(*state)

	s.scanOnce(context.Background())

	if got := f.state(t, "c1").Status; got != store.StatusSent {
		t.Errorf("status = %s, want sent after scheduled retry", got)
	}
}

func TestClaim_OnlyOneWinner(t *testing.T) {
	_, f := newScannerFixture(t)
	f.seedConversation(t, "c1", time.Minute)
	f.conv.put(*mustState(t, f, "c1", store.StatusPending))

	const workers = 8
	wins := make(chan bool, workers)
	for i := 0; i < workers; i++ {
		go func() {
			ok, err := f.conv.Claim(context.Background(), "c1", time.Now().UnixMilli())
			if err != nil {
				t.Error(err)
			}
			wins <- ok
		}()
	}

	won := 0
	for i := 0; i < workers; i++ {
		if <-wins {
			won++
		}
	}
	if won != 1 {
		t.Errorf("claim won by %d workers, want exactly 1", won)
	}
}

func mustState(t *testing.T, f *processorFixture, id string, status store.Status) *store.ConversationState {
	t.Helper()
	s := f.state(t, id)
	s.Status = status
	return s
}
