package typing

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"chatlink/internal/events"
)

type captured struct {
	userID uint
	evt    events.Event
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []captured
}

func (f *fakeNotifier) SendTo(userID uint, evt events.Event) bool {
	f.mu.Lock()
	f.sent = append(f.sent, captured{userID: userID, evt: evt})
	f.mu.Unlock()
	return true
}

func (f *fakeNotifier) payloads(t *testing.T) []events.TypingPayload {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]events.TypingPayload, len(f.sent))
	for i, c := range f.sent {
		if c.evt.Event != events.UserTyping {
			t.Fatalf("unexpected event %q", c.evt.Event)
		}
		if err := json.Unmarshal(c.evt.Data, &out[i]); err != nil {
			t.Fatal(err)
		}
	}
	return out
}

func TestStartEmitsOnRisingEdgeOnly(t *testing.T) {
	notifier := &fakeNotifier{}
	tracker := NewTracker(notifier, time.Minute)

	tracker.Start(1, 10, 2)
	tracker.Start(1, 10, 2) // refresh, no second emit
	tracker.Start(1, 10, 2)

	payloads := notifier.payloads(t)
	if len(payloads) != 1 {
		t.Fatalf("want 1 typing event, got %d", len(payloads))
	}
	if !payloads[0].IsTyping || payloads[0].UserID != 1 || payloads[0].ConversationID != 10 {
		t.Errorf("unexpected payload %+v", payloads[0])
	}
	if !tracker.IsTyping(1, 10) {
		t.Error("flag should be set while typing")
	}
}

func TestStopEmitsImmediately(t *testing.T) {
	notifier := &fakeNotifier{}
	tracker := NewTracker(notifier, time.Minute)

	tracker.Start(1, 10, 2)
	tracker.Stop(1, 10, 2)

	payloads := notifier.payloads(t)
	if len(payloads) != 2 {
		t.Fatalf("want start+stop events, got %d", len(payloads))
	}
	if payloads[1].IsTyping {
		t.Error("stop event should carry isTyping=false")
	}
	if tracker.IsTyping(1, 10) {
		t.Error("flag should be cleared after Stop")
	}
}

func TestQuietPeriodAutoStops(t *testing.T) {
	notifier := &fakeNotifier{}
	tracker := NewTracker(notifier, 20*time.Millisecond)

	tracker.Start(1, 10, 2)

	deadline := time.After(time.Second)
	for tracker.IsTyping(1, 10) {
		select {
		case <-deadline:
			t.Fatal("typing flag never expired")
		case <-time.After(5 * time.Millisecond):
		}
	}
	// Give the emit a moment after the flag flips.
	time.Sleep(20 * time.Millisecond)

	payloads := notifier.payloads(t)
	if len(payloads) != 2 {
		t.Fatalf("want start+auto-stop events, got %d", len(payloads))
	}
	if payloads[1].IsTyping {
		t.Error("auto-stop event should carry isTyping=false")
	}
}

func TestRefreshPostponesExpiry(t *testing.T) {
	notifier := &fakeNotifier{}
	tracker := NewTracker(notifier, 60*time.Millisecond)

	tracker.Start(1, 10, 2)
	time.Sleep(40 * time.Millisecond)
	tracker.Start(1, 10, 2)
	time.Sleep(40 * time.Millisecond)

	if !tracker.IsTyping(1, 10) {
		t.Error("refresh should have postponed expiry")
	}
}

func TestStaleTimerCallbackCannotClearRefreshedFlag(t *testing.T) {
	notifier := &fakeNotifier{}
	tracker := NewTracker(notifier, time.Minute)

	// A timer that fired just before a refresh is left holding the
	// generation it was armed with; the refresh re-arms with a newer one.
	tracker.Start(1, 10, 2)
	tracker.Start(1, 10, 2)
	tracker.expire(key{UserID: 1, ConversationID: 10}, 1)

	if !tracker.IsTyping(1, 10) {
		t.Fatal("stale timer callback must not clear the refreshed flag")
	}
	for _, p := range notifier.payloads(t) {
		if !p.IsTyping {
			t.Fatal("receiver saw a spurious stop right after a refresh")
		}
	}

	// The current generation still owns the entry and may expire it.
	tracker.expire(key{UserID: 1, ConversationID: 10}, 2)
	if tracker.IsTyping(1, 10) {
		t.Error("current timer generation should expire the flag")
	}
	payloads := notifier.payloads(t)
	if len(payloads) != 2 || payloads[1].IsTyping {
		t.Errorf("want start then auto-stop, got %+v", payloads)
	}
}

func TestClearUserCancelsWithoutEmitting(t *testing.T) {
	notifier := &fakeNotifier{}
	tracker := NewTracker(notifier, 20*time.Millisecond)

	tracker.Start(1, 10, 2)
	tracker.Start(1, 11, 3)
	tracker.ClearUser(1)

	if tracker.IsTyping(1, 10) || tracker.IsTyping(1, 11) {
		t.Error("ClearUser should drop all of the user's flags")
	}
	// Wait past the quiet period: cancelled timers must not emit.
	time.Sleep(60 * time.Millisecond)

	payloads := notifier.payloads(t)
	if len(payloads) != 2 {
		t.Errorf("only the two start events should have been emitted, got %d", len(payloads))
	}
}
