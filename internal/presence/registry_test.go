package presence

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"chatlink/internal/events"
)

type fakeSender struct {
	id     string
	sent   []events.Event
	closed bool
}

func (f *fakeSender) ConnID() string              { return f.id }
func (f *fakeSender) Send(evt events.Event) error { f.sent = append(f.sent, evt); return nil }
func (f *fakeSender) Close()                      { f.closed = true }

type fakeCache struct {
	lastSeen map[uint]time.Time
}

func (f *fakeCache) SetPresence(_ context.Context, userID uint, _ bool, lastSeen time.Time) error {
	if f.lastSeen == nil {
		f.lastSeen = make(map[uint]time.Time)
	}
	f.lastSeen[userID] = lastSeen
	return nil
}

func (f *fakeCache) GetLastSeen(_ context.Context, userID uint) (time.Time, error) {
	t, ok := f.lastSeen[userID]
	if !ok {
		return time.Time{}, ErrCacheMiss
	}
	return t, nil
}

func eventNames(evts []events.Event) []string {
	names := make([]string, len(evts))
	for i, e := range evts {
		names[i] = e.Event
	}
	return names
}

func TestConnectAndResolve(t *testing.T) {
	r := NewRegistry(nil, nil)
	conn := &fakeSender{id: "c1"}

	r.Connect(context.Background(), 1, conn)

	if !r.IsOnline(1) {
		t.Fatal("user 1 should be online after Connect")
	}
	got, ok := r.Resolve(1)
	if !ok || got.ConnID() != "c1" {
		t.Fatalf("Resolve(1) = %v, %v; want conn c1", got, ok)
	}
	if r.IsOnline(2) {
		t.Error("user 2 should not be online")
	}
}

func TestConnectSupersedesPreviousConnection(t *testing.T) {
	r := NewRegistry(nil, nil)
	old := &fakeSender{id: "old"}
	replacement := &fakeSender{id: "new"}

	r.Connect(context.Background(), 1, old)
	r.Connect(context.Background(), 1, replacement)

	if !old.closed {
		t.Error("superseded connection should be closed")
	}
	got, ok := r.Resolve(1)
	if !ok || got.ConnID() != "new" {
		t.Fatalf("Resolve(1) should return the newer connection, got %v", got)
	}
}

// reenteringSender mirrors the production wiring: closing the websocket
// client synchronously calls back into Registry.Disconnect.
type reenteringSender struct {
	fakeSender
	registry *Registry
}

func (s *reenteringSender) Close() {
	s.fakeSender.Close()
	s.registry.Disconnect(context.Background(), s.id)
}

func TestConnectSupersedeWithReenteringClose(t *testing.T) {
	r := NewRegistry(nil, nil)
	old := &reenteringSender{fakeSender: fakeSender{id: "old"}, registry: r}
	replacement := &reenteringSender{fakeSender: fakeSender{id: "new"}, registry: r}

	r.Connect(context.Background(), 1, old)

	done := make(chan struct{})
	go func() {
		r.Connect(context.Background(), 1, replacement)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Connect hung closing the superseded connection")
	}

	if !old.closed {
		t.Error("superseded connection should be closed")
	}
	if !r.IsOnline(1) {
		t.Fatal("user should stay online through the supersede")
	}
	got, _ := r.Resolve(1)
	if got.ConnID() != "new" {
		t.Errorf("newer connection should hold the mapping, got %s", got.ConnID())
	}
}

func TestDisconnectStaleConnectionKeepsNewMapping(t *testing.T) {
	r := NewRegistry(nil, nil)
	old := &fakeSender{id: "old"}
	replacement := &fakeSender{id: "new"}

	r.Connect(context.Background(), 1, old)
	r.Connect(context.Background(), 1, replacement)

	// The superseded connection's close handler races the reconnect.
	r.Disconnect(context.Background(), "old")

	if !r.IsOnline(1) {
		t.Fatal("user should stay online after the stale disconnect")
	}
	got, _ := r.Resolve(1)
	if got.ConnID() != "new" {
		t.Errorf("newer connection should survive, got %s", got.ConnID())
	}
}

func TestDisconnectBroadcastsOfflineWithLastSeen(t *testing.T) {
	r := NewRegistry(nil, nil)
	alice := &fakeSender{id: "a"}
	bob := &fakeSender{id: "b"}
	r.Connect(context.Background(), 1, alice)
	r.Connect(context.Background(), 2, bob)
	bob.sent = nil

	r.Disconnect(context.Background(), "a")

	if len(bob.sent) != 1 || bob.sent[0].Event != events.UserStatus {
		t.Fatalf("bob should get one user_status event, got %v", eventNames(bob.sent))
	}
	var payload events.UserStatusPayload
	if err := decode(bob.sent[0], &payload); err != nil {
		t.Fatal(err)
	}
	if payload.UserID != 1 || payload.IsOnline || payload.LastSeen == nil {
		t.Errorf("offline status payload wrong: %+v", payload)
	}
}

func TestOnDisconnectHooksFire(t *testing.T) {
	r := NewRegistry(nil, nil)
	var cleared []uint
	r.OnDisconnect(func(userID uint) { cleared = append(cleared, userID) })

	conn := &fakeSender{id: "c"}
	r.Connect(context.Background(), 7, conn)
	r.Disconnect(context.Background(), "c")

	if len(cleared) != 1 || cleared[0] != 7 {
		t.Errorf("disconnect hook should fire once for user 7, got %v", cleared)
	}
}

func TestStatusUsesCacheForOfflineUsers(t *testing.T) {
	lastSeen := time.Now().Add(-time.Hour).Truncate(time.Millisecond)
	cache := &fakeCache{lastSeen: map[uint]time.Time{5: lastSeen}}
	r := NewRegistry(nil, cache)

	status := r.Status(context.Background(), 5)
	if status.IsOnline {
		t.Fatal("user 5 should be offline")
	}
	if status.LastSeen == nil || !status.LastSeen.Equal(lastSeen) {
		t.Errorf("Status should use the cached last-seen, got %v", status.LastSeen)
	}

	// Cache miss leaves last-seen unset.
	miss := r.Status(context.Background(), 6)
	if miss.LastSeen != nil {
		t.Errorf("cache miss should leave LastSeen nil, got %v", miss.LastSeen)
	}
}

func TestBroadcastExcludesOneUser(t *testing.T) {
	r := NewRegistry(nil, nil)
	alice := &fakeSender{id: "a"}
	bob := &fakeSender{id: "b"}
	r.Connect(context.Background(), 1, alice)
	r.Connect(context.Background(), 2, bob)
	alice.sent = nil
	bob.sent = nil

	r.Broadcast(events.MustNew(events.UserStatus, events.UserStatusPayload{UserID: 1, IsOnline: true}), 1)

	if len(alice.sent) != 0 {
		t.Error("excluded user should not receive the broadcast")
	}
	if len(bob.sent) != 1 {
		t.Errorf("other user should receive the broadcast, got %d events", len(bob.sent))
	}
}

func TestSendToOfflineUser(t *testing.T) {
	r := NewRegistry(nil, nil)
	if r.SendTo(99, events.MustNew(events.UserStatus, nil)) {
		t.Error("SendTo should report false for an offline user")
	}
}

func decode(evt events.Event, out any) error {
	return json.Unmarshal(evt.Data, out)
}
