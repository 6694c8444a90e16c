package websocket

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"chatlink/internal/config"
	"chatlink/internal/events"
)

func testWebSocketConfig() config.WebSocketConfig {
	return config.WebSocketConfig{
		WriteWaitSeconds:    10,
		PongWaitSeconds:     60,
		PingPeriodSeconds:   54,
		MaxMessageSizeBytes: 65536,
		SendBufferSize:      8,
	}
}

// dialTestClient upgrades an in-process connection and returns the peer
// socket for driving frames at the Client.
func dialTestClient(t *testing.T, handle EventHandler) *websocket.Conn {
	t.Helper()
	upgrader := websocket.Upgrader{}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		client := NewClient(conn, 1, testWebSocketConfig(), handle, nil)
		client.Run()
	}))
	t.Cleanup(server.Close)

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	peer, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	t.Cleanup(func() { peer.Close() })
	return peer
}

func readErrorEvent(t *testing.T, peer *websocket.Conn) events.ErrorPayload {
	t.Helper()
	peer.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := peer.ReadMessage()
	if err != nil {
		t.Fatalf("reading error event: %v", err)
	}
	var evt events.Event
	if err := json.Unmarshal(raw, &evt); err != nil {
		t.Fatalf("decoding envelope: %v", err)
	}
	if evt.Event != events.ErrorEvent {
		t.Fatalf("event = %s, want error", evt.Event)
	}
	var payload events.ErrorPayload
	if err := json.Unmarshal(evt.Data, &payload); err != nil {
		t.Fatalf("decoding error payload: %v", err)
	}
	return payload
}

func TestMalformedFrameGetsErrorEvent(t *testing.T) {
	peer := dialTestClient(t, nil)

	if err := peer.WriteMessage(websocket.TextMessage, []byte("{not json")); err != nil {
		t.Fatal(err)
	}
	payload := readErrorEvent(t, peer)
	if payload.Error != "malformed event" {
		t.Errorf("error = %q, want %q", payload.Error, "malformed event")
	}
}

func TestMissingEventNameGetsErrorEvent(t *testing.T) {
	peer := dialTestClient(t, nil)

	if err := peer.WriteMessage(websocket.TextMessage, []byte(`{"data":{"x":1}}`)); err != nil {
		t.Fatal(err)
	}
	payload := readErrorEvent(t, peer)
	if payload.Error != "missing event name" {
		t.Errorf("error = %q, want %q", payload.Error, "missing event name")
	}
}

func TestInboundEventsReachTheHandler(t *testing.T) {
	received := make(chan events.Event, 1)
	peer := dialTestClient(t, func(userID uint, evt events.Event) {
		if userID == 1 {
			received <- evt
		}
	})

	if err := peer.WriteMessage(websocket.TextMessage, []byte(`{"event":"typing_start","data":{"conversationId":3}}`)); err != nil {
		t.Fatal(err)
	}
	select {
	case evt := <-received:
		if evt.Event != events.TypingStart {
			t.Errorf("event = %s, want typing_start", evt.Event)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("handler never saw the inbound event")
	}
}

func TestSendAfterCloseFails(t *testing.T) {
	client := &Client{send: make(chan []byte, 1), cfg: testWebSocketConfig()}
	client.mu.Lock()
	client.closed = true
	client.mu.Unlock()

	if err := client.Send(events.MustNew(events.UserStatus, nil)); err == nil {
		t.Fatal("Send on a closed connection must fail")
	}
}

func TestSendBufferOverflowDropsEvent(t *testing.T) {
	client := &Client{send: make(chan []byte, 1), cfg: testWebSocketConfig()}

	if err := client.Send(events.MustNew(events.UserStatus, nil)); err != nil {
		t.Fatal(err)
	}
	if err := client.Send(events.MustNew(events.UserStatus, nil)); !errors.Is(err, ErrSendBufferFull) {
		t.Errorf("want ErrSendBufferFull, got %v", err)
	}
}
