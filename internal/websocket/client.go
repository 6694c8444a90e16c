// Package websocket adapts a gorilla/websocket connection into the
// coordinator's Sender contract: a connection ID, a non-blocking Send
// and a Close that tears down both pumps.
package websocket

import (
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"chatlink/internal/config"
	"chatlink/internal/events"
)

// ErrSendBufferFull is returned when the outbound buffer for a
// connection is saturated. The event is dropped, not queued.
var ErrSendBufferFull = errors.New("websocket: send buffer full")

// EventHandler receives every decoded inbound event from one client.
type EventHandler func(userID uint, evt events.Event)

// Client wraps one live connection. Outbound events flow through a
// buffered channel drained by writePump; inbound frames are decoded in
// readPump and dispatched to the handler.
type Client struct {
	conn   *websocket.Conn
	connID string
	userID uint

	send   chan []byte
	cfg    config.WebSocketConfig
	handle EventHandler

	// onClose fires exactly once when either pump exits.
	onClose   func(connID string)
	closeOnce sync.Once

	// mu guards closed so Send never races a concurrent Close onto a
	// closed channel.
	mu     sync.Mutex
	closed bool
}

// NewClient wraps an upgraded connection. onClose is invoked once when
// the connection dies for any reason, including a superseding login.
func NewClient(conn *websocket.Conn, userID uint, cfg config.WebSocketConfig, handle EventHandler, onClose func(connID string)) *Client {
	return &Client{
		conn:    conn,
		connID:  uuid.NewString(),
		userID:  userID,
		send:    make(chan []byte, cfg.SendBufferSize),
		cfg:     cfg,
		handle:  handle,
		onClose: onClose,
	}
}

// ConnID returns the connection's unique identity.
func (c *Client) ConnID() string { return c.connID }

// UserID returns the authenticated user behind this connection.
func (c *Client) UserID() uint { return c.userID }

// Send enqueues an event for the write pump. It never blocks: when the
// buffer is full the event is dropped and ErrSendBufferFull returned.
func (c *Client) Send(evt events.Event) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.New("websocket: connection closed")
	}
	select {
	case c.send <- data:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// Close shuts the connection down. Safe to call from any goroutine and
// more than once.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		close(c.send)
		c.mu.Unlock()
		if c.onClose != nil {
			c.onClose(c.connID)
		}
	})
}

// Run starts both pumps. It returns immediately; the pumps own the
// connection from here on.
func (c *Client) Run() {
	go c.writePump()
	go c.readPump()
}

func (c *Client) readPump() {
	defer func() {
		c.Close()
		c.conn.Close()
	}()
	c.conn.SetReadLimit(int64(c.cfg.MaxMessageSizeBytes))
	c.conn.SetReadDeadline(time.Now().Add(c.pongWait()))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(c.pongWait()))
		return nil
	})

	for {
		messageType, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Printf("websocket: read error for user %d: %v", c.userID, err)
			}
			break
		}
		if messageType != websocket.TextMessage {
			log.Printf("websocket: user %d sent non-text message type %d, ignoring", c.userID, messageType)
			continue
		}

		var evt events.Event
		if err := json.Unmarshal(raw, &evt); err != nil {
			log.Printf("websocket: malformed frame from user %d: %v", c.userID, err)
			c.sendError("malformed event")
			continue
		}
		if evt.Event == "" {
			c.sendError("missing event name")
			continue
		}
		if c.handle != nil {
			c.handle(c.userID, evt)
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(c.pingPeriod())
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case data, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(c.writeWait()))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.writeWait()))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) sendError(message string) {
	evt, err := events.New(events.ErrorEvent, events.ErrorPayload{Error: message})
	if err != nil {
		return
	}
	if err := c.Send(evt); err != nil {
		log.Printf("websocket: error event to user %d dropped: %v", c.userID, err)
	}
}

func (c *Client) writeWait() time.Duration {
	return time.Duration(c.cfg.WriteWaitSeconds) * time.Second
}

func (c *Client) pongWait() time.Duration {
	return time.Duration(c.cfg.PongWaitSeconds) * time.Second
}

func (c *Client) pingPeriod() time.Duration {
	return time.Duration(c.cfg.PingPeriodSeconds) * time.Second
}
