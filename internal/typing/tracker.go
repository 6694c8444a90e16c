// Package typing tracks ephemeral per-user, per-conversation typing flags
// with auto-expiry. Flags are liveness signals, not durable state: any flag
// that stops being refreshed goes false on its own.
package typing

import (
	"sync"
	"time"

	"chatlink/internal/events"
)

type key struct {
	UserID         uint
	ConversationID uint
}

type entry struct {
	receiverID uint
	timer      *time.Timer

	// generation increments on every re-arm so a stale timer callback that
	// already fired before a refresh cannot clear the refreshed entry.
	generation uint64
}

// Notifier resolves a user to a reachable connection and pushes an event,
// best-effort. Satisfied by *presence.Registry.
type Notifier interface {
	SendTo(userID uint, evt events.Event) bool
}

// Tracker owns the typing state map and its expiry timers. At most one live
// timer exists per (user, conversation) pair; re-arming cancels the
// previous one.
type Tracker struct {
	mu          sync.Mutex
	entries     map[key]*entry
	notifier    Notifier
	quietPeriod time.Duration
}

// NewTracker creates a tracker that auto-stops typing after quietPeriod
// without a refresh.
func NewTracker(notifier Notifier, quietPeriod time.Duration) *Tracker {
	return &Tracker{
		entries:     make(map[key]*entry),
		notifier:    notifier,
		quietPeriod: quietPeriod,
	}
}

// Start sets the typing flag and (re)arms the expiry timer. The start event
// is emitted on the rising edge only; refreshes while already typing reset
// the timer silently.
func (t *Tracker) Start(userID, conversationID, receiverID uint) {
	k := key{UserID: userID, ConversationID: conversationID}

	t.mu.Lock()
	e, alreadyTyping := t.entries[k]
	if alreadyTyping {
		e.timer.Stop()
		e.receiverID = receiverID
	} else {
		e = &entry{receiverID: receiverID}
		t.entries[k] = e
	}
	e.generation++
	armed := e.generation
	e.timer = time.AfterFunc(t.quietPeriod, func() {
		t.expire(k, armed)
	})
	t.mu.Unlock()

	if !alreadyTyping {
		t.emit(userID, conversationID, receiverID, true)
	}
}

// Stop clears the flag, cancels the timer and emits the stop event
// immediately.
func (t *Tracker) Stop(userID, conversationID, receiverID uint) {
	k := key{UserID: userID, ConversationID: conversationID}

	t.mu.Lock()
	if e, ok := t.entries[k]; ok {
		e.timer.Stop()
		delete(t.entries, k)
	}
	t.mu.Unlock()

	t.emit(userID, conversationID, receiverID, false)
}

// ClearUser cancels every timer owned by userID without emitting. Called on
// disconnect so no timer dangles past the connection.
func (t *Tracker) ClearUser(userID uint) {
	t.mu.Lock()
	for k, e := range t.entries {
		if k.UserID == userID {
			e.timer.Stop()
			delete(t.entries, k)
		}
	}
	t.mu.Unlock()
}

// IsTyping reports the current flag for a (user, conversation) pair.
func (t *Tracker) IsTyping(userID, conversationID uint) bool {
	t.mu.Lock()
	_, ok := t.entries[key{UserID: userID, ConversationID: conversationID}]
	t.mu.Unlock()
	return ok
}

// expire fires when the quiet period elapses without a refresh. The entry
// and generation checks make the auto-stop emit exactly once even when a
// Stop, or a refresh that re-armed after this timer already fired, raced
// the callback.
func (t *Tracker) expire(k key, armed uint64) {
	t.mu.Lock()
	e, ok := t.entries[k]
	if ok && e.generation != armed {
		// A refresh re-armed between this timer firing and the callback
		// taking the lock; the newer timer owns the entry now.
		t.mu.Unlock()
		return
	}
	if ok {
		delete(t.entries, k)
	}
	t.mu.Unlock()
	if !ok {
		return
	}
	t.emit(k.UserID, k.ConversationID, e.receiverID, false)
}

func (t *Tracker) emit(userID, conversationID, receiverID uint, isTyping bool) {
	t.notifier.SendTo(receiverID, events.MustNew(events.UserTyping, events.TypingPayload{
		UserID:         userID,
		ConversationID: conversationID,
		IsTyping:       isTyping,
	}))
}
