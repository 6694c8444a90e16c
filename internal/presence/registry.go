// Package presence tracks which users are reachable right now. The registry
// is the single in-memory authority mapping a user to their live connection;
// every other component resolves through it before pushing an event.
package presence

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"chatlink/internal/events"
)

// Sender is one live client connection. Send must be non-blocking and
// best-effort: a slow or dead connection drops events rather than stalling
// the registry.
type Sender interface {
	ConnID() string
	Send(evt events.Event) error
	Close()
}

// ErrCacheMiss is returned by a Cache when no presence entry exists.
var ErrCacheMiss = errors.New("presence: cache miss")

// Cache mirrors presence state into a fast store so status queries avoid a
// database round trip.
type Cache interface {
	SetPresence(ctx context.Context, userID uint, isOnline bool, lastSeen time.Time) error
	GetLastSeen(ctx context.Context, userID uint) (time.Time, error)
}

// Store persists the durable presence columns on the user record.
type Store interface {
	SetPresence(ctx context.Context, userID uint, isOnline bool, lastSeen time.Time) error
}

// Registry maps user identity to connection identity. Single-device policy:
// a new connection for a user supersedes and closes the previous one.
type Registry struct {
	mu     sync.RWMutex
	byUser map[uint]Sender
	byConn map[string]uint

	store Store
	cache Cache

	hookMu       sync.Mutex
	onDisconnect []func(userID uint)
}

// NewRegistry creates a presence registry. store and cache may be nil in
// tests; presence then lives purely in memory.
func NewRegistry(store Store, cache Cache) *Registry {
	return &Registry{
		byUser: make(map[uint]Sender),
		byConn: make(map[string]uint),
		store:  store,
		cache:  cache,
	}
}

// OnDisconnect registers a hook invoked after a user's connection is
// removed, used to clear per-user state owned elsewhere (typing timers).
func (r *Registry) OnDisconnect(fn func(userID uint)) {
	r.hookMu.Lock()
	r.onDisconnect = append(r.onDisconnect, fn)
	r.hookMu.Unlock()
}

// Connect registers or replaces the mapping for userID, marks the user
// online and broadcasts their status to all other connections.
func (r *Registry) Connect(ctx context.Context, userID uint, conn Sender) {
	now := time.Now()

	var superseded Sender
	r.mu.Lock()
	if existing, ok := r.byUser[userID]; ok && existing.ConnID() != conn.ConnID() {
		// Single-device policy: the newer connection wins.
		delete(r.byConn, existing.ConnID())
		superseded = existing
	}
	r.byUser[userID] = conn
	r.byConn[conn.ConnID()] = userID
	r.mu.Unlock()

	// Close outside the lock: the connection's close handler calls back
	// into Disconnect, which takes r.mu itself.
	if superseded != nil {
		superseded.Close()
	}

	// Storage and cache writes happen outside the lock.
	r.persistPresence(ctx, userID, true, now)
	r.Broadcast(events.MustNew(events.UserStatus, events.UserStatusPayload{
		UserID:   userID,
		IsOnline: true,
	}), userID)
	log.Printf("presence: user %d connected (conn %s)", userID, conn.ConnID())
}

// Disconnect removes the mapping owned by connID, records last-seen and
// broadcasts offline status. A connection superseded by a newer one only
// detaches itself; the newer mapping survives.
func (r *Registry) Disconnect(ctx context.Context, connID string) {
	now := time.Now()

	r.mu.Lock()
	userID, ok := r.byConn[connID]
	if !ok {
		r.mu.Unlock()
		return
	}
	delete(r.byConn, connID)
	current, live := r.byUser[userID]
	if !live || current.ConnID() != connID {
		// Stale disconnect racing a reconnect; the new mapping stays.
		r.mu.Unlock()
		return
	}
	delete(r.byUser, userID)
	r.mu.Unlock()

	r.hookMu.Lock()
	hooks := make([]func(uint), len(r.onDisconnect))
	copy(hooks, r.onDisconnect)
	r.hookMu.Unlock()
	for _, fn := range hooks {
		fn(userID)
	}

	r.persistPresence(ctx, userID, false, now)
	r.Broadcast(events.MustNew(events.UserStatus, events.UserStatusPayload{
		UserID:   userID,
		IsOnline: false,
		LastSeen: &now,
	}), userID)
	log.Printf("presence: user %d disconnected (conn %s)", userID, connID)
}

// Resolve returns the live connection for userID. A miss is the normal
// "recipient offline" case, never an error; callers treat delivery as
// best-effort and must not retry.
func (r *Registry) Resolve(userID uint) (Sender, bool) {
	r.mu.RLock()
	conn, ok := r.byUser[userID]
	r.mu.RUnlock()
	return conn, ok
}

// IsOnline reports whether userID currently has a live connection.
func (r *Registry) IsOnline(userID uint) bool {
	_, ok := r.Resolve(userID)
	return ok
}

// Status answers a presence query: online flag from the in-memory map,
// last-seen from the cache when offline.
func (r *Registry) Status(ctx context.Context, userID uint) events.UserStatusPayload {
	status := events.UserStatusPayload{UserID: userID, IsOnline: r.IsOnline(userID)}
	if status.IsOnline {
		now := time.Now()
		status.LastSeen = &now
		return status
	}
	if r.cache != nil {
		if lastSeen, err := r.cache.GetLastSeen(ctx, userID); err == nil {
			status.LastSeen = &lastSeen
		} else if !errors.Is(err, ErrCacheMiss) {
			log.Printf("presence: last-seen lookup for user %d failed: %v", userID, err)
		}
	}
	return status
}

// Broadcast sends an event to every connection except excludeUserID.
// Sends happen outside the lock against a snapshot; per-connection buffers
// absorb slow receivers.
func (r *Registry) Broadcast(evt events.Event, excludeUserID uint) {
	r.mu.RLock()
	targets := make([]Sender, 0, len(r.byUser))
	for uid, conn := range r.byUser {
		if uid == excludeUserID {
			continue
		}
		targets = append(targets, conn)
	}
	r.mu.RUnlock()

	for _, conn := range targets {
		if err := conn.Send(evt); err != nil {
			log.Printf("presence: broadcast to conn %s dropped: %v", conn.ConnID(), err)
		}
	}
}

// SendTo pushes an event to userID if reachable, reporting whether the
// event was handed to a live connection.
func (r *Registry) SendTo(userID uint, evt events.Event) bool {
	conn, ok := r.Resolve(userID)
	if !ok {
		return false
	}
	if err := conn.Send(evt); err != nil {
		log.Printf("presence: send to user %d dropped: %v", userID, err)
		return false
	}
	return true
}

func (r *Registry) persistPresence(ctx context.Context, userID uint, isOnline bool, at time.Time) {
	if r.store != nil {
		if err := r.store.SetPresence(ctx, userID, isOnline, at); err != nil {
			log.Printf("presence: persisting status for user %d failed: %v", userID, err)
		}
	}
	if r.cache != nil {
		if err := r.cache.SetPresence(ctx, userID, isOnline, at); err != nil {
			log.Printf("presence: caching status for user %d failed: %v", userID, err)
		}
	}
}
