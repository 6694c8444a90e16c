// Package call relays call-setup signaling between two resolved
// connections, guarded by a per-attempt state machine. The relay never
// inspects or terminates media; it only forwards payloads in order.
package call

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"chatlink/internal/events"
)

// ReasonReceiverOffline is the caller-visible reason when the callee cannot
// be resolved at initiation.
const ReasonReceiverOffline = "receiver not online"

// ReasonRingTimeout is the reason attached when an unanswered ringing call
// is failed automatically.
const ReasonRingTimeout = "ring timeout"

// PeerNotifier resolves users to reachable connections. Satisfied by
// *presence.Registry.
type PeerNotifier interface {
	SendTo(userID uint, evt events.Event) bool
	IsOnline(userID uint) bool
}

// StreamPublisher mirrors terminal call outcomes onto the notification
// event stream. May be nil.
type StreamPublisher interface {
	Publish(ctx context.Context, name string, key string, payload any) error
}

// ErrUnknownCall is returned for operations on a call id with no live
// session.
var ErrUnknownCall = fmt.Errorf("unknown call")

// Relay owns the live call sessions. All durable call state is the session
// map; everything else is forwarding.
type Relay struct {
	mu       sync.Mutex
	sessions map[string]*Session

	peers       PeerNotifier
	publisher   StreamPublisher
	ringTimeout time.Duration
}

// NewRelay creates a call relay. ringTimeout of zero disables the
// auto-fail of unanswered calls; publisher may be nil.
func NewRelay(peers PeerNotifier, publisher StreamPublisher, ringTimeout time.Duration) *Relay {
	return &Relay{
		sessions:    make(map[string]*Session),
		peers:       peers,
		publisher:   publisher,
		ringTimeout: ringTimeout,
	}
}

// Initiate starts a call attempt. An unreachable receiver fails the attempt
// immediately with a specific reason to the caller and leaves no session
// behind.
func (r *Relay) Initiate(ctx context.Context, callerID, receiverID uint, callType string, callerInfo events.ParticipantInfo) (string, error) {
	if callerID == 0 || receiverID == 0 || callerID == receiverID {
		return "", fmt.Errorf("invalid call participants %d/%d", callerID, receiverID)
	}
	now := time.Now()
	callID := newCallID(callerID, receiverID, now)

	if !r.peers.IsOnline(receiverID) {
		r.peers.SendTo(callerID, events.MustNew(events.CallFailed, events.CallFailedPayload{
			CallID: callID,
			Reason: ReasonReceiverOffline,
		}))
		r.publishOutcome(ctx, callID, StateFailed, ReasonReceiverOffline)
		return callID, nil
	}

	session := &Session{
		CallID:     callID,
		CallerID:   callerID,
		ReceiverID: receiverID,
		CallType:   callType,
		State:      StateRinging,
		StartedAt:  now,
	}
	if r.ringTimeout > 0 {
		session.ringTimer = time.AfterFunc(r.ringTimeout, func() {
			r.expireRinging(callID)
		})
	}

	r.mu.Lock()
	r.sessions[callID] = session
	r.mu.Unlock()

	r.peers.SendTo(receiverID, events.MustNew(events.IncomingCall, events.IncomingCallPayload{
		CallID:       callID,
		CallerID:     callerID,
		CallerName:   callerInfo.Name,
		CallerAvatar: callerInfo.AvatarURL,
		CallType:     callType,
	}))
	return callID, nil
}

// Accept moves a ringing call to accepted and forwards the answer to the
// caller only.
func (r *Relay) Accept(callID string, receiverInfo events.ParticipantInfo) error {
	session, err := r.transition(callID, StateAccepted)
	if err != nil {
		return err
	}
	r.peers.SendTo(session.CallerID, events.MustNew(events.CallAccepted, events.CallAcceptedPayload{
		CallID:         callID,
		ReceiverName:   receiverInfo.Name,
		ReceiverAvatar: receiverInfo.AvatarURL,
	}))
	return nil
}

// Reject moves a ringing call to rejected (terminal) and informs the
// caller.
func (r *Relay) Reject(ctx context.Context, callID string) error {
	session, err := r.transition(callID, StateRejected)
	if err != nil {
		return err
	}
	r.removeSession(callID)
	r.peers.SendTo(session.CallerID, events.MustNew(events.CallRejected, events.CallRejectedPayload{
		CallID: callID,
	}))
	r.publishOutcome(ctx, callID, StateRejected, "")
	return nil
}

// End terminates a call on behalf of participantID and notifies the other
// participant, resolved from the session by call id.
func (r *Relay) End(ctx context.Context, callID string, participantID uint, reason string) error {
	r.mu.Lock()
	session, ok := r.sessions[callID]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownCall, callID)
	}
	other, isParticipant := session.Other(participantID)
	if !isParticipant {
		r.mu.Unlock()
		return fmt.Errorf("user %d is not a participant of call %s", participantID, callID)
	}
	session.State = StateEnded
	if session.ringTimer != nil {
		session.ringTimer.Stop()
	}
	delete(r.sessions, callID)
	r.mu.Unlock()

	r.peers.SendTo(other, events.MustNew(events.CallEnded, events.CallEndedPayload{
		CallID:  callID,
		EndedBy: participantID,
		Reason:  reason,
	}))
	r.publishOutcome(ctx, callID, StateEnded, reason)
	return nil
}

// RelayOffer forwards an SDP offer to the target, tagged with the sender.
// Unreachable targets are a no-op: signaling payloads are perishable.
func (r *Relay) RelayOffer(callID string, senderID, targetID uint, offer json.RawMessage) {
	r.forward(events.WebRTCOffer, events.SignalPayload{
		CallID:   callID,
		SenderID: senderID,
		Offer:    offer,
	}, targetID)
}

// RelayAnswer forwards an SDP answer to the target, tagged with the sender.
func (r *Relay) RelayAnswer(callID string, senderID, targetID uint, answer json.RawMessage) {
	r.forward(events.WebRTCAnswer, events.SignalPayload{
		CallID:   callID,
		SenderID: senderID,
		Answer:   answer,
	}, targetID)
}

// RelayICECandidate forwards one ICE candidate to the target, tagged with
// the sender. Candidates for a call reach the target in arrival order via
// the target's serialized send queue.
func (r *Relay) RelayICECandidate(callID string, senderID, targetID uint, candidate json.RawMessage) {
	r.forward(events.WebRTCCandidate, events.SignalPayload{
		CallID:    callID,
		SenderID:  senderID,
		Candidate: candidate,
	}, targetID)
}

// Session returns a copy of the live session for callID, primarily for
// status inspection.
func (r *Relay) Session(callID string) (Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	session, ok := r.sessions[callID]
	if !ok {
		return Session{}, false
	}
	return *session, true
}

// ActiveCalls reports the number of live sessions.
func (r *Relay) ActiveCalls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

func (r *Relay) forward(name string, payload events.SignalPayload, targetID uint) {
	// No state transition here: these operate beneath the handshake
	// machine and may be high-frequency.
	r.peers.SendTo(targetID, events.MustNew(name, payload))
}

func (r *Relay) transition(callID string, next State) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	session, ok := r.sessions[callID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCall, callID)
	}
	if !session.State.CanTransition(next) {
		return nil, fmt.Errorf("call %s: illegal transition %s -> %s", callID, session.State, next)
	}
	session.State = next
	if session.ringTimer != nil {
		session.ringTimer.Stop()
		session.ringTimer = nil
	}
	return session, nil
}

func (r *Relay) removeSession(callID string) {
	r.mu.Lock()
	delete(r.sessions, callID)
	r.mu.Unlock()
}

// expireRinging fails a call that was never answered within the ring
// timeout. Both sides are told; a call that moved on in the meantime is
// left alone.
func (r *Relay) expireRinging(callID string) {
	r.mu.Lock()
	session, ok := r.sessions[callID]
	if !ok || session.State != StateRinging {
		r.mu.Unlock()
		return
	}
	session.State = StateFailed
	delete(r.sessions, callID)
	r.mu.Unlock()

	r.peers.SendTo(session.CallerID, events.MustNew(events.CallFailed, events.CallFailedPayload{
		CallID: callID,
		Reason: ReasonRingTimeout,
	}))
	r.peers.SendTo(session.ReceiverID, events.MustNew(events.CallEnded, events.CallEndedPayload{
		CallID: callID,
		Reason: ReasonRingTimeout,
	}))
	r.publishOutcome(context.Background(), callID, StateFailed, ReasonRingTimeout)
}

func (r *Relay) publishOutcome(ctx context.Context, callID string, state State, reason string) {
	if r.publisher == nil {
		return
	}
	payload := map[string]string{"callId": callID, "state": string(state)}
	if reason != "" {
		payload["reason"] = reason
	}
	if err := r.publisher.Publish(ctx, "call_outcome", callID, payload); err != nil {
		log.Printf("call: publishing outcome for %s failed: %v", callID, err)
	}
}
