package call

import (
	"fmt"
	"time"
)

// State is the per-attempt call lifecycle. The relay enforces legal
// transitions; WebRTC negotiation (offer/answer/ICE) happens beneath this
// machine and never drives it.
type State string

const (
	StateIdle       State = "idle"
	StateRinging    State = "ringing"
	StateAccepted   State = "accepted"
	StateConnecting State = "connecting"
	StateConnected  State = "connected"
	StateRejected   State = "rejected"
	StateFailed     State = "failed"
	StateEnded      State = "ended"
)

var legalTransitions = map[State][]State{
	StateIdle:       {StateRinging, StateFailed},
	StateRinging:    {StateAccepted, StateRejected, StateFailed, StateEnded},
	StateAccepted:   {StateConnecting, StateConnected, StateEnded, StateFailed},
	StateConnecting: {StateConnected, StateEnded, StateFailed},
	StateConnected:  {StateEnded, StateFailed},
}

// Terminal reports whether no further transition is legal from s.
func (s State) Terminal() bool {
	return len(legalTransitions[s]) == 0
}

// CanTransition reports whether moving from s to next is legal.
func (s State) CanTransition(next State) bool {
	for _, allowed := range legalTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Session is one call attempt. Both participant IDs are stored at
// initiation so "the other side" is always a lookup, never a recomputation
// from handler scope.
type Session struct {
	CallID     string
	CallerID   uint
	ReceiverID uint
	CallType   string // "audio" or "video"
	State      State
	StartedAt  time.Time

	ringTimer *time.Timer
}

// Other returns the participant opposite to participantID, or false when
// participantID is not part of this call.
func (s *Session) Other(participantID uint) (uint, bool) {
	switch participantID {
	case s.CallerID:
		return s.ReceiverID, true
	case s.ReceiverID:
		return s.CallerID, true
	default:
		return 0, false
	}
}

// newCallID builds an identifier unique to this attempt. Caller, receiver
// and timestamp together keep repeated attempts between the same pair from
// colliding.
func newCallID(callerID, receiverID uint, at time.Time) string {
	return fmt.Sprintf("%d-%d-%d", callerID, receiverID, at.UnixMilli())
}
