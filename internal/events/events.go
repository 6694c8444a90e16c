// Package events defines the socket-style event envelope and the payload
// types exchanged between the coordinator and connected clients.
package events

import "encoding/json"

// Inbound event names (client to coordinator).
const (
	SendMessage     = "send_message"
	MessageRead     = "message_read"
	TypingStart     = "typing_start"
	TypingStop      = "typing_stop"
	AddReaction     = "add_reaction"
	DeleteMessage   = "delete_message"
	GetUserStatus   = "get_user_status"
	InitiateCall    = "initiate_call"
	AcceptCall      = "accept_call"
	RejectCall      = "reject_call"
	EndCall         = "end_call"
	WebRTCOffer     = "webrtc_offer"
	WebRTCAnswer    = "webrtc_answer"
	WebRTCCandidate = "webrtc_ice_candidate"
)

// Outbound event names (coordinator to client).
const (
	UserStatus              = "user_status"
	UserStatusResult        = "user_status_result"
	ReceiveMessage          = "receive_message"
	MessageStatusUpdated    = "message_status_updated"
	MessageDeleted          = "message_deleted"
	UserTyping              = "user_typing"
	ReactionUpdated         = "reaction_updated"
	IncomingCall            = "incoming_call"
	CallAccepted            = "call_accepted"
	CallRejected            = "call_rejected"
	CallEnded               = "call_ended"
	CallFailed              = "call_failed"
	ScheduledMessageCreated = "scheduled_message_created"
	ScheduledMessageUpdated = "scheduled_message_updated"
	ScheduledMessageCancel  = "scheduled_message_cancelled"
	ScheduledMessageSent    = "scheduled_message_sent"
	ScheduledMessageFailed  = "scheduled_message_failed"
	MessageExpired          = "message_expired"
	MediaExpired            = "media_expired"
	NewStatus               = "new_status"
	StatusViewed            = "status_viewed"
	StatusDeleted           = "status_deleted"
	ErrorEvent              = "error"
)

// Event is the envelope carried over a WebSocket connection in both
// directions: a name plus a JSON payload.
type Event struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// New builds an envelope from a payload struct. Marshal failures surface to
// the caller; payload types in this package always marshal.
func New(name string, payload any) (Event, error) {
	if payload == nil {
		return Event{Event: name}, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}
	return Event{Event: name, Data: raw}, nil
}

// MustNew is New for payloads known to marshal; it panics otherwise and is
// intended for the typed payloads below.
func MustNew(name string, payload any) Event {
	evt, err := New(name, payload)
	if err != nil {
		panic(err)
	}
	return evt
}
