package events

import (
	"encoding/json"
	"time"
)

// ---------------------------------------------------------------
// Presence and typing
// ---------------------------------------------------------------

// UserStatusPayload announces a presence change to all other clients and
// answers get_user_status queries.
type UserStatusPayload struct {
	UserID   uint       `json:"userId"`
	IsOnline bool       `json:"isOnline"`
	LastSeen *time.Time `json:"lastSeen,omitempty"`
}

// GetUserStatusPayload asks for another user's presence.
type GetUserStatusPayload struct {
	UserID uint `json:"userId"`
}

// TypingPayload carries typing start/stop signals in both directions.
type TypingPayload struct {
	UserID         uint `json:"userId"`
	ConversationID uint `json:"conversationId"`
	ReceiverID     uint `json:"receiverId,omitempty"`
	IsTyping       bool `json:"isTyping"`
}

// ---------------------------------------------------------------
// Messages
// ---------------------------------------------------------------

// SendMessagePayload is a live send from a client.
type SendMessagePayload struct {
	ConversationID uint   `json:"conversationId,omitempty"`
	ReceiverID     uint   `json:"receiverId"`
	Content        string `json:"content,omitempty"`
	MediaURL       string `json:"mediaUrl,omitempty"`
	ContentType    string `json:"contentType,omitempty"`
}

// MessageReadPayload marks a batch of messages read by the connected user.
type MessageReadPayload struct {
	MessageIDs []uint `json:"messageIds"`
	SenderID   uint   `json:"senderId,omitempty"`
}

// MessageStatusPayload notifies a sender that one of their messages moved
// through the delivery lifecycle.
type MessageStatusPayload struct {
	MessageID uint   `json:"messageId"`
	Status    string `json:"status"`
}

// ReactionPayload toggles a reaction on a message.
type ReactionPayload struct {
	MessageID uint   `json:"messageId"`
	UserID    uint   `json:"userId"`
	Emoji     string `json:"emoji"`
}

// ReactionUpdatedPayload broadcasts the full reaction set after a mutation.
type ReactionUpdatedPayload struct {
	MessageID uint            `json:"messageId"`
	Reactions json.RawMessage `json:"reactions"`
}

// DeleteMessagePayload asks for a message to be deleted by its sender.
type DeleteMessagePayload struct {
	MessageID uint `json:"messageId"`
}

// MessageDeletedPayload notifies the other participant of a deletion.
type MessageDeletedPayload struct {
	MessageID uint `json:"messageId"`
}

// ExpiredPayload notifies both participants that the sweeper removed a
// message; the event name distinguishes time expiry from media expiry.
type ExpiredPayload struct {
	MessageID      uint `json:"messageId"`
	ConversationID uint `json:"conversationId"`
}

// ---------------------------------------------------------------
// Statuses
// ---------------------------------------------------------------

// StatusViewedPayload tells a status owner who has seen their post so far.
type StatusViewedPayload struct {
	StatusID  uint   `json:"statusId"`
	ViewerIDs []uint `json:"viewerIds"`
}

// StatusDeletedPayload announces a status removal to all clients.
type StatusDeletedPayload struct {
	StatusID uint `json:"statusId"`
}

// ---------------------------------------------------------------
// Calls
// ---------------------------------------------------------------

// ParticipantInfo is the display info forwarded with call invites/answers.
type ParticipantInfo struct {
	Name      string `json:"name"`
	AvatarURL string `json:"avatarUrl,omitempty"`
}

// InitiateCallPayload starts a call attempt.
type InitiateCallPayload struct {
	CallerID   uint            `json:"callerId"`
	ReceiverID uint            `json:"receiverId"`
	CallType   string          `json:"callType"` // "audio" or "video"
	CallerInfo ParticipantInfo `json:"callerInfo"`
}

// IncomingCallPayload is forwarded to the callee on initiate.
type IncomingCallPayload struct {
	CallID       string `json:"callId"`
	CallerID     uint   `json:"callerId"`
	CallerName   string `json:"callerName,omitempty"`
	CallerAvatar string `json:"callerAvatar,omitempty"`
	CallType     string `json:"callType"`
}

// CallAnswerPayload accepts or rejects a ringing call.
type CallAnswerPayload struct {
	CallID       string          `json:"callId"`
	CallerID     uint            `json:"callerId"`
	ReceiverInfo ParticipantInfo `json:"receiverInfo,omitempty"`
}

// CallAcceptedPayload is forwarded to the caller on accept.
type CallAcceptedPayload struct {
	CallID         string `json:"callId"`
	ReceiverName   string `json:"receiverName,omitempty"`
	ReceiverAvatar string `json:"receiverAvatar,omitempty"`
}

// CallRejectedPayload is forwarded to the caller on reject.
type CallRejectedPayload struct {
	CallID string `json:"callId"`
}

// EndCallPayload ends a call; the relay resolves the other participant from
// the session, never from the payload.
type EndCallPayload struct {
	CallID        string `json:"callId"`
	ParticipantID uint   `json:"participantId"`
}

// CallEndedPayload is forwarded to the surviving participant.
type CallEndedPayload struct {
	CallID  string `json:"callId"`
	EndedBy uint   `json:"endedBy"`
	Reason  string `json:"reason,omitempty"`
}

// CallFailedPayload tells the caller why a call could not progress.
type CallFailedPayload struct {
	CallID string `json:"callId,omitempty"`
	Reason string `json:"reason"`
}

// SignalPayload carries opaque WebRTC negotiation data (offer, answer or an
// ICE candidate) between the two participants, tagged with the sender.
type SignalPayload struct {
	CallID     string          `json:"callId"`
	ReceiverID uint            `json:"receiverId,omitempty"`
	SenderID   uint            `json:"senderId,omitempty"`
	Offer      json.RawMessage `json:"offer,omitempty"`
	Answer     json.RawMessage `json:"answer,omitempty"`
	Candidate  json.RawMessage `json:"candidate,omitempty"`
}

// ---------------------------------------------------------------
// Scheduler
// ---------------------------------------------------------------

// ScheduledSentPayload notifies the sender their deferred message went out.
type ScheduledSentPayload struct {
	ScheduledMessageID uint `json:"scheduledMessageId"`
	MessageID          uint `json:"messageId"`
}

// ScheduledFailedPayload notifies the sender of a permanent failure.
type ScheduledFailedPayload struct {
	ScheduledMessageID uint   `json:"scheduledMessageId"`
	Reason             string `json:"reason"`
}

// ErrorPayload surfaces a synchronous operation failure to the initiating
// client.
type ErrorPayload struct {
	Op    string `json:"op,omitempty"`
	Error string `json:"error"`
}
