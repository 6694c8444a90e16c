package coordinator

import (
	"context"
	"encoding/json"
	"errors"
	"log"

	"chatlink/internal/call"
	"chatlink/internal/delivery"
	"chatlink/internal/events"
	"chatlink/internal/models"
	"chatlink/internal/presence"
	"chatlink/internal/storage"
	"chatlink/internal/typing"
)

// Router dispatches decoded client events to the component that owns
// them. One router instance serves every connection.
type Router struct {
	registry *presence.Registry
	tracker  *typing.Tracker
	delivery *delivery.Service
	relay    *call.Relay
	users    storage.UserRepository
}

// NewRouter wires the dispatch table.
func NewRouter(registry *presence.Registry, tracker *typing.Tracker, deliverySvc *delivery.Service, relay *call.Relay, users storage.UserRepository) *Router {
	return &Router{registry: registry, tracker: tracker, delivery: deliverySvc, relay: relay, users: users}
}

// Dispatch routes one inbound event from an authenticated connection.
// Handler failures go back to the initiating client as error events;
// they never tear the connection down.
func (rt *Router) Dispatch(userID uint, evt events.Event) {
	ctx := context.Background()

	var err error
	switch evt.Event {
	case events.SendMessage:
		err = rt.handleSendMessage(ctx, userID, evt.Data)
	case events.MessageRead:
		err = rt.handleMessageRead(ctx, userID, evt.Data)
	case events.TypingStart, events.TypingStop:
		err = rt.handleTyping(userID, evt.Event, evt.Data)
	case events.AddReaction:
		err = rt.handleReaction(ctx, userID, evt.Data)
	case events.DeleteMessage:
		err = rt.handleDeleteMessage(ctx, userID, evt.Data)
	case events.GetUserStatus:
		err = rt.handleGetUserStatus(ctx, userID, evt.Data)
	case events.InitiateCall:
		err = rt.handleInitiateCall(ctx, userID, evt.Data)
	case events.AcceptCall:
		err = rt.handleAcceptCall(userID, evt.Data)
	case events.RejectCall:
		err = rt.handleRejectCall(ctx, userID, evt.Data)
	case events.EndCall:
		err = rt.handleEndCall(ctx, userID, evt.Data)
	case events.WebRTCOffer, events.WebRTCAnswer, events.WebRTCCandidate:
		err = rt.handleSignal(userID, evt.Event, evt.Data)
	default:
		err = errors.New("unknown event")
	}

	if err != nil {
		log.Printf("coordinator: %s from user %d failed: %v", evt.Event, userID, err)
		rt.registry.SendTo(userID, events.MustNew(events.ErrorEvent, events.ErrorPayload{
			Op:    evt.Event,
			Error: clientMessage(err),
		}))
	}
}

func (rt *Router) handleSendMessage(ctx context.Context, userID uint, data json.RawMessage) error {
	var p events.SendMessagePayload
	if err := json.Unmarshal(data, &p); err != nil {
		return errors.New("malformed send_message payload")
	}
	_, err := rt.delivery.Send(ctx, delivery.SendInput{
		ConversationID: p.ConversationID,
		SenderID:       userID,
		ReceiverID:     p.ReceiverID,
		Content:        p.Content,
		MediaURL:       p.MediaURL,
		ContentType:    models.ContentType(p.ContentType),
	})
	return err
}

func (rt *Router) handleMessageRead(ctx context.Context, userID uint, data json.RawMessage) error {
	var p events.MessageReadPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return errors.New("malformed message_read payload")
	}
	return rt.delivery.MarkRead(ctx, p.MessageIDs, userID)
}

func (rt *Router) handleTyping(userID uint, name string, data json.RawMessage) error {
	var p events.TypingPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return errors.New("malformed typing payload")
	}
	if p.ConversationID == 0 || p.ReceiverID == 0 {
		return errors.New("typing events need a conversation and receiver")
	}
	if name == events.TypingStart {
		rt.tracker.Start(userID, p.ConversationID, p.ReceiverID)
	} else {
		rt.tracker.Stop(userID, p.ConversationID, p.ReceiverID)
	}
	return nil
}

func (rt *Router) handleReaction(ctx context.Context, userID uint, data json.RawMessage) error {
	var p events.ReactionPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return errors.New("malformed add_reaction payload")
	}
	return rt.delivery.React(ctx, p.MessageID, userID, p.Emoji)
}

func (rt *Router) handleDeleteMessage(ctx context.Context, userID uint, data json.RawMessage) error {
	var p events.DeleteMessagePayload
	if err := json.Unmarshal(data, &p); err != nil {
		return errors.New("malformed delete_message payload")
	}
	return rt.delivery.Delete(ctx, p.MessageID, userID)
}

func (rt *Router) handleGetUserStatus(ctx context.Context, userID uint, data json.RawMessage) error {
	var p events.GetUserStatusPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return errors.New("malformed get_user_status payload")
	}
	status := rt.registry.Status(ctx, p.UserID)
	rt.registry.SendTo(userID, events.MustNew(events.UserStatusResult, status))
	return nil
}

func (rt *Router) handleInitiateCall(ctx context.Context, userID uint, data json.RawMessage) error {
	var p events.InitiateCallPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return errors.New("malformed initiate_call payload")
	}
	// The caller is always the authenticated connection; the payload's
	// callerId is advisory at best. Display info comes from storage so the
	// callee sees the real profile, not whatever the caller claims.
	_, err := rt.relay.Initiate(ctx, userID, p.ReceiverID, p.CallType, rt.participantInfo(ctx, userID, p.CallerInfo))
	return err
}

func (rt *Router) handleAcceptCall(userID uint, data json.RawMessage) error {
	var p events.CallAnswerPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return errors.New("malformed accept_call payload")
	}
	if _, ok := rt.participant(p.CallID, userID); !ok {
		return call.ErrUnknownCall
	}
	return rt.relay.Accept(p.CallID, rt.participantInfo(context.Background(), userID, p.ReceiverInfo))
}

func (rt *Router) handleRejectCall(ctx context.Context, userID uint, data json.RawMessage) error {
	var p events.CallAnswerPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return errors.New("malformed reject_call payload")
	}
	if _, ok := rt.participant(p.CallID, userID); !ok {
		return call.ErrUnknownCall
	}
	return rt.relay.Reject(ctx, p.CallID)
}

func (rt *Router) handleEndCall(ctx context.Context, userID uint, data json.RawMessage) error {
	var p events.EndCallPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return errors.New("malformed end_call payload")
	}
	return rt.relay.End(ctx, p.CallID, userID, "")
}

func (rt *Router) handleSignal(userID uint, name string, data json.RawMessage) error {
	var p events.SignalPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return errors.New("malformed signaling payload")
	}
	targetID := p.ReceiverID
	if targetID == 0 {
		other, ok := rt.participant(p.CallID, userID)
		if !ok {
			return call.ErrUnknownCall
		}
		targetID = other
	}
	switch name {
	case events.WebRTCOffer:
		rt.relay.RelayOffer(p.CallID, userID, targetID, p.Offer)
	case events.WebRTCAnswer:
		rt.relay.RelayAnswer(p.CallID, userID, targetID, p.Answer)
	case events.WebRTCCandidate:
		rt.relay.RelayICECandidate(p.CallID, userID, targetID, p.Candidate)
	}
	return nil
}

// participantInfo resolves the display info forwarded with call events.
// Payload-provided info is a fallback only for when the profile lookup
// fails.
func (rt *Router) participantInfo(ctx context.Context, userID uint, fallback events.ParticipantInfo) events.ParticipantInfo {
	info, err := rt.users.GetBasicInfoByID(ctx, userID)
	if err != nil {
		log.Printf("coordinator: loading profile of user %d failed: %v", userID, err)
		return fallback
	}
	return events.ParticipantInfo{Name: info.Username, AvatarURL: info.AvatarURL}
}

// participant resolves the other side of an active call, confirming the
// requesting user actually belongs to it.
func (rt *Router) participant(callID string, userID uint) (uint, bool) {
	session, ok := rt.relay.Session(callID)
	if !ok {
		return 0, false
	}
	return session.Other(userID)
}

// clientMessage maps internal errors to the string sent to clients.
// Sentinel failures surface as-is; anything else gets a generic text so
// storage details stay internal.
func clientMessage(err error) string {
	switch {
	case errors.Is(err, delivery.ErrInvalidInput),
		errors.Is(err, delivery.ErrAccessDenied),
		errors.Is(err, delivery.ErrNotFound),
		errors.Is(err, call.ErrUnknownCall):
		return err.Error()
	default:
		return "internal error"
	}
}
