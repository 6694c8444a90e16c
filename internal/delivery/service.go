// Package delivery implements the message lifecycle state machine:
// queued -> delivered -> read, plus reaction and deletion mutations. Both
// live sends and scheduler-originated sends pass through here, so the two
// paths share one consistency contract.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"gorm.io/gorm"

	"chatlink/internal/events"
	"chatlink/internal/models"
	"chatlink/internal/storage"
)

// PeerNotifier resolves users to reachable connections. Satisfied by
// *presence.Registry.
type PeerNotifier interface {
	SendTo(userID uint, evt events.Event) bool
	IsOnline(userID uint) bool
}

// StreamPublisher mirrors durable transitions onto the notification event
// stream. Publishing is fire-and-forget; failures are logged, never
// surfaced to clients.
type StreamPublisher interface {
	Publish(ctx context.Context, name string, key string, payload any) error
}

// SendInput describes a message to materialize. ConversationID may be zero
// for live sends, in which case the one-to-one conversation is found or
// created from the participant pair.
type SendInput struct {
	ConversationID uint
	SenderID       uint
	ReceiverID     uint
	Content        string
	MediaURL       string
	ContentType    models.ContentType

	// One-time media configuration, normally only set on the scheduled
	// delivery path.
	IsOneTimeMedia bool
	ViewLimit      int
	MediaExpiresAt *time.Time
}

// Service is the delivery state machine. It is stateless relative to the
// core: all durable state lives in storage, reachability in the registry.
type Service struct {
	messages  storage.MessageRepository
	convos    storage.ConversationRepository
	peers     PeerNotifier
	publisher StreamPublisher
}

// NewService creates a delivery service. publisher may be nil.
func NewService(messages storage.MessageRepository, convos storage.ConversationRepository, peers PeerNotifier, publisher StreamPublisher) *Service {
	return &Service{messages: messages, convos: convos, peers: peers, publisher: publisher}
}

// Send validates, persists and best-effort delivers a message. The stored
// message starts queued; if the receiver is reachable and the push is
// handed off, status transitions to delivered immediately and the sender is
// notified of the hop.
func (s *Service) Send(ctx context.Context, input SendInput) (*models.Message, error) {
	hasContent := strings.TrimSpace(input.Content) != ""
	if !hasContent && input.MediaURL == "" {
		return nil, fmt.Errorf("%w: message needs text content or a media reference", ErrInvalidInput)
	}
	if input.SenderID == 0 || input.ReceiverID == 0 {
		return nil, fmt.Errorf("%w: sender and receiver are required", ErrInvalidInput)
	}

	contentType := input.ContentType
	if contentType == "" {
		contentType = models.TextContent
	}

	conversation, err := s.resolveConversation(ctx, input)
	if err != nil {
		return nil, err
	}

	message := &models.Message{
		ConversationID: conversation.ID,
		SenderID:       input.SenderID,
		ReceiverID:     input.ReceiverID,
		Content:        input.Content,
		MediaURL:       input.MediaURL,
		ContentType:    contentType,
		Status:         models.StatusQueued,
	}

	// Conversation-level temporary mode stamps an expiry on every message
	// created in it, live or deferred.
	if conversation.IsTemporaryMode && conversation.TemporaryDuration > 0 {
		expiresAt := time.Now().Add(conversation.TemporaryDuration)
		message.IsTemporary = true
		message.ExpiresAt = &expiresAt
	}
	if input.IsOneTimeMedia {
		message.IsOneTimeMedia = true
		message.ViewLimit = input.ViewLimit
		message.ViewsLeft = input.ViewLimit
		message.MediaExpiresAt = input.MediaExpiresAt
	}

	if err := s.messages.Create(ctx, message); err != nil {
		return nil, fmt.Errorf("storing message: %w", err)
	}
	if err := s.convos.BumpLastMessage(ctx, conversation.ID, message.ID); err != nil {
		log.Printf("delivery: bumping last message for conversation %d failed: %v", conversation.ID, err)
	}

	// Best-effort push. A resolve miss is the normal offline case: the
	// message stays queued and is never retried by this path.
	if s.peers.SendTo(input.ReceiverID, events.MustNew(events.ReceiveMessage, message)) {
		now := time.Now()
		if err := s.messages.UpdateStatus(ctx, message.ID, models.StatusDelivered, now); err != nil {
			log.Printf("delivery: persisting delivered status for message %d failed: %v", message.ID, err)
		} else {
			message.Status = models.StatusDelivered
			message.DeliveredAt = &now
			s.peers.SendTo(input.SenderID, events.MustNew(events.MessageStatusUpdated, events.MessageStatusPayload{
				MessageID: message.ID,
				Status:    string(models.StatusDelivered),
			}))
		}
	}

	s.publish(ctx, "message_sent", message.IDString(), message)
	return message, nil
}

// MarkRead transitions the given messages to read on behalf of readerID and
// notifies each original sender. Messages not addressed to the reader are an
// authorization failure, never silently skipped.
func (s *Service) MarkRead(ctx context.Context, messageIDs []uint, readerID uint) error {
	if len(messageIDs) == 0 {
		return fmt.Errorf("%w: no message ids", ErrInvalidInput)
	}
	messages, err := s.messages.GetByIDs(ctx, messageIDs)
	if err != nil {
		return fmt.Errorf("loading messages: %w", err)
	}
	for _, m := range messages {
		if m.ReceiverID != readerID {
			return fmt.Errorf("%w: message %d is not addressed to user %d", ErrAccessDenied, m.ID, readerID)
		}
	}

	now := time.Now()
	for _, m := range messages {
		// Monotonic: read from queued or delivered, never re-applied.
		if !m.Status.CanTransition(models.StatusRead) {
			continue
		}
		if err := s.messages.UpdateStatus(ctx, m.ID, models.StatusRead, now); err != nil {
			return fmt.Errorf("marking message %d read: %w", m.ID, err)
		}
		s.peers.SendTo(m.SenderID, events.MustNew(events.MessageStatusUpdated, events.MessageStatusPayload{
			MessageID: m.ID,
			Status:    string(models.StatusRead),
		}))
		s.publish(ctx, "message_read", m.IDString(), events.MessageStatusPayload{
			MessageID: m.ID,
			Status:    string(models.StatusRead),
		})
	}
	return nil
}

// React toggles userID's reaction on a message: same emoji removes it, a
// different emoji replaces it, none adds it. At most one reaction per user
// per message. The full updated set is broadcast to both participants.
func (s *Service) React(ctx context.Context, messageID, userID uint, emoji string) error {
	if emoji == "" {
		return fmt.Errorf("%w: emoji is required", ErrInvalidInput)
	}
	message, err := s.getMessage(ctx, messageID)
	if err != nil {
		return err
	}
	if message.SenderID != userID && message.ReceiverID != userID {
		return fmt.Errorf("%w: user %d is not a participant of message %d", ErrAccessDenied, userID, messageID)
	}

	reactions, err := message.Reactions()
	if err != nil {
		return fmt.Errorf("decoding reactions for message %d: %w", messageID, err)
	}

	updated := make([]models.Reaction, 0, len(reactions)+1)
	replaced := false
	for _, reaction := range reactions {
		if reaction.UserID != userID {
			updated = append(updated, reaction)
			continue
		}
		if reaction.Emoji == emoji {
			// Same emoji again: un-react.
			replaced = true
			continue
		}
		updated = append(updated, models.Reaction{UserID: userID, Emoji: emoji})
		replaced = true
	}
	if !replaced {
		updated = append(updated, models.Reaction{UserID: userID, Emoji: emoji})
	}

	if err := message.SetReactions(updated); err != nil {
		return fmt.Errorf("encoding reactions: %w", err)
	}
	if err := s.messages.UpdateReactions(ctx, message); err != nil {
		return fmt.Errorf("storing reactions for message %d: %w", messageID, err)
	}

	payload := events.ReactionUpdatedPayload{MessageID: messageID, Reactions: message.ReactionsRaw}
	evt := events.MustNew(events.ReactionUpdated, payload)
	s.peers.SendTo(message.SenderID, evt)
	s.peers.SendTo(message.ReceiverID, evt)
	return nil
}

// RecordMediaView burns one view of a one-time media message on behalf of
// its receiver. The sweeper removes the message once the view budget is
// spent; this call only accounts for the view.
func (s *Service) RecordMediaView(ctx context.Context, messageID, viewerID uint) (*models.Message, error) {
	message, err := s.getMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if message.ReceiverID != viewerID {
		return nil, fmt.Errorf("%w: message %d is not addressed to user %d", ErrAccessDenied, messageID, viewerID)
	}
	if !message.IsOneTimeMedia {
		return nil, fmt.Errorf("%w: message %d is not one-time media", ErrInvalidInput, messageID)
	}
	if message.ViewsLeft <= 0 {
		return nil, fmt.Errorf("%w: message %d has no views left", ErrNotFound, messageID)
	}
	if err := s.messages.DecrementViewsLeft(ctx, messageID); err != nil {
		return nil, fmt.Errorf("recording view of message %d: %w", messageID, err)
	}
	message.ViewsLeft--
	return message, nil
}

// Delete removes a message on behalf of its sender and notifies the other
// participant.
func (s *Service) Delete(ctx context.Context, messageID, requesterID uint) error {
	message, err := s.getMessage(ctx, messageID)
	if err != nil {
		return err
	}
	if message.SenderID != requesterID {
		return fmt.Errorf("%w: only the sender may delete message %d", ErrAccessDenied, messageID)
	}
	if err := s.messages.Delete(ctx, messageID); err != nil {
		return fmt.Errorf("deleting message %d: %w", messageID, err)
	}
	s.peers.SendTo(message.ReceiverID, events.MustNew(events.MessageDeleted, events.MessageDeletedPayload{
		MessageID: messageID,
	}))
	s.publish(ctx, "message_deleted", message.IDString(), events.MessageDeletedPayload{MessageID: messageID})
	return nil
}

func (s *Service) resolveConversation(ctx context.Context, input SendInput) (*models.Conversation, error) {
	if input.ConversationID != 0 {
		conversation, err := s.convos.GetByID(ctx, input.ConversationID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, fmt.Errorf("%w: conversation %d", ErrNotFound, input.ConversationID)
			}
			return nil, fmt.Errorf("loading conversation %d: %w", input.ConversationID, err)
		}
		return conversation, nil
	}
	conversation, err := s.convos.FindOrCreateByParticipants(ctx, input.SenderID, input.ReceiverID)
	if err != nil {
		return nil, fmt.Errorf("resolving conversation for %d/%d: %w", input.SenderID, input.ReceiverID, err)
	}
	return conversation, nil
}

func (s *Service) getMessage(ctx context.Context, messageID uint) (*models.Message, error) {
	message, err := s.messages.GetByID(ctx, messageID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: message %d", ErrNotFound, messageID)
		}
		return nil, fmt.Errorf("loading message %d: %w", messageID, err)
	}
	return message, nil
}

func (s *Service) publish(ctx context.Context, name, key string, payload any) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, name, key, payload); err != nil {
		log.Printf("delivery: publishing %s event failed: %v", name, err)
	}
}
