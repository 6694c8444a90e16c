package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"chatlink/internal/events"
	"chatlink/internal/models"
	"chatlink/internal/storage"
)

var (
	ErrScheduledNotFound   = errors.New("scheduled message not found")
	ErrScheduledNotOwner   = errors.New("scheduled message belongs to another user")
	ErrScheduledNotPending = errors.New("scheduled message is no longer pending")
	ErrScheduleInPast      = errors.New("scheduled time must be in the future")
)

// Notifier pushes scheduled-message lifecycle events to the owner's live
// connection. Satisfied by *presence.Registry.
type Notifier interface {
	SendTo(userID uint, evt events.Event) bool
}

// ScheduleInput describes a deferred message to create.
type ScheduleInput struct {
	ReceiverID    uint
	Content       string
	MediaURL      string
	ContentType   models.ContentType
	ScheduledTime time.Time

	IsOneTimeMedia      bool
	ViewLimit           int
	MediaExpiryDuration time.Duration
}

// ScheduledMessageService owns the deferred message CRUD surface. Only
// pending items may be edited or cancelled; everything later in the
// lifecycle belongs to the scheduler.
type ScheduledMessageService interface {
	Schedule(ctx context.Context, senderID uint, input ScheduleInput) (*models.ScheduledMessage, error)
	Update(ctx context.Context, id, senderID uint, content string, scheduledTime time.Time) (*models.ScheduledMessage, error)
	Cancel(ctx context.Context, id, senderID uint) error
	ListPending(ctx context.Context, senderID uint, conversationID uint) ([]*models.ScheduledMessage, error)
}

type scheduledMessageService struct {
	scheduled storage.ScheduledMessageRepository
	convos    storage.ConversationRepository
	notifier  Notifier
}

// NewScheduledMessageService creates a ScheduledMessageService. notifier
// may be nil in tests.
func NewScheduledMessageService(scheduled storage.ScheduledMessageRepository, convos storage.ConversationRepository, notifier Notifier) ScheduledMessageService {
	return &scheduledMessageService{scheduled: scheduled, convos: convos, notifier: notifier}
}

func (s *scheduledMessageService) Schedule(ctx context.Context, senderID uint, input ScheduleInput) (*models.ScheduledMessage, error) {
	if input.ReceiverID == 0 {
		return nil, fmt.Errorf("receiver is required")
	}
	if input.Content == "" && input.MediaURL == "" {
		return nil, fmt.Errorf("scheduled message needs text content or a media reference")
	}
	if !input.ScheduledTime.After(time.Now()) {
		return nil, ErrScheduleInPast
	}

	conversation, err := s.convos.FindOrCreateByParticipants(ctx, senderID, input.ReceiverID)
	if err != nil {
		return nil, fmt.Errorf("resolving conversation for %d/%d: %w", senderID, input.ReceiverID, err)
	}

	contentType := input.ContentType
	if contentType == "" {
		contentType = models.TextContent
	}
	item := &models.ScheduledMessage{
		ConversationID:      conversation.ID,
		SenderID:            senderID,
		ReceiverID:          input.ReceiverID,
		Content:             input.Content,
		MediaURL:            input.MediaURL,
		ContentType:         contentType,
		ScheduledTime:       input.ScheduledTime,
		Status:              models.ScheduledPending,
		IsOneTimeMedia:      input.IsOneTimeMedia,
		ViewLimit:           input.ViewLimit,
		MediaExpiryDuration: input.MediaExpiryDuration,
	}
	if err := s.scheduled.Create(ctx, item); err != nil {
		return nil, fmt.Errorf("storing scheduled message: %w", err)
	}
	s.notify(senderID, events.ScheduledMessageCreated, item)
	return item, nil
}

func (s *scheduledMessageService) Update(ctx context.Context, id, senderID uint, content string, scheduledTime time.Time) (*models.ScheduledMessage, error) {
	item, err := s.ownedPending(ctx, id, senderID)
	if err != nil {
		return nil, err
	}
	if content != "" {
		item.Content = content
	}
	if !scheduledTime.IsZero() {
		if !scheduledTime.After(time.Now()) {
			return nil, ErrScheduleInPast
		}
		item.ScheduledTime = scheduledTime
	}
	if err := s.scheduled.Update(ctx, item); err != nil {
		return nil, fmt.Errorf("updating scheduled message %d: %w", id, err)
	}
	s.notify(senderID, events.ScheduledMessageUpdated, item)
	return item, nil
}

func (s *scheduledMessageService) Cancel(ctx context.Context, id, senderID uint) error {
	item, err := s.ownedPending(ctx, id, senderID)
	if err != nil {
		return err
	}
	item.Status = models.ScheduledCancelled
	if err := s.scheduled.Update(ctx, item); err != nil {
		return fmt.Errorf("cancelling scheduled message %d: %w", id, err)
	}
	s.notify(senderID, events.ScheduledMessageCancel, item)
	return nil
}

func (s *scheduledMessageService) ListPending(ctx context.Context, senderID uint, conversationID uint) ([]*models.ScheduledMessage, error) {
	return s.scheduled.ListPendingBySender(ctx, senderID, conversationID)
}

// ownedPending loads the item and confirms it belongs to senderID and is
// still editable.
func (s *scheduledMessageService) ownedPending(ctx context.Context, id, senderID uint) (*models.ScheduledMessage, error) {
	item, err := s.scheduled.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrScheduledNotFound
		}
		return nil, fmt.Errorf("loading scheduled message %d: %w", id, err)
	}
	if item.SenderID != senderID {
		return nil, ErrScheduledNotOwner
	}
	if item.Status != models.ScheduledPending {
		return nil, ErrScheduledNotPending
	}
	return item, nil
}

func (s *scheduledMessageService) notify(userID uint, name string, item *models.ScheduledMessage) {
	if s.notifier == nil {
		return
	}
	s.notifier.SendTo(userID, events.MustNew(name, item))
}
