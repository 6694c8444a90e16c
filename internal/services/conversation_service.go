package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"chatlink/internal/models"
	"chatlink/internal/storage"
)

var (
	ErrConversationNotFound = errors.New("conversation not found")
	ErrNotParticipant       = errors.New("user is not a participant of this conversation")
	ErrSelfConversation     = errors.New("cannot start a conversation with yourself")
)

// ConversationService serves conversation queries and settings for the
// REST API.
type ConversationService interface {
	GetOrCreateConversation(ctx context.Context, userID, peerID uint) (*models.Conversation, error)
	GetUserConversations(ctx context.Context, userID uint, limit, offset int) ([]*models.Conversation, error)
	GetConversationDetails(ctx context.Context, conversationID, userID uint) (*models.Conversation, error)
	// SetTemporaryMode toggles disappearing messages for the conversation.
	// Only messages created after the flip are affected.
	SetTemporaryMode(ctx context.Context, conversationID, userID uint, enabled bool, duration time.Duration) (*models.Conversation, error)
	MarkConversationRead(ctx context.Context, conversationID, userID uint) error
}

type conversationService struct {
	convoRepo storage.ConversationRepository
}

// NewConversationService creates a ConversationService.
func NewConversationService(convoRepo storage.ConversationRepository) ConversationService {
	return &conversationService{convoRepo: convoRepo}
}

func (s *conversationService) GetOrCreateConversation(ctx context.Context, userID, peerID uint) (*models.Conversation, error) {
	if userID == peerID {
		return nil, ErrSelfConversation
	}
	conversation, err := s.convoRepo.FindOrCreateByParticipants(ctx, userID, peerID)
	if err != nil {
		return nil, fmt.Errorf("resolving conversation for %d/%d: %w", userID, peerID, err)
	}
	return conversation, nil
}

func (s *conversationService) GetUserConversations(ctx context.Context, userID uint, limit, offset int) ([]*models.Conversation, error) {
	return s.convoRepo.GetUserConversations(ctx, userID, limit, offset)
}

func (s *conversationService) GetConversationDetails(ctx context.Context, conversationID, userID uint) (*models.Conversation, error) {
	conversation, err := s.authorize(ctx, conversationID, userID)
	if err != nil {
		return nil, err
	}
	return conversation, nil
}

func (s *conversationService) SetTemporaryMode(ctx context.Context, conversationID, userID uint, enabled bool, duration time.Duration) (*models.Conversation, error) {
	conversation, err := s.authorize(ctx, conversationID, userID)
	if err != nil {
		return nil, err
	}
	if enabled && duration <= 0 {
		return nil, fmt.Errorf("temporary mode needs a positive duration")
	}

	conversation.IsTemporaryMode = enabled
	if enabled {
		conversation.TemporaryDuration = duration
	} else {
		conversation.TemporaryDuration = 0
	}
	if err := s.convoRepo.Update(ctx, conversation); err != nil {
		return nil, fmt.Errorf("updating conversation %d: %w", conversationID, err)
	}
	return conversation, nil
}

func (s *conversationService) MarkConversationRead(ctx context.Context, conversationID, userID uint) error {
	if _, err := s.authorize(ctx, conversationID, userID); err != nil {
		return err
	}
	return s.convoRepo.ResetUnread(ctx, conversationID)
}

// authorize loads the conversation and confirms membership.
func (s *conversationService) authorize(ctx context.Context, conversationID, userID uint) (*models.Conversation, error) {
	conversation, err := s.convoRepo.GetByID(ctx, conversationID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrConversationNotFound
		}
		return nil, fmt.Errorf("loading conversation %d: %w", conversationID, err)
	}
	ok, err := s.convoRepo.IsParticipant(ctx, conversationID, userID)
	if err != nil {
		return nil, fmt.Errorf("checking membership for conversation %d: %w", conversationID, err)
	}
	if !ok {
		return nil, ErrNotParticipant
	}
	return conversation, nil
}
