package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"chatlink/internal/models"
)

// ConversationRepository defines the interface for conversation data
// operations.
type ConversationRepository interface {
	Create(ctx context.Context, conversation *models.Conversation) error
	GetByID(ctx context.Context, id uint) (*models.Conversation, error)
	GetUserConversations(ctx context.Context, userID uint, limit, offset int) ([]*models.Conversation, error)
	Update(ctx context.Context, conversation *models.Conversation) error
	// FindByParticipants locates the one-to-one conversation between two
	// users, if any.
	FindByParticipants(ctx context.Context, userID1, userID2 uint) (*models.Conversation, error)
	// FindOrCreateByParticipants locates or creates the one-to-one
	// conversation between two users.
	FindOrCreateByParticipants(ctx context.Context, userID1, userID2 uint) (*models.Conversation, error)
	IsParticipant(ctx context.Context, conversationID, userID uint) (bool, error)
	// BumpLastMessage advances the last-message pointer and unread counter
	// after a successful delivery.
	BumpLastMessage(ctx context.Context, conversationID, messageID uint) error
	ResetUnread(ctx context.Context, conversationID uint) error
}

// gormConversationRepository implements ConversationRepository using GORM.
type gormConversationRepository struct {
	db *gorm.DB
}

// NewGormConversationRepository creates a new GORM-based
// ConversationRepository.
func NewGormConversationRepository(db *gorm.DB) ConversationRepository {
	return &gormConversationRepository{db: db}
}

func (r *gormConversationRepository) Create(ctx context.Context, conversation *models.Conversation) error {
	return r.db.WithContext(ctx).Create(conversation).Error
}

func (r *gormConversationRepository) GetByID(ctx context.Context, id uint) (*models.Conversation, error) {
	var conversation models.Conversation
	if err := r.db.WithContext(ctx).First(&conversation, id).Error; err != nil {
		return nil, err
	}
	return &conversation, nil
}

func (r *gormConversationRepository) GetUserConversations(ctx context.Context, userID uint, limit, offset int) ([]*models.Conversation, error) {
	var conversations []*models.Conversation
	query := r.db.WithContext(ctx).
		Joins("JOIN conversation_participants cp ON cp.conversation_id = conversations.id").
		Where("cp.user_id = ?", userID).
		Order("conversations.updated_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}
	err := query.Preload("Users").Find(&conversations).Error
	return conversations, err
}

func (r *gormConversationRepository) Update(ctx context.Context, conversation *models.Conversation) error {
	return r.db.WithContext(ctx).Save(conversation).Error
}

// FindByParticipants locates the one-to-one conversation both users belong
// to. Returns gorm.ErrRecordNotFound when none exists.
func (r *gormConversationRepository) FindByParticipants(ctx context.Context, userID1, userID2 uint) (*models.Conversation, error) {
	var conversation models.Conversation
	err := r.db.WithContext(ctx).
		Joins("JOIN conversation_participants p1 ON p1.conversation_id = conversations.id AND p1.user_id = ?", userID1).
		Joins("JOIN conversation_participants p2 ON p2.conversation_id = conversations.id AND p2.user_id = ?", userID2).
		First(&conversation).Error
	if err != nil {
		return nil, err
	}
	return &conversation, nil
}

func (r *gormConversationRepository) FindOrCreateByParticipants(ctx context.Context, userID1, userID2 uint) (*models.Conversation, error) {
	conversation, err := r.FindByParticipants(ctx, userID1, userID2)
	if err == nil {
		return conversation, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	now := time.Now()
	created := &models.Conversation{}
	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(created).Error; err != nil {
			return err
		}
		for _, uid := range []uint{userID1, userID2} {
			participant := &models.ConversationParticipant{
				ConversationID: created.ID,
				UserID:         uid,
				JoinedAt:       now,
			}
			if err := tx.Create(participant).Error; err != nil {
				return fmt.Errorf("adding participant %d: %w", uid, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (r *gormConversationRepository) IsParticipant(ctx context.Context, conversationID, userID uint) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.ConversationParticipant{}).
		Where("conversation_id = ? AND user_id = ?", conversationID, userID).
		Count(&count).Error
	return count > 0, err
}

func (r *gormConversationRepository) BumpLastMessage(ctx context.Context, conversationID, messageID uint) error {
	return r.db.WithContext(ctx).Model(&models.Conversation{}).
		Where("id = ?", conversationID).
		Updates(map[string]any{
			"last_message_id": messageID,
			"unread_count":    gorm.Expr("unread_count + 1"),
		}).Error
}

func (r *gormConversationRepository) ResetUnread(ctx context.Context, conversationID uint) error {
	return r.db.WithContext(ctx).Model(&models.Conversation{}).
		Where("id = ?", conversationID).
		Update("unread_count", 0).Error
}
