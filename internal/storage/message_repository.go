package storage

import (
	"context"
	"time"

	"gorm.io/gorm"

	"chatlink/internal/models"
)

// MessageRepository defines the interface for message data operations.
type MessageRepository interface {
	Create(ctx context.Context, message *models.Message) error
	GetByID(ctx context.Context, id uint) (*models.Message, error)
	GetByIDs(ctx context.Context, ids []uint) ([]*models.Message, error)
	GetByConversationID(ctx context.Context, conversationID uint, limit, offset int) ([]*models.Message, error)
	// UpdateStatus moves a single message forward through the delivery
	// lifecycle, stamping the matching timestamp column.
	UpdateStatus(ctx context.Context, messageID uint, status models.MessageStatus, at time.Time) error
	UpdateReactions(ctx context.Context, message *models.Message) error
	Delete(ctx context.Context, id uint) error
	DeleteByIDs(ctx context.Context, ids []uint) error
	// FindTimeExpired returns temporary messages whose expiry has passed.
	FindTimeExpired(ctx context.Context, now time.Time) ([]*models.Message, error)
	// FindMediaExpired returns one-time media whose view budget is spent or
	// whose media expiry has passed.
	FindMediaExpired(ctx context.Context, now time.Time) ([]*models.Message, error)
	DecrementViewsLeft(ctx context.Context, messageID uint) error
}

// gormMessageRepository implements MessageRepository using GORM.
type gormMessageRepository struct {
	db *gorm.DB
}

// NewGormMessageRepository creates a new GORM-based MessageRepository.
func NewGormMessageRepository(db *gorm.DB) MessageRepository {
	return &gormMessageRepository{db: db}
}

func (r *gormMessageRepository) Create(ctx context.Context, message *models.Message) error {
	return r.db.WithContext(ctx).Create(message).Error
}

func (r *gormMessageRepository) GetByID(ctx context.Context, id uint) (*models.Message, error) {
	var message models.Message
	err := r.db.WithContext(ctx).Preload("Sender").Preload("Receiver").First(&message, id).Error
	if err != nil {
		return nil, err
	}
	return &message, nil
}

func (r *gormMessageRepository) GetByIDs(ctx context.Context, ids []uint) ([]*models.Message, error) {
	var messages []*models.Message
	err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&messages).Error
	return messages, err
}

func (r *gormMessageRepository) GetByConversationID(ctx context.Context, conversationID uint, limit, offset int) ([]*models.Message, error) {
	var messages []*models.Message
	query := r.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("created_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}
	err := query.Preload("Sender").Find(&messages).Error
	return messages, err
}

func (r *gormMessageRepository) UpdateStatus(ctx context.Context, messageID uint, status models.MessageStatus, at time.Time) error {
	updates := map[string]any{"status": status}
	switch status {
	case models.StatusDelivered:
		updates["delivered_at"] = at
	case models.StatusRead:
		updates["read_at"] = at
	}
	return r.db.WithContext(ctx).Model(&models.Message{}).
		Where("id = ?", messageID).
		Updates(updates).Error
}

func (r *gormMessageRepository) UpdateReactions(ctx context.Context, message *models.Message) error {
	return r.db.WithContext(ctx).Model(&models.Message{}).
		Where("id = ?", message.ID).
		Update("reactions_raw", message.ReactionsRaw).Error
}

func (r *gormMessageRepository) Delete(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Unscoped().Delete(&models.Message{}, id).Error
}

func (r *gormMessageRepository) DeleteByIDs(ctx context.Context, ids []uint) error {
	if len(ids) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Unscoped().Where("id IN ?", ids).Delete(&models.Message{}).Error
}

func (r *gormMessageRepository) FindTimeExpired(ctx context.Context, now time.Time) ([]*models.Message, error) {
	var messages []*models.Message
	err := r.db.WithContext(ctx).
		Where("is_temporary = ? AND expires_at <= ?", true, now).
		Find(&messages).Error
	return messages, err
}

func (r *gormMessageRepository) FindMediaExpired(ctx context.Context, now time.Time) ([]*models.Message, error) {
	var messages []*models.Message
	err := r.db.WithContext(ctx).
		Where("is_one_time_media = ?", true).
		Where("views_left <= 0 OR (media_expires_at IS NOT NULL AND media_expires_at <= ?)", now).
		Find(&messages).Error
	return messages, err
}

func (r *gormMessageRepository) DecrementViewsLeft(ctx context.Context, messageID uint) error {
	return r.db.WithContext(ctx).Model(&models.Message{}).
		Where("id = ? AND views_left > 0", messageID).
		Update("views_left", gorm.Expr("views_left - 1")).Error
}
