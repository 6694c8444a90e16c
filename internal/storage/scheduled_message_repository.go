package storage

import (
	"context"
	"time"

	"gorm.io/gorm"

	"chatlink/internal/models"
)

// ScheduledMessageRepository defines the interface for deferred message
// data operations.
type ScheduledMessageRepository interface {
	Create(ctx context.Context, msg *models.ScheduledMessage) error
	GetByID(ctx context.Context, id uint) (*models.ScheduledMessage, error)
	// FindDuePending returns pending items whose scheduled time has passed.
	// Terminal statuses are excluded by the filter, so failed items are
	// never reconsidered.
	FindDuePending(ctx context.Context, now time.Time) ([]*models.ScheduledMessage, error)
	ListPendingBySender(ctx context.Context, senderID uint, conversationID uint) ([]*models.ScheduledMessage, error)
	Update(ctx context.Context, msg *models.ScheduledMessage) error
	MarkSent(ctx context.Context, id uint, sentAt time.Time) error
	MarkFailed(ctx context.Context, id uint, reason string) error
	// Reschedule postpones a pending item after a transient failure.
	Reschedule(ctx context.Context, id uint, retryCount int, nextAttempt time.Time) error
}

// gormScheduledMessageRepository implements ScheduledMessageRepository
// using GORM.
type gormScheduledMessageRepository struct {
	db *gorm.DB
}

// NewGormScheduledMessageRepository creates a new GORM-based
// ScheduledMessageRepository.
func NewGormScheduledMessageRepository(db *gorm.DB) ScheduledMessageRepository {
	return &gormScheduledMessageRepository{db: db}
}

func (r *gormScheduledMessageRepository) Create(ctx context.Context, msg *models.ScheduledMessage) error {
	return r.db.WithContext(ctx).Create(msg).Error
}

func (r *gormScheduledMessageRepository) GetByID(ctx context.Context, id uint) (*models.ScheduledMessage, error) {
	var msg models.ScheduledMessage
	if err := r.db.WithContext(ctx).First(&msg, id).Error; err != nil {
		return nil, err
	}
	return &msg, nil
}

func (r *gormScheduledMessageRepository) FindDuePending(ctx context.Context, now time.Time) ([]*models.ScheduledMessage, error) {
	var due []*models.ScheduledMessage
	err := r.db.WithContext(ctx).
		Where("status = ? AND scheduled_time <= ?", models.ScheduledPending, now).
		Order("scheduled_time ASC").
		Find(&due).Error
	return due, err
}

func (r *gormScheduledMessageRepository) ListPendingBySender(ctx context.Context, senderID uint, conversationID uint) ([]*models.ScheduledMessage, error) {
	query := r.db.WithContext(ctx).
		Where("sender_id = ? AND status = ?", senderID, models.ScheduledPending)
	if conversationID != 0 {
		query = query.Where("conversation_id = ?", conversationID)
	}
	var msgs []*models.ScheduledMessage
	err := query.Order("scheduled_time ASC").Find(&msgs).Error
	return msgs, err
}

func (r *gormScheduledMessageRepository) Update(ctx context.Context, msg *models.ScheduledMessage) error {
	return r.db.WithContext(ctx).Save(msg).Error
}

func (r *gormScheduledMessageRepository) MarkSent(ctx context.Context, id uint, sentAt time.Time) error {
	return r.db.WithContext(ctx).Model(&models.ScheduledMessage{}).
		Where("id = ?", id).
		Updates(map[string]any{"status": models.ScheduledSent, "sent_at": sentAt}).Error
}

func (r *gormScheduledMessageRepository) MarkFailed(ctx context.Context, id uint, reason string) error {
	return r.db.WithContext(ctx).Model(&models.ScheduledMessage{}).
		Where("id = ?", id).
		Updates(map[string]any{"status": models.ScheduledFailed, "failure_reason": reason}).Error
}

func (r *gormScheduledMessageRepository) Reschedule(ctx context.Context, id uint, retryCount int, nextAttempt time.Time) error {
	return r.db.WithContext(ctx).Model(&models.ScheduledMessage{}).
		Where("id = ?", id).
		Updates(map[string]any{"retry_count": retryCount, "scheduled_time": nextAttempt}).Error
}
