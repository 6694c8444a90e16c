package storage

import (
	"context"
	"time"

	"gorm.io/gorm"

	"chatlink/internal/models"
)

// StatusRepository defines the interface for status (story) data
// operations.
type StatusRepository interface {
	Create(ctx context.Context, status *models.Status) error
	GetByID(ctx context.Context, id uint) (*models.Status, error)
	// FindActive returns statuses that have not yet expired, newest first.
	FindActive(ctx context.Context, now time.Time) ([]*models.Status, error)
	Update(ctx context.Context, status *models.Status) error
	Delete(ctx context.Context, id uint) error
	// DeleteExpired purges statuses past their lifetime and reports how
	// many rows were removed.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// gormStatusRepository implements StatusRepository using GORM.
type gormStatusRepository struct {
	db *gorm.DB
}

// NewGormStatusRepository creates a new GORM-based StatusRepository.
func NewGormStatusRepository(db *gorm.DB) StatusRepository {
	return &gormStatusRepository{db: db}
}

func (r *gormStatusRepository) Create(ctx context.Context, status *models.Status) error {
	return r.db.WithContext(ctx).Create(status).Error
}

func (r *gormStatusRepository) GetByID(ctx context.Context, id uint) (*models.Status, error) {
	var status models.Status
	if err := r.db.WithContext(ctx).Preload("User").First(&status, id).Error; err != nil {
		return nil, err
	}
	return &status, nil
}

func (r *gormStatusRepository) FindActive(ctx context.Context, now time.Time) ([]*models.Status, error) {
	var statuses []*models.Status
	err := r.db.WithContext(ctx).
		Preload("User").
		Where("expires_at > ?", now).
		Order("created_at DESC").
		Find(&statuses).Error
	return statuses, err
}

func (r *gormStatusRepository) Update(ctx context.Context, status *models.Status) error {
	return r.db.WithContext(ctx).Save(status).Error
}

func (r *gormStatusRepository) Delete(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Delete(&models.Status{}, id).Error
}

func (r *gormStatusRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("expires_at <= ?", now).
		Delete(&models.Status{})
	return result.RowsAffected, result.Error
}
