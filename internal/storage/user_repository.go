package storage

import (
	"context"
	"time"

	"gorm.io/gorm"

	"chatlink/internal/models"
)

// UserRepository defines the interface for user data operations.
type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id uint) (*models.User, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	SearchUsers(ctx context.Context, query string, excludeUserID uint) ([]models.User, error)
	Update(ctx context.Context, user *models.User) error
	// SetPresence records the presence flip made by the registry.
	SetPresence(ctx context.Context, userID uint, isOnline bool, lastSeen time.Time) error
	GetBasicInfoByID(ctx context.Context, id uint) (*models.UserBasicInfo, error)
}

// gormUserRepository implements UserRepository using GORM.
type gormUserRepository struct {
	db *gorm.DB
}

// NewGormUserRepository creates a new GORM-based UserRepository.
func NewGormUserRepository(db *gorm.DB) UserRepository {
	return &gormUserRepository{db: db}
}

func (r *gormUserRepository) Create(ctx context.Context, user *models.User) error {
	return r.db.WithContext(ctx).Create(user).Error
}

func (r *gormUserRepository) GetByID(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).First(&user, id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *gormUserRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).Where("username = ?", username).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *gormUserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// SearchUsers matches usernames by prefix, excluding the requesting user.
func (r *gormUserRepository) SearchUsers(ctx context.Context, query string, excludeUserID uint) ([]models.User, error) {
	var users []models.User
	err := r.db.WithContext(ctx).
		Where("username ILIKE ?", query+"%").
		Where("id <> ?", excludeUserID).
		Limit(20).
		Find(&users).Error
	return users, err
}

func (r *gormUserRepository) Update(ctx context.Context, user *models.User) error {
	if user.ID == 0 {
		return gorm.ErrMissingWhereClause
	}
	return r.db.WithContext(ctx).Save(user).Error
}

// SetPresence updates the online flag and last-seen timestamp in one write.
func (r *gormUserRepository) SetPresence(ctx context.Context, userID uint, isOnline bool, lastSeen time.Time) error {
	return r.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", userID).
		Updates(map[string]any{"is_online": isOnline, "last_seen_at": lastSeen}).Error
}

func (r *gormUserRepository) GetBasicInfoByID(ctx context.Context, id uint) (*models.UserBasicInfo, error) {
	var info models.UserBasicInfo
	err := r.db.WithContext(ctx).Model(&models.User{}).
		Select("id", "username", "avatar_url").
		Where("id = ?", id).
		First(&info).Error
	if err != nil {
		return nil, err
	}
	return &info, nil
}
