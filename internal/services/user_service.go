package services

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"chatlink/internal/models"
	"chatlink/internal/storage"
)

// UserService serves profile reads and updates.
type UserService interface {
	GetUserProfile(ctx context.Context, userID uint) (*models.User, error)
	UpdateUserProfile(ctx context.Context, userID uint, avatarURL string) (*models.User, error)
	SearchUsers(ctx context.Context, query string, currentUserID uint) ([]models.User, error)
}

type userService struct {
	userRepo storage.UserRepository
}

// NewUserService creates a UserService.
func NewUserService(userRepo storage.UserRepository) UserService {
	return &userService{userRepo: userRepo}
}

func (s *userService) GetUserProfile(ctx context.Context, userID uint) (*models.User, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("loading user %d: %w", userID, err)
	}
	user.PasswordHash = ""
	return user, nil
}

func (s *userService) UpdateUserProfile(ctx context.Context, userID uint, avatarURL string) (*models.User, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("loading user %d: %w", userID, err)
	}

	if avatarURL != "" && user.AvatarURL != avatarURL {
		user.AvatarURL = avatarURL
		if err := s.userRepo.Update(ctx, user); err != nil {
			return nil, fmt.Errorf("updating user %d: %w", userID, err)
		}
	}
	user.PasswordHash = ""
	return user, nil
}

func (s *userService) SearchUsers(ctx context.Context, query string, currentUserID uint) ([]models.User, error) {
	if query == "" {
		return nil, nil
	}
	users, err := s.userRepo.SearchUsers(ctx, query, currentUserID)
	if err != nil {
		return nil, fmt.Errorf("searching users: %w", err)
	}
	for i := range users {
		users[i].PasswordHash = ""
	}
	return users, nil
}
