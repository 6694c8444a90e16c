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
	ErrStatusNotFound        = errors.New("status not found")
	ErrStatusNotOwner        = errors.New("status belongs to another user")
	ErrStatusContentRequired = errors.New("status content is required")
	ErrStatusContentTooLong  = errors.New("status text exceeds the length limit")
	ErrStatusBadContentType  = errors.New("unsupported status content type")
)

// maxStatusTextLength bounds the text of a text-only status.
const maxStatusTextLength = 500

// Broadcaster fans events out to every connected client, in addition to the
// single-user push of Notifier. Satisfied by *presence.Registry.
type Broadcaster interface {
	Notifier
	Broadcast(evt events.Event, excludeUserID uint)
}

// StatusInput describes a status to post.
type StatusInput struct {
	Content     string
	MediaURL    string
	ContentType models.ContentType
}

// StatusService owns the story surface: every user can post a status that
// stays visible to everyone until it expires, and owners see who viewed it.
type StatusService interface {
	Create(ctx context.Context, userID uint, input StatusInput) (*models.Status, error)
	ListActive(ctx context.Context) ([]*models.Status, error)
	// View records viewerID as having seen the status and notifies the
	// owner. A repeat view changes nothing.
	View(ctx context.Context, statusID, viewerID uint) (*models.Status, error)
	Delete(ctx context.Context, statusID, userID uint) error
}

type statusService struct {
	statuses    storage.StatusRepository
	broadcaster Broadcaster
	ttl         time.Duration
}

// NewStatusService creates a StatusService. broadcaster may be nil in
// tests.
func NewStatusService(statuses storage.StatusRepository, broadcaster Broadcaster, ttl time.Duration) StatusService {
	return &statusService{statuses: statuses, broadcaster: broadcaster, ttl: ttl}
}

func (s *statusService) Create(ctx context.Context, userID uint, input StatusInput) (*models.Status, error) {
	contentType := input.ContentType
	if input.MediaURL != "" {
		if contentType != models.ImageContent && contentType != models.VideoContent {
			return nil, ErrStatusBadContentType
		}
	} else {
		if input.Content == "" {
			return nil, ErrStatusContentRequired
		}
		if len(input.Content) > maxStatusTextLength {
			return nil, ErrStatusContentTooLong
		}
		contentType = models.TextContent
	}

	status := &models.Status{
		UserID:      userID,
		Content:     input.Content,
		MediaURL:    input.MediaURL,
		ContentType: contentType,
		ExpiresAt:   time.Now().Add(s.ttl),
	}
	if err := s.statuses.Create(ctx, status); err != nil {
		return nil, fmt.Errorf("storing status: %w", err)
	}
	if s.broadcaster != nil {
		s.broadcaster.Broadcast(events.MustNew(events.NewStatus, status), userID)
	}
	return status, nil
}

func (s *statusService) ListActive(ctx context.Context) ([]*models.Status, error) {
	return s.statuses.FindActive(ctx, time.Now())
}

func (s *statusService) View(ctx context.Context, statusID, viewerID uint) (*models.Status, error) {
	status, err := s.load(ctx, statusID)
	if err != nil {
		return nil, err
	}
	added, err := status.AddViewer(viewerID)
	if err != nil {
		return nil, fmt.Errorf("decoding viewers of status %d: %w", statusID, err)
	}
	if !added {
		return status, nil
	}
	if err := s.statuses.Update(ctx, status); err != nil {
		return nil, fmt.Errorf("recording view of status %d: %w", statusID, err)
	}
	if s.broadcaster != nil {
		viewers, _ := status.Viewers()
		s.broadcaster.SendTo(status.UserID, events.MustNew(events.StatusViewed, events.StatusViewedPayload{
			StatusID:  status.ID,
			ViewerIDs: viewers,
		}))
	}
	return status, nil
}

func (s *statusService) Delete(ctx context.Context, statusID, userID uint) error {
	status, err := s.load(ctx, statusID)
	if err != nil {
		return err
	}
	if status.UserID != userID {
		return ErrStatusNotOwner
	}
	if err := s.statuses.Delete(ctx, statusID); err != nil {
		return fmt.Errorf("deleting status %d: %w", statusID, err)
	}
	if s.broadcaster != nil {
		// Everyone sees the removal, the owner included.
		s.broadcaster.Broadcast(events.MustNew(events.StatusDeleted, events.StatusDeletedPayload{
			StatusID: statusID,
		}), 0)
	}
	return nil
}

// load fetches the status and treats an expired one the same as a missing
// one; the sweeper may simply not have caught up yet.
func (s *statusService) load(ctx context.Context, statusID uint) (*models.Status, error) {
	status, err := s.statuses.GetByID(ctx, statusID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrStatusNotFound
		}
		return nil, fmt.Errorf("loading status %d: %w", statusID, err)
	}
	if status.Expired(time.Now()) {
		return nil, ErrStatusNotFound
	}
	return status, nil
}
