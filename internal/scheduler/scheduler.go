// Package scheduler runs the two background loops of the coordinator: the
// deferred-message delivery poll and the expired-content sweep. Both are
// periodic polls with explicit intervals and hard per-item error isolation.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"gorm.io/gorm"

	"chatlink/internal/config"
	"chatlink/internal/delivery"
	"chatlink/internal/events"
	"chatlink/internal/models"
	"chatlink/internal/storage"
)

// Permanent precondition failure reasons recorded on the scheduled row.
const (
	reasonConversationDeleted = "Conversation deleted"
	reasonSenderDeleted       = "Sender account deleted"
	reasonReceiverDeleted     = "Receiver account deleted"
	reasonSenderLeft          = "Sender left conversation"
)

// Deliverer materializes a real message. Satisfied by *delivery.Service so
// deferred sends share the live path's consistency contract.
type Deliverer interface {
	Send(ctx context.Context, input delivery.SendInput) (*models.Message, error)
}

// PeerNotifier pushes outcome events to the sender, best-effort.
type PeerNotifier interface {
	SendTo(userID uint, evt events.Event) bool
}

// Scheduler polls for due deferred messages and delivers each in isolation:
// one item's failure never aborts the batch.
type Scheduler struct {
	scheduled storage.ScheduledMessageRepository
	convos    storage.ConversationRepository
	users     storage.UserRepository
	deliverer Deliverer
	peers     PeerNotifier
	cfg       config.SchedulerConfig
}

// NewScheduler creates the deferred-delivery scheduler.
func NewScheduler(
	scheduled storage.ScheduledMessageRepository,
	convos storage.ConversationRepository,
	users storage.UserRepository,
	deliverer Deliverer,
	peers PeerNotifier,
	cfg config.SchedulerConfig,
) *Scheduler {
	return &Scheduler{
		scheduled: scheduled,
		convos:    convos,
		users:     users,
		deliverer: deliverer,
		peers:     peers,
		cfg:       cfg,
	}
}

// Run polls at the configured interval until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()
	log.Printf("scheduler: polling every %s (max retries %d)", s.cfg.PollInterval, s.cfg.MaxRetries)
	for {
		select {
		case <-ctx.Done():
			log.Println("scheduler: stopped")
			return
		case <-ticker.C:
			s.ProcessDue(ctx)
		}
	}
}

// ProcessDue handles one poll tick: every pending item whose scheduled time
// has passed. Exported so a tick can be driven directly.
func (s *Scheduler) ProcessDue(ctx context.Context) {
	due, err := s.scheduled.FindDuePending(ctx, time.Now())
	if err != nil {
		log.Printf("scheduler: querying due messages failed: %v", err)
		return
	}
	for _, item := range due {
		if err := s.deliverItem(ctx, item); err != nil {
			log.Printf("scheduler: scheduled message %d: %v", item.ID, err)
		}
	}
}

// deliverItem runs the precondition checks, materializes the message and
// records the outcome for one due item.
func (s *Scheduler) deliverItem(ctx context.Context, item *models.ScheduledMessage) error {
	// Precondition failures are permanent: the row is failed with a
	// descriptive reason and never retried.
	if reason, permanent, err := s.checkPreconditions(ctx, item); err != nil {
		return s.handleTransient(ctx, item, err)
	} else if permanent {
		return s.failPermanently(ctx, item, reason)
	}

	input := delivery.SendInput{
		ConversationID: item.ConversationID,
		SenderID:       item.SenderID,
		ReceiverID:     item.ReceiverID,
		Content:        item.Content,
		MediaURL:       item.MediaURL,
		ContentType:    item.ContentType,
	}
	if item.IsOneTimeMedia && (item.ContentType == models.ImageContent || item.ContentType == models.VideoContent) {
		input.IsOneTimeMedia = true
		input.ViewLimit = item.ViewLimit
		if input.ViewLimit <= 0 {
			input.ViewLimit = 1
		}
		if item.MediaExpiryDuration > 0 {
			expiresAt := time.Now().Add(item.MediaExpiryDuration)
			input.MediaExpiresAt = &expiresAt
		}
	}

	message, err := s.deliverer.Send(ctx, input)
	if err != nil {
		return s.handleTransient(ctx, item, err)
	}

	now := time.Now()
	if err := s.scheduled.MarkSent(ctx, item.ID, now); err != nil {
		return s.handleTransient(ctx, item, fmt.Errorf("marking sent: %w", err))
	}
	s.peers.SendTo(item.SenderID, events.MustNew(events.ScheduledMessageSent, events.ScheduledSentPayload{
		ScheduledMessageID: item.ID,
		MessageID:          message.ID,
	}))
	return nil
}

// checkPreconditions validates, in order: conversation exists, sender
// exists, receiver exists, sender still participates. A not-found outcome
// is permanent; a storage error is transient.
func (s *Scheduler) checkPreconditions(ctx context.Context, item *models.ScheduledMessage) (reason string, permanent bool, err error) {
	if _, err := s.convos.GetByID(ctx, item.ConversationID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return reasonConversationDeleted, true, nil
		}
		return "", false, fmt.Errorf("loading conversation %d: %w", item.ConversationID, err)
	}
	if _, err := s.users.GetByID(ctx, item.SenderID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return reasonSenderDeleted, true, nil
		}
		return "", false, fmt.Errorf("loading sender %d: %w", item.SenderID, err)
	}
	if _, err := s.users.GetByID(ctx, item.ReceiverID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return reasonReceiverDeleted, true, nil
		}
		return "", false, fmt.Errorf("loading receiver %d: %w", item.ReceiverID, err)
	}
	participant, err := s.convos.IsParticipant(ctx, item.ConversationID, item.SenderID)
	if err != nil {
		return "", false, fmt.Errorf("checking participation: %w", err)
	}
	if !participant {
		return reasonSenderLeft, true, nil
	}
	return "", false, nil
}

func (s *Scheduler) failPermanently(ctx context.Context, item *models.ScheduledMessage, reason string) error {
	if err := s.scheduled.MarkFailed(ctx, item.ID, reason); err != nil {
		return fmt.Errorf("marking failed (%s): %w", reason, err)
	}
	s.notifyFailure(item, reason)
	return nil
}

// handleTransient applies the retry policy: bounded retries with a fixed
// backoff, then a terminal failed state. RetryCount never exceeds the
// configured maximum.
func (s *Scheduler) handleTransient(ctx context.Context, item *models.ScheduledMessage, cause error) error {
	if item.RetryCount < s.cfg.MaxRetries {
		nextAttempt := time.Now().Add(s.cfg.RetryBackoff)
		if err := s.scheduled.Reschedule(ctx, item.ID, item.RetryCount+1, nextAttempt); err != nil {
			return fmt.Errorf("rescheduling after %v: %w", cause, err)
		}
		log.Printf("scheduler: scheduled message %d retry %d/%d after error: %v",
			item.ID, item.RetryCount+1, s.cfg.MaxRetries, cause)
		return nil
	}

	reason := cause.Error()
	if err := s.scheduled.MarkFailed(ctx, item.ID, reason); err != nil {
		return fmt.Errorf("marking failed after retries (%v): %w", cause, err)
	}
	s.notifyFailure(item, reason)
	return fmt.Errorf("retries exhausted: %w", cause)
}

func (s *Scheduler) notifyFailure(item *models.ScheduledMessage, reason string) {
	s.peers.SendTo(item.SenderID, events.MustNew(events.ScheduledMessageFailed, events.ScheduledFailedPayload{
		ScheduledMessageID: item.ID,
		Reason:             reason,
	}))
}
