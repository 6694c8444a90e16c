package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"gorm.io/gorm"

	"chatlink/internal/events"
	"chatlink/internal/models"
)

type stubScheduledRepo struct {
	nextID uint
	items  map[uint]*models.ScheduledMessage
}

func newStubScheduledRepo() *stubScheduledRepo {
	return &stubScheduledRepo{nextID: 1, items: make(map[uint]*models.ScheduledMessage)}
}

func (r *stubScheduledRepo) Create(_ context.Context, msg *models.ScheduledMessage) error {
	msg.ID = r.nextID
	r.nextID++
	r.items[msg.ID] = msg
	return nil
}

func (r *stubScheduledRepo) GetByID(_ context.Context, id uint) (*models.ScheduledMessage, error) {
	item, ok := r.items[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return item, nil
}

func (r *stubScheduledRepo) FindDuePending(_ context.Context, _ time.Time) ([]*models.ScheduledMessage, error) {
	return nil, nil
}

func (r *stubScheduledRepo) ListPendingBySender(_ context.Context, senderID, conversationID uint) ([]*models.ScheduledMessage, error) {
	var out []*models.ScheduledMessage
	for _, item := range r.items {
		if item.SenderID != senderID || item.Status != models.ScheduledPending {
			continue
		}
		if conversationID != 0 && item.ConversationID != conversationID {
			continue
		}
		out = append(out, item)
	}
	return out, nil
}

func (r *stubScheduledRepo) Update(_ context.Context, msg *models.ScheduledMessage) error {
	r.items[msg.ID] = msg
	return nil
}

func (r *stubScheduledRepo) MarkSent(_ context.Context, id uint, sentAt time.Time) error {
	r.items[id].Status = models.ScheduledSent
	r.items[id].SentAt = &sentAt
	return nil
}

func (r *stubScheduledRepo) MarkFailed(_ context.Context, id uint, reason string) error {
	r.items[id].Status = models.ScheduledFailed
	r.items[id].FailureReason = reason
	return nil
}

func (r *stubScheduledRepo) Reschedule(_ context.Context, id uint, retryCount int, nextAttempt time.Time) error {
	r.items[id].RetryCount = retryCount
	r.items[id].ScheduledTime = nextAttempt
	return nil
}

type stubConvoRepo struct{}

func (stubConvoRepo) Create(_ context.Context, _ *models.Conversation) error { return nil }

func (stubConvoRepo) GetByID(_ context.Context, id uint) (*models.Conversation, error) {
	c := &models.Conversation{}
	c.ID = id
	return c, nil
}

func (stubConvoRepo) GetUserConversations(_ context.Context, _ uint, _, _ int) ([]*models.Conversation, error) {
	return nil, nil
}

func (stubConvoRepo) Update(_ context.Context, _ *models.Conversation) error { return nil }

func (stubConvoRepo) FindByParticipants(_ context.Context, _, _ uint) (*models.Conversation, error) {
	return nil, gorm.ErrRecordNotFound
}

func (stubConvoRepo) FindOrCreateByParticipants(_ context.Context, _, _ uint) (*models.Conversation, error) {
	c := &models.Conversation{}
	c.ID = 10
	return c, nil
}

func (stubConvoRepo) IsParticipant(_ context.Context, _, _ uint) (bool, error) { return true, nil }
func (stubConvoRepo) BumpLastMessage(_ context.Context, _, _ uint) error       { return nil }
func (stubConvoRepo) ResetUnread(_ context.Context, _ uint) error              { return nil }

type recordingNotifier struct {
	sent map[uint][]string
}

func (n *recordingNotifier) SendTo(userID uint, evt events.Event) bool {
	if n.sent == nil {
		n.sent = make(map[uint][]string)
	}
	n.sent[userID] = append(n.sent[userID], evt.Event)
	return true
}

func newScheduledService() (ScheduledMessageService, *stubScheduledRepo, *recordingNotifier) {
	repo := newStubScheduledRepo()
	notifier := &recordingNotifier{}
	return NewScheduledMessageService(repo, stubConvoRepo{}, notifier), repo, notifier
}

func futureInput() ScheduleInput {
	return ScheduleInput{ReceiverID: 2, Content: "later", ScheduledTime: time.Now().Add(time.Hour)}
}

func TestScheduleCreatesPendingItem(t *testing.T) {
	svc, repo, notifier := newScheduledService()

	item, err := svc.Schedule(context.Background(), 1, futureInput())
	if err != nil {
		t.Fatal(err)
	}
	if item.Status != models.ScheduledPending || item.ConversationID != 10 {
		t.Errorf("item = %+v", item)
	}
	if _, ok := repo.items[item.ID]; !ok {
		t.Error("item not stored")
	}
	if got := notifier.sent[1]; len(got) != 1 || got[0] != events.ScheduledMessageCreated {
		t.Errorf("notifications = %v, want [scheduled_message_created]", got)
	}
}

func TestScheduleRejectsPastTime(t *testing.T) {
	svc, _, _ := newScheduledService()
	input := futureInput()
	input.ScheduledTime = time.Now().Add(-time.Minute)
	if _, err := svc.Schedule(context.Background(), 1, input); !errors.Is(err, ErrScheduleInPast) {
		t.Errorf("want ErrScheduleInPast, got %v", err)
	}
}

func TestScheduleRejectsEmptyContent(t *testing.T) {
	svc, _, _ := newScheduledService()
	input := futureInput()
	input.Content = ""
	if _, err := svc.Schedule(context.Background(), 1, input); err == nil {
		t.Error("empty scheduled message must be rejected")
	}
}

func TestUpdateOnlyByOwnerWhilePending(t *testing.T) {
	svc, repo, _ := newScheduledService()
	item, _ := svc.Schedule(context.Background(), 1, futureInput())

	if _, err := svc.Update(context.Background(), item.ID, 9, "changed", time.Time{}); !errors.Is(err, ErrScheduledNotOwner) {
		t.Errorf("want ErrScheduledNotOwner, got %v", err)
	}

	updated, err := svc.Update(context.Background(), item.ID, 1, "changed", time.Now().Add(2*time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if updated.Content != "changed" {
		t.Errorf("content = %q", updated.Content)
	}

	// Once the scheduler has taken it, edits are refused.
	repo.items[item.ID].Status = models.ScheduledSent
	if _, err := svc.Update(context.Background(), item.ID, 1, "too late", time.Time{}); !errors.Is(err, ErrScheduledNotPending) {
		t.Errorf("want ErrScheduledNotPending, got %v", err)
	}
}

func TestCancelIsTerminal(t *testing.T) {
	svc, repo, notifier := newScheduledService()
	item, _ := svc.Schedule(context.Background(), 1, futureInput())

	if err := svc.Cancel(context.Background(), item.ID, 1); err != nil {
		t.Fatal(err)
	}
	if repo.items[item.ID].Status != models.ScheduledCancelled {
		t.Errorf("status = %s, want cancelled", repo.items[item.ID].Status)
	}
	if err := svc.Cancel(context.Background(), item.ID, 1); !errors.Is(err, ErrScheduledNotPending) {
		t.Errorf("double cancel: want ErrScheduledNotPending, got %v", err)
	}
	if got := notifier.sent[1]; len(got) != 2 || got[1] != events.ScheduledMessageCancel {
		t.Errorf("notifications = %v", got)
	}
}

func TestListPendingFiltersByStatusAndConversation(t *testing.T) {
	svc, repo, _ := newScheduledService()
	a, _ := svc.Schedule(context.Background(), 1, futureInput())
	b, _ := svc.Schedule(context.Background(), 1, futureInput())
	repo.items[b.ID].Status = models.ScheduledCancelled

	pending, err := svc.ListPending(context.Background(), 1, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 1 || pending[0].ID != a.ID {
		t.Errorf("pending = %v", pending)
	}
}
