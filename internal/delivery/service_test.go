package delivery

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"gorm.io/gorm"

	"chatlink/internal/events"
	"chatlink/internal/models"
)

type memMessageRepo struct {
	nextID   uint
	messages map[uint]*models.Message
}

func newMemMessageRepo() *memMessageRepo {
	return &memMessageRepo{nextID: 1, messages: make(map[uint]*models.Message)}
}

func (r *memMessageRepo) Create(_ context.Context, message *models.Message) error {
	message.ID = r.nextID
	r.nextID++
	copied := *message
	r.messages[message.ID] = &copied
	return nil
}

func (r *memMessageRepo) GetByID(_ context.Context, id uint) (*models.Message, error) {
	m, ok := r.messages[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *m
	return &copied, nil
}

func (r *memMessageRepo) GetByIDs(_ context.Context, ids []uint) ([]*models.Message, error) {
	var out []*models.Message
	for _, id := range ids {
		if m, ok := r.messages[id]; ok {
			copied := *m
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (r *memMessageRepo) GetByConversationID(_ context.Context, conversationID uint, _, _ int) ([]*models.Message, error) {
	var out []*models.Message
	for _, m := range r.messages {
		if m.ConversationID == conversationID {
			copied := *m
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (r *memMessageRepo) UpdateStatus(_ context.Context, messageID uint, status models.MessageStatus, at time.Time) error {
	m, ok := r.messages[messageID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	m.Status = status
	switch status {
	case models.StatusDelivered:
		m.DeliveredAt = &at
	case models.StatusRead:
		m.ReadAt = &at
	}
	return nil
}

func (r *memMessageRepo) UpdateReactions(_ context.Context, message *models.Message) error {
	m, ok := r.messages[message.ID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	m.ReactionsRaw = message.ReactionsRaw
	return nil
}

func (r *memMessageRepo) Delete(_ context.Context, id uint) error {
	delete(r.messages, id)
	return nil
}

func (r *memMessageRepo) DeleteByIDs(_ context.Context, ids []uint) error {
	for _, id := range ids {
		delete(r.messages, id)
	}
	return nil
}

func (r *memMessageRepo) FindTimeExpired(_ context.Context, now time.Time) ([]*models.Message, error) {
	var out []*models.Message
	for _, m := range r.messages {
		if m.IsTemporary && m.ExpiresAt != nil && !m.ExpiresAt.After(now) {
			out = append(out, m)
		}
	}
	return out, nil
}

func (r *memMessageRepo) FindMediaExpired(_ context.Context, now time.Time) ([]*models.Message, error) {
	var out []*models.Message
	for _, m := range r.messages {
		if !m.IsOneTimeMedia {
			continue
		}
		if m.ViewsLeft <= 0 || (m.MediaExpiresAt != nil && !m.MediaExpiresAt.After(now)) {
			out = append(out, m)
		}
	}
	return out, nil
}

func (r *memMessageRepo) DecrementViewsLeft(_ context.Context, messageID uint) error {
	if m, ok := r.messages[messageID]; ok && m.ViewsLeft > 0 {
		m.ViewsLeft--
	}
	return nil
}

type memConvoRepo struct {
	nextID        uint
	conversations map[uint]*models.Conversation
	participants  map[uint][]uint
}

func newMemConvoRepo() *memConvoRepo {
	return &memConvoRepo{
		nextID:        1,
		conversations: make(map[uint]*models.Conversation),
		participants:  make(map[uint][]uint),
	}
}

func (r *memConvoRepo) add(c *models.Conversation, users ...uint) *models.Conversation {
	c.ID = r.nextID
	r.nextID++
	r.conversations[c.ID] = c
	r.participants[c.ID] = users
	return c
}

func (r *memConvoRepo) Create(_ context.Context, c *models.Conversation) error {
	r.add(c)
	return nil
}

func (r *memConvoRepo) GetByID(_ context.Context, id uint) (*models.Conversation, error) {
	c, ok := r.conversations[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *c
	return &copied, nil
}

func (r *memConvoRepo) GetUserConversations(_ context.Context, userID uint, _, _ int) ([]*models.Conversation, error) {
	var out []*models.Conversation
	for id, users := range r.participants {
		for _, u := range users {
			if u == userID {
				out = append(out, r.conversations[id])
			}
		}
	}
	return out, nil
}

func (r *memConvoRepo) Update(_ context.Context, c *models.Conversation) error {
	r.conversations[c.ID] = c
	return nil
}

func (r *memConvoRepo) FindByParticipants(_ context.Context, userID1, userID2 uint) (*models.Conversation, error) {
	for id, users := range r.participants {
		if len(users) == 2 &&
			((users[0] == userID1 && users[1] == userID2) || (users[0] == userID2 && users[1] == userID1)) {
			return r.conversations[id], nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *memConvoRepo) FindOrCreateByParticipants(ctx context.Context, userID1, userID2 uint) (*models.Conversation, error) {
	if c, err := r.FindByParticipants(ctx, userID1, userID2); err == nil {
		return c, nil
	}
	return r.add(&models.Conversation{}, userID1, userID2), nil
}

func (r *memConvoRepo) IsParticipant(_ context.Context, conversationID, userID uint) (bool, error) {
	for _, u := range r.participants[conversationID] {
		if u == userID {
			return true, nil
		}
	}
	return false, nil
}

func (r *memConvoRepo) BumpLastMessage(_ context.Context, conversationID, messageID uint) error {
	c, ok := r.conversations[conversationID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	c.LastMessageID = &messageID
	c.UnreadCount++
	return nil
}

func (r *memConvoRepo) ResetUnread(_ context.Context, conversationID uint) error {
	if c, ok := r.conversations[conversationID]; ok {
		c.UnreadCount = 0
	}
	return nil
}

type fakePeers struct {
	online map[uint]bool
	sent   map[uint][]events.Event
}

func newFakePeers(onlineUsers ...uint) *fakePeers {
	online := make(map[uint]bool)
	for _, u := range onlineUsers {
		online[u] = true
	}
	return &fakePeers{online: online, sent: make(map[uint][]events.Event)}
}

func (f *fakePeers) SendTo(userID uint, evt events.Event) bool {
	if !f.online[userID] {
		return false
	}
	f.sent[userID] = append(f.sent[userID], evt)
	return true
}

func (f *fakePeers) IsOnline(userID uint) bool { return f.online[userID] }

func (f *fakePeers) names(userID uint) []string {
	var out []string
	for _, e := range f.sent[userID] {
		out = append(out, e.Event)
	}
	return out
}

func newTestService(peers *fakePeers) (*Service, *memMessageRepo, *memConvoRepo) {
	messages := newMemMessageRepo()
	convos := newMemConvoRepo()
	return NewService(messages, convos, peers, nil), messages, convos
}

func TestSendToOnlineReceiverMarksDelivered(t *testing.T) {
	peers := newFakePeers(1, 2)
	svc, messages, convos := newTestService(peers)

	msg, err := svc.Send(context.Background(), SendInput{SenderID: 1, ReceiverID: 2, Content: "hi"})
	if err != nil {
		t.Fatal(err)
	}
	if msg.Status != models.StatusDelivered {
		t.Errorf("status = %s, want delivered", msg.Status)
	}
	if msg.DeliveredAt == nil {
		t.Error("DeliveredAt should be stamped")
	}

	stored, _ := messages.GetByID(context.Background(), msg.ID)
	if stored.Status != models.StatusDelivered {
		t.Errorf("stored status = %s, want delivered", stored.Status)
	}
	if got := peers.names(2); len(got) != 1 || got[0] != events.ReceiveMessage {
		t.Errorf("receiver events = %v, want [receive_message]", got)
	}
	if got := peers.names(1); len(got) != 1 || got[0] != events.MessageStatusUpdated {
		t.Errorf("sender events = %v, want [message_status_updated]", got)
	}

	convo, _ := convos.GetByID(context.Background(), msg.ConversationID)
	if convo.LastMessageID == nil || *convo.LastMessageID != msg.ID || convo.UnreadCount != 1 {
		t.Errorf("conversation pointer not bumped: %+v", convo)
	}
}

func TestSendToOfflineReceiverStaysQueued(t *testing.T) {
	peers := newFakePeers(1) // receiver offline
	svc, messages, _ := newTestService(peers)

	msg, err := svc.Send(context.Background(), SendInput{SenderID: 1, ReceiverID: 2, Content: "hi"})
	if err != nil {
		t.Fatal(err)
	}
	if msg.Status != models.StatusQueued {
		t.Errorf("status = %s, want queued", msg.Status)
	}

	stored, _ := messages.GetByID(context.Background(), msg.ID)
	if stored.Status != models.StatusQueued || stored.DeliveredAt != nil {
		t.Errorf("offline send must stay queued, got %+v", stored)
	}
	if len(peers.sent[1]) != 0 {
		t.Error("sender should get no status event for a queued message")
	}
}

func TestSendRejectsEmptyMessage(t *testing.T) {
	svc, _, _ := newTestService(newFakePeers())

	_, err := svc.Send(context.Background(), SendInput{SenderID: 1, ReceiverID: 2, Content: "   "})
	if !errors.Is(err, ErrInvalidInput) {
		t.Errorf("want ErrInvalidInput, got %v", err)
	}

	// A media reference alone is enough.
	if _, err := svc.Send(context.Background(), SendInput{SenderID: 1, ReceiverID: 2, MediaURL: "/static/x.jpg", ContentType: models.ImageContent}); err != nil {
		t.Errorf("media-only send should succeed, got %v", err)
	}
}

func TestSendInTemporaryConversationStampsExpiry(t *testing.T) {
	peers := newFakePeers()
	svc, _, convos := newTestService(peers)
	convo := convos.add(&models.Conversation{IsTemporaryMode: true, TemporaryDuration: time.Hour}, 1, 2)

	before := time.Now()
	msg, err := svc.Send(context.Background(), SendInput{ConversationID: convo.ID, SenderID: 1, ReceiverID: 2, Content: "secret"})
	if err != nil {
		t.Fatal(err)
	}
	if !msg.IsTemporary || msg.ExpiresAt == nil {
		t.Fatal("message in a temporary conversation must carry an expiry")
	}
	if msg.ExpiresAt.Before(before.Add(time.Hour).Add(-time.Minute)) {
		t.Errorf("expiry %v should be about an hour out", msg.ExpiresAt)
	}
}

func TestSendUnknownConversation(t *testing.T) {
	svc, _, _ := newTestService(newFakePeers())
	_, err := svc.Send(context.Background(), SendInput{ConversationID: 42, SenderID: 1, ReceiverID: 2, Content: "hi"})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("want ErrNotFound, got %v", err)
	}
}

func TestMarkReadNotifiesSender(t *testing.T) {
	peers := newFakePeers(1, 2)
	svc, messages, _ := newTestService(peers)
	msg, _ := svc.Send(context.Background(), SendInput{SenderID: 1, ReceiverID: 2, Content: "hi"})
	peers.sent = map[uint][]events.Event{}

	if err := svc.MarkRead(context.Background(), []uint{msg.ID}, 2); err != nil {
		t.Fatal(err)
	}

	stored, _ := messages.GetByID(context.Background(), msg.ID)
	if stored.Status != models.StatusRead || stored.ReadAt == nil {
		t.Errorf("message should be read with ReadAt stamped, got %+v", stored)
	}
	if got := peers.names(1); len(got) != 1 || got[0] != events.MessageStatusUpdated {
		t.Fatalf("sender events = %v, want [message_status_updated]", got)
	}
	var payload events.MessageStatusPayload
	if err := json.Unmarshal(peers.sent[1][0].Data, &payload); err != nil {
		t.Fatal(err)
	}
	if payload.Status != string(models.StatusRead) {
		t.Errorf("status payload = %s, want read", payload.Status)
	}
}

func TestMarkReadRejectsForeignMessages(t *testing.T) {
	peers := newFakePeers(1, 2, 3)
	svc, messages, _ := newTestService(peers)
	msg, _ := svc.Send(context.Background(), SendInput{SenderID: 1, ReceiverID: 2, Content: "hi"})

	err := svc.MarkRead(context.Background(), []uint{msg.ID}, 3)
	if !errors.Is(err, ErrAccessDenied) {
		t.Fatalf("want ErrAccessDenied, got %v", err)
	}
	stored, _ := messages.GetByID(context.Background(), msg.ID)
	if stored.Status == models.StatusRead {
		t.Error("foreign mark-read must not change status")
	}
}

func TestMarkReadIsMonotonic(t *testing.T) {
	peers := newFakePeers(1, 2)
	svc, _, _ := newTestService(peers)
	msg, _ := svc.Send(context.Background(), SendInput{SenderID: 1, ReceiverID: 2, Content: "hi"})

	if err := svc.MarkRead(context.Background(), []uint{msg.ID}, 2); err != nil {
		t.Fatal(err)
	}
	peers.sent = map[uint][]events.Event{}

	// Second read is a no-op: no error, no duplicate notification.
	if err := svc.MarkRead(context.Background(), []uint{msg.ID}, 2); err != nil {
		t.Fatal(err)
	}
	if len(peers.sent[1]) != 0 {
		t.Error("re-reading must not re-notify the sender")
	}
}

func TestReactToggleReplaceAndRemove(t *testing.T) {
	peers := newFakePeers(1, 2)
	svc, messages, _ := newTestService(peers)
	msg, _ := svc.Send(context.Background(), SendInput{SenderID: 1, ReceiverID: 2, Content: "hi"})

	reactionsOf := func() []models.Reaction {
		stored, _ := messages.GetByID(context.Background(), msg.ID)
		reactions, err := stored.Reactions()
		if err != nil {
			t.Fatal(err)
		}
		return reactions
	}

	// Add.
	if err := svc.React(context.Background(), msg.ID, 2, "👍"); err != nil {
		t.Fatal(err)
	}
	if got := reactionsOf(); len(got) != 1 || got[0].Emoji != "👍" {
		t.Fatalf("after add: %v", got)
	}

	// Replace with a different emoji.
	if err := svc.React(context.Background(), msg.ID, 2, "❤️"); err != nil {
		t.Fatal(err)
	}
	if got := reactionsOf(); len(got) != 1 || got[0].Emoji != "❤️" {
		t.Fatalf("after replace: %v", got)
	}

	// Same emoji again removes it.
	if err := svc.React(context.Background(), msg.ID, 2, "❤️"); err != nil {
		t.Fatal(err)
	}
	if got := reactionsOf(); len(got) != 0 {
		t.Fatalf("after toggle-off: %v", got)
	}
}

func TestReactKeepsOtherUsersReactions(t *testing.T) {
	peers := newFakePeers(1, 2)
	svc, messages, _ := newTestService(peers)
	msg, _ := svc.Send(context.Background(), SendInput{SenderID: 1, ReceiverID: 2, Content: "hi"})

	if err := svc.React(context.Background(), msg.ID, 1, "👍"); err != nil {
		t.Fatal(err)
	}
	if err := svc.React(context.Background(), msg.ID, 2, "❤️"); err != nil {
		t.Fatal(err)
	}

	stored, _ := messages.GetByID(context.Background(), msg.ID)
	reactions, _ := stored.Reactions()
	if len(reactions) != 2 {
		t.Fatalf("both users' reactions should coexist, got %v", reactions)
	}
}

func TestReactRequiresParticipant(t *testing.T) {
	peers := newFakePeers(1, 2, 3)
	svc, _, _ := newTestService(peers)
	msg, _ := svc.Send(context.Background(), SendInput{SenderID: 1, ReceiverID: 2, Content: "hi"})

	if err := svc.React(context.Background(), msg.ID, 3, "👍"); !errors.Is(err, ErrAccessDenied) {
		t.Errorf("want ErrAccessDenied, got %v", err)
	}
}

func TestDeleteBySenderNotifiesReceiver(t *testing.T) {
	peers := newFakePeers(1, 2)
	svc, messages, _ := newTestService(peers)
	msg, _ := svc.Send(context.Background(), SendInput{SenderID: 1, ReceiverID: 2, Content: "hi"})
	peers.sent = map[uint][]events.Event{}

	if err := svc.Delete(context.Background(), msg.ID, 1); err != nil {
		t.Fatal(err)
	}
	if _, err := messages.GetByID(context.Background(), msg.ID); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Error("message should be gone after delete")
	}
	if got := peers.names(2); len(got) != 1 || got[0] != events.MessageDeleted {
		t.Errorf("receiver events = %v, want [message_deleted]", got)
	}
}

func TestRecordMediaViewBurnsViews(t *testing.T) {
	peers := newFakePeers(1, 2)
	svc, messages, _ := newTestService(peers)
	msg, _ := svc.Send(context.Background(), SendInput{
		SenderID:       1,
		ReceiverID:     2,
		MediaURL:       "/static/x.jpg",
		ContentType:    models.ImageContent,
		IsOneTimeMedia: true,
		ViewLimit:      2,
	})

	viewed, err := svc.RecordMediaView(context.Background(), msg.ID, 2)
	if err != nil {
		t.Fatal(err)
	}
	if viewed.ViewsLeft != 1 {
		t.Errorf("views left = %d, want 1", viewed.ViewsLeft)
	}

	if _, err := svc.RecordMediaView(context.Background(), msg.ID, 2); err != nil {
		t.Fatal(err)
	}
	stored, _ := messages.GetByID(context.Background(), msg.ID)
	if stored.ViewsLeft != 0 {
		t.Errorf("stored views left = %d, want 0", stored.ViewsLeft)
	}

	// Budget spent: further views are gone.
	if _, err := svc.RecordMediaView(context.Background(), msg.ID, 2); !errors.Is(err, ErrNotFound) {
		t.Errorf("want ErrNotFound after budget spent, got %v", err)
	}
}

func TestRecordMediaViewOnlyByReceiver(t *testing.T) {
	peers := newFakePeers(1, 2)
	svc, _, _ := newTestService(peers)
	msg, _ := svc.Send(context.Background(), SendInput{
		SenderID:       1,
		ReceiverID:     2,
		MediaURL:       "/static/x.jpg",
		ContentType:    models.ImageContent,
		IsOneTimeMedia: true,
		ViewLimit:      1,
	})

	if _, err := svc.RecordMediaView(context.Background(), msg.ID, 1); !errors.Is(err, ErrAccessDenied) {
		t.Errorf("sender view should be denied, got %v", err)
	}
}

func TestRecordMediaViewRejectsPlainMessages(t *testing.T) {
	peers := newFakePeers(1, 2)
	svc, _, _ := newTestService(peers)
	msg, _ := svc.Send(context.Background(), SendInput{SenderID: 1, ReceiverID: 2, Content: "hi"})

	if _, err := svc.RecordMediaView(context.Background(), msg.ID, 2); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("want ErrInvalidInput, got %v", err)
	}
}

func TestDeleteByReceiverDenied(t *testing.T) {
	peers := newFakePeers(1, 2)
	svc, _, _ := newTestService(peers)
	msg, _ := svc.Send(context.Background(), SendInput{SenderID: 1, ReceiverID: 2, Content: "hi"})

	if err := svc.Delete(context.Background(), msg.ID, 2); !errors.Is(err, ErrAccessDenied) {
		t.Errorf("want ErrAccessDenied, got %v", err)
	}
}
