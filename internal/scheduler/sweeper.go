package scheduler

import (
	"context"
	"log"
	"time"

	"chatlink/internal/config"
	"chatlink/internal/events"
	"chatlink/internal/models"
	"chatlink/internal/storage"
)

// Sweeper periodically removes time-boxed and view-limited ephemeral
// content. Deletion is the durable effect; notifying affected parties is
// best-effort and never fails the sweep.
type Sweeper struct {
	messages storage.MessageRepository
	statuses storage.StatusRepository
	peers    PeerNotifier
	cfg      config.SweeperConfig
}

// NewSweeper creates the expiry sweeper. statuses may be nil in tests that
// only exercise message expiry.
func NewSweeper(messages storage.MessageRepository, statuses storage.StatusRepository, peers PeerNotifier, cfg config.SweeperConfig) *Sweeper {
	return &Sweeper{messages: messages, statuses: statuses, peers: peers, cfg: cfg}
}

// Run sweeps at the configured interval until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()
	log.Printf("sweeper: sweeping every %s", s.cfg.SweepInterval)
	for {
		select {
		case <-ctx.Done():
			log.Println("sweeper: stopped")
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep performs one pass over every kind of expiring content.
func (s *Sweeper) Sweep(ctx context.Context) {
	now := time.Now()
	s.sweepMessages(ctx, now)
	s.sweepStatuses(ctx, now)
}

// sweepMessages finds expired messages, deletes them in one batch, then
// notifies both participants of each removal with an event kind that
// distinguishes time expiry from view/media expiry.
func (s *Sweeper) sweepMessages(ctx context.Context, now time.Time) {
	timeExpired, err := s.messages.FindTimeExpired(ctx, now)
	if err != nil {
		log.Printf("sweeper: querying time-expired messages failed: %v", err)
		return
	}
	mediaExpired, err := s.messages.FindMediaExpired(ctx, now)
	if err != nil {
		log.Printf("sweeper: querying media-expired messages failed: %v", err)
		return
	}

	// A message matching both filters counts as media expiry.
	mediaIDs := make(map[uint]bool, len(mediaExpired))
	for _, m := range mediaExpired {
		mediaIDs[m.ID] = true
	}
	all := make([]*models.Message, 0, len(timeExpired)+len(mediaExpired))
	all = append(all, mediaExpired...)
	for _, m := range timeExpired {
		if !mediaIDs[m.ID] {
			all = append(all, m)
		}
	}
	if len(all) == 0 {
		return
	}

	ids := make([]uint, len(all))
	for i, m := range all {
		ids[i] = m.ID
	}
	if err := s.messages.DeleteByIDs(ctx, ids); err != nil {
		log.Printf("sweeper: deleting %d expired messages failed: %v", len(ids), err)
		return
	}

	for _, m := range all {
		name := events.MessageExpired
		if mediaIDs[m.ID] {
			name = events.MediaExpired
		}
		evt := events.MustNew(name, events.ExpiredPayload{
			MessageID:      m.ID,
			ConversationID: m.ConversationID,
		})
		s.peers.SendTo(m.SenderID, evt)
		s.peers.SendTo(m.ReceiverID, evt)
	}
	log.Printf("sweeper: removed %d expired messages", len(all))
}

// sweepStatuses purges statuses past their lifetime. Clients already hide
// expired statuses from listings, so removal needs no notification.
func (s *Sweeper) sweepStatuses(ctx context.Context, now time.Time) {
	if s.statuses == nil {
		return
	}
	removed, err := s.statuses.DeleteExpired(ctx, now)
	if err != nil {
		log.Printf("sweeper: deleting expired statuses failed: %v", err)
		return
	}
	if removed > 0 {
		log.Printf("sweeper: removed %d expired statuses", removed)
	}
}
