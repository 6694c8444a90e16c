package models

import (
	"encoding/json"
	"time"
)

// ContentType describes the payload of a message.
type ContentType string

const (
	TextContent  ContentType = "text"
	ImageContent ContentType = "image"
	VideoContent ContentType = "video"
)

// MessageStatus is the delivery lifecycle of a message. Transitions are
// monotonic: queued -> delivered -> read, never backwards.
type MessageStatus string

const (
	StatusQueued    MessageStatus = "queued"
	StatusDelivered MessageStatus = "delivered"
	StatusRead      MessageStatus = "read"
)

var statusRank = map[MessageStatus]int{
	StatusQueued:    0,
	StatusDelivered: 1,
	StatusRead:      2,
}

// CanTransition reports whether moving from the current status to next is a
// legal (strictly forward) transition.
func (s MessageStatus) CanTransition(next MessageStatus) bool {
	cur, ok := statusRank[s]
	if !ok {
		return false
	}
	nxt, ok := statusRank[next]
	if !ok {
		return false
	}
	return nxt > cur
}

// Reaction is a single user's emoji reaction to a message. A message holds
// at most one reaction per user.
type Reaction struct {
	UserID uint   `json:"userId"`
	Emoji  string `json:"emoji"`
}

// Message represents a stored chat message. The coordinator mutates only
// Status and Reactions through defined transitions; everything else is
// written once at creation.
type Message struct {
	BaseModel
	ConversationID uint          `gorm:"index;not null" json:"conversationId"`
	SenderID       uint          `gorm:"index;not null" json:"senderId"`
	ReceiverID     uint          `gorm:"index;not null" json:"receiverId"`
	Content        string        `gorm:"type:text" json:"content"`
	MediaURL       string        `gorm:"type:varchar(512)" json:"mediaUrl,omitempty"`
	ContentType    ContentType   `gorm:"type:varchar(20);not null" json:"contentType"`
	Status         MessageStatus `gorm:"type:varchar(20);default:'queued';index" json:"status"`
	DeliveredAt    *time.Time    `json:"deliveredAt,omitempty"`
	ReadAt         *time.Time    `json:"readAt,omitempty"`

	// ReactionsRaw stores the reaction set as JSONB; use Reactions and
	// SetReactions rather than touching it directly.
	ReactionsRaw json.RawMessage `gorm:"type:jsonb" json:"reactions,omitempty"`

	// Time-boxed ephemerality.
	IsTemporary bool       `gorm:"default:false;index" json:"isTemporary"`
	ExpiresAt   *time.Time `json:"expiresAt,omitempty"`

	// One-time media: bounded view count and/or media-specific expiry.
	IsOneTimeMedia bool       `gorm:"default:false;index" json:"isOneTimeMedia"`
	ViewLimit      int        `json:"viewLimit,omitempty"`
	ViewsLeft      int        `json:"viewsLeft,omitempty"`
	MediaExpiresAt *time.Time `json:"mediaExpiresAt,omitempty"`

	Sender   User `gorm:"foreignKey:SenderID" json:"sender,omitempty"`
	Receiver User `gorm:"foreignKey:ReceiverID" json:"receiver,omitempty"`
}

// TableName specifies the table name for the Message model.
func (Message) TableName() string {
	return "messages"
}

// Reactions decodes the stored reaction set. A missing column decodes to an
// empty slice.
func (m *Message) Reactions() ([]Reaction, error) {
	if len(m.ReactionsRaw) == 0 {
		return nil, nil
	}
	var reactions []Reaction
	if err := json.Unmarshal(m.ReactionsRaw, &reactions); err != nil {
		return nil, err
	}
	return reactions, nil
}

// SetReactions encodes and stores the reaction set.
func (m *Message) SetReactions(reactions []Reaction) error {
	if reactions == nil {
		reactions = []Reaction{}
	}
	raw, err := json.Marshal(reactions)
	if err != nil {
		return err
	}
	m.ReactionsRaw = raw
	return nil
}
