package models

import "time"

// Conversation represents a one-to-one chat between two users.
type Conversation struct {
	BaseModel

	// LastMessageID points at the newest message for list rendering.
	// Nullable because a fresh conversation has no messages yet.
	LastMessageID *uint `gorm:"index" json:"lastMessageId,omitempty"`
	UnreadCount   int   `gorm:"default:0" json:"unreadCount"`

	// Temporary mode: when enabled, messages created in this conversation
	// carry an expiry of TemporaryDuration from their creation time.
	IsTemporaryMode   bool          `gorm:"default:false" json:"isTemporaryMode"`
	TemporaryDuration time.Duration `json:"temporaryDuration,omitempty"`

	Users        []*User                   `gorm:"many2many:conversation_participants;" json:"users,omitempty"`
	Messages     []Message                 `gorm:"foreignKey:ConversationID" json:"messages,omitempty"`
	Participants []ConversationParticipant `gorm:"foreignKey:ConversationID" json:"participants,omitempty"`
}

// TableName specifies the table name for the Conversation model.
func (Conversation) TableName() string {
	return "conversations"
}

// ConversationParticipant links a user to a conversation.
type ConversationParticipant struct {
	BaseModel
	ConversationID uint       `gorm:"primaryKey;autoIncrement:false" json:"conversationId"`
	UserID         uint       `gorm:"primaryKey;autoIncrement:false" json:"userId"`
	JoinedAt       time.Time  `json:"joinedAt"`
	LastReadAt     *time.Time `json:"lastReadAt,omitempty"`

	User         User         `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Conversation Conversation `gorm:"foreignKey:ConversationID" json:"conversation,omitempty"`
}

// TableName specifies the table name for the ConversationParticipant model.
func (ConversationParticipant) TableName() string {
	return "conversation_participants"
}
