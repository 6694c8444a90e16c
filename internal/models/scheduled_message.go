package models

import "time"

// ScheduledStatus is the lifecycle of a deferred message. Pending items are
// picked up by the scheduler poll; sent, failed and cancelled are terminal.
type ScheduledStatus string

const (
	ScheduledPending   ScheduledStatus = "pending"
	ScheduledSent      ScheduledStatus = "sent"
	ScheduledFailed    ScheduledStatus = "failed"
	ScheduledCancelled ScheduledStatus = "cancelled"
)

// ScheduledMessage is a message authored now whose delivery is deferred to a
// future instant. It is tracked independently of real messages until it is
// materialized (sent) or abandoned (failed/cancelled).
type ScheduledMessage struct {
	BaseModel
	ConversationID uint            `gorm:"index;not null" json:"conversationId"`
	SenderID       uint            `gorm:"index;not null" json:"senderId"`
	ReceiverID     uint            `gorm:"index;not null" json:"receiverId"`
	Content        string          `gorm:"type:text" json:"content"`
	MediaURL       string          `gorm:"type:varchar(512)" json:"mediaUrl,omitempty"`
	ContentType    ContentType     `gorm:"type:varchar(20)" json:"contentType"`
	ScheduledTime  time.Time       `gorm:"index;not null" json:"scheduledTime"`
	Status         ScheduledStatus `gorm:"type:varchar(20);default:'pending';index" json:"status"`

	// One-time media configuration carried onto the real message at delivery.
	IsOneTimeMedia      bool          `gorm:"default:false" json:"isOneTimeMedia"`
	ViewLimit           int           `json:"viewLimit,omitempty"`
	MediaExpiryDuration time.Duration `json:"mediaExpiryDuration,omitempty"`

	FailureReason string     `gorm:"type:text" json:"failureReason,omitempty"`
	SentAt        *time.Time `json:"sentAt,omitempty"`
	RetryCount    int        `gorm:"default:0" json:"retryCount"`

	Sender   User `gorm:"foreignKey:SenderID" json:"sender,omitempty"`
	Receiver User `gorm:"foreignKey:ReceiverID" json:"receiver,omitempty"`
}

// TableName specifies the table name for the ScheduledMessage model.
func (ScheduledMessage) TableName() string {
	return "scheduled_messages"
}
