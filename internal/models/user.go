package models

import "time"

// User represents an account known to the coordinator. Presence fields
// (IsOnline, LastSeenAt) are owned by the presence registry; everything
// else is profile data served over the REST API.
type User struct {
	BaseModel
	Username     string     `gorm:"type:varchar(100);uniqueIndex;not null" json:"username"`
	PasswordHash string     `gorm:"type:varchar(255);not null" json:"-"`
	Email        string     `gorm:"type:varchar(100);uniqueIndex" json:"email,omitempty"`
	AvatarURL    string     `gorm:"type:varchar(255)" json:"avatarUrl,omitempty"`
	IsOnline     bool       `gorm:"default:false" json:"isOnline"`
	LastSeenAt   *time.Time `json:"lastSeenAt,omitempty"`

	Messages      []Message       `gorm:"foreignKey:SenderID" json:"messages,omitempty"`
	Conversations []*Conversation `gorm:"many2many:conversation_participants;" json:"conversations,omitempty"`
}

// UserBasicInfo holds the minimal public view of a user, embedded in
// outbound events so clients can render sender details without a lookup.
type UserBasicInfo struct {
	ID        uint   `json:"id"`
	Username  string `json:"username"`
	AvatarURL string `json:"avatarUrl,omitempty"`
}

// BasicInfo returns the public view of the user.
func (u *User) BasicInfo() UserBasicInfo {
	return UserBasicInfo{ID: u.ID, Username: u.Username, AvatarURL: u.AvatarURL}
}

// TableName specifies the table name for the User model.
func (User) TableName() string {
	return "users"
}
