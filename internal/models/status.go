package models

import (
	"encoding/json"
	"time"
)

// Status is a broadcast story: a text or media post visible to every user
// until it expires. Viewer tracking is per-user and append-only.
type Status struct {
	BaseModel
	UserID      uint        `gorm:"index;not null" json:"userId"`
	Content     string      `gorm:"type:text" json:"content,omitempty"`
	MediaURL    string      `gorm:"type:varchar(512)" json:"mediaUrl,omitempty"`
	ContentType ContentType `gorm:"type:varchar(20);not null" json:"contentType"`
	ExpiresAt   time.Time   `gorm:"index;not null" json:"expiresAt"`

	// ViewersRaw stores the viewer ID set as JSONB; use Viewers and
	// AddViewer rather than touching it directly.
	ViewersRaw json.RawMessage `gorm:"type:jsonb" json:"viewers,omitempty"`

	User User `gorm:"foreignKey:UserID" json:"user,omitempty"`
}

// TableName specifies the table name for the Status model.
func (Status) TableName() string {
	return "statuses"
}

// Expired reports whether the status is past its lifetime at the given
// instant.
func (s *Status) Expired(now time.Time) bool {
	return !s.ExpiresAt.After(now)
}

// Viewers decodes the stored viewer ID set. A missing column decodes to an
// empty slice.
func (s *Status) Viewers() ([]uint, error) {
	if len(s.ViewersRaw) == 0 {
		return nil, nil
	}
	var viewers []uint
	if err := json.Unmarshal(s.ViewersRaw, &viewers); err != nil {
		return nil, err
	}
	return viewers, nil
}

// AddViewer records that userID has seen the status. It reports whether the
// set changed; a repeat view is a no-op.
func (s *Status) AddViewer(userID uint) (bool, error) {
	viewers, err := s.Viewers()
	if err != nil {
		return false, err
	}
	for _, id := range viewers {
		if id == userID {
			return false, nil
		}
	}
	viewers = append(viewers, userID)
	raw, err := json.Marshal(viewers)
	if err != nil {
		return false, err
	}
	s.ViewersRaw = raw
	return true, nil
}
