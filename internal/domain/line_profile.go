package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// LineProfile caches the LINE user profile fetched on follow events.
// Blocked flips on unfollow so dashboards can separate active friends.
type LineProfile struct {
	ID            string    `gorm:"primaryKey;column:id;type:uuid" json:"id"`
	LineUserID    string    `gorm:"column:line_user_id;size:64;uniqueIndex;not null" json:"line_user_id"`
	DisplayName   *string   `gorm:"column:display_name;size:200" json:"display_name,omitempty"`
	PictureURL    *string   `gorm:"column:picture_url;size:500" json:"picture_url,omitempty"`
	StatusMessage *string   `gorm:"column:status_message;size:500" json:"status_message,omitempty"`
	ServiceCode   string    `gorm:"column:service_code;size:50;index" json:"service_code"`
	Blocked       bool      `gorm:"column:blocked;not null;default:false" json:"blocked"`
	CreatedAt     time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (LineProfile) TableName() string {
	return "line_profiles"
}

func (p *LineProfile) BeforeCreate(_ *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return nil
}
