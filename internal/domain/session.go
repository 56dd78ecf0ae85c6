package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Session is the per-click linkage token written alongside a Visit. Session
// tokens are unguessable and scoped to a single click, which makes them the
// highest-confidence matching source at webhook time: recency alone is
// enough, no scoring needed.
type Session struct {
	ID             string     `gorm:"primaryKey;column:id;type:uuid" json:"id"`
	SessionToken   string     `gorm:"column:session_token;size:40;uniqueIndex;not null" json:"session_token"`
	AgencyID       *string    `gorm:"column:agency_id;type:uuid;index" json:"agency_id,omitempty"`
	TrackingLinkID *string    `gorm:"column:tracking_link_id;type:uuid;index" json:"tracking_link_id,omitempty"`
	VisitID        *string    `gorm:"column:visit_id;type:uuid" json:"visit_id,omitempty"`
	UserAgent      *string    `gorm:"column:user_agent;type:text" json:"user_agent,omitempty"`
	IP             *string    `gorm:"column:ip;size:64" json:"ip,omitempty"`
	UTMSource      *string    `gorm:"column:utm_source;size:100" json:"utm_source,omitempty"`
	UTMMedium      *string    `gorm:"column:utm_medium;size:100" json:"utm_medium,omitempty"`
	UTMCampaign    *string    `gorm:"column:utm_campaign;size:100" json:"utm_campaign,omitempty"`
	Metadata       JSONMap    `gorm:"column:metadata;type:jsonb" json:"metadata,omitempty"`
	LineUserID     *string    `gorm:"column:line_user_id;size:64;index" json:"line_user_id,omitempty"`
	LineFriendAt   *time.Time `gorm:"column:line_friend_at" json:"line_friend_at,omitempty"`
	LastActivityAt time.Time  `gorm:"column:last_activity_at;not null;index" json:"last_activity_at"`
	CreatedAt      time.Time  `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

func (Session) TableName() string {
	return "user_sessions"
}

func (s *Session) BeforeCreate(_ *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	return nil
}
