package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Visit is one inbound click on a tracking link. Visits form an append-only
// ledger: a row is created at redirect time and mutated exactly once, by the
// attribution matcher, to set LineUserID. It is never overwritten after that
// so a user cannot drift between agencies.
type Visit struct {
	ID             string    `gorm:"primaryKey;column:id;type:uuid" json:"id"`
	TrackingLinkID *string   `gorm:"column:tracking_link_id;type:uuid;index" json:"tracking_link_id,omitempty"`
	AgencyID       *string   `gorm:"column:agency_id;type:uuid;index" json:"agency_id,omitempty"`
	ServiceID      *string   `gorm:"column:service_id;type:uuid" json:"service_id,omitempty"`
	VisitorIP      *string   `gorm:"column:visitor_ip;size:64" json:"visitor_ip,omitempty"`
	UserAgent      *string   `gorm:"column:user_agent;type:text" json:"user_agent,omitempty"`
	Referrer       *string   `gorm:"column:referrer;size:500" json:"referrer,omitempty"`
	DeviceType     *string   `gorm:"column:device_type;size:20" json:"device_type,omitempty"`
	Browser        *string   `gorm:"column:browser;size:50" json:"browser,omitempty"`
	OS             *string   `gorm:"column:os;size:50" json:"os,omitempty"`
	SessionID      *string   `gorm:"column:session_id;size:40;index" json:"session_id,omitempty"`
	LineUserID     *string   `gorm:"column:line_user_id;size:64;index" json:"line_user_id,omitempty"`
	Metadata       JSONMap   `gorm:"column:metadata;type:jsonb" json:"metadata,omitempty"`
	CreatedAt      time.Time `gorm:"column:created_at;autoCreateTime;index" json:"created_at"`
}

func (Visit) TableName() string {
	return "agency_tracking_visits"
}

func (v *Visit) BeforeCreate(_ *gorm.DB) error {
	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	return nil
}

// BotSignals exposes the fields the bot detector scores.
func (v *Visit) BotSignals() (string, string) {
	return strOrEmpty(v.VisitorIP), strOrEmpty(v.UserAgent)
}

func strOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
