package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Conversion types recorded by the webhook path.
const (
	ConversionTypeLineFriend = "line_friend"
)

// Conversion records that a LINE identity became attributable to an
// agency/tracking-link/service. The unique index on
// (tracking_link_id, line_user_id, conversion_type) is what makes
// line_friend conversions idempotent under concurrent webhooks; the
// application-level existence check is only a fast path.
type Conversion struct {
	ID              string    `gorm:"primaryKey;column:id;type:uuid" json:"id"`
	AgencyID        string    `gorm:"column:agency_id;type:uuid;not null;index" json:"agency_id"`
	TrackingLinkID  *string   `gorm:"column:tracking_link_id;type:uuid;index;uniqueIndex:uk_conversion_link_user_type" json:"tracking_link_id,omitempty"`
	VisitID         *string   `gorm:"column:visit_id;type:uuid" json:"visit_id,omitempty"`
	SessionID       *string   `gorm:"column:session_id;type:uuid" json:"session_id,omitempty"`
	ServiceID       *string   `gorm:"column:service_id;type:uuid" json:"service_id,omitempty"`
	LineUserID      string    `gorm:"column:line_user_id;size:64;not null;uniqueIndex:uk_conversion_link_user_type" json:"line_user_id"`
	ConversionType  string    `gorm:"column:conversion_type;size:30;not null;uniqueIndex:uk_conversion_link_user_type" json:"conversion_type"`
	ConversionValue float64   `gorm:"column:conversion_value;not null;default:0" json:"conversion_value"`
	Metadata        JSONMap   `gorm:"column:metadata;type:jsonb" json:"metadata,omitempty"`
	CreatedAt       time.Time `gorm:"column:created_at;autoCreateTime;index" json:"created_at"`
}

func (Conversion) TableName() string {
	return "agency_conversions"
}

func (c *Conversion) BeforeCreate(_ *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	return nil
}
