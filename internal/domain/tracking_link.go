package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// TrackingLink is an agency-specific shortened URL that redirects visitors
// to a service's LINE official account, carrying attribution metadata.
// VisitCount and ConversionCount are display counters; commission amounts
// are computed from the Conversion ledger, never from these.
type TrackingLink struct {
	ID              string    `gorm:"primaryKey;column:id;type:uuid" json:"id"`
	AgencyID        string    `gorm:"column:agency_id;type:uuid;not null;index" json:"agency_id"`
	ServiceID       *string   `gorm:"column:service_id;type:uuid;index" json:"service_id,omitempty"`
	Name            string    `gorm:"column:name;size:200" json:"name"`
	TrackingCode    string    `gorm:"column:tracking_code;size:32;uniqueIndex;not null" json:"tracking_code"`
	DestinationURL  *string   `gorm:"column:destination_url;size:500" json:"destination_url,omitempty"`
	UTMSource       *string   `gorm:"column:utm_source;size:100" json:"utm_source,omitempty"`
	UTMMedium       *string   `gorm:"column:utm_medium;size:100" json:"utm_medium,omitempty"`
	UTMCampaign     *string   `gorm:"column:utm_campaign;size:100" json:"utm_campaign,omitempty"`
	UTMTerm         *string   `gorm:"column:utm_term;size:100" json:"utm_term,omitempty"`
	UTMContent      *string   `gorm:"column:utm_content;size:100" json:"utm_content,omitempty"`
	VisitCount      int64     `gorm:"column:visit_count;not null;default:0" json:"visit_count"`
	ConversionCount int64     `gorm:"column:conversion_count;not null;default:0" json:"conversion_count"`
	IsActive        bool      `gorm:"column:is_active;not null;default:true" json:"is_active"`
	CreatedAt       time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`

	// Relationships
	Agency  *Agency  `gorm:"foreignKey:AgencyID" json:"agency,omitempty"`
	Service *Service `gorm:"foreignKey:ServiceID" json:"service,omitempty"`
}

func (TrackingLink) TableName() string {
	return "agency_tracking_links"
}

func (l *TrackingLink) BeforeCreate(_ *gorm.DB) error {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	return nil
}

// Destination returns the redirect target: the service's LINE official URL
// when configured, otherwise the link's own destination. Empty means the
// link is misconfigured and the redirect must fail hard.
func (l *TrackingLink) Destination() string {
	if l.Service != nil && l.Service.LineOfficialURL != nil && *l.Service.LineOfficialURL != "" {
		return *l.Service.LineOfficialURL
	}
	if l.DestinationURL != nil {
		return *l.DestinationURL
	}
	return ""
}

// StaticUTM returns the link-level UTM fields as a map, skipping unset ones.
func (l *TrackingLink) StaticUTM() map[string]string {
	utm := make(map[string]string)
	set := func(key string, val *string) {
		if val != nil && *val != "" {
			utm[key] = *val
		}
	}
	set("utm_source", l.UTMSource)
	set("utm_medium", l.UTMMedium)
	set("utm_campaign", l.UTMCampaign)
	set("utm_term", l.UTMTerm)
	set("utm_content", l.UTMContent)
	return utm
}
