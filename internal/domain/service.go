package domain

import (
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Service is a product with its own LINE official account. Tracking links
// point at one service; attribution and conversions are scoped to it.
type Service struct {
	ID              string     `gorm:"primaryKey;column:id;type:uuid" json:"id"`
	Code            string     `gorm:"column:code;size:50;uniqueIndex;not null" json:"code"`
	Name            string     `gorm:"column:name;size:200;not null" json:"name"`
	LineOfficialURL *string    `gorm:"column:line_official_url;size:500" json:"line_official_url,omitempty"`
	Domain          *string    `gorm:"column:domain;size:255" json:"domain,omitempty"`
	PenaltyDomains  StringList `gorm:"column:penalty_domains;type:jsonb" json:"penalty_domains,omitempty"`
	IsActive        bool       `gorm:"column:is_active;not null;default:true" json:"is_active"`
	CreatedAt       time.Time  `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

func (Service) TableName() string {
	return "services"
}

func (s *Service) BeforeCreate(_ *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	return nil
}

// IsOfficialReferrer reports whether the referrer points at one of the
// service's own marketing domains. Organic traffic from those pages must not
// be credited to an agency.
func (s *Service) IsOfficialReferrer(referrer string) bool {
	if s == nil || referrer == "" {
		return false
	}

	host := referrer
	if u, err := url.Parse(referrer); err == nil && u.Host != "" {
		host = u.Host
	}
	host = strings.ToLower(host)

	for _, d := range s.PenaltyDomains {
		d = strings.ToLower(d)
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}
