package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Agency is a partner organization that distributes tracking links and earns
// commissions on the conversions attributed to them.
type Agency struct {
	ID             string    `gorm:"primaryKey;column:id;type:uuid" json:"id"`
	Name           string    `gorm:"column:name;size:200;not null" json:"name"`
	Email          string    `gorm:"column:email;size:255;uniqueIndex;not null" json:"email"`
	PasswordHash   string    `gorm:"column:password_hash;size:100;not null" json:"-"`
	CommissionRate float64   `gorm:"column:commission_rate;default:0" json:"commission_rate"`
	IsActive       bool      `gorm:"column:is_active;not null;default:true" json:"is_active"`
	CreatedAt      time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (Agency) TableName() string {
	return "agencies"
}

func (a *Agency) BeforeCreate(_ *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return nil
}
