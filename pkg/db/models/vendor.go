package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketsettle/pkg/enums"
)

// Vendor is a seller on the marketplace.
type Vendor struct {
	ID           uuid.UUID          `gorm:"column:id;type:uuid;primaryKey"`
	Name         string             `gorm:"column:name;not null"`
	Status       enums.VendorStatus `gorm:"column:status;type:text;not null;default:'pending'"`
	VacationMode bool               `gorm:"column:vacation_mode;not null;default:false"`
	Commission   CommissionRule     `gorm:"embedded;embeddedPrefix:commission_"`
	CreatedAt    time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}

func (v *Vendor) BeforeCreate(*gorm.DB) error {
	assignID(&v.ID)
	return nil
}

// Sellable reports whether the vendor may receive new orders.
func (v *Vendor) Sellable() bool {
	return v != nil && v.Status == enums.VendorStatusApproved && !v.VacationMode
}
