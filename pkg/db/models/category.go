package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Category groups products and may carry a commission rule.
type Category struct {
	ID         uuid.UUID      `gorm:"column:id;type:uuid;primaryKey"`
	Name       string         `gorm:"column:name;not null"`
	Commission CommissionRule `gorm:"embedded;embeddedPrefix:commission_"`
	CreatedAt  time.Time      `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time      `gorm:"column:updated_at;autoUpdateTime"`
}

func (c *Category) BeforeCreate(*gorm.DB) error {
	assignID(&c.ID)
	return nil
}
