package models

import (
	"time"

	"gorm.io/gorm"
)

// MarketplaceSettingsID is the primary key of the singleton settings row.
const MarketplaceSettingsID = 1

// MarketplaceSettings is the admin-wide configuration row.
type MarketplaceSettings struct {
	ID         int            `gorm:"column:id;primaryKey;autoIncrement:false"`
	Commission CommissionRule `gorm:"embedded;embeddedPrefix:commission_"`
	Courier    CourierConfig  `gorm:"embedded;embeddedPrefix:courier_"`
	UpdatedAt  time.Time      `gorm:"column:updated_at;autoUpdateTime"`
}

func (MarketplaceSettings) TableName() string { return "marketplace_settings" }

func (s *MarketplaceSettings) BeforeCreate(*gorm.DB) error {
	if s.ID == 0 {
		s.ID = MarketplaceSettingsID
	}
	return nil
}

// CourierConfig is the stored courier integration configuration. A nil
// Enabled defers to the environment; a set value overrides it either way.
type CourierConfig struct {
	Enabled         *bool  `gorm:"column:enabled"`
	Provider        string `gorm:"column:provider"`
	BaseURL         string `gorm:"column:base_url"`
	ConsignmentPath string `gorm:"column:consignment_path"`
	TrackingPath    string `gorm:"column:tracking_path"`
	APIKey          string `gorm:"column:api_key"`
	SecretKey       string `gorm:"column:secret_key"`
	BearerToken     string `gorm:"column:bearer_token"`
	TimeoutSeconds  int    `gorm:"column:timeout_seconds;not null;default:12"`
}
