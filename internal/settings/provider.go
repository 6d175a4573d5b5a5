// Package settings supplies the admin-wide commission and courier
// configuration. Values are read fresh on every call.
package settings

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketsettle/pkg/config"
	"github.com/angelmondragon/marketsettle/pkg/db/models"
	"github.com/angelmondragon/marketsettle/pkg/enums"
)

// DefaultCommissionValue is the percentage applied when the global rule is misconfigured.
const DefaultCommissionValue = 10

// Provider is consumed by the commission resolver and the courier adapter.
type Provider interface {
	GlobalCommission(ctx context.Context) (*models.CommissionRule, error)
	Courier(ctx context.Context) (config.CourierConfig, error)
}

// NormalizeGlobal returns a copy of rule that is never inherit.
func NormalizeGlobal(rule *models.CommissionRule) *models.CommissionRule {
	if rule == nil || !rule.Type.IsValid() || rule.Type == enums.CommissionTypeInherit {
		return &models.CommissionRule{
			Type:        enums.CommissionTypePercentage,
			Value:       decimal.NewFromInt(DefaultCommissionValue),
			FixedAmount: decimal.Zero,
		}
	}
	out := *rule
	return &out
}

// FromConfig converts the env-provided fallback rule.
func FromConfig(cfg config.CommissionConfig) *models.CommissionRule {
	return NormalizeGlobal(&models.CommissionRule{
		Type:        enums.CommissionType(cfg.Type),
		Value:       decimal.NewFromFloat(cfg.Value),
		FixedAmount: decimal.NewFromFloat(cfg.FixedAmount),
	})
}

type dbProvider struct {
	db         *gorm.DB
	commission config.CommissionConfig
	courier    config.CourierConfig
}

// NewDBProvider reads the marketplace_settings singleton row. Missing rows
// and blank columns fall back to the env configuration.
func NewDBProvider(db *gorm.DB, commission config.CommissionConfig, courier config.CourierConfig) (Provider, error) {
	if db == nil {
		return nil, fmt.Errorf("db required")
	}
	return &dbProvider{db: db, commission: commission, courier: courier}, nil
}

func (p *dbProvider) load(ctx context.Context) (*models.MarketplaceSettings, error) {
	var row models.MarketplaceSettings
	err := p.db.WithContext(ctx).Where("id = ?", models.MarketplaceSettingsID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load marketplace settings: %w", err)
	}
	return &row, nil
}

func (p *dbProvider) GlobalCommission(ctx context.Context) (*models.CommissionRule, error) {
	row, err := p.load(ctx)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return FromConfig(p.commission), nil
	}
	return NormalizeGlobal(&row.Commission), nil
}

func (p *dbProvider) Courier(ctx context.Context) (config.CourierConfig, error) {
	row, err := p.load(ctx)
	if err != nil {
		return config.CourierConfig{}, err
	}
	return mergeCourier(p.courier, row), nil
}

func mergeCourier(base config.CourierConfig, row *models.MarketplaceSettings) config.CourierConfig {
	if row == nil {
		return base
	}
	out := base
	stored := row.Courier
	if stored.Enabled != nil {
		out.Enabled = *stored.Enabled
	}
	pick := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	pick(&out.Provider, stored.Provider)
	pick(&out.BaseURL, stored.BaseURL)
	pick(&out.ConsignmentPath, stored.ConsignmentPath)
	pick(&out.TrackingPath, stored.TrackingPath)
	pick(&out.APIKey, stored.APIKey)
	pick(&out.SecretKey, stored.SecretKey)
	pick(&out.BearerToken, stored.BearerToken)
	if stored.TimeoutSeconds != 0 {
		out.TimeoutSeconds = stored.TimeoutSeconds
	}
	return out
}

// Static is a fixed Provider for tests and single-tenant deployments.
type Static struct {
	Commission    *models.CommissionRule
	CourierConfig config.CourierConfig
}

func (s Static) GlobalCommission(context.Context) (*models.CommissionRule, error) {
	if s.Commission == nil {
		return nil, nil
	}
	rule := *s.Commission
	return &rule, nil
}

func (s Static) Courier(context.Context) (config.CourierConfig, error) {
	return s.CourierConfig, nil
}
