// Package risk classifies customers by how their past orders ended.
package risk

import (
	"context"
	"fmt"
	"math"

	"github.com/google/uuid"

	"github.com/angelmondragon/marketsettle/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketsettle/pkg/errors"
	"github.com/angelmondragon/marketsettle/pkg/logger"
)

// Query identifies a customer. At least one field must be set.
type Query struct {
	Email  string
	Phone  string
	UserID *uuid.UUID
}

// Profile summarises a customer's order history.
type Profile struct {
	Accounts    []uuid.UUID    `json:"accounts"`
	TotalOrders int            `json:"total_orders"`
	Delivered   int            `json:"delivered"`
	Cancelled   int            `json:"cancelled"`
	Returned    int            `json:"returned"`
	SuccessRate int            `json:"success_rate"`
	Tier        enums.RiskTier `json:"tier"`
	Blacklisted bool           `json:"blacklisted"`
}

// Blocked reports whether checkout must refuse this customer. An account
// flagged blacklisted always blocks; a low success rate only blocks when
// blockLowSuccessRate is set.
func (p Profile) Blocked(blockLowSuccessRate bool) bool {
	if p.Blacklisted {
		return true
	}
	return blockLowSuccessRate && p.Tier == enums.RiskTierBlacklisted
}

// Checker is what checkout depends on.
type Checker interface {
	Profile(ctx context.Context, q Query) (*Profile, error)
}

type Service struct {
	repo Repository
	logg *logger.Logger
}

func NewService(repo Repository, logg *logger.Logger) (*Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("risk repository required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &Service{repo: repo, logg: logg}, nil
}

func (s *Service) Profile(ctx context.Context, q Query) (*Profile, error) {
	email := normalizeEmail(q.Email)
	phones := PhoneVariants(q.Phone)
	if email == "" && len(phones) == 0 && (q.UserID == nil || *q.UserID == uuid.Nil) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "email, phone or user id required")
	}

	users, err := s.repo.FindUsers(ctx, q.UserID, email, phones)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load customer accounts")
	}
	profile := &Profile{Accounts: make([]uuid.UUID, 0, len(users))}
	userIDs := make([]uuid.UUID, 0, len(users)+1)
	for _, u := range users {
		profile.Accounts = append(profile.Accounts, u.ID)
		userIDs = append(userIDs, u.ID)
		if u.Blacklisted {
			profile.Blacklisted = true
		}
	}
	if q.UserID != nil && *q.UserID != uuid.Nil && len(users) == 0 {
		userIDs = append(userIDs, *q.UserID)
	}

	orders, err := s.repo.FindOrders(ctx, userIDs, email, phones)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order history")
	}
	seen := make(map[uuid.UUID]struct{}, len(orders))
	for _, o := range orders {
		if _, dup := seen[o.ID]; dup {
			continue
		}
		seen[o.ID] = struct{}{}
		profile.TotalOrders++
		switch o.OrderStatus {
		case enums.OrderStatusDelivered:
			profile.Delivered++
		case enums.OrderStatusCancelled:
			profile.Cancelled++
		case enums.OrderStatusReturned:
			profile.Returned++
		}
	}

	profile.SuccessRate = SuccessRate(profile.Delivered, profile.TotalOrders)
	profile.Tier = Classify(profile.TotalOrders, profile.SuccessRate, profile.Blacklisted)

	s.logg.Debug(s.logg.WithFields(ctx, map[string]any{
		"total_orders": profile.TotalOrders,
		"success_rate": profile.SuccessRate,
		"tier":         profile.Tier,
	}), "risk profile computed")
	return profile, nil
}

// SuccessRate is delivered/total as a rounded percentage; zero orders gives 0.
func SuccessRate(delivered, total int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(float64(delivered) * 100 / float64(total)))
}

func Classify(totalOrders, successRate int, blacklisted bool) enums.RiskTier {
	switch {
	case blacklisted:
		return enums.RiskTierBlacklisted
	case totalOrders == 0:
		return enums.RiskTierNew
	case successRate >= 80:
		return enums.RiskTierTrusted
	case successRate >= 60:
		return enums.RiskTierMedium
	case successRate >= 40:
		return enums.RiskTierHigh
	default:
		return enums.RiskTierBlacklisted
	}
}
