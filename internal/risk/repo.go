package risk

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketsettle/pkg/db/models"
)

// Repository reads the accounts and order history a profile is built from.
type Repository interface {
	FindUsers(ctx context.Context, userID *uuid.UUID, email string, phones []string) ([]models.User, error)
	FindOrders(ctx context.Context, userIDs []uuid.UUID, email string, phones []string) ([]models.Order, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) FindUsers(ctx context.Context, userID *uuid.UUID, email string, phones []string) ([]models.User, error) {
	var conds []matcher
	if userID != nil && *userID != uuid.Nil {
		conds = append(conds, matcher{"id = ?", *userID})
	}
	if email != "" {
		conds = append(conds, matcher{"LOWER(email) = ?", email})
	}
	if len(phones) > 0 {
		conds = append(conds, matcher{"phone IN ?", phones})
	}
	var rows []models.User
	if len(conds) == 0 {
		return rows, nil
	}
	err := anyOf(r.db.WithContext(ctx).Model(&models.User{}), conds).Find(&rows).Error
	return rows, err
}

// FindOrders loads only the columns a profile needs.
func (r *repository) FindOrders(ctx context.Context, userIDs []uuid.UUID, email string, phones []string) ([]models.Order, error) {
	var conds []matcher
	if len(userIDs) > 0 {
		conds = append(conds, matcher{"user_id IN ?", userIDs})
	}
	if email != "" {
		conds = append(conds, matcher{"LOWER(customer_email) = ?", email})
	}
	if len(phones) > 0 {
		conds = append(conds, matcher{"customer_phone IN ?", phones})
	}
	var rows []models.Order
	if len(conds) == 0 {
		return rows, nil
	}
	q := r.db.WithContext(ctx).Model(&models.Order{}).Select("id", "order_status")
	err := anyOf(q, conds).Find(&rows).Error
	return rows, err
}

type matcher struct {
	clause string
	arg    any
}

func anyOf(q *gorm.DB, conds []matcher) *gorm.DB {
	q = q.Where(conds[0].clause, conds[0].arg)
	for _, c := range conds[1:] {
		q = q.Or(c.clause, c.arg)
	}
	return q
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
