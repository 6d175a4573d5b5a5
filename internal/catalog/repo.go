// Package catalog reads the product, variation, vendor and category records
// that order building and renewals price against.
package catalog

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketsettle/pkg/db/models"
	pkgerrors "github.com/angelmondragon/marketsettle/pkg/errors"
)

// Repository exposes catalog lookups. Missing rows surface as NOT_FOUND.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindProduct(ctx context.Context, id uuid.UUID) (*models.Product, error)
	FindVariation(ctx context.Context, productID, variationID uuid.UUID) (*models.ProductVariation, error)
	FindVendor(ctx context.Context, id uuid.UUID) (*models.Vendor, error)
	FindCategory(ctx context.Context, id uuid.UUID) (*models.Category, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindProduct(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	var product models.Product
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&product).Error; err != nil {
		return nil, notFound(err, "product not found")
	}
	return &product, nil
}

func (r *repository) FindVariation(ctx context.Context, productID, variationID uuid.UUID) (*models.ProductVariation, error) {
	var variation models.ProductVariation
	err := r.db.WithContext(ctx).
		Where("id = ? AND product_id = ?", variationID, productID).
		First(&variation).Error
	if err != nil {
		return nil, notFound(err, "variation not found")
	}
	return &variation, nil
}

func (r *repository) FindVendor(ctx context.Context, id uuid.UUID) (*models.Vendor, error) {
	var vendor models.Vendor
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&vendor).Error; err != nil {
		return nil, notFound(err, "vendor not found")
	}
	return &vendor, nil
}

func (r *repository) FindCategory(ctx context.Context, id uuid.UUID) (*models.Category, error) {
	var category models.Category
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&category).Error; err != nil {
		return nil, notFound(err, "category not found")
	}
	return &category, nil
}

func notFound(err error, msg string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, msg)
	}
	return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "catalog lookup failed")
}

func isNotFound(err error) bool {
	return pkgerrors.Is(err, pkgerrors.CodeNotFound)
}
