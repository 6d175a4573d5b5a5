package catalog

import (
	"context"

	"github.com/google/uuid"

	"github.com/angelmondragon/marketsettle/pkg/db/models"
)

// BatchCache memoises vendor and category lookups for one batch of lines.
// It is not safe for concurrent use.
type BatchCache struct {
	repo       Repository
	vendors    map[uuid.UUID]*models.Vendor
	categories map[uuid.UUID]*models.Category
}

func NewBatchCache(repo Repository) *BatchCache {
	return &BatchCache{
		repo:       repo,
		vendors:    map[uuid.UUID]*models.Vendor{},
		categories: map[uuid.UUID]*models.Category{},
	}
}

// Vendor returns the vendor for id, or nil when id is nil.
func (c *BatchCache) Vendor(ctx context.Context, id *uuid.UUID) (*models.Vendor, error) {
	if id == nil || *id == uuid.Nil {
		return nil, nil
	}
	if v, ok := c.vendors[*id]; ok {
		return v, nil
	}
	v, err := c.repo.FindVendor(ctx, *id)
	if err != nil {
		return nil, err
	}
	c.vendors[*id] = v
	return v, nil
}

// Category returns the category for id, or nil when id is nil or the
// category no longer exists.
func (c *BatchCache) Category(ctx context.Context, id *uuid.UUID) (*models.Category, error) {
	if id == nil || *id == uuid.Nil {
		return nil, nil
	}
	if cat, ok := c.categories[*id]; ok {
		return cat, nil
	}
	cat, err := c.repo.FindCategory(ctx, *id)
	if err != nil {
		if isNotFound(err) {
			c.categories[*id] = nil
			return nil, nil
		}
		return nil, err
	}
	c.categories[*id] = cat
	return cat, nil
}
