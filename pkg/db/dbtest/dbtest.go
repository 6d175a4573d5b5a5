// Package dbtest opens isolated in-memory SQLite databases carrying the full
// marketsettle schema for package tests.
package dbtest

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketsettle/pkg/db"
	"github.com/angelmondragon/marketsettle/pkg/db/models"
)

// Models lists every entity migrated by Open.
func Models() []any {
	return []any{
		&models.MarketplaceSettings{},
		&models.Vendor{},
		&models.Category{},
		&models.Product{},
		&models.ProductVariation{},
		&models.User{},
		&models.Order{},
		&models.OrderItem{},
		&models.Subscription{},
		&models.OutboxEvent{},
	}
}

// Open returns a fresh database unique to the calling test.
func Open(t testing.TB) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:settle_%s?mode=memory&cache=shared", uuid.NewString())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{SkipDefaultTransaction: true})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := conn.AutoMigrate(Models()...); err != nil {
		t.Fatalf("migrate sqlite: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := conn.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return conn
}

// Client wraps Open in a db.Client.
func Client(t testing.TB) *db.Client {
	t.Helper()
	return db.FromConn(Open(t))
}
