package migrate_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/marketsettle/pkg/migrate"
)

func TestMigrationsDirIsValid(t *testing.T) {
	require.NoError(t, migrate.ValidateDir("migrations"))
}

func TestMigrationsCarrySettlementConstraints(t *testing.T) {
	content := readMigration(t, "*_create_order_tables.sql") + readMigration(t, "*_create_subscriptions_and_outbox.sql")

	checks := []string{
		"CREATE TABLE IF NOT EXISTS orders",
		"CREATE UNIQUE INDEX IF NOT EXISTS ux_orders_order_number",
		"chk_order_items_commission_bounds",
		"CREATE UNIQUE INDEX IF NOT EXISTS ux_subscriptions_source_line ON subscriptions (source_order_id, source_line_key)",
		"chk_subscriptions_owner",
		"CREATE TABLE IF NOT EXISTS outbox_events",
	}
	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestCreateSQLMigration(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2026, 3, 5, 9, 30, 0, 0, time.UTC)
	path, err := migrate.CreateSQLMigration(dir, "Add Courier Index!", now)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "20260305093000_add_courier_index.sql"), path)
	require.NoError(t, migrate.ValidateDir(dir))

	_, err = migrate.CreateSQLMigration(dir, "add courier index", now)
	require.Error(t, err)
	_, err = migrate.CreateSQLMigration(dir, "!!!", now)
	require.Error(t, err)
}

func TestValidateDirRejectsBadNames(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "001_bad.sql"), []byte("-- +goose Up\n-- +goose Down\n"), 0o644))
	require.Error(t, migrate.ValidateDir(dir))
}

func readMigration(t *testing.T, pattern string) string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join("migrations", pattern))
	require.NoError(t, err)
	require.NotEmpty(t, matches, "no migration matching %s", pattern)
	data, err := os.ReadFile(matches[0])
	require.NoError(t, err)
	return string(data)
}
