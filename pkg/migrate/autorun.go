package migrate

import (
	"context"
	"fmt"

	"github.com/angelmondragon/marketsettle/pkg/config"
	"github.com/angelmondragon/marketsettle/pkg/db"
	"github.com/angelmondragon/marketsettle/pkg/logger"
)

// MaybeRunDev applies pending migrations on boot, only in dev with the
// auto-migrate flag on.
func MaybeRunDev(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	if !cfg.App.IsDev() || !cfg.FeatureFlags.AutoMigrate {
		return nil
	}
	sqlDB, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("extracting sql.DB: %w", err)
	}
	runner, err := NewRunner(sqlDB, logg)
	if err != nil {
		return err
	}
	ctx = logg.WithField(ctx, "env", cfg.App.Env)
	logg.Info(ctx, "auto-migrating dev database")
	return runner.Up(ctx)
}
