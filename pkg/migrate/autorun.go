package migrate

import (
	"context"
	"fmt"

	"github.com/angelmondragon/marketplace-backend/pkg/config"
	"github.com/angelmondragon/marketplace-backend/pkg/db"
	"github.com/angelmondragon/marketplace-backend/pkg/logger"
)

// MaybeRunDev applies the embedded schema on startup in dev when
// MARKETPLACE_AUTO_MIGRATE is set. SQLite databases are left to gorm.
func MaybeRunDev(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	if !cfg.App.IsDev() || !cfg.FeatureFlags.AutoMigrate {
		return nil
	}
	if cfg.DB.Driver == "sqlite" || cfg.FeatureFlags.UseSQLite {
		logg.Warn(ctx, "auto-migrate skipped: embedded schema targets postgres")
		return nil
	}

	sqlDB, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("sql handle: %w", err)
	}
	migrator, err := New(sqlDB, nil)
	if err != nil {
		return err
	}
	applied, err := migrator.Up(ctx)
	if err != nil {
		return err
	}
	for _, step := range applied {
		logg.Info(logg.WithFields(ctx, map[string]any{
			"version":     step.Version,
			"file":        step.File,
			"duration_ms": step.Duration.Milliseconds(),
		}), "migration applied")
	}
	logg.Info(logg.WithField(ctx, "applied", len(applied)), "schema up to date")
	return nil
}
