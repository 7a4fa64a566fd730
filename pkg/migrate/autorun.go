package migrate

import (
	"context"
	"fmt"

	"github.com/angelmondragon/marketplace-backend/pkg/config"
	"github.com/angelmondragon/marketplace-backend/pkg/db"
	"github.com/angelmondragon/marketplace-backend/pkg/logger"
)

// MaybeRunDev brings the schema up to date at startup, but only in dev with
// MARKET_AUTO_MIGRATE on.
func MaybeRunDev(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	if !cfg.App.IsDev() || !cfg.FeatureFlags.AutoMigrate {
		return nil
	}
	ctx = logg.WithFields(ctx, map[string]any{"driver": cfg.DB.Driver, "dir": DefaultDir})

	if cfg.DB.IsSQLite() {
		logg.Info(ctx, "dev auto-migrate from models")
		return AutoMigrateModels(ctx, client)
	}

	sqlDB, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("extracting sql.DB: %w", err)
	}
	logg.Info(ctx, "dev auto-migrate with goose")
	if err := Run(ctx, sqlDB, DefaultDir, "up"); err != nil {
		return err
	}
	logg.Info(ctx, "schema up to date")
	return nil
}
