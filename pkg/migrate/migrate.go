package migrate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	"github.com/pressly/goose/v3"

	"github.com/angelmondragon/marketplace-backend/pkg/db"
	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
)

// DefaultDir is relative to the repository root, where every binary is started.
const DefaultDir = "pkg/migrate/migrations"

const dialect = "postgres"

func prepare(sqlDB *sql.DB, dir string) error {
	if sqlDB == nil {
		return errors.New("sql db is required")
	}
	if dir == "" {
		return errors.New("migrations dir is required")
	}
	return goose.SetDialect(dialect)
}

// Run executes a plain goose command (up, down, status, redo...) against dir.
func Run(ctx context.Context, sqlDB *sql.DB, dir string, command string, args ...string) error {
	if err := prepare(sqlDB, dir); err != nil {
		return err
	}
	if err := goose.RunContext(ctx, command, sqlDB, dir, args...); err != nil {
		return fmt.Errorf("goose %s: %w", command, err)
	}
	return nil
}

// MigrateToVersion moves the schema up or down until it sits at targetVersion.
func MigrateToVersion(ctx context.Context, sqlDB *sql.DB, dir string, targetVersion string) error {
	target, err := ParseVersion(targetVersion)
	if err != nil {
		return err
	}
	if err := prepare(sqlDB, dir); err != nil {
		return err
	}
	current, err := goose.GetDBVersionContext(ctx, sqlDB)
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	if current < target {
		err = goose.UpToContext(ctx, sqlDB, dir, target)
	} else if current > target {
		err = goose.DownToContext(ctx, sqlDB, dir, target)
	}
	if err != nil {
		return fmt.Errorf("migrate %d -> %d: %w", current, target, err)
	}
	return nil
}

// ParseVersion accepts the 14 digit timestamp prefix used in migration filenames.
func ParseVersion(value string) (int64, error) {
	if len(value) != len(versionLayout) {
		return 0, fmt.Errorf("version %q must be YYYYMMDDHHMMSS", value)
	}
	v, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("version %q must be YYYYMMDDHHMMSS: %w", value, err)
	}
	return v, nil
}

// AutoMigrateModels builds the schema straight from the gorm models. It is the
// migration path for local sqlite databases, which the SQL files do not target.
func AutoMigrateModels(ctx context.Context, client *db.Client) error {
	if err := client.DB().WithContext(ctx).AutoMigrate(models.All()...); err != nil {
		return fmt.Errorf("auto-migrating models: %w", err)
	}
	return nil
}
