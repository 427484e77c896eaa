package migrate

import (
	"context"
	"fmt"

	"github.com/angelmondragon/restaurant-backend/pkg/config"
	"github.com/angelmondragon/restaurant-backend/pkg/db"
	"github.com/angelmondragon/restaurant-backend/pkg/logger"
)

// MaybeRunDev applies the embedded migrations on start-up in dev when
// AutoMigrate is on. SQLite databases are built from the models by db.New.
func MaybeRunDev(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	if !cfg.App.IsDev() || !cfg.FeatureFlags.AutoMigrate || cfg.FeatureFlags.UseSQLite {
		return nil
	}
	sqlDB, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("extracting sql.DB: %w", err)
	}
	m, err := New(sqlDB, nil, logg)
	if err != nil {
		return err
	}
	return m.Up(logg.WithField(ctx, "env", cfg.App.Env))
}
