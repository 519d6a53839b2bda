package migration

import (
	"go.uber.org/fx"
	"gorm.io/gorm"

	"github.com/duetrack/duetrack/internal/config"
	"github.com/duetrack/duetrack/internal/seed"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config) error {
		if cfg.DBType == "postgres" {
			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			if err := RunMigrations(sqlDB); err != nil {
				return err
			}
		} else {
			// Non-postgres targets (sqlite local dev) build the schema
			// from the models instead of the versioned migrations.
			if err := AutoMigrate(conn); err != nil {
				return err
			}
		}

		return seed.EnsureDefaultCompany(conn, cfg.Automation)
	}),
)
