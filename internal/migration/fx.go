package migration

import (
	"fmt"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Module applies the schema before any other component starts. Postgres uses
// the versioned SQL files; other dialects are auto-migrated.
var Module = fx.Module("migrations",
	fx.Invoke(apply),
)

func apply(conn *gorm.DB, log *zap.Logger) error {
	log = log.Named("migration").With(zap.String("dialect", conn.Dialector.Name()))
	if conn.Dialector.Name() != "postgres" {
		log.Info("migration.auto")
		return EnsureSchema(conn)
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return fmt.Errorf("migration connection: %w", err)
	}
	return RunMigrations(sqlDB, log)
}
