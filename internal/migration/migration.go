package migration

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/toddfishman/meetini/internal/invitation/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed migrations/*.sql
var embeddedMigrations embed.FS

const migrationsDir = "migrations"

// RunMigrations brings a postgres schema up to the latest embedded version.
// The migrator is not closed since that would close the shared *sql.DB.
func RunMigrations(db *sql.DB, log *zap.Logger) error {
	if db == nil {
		return errors.New("migration database handle is required")
	}

	sub, err := fs.Sub(embeddedMigrations, migrationsDir)
	if err != nil {
		return fmt.Errorf("open migrations: %w", err)
	}
	source, err := iofs.New(sub, ".")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create migration driver: %w", err)
	}
	migrator, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	migrator.Log = migrateLogger{log: log}

	switch err := migrator.Up(); {
	case errors.Is(err, migrate.ErrNoChange):
	case err != nil:
		return fmt.Errorf("apply migrations: %w", err)
	}

	version, dirty, err := migrator.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("read schema version: %w", err)
	}
	log.Info("migration.done", zap.Uint("version", version), zap.Bool("dirty", dirty))
	return nil
}

// migrateLogger routes golang-migrate progress lines to zap at debug level.
type migrateLogger struct {
	log *zap.Logger
}

func (l migrateLogger) Printf(format string, v ...interface{}) {
	l.log.Debug(strings.TrimSpace(fmt.Sprintf(format, v...)))
}

func (l migrateLogger) Verbose() bool {
	return l.log.Core().Enabled(zap.DebugLevel)
}

// EnsureSchema creates the tables through gorm for dialects without SQL
// migrations (sqlite, mysql). It is also what tests use.
func EnsureSchema(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&domain.Invitation{},
		&domain.Preferences{},
		&domain.Participant{},
		&domain.Reminder{},
	); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}

	switch db.Dialector.Name() {
	case "sqlite", "postgres":
		if err := db.Exec(
			`CREATE UNIQUE INDEX IF NOT EXISTS idx_reminders_unsent_type
			 ON reminders (invitation_id, type) WHERE sent = false`,
		).Error; err != nil {
			return fmt.Errorf("create unsent reminder index: %w", err)
		}
	}
	return nil
}
