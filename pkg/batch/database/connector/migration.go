package connector

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/mysql"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"landscapesim/pkg/batch/config"
	"landscapesim/pkg/batch/util/exception"
	"landscapesim/pkg/batch/util/logger"
)

//go:embed migrations
var migrationFS embed.FS

const migrationsTable = "landscapesim_schema_migrations"

func migrationDir(dbType string) (string, error) {
	switch strings.ToLower(dbType) {
	case "postgres", "pgx":
		return "migrations/postgres", nil
	case "mysql":
		return "migrations/mysql", nil
	case "sqlite":
		return "migrations/sqlite", nil
	default:
		return "", exception.Newf(exception.KindConfiguration, "database_migration", "no migrations for database type: %s", dbType)
	}
}

// RunMigrations applies the embedded schema for cfg.Type.
func RunMigrations(cfg config.DatabaseConfig) error {
	if strings.EqualFold(cfg.Type, "memory") {
		logger.Debugf("memory store selected, skipping migrations")
		return nil
	}
	dir, err := migrationDir(cfg.Type)
	if err != nil {
		return err
	}
	sub, err := fs.Sub(migrationFS, dir)
	if err != nil {
		return exception.NewBatchError("database_migration", "embedded migrations missing", err, false, false)
	}
	src, err := iofs.New(sub, ".")
	if err != nil {
		return exception.NewBatchError("database_migration", "failed to read embedded migrations", err, false, false)
	}

	url := cfg.MigrationURL()
	sep := "?"
	if strings.Contains(url, "?") {
		sep = "&"
	}
	url += sep + "x-migrations-table=" + migrationsTable

	logger.Infof("running database migrations. type: %s", cfg.Type)
	m, err := migrate.NewWithSourceInstance("iofs", src, url)
	if err != nil {
		return exception.NewBatchError("database_migration", fmt.Sprintf("failed to create migrate instance for %s", cfg.Type), err, false, false)
	}
	defer m.Close()

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			logger.Infof("database schema is up to date")
			return nil
		}
		return exception.NewBatchError("database_migration", "failed to apply migrations", err, false, false)
	}
	logger.Infof("database migrations applied")
	return nil
}
