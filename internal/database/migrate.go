package database

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

// RunMigrations brings the schema up to the latest version. It runs at
// startup before the gate takes traffic, so a failed migration aborts the
// process instead of serving against half-applied tables.
func RunMigrations(dsn, migrationsPath string) error {
	m, err := migrate.New("file://"+migrationsPath, dsn)
	if err != nil {
		return fmt.Errorf("creating migrator: %w", err)
	}
	defer m.Close()

	err = m.Up()
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("running migrations: %w", err)
	}

	ver, dirty, _ := m.Version()
	if errors.Is(err, migrate.ErrNoChange) {
		slog.Info("database schema up to date", "version", ver)
	} else {
		slog.Info("database schema migrated", "version", ver, "dirty", dirty)
	}
	return nil
}
