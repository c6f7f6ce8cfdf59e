package storage

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"banyg/internal/core"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// RunMigrations replays all pending schema migrations in version order. When
// a backup manager is provided and a database file already exists, a verified
// whole-file backup is taken before the first step runs.
//
// There is no destructive fallback: a failed or dirty migration surfaces as a
// fatal migration error and the store is left untouched for manual recovery.
func RunMigrations(dbPath string, backups *BackupManager) error {
	if backups != nil {
		if _, err := os.Stat(dbPath); err == nil {
			if _, err := backups.Create(dbPath); err != nil {
				return core.MigrationErr("backup before migration", err)
			}
		}
	}

	m, cleanup, err := newMigrator(dbPath)
	if err != nil {
		return core.MigrationErr("prepare migrations", err)
	}
	defer cleanup()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return core.MigrationErr("apply migrations", err)
	}
	return nil
}

// MigrateTo replays migrations up (or down) to an exact version. Used by
// tests to build populated stores at intermediate schema versions.
func MigrateTo(dbPath string, version uint) error {
	m, cleanup, err := newMigrator(dbPath)
	if err != nil {
		return core.MigrationErr("prepare migrations", err)
	}
	defer cleanup()

	if err := m.Migrate(version); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return core.MigrationErr(fmt.Sprintf("migrate to version %d", version), err)
	}
	return nil
}

// SchemaVersion reports the stored schema version and whether the store is
// dirty (a previous migration failed mid-step).
func SchemaVersion(dbPath string) (uint, bool, error) {
	m, cleanup, err := newMigrator(dbPath)
	if err != nil {
		return 0, false, core.MigrationErr("prepare migrations", err)
	}
	defer cleanup()

	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, core.MigrationErr("read schema version", err)
	}
	return version, dirty, nil
}

// newMigrator opens a dedicated connection for migrations so the main
// connection pool is never interfered with.
func newMigrator(dbPath string) (*migrate.Migrate, func(), error) {
	migrateDB, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, nil, fmt.Errorf("open migration database: %w", err)
	}

	driver, err := sqlite.WithInstance(migrateDB, &sqlite.Config{})
	if err != nil {
		migrateDB.Close()
		return nil, nil, fmt.Errorf("create sqlite driver: %w", err)
	}

	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		migrateDB.Close()
		return nil, nil, fmt.Errorf("create iofs source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		migrateDB.Close()
		return nil, nil, fmt.Errorf("create migrate instance: %w", err)
	}

	cleanup := func() {
		_, _ = m.Close()
		_ = migrateDB.Close()
	}
	return m, cleanup, nil
}
