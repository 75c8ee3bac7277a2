package database

import (
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

const migrationsTable = "schema_migrations"

//go:embed migrations/*.sql
var migrationFS embed.FS

// ErrDirtySchema means a previous migration stopped halfway. The schema
// must be repaired by hand before the service will start.
var ErrDirtySchema = errors.New("database schema is dirty")

type MigrationResult struct {
	From uint
	To   uint
}

func (r MigrationResult) Applied() bool {
	return r.To != r.From
}

func newMigrator(db *DB) (*migrate.Migrate, error) {
	driver, err := sqlite.WithInstance(db.DB, &sqlite.Config{
		MigrationsTable: migrationsTable,
		DatabaseName:    db.path,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create sqlite migration driver: %w", err)
	}

	source, err := iofs.New(migrationFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to read embedded migrations: %w", err)
	}

	return migrate.NewWithInstance("iofs", source, "sqlite", driver)
}

// schemaVersion reports 0 for a database that has never been migrated.
func schemaVersion(m *migrate.Migrate) (uint, bool, error) {
	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return version, dirty, err
}

// RunMigrations brings the schema up to date. It refuses to touch a
// database left dirty by an interrupted migration.
func RunMigrations(db *DB) (MigrationResult, error) {
	m, err := newMigrator(db)
	if err != nil {
		return MigrationResult{}, err
	}

	from, dirty, err := schemaVersion(m)
	if err != nil {
		return MigrationResult{}, fmt.Errorf("failed to read schema version of %s: %w", db.path, err)
	}
	if dirty {
		return MigrationResult{From: from, To: from}, fmt.Errorf("%w at version %d in %s", ErrDirtySchema, from, db.path)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		var dirtyErr migrate.ErrDirty
		if errors.As(err, &dirtyErr) {
			return MigrationResult{From: from, To: uint(dirtyErr.Version)}, fmt.Errorf("%w at version %d in %s", ErrDirtySchema, dirtyErr.Version, db.path)
		}
		return MigrationResult{From: from, To: from}, fmt.Errorf("failed to migrate %s from version %d: %w", db.path, from, err)
	}

	to, _, err := schemaVersion(m)
	if err != nil {
		return MigrationResult{From: from, To: from}, fmt.Errorf("failed to read schema version of %s: %w", db.path, err)
	}
	return MigrationResult{From: from, To: to}, nil
}
