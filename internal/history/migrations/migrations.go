// Package migrations applies the embedded history schema.
package migrations

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed sql/*.sql
var migrationFiles embed.FS

// Migrator applies schema migrations to an open database.
type Migrator struct {
	db *sql.DB
}

// NewMigrator creates a migrator for db.
func NewMigrator(db *sql.DB) (*Migrator, error) {
	if db == nil {
		return nil, fmt.Errorf("db is required")
	}
	return &Migrator{db: db}, nil
}

// Up runs all pending migrations.
func (m *Migrator) Up() error {
	inst, closeSrc, err := m.instance()
	defer closeSrc()
	if err != nil {
		return err
	}

	if err := inst.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("could not run migrations: %w", err)
	}
	slog.Debug("history migrations applied")
	return nil
}

// Down reverts all migrations.
func (m *Migrator) Down() error {
	inst, closeSrc, err := m.instance()
	defer closeSrc()
	if err != nil {
		return err
	}

	if err := inst.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("could not revert migrations: %w", err)
	}
	return nil
}

// Version reports the applied schema version.
func (m *Migrator) Version() (uint, bool, error) {
	inst, closeSrc, err := m.instance()
	defer closeSrc()
	if err != nil {
		return 0, false, err
	}
	v, dirty, err := inst.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return v, dirty, err
}

func (m *Migrator) instance() (*migrate.Migrate, func(), error) {
	closeSrc := func() {}

	driver, err := sqlite3.WithInstance(m.db, &sqlite3.Config{})
	if err != nil {
		return nil, closeSrc, fmt.Errorf("could not create driver: %w", err)
	}

	src, err := iofs.New(migrationFiles, "sql")
	if err != nil {
		return nil, closeSrc, fmt.Errorf("could not create fs: %w", err)
	}
	closeSrc = func() {
		if err := src.Close(); err != nil {
			slog.Warn("could not close migration source", "error", err)
		}
	}

	inst, err := migrate.NewWithInstance("iofs", src, "sqlite3", driver)
	if err != nil {
		return nil, closeSrc, fmt.Errorf("could not create migration instance: %w", err)
	}
	return inst, closeSrc, nil
}
