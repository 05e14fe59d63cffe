package sqlite

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// migrator abstracts migrate.Migrate so tests can substitute a failing
// engine.
type migrator interface {
	Up() error
	Close() (error, error)
}

// migrationEngine builds a migrator for the database at dsn. The engine owns
// its own connection; closing the migrator must not disturb the store's
// handle.
type migrationEngine func(dsn string) (migrator, error)

func defaultEngine(dsn string) (migrator, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database for migration: %w", err)
	}
	source, err := iofs.New(migrationFS, "migrations")
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to load embedded migrations: %w", err)
	}
	driver, err := migratesqlite.WithInstance(db, &migratesqlite.Config{})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create migration driver: %w", err)
	}
	return migrate.NewWithInstance("iofs", source, "sqlite3", driver)
}

// runMigrations applies all pending migrations; an already up-to-date schema
// is not an error.
func runMigrations(dsn string, engine migrationEngine) (err error) {
	m, buildErr := engine(dsn)
	if buildErr != nil {
		return buildErr
	}
	defer func() {
		serr, dberr := m.Close()
		if err == nil && serr != nil {
			err = fmt.Errorf("migration source close: %w", serr)
		}
		if err == nil && dberr != nil {
			err = fmt.Errorf("migration database close: %w", dberr)
		}
	}()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration failed: %w", err)
	}
	return nil
}
