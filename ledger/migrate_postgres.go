package ledger

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// migratePostgres brings a Postgres-backed ledger up to the latest
// schema version using golang-migrate. The sqlite backend does not use
// golang-migrate: Open creates its single table directly from
// sqliteSchema. Postgres is the only backend driven through
// golang-migrate: its driver package
// needs a real database/sql *sql.DB to introspect, which the pure-Go
// modernc sqlite driver doesn't have an official golang-migrate
// counterpart for (see DESIGN.md).
func migratePostgres(db *sql.DB) error {
	src, err := iofs.New(migrationFS, "migrations")
	if err != nil {
		return fmt.Errorf("ledger: unable to load migrations: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("ledger: unable to init postgres migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return fmt.Errorf("ledger: unable to init migrator: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("ledger: migration failed: %w", err)
	}

	return nil
}
