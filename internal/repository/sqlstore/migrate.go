package sqlstore

import (
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	migratepgx "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations
var migrationsFS embed.FS

// Migrate applies every pending migration for the store's driver.
//
// The migrator is never closed: closing it closes the database driver, which
// closes db.conn with it.
func (db *DB) Migrate() error {
	dir := "migrations/sqlite"
	if db.driver == DriverPostgres {
		dir = "migrations/postgres"
	}

	src, err := iofs.New(migrationsFS, dir)
	if err != nil {
		return fmt.Errorf("sqlstore: loading migrations: %w", err)
	}
	defer src.Close()

	var (
		drv  database.Driver
		name string
	)
	switch db.driver {
	case DriverPostgres:
		drv, err = migratepgx.WithInstance(db.conn, &migratepgx.Config{})
		name = "pgx5"
	default:
		drv, err = migratesqlite.WithInstance(db.conn, &migratesqlite.Config{})
		name = "sqlite"
	}
	if err != nil {
		return fmt.Errorf("sqlstore: preparing %s migration driver: %w", name, err)
	}

	m, err := migrate.NewWithInstance("iofs", src, name, drv)
	if err != nil {
		return fmt.Errorf("sqlstore: creating migrator: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("sqlstore: applying migrations: %w", err)
	}
	return nil
}
