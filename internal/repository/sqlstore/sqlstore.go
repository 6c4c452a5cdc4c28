// Package sqlstore implements repository.Store on top of database/sql.
//
// Two drivers are supported behind the same relation-scoped API:
//   - "sqlite"   modernc.org/sqlite, pure Go, the default for local use and tests
//   - "postgres" github.com/jackc/pgx/v5/stdlib
//
// DIALECTS:
// The SQL we generate is plain enough that the only dialect difference is the
// placeholder style: SQLite takes "?", Postgres takes "$1, $2, ...".
//
// SCHEMA:
// Relations are provisioned with golang-migrate from migrations embedded in
// the binary (see migrate.go). Provisioning is optional on purpose: a store
// opened with Provision=false has no relations, and every call fails with the
// "relation does not exist" code the sync core treats as "backend not ready".
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver
	_ "modernc.org/sqlite"             // registers the "sqlite" database/sql driver

	"github.com/sakif/studysync/internal/repository"
)

// compile-time check that *DB implements repository.Store
var _ repository.Store = (*DB)(nil)

// Driver selects the database backend.
type Driver string

const (
	DriverSQLite   Driver = "sqlite"
	DriverPostgres Driver = "postgres"
)

// Config configures Open.
type Config struct {
	Driver Driver
	// DSN is a file path (or ":memory:") for SQLite, a connection URL for Postgres.
	DSN string
	// Provision runs the embedded migrations on open.
	Provision bool
	// Denied lists relations every call is refused on, with a permission error.
	// It stands in for row-level security policies that block a relation.
	Denied []string
}

// DB wraps a sql.DB connection pool and provides the relation-scoped store.
type DB struct {
	conn   *sql.DB
	driver Driver
	denied map[string]bool
	now    func() time.Time
}

// Open connects to the configured database and, if asked, provisions it.
func Open(ctx context.Context, cfg Config) (*DB, error) {
	driverName := ""
	switch cfg.Driver {
	case DriverSQLite, "":
		cfg.Driver = DriverSQLite
		driverName = "sqlite"
	case DriverPostgres:
		driverName = "pgx"
	default:
		return nil, fmt.Errorf("sqlstore: unsupported driver %q", cfg.Driver)
	}

	conn, err := sql.Open(driverName, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: opening database: %w", err)
	}

	if cfg.Driver == DriverSQLite {
		// Every connection to ":memory:" is a separate database, and SQLite
		// serializes writers anyway. One connection keeps both cases sane.
		conn.SetMaxOpenConns(1)
	}

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlstore: pinging database: %w", err)
	}

	if cfg.Driver == DriverSQLite {
		if _, err := conn.ExecContext(ctx, "PRAGMA foreign_keys=ON"); err != nil {
			conn.Close()
			return nil, fmt.Errorf("sqlstore: enabling foreign keys: %w", err)
		}
		if _, err := conn.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
			conn.Close()
			return nil, fmt.Errorf("sqlstore: setting WAL mode: %w", err)
		}
	}

	db := newDB(conn, cfg.Driver, cfg.Denied)

	if cfg.Provision {
		if err := db.Migrate(); err != nil {
			conn.Close()
			return nil, fmt.Errorf("sqlstore: running migrations: %w", err)
		}
	}

	return db, nil
}

func newDB(conn *sql.DB, driver Driver, denied []string) *DB {
	db := &DB{
		conn:   conn,
		driver: driver,
		denied: make(map[string]bool, len(denied)),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, rel := range denied {
		if rel = strings.TrimSpace(rel); rel != "" {
			db.denied[rel] = true
		}
	}
	return db
}

// Close closes the connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping checks the connection is alive.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// Driver reports which backend this store talks to.
func (db *DB) Driver() Driver { return db.driver }

// placeholder returns the n-th (1-based) bind parameter marker.
func (db *DB) placeholder(n int) string {
	if db.driver == DriverPostgres {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

// formatTime is the one timestamp encoding used in every time column.
// Fixed width in UTC, so lexical order equals chronological order.
func formatTime(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000000000Z07:00")
}
