// Package sqlite is the SQLite key store engine, backed by the pure-Go
// modernc.org/sqlite driver.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/keygate/keygate/internal/connector"
)

// Pragmas appended to every DSN that does not already set them. SQLite
// serializes writers, so the pool is also pinned to one connection.
const defaultPragmas = "_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_time_format=sqlite"

// SQLiteConnector implements connector.Connector for SQLite databases.
type SQLiteConnector struct {
	db *sqlx.DB
}

// New creates a new SQLiteConnector.
func New() connector.Connector {
	return &SQLiteConnector{}
}

// Connect opens the database file named by the DSN, or an in-memory database
// for ":memory:" or an empty DSN.
func (c *SQLiteConnector) Connect(cfg connector.ConnectionConfig) error {
	db, err := sqlx.Connect("sqlite", DSN(cfg.DSN))
	if err != nil {
		return fmt.Errorf("sqlite connect: %w", err)
	}

	connector.ApplyPool(db, cfg)
	db.SetMaxOpenConns(1)

	c.db = db
	return nil
}

// DSN fills in the default pragmas for path. An empty path means in-memory.
func DSN(path string) string {
	if path == "" {
		path = ":memory:"
	}
	if strings.Contains(path, "_pragma=") {
		return path
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + defaultPragmas
}

// BeginTx starts a new database transaction with the given options.
func (c *SQLiteConnector) BeginTx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error) {
	return c.db.BeginTxx(ctx, opts)
}

// Disconnect closes the database connection.
func (c *SQLiteConnector) Disconnect() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// Ping verifies the database connection is alive.
func (c *SQLiteConnector) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

// DB returns the underlying sqlx.DB connection pool.
func (c *SQLiteConnector) DB() *sqlx.DB {
	return c.db
}

// DriverName returns the driver identifier for SQLite.
func (c *SQLiteConnector) DriverName() string { return "sqlite" }

// QuoteIdentifiers is a no-op; SQLite accepts ANSI double quotes.
func (c *SQLiteConnector) QuoteIdentifiers(query string) string { return query }

// IgnoreConflict appends an ON CONFLICT DO NOTHING clause.
func (c *SQLiteConnector) IgnoreConflict(insert string) string {
	return insert + " ON CONFLICT DO NOTHING"
}

// IsUniqueViolation matches the extended PRIMARYKEY and UNIQUE constraint codes.
func (c *SQLiteConnector) IsUniqueViolation(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	switch se.Code() {
	case sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3.SQLITE_CONSTRAINT_UNIQUE:
		return true
	case sqlite3.SQLITE_CONSTRAINT:
		return strings.Contains(se.Error(), "UNIQUE constraint failed")
	}
	return false
}
