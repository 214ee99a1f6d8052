// Package mysql is the MySQL/MariaDB key store engine.
package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"

	"github.com/keygate/keygate/internal/connector"
)

// erDupEntry is ER_DUP_ENTRY.
const erDupEntry = 1062

// MySQLConnector implements connector.Connector for MySQL databases.
type MySQLConnector struct {
	db *sqlx.DB
}

// New creates a new MySQLConnector.
func New() connector.Connector {
	return &MySQLConnector{}
}

// Connect establishes a connection pool. parseTime is forced on so DATETIME
// columns scan into time.Time, and timestamps are read back as UTC.
func (c *MySQLConnector) Connect(cfg connector.ConnectionConfig) error {
	dsnCfg, err := mysqldriver.ParseDSN(cfg.DSN)
	if err != nil {
		return fmt.Errorf("mysql dsn: %w", err)
	}
	dsnCfg.ParseTime = true

	db, err := sqlx.Connect("mysql", dsnCfg.FormatDSN())
	if err != nil {
		return fmt.Errorf("mysql connect: %w", err)
	}
	connector.ApplyPool(db, cfg)
	c.db = db
	return nil
}

// BeginTx starts a new database transaction with the given options.
func (c *MySQLConnector) BeginTx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error) {
	return c.db.BeginTxx(ctx, opts)
}

// Disconnect closes the database connection pool.
func (c *MySQLConnector) Disconnect() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// Ping verifies the database connection is alive.
func (c *MySQLConnector) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

// DB returns the underlying sqlx.DB connection pool.
func (c *MySQLConnector) DB() *sqlx.DB {
	return c.db
}

// DriverName returns the driver identifier for MySQL.
func (c *MySQLConnector) DriverName() string { return "mysql" }

// QuoteIdentifiers swaps double quotes for backticks. Queries passed here
// never contain double-quoted string literals.
func (c *MySQLConnector) QuoteIdentifiers(query string) string {
	return strings.ReplaceAll(query, `"`, "`")
}

// IgnoreConflict appends a no-op ON DUPLICATE KEY UPDATE on the first column,
// which reports zero affected rows when the row already exists.
func (c *MySQLConnector) IgnoreConflict(insert string) string {
	col := firstColumn(insert)
	if col == "" {
		return insert
	}
	return insert + " ON DUPLICATE KEY UPDATE " + col + " = " + col
}

// firstColumn returns the first entry of the column list in an INSERT
// statement, quotes included.
func firstColumn(insert string) string {
	open := strings.IndexByte(insert, '(')
	if open < 0 {
		return ""
	}
	rest := insert[open+1:]
	end := strings.IndexAny(rest, ",)")
	if end < 0 {
		return ""
	}
	return strings.TrimSpace(rest[:end])
}

// IsUniqueViolation reports whether err is ER_DUP_ENTRY.
func (c *MySQLConnector) IsUniqueViolation(err error) bool {
	var myErr *mysqldriver.MySQLError
	return errors.As(err, &myErr) && myErr.Number == erDupEntry
}
