// Package store persists access keys and the audit log. It runs on any engine
// registered with a connector.Registry; SQL is written once with ANSI
// double-quoted identifiers and adapted per engine at execution time.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/keygate/keygate/internal/connector"
	"github.com/keygate/keygate/internal/connector/mysql"
	"github.com/keygate/keygate/internal/connector/postgres"
	"github.com/keygate/keygate/internal/connector/sqlite"
	"github.com/keygate/keygate/internal/model"
)

// Store manages the keys and logs tables over a shared connection pool.
type Store struct {
	conn connector.Connector
	db   *sqlx.DB
}

// DefaultRegistry returns a registry with every supported engine.
func DefaultRegistry() *connector.Registry {
	r := connector.NewRegistry()
	r.RegisterDriver("sqlite", sqlite.New)
	r.RegisterDriver("postgres", postgres.New)
	r.RegisterDriver("mysql", mysql.New)
	return r
}

// Open connects to the database described by cfg, applies migrations and
// returns a ready Store. A sqlite driver with an empty DSN gives an in-memory
// database.
func Open(ctx context.Context, cfg connector.ConnectionConfig) (*Store, error) {
	if cfg.Driver == "" {
		cfg.Driver = "sqlite"
	}
	conn, err := DefaultRegistry().Open(cfg)
	if err != nil {
		return nil, err
	}
	s, err := New(ctx, conn)
	if err != nil {
		conn.Disconnect()
		return nil, err
	}
	return s, nil
}

// New wraps an already connected connector and migrates its schema.
func New(ctx context.Context, conn connector.Connector) (*Store, error) {
	s := &Store{conn: conn, db: conn.DB()}
	if err := s.migrate(ctx); err != nil {
		return nil, fmt.Errorf("migrate key store: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.conn.Disconnect()
}

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.conn.Ping(ctx)
}

// Driver returns the engine name the store runs on.
func (s *Store) Driver() string {
	return s.conn.DriverName()
}

// WithTx runs fn inside a single transaction, committing when fn returns nil
// and rolling back otherwise.
func (s *Store) WithTx(ctx context.Context, fn func(tx *Tx) error) error {
	sqlTx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	tx := &Tx{store: s, tx: sqlTx}
	if err := fn(tx); err != nil {
		sqlTx.Rollback()
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// Tx exposes the store operations that run inside WithTx.
type Tx struct {
	store *Store
	tx    *sqlx.Tx
}

// InsertKeyIfAbsent inserts k unless the key already exists, reporting
// whether a row was written.
func (t *Tx) InsertKeyIfAbsent(ctx context.Context, k *model.Key) (bool, error) {
	return t.store.insertKeyIfAbsent(ctx, t.tx, k)
}

// AppendLog appends an audit entry within the transaction.
func (t *Tx) AppendLog(ctx context.Context, e *model.LogEntry) error {
	return t.store.appendLog(ctx, t.tx, e)
}

// RecordUsage counts a download within the transaction.
func (t *Tx) RecordUsage(ctx context.Context, key string, at time.Time) error {
	return t.store.recordUsage(ctx, t.tx, key, at)
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// sql adapts a query written with ANSI quoting and ? placeholders to the
// store's engine.
func (s *Store) sql(query string) string {
	return s.db.Rebind(s.conn.QuoteIdentifiers(query))
}

// named adapts a query using :name parameters. sqlx binds those itself.
func (s *Store) named(query string) string {
	return s.conn.QuoteIdentifiers(query)
}

func nowUTC() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
