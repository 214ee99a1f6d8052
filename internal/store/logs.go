package store

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/keygate/keygate/internal/model"
)

// DefaultLogLimit is the number of entries RecentLogs returns when asked for
// a non-positive limit.
const DefaultLogLimit = 200

// AppendLog appends an audit entry and sets e.ID. Timestamp defaults to now.
// Entries are never updated or deleted.
func (s *Store) AppendLog(ctx context.Context, e *model.LogEntry) error {
	return s.appendLog(ctx, s.db, e)
}

func (s *Store) appendLog(ctx context.Context, ext sqlx.ExtContext, e *model.LogEntry) error {
	if e.Timestamp.IsZero() {
		e.Timestamp = nowUTC()
	}
	q := s.named(`INSERT INTO "logs" ("ts", "action", "key", "filename", "detail", "ip")
		VALUES (:ts, :action, :key, :filename, :detail, :ip)`)

	// pgx does not report LastInsertId.
	if s.Driver() == "postgres" {
		rows, err := sqlx.NamedQueryContext(ctx, ext, q+` RETURNING "id"`, e)
		if err != nil {
			return fmt.Errorf("append log: %w", err)
		}
		defer rows.Close()
		if rows.Next() {
			if err := rows.Scan(&e.ID); err != nil {
				return fmt.Errorf("append log id: %w", err)
			}
		}
		return rows.Err()
	}

	res, err := sqlx.NamedExecContext(ctx, ext, q, e)
	if err != nil {
		return fmt.Errorf("append log: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("append log id: %w", err)
	}
	e.ID = id
	return nil
}

// RecentLogs returns up to limit entries, newest first.
func (s *Store) RecentLogs(ctx context.Context, limit int) ([]model.LogEntry, error) {
	if limit <= 0 {
		limit = DefaultLogLimit
	}
	q := s.sql(fmt.Sprintf(`SELECT "id", "ts", "action", "key", "filename", "detail", "ip"
		FROM "logs" ORDER BY "id" DESC LIMIT %d`, limit))

	entries := []model.LogEntry{}
	if err := s.db.SelectContext(ctx, &entries, q); err != nil {
		return nil, fmt.Errorf("recent logs: %w", err)
	}
	return entries, nil
}
