package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/keygate/keygate/internal/model"
)

// MaxSearchResults caps every key listing.
const MaxSearchResults = 500

const insertKeySQL = `INSERT INTO "keys" ("key", "status", "created_at", "last_used", "usage_count")
	VALUES (:key, :status, :created_at, :last_used, :usage_count)`

// prepareKey fills defaults for a new key row.
func prepareKey(k *model.Key) {
	if k.Status == "" {
		k.Status = model.KeyActive
	}
	if k.CreatedAt.IsZero() {
		k.CreatedAt = nowUTC()
	}
}

// InsertKey inserts a new key. ErrDuplicateKey is returned when the key
// string is already taken.
func (s *Store) InsertKey(ctx context.Context, k *model.Key) error {
	prepareKey(k)
	if _, err := s.db.NamedExecContext(ctx, s.named(insertKeySQL), k); err != nil {
		if s.conn.IsUniqueViolation(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("insert key: %w", err)
	}
	return nil
}

func (s *Store) insertKeyIfAbsent(ctx context.Context, ext sqlx.ExtContext, k *model.Key) (bool, error) {
	prepareKey(k)
	q := s.conn.IgnoreConflict(s.named(insertKeySQL))
	res, err := sqlx.NamedExecContext(ctx, ext, q, k)
	if err != nil {
		// Engines without a conflict clause still surface the violation.
		if s.conn.IsUniqueViolation(err) {
			return false, nil
		}
		return false, fmt.Errorf("insert key: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert key rows affected: %w", err)
	}
	return n > 0, nil
}

// GetKey returns the key row for key, or ErrNotFound.
func (s *Store) GetKey(ctx context.Context, key string) (*model.Key, error) {
	var k model.Key
	q := s.sql(`SELECT "key", "status", "created_at", "last_used", "usage_count" FROM "keys" WHERE "key" = ?`)
	if err := s.db.GetContext(ctx, &k, q, key); err != nil {
		if isNoRows(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get key: %w", err)
	}
	return &k, nil
}

// SetKeyStatus sets the status of key unconditionally. Setting a status the
// key already has, or naming a key that does not exist, is not an error.
func (s *Store) SetKeyStatus(ctx context.Context, key string, status model.KeyStatus) error {
	if !status.Valid() {
		return fmt.Errorf("set key status: invalid status %q", status)
	}
	q := s.sql(`UPDATE "keys" SET "status" = ? WHERE "key" = ?`)
	if _, err := s.db.ExecContext(ctx, q, string(status), key); err != nil {
		return fmt.Errorf("set key status: %w", err)
	}
	return nil
}

// RecordUsage atomically bumps usage_count by one and stamps last_used.
// The increment happens in the database, so concurrent downloads never lose
// a count.
func (s *Store) RecordUsage(ctx context.Context, key string, at time.Time) error {
	return s.recordUsage(ctx, s.db, key, at)
}

func (s *Store) recordUsage(ctx context.Context, ext sqlx.ExecerContext, key string, at time.Time) error {
	q := s.sql(`UPDATE "keys" SET "usage_count" = "usage_count" + 1, "last_used" = ? WHERE "key" = ?`)
	res, err := ext.ExecContext(ctx, q, at.UTC().Truncate(time.Microsecond), key)
	if err != nil {
		return fmt.Errorf("record usage: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("record usage rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// likeEscaper escapes LIKE wildcards with '!', which every engine accepts as
// an ESCAPE character without string-literal quirks.
var likeEscaper = strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")

// SearchKeys lists keys newest first. A non-empty Query matches any key
// containing it, ignoring case; Status applies only when valid. Both filters
// combine with AND. At most MaxSearchResults rows are returned.
func (s *Store) SearchKeys(ctx context.Context, f model.KeyFilter) ([]model.Key, error) {
	var (
		where []string
		args  []interface{}
	)
	if q := strings.ToUpper(strings.TrimSpace(f.Query)); q != "" {
		where = append(where, `"key" LIKE ? ESCAPE '!'`)
		args = append(args, "%"+likeEscaper.Replace(q)+"%")
	}
	if f.Status.Valid() {
		where = append(where, `"status" = ?`)
		args = append(args, string(f.Status))
	}

	limit := f.Limit
	if limit <= 0 || limit > MaxSearchResults {
		limit = MaxSearchResults
	}

	var b strings.Builder
	b.WriteString(`SELECT "key", "status", "created_at", "last_used", "usage_count" FROM "keys"`)
	if len(where) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(where, " AND "))
	}
	fmt.Fprintf(&b, ` ORDER BY "created_at" DESC, "key" LIMIT %d`, limit)

	keys := []model.Key{}
	if err := s.db.SelectContext(ctx, &keys, s.sql(b.String()), args...); err != nil {
		return nil, fmt.Errorf("search keys: %w", err)
	}
	return keys, nil
}

// KeyStats returns the dashboard counters in one pass over the keys table.
func (s *Store) KeyStats(ctx context.Context) (*model.KeyStats, error) {
	q := s.sql(`SELECT
		COUNT(*) AS "total",
		COALESCE(SUM(CASE WHEN "status" = 'active' THEN 1 ELSE 0 END), 0) AS "active",
		COALESCE(SUM(CASE WHEN "status" = 'revoked' THEN 1 ELSE 0 END), 0) AS "revoked",
		COALESCE(SUM("usage_count"), 0) AS "downloads"
		FROM "keys"`)

	var st model.KeyStats
	if err := s.db.GetContext(ctx, &st, q); err != nil {
		return nil, fmt.Errorf("key stats: %w", err)
	}
	return &st, nil
}

// CountKeys returns the number of stored keys.
func (s *Store) CountKeys(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.GetContext(ctx, &n, s.sql(`SELECT COUNT(*) FROM "keys"`)); err != nil {
		return 0, fmt.Errorf("count keys: %w", err)
	}
	return n, nil
}
