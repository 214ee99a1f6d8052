package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/keygate/keygate/internal/keys"
	"github.com/keygate/keygate/internal/model"
	"github.com/keygate/keygate/internal/store"
)

// Bulk generation bounds.
const (
	MinGenerate     = 1
	MaxGenerate     = 100000
	DefaultGenerate = 1000
)

// MaxKeyLength bounds keys added by hand.
const MaxKeyLength = 64

// ClampCount limits n to [MinGenerate, MaxGenerate].
func ClampCount(n int) int {
	if n < MinGenerate {
		return MinGenerate
	}
	if n > MaxGenerate {
		return MaxGenerate
	}
	return n
}

// ParseCount reads a generate count from form input. Empty or non-numeric
// input means DefaultGenerate; the result is always clamped.
func ParseCount(s string) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return DefaultGenerate
	}
	return ClampCount(n)
}

// KeyService implements the administrative key operations. Every mutation is
// recorded in the audit journal with the caller's origin (an IP address, or
// "cli"/"mcp" for the local tools).
type KeyService struct {
	store    *store.Store
	journal  *Journal
	generate func() (string, error)
}

// NewKeyService creates a KeyService.
func NewKeyService(st *store.Store, journal *Journal) *KeyService {
	return &KeyService{store: st, journal: journal, generate: keys.Generate}
}

// EnsureUniqueKeys inserts n new active keys in a single transaction and
// returns how many were created. n is clamped to [MinGenerate, MaxGenerate].
// A generated key that collides with an existing one is discarded and
// another is drawn, so the result always equals the clamped n.
func (s *KeyService) EnsureUniqueKeys(ctx context.Context, n int) (int, error) {
	n = ClampCount(n)
	var created int
	err := s.store.WithTx(ctx, func(tx *store.Tx) error {
		var err error
		created, err = s.insertUnique(ctx, tx, n)
		return err
	})
	if err != nil {
		return 0, err
	}
	return created, nil
}

func (s *KeyService) insertUnique(ctx context.Context, tx *store.Tx, n int) (int, error) {
	created := 0
	for created < n {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		k, err := s.generate()
		if err != nil {
			return 0, fmt.Errorf("generate key: %w", err)
		}
		ok, err := tx.InsertKeyIfAbsent(ctx, &model.Key{Key: k, Status: model.KeyActive})
		if err != nil {
			return 0, err
		}
		if ok {
			created++
		}
	}
	return created, nil
}

// Generate creates count new keys (clamped) and records ADMIN_GENERATE with
// the created count in the entry's detail. The keys and the log entry commit
// together.
func (s *KeyService) Generate(ctx context.Context, count int, origin string) (int, error) {
	n := ClampCount(count)
	var (
		created int
		entry   model.LogEntry
	)
	err := s.store.WithTx(ctx, func(tx *store.Tx) error {
		var err error
		if created, err = s.insertUnique(ctx, tx, n); err != nil {
			return err
		}
		entry = model.LogEntry{
			Action: model.ActionAdminGenerate,
			Detail: model.StringPtr(strconv.Itoa(created)),
			IP:     model.StringPtr(origin),
		}
		return tx.AppendLog(ctx, &entry)
	})
	if err != nil {
		return 0, err
	}
	s.journal.notify(ctx, entry)
	return created, nil
}

// Add stores a single active key. An empty key means "generate one". A key
// that already exists yields store.ErrDuplicateKey and is not logged.
func (s *KeyService) Add(ctx context.Context, raw, origin string) (*model.Key, error) {
	key := keys.Normalize(raw)
	if key == "" {
		var err error
		if key, err = s.generate(); err != nil {
			return nil, fmt.Errorf("generate key: %w", err)
		}
	}
	if len(key) > MaxKeyLength {
		return nil, ErrInvalidKey
	}

	k := &model.Key{Key: key, Status: model.KeyActive}
	if err := s.store.InsertKey(ctx, k); err != nil {
		return nil, err
	}
	err := s.journal.Record(ctx, &model.LogEntry{
		Action: model.ActionAdminAddKey,
		Key:    model.StringPtr(key),
		IP:     model.StringPtr(origin),
	})
	if err != nil {
		return nil, err
	}
	return k, nil
}

// Revoke marks key revoked. It succeeds whether or not the key exists or is
// already revoked.
func (s *KeyService) Revoke(ctx context.Context, key, origin string) error {
	return s.setStatus(ctx, key, model.KeyRevoked, model.ActionAdminRevoke, origin)
}

// Activate marks key active. It succeeds whether or not the key exists or is
// already active.
func (s *KeyService) Activate(ctx context.Context, key, origin string) error {
	return s.setStatus(ctx, key, model.KeyActive, model.ActionAdminActivate, origin)
}

func (s *KeyService) setStatus(ctx context.Context, raw string, status model.KeyStatus, action model.Action, origin string) error {
	key := keys.Normalize(raw)
	if key == "" {
		return ErrInvalidKey
	}
	if err := s.store.SetKeyStatus(ctx, key, status); err != nil {
		return err
	}
	return s.journal.Record(ctx, &model.LogEntry{
		Action: action,
		Key:    model.StringPtr(key),
		IP:     model.StringPtr(origin),
	})
}

// Get returns a single key.
func (s *KeyService) Get(ctx context.Context, raw string) (*model.Key, error) {
	return s.store.GetKey(ctx, keys.Normalize(raw))
}

// Search lists keys matching f, newest first, capped at store.MaxSearchResults.
func (s *KeyService) Search(ctx context.Context, f model.KeyFilter) ([]model.Key, error) {
	return s.store.SearchKeys(ctx, f)
}

// Stats returns the dashboard counters.
func (s *KeyService) Stats(ctx context.Context) (*model.KeyStats, error) {
	return s.store.KeyStats(ctx)
}

// RecentLogs returns the newest audit entries.
func (s *KeyService) RecentLogs(ctx context.Context, limit int) ([]model.LogEntry, error) {
	return s.store.RecentLogs(ctx, limit)
}

// Seed fills an empty key store with count keys. It does nothing when keys
// already exist or count is not positive, and returns the number created.
func (s *KeyService) Seed(ctx context.Context, count int) (int, error) {
	if count <= 0 {
		return 0, nil
	}
	n, err := s.store.CountKeys(ctx)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		return 0, nil
	}
	return s.EnsureUniqueKeys(ctx, count)
}

// IsDuplicate reports whether err means the key already exists.
func IsDuplicate(err error) bool {
	return errors.Is(err, store.ErrDuplicateKey)
}
