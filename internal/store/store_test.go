package store

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/keygate/keygate/internal/connector"
	"github.com/keygate/keygate/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), connector.ConnectionConfig{Driver: "sqlite"}) // in-memory
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func mustInsert(t *testing.T, s *Store, key string, status model.KeyStatus, created time.Time) {
	t.Helper()
	if err := s.InsertKey(context.Background(), &model.Key{Key: key, Status: status, CreatedAt: created}); err != nil {
		t.Fatalf("InsertKey(%s): %v", key, err)
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), connector.ConnectionConfig{Driver: "db2"})
	if err == nil {
		t.Fatal("expected error for unknown driver")
	}
}

func TestMigrationsIdempotent(t *testing.T) {
	s := newTestStore(t)
	if err := s.migrate(context.Background()); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
	if s.Driver() != "sqlite" {
		t.Errorf("Driver() = %q, want sqlite", s.Driver())
	}
}

// ---------------------------------------------------------------------------
// Keys
// ---------------------------------------------------------------------------

func TestInsertAndGetKey(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	k := &model.Key{Key: "ABCD-EFGH-JKLM-NPQR"}
	if err := s.InsertKey(ctx, k); err != nil {
		t.Fatalf("InsertKey: %v", err)
	}
	if k.Status != model.KeyActive {
		t.Errorf("default status = %q, want active", k.Status)
	}
	if k.CreatedAt.IsZero() {
		t.Error("expected CreatedAt to be set")
	}

	got, err := s.GetKey(ctx, "ABCD-EFGH-JKLM-NPQR")
	if err != nil {
		t.Fatalf("GetKey: %v", err)
	}
	if got.Status != model.KeyActive {
		t.Errorf("got status %q, want active", got.Status)
	}
	if got.UsageCount != 0 {
		t.Errorf("got usage_count %d, want 0", got.UsageCount)
	}
	if got.LastUsed != nil {
		t.Errorf("got last_used %v, want nil", got.LastUsed)
	}
	if !got.CreatedAt.Equal(k.CreatedAt) {
		t.Errorf("got created_at %v, want %v", got.CreatedAt, k.CreatedAt)
	}
}

func TestGetKeyNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetKey(context.Background(), "NOPE-NOPE-NOPE-NOPE")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestInsertDuplicateKey(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.InsertKey(ctx, &model.Key{Key: "ABCD-EFGH-JKLM-NPQR"}); err != nil {
		t.Fatalf("InsertKey: %v", err)
	}
	err := s.InsertKey(ctx, &model.Key{Key: "ABCD-EFGH-JKLM-NPQR"})
	if !errors.Is(err, ErrDuplicateKey) {
		t.Fatalf("expected ErrDuplicateKey, got %v", err)
	}
}

func TestSetKeyStatusIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	mustInsert(t, s, "ABCD-EFGH-JKLM-NPQR", model.KeyActive, time.Time{})

	for i := 0; i < 2; i++ {
		if err := s.SetKeyStatus(ctx, "ABCD-EFGH-JKLM-NPQR", model.KeyRevoked); err != nil {
			t.Fatalf("revoke #%d: %v", i+1, err)
		}
		got, _ := s.GetKey(ctx, "ABCD-EFGH-JKLM-NPQR")
		if got.Status != model.KeyRevoked {
			t.Fatalf("after revoke #%d status = %q", i+1, got.Status)
		}
	}

	if err := s.SetKeyStatus(ctx, "ABCD-EFGH-JKLM-NPQR", model.KeyActive); err != nil {
		t.Fatalf("activate: %v", err)
	}
	got, _ := s.GetKey(ctx, "ABCD-EFGH-JKLM-NPQR")
	if got.Status != model.KeyActive {
		t.Errorf("after activate status = %q", got.Status)
	}

	// Unknown keys are a silent no-op.
	if err := s.SetKeyStatus(ctx, "ZZZZ-ZZZZ-ZZZZ-ZZZZ", model.KeyRevoked); err != nil {
		t.Errorf("unknown key: %v", err)
	}
	if err := s.SetKeyStatus(ctx, "ABCD-EFGH-JKLM-NPQR", "paused"); err == nil {
		t.Error("expected error for invalid status")
	}
}

func TestRecordUsage(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	mustInsert(t, s, "ABCD-EFGH-JKLM-NPQR", model.KeyActive, time.Time{})

	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	if err := s.RecordUsage(ctx, "ABCD-EFGH-JKLM-NPQR", at); err != nil {
		t.Fatalf("RecordUsage: %v", err)
	}
	if err := s.RecordUsage(ctx, "ABCD-EFGH-JKLM-NPQR", at.Add(time.Minute)); err != nil {
		t.Fatalf("RecordUsage: %v", err)
	}

	got, _ := s.GetKey(ctx, "ABCD-EFGH-JKLM-NPQR")
	if got.UsageCount != 2 {
		t.Errorf("usage_count = %d, want 2", got.UsageCount)
	}
	if got.LastUsed == nil || !got.LastUsed.Equal(at.Add(time.Minute)) {
		t.Errorf("last_used = %v, want %v", got.LastUsed, at.Add(time.Minute))
	}

	if err := s.RecordUsage(ctx, "ZZZZ-ZZZZ-ZZZZ-ZZZZ", at); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown key: expected ErrNotFound, got %v", err)
	}
}

func TestSearchKeys(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	mustInsert(t, s, "ABCD-AAAA-AAAA-AAAA", model.KeyActive, base)
	mustInsert(t, s, "ABCD-BBBB-BBBB-BBBB", model.KeyRevoked, base.Add(time.Hour))
	mustInsert(t, s, "WXYZ-CCCC-CCCC-CCCC", model.KeyActive, base.Add(2*time.Hour))
	mustInsert(t, s, "WXYZ-DDDD-DDDD-DDDD", model.KeyRevoked, base.Add(3*time.Hour))

	tests := []struct {
		name   string
		filter model.KeyFilter
		want   []string
	}{
		{"all newest first", model.KeyFilter{}, []string{
			"WXYZ-DDDD-DDDD-DDDD", "WXYZ-CCCC-CCCC-CCCC", "ABCD-BBBB-BBBB-BBBB", "ABCD-AAAA-AAAA-AAAA",
		}},
		{"query ignores case", model.KeyFilter{Query: "abcd"}, []string{
			"ABCD-BBBB-BBBB-BBBB", "ABCD-AAAA-AAAA-AAAA",
		}},
		{"status only", model.KeyFilter{Status: model.KeyActive}, []string{
			"WXYZ-CCCC-CCCC-CCCC", "ABCD-AAAA-AAAA-AAAA",
		}},
		{"query and status", model.KeyFilter{Query: "wxyz", Status: model.KeyRevoked}, []string{
			"WXYZ-DDDD-DDDD-DDDD",
		}},
		{"unknown status ignored", model.KeyFilter{Query: "CCCC", Status: "bogus"}, []string{
			"WXYZ-CCCC-CCCC-CCCC",
		}},
		{"wildcards are literal", model.KeyFilter{Query: "%"}, nil},
		{"limit", model.KeyFilter{Limit: 1}, []string{"WXYZ-DDDD-DDDD-DDDD"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.SearchKeys(ctx, tt.filter)
			if err != nil {
				t.Fatalf("SearchKeys: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %d keys, want %d", len(got), len(tt.want))
			}
			for i, k := range got {
				if k.Key != tt.want[i] {
					t.Errorf("result[%d] = %s, want %s", i, k.Key, tt.want[i])
				}
			}
		})
	}
}

func TestSearchKeysCapped(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	err := s.WithTx(ctx, func(tx *Tx) error {
		for i := 0; i < MaxSearchResults+20; i++ {
			k := &model.Key{Key: fmt.Sprintf("TEST-%04d-AAAA-AAAA", i)}
			if _, err := tx.InsertKeyIfAbsent(ctx, k); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	got, err := s.SearchKeys(ctx, model.KeyFilter{Limit: 10000})
	if err != nil {
		t.Fatalf("SearchKeys: %v", err)
	}
	if len(got) != MaxSearchResults {
		t.Errorf("got %d keys, want %d", len(got), MaxSearchResults)
	}
}

func TestKeyStats(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	st, err := s.KeyStats(ctx)
	if err != nil {
		t.Fatalf("KeyStats on empty store: %v", err)
	}
	if *st != (model.KeyStats{}) {
		t.Errorf("empty stats = %+v, want zeros", *st)
	}

	mustInsert(t, s, "AAAA-AAAA-AAAA-AAAA", model.KeyActive, time.Time{})
	mustInsert(t, s, "BBBB-BBBB-BBBB-BBBB", model.KeyActive, time.Time{})
	mustInsert(t, s, "CCCC-CCCC-CCCC-CCCC", model.KeyRevoked, time.Time{})
	s.RecordUsage(ctx, "AAAA-AAAA-AAAA-AAAA", time.Now())
	s.RecordUsage(ctx, "AAAA-AAAA-AAAA-AAAA", time.Now())
	s.RecordUsage(ctx, "BBBB-BBBB-BBBB-BBBB", time.Now())

	st, err = s.KeyStats(ctx)
	if err != nil {
		t.Fatalf("KeyStats: %v", err)
	}
	want := model.KeyStats{Total: 3, Active: 2, Revoked: 1, Downloads: 3}
	if *st != want {
		t.Errorf("stats = %+v, want %+v", *st, want)
	}

	n, err := s.CountKeys(ctx)
	if err != nil {
		t.Fatalf("CountKeys: %v", err)
	}
	if n != 3 {
		t.Errorf("CountKeys = %d, want 3", n)
	}
}

// ---------------------------------------------------------------------------
// Transactions
// ---------------------------------------------------------------------------

func TestInsertKeyIfAbsent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	mustInsert(t, s, "ABCD-EFGH-JKLM-NPQR", model.KeyRevoked, time.Time{})

	var first, second bool
	err := s.WithTx(ctx, func(tx *Tx) error {
		var err error
		if first, err = tx.InsertKeyIfAbsent(ctx, &model.Key{Key: "ABCD-EFGH-JKLM-NPQR"}); err != nil {
			return err
		}
		second, err = tx.InsertKeyIfAbsent(ctx, &model.Key{Key: "WXYZ-EFGH-JKLM-NPQR"})
		return err
	})
	if err != nil {
		t.Fatalf("WithTx: %v", err)
	}
	if first {
		t.Error("existing key should not be inserted")
	}
	if !second {
		t.Error("new key should be inserted")
	}

	// The existing row is untouched.
	got, _ := s.GetKey(ctx, "ABCD-EFGH-JKLM-NPQR")
	if got.Status != model.KeyRevoked {
		t.Errorf("existing key status = %q, want revoked", got.Status)
	}
}

func TestWithTxRollback(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	boom := errors.New("boom")
	err := s.WithTx(ctx, func(tx *Tx) error {
		if _, err := tx.InsertKeyIfAbsent(ctx, &model.Key{Key: "ABCD-EFGH-JKLM-NPQR"}); err != nil {
			return err
		}
		if err := tx.AppendLog(ctx, &model.LogEntry{Action: model.ActionAdminGenerate}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	if n, _ := s.CountKeys(ctx); n != 0 {
		t.Errorf("CountKeys after rollback = %d, want 0", n)
	}
	logs, _ := s.RecentLogs(ctx, 10)
	if len(logs) != 0 {
		t.Errorf("logs after rollback = %d, want 0", len(logs))
	}
}

// ---------------------------------------------------------------------------
// Logs
// ---------------------------------------------------------------------------

func TestAppendAndRecentLogs(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	entries := []*model.LogEntry{
		{Action: model.ActionLoginSuccess, Key: model.StringPtr("ABCD-EFGH-JKLM-NPQR"), IP: model.StringPtr("10.0.0.1")},
		{Action: model.ActionDownload, Key: model.StringPtr("ABCD-EFGH-JKLM-NPQR"), Filename: model.StringPtr("report.pdf"), IP: model.StringPtr("10.0.0.1")},
		{Action: model.ActionAdminGenerate, Detail: model.StringPtr("50"), IP: model.StringPtr("10.0.0.2")},
	}
	for _, e := range entries {
		if err := s.AppendLog(ctx, e); err != nil {
			t.Fatalf("AppendLog: %v", err)
		}
		if e.Timestamp.IsZero() {
			t.Error("expected Timestamp to be set")
		}
	}

	got, err := s.RecentLogs(ctx, 10)
	if err != nil {
		t.Fatalf("RecentLogs: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d entries, want 3", len(got))
	}
	if got[0].Action != model.ActionAdminGenerate {
		t.Errorf("newest action = %s, want ADMIN_GENERATE", got[0].Action)
	}
	if got[0].Detail == nil || *got[0].Detail != "50" {
		t.Errorf("detail = %v, want 50", got[0].Detail)
	}
	if got[0].Key != nil || got[0].Filename != nil {
		t.Errorf("generate entry should have no key or filename: %+v", got[0])
	}
	if got[1].Filename == nil || *got[1].Filename != "report.pdf" {
		t.Errorf("download filename = %v, want report.pdf", got[1].Filename)
	}
	if got[0].ID <= got[1].ID || got[1].ID <= got[2].ID {
		t.Errorf("ids not descending: %d, %d, %d", got[0].ID, got[1].ID, got[2].ID)
	}

	limited, err := s.RecentLogs(ctx, 2)
	if err != nil {
		t.Fatalf("RecentLogs(2): %v", err)
	}
	if len(limited) != 2 || limited[0].ID != got[0].ID {
		t.Errorf("RecentLogs(2) = %+v", limited)
	}
}

func TestAppendLogSetsID(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first := &model.LogEntry{Action: model.ActionLoginFail, Key: model.StringPtr("NOPE")}
	if err := s.AppendLog(ctx, first); err != nil {
		t.Fatalf("AppendLog: %v", err)
	}
	var second *model.LogEntry
	err := s.WithTx(ctx, func(tx *Tx) error {
		second = &model.LogEntry{Action: model.ActionAdminGenerate, Detail: model.StringPtr("3")}
		return tx.AppendLog(ctx, second)
	})
	if err != nil {
		t.Fatalf("WithTx: %v", err)
	}

	if first.ID == 0 || second.ID <= first.ID {
		t.Fatalf("ids = %d, %d; want positive and increasing", first.ID, second.ID)
	}
	got, err := s.RecentLogs(ctx, 2)
	if err != nil {
		t.Fatalf("RecentLogs: %v", err)
	}
	if got[0].ID != second.ID || got[1].ID != first.ID {
		t.Errorf("stored ids = %d, %d; want %d, %d", got[0].ID, got[1].ID, second.ID, first.ID)
	}
}

func TestTxRecordUsageRollsBackLog(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	mustInsert(t, s, "ABCD-EFGH-JKLM-NPQR", model.KeyActive, time.Now())

	err := s.WithTx(ctx, func(tx *Tx) error {
		if err := tx.AppendLog(ctx, &model.LogEntry{Action: model.ActionDownload, Key: model.StringPtr("ZZZZ-ZZZZ-ZZZZ-ZZZZ")}); err != nil {
			return err
		}
		return tx.RecordUsage(ctx, "ZZZZ-ZZZZ-ZZZZ-ZZZZ", time.Now())
	})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if logs, _ := s.RecentLogs(ctx, 10); len(logs) != 0 {
		t.Errorf("download logged without a usage count: %+v", logs)
	}

	err = s.WithTx(ctx, func(tx *Tx) error {
		if err := tx.AppendLog(ctx, &model.LogEntry{Action: model.ActionDownload, Key: model.StringPtr("ABCD-EFGH-JKLM-NPQR")}); err != nil {
			return err
		}
		return tx.RecordUsage(ctx, "ABCD-EFGH-JKLM-NPQR", time.Now())
	})
	if err != nil {
		t.Fatalf("WithTx: %v", err)
	}
	k, err := s.GetKey(ctx, "ABCD-EFGH-JKLM-NPQR")
	if err != nil {
		t.Fatalf("GetKey: %v", err)
	}
	if k.UsageCount != 1 || k.LastUsed == nil {
		t.Errorf("usage = %d, last_used = %v; want 1 and set", k.UsageCount, k.LastUsed)
	}
}
