package connector

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/jmoiron/sqlx"
)

// mockConnector implements Connector for testing without a real database.
type mockConnector struct {
	connected bool
	cfg       ConnectionConfig
}

func (m *mockConnector) Connect(cfg ConnectionConfig) error {
	if cfg.DSN == "fail" {
		return fmt.Errorf("mock connect failure")
	}
	m.connected = true
	m.cfg = cfg
	return nil
}
func (m *mockConnector) Disconnect() error            { m.connected = false; return nil }
func (m *mockConnector) Ping(_ context.Context) error { return nil }
func (m *mockConnector) DB() *sqlx.DB                 { return nil }
func (m *mockConnector) BeginTx(_ context.Context, _ *sql.TxOptions) (*sqlx.Tx, error) {
	return nil, errors.New("mock: transactions not supported")
}
func (m *mockConnector) DriverName() string                   { return "mock" }
func (m *mockConnector) QuoteIdentifiers(query string) string { return query }
func (m *mockConnector) IgnoreConflict(insert string) string  { return insert }
func (m *mockConnector) IsUniqueViolation(_ error) bool       { return false }

// ---------------------------------------------------------------------------
// Registry tests
// ---------------------------------------------------------------------------

func TestNewRegistry(t *testing.T) {
	r := NewRegistry()
	if r == nil {
		t.Fatal("NewRegistry() returned nil")
	}
	if len(r.Drivers()) != 0 {
		t.Error("new registry should have no drivers")
	}
}

func TestRegisterDriver(t *testing.T) {
	r := NewRegistry()
	r.RegisterDriver("mock", func() Connector { return &mockConnector{} })
	r.RegisterDriver("alt", func() Connector { return &mockConnector{} })

	got := r.Drivers()
	if len(got) != 2 || got[0] != "alt" || got[1] != "mock" {
		t.Errorf("Drivers() = %v, want [alt mock]", got)
	}
}

func TestOpen(t *testing.T) {
	r := NewRegistry()
	r.RegisterDriver("mock", func() Connector { return &mockConnector{} })

	conn, err := r.Open(ConnectionConfig{Driver: "mock", DSN: "test-dsn", MaxOpenConns: 3})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	mc := conn.(*mockConnector)
	if !mc.connected {
		t.Error("connector should be connected")
	}
	if mc.cfg.DSN != "test-dsn" {
		t.Errorf("expected DSN test-dsn, got %s", mc.cfg.DSN)
	}
	if mc.cfg.MaxOpenConns != 3 {
		t.Errorf("expected MaxOpenConns 3, got %d", mc.cfg.MaxOpenConns)
	}
}

func TestOpenUnsupportedDriver(t *testing.T) {
	r := NewRegistry()
	r.RegisterDriver("mock", func() Connector { return &mockConnector{} })

	_, err := r.Open(ConnectionConfig{Driver: "oracle"})
	if err == nil {
		t.Fatal("expected error for unsupported driver")
	}
	if !strings.Contains(err.Error(), "mock") {
		t.Errorf("error should list available drivers, got %q", err)
	}
}

func TestOpenFailure(t *testing.T) {
	r := NewRegistry()
	r.RegisterDriver("mock", func() Connector { return &mockConnector{} })

	if _, err := r.Open(ConnectionConfig{Driver: "mock", DSN: "fail"}); err == nil {
		t.Fatal("expected error for connection failure")
	}
}

// ---------------------------------------------------------------------------
// DSN sanitizing
// ---------------------------------------------------------------------------

func TestSanitizeDSN(t *testing.T) {
	tests := []struct {
		name   string
		driver string
		in     string
		want   string
	}{
		{
			name:   "sqlite untouched",
			driver: "sqlite",
			in:     "keygate.db?_pragma=busy_timeout(5000)",
			want:   "keygate.db?_pragma=busy_timeout(5000)",
		},
		{
			name:   "postgres special chars in password",
			driver: "postgres",
			in:     "postgres://gate:p@ss#word@db.local:5432/keygate?sslmode=disable",
			want:   "postgres://gate:p@ss%23word@db.local:5432/keygate?sslmode=disable",
		},
		{
			name:   "postgres without credentials",
			driver: "postgres",
			in:     "postgres://db.local/keygate",
			want:   "postgres://db.local/keygate",
		},
		{
			name:   "postgres keyword form",
			driver: "postgres",
			in:     "host=db.local user=gate dbname=keygate",
			want:   "host=db.local user=gate dbname=keygate",
		},
		{
			name:   "mysql missing tcp wrapper",
			driver: "mysql",
			in:     "gate:secret@db.local:3306/keygate",
			want:   "gate:secret@tcp(db.local:3306)/keygate",
		},
		{
			name:   "mysql missing tcp keyword",
			driver: "mysql",
			in:     "gate:secret@(db.local:3306)/keygate",
			want:   "gate:secret@tcp(db.local:3306)/keygate",
		},
		{
			name:   "mysql already correct",
			driver: "mysql",
			in:     "gate:secret@tcp(db.local:3306)/keygate",
			want:   "gate:secret@tcp(db.local:3306)/keygate",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SanitizeDSN(tt.driver, tt.in); got != tt.want {
				t.Errorf("SanitizeDSN(%q, %q) = %q, want %q", tt.driver, tt.in, got, tt.want)
			}
		})
	}
}
