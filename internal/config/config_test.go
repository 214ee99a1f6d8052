package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
)

func newViper(t *testing.T) *viper.Viper {
	t.Helper()
	v := viper.New()
	SetDefaults(v)
	ConfigureEnv(v)
	return v
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(newViper(t))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr() != "0.0.0.0:8080" {
		t.Errorf("Addr = %q", cfg.Server.Addr())
	}
	if cfg.Database.Driver != "sqlite" || cfg.Database.DSN != "keygate.db" {
		t.Errorf("database = %+v", cfg.Database)
	}
	if cfg.Seed.Count != 1000 {
		t.Errorf("seed.count = %d, want 1000", cfg.Seed.Count)
	}
	if cfg.Admin.LogLimit != 200 {
		t.Errorf("admin.log_limit = %d, want 200", cfg.Admin.LogLimit)
	}
	if cfg.Auth.IdleTimeout() != 30*time.Minute || cfg.Auth.MaxAge() != 12*time.Hour {
		t.Errorf("session timeouts = %v / %v", cfg.Auth.IdleTimeout(), cfg.Auth.MaxAge())
	}
	if cfg.Server.ShutdownDuration() != 30*time.Second {
		t.Errorf("shutdown = %v", cfg.Server.ShutdownDuration())
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("KEYGATE_SERVER_PORT", "9090")
	t.Setenv("KEYGATE_SEED_COUNT", "0")
	t.Setenv("KEYGATE_FILES_ROOT", "/srv/downloads")
	t.Setenv("KEYGATE_AUTH_ADMIN_PASSWORD", "hunter2")
	t.Setenv("KEYGATE_SERVER_CORS_ORIGINS", "https://a.example, https://b.example")

	cfg, err := Load(newViper(t))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Seed.Count != 0 {
		t.Errorf("seed.count = %d, want 0", cfg.Seed.Count)
	}
	if cfg.Files.Root != "/srv/downloads" {
		t.Errorf("files.root = %q", cfg.Files.Root)
	}
	if cfg.Auth.AdminPassword != "hunter2" {
		t.Errorf("admin password not read from env")
	}
	if len(cfg.Server.CORSOrigins) != 2 || cfg.Server.CORSOrigins[1] != "https://b.example" {
		t.Errorf("cors origins = %v", cfg.Server.CORSOrigins)
	}
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keygate.yaml")
	content := `
database:
  driver: postgres
  dsn: postgres://gate@localhost/keygate
files:
  backend: s3
  s3:
    bucket: downloads
    endpoint: http://localhost:9000
auth:
  session_idle_timeout: 5m
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	v := newViper(t)
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		t.Fatalf("ReadInConfig: %v", err)
	}
	cfg, err := Load(v)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Database.Driver != "postgres" {
		t.Errorf("driver = %q", cfg.Database.Driver)
	}
	if cfg.Files.Backend != "s3" || cfg.Files.S3.Bucket != "downloads" {
		t.Errorf("files = %+v", cfg.Files)
	}
	if cfg.Auth.IdleTimeout() != 5*time.Minute {
		t.Errorf("idle = %v", cfg.Auth.IdleTimeout())
	}
	if cfg.Auth.MaxAge() != 12*time.Hour {
		t.Errorf("max age default lost: %v", cfg.Auth.MaxAge())
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		errSub string
	}{
		{"bad driver", func(c *Config) { c.Database.Driver = "oracle" }, "database.driver"},
		{"postgres without dsn", func(c *Config) { c.Database.Driver = "postgres"; c.Database.DSN = "" }, "database.dsn"},
		{"bad backend", func(c *Config) { c.Files.Backend = "ftp" }, "files.backend"},
		{"s3 without bucket", func(c *Config) { c.Files.Backend = "s3" }, "files.s3.bucket"},
		{"local without root", func(c *Config) { c.Files.Root = "" }, "files.root"},
		{"bad duration", func(c *Config) { c.Auth.SessionMaxAge = "forever" }, "auth.session_max_age"},
		{"bad port", func(c *Config) { c.Server.Port = 70000 }, "server.port"},
		{"negative seed", func(c *Config) { c.Seed.Count = -1 }, "seed.count"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.errSub) {
				t.Errorf("error %q does not mention %q", err, tt.errSub)
			}
		})
	}

	if err := Default().Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestWriteDefaultConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keygate.yaml")
	if err := WriteDefaultConfig(path, false); err != nil {
		t.Fatalf("WriteDefaultConfig: %v", err)
	}
	if err := WriteDefaultConfig(path, false); err == nil {
		t.Error("expected error when file exists without force")
	}
	if err := WriteDefaultConfig(path, true); err != nil {
		t.Errorf("force overwrite: %v", err)
	}

	v := newViper(t)
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		t.Fatalf("ReadInConfig: %v", err)
	}
	cfg, err := Load(v)
	if err != nil {
		t.Fatalf("Load written config: %v", err)
	}
	if cfg.Seed.Count != 1000 || cfg.Files.Root != "files" {
		t.Errorf("round trip lost defaults: %+v", cfg)
	}
}

func TestRedacted(t *testing.T) {
	cfg := Default()
	cfg.Auth.AdminPassword = "hunter2"
	cfg.Auth.SessionSecret = "abc"
	cfg.Files.S3.SecretKey = "xyz"

	r := cfg.Redacted()
	out, err := r.YAML()
	if err != nil {
		t.Fatalf("YAML: %v", err)
	}
	for _, secret := range []string{"hunter2", "abc", "xyz"} {
		if strings.Contains(string(out), secret) {
			t.Errorf("redacted output leaks %q", secret)
		}
	}
	if cfg.Auth.AdminPassword != "hunter2" {
		t.Error("Redacted must not modify the receiver")
	}
}
