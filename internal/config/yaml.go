// Package config defines keygate's settings. Values are resolved by viper
// from the config file, KEYGATE_* environment variables and flags, then
// decoded once into an immutable Config that is passed to every component.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full keygate configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	Database DatabaseConfig `yaml:"database" mapstructure:"database"`
	Files    FilesConfig    `yaml:"files" mapstructure:"files"`
	Auth     AuthConfig     `yaml:"auth" mapstructure:"auth"`
	Seed     SeedConfig     `yaml:"seed" mapstructure:"seed"`
	Admin    AdminConfig    `yaml:"admin" mapstructure:"admin"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
	Audit    AuditConfig    `yaml:"audit" mapstructure:"audit"`
}

// ServerConfig controls the HTTP server behavior.
type ServerConfig struct {
	Host            string   `yaml:"host" mapstructure:"host"`
	Port            int      `yaml:"port" mapstructure:"port"`
	ShutdownTimeout string   `yaml:"shutdown_timeout" mapstructure:"shutdown_timeout"`
	CORSOrigins     []string `yaml:"cors_origins" mapstructure:"cors_origins"`
	Metrics         bool     `yaml:"metrics" mapstructure:"metrics"`

	// LoginRateLimit is the number of key submissions allowed per client IP
	// per minute. Zero disables the limit.
	LoginRateLimit int `yaml:"login_rate_limit" mapstructure:"login_rate_limit"`
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// ShutdownDuration returns the parsed graceful shutdown timeout.
func (s ServerConfig) ShutdownDuration() time.Duration {
	return mustDuration(s.ShutdownTimeout, 30*time.Second)
}

// DatabaseConfig selects the key store engine.
type DatabaseConfig struct {
	Driver       string `yaml:"driver" mapstructure:"driver"`
	DSN          string `yaml:"dsn" mapstructure:"dsn"`
	MaxOpenConns int    `yaml:"max_open_conns" mapstructure:"max_open_conns"`
}

// FilesConfig selects where downloadable files come from.
type FilesConfig struct {
	Backend string   `yaml:"backend" mapstructure:"backend"`
	Root    string   `yaml:"root" mapstructure:"root"`
	S3      S3Config `yaml:"s3" mapstructure:"s3"`
}

// S3Config points at an S3-compatible bucket.
type S3Config struct {
	Bucket    string `yaml:"bucket" mapstructure:"bucket"`
	Prefix    string `yaml:"prefix" mapstructure:"prefix"`
	Region    string `yaml:"region" mapstructure:"region"`
	Endpoint  string `yaml:"endpoint" mapstructure:"endpoint"`
	AccessKey string `yaml:"access_key" mapstructure:"access_key"`
	SecretKey string `yaml:"secret_key" mapstructure:"secret_key"`
}

// AuthConfig controls the admin password and session cookies.
type AuthConfig struct {
	AdminPassword      string `yaml:"admin_password" mapstructure:"admin_password"`
	AdminPasswordHash  string `yaml:"admin_password_hash" mapstructure:"admin_password_hash"`
	SessionSecret      string `yaml:"session_secret" mapstructure:"session_secret"`
	SessionIdleTimeout string `yaml:"session_idle_timeout" mapstructure:"session_idle_timeout"`
	SessionMaxAge      string `yaml:"session_max_age" mapstructure:"session_max_age"`
	SecureCookie       bool   `yaml:"secure_cookie" mapstructure:"secure_cookie"`
}

// IdleTimeout returns the parsed sliding session timeout.
func (a AuthConfig) IdleTimeout() time.Duration {
	return mustDuration(a.SessionIdleTimeout, 30*time.Minute)
}

// MaxAge returns the parsed absolute session lifetime.
func (a AuthConfig) MaxAge() time.Duration {
	return mustDuration(a.SessionMaxAge, 12*time.Hour)
}

// SeedConfig controls first-start key generation.
type SeedConfig struct {
	Count int `yaml:"count" mapstructure:"count"`
}

// AdminConfig controls the admin console.
type AdminConfig struct {
	LogLimit int `yaml:"log_limit" mapstructure:"log_limit"`
}

// LogConfig controls application log output.
type LogConfig struct {
	Level      string `yaml:"level" mapstructure:"level"`
	Format     string `yaml:"format" mapstructure:"format"`
	File       string `yaml:"file" mapstructure:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb" mapstructure:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups" mapstructure:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days" mapstructure:"max_age_days"`
}

// AuditConfig controls the JSON-lines audit mirror.
type AuditConfig struct {
	File string `yaml:"file" mapstructure:"file"`
}

// Default returns a Config pre-filled with sensible defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ShutdownTimeout: "30s",
			Metrics:         true,
			LoginRateLimit:  30,
		},
		Database: DatabaseConfig{
			Driver: "sqlite",
			DSN:    "keygate.db",
		},
		Files: FilesConfig{
			Backend: "local",
			Root:    "files",
		},
		Auth: AuthConfig{
			SessionIdleTimeout: "30m",
			SessionMaxAge:      "12h",
		},
		Seed:  SeedConfig{Count: 1000},
		Admin: AdminConfig{LogLimit: 200},
		Log: LogConfig{
			Level:      "info",
			Format:     "text",
			MaxSizeMB:  100,
			MaxBackups: 5,
			MaxAgeDays: 30,
		},
	}
}

// WriteDefaultConfig writes the default configuration to a YAML file. An
// existing file is only replaced when force is set.
func WriteDefaultConfig(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
	}
	data, err := yaml.Marshal(Default())
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// Redacted returns a copy of c with secrets masked, for display.
func (c Config) Redacted() Config {
	mask := func(s string) string {
		if s == "" {
			return ""
		}
		return "********"
	}
	c.Auth.AdminPassword = mask(c.Auth.AdminPassword)
	c.Auth.SessionSecret = mask(c.Auth.SessionSecret)
	c.Files.S3.SecretKey = mask(c.Files.S3.SecretKey)
	c.Server.CORSOrigins = append([]string(nil), c.Server.CORSOrigins...)
	return c
}

// YAML renders c as YAML.
func (c Config) YAML() ([]byte, error) {
	return yaml.Marshal(c)
}

func mustDuration(s string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
