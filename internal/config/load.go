package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// SetDefaults registers every default with v so that environment variables
// bind to all keys, including ones absent from the config file.
func SetDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.shutdown_timeout", d.Server.ShutdownTimeout)
	v.SetDefault("server.cors_origins", d.Server.CORSOrigins)
	v.SetDefault("server.metrics", d.Server.Metrics)
	v.SetDefault("server.login_rate_limit", d.Server.LoginRateLimit)

	v.SetDefault("database.driver", d.Database.Driver)
	v.SetDefault("database.dsn", d.Database.DSN)
	v.SetDefault("database.max_open_conns", d.Database.MaxOpenConns)

	v.SetDefault("files.backend", d.Files.Backend)
	v.SetDefault("files.root", d.Files.Root)
	v.SetDefault("files.s3.bucket", "")
	v.SetDefault("files.s3.prefix", "")
	v.SetDefault("files.s3.region", "")
	v.SetDefault("files.s3.endpoint", "")
	v.SetDefault("files.s3.access_key", "")
	v.SetDefault("files.s3.secret_key", "")

	v.SetDefault("auth.admin_password", "")
	v.SetDefault("auth.admin_password_hash", "")
	v.SetDefault("auth.session_secret", "")
	v.SetDefault("auth.session_idle_timeout", d.Auth.SessionIdleTimeout)
	v.SetDefault("auth.session_max_age", d.Auth.SessionMaxAge)
	v.SetDefault("auth.secure_cookie", d.Auth.SecureCookie)

	v.SetDefault("seed.count", d.Seed.Count)
	v.SetDefault("admin.log_limit", d.Admin.LogLimit)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", d.Log.MaxSizeMB)
	v.SetDefault("log.max_backups", d.Log.MaxBackups)
	v.SetDefault("log.max_age_days", d.Log.MaxAgeDays)

	v.SetDefault("audit.file", "")
}

// ConfigureEnv makes v read KEYGATE_SECTION_KEY environment variables.
func ConfigureEnv(v *viper.Viper) {
	v.SetEnvPrefix("KEYGATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// Load decodes the settings resolved by v into a validated Config.
func Load(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	// Origins from the environment arrive comma-separated.
	cfg.Server.CORSOrigins = splitList(strings.Join(cfg.Server.CORSOrigins, ","))
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks settings that cannot be defaulted.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite", "postgres", "mysql":
	default:
		return fmt.Errorf("database.driver: unsupported driver %q (want sqlite, postgres or mysql)", c.Database.Driver)
	}
	if c.Database.Driver != "sqlite" && c.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required for %s", c.Database.Driver)
	}

	switch c.Files.Backend {
	case "local":
		if c.Files.Root == "" {
			return fmt.Errorf("files.root is required for the local backend")
		}
	case "s3":
		if c.Files.S3.Bucket == "" {
			return fmt.Errorf("files.s3.bucket is required for the s3 backend")
		}
	default:
		return fmt.Errorf("files.backend: unsupported backend %q (want local or s3)", c.Files.Backend)
	}

	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port: %d out of range", c.Server.Port)
	}
	for name, val := range map[string]string{
		"server.shutdown_timeout":   c.Server.ShutdownTimeout,
		"auth.session_idle_timeout": c.Auth.SessionIdleTimeout,
		"auth.session_max_age":      c.Auth.SessionMaxAge,
	} {
		if val == "" {
			continue
		}
		if _, err := time.ParseDuration(val); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	if c.Seed.Count < 0 {
		return fmt.Errorf("seed.count must not be negative")
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
