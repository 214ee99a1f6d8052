package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/keygate/keygate/internal/audit"
	"github.com/keygate/keygate/internal/config"
	"github.com/keygate/keygate/internal/connector"
	"github.com/keygate/keygate/internal/files"
	"github.com/keygate/keygate/internal/logging"
	"github.com/keygate/keygate/internal/metrics"
	"github.com/keygate/keygate/internal/service"
	"github.com/keygate/keygate/internal/store"
)

// cliOrigin is recorded as the client address of audit entries written by
// the key commands.
const cliOrigin = "cli"

// app bundles what every store-backed command needs.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	store   *store.Store
	journal *service.Journal
	keys    *service.KeyService
	closers []io.Closer
}

// openApp loads the configuration, builds the logger and audit observers and
// opens the migrated key store. Logs go to stderr so command output on
// stdout stays machine-readable.
func openApp(ctx context.Context) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	logger, logCloser, err := logging.New(os.Stderr, logging.Options{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Dev:        devMode,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	a := &app{cfg: cfg, logger: logger, closers: []io.Closer{logCloser}}

	observers := []service.Observer{service.ObserverFunc(metrics.ObserveAudit)}
	if cfg.Audit.File != "" {
		mirror := audit.NewMirror(audit.Config{
			Path:       cfg.Audit.File,
			MaxSizeMB:  cfg.Log.MaxSizeMB,
			MaxBackups: cfg.Log.MaxBackups,
			MaxAgeDays: cfg.Log.MaxAgeDays,
		}, logger)
		observers = append(observers, mirror)
		a.closers = append(a.closers, mirror)
	}

	st, err := store.Open(ctx, connector.ConnectionConfig{
		Driver:       cfg.Database.Driver,
		DSN:          cfg.Database.DSN,
		MaxOpenConns: cfg.Database.MaxOpenConns,
	})
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("open key store: %w", err)
	}
	logger.Debug("key store ready",
		"driver", cfg.Database.Driver,
		"dsn", connector.SanitizeDSN(cfg.Database.Driver, cfg.Database.DSN),
	)

	a.store = st
	a.journal = service.NewJournal(st, logger, observers...)
	a.keys = service.NewKeyService(st, a.journal)
	return a, nil
}

// Close releases the store, then the log writers.
func (a *app) Close() error {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Warn("close key store", "error", err)
		}
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i].Close()
	}
	return nil
}

// openFiles returns the configured download source. The returned closer is
// never nil.
func openFiles(ctx context.Context, cfg config.FilesConfig) (files.Source, io.Closer, error) {
	switch cfg.Backend {
	case "s3":
		src, err := files.NewS3(ctx, files.S3Config{
			Bucket:    cfg.S3.Bucket,
			Prefix:    cfg.S3.Prefix,
			Region:    cfg.S3.Region,
			Endpoint:  cfg.S3.Endpoint,
			AccessKey: cfg.S3.AccessKey,
			SecretKey: cfg.S3.SecretKey,
		})
		if err != nil {
			return nil, nil, err
		}
		return src, nopCloser{}, nil
	default:
		if err := os.MkdirAll(cfg.Root, 0o755); err != nil {
			return nil, nil, fmt.Errorf("create files root: %w", err)
		}
		src, err := files.NewLocal(cfg.Root)
		if err != nil {
			return nil, nil, err
		}
		return src, src, nil
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// versionString returns a display version string.
func versionString() string {
	if appVersion == "" || appVersion == "dev" {
		return "dev"
	}
	if strings.HasPrefix(appVersion, "v") {
		return appVersion
	}
	return "v" + appVersion
}
