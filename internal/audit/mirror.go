// Package audit mirrors audit log entries to a rotating JSON-lines file. The
// database log table remains the source of truth; the mirror exists for log
// shippers and offline review.
package audit

import (
	"context"
	"log/slog"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/keygate/keygate/internal/model"
)

// Config controls the mirror file and its rotation.
type Config struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// Mirror writes one JSON object per audit entry.
type Mirror struct {
	logger  *zap.Logger
	rotator *lumberjack.Logger
	errLog  *slog.Logger
}

// NewMirror opens a mirror writing to cfg.Path. Write failures are reported
// to errLog and never propagate to the caller.
func NewMirror(cfg Config, errLog *slog.Logger) *Mirror {
	if errLog == nil {
		errLog = slog.Default()
	}
	rotator := &lumberjack.Logger{
		Filename:   cfg.Path,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   true,
	}
	return newMirror(zapcore.AddSync(rotator), rotator, errLog)
}

func newMirror(ws zapcore.WriteSyncer, rotator *lumberjack.Logger, errLog *slog.Logger) *Mirror {
	encoderConfig := zapcore.EncoderConfig{
		TimeKey:     "logged_at",
		MessageKey:  "event",
		LineEnding:  zapcore.DefaultLineEnding,
		EncodeTime:  zapcore.ISO8601TimeEncoder,
		EncodeLevel: zapcore.LowercaseLevelEncoder,
	}
	core := zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig), ws, zapcore.InfoLevel)
	return &Mirror{
		logger:  zap.New(core, zap.ErrorOutput(zapcore.AddSync(slogWriter{errLog}))),
		rotator: rotator,
		errLog:  errLog,
	}
}

// Observe writes e to the mirror. It satisfies service.Observer.
func (m *Mirror) Observe(_ context.Context, e model.LogEntry) {
	fields := []zap.Field{
		zap.Time("ts", e.Timestamp),
		zap.String("action", string(e.Action)),
	}
	if e.ID != 0 {
		fields = append(fields, zap.Int64("id", e.ID))
	}
	for _, f := range []struct {
		name string
		val  *string
	}{
		{"key", e.Key},
		{"filename", e.Filename},
		{"detail", e.Detail},
		{"ip", e.IP},
	} {
		if f.val != nil {
			fields = append(fields, zap.String(f.name, *f.val))
		}
	}
	m.logger.Info("audit", fields...)
}

// Close flushes buffered entries and closes the file.
func (m *Mirror) Close() error {
	if err := m.logger.Sync(); err != nil {
		m.errLog.Warn("audit mirror sync failed", "error", err)
	}
	if m.rotator == nil {
		return nil
	}
	return m.rotator.Close()
}

// slogWriter routes zap's internal errors to the application logger.
type slogWriter struct{ l *slog.Logger }

func (w slogWriter) Write(p []byte) (int, error) {
	w.l.Error("audit mirror write failed", "detail", string(p))
	return len(p), nil
}
