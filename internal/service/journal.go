package service

import (
	"context"
	"log/slog"

	"github.com/keygate/keygate/internal/model"
	"github.com/keygate/keygate/internal/store"
)

// Observer is told about every audit entry once it has been persisted. The
// metrics collector and the JSON-lines audit mirror are observers.
type Observer interface {
	Observe(ctx context.Context, e model.LogEntry)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(ctx context.Context, e model.LogEntry)

// Observe calls f(ctx, e).
func (f ObserverFunc) Observe(ctx context.Context, e model.LogEntry) { f(ctx, e) }

// Journal writes audit entries to the log store and fans them out to
// observers. The store is the source of truth; observers never fail a write.
type Journal struct {
	store     *store.Store
	observers []Observer
	logger    *slog.Logger
}

// NewJournal creates a Journal over st.
func NewJournal(st *store.Store, logger *slog.Logger, observers ...Observer) *Journal {
	if logger == nil {
		logger = slog.Default()
	}
	return &Journal{store: st, observers: observers, logger: logger}
}

// Record appends e to the log store and notifies observers.
func (j *Journal) Record(ctx context.Context, e *model.LogEntry) error {
	if err := j.store.AppendLog(ctx, e); err != nil {
		return err
	}
	j.notify(ctx, *e)
	return nil
}

// notify is used directly for entries written inside a transaction, after
// the commit succeeds.
func (j *Journal) notify(ctx context.Context, e model.LogEntry) {
	j.logger.Debug("audit", "action", e.Action, "key", maskKey(deref(e.Key)), "filename", deref(e.Filename), "ip", deref(e.IP))
	for _, o := range j.observers {
		o.Observe(ctx, e)
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// maskKey keeps the first group of a key so log lines stay correlatable
// without revealing a usable credential.
func maskKey(key string) string {
	if key == "" {
		return ""
	}
	if len(key) <= 4 {
		return "****"
	}
	return key[:4] + "-****"
}
