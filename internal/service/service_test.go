package service

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/keygate/keygate/internal/connector"
	"github.com/keygate/keygate/internal/files"
	"github.com/keygate/keygate/internal/model"
	"github.com/keygate/keygate/internal/store"
)

type testEnv struct {
	store    *store.Store
	keys     *KeyService
	access   *AccessService
	observed []model.LogEntry
	filesDir string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	st, err := store.Open(context.Background(), connector.ConnectionConfig{Driver: "sqlite"})
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	dir := t.TempDir()
	src, err := files.NewLocal(dir)
	require.NoError(t, err)
	t.Cleanup(func() { src.Close() })

	env := &testEnv{store: st, filesDir: dir}
	journal := NewJournal(st, nil, ObserverFunc(func(_ context.Context, e model.LogEntry) {
		env.observed = append(env.observed, e)
	}))
	env.keys = NewKeyService(st, journal)
	env.access = NewAccessService(st, journal, src)
	return env
}

func (e *testEnv) addKey(t *testing.T, key string, status model.KeyStatus) {
	t.Helper()
	require.NoError(t, e.store.InsertKey(context.Background(), &model.Key{Key: key, Status: status}))
}

func (e *testEnv) writeFile(t *testing.T, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(e.filesDir, name), []byte(content), 0o644))
}

func (e *testEnv) logs(t *testing.T) []model.LogEntry {
	t.Helper()
	entries, err := e.store.RecentLogs(context.Background(), 1000)
	require.NoError(t, err)
	return entries
}
