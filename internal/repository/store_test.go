package store

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/siegzhong-maker/knowledge/internal/domain"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func exerciseSettings(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	_, found, err := s.GetSetting(ctx, domain.SettingAPIKey)
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, s.SetSetting(ctx, domain.SettingAPIKey, "sealed-1"))
	require.NoError(t, s.SetSetting(ctx, domain.SettingAPIKey, "sealed-2"))
	require.NoError(t, s.SetSetting(ctx, domain.SettingModel, "deepseek-reasoner"))

	value, found, err := s.GetSetting(ctx, domain.SettingAPIKey)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "sealed-2", value)

	all, err := s.ListSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		domain.SettingAPIKey: "sealed-2",
		domain.SettingModel:  "deepseek-reasoner",
	}, all)

	require.NoError(t, s.DeleteSetting(ctx, domain.SettingAPIKey))
	_, found, err = s.GetSetting(ctx, domain.SettingAPIKey)
	require.NoError(t, err)
	assert.False(t, found)
}

func exerciseLLMCalls(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Second)

	require.NoError(t, s.RecordLLMCall(ctx, &domain.LLMCall{
		CallID: "c1", RequestID: "req-1", Op: domain.CallOpConsult, Model: "deepseek-chat",
		Stream: true, LatencyMs: 1200, CreatedAt: base,
	}))
	require.NoError(t, s.RecordLLMCall(ctx, &domain.LLMCall{
		CallID: "c2", Op: domain.CallOpMatch, Model: "deepseek-chat",
		LatencyMs: 300, ErrorKind: string(domain.KindAuthentication), Error: "API key invalid",
		CreatedAt: base.Add(time.Second),
	}))

	calls, err := s.ListLLMCalls(ctx, 10)
	require.NoError(t, err)
	require.Len(t, calls, 2)

	assert.Equal(t, "c2", calls[0].CallID)
	assert.Equal(t, domain.CallOpMatch, calls[0].Op)
	assert.False(t, calls[0].Stream)
	assert.Empty(t, calls[0].RequestID)
	assert.Equal(t, "authentication", calls[0].ErrorKind)

	assert.Equal(t, "c1", calls[1].CallID)
	assert.True(t, calls[1].Stream)
	assert.Equal(t, "req-1", calls[1].RequestID)
	assert.Equal(t, int64(1200), calls[1].LatencyMs)
	assert.True(t, base.Equal(calls[1].CreatedAt))

	limited, err := s.ListLLMCalls(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestSQLiteSettings(t *testing.T) {
	exerciseSettings(t, newTestStore(t))
}

func TestSQLiteLLMCalls(t *testing.T) {
	exerciseLLMCalls(t, newTestStore(t))
}

func TestSQLiteMigrateIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.migrate())
	require.NoError(t, s.ensureColumn("llm_calls", "request_id", "ALTER TABLE llm_calls ADD COLUMN request_id TEXT"))
}

func TestOpenUnknownDriver(t *testing.T) {
	_, err := Open("mysql", "dsn")
	assert.Error(t, err)
}

func TestRebindDollar(t *testing.T) {
	assert.Equal(t, "SELECT value FROM settings WHERE key = $1", rebindDollar("SELECT value FROM settings WHERE key = ?"))
	assert.Equal(t, "VALUES ($1, $2, $3)", rebindDollar("VALUES (?, ?, ?)"))
	assert.Equal(t, "no params", rebindDollar("no params"))
}

func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv("KB_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("KB_TEST_POSTGRES_DSN not set")
	}
	s, err := NewPostgresStore(dsn)
	require.NoError(t, err)
	t.Cleanup(func() {
		s.db.Exec(`DROP TABLE IF EXISTS settings, llm_calls`)
		s.Close()
	})
	_, err = s.db.Exec(`TRUNCATE settings, llm_calls`)
	require.NoError(t, err)

	exerciseSettings(t, s)
	exerciseLLMCalls(t, s)
}
