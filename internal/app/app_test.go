package app

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/RichardoC/padchat/internal/config"
	"github.com/RichardoC/padchat/internal/dispatch"
	"github.com/RichardoC/padchat/internal/models"
)

func testConfig(storage string) *config.Config {
	return &config.Config{
		Storage:        storage,
		LogLevel:       "info",
		ChatTimeout:    time.Second,
		RequestTimeout: time.Second,
	}
}

func echo() dispatch.BackendFunc {
	return func(_ context.Context, text string) (string, error) { return "echo: " + text, nil }
}

func sendAndCheck(t *testing.T, a *App) {
	t.Helper()
	ctx := context.Background()

	token, err := a.Auth.Signup(ctx, "alice", "secret")
	require.NoError(t, err)
	require.NoError(t, a.Auth.Verify(ctx, "alice", token))

	msg, err := a.Dispatcher.Send(ctx, dispatch.SendInput{ConversationID: "c1", OwnerID: "alice", Text: "hello"})
	require.NoError(t, err)
	assert.Equal(t, models.StatusComplete, msg.Status)
	assert.Equal(t, "echo: hello", msg.Content)
}

func TestNewMemory(t *testing.T) {
	a, err := New(context.Background(), testConfig(config.StorageMemory), zaptest.NewLogger(t), WithBackend(echo()))
	require.NoError(t, err)
	defer a.Close()

	sendAndCheck(t, a)
}

func TestNewSQLiteSurvivesRestart(t *testing.T) {
	cfg := testConfig(config.StorageSQLite)
	cfg.SQLitePath = filepath.Join(t.TempDir(), "padchat.db")

	a, err := New(context.Background(), cfg, zaptest.NewLogger(t), WithBackend(echo()))
	require.NoError(t, err)
	sendAndCheck(t, a)
	require.NoError(t, a.Close())

	b, err := New(context.Background(), cfg, zaptest.NewLogger(t), WithBackend(echo()))
	require.NoError(t, err)
	defer b.Close()

	history, err := b.Dispatcher.History(context.Background(), "alice")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "hello", history[0].Title)
}

func TestNewRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig(config.StorageRedis)
	cfg.RedisAddr = mr.Addr()

	a, err := New(context.Background(), cfg, zaptest.NewLogger(t), WithBackend(echo()))
	require.NoError(t, err)
	defer a.Close()

	sendAndCheck(t, a)
	assert.True(t, mr.Exists("history:alice"))
	assert.True(t, mr.Exists("messages:c1:alice"))
}

func TestNewRedisUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig(config.StorageRedis)
	cfg.RedisAddr = mr.Addr()
	mr.Close()

	_, err := New(context.Background(), cfg, zaptest.NewLogger(t), WithBackend(echo()))
	assert.Error(t, err)
}

func TestNewDefaultBackend(t *testing.T) {
	cfg := testConfig(config.StorageMemory)
	cfg.LLMBaseURL = "http://localhost:11434/v1/"
	cfg.LLMToken = "fake"
	cfg.LLMModel = "llama3.1:8b"

	a, err := New(context.Background(), cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.NoError(t, a.Close())
}
