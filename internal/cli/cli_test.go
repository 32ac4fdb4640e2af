package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/RichardoC/padchat/internal/app"
	"github.com/RichardoC/padchat/internal/config"
	"github.com/RichardoC/padchat/internal/dispatch"
	"github.com/RichardoC/padchat/internal/models"
)

func newTestApp(t *testing.T, backend dispatch.Backend) AppFactory {
	t.Helper()
	cfg := &config.Config{
		Storage:        config.StorageMemory,
		LogLevel:       "info",
		ChatTimeout:    time.Second,
		RequestTimeout: time.Second,
	}
	a, err := app.New(context.Background(), cfg, zaptest.NewLogger(t), app.WithBackend(backend))
	require.NoError(t, err)
	return func(context.Context) (*app.App, error) { return a, nil }
}

func run(t *testing.T, factory AppFactory, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := NewRootCmd(factory)
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestSendShowHistory(t *testing.T) {
	factory := newTestApp(t, dispatch.BackendFunc(func(context.Context, string) (string, error) {
		return "4", nil
	}))

	out, err := run(t, factory, "send", "-u", "alice", "-c", "c1", "What", "is", "2+2?")
	require.NoError(t, err)
	assert.Contains(t, out, "conversation: c1")
	assert.Contains(t, out, "4")

	out, err = run(t, factory, "show", "-u", "alice", "-c", "c1")
	require.NoError(t, err)
	assert.Contains(t, out, "What is 2+2?")
	assert.Contains(t, out, "assistant")

	out, err = run(t, factory, "history", "-u", "alice", "-o", "json")
	require.NoError(t, err)
	var history []models.HistoryEntry
	require.NoError(t, json.Unmarshal([]byte(out), &history))
	require.Len(t, history, 1)
	assert.Equal(t, "What is 2+2?", history[0].Title)

	out, err = run(t, factory, "history", "-u", "alice")
	require.NoError(t, err)
	assert.Contains(t, out, "Last Activity")
	assert.Contains(t, out, "c1")
}

func TestSendStartsNewConversation(t *testing.T) {
	factory := newTestApp(t, dispatch.BackendFunc(func(context.Context, string) (string, error) {
		return "hi", nil
	}))

	out, err := run(t, factory, "send", "-u", "alice", "-o", "json", "hello")
	require.NoError(t, err)

	var reply struct {
		ConversationID string         `json:"conversation_id"`
		Message        models.Message `json:"message"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &reply))
	assert.NotEmpty(t, reply.ConversationID)
	assert.Equal(t, "hi", reply.Message.Content)
}

func TestRetryAfterFailure(t *testing.T) {
	calls := 0
	factory := newTestApp(t, dispatch.BackendFunc(func(context.Context, string) (string, error) {
		calls++
		if calls == 1 {
			return "", errors.New("service busy")
		}
		return "second time lucky", nil
	}))

	out, err := run(t, factory, "send", "-u", "alice", "-c", "c1", "hello")
	require.NoError(t, err)
	assert.Contains(t, out, "padchat retry")

	out, err = run(t, factory, "retry", "-u", "alice", "-c", "c1")
	require.NoError(t, err)
	assert.Contains(t, out, "second time lucky")

	_, err = run(t, factory, "retry", "-u", "alice", "-c", "c1")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestRequiresUser(t *testing.T) {
	factory := newTestApp(t, dispatch.BackendFunc(func(context.Context, string) (string, error) {
		return "x", nil
	}))

	_, err := run(t, factory, "history")
	assert.Error(t, err)

	_, err = run(t, factory, "retry", "-u", "alice", "-c", "empty")
	assert.ErrorIs(t, err, models.ErrNotFound)
}
