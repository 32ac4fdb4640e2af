package store

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RichardoC/padchat/internal/models"
)

func TestConversationStoreAppendAndResolve(t *testing.T) {
	s := NewConversationStore(nil)
	s.CreateIfAbsent("alice", "c1")

	user, err := s.AppendUser("alice", "c1", "What is 2+2?")
	require.NoError(t, err)
	assert.Equal(t, models.RoleUser, user.Role)
	assert.Equal(t, models.StatusComplete, user.Status)

	pending, err := s.AppendPendingAssistant("alice", "c1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, pending.Status)
	assert.Empty(t, pending.Content)

	resolved, err := s.ResolvePending("alice", "c1", pending.ID, "4", models.ErrorKindNone, false)
	require.NoError(t, err)
	assert.Equal(t, models.StatusComplete, resolved.Status)
	assert.Equal(t, "4", resolved.Content)
	assert.False(t, resolved.Retryable)

	msgs := s.List("alice", "c1")
	require.Len(t, msgs, 2)
	assert.Equal(t, user.ID, msgs[0].ID)
	assert.Equal(t, pending.ID, msgs[1].ID)
	assert.Equal(t, "4", msgs[1].Content)

	conv, ok := s.Get("alice", "c1")
	require.True(t, ok)
	assert.Equal(t, "What is 2+2?", conv.Title)
	assert.Equal(t, "alice", conv.OwnerID)
}

func TestConversationStoreResolveErrorKindSetsErrorStatus(t *testing.T) {
	s := NewConversationStore(nil)
	s.CreateIfAbsent("alice", "c1")
	pending, err := s.AppendPendingAssistant("alice", "c1")
	require.NoError(t, err)

	resolved, err := s.ResolvePending("alice", "c1", pending.ID, "busy", models.ErrorKindBusy, true)
	require.NoError(t, err)
	assert.Equal(t, models.StatusError, resolved.Status)
	assert.Equal(t, models.ErrorKindBusy, resolved.ErrorKind)
	assert.True(t, resolved.Retryable)
}

func TestConversationStoreResolveIsIdempotent(t *testing.T) {
	s := NewConversationStore(nil)
	s.CreateIfAbsent("alice", "c1")
	pending, err := s.AppendPendingAssistant("alice", "c1")
	require.NoError(t, err)

	_, err = s.ResolvePending("alice", "c1", pending.ID, "timed out", models.ErrorKindTimeout, true)
	require.NoError(t, err)

	late, err := s.ResolvePending("alice", "c1", pending.ID, "late answer", models.ErrorKindNone, false)
	assert.ErrorIs(t, err, ErrNotPending)
	assert.Equal(t, "timed out", late.Content)

	msgs := s.List("alice", "c1")
	require.Len(t, msgs, 1)
	assert.Equal(t, models.ErrorKindTimeout, msgs[0].ErrorKind)
}

func TestConversationStoreResolveUnknownMessage(t *testing.T) {
	s := NewConversationStore(nil)
	s.CreateIfAbsent("alice", "c1")

	_, err := s.ResolvePending("alice", "c1", "missing", "x", models.ErrorKindNone, false)
	assert.ErrorIs(t, err, models.ErrNotFound)

	_, err = s.ResolvePending("alice", "nope", "missing", "x", models.ErrorKindNone, false)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestConversationStoreRemoveLast(t *testing.T) {
	s := NewConversationStore(nil)
	s.CreateIfAbsent("alice", "c1")

	_, err := s.RemoveLast("alice", "c1")
	assert.ErrorIs(t, err, models.ErrNotFound, "empty conversation")

	_, err = s.AppendUser("alice", "c1", "hi")
	require.NoError(t, err)
	ok, err := s.AppendPendingAssistant("alice", "c1")
	require.NoError(t, err)
	_, err = s.ResolvePending("alice", "c1", ok.ID, "hello", models.ErrorKindNone, false)
	require.NoError(t, err)

	_, err = s.RemoveLast("alice", "c1")
	assert.ErrorIs(t, err, models.ErrNotFound, "successful reply must not be removed")
	assert.Len(t, s.List("alice", "c1"), 2)

	_, err = s.AppendUser("alice", "c1", "again")
	require.NoError(t, err)
	failed, err := s.AppendPendingAssistant("alice", "c1")
	require.NoError(t, err)
	_, err = s.ResolvePending("alice", "c1", failed.ID, "oops", models.ErrorKindGeneric, true)
	require.NoError(t, err)

	removed, err := s.RemoveLast("alice", "c1")
	require.NoError(t, err)
	assert.Equal(t, failed.ID, removed.ID)

	msgs := s.List("alice", "c1")
	require.Len(t, msgs, 3)
	assert.Equal(t, "again", msgs[2].Content)
}

func TestConversationStoreScopesByOwner(t *testing.T) {
	s := NewConversationStore(nil)
	s.CreateIfAbsent("alice", "c1")
	s.CreateIfAbsent("alice", "c1")
	_, err := s.AppendUser("alice", "c1", "alice's question")
	require.NoError(t, err)

	// the same id under another owner is a separate, empty conversation
	assert.False(t, s.Has("mallory", "c1"))
	assert.Empty(t, s.List("mallory", "c1"))
	_, err = s.AppendUser("mallory", "c1", "let me in")
	assert.ErrorIs(t, err, models.ErrNotFound)

	s.Restore("mallory", "c1", nil)
	_, err = s.AppendUser("mallory", "c1", "mine now")
	require.NoError(t, err)

	alice := s.List("alice", "c1")
	require.Len(t, alice, 1)
	assert.Equal(t, "alice's question", alice[0].Content)

	conv, ok := s.Get("mallory", "c1")
	require.True(t, ok)
	assert.Equal(t, "mallory", conv.OwnerID)
	assert.Equal(t, "mine now", conv.Title)
}

func TestConversationStoreTitleIsImmutable(t *testing.T) {
	s := NewConversationStore(nil)
	s.CreateIfAbsent("alice", "c1")

	_, err := s.AppendUser("alice", "c1", "first question that is definitely longer than thirty runes")
	require.NoError(t, err)
	_, err = s.AppendUser("alice", "c1", "second")
	require.NoError(t, err)

	conv, _ := s.Get("alice", "c1")
	assert.Equal(t, "first question that is definit...", conv.Title)
}

func TestConversationStoreTimestampsNeverDecrease(t *testing.T) {
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	ticks := []time.Time{base, base.Add(-time.Minute), base.Add(time.Second)}
	i := 0
	s := NewConversationStore(func() time.Time {
		ts := ticks[i%len(ticks)]
		i++
		return ts
	})
	s.CreateIfAbsent("alice", "c1")

	for j := 0; j < 3; j++ {
		_, err := s.AppendUser("alice", "c1", "msg")
		require.NoError(t, err)
	}

	msgs := s.List("alice", "c1")
	require.Len(t, msgs, 3)
	assert.Equal(t, base, msgs[0].Timestamp)
	assert.Equal(t, base, msgs[1].Timestamp)
	assert.Equal(t, base.Add(time.Second), msgs[2].Timestamp)
}

func TestConversationStoreRestoreDropsPlaceholders(t *testing.T) {
	s := NewConversationStore(nil)
	msgs := []models.Message{
		{ID: "u1", ConversationID: "c1", Role: models.RoleUser, Content: "hello", Status: models.StatusComplete},
		{ID: "a1", ConversationID: "c1", Role: models.RoleAssistant, Status: models.StatusPending},
	}
	s.Restore("alice", "c1", msgs)

	got := s.List("alice", "c1")
	require.Len(t, got, 1)
	assert.Equal(t, "u1", got[0].ID)

	conv, _ := s.Get("alice", "c1")
	assert.Equal(t, "hello", conv.Title)
}

func TestConversationStoreListReturnsCopy(t *testing.T) {
	s := NewConversationStore(nil)
	s.CreateIfAbsent("alice", "c1")
	_, err := s.AppendUser("alice", "c1", "hi")
	require.NoError(t, err)

	msgs := s.List("alice", "c1")
	msgs[0].Content = "tampered"
	assert.Equal(t, "hi", s.List("alice", "c1")[0].Content)
	assert.Empty(t, s.List("alice", "unknown"))
}

func TestConversationStoreConcurrentReadersSeeWholeTransitions(t *testing.T) {
	s := NewConversationStore(nil)
	s.CreateIfAbsent("alice", "c1")
	pending, err := s.AppendPendingAssistant("alice", "c1")
	require.NoError(t, err)

	var wg sync.WaitGroup
	stop := make(chan struct{})
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				m := s.List("alice", "c1")[0]
				if m.Status == models.StatusPending {
					assert.Empty(t, m.Content)
				} else {
					assert.Equal(t, "done", m.Content)
				}
			}
		}()
	}

	_, err = s.ResolvePending("alice", "c1", pending.ID, "done", models.ErrorKindNone, false)
	require.NoError(t, err)
	close(stop)
	wg.Wait()
}
