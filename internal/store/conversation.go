// Package store holds in-memory conversation state: the ordered message list
// of each conversation and the per-owner history index.
package store

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/RichardoC/padchat/internal/models"
)

// ErrNotPending is returned when resolving a message that is already terminal.
var ErrNotPending = errors.New("message is not pending")

// key scopes a conversation id to its owner, the same way persisted records
// are keyed. Two owners using one id never share a conversation.
type key struct {
	ownerID string
	id      string
}

// ConversationStore keeps each conversation's messages in insertion order.
// Readers always get copies, so a message is observed either before or after
// a transition, never halfway through one.
type ConversationStore struct {
	mu            sync.RWMutex
	conversations map[key]*models.Conversation
	now           func() time.Time
}

// NewConversationStore creates an empty store. A nil now defaults to time.Now.
func NewConversationStore(now func() time.Time) *ConversationStore {
	if now == nil {
		now = time.Now
	}
	return &ConversationStore{
		conversations: make(map[key]*models.Conversation),
		now:           now,
	}
}

// CreateIfAbsent registers an empty conversation for ownerID.
func (s *ConversationStore) CreateIfAbsent(ownerID, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := key{ownerID, id}
	if _, ok := s.conversations[k]; !ok {
		s.conversations[k] = &models.Conversation{ID: id, OwnerID: ownerID}
	}
}

// Restore installs messages loaded from persistence. It is a no-op when the
// conversation is already in memory.
func (s *ConversationStore) Restore(ownerID, id string, messages []models.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := key{ownerID, id}
	if _, ok := s.conversations[k]; ok {
		return
	}

	conv := &models.Conversation{ID: id, OwnerID: ownerID}
	for _, m := range messages {
		if m.Role == models.RoleUser && conv.Title == "" {
			conv.Title = models.TitleFrom(m.Content)
		}
		// a placeholder cannot outlive the process that created it
		if m.Status == models.StatusPending {
			continue
		}
		conv.Messages = append(conv.Messages, m)
	}
	s.conversations[k] = conv
}

func (s *ConversationStore) Has(ownerID, id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.conversations[key{ownerID, id}]
	return ok
}

func (s *ConversationStore) AppendUser(ownerID, id, text string) (models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[key{ownerID, id}]
	if !ok {
		return models.Message{}, fmt.Errorf("%w: conversation %s", models.ErrNotFound, id)
	}

	if conv.Title == "" {
		conv.Title = models.TitleFrom(text)
	}

	msg := models.Message{
		ID:             uuid.NewString(),
		ConversationID: id,
		Role:           models.RoleUser,
		Content:        text,
		Timestamp:      s.nextTimestamp(conv),
		Status:         models.StatusComplete,
	}
	conv.Messages = append(conv.Messages, msg)
	return msg, nil
}

func (s *ConversationStore) AppendPendingAssistant(ownerID, id string) (models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[key{ownerID, id}]
	if !ok {
		return models.Message{}, fmt.Errorf("%w: conversation %s", models.ErrNotFound, id)
	}

	msg := models.Message{
		ID:             uuid.NewString(),
		ConversationID: id,
		Role:           models.RoleAssistant,
		Timestamp:      s.nextTimestamp(conv),
		Status:         models.StatusPending,
	}
	conv.Messages = append(conv.Messages, msg)
	return msg, nil
}

// ResolvePending is the only way a pending message becomes terminal. Content,
// status and error kind are replaced under one lock. A message that is
// already terminal is left untouched and ErrNotPending is returned.
func (s *ConversationStore) ResolvePending(ownerID, id, messageID, finalText string, kind models.ErrorKind, retryable bool) (models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[key{ownerID, id}]
	if !ok {
		return models.Message{}, fmt.Errorf("%w: conversation %s", models.ErrNotFound, id)
	}

	for i := range conv.Messages {
		msg := &conv.Messages[i]
		if msg.ID != messageID {
			continue
		}
		if msg.Terminal() {
			return *msg, ErrNotPending
		}

		status := models.StatusComplete
		if kind != models.ErrorKindNone {
			status = models.StatusError
		}

		*msg = models.Message{
			ID:             msg.ID,
			ConversationID: msg.ConversationID,
			Role:           msg.Role,
			Content:        finalText,
			Timestamp:      s.nextTimestamp(conv),
			Status:         status,
			Retryable:      retryable,
			ErrorKind:      kind,
		}
		return *msg, nil
	}

	return models.Message{}, fmt.Errorf("%w: message %s", models.ErrNotFound, messageID)
}

// RemoveLast discards the trailing message, which must be an error entry.
func (s *ConversationStore) RemoveLast(ownerID, id string) (models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[key{ownerID, id}]
	if !ok || len(conv.Messages) == 0 {
		return models.Message{}, fmt.Errorf("%w: no messages in conversation %s", models.ErrNotFound, id)
	}

	last := conv.Messages[len(conv.Messages)-1]
	if last.Status != models.StatusError {
		return models.Message{}, fmt.Errorf("%w: last message is not an error", models.ErrNotFound)
	}

	conv.Messages = conv.Messages[:len(conv.Messages)-1]
	return last, nil
}

// List returns a copy of the conversation's messages in display order.
func (s *ConversationStore) List(ownerID, id string) []models.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, ok := s.conversations[key{ownerID, id}]
	if !ok {
		return []models.Message{}
	}
	out := make([]models.Message, len(conv.Messages))
	copy(out, conv.Messages)
	return out
}

func (s *ConversationStore) Get(ownerID, id string) (models.Conversation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, ok := s.conversations[key{ownerID, id}]
	if !ok {
		return models.Conversation{}, false
	}
	out := *conv
	out.Messages = make([]models.Message, len(conv.Messages))
	copy(out.Messages, conv.Messages)
	return out, true
}

// nextTimestamp keeps timestamps non-decreasing within a conversation even if
// the wall clock steps backwards. Caller holds s.mu.
func (s *ConversationStore) nextTimestamp(conv *models.Conversation) time.Time {
	ts := s.now()
	if n := len(conv.Messages); n > 0 && ts.Before(conv.Messages[n-1].Timestamp) {
		ts = conv.Messages[n-1].Timestamp
	}
	return ts
}
