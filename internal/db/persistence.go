package db

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/RichardoC/padchat/internal/models"
)

func HistoryKey(ownerID string) string {
	return "history:" + ownerID
}

func MessagesKey(conversationID, ownerID string) string {
	return "messages:" + conversationID + ":" + ownerID
}

// SessionKey holds the authenticated-session marker of an owner.
func SessionKey(ownerID string) string {
	return "session:" + ownerID
}

func UserKey(username string) string {
	return "user:" + username
}

// Persistence loads and saves conversation state as JSON records in a KV,
// namespaced by owner and conversation. Missing and malformed records both
// read as empty; malformed ones are logged.
type Persistence struct {
	kv     KV
	logger *zap.Logger
}

func NewPersistence(kv KV, logger *zap.Logger) *Persistence {
	return &Persistence{kv: kv, logger: logger}
}

func (p *Persistence) SaveHistory(ctx context.Context, ownerID string, entries []models.HistoryEntry) error {
	if entries == nil {
		entries = []models.HistoryEntry{}
	}
	return p.save(ctx, HistoryKey(ownerID), entries)
}

func (p *Persistence) LoadHistory(ctx context.Context, ownerID string) ([]models.HistoryEntry, error) {
	return load[models.HistoryEntry](ctx, p, HistoryKey(ownerID))
}

func (p *Persistence) SaveMessages(ctx context.Context, ownerID, conversationID string, messages []models.Message) error {
	if messages == nil {
		messages = []models.Message{}
	}
	return p.save(ctx, MessagesKey(conversationID, ownerID), messages)
}

func (p *Persistence) LoadMessages(ctx context.Context, ownerID, conversationID string) ([]models.Message, error) {
	return load[models.Message](ctx, p, MessagesKey(conversationID, ownerID))
}

func (p *Persistence) save(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("%w: encode %s: %v", models.ErrPersistence, key, err)
	}
	if err := p.kv.Put(ctx, key, data); err != nil {
		return fmt.Errorf("%w: %w", models.ErrPersistence, err)
	}
	return nil
}

// load decodes a JSON list stored under key. A missing key or a corrupt
// record yields an empty list.
func load[T any](ctx context.Context, p *Persistence, key string) ([]T, error) {
	data, ok, err := p.kv.Get(ctx, key)
	if err != nil {
		return []T{}, fmt.Errorf("%w: %w", models.ErrPersistence, err)
	}
	if !ok {
		return []T{}, nil
	}

	var out []T
	if err := json.Unmarshal(data, &out); err != nil {
		p.logger.Warn("Ignoring corrupt record",
			zap.String("key", key),
			zap.Int("bytes", len(data)),
			zap.Error(err))
		return []T{}, nil
	}
	if out == nil {
		out = []T{}
	}
	return out, nil
}
