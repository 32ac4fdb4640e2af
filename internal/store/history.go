package store

import (
	"sort"
	"sync"

	"github.com/RichardoC/padchat/internal/models"
)

// HistoryIndex caches one summary per conversation per owner for listing.
type HistoryIndex struct {
	mu      sync.RWMutex
	entries map[string]map[string]models.HistoryEntry
	loaded  map[string]bool
}

func NewHistoryIndex() *HistoryIndex {
	return &HistoryIndex{
		entries: make(map[string]map[string]models.HistoryEntry),
		loaded:  make(map[string]bool),
	}
}

// Upsert inserts the entry, or refreshes preview and activity time of an
// existing one. The title of an existing entry is never changed.
func (h *HistoryIndex) Upsert(entry models.HistoryEntry) {
	h.mu.Lock()
	defer h.mu.Unlock()

	byConv, ok := h.entries[entry.OwnerID]
	if !ok {
		byConv = make(map[string]models.HistoryEntry)
		h.entries[entry.OwnerID] = byConv
	}

	if existing, ok := byConv[entry.ConversationID]; ok {
		existing.LastMessagePreview = entry.LastMessagePreview
		existing.LastActivity = entry.LastActivity
		byConv[entry.ConversationID] = existing
		return
	}
	byConv[entry.ConversationID] = entry
}

// Restore seeds an owner's entries from persistence, keeping any entry that
// is already in memory.
func (h *HistoryIndex) Restore(ownerID string, entries []models.HistoryEntry) {
	h.mu.Lock()
	defer h.mu.Unlock()

	byConv, ok := h.entries[ownerID]
	if !ok {
		byConv = make(map[string]models.HistoryEntry)
		h.entries[ownerID] = byConv
	}
	for _, e := range entries {
		if e.OwnerID != ownerID {
			continue
		}
		if _, exists := byConv[e.ConversationID]; !exists {
			byConv[e.ConversationID] = e
		}
	}
	h.loaded[ownerID] = true
}

func (h *HistoryIndex) Loaded(ownerID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.loaded[ownerID]
}

// ListFor returns the owner's entries, most recent activity first.
func (h *HistoryIndex) ListFor(ownerID string) []models.HistoryEntry {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]models.HistoryEntry, 0, len(h.entries[ownerID]))
	for _, e := range h.entries[ownerID] {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].LastActivity.Equal(out[j].LastActivity) {
			return out[i].LastActivity.After(out[j].LastActivity)
		}
		return out[i].ConversationID < out[j].ConversationID
	})
	return out
}
