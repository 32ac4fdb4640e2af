package models

import "time"

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Status string

const (
	StatusPending  Status = "pending"
	StatusComplete Status = "complete"
	StatusError    Status = "error"
)

// ErrorKind is the classification of a backend call outcome. The zero value
// means the call produced a genuine answer.
type ErrorKind string

const (
	ErrorKindNone    ErrorKind = ""
	ErrorKindTimeout ErrorKind = "timeout"
	ErrorKindBusy    ErrorKind = "busy"
	ErrorKindGeneric ErrorKind = "generic"
)

type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Role           Role      `json:"role"`
	Content        string    `json:"content"`
	Timestamp      time.Time `json:"timestamp"`
	Status         Status    `json:"status"`
	Retryable      bool      `json:"retryable"`
	ErrorKind      ErrorKind `json:"error_kind,omitempty"`
}

// Terminal reports whether the message has left the pending state.
func (m Message) Terminal() bool {
	return m.Status == StatusComplete || m.Status == StatusError
}

type Conversation struct {
	ID       string    `json:"id"`
	OwnerID  string    `json:"owner_id"`
	Title    string    `json:"title"`
	Messages []Message `json:"messages"`
}

// HistoryEntry is the listing summary of one conversation. It is derived
// from the Conversation and can be rebuilt from it at any time.
type HistoryEntry struct {
	ConversationID     string    `json:"conversation_id"`
	OwnerID            string    `json:"owner_id"`
	Title              string    `json:"title"`
	LastMessagePreview string    `json:"last_message_preview"`
	LastActivity       time.Time `json:"last_activity"`
}

const titleMaxRunes = 30

// TitleFrom derives a conversation title from its first user message.
func TitleFrom(text string) string {
	return truncate(text, titleMaxRunes)
}

const previewMaxRunes = 120

// PreviewFrom shortens an assistant reply for the history listing.
func PreviewFrom(text string) string {
	return truncate(text, previewMaxRunes)
}

func truncate(text string, max int) string {
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	return string(runes[:max]) + "..."
}
