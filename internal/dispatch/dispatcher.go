// Package dispatch sends user messages to the inference backend and commits
// the result into conversation state.
//
// Each attempt moves through Idle → UserAppended → Pending and ends in exactly
// one terminal assistant message: a reply, or a retryable error entry when the
// backend failed, returned an error disguised as an answer, or did not answer
// before the timeout.
package dispatch

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/RichardoC/padchat/internal/classifier"
	"github.com/RichardoC/padchat/internal/models"
	"github.com/RichardoC/padchat/internal/store"
)

// DefaultChatTimeout bounds how long a chat send waits for the backend.
const DefaultChatTimeout = 120 * time.Second

// Backend is the inference call. It returns a free-form reply, which may
// itself describe an error.
type Backend interface {
	Chat(ctx context.Context, text string) (string, error)
}

// BackendFunc adapts a function to Backend.
type BackendFunc func(ctx context.Context, text string) (string, error)

func (f BackendFunc) Chat(ctx context.Context, text string) (string, error) {
	return f(ctx, text)
}

// Persister stores message lists and history indexes per owner.
type Persister interface {
	SaveHistory(ctx context.Context, ownerID string, entries []models.HistoryEntry) error
	LoadHistory(ctx context.Context, ownerID string) ([]models.HistoryEntry, error)
	SaveMessages(ctx context.Context, ownerID, conversationID string, messages []models.Message) error
	LoadMessages(ctx context.Context, ownerID, conversationID string) ([]models.Message, error)
}

type Option func(*Dispatcher)

// WithTimeout sets the timeout used when a call does not specify one.
func WithTimeout(d time.Duration) Option {
	return func(disp *Dispatcher) {
		if d > 0 {
			disp.timeout = d
		}
	}
}

// WithAfter replaces the timer source used to race the backend.
func WithAfter(after func(time.Duration) <-chan time.Time) Option {
	return func(d *Dispatcher) { d.after = after }
}

// WithNow replaces the clock used for message timestamps.
func WithNow(now func() time.Time) Option {
	return func(d *Dispatcher) { d.now = now }
}

// Dispatcher is the only writer of its ConversationStore and HistoryIndex.
type Dispatcher struct {
	backend   Backend
	persister Persister
	logger    *zap.Logger

	conversations *store.ConversationStore
	history       *store.HistoryIndex

	timeout time.Duration
	after   func(time.Duration) <-chan time.Time
	now     func() time.Time

	mu       sync.Mutex
	inflight map[inflightKey]struct{}
}

type inflightKey struct {
	ownerID        string
	conversationID string
}

func New(backend Backend, persister Persister, logger *zap.Logger, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		backend:   backend,
		persister: persister,
		logger:    logger,
		timeout:   DefaultChatTimeout,
		after:     time.After,
		now:       time.Now,
		inflight:  make(map[inflightKey]struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.conversations = store.NewConversationStore(d.now)
	d.history = store.NewHistoryIndex()
	return d
}

type SendInput struct {
	ConversationID string
	OwnerID        string
	Text           string
	// Timeout overrides the dispatcher default for this call when positive.
	Timeout time.Duration
}

type RetryInput struct {
	ConversationID string
	OwnerID        string
	// LastText must equal the most recent user message of the conversation.
	LastText string
	Timeout  time.Duration
}

// NewConversationID returns a fresh conversation identity. The conversation
// itself is created on its first send.
func (d *Dispatcher) NewConversationID() string {
	return uuid.NewString()
}

// Send appends the user message and a pending placeholder, waits for the
// backend and commits the terminal assistant message, which it returns.
// Only validation, in-flight conflicts and failed storage reads are returned
// as errors; backend failures become an error entry in the conversation.
func (d *Dispatcher) Send(ctx context.Context, in SendInput) (models.Message, error) {
	if strings.TrimSpace(in.Text) == "" {
		return models.Message{}, fmt.Errorf("%w: message text is empty", models.ErrValidation)
	}
	if err := validateIDs(in.ConversationID, in.OwnerID); err != nil {
		return models.Message{}, err
	}

	release, err := d.acquire(in.OwnerID, in.ConversationID)
	if err != nil {
		return models.Message{}, err
	}
	defer release()

	if err := d.open(ctx, in.OwnerID, in.ConversationID); err != nil {
		return models.Message{}, err
	}

	log := d.logger.With(
		zap.String("conversation_id", in.ConversationID),
		zap.String("owner_id", in.OwnerID),
	)

	if _, err := d.conversations.AppendUser(in.OwnerID, in.ConversationID, in.Text); err != nil {
		return models.Message{}, err
	}
	log.Debug("User message appended")

	return d.dispatch(ctx, log, in.OwnerID, in.ConversationID, in.Text, in.Timeout)
}

// Retry discards the trailing error entry and resubmits the original user
// text. The user message already in the conversation is reused.
func (d *Dispatcher) Retry(ctx context.Context, in RetryInput) (models.Message, error) {
	if strings.TrimSpace(in.LastText) == "" {
		return models.Message{}, fmt.Errorf("%w: retry text is empty", models.ErrValidation)
	}
	if err := validateIDs(in.ConversationID, in.OwnerID); err != nil {
		return models.Message{}, err
	}

	release, err := d.acquire(in.OwnerID, in.ConversationID)
	if err != nil {
		return models.Message{}, err
	}
	defer release()

	if err := d.open(ctx, in.OwnerID, in.ConversationID); err != nil {
		return models.Message{}, err
	}

	last, ok := lastUserMessage(d.conversations.List(in.OwnerID, in.ConversationID))
	if !ok || last.Content != in.LastText {
		return models.Message{}, fmt.Errorf("%w: no user message matching retry text", models.ErrNotFound)
	}

	removed, err := d.conversations.RemoveLast(in.OwnerID, in.ConversationID)
	if err != nil {
		return models.Message{}, err
	}

	log := d.logger.With(
		zap.String("conversation_id", in.ConversationID),
		zap.String("owner_id", in.OwnerID),
	)
	log.Info("Retrying message", zap.String("discarded_message_id", removed.ID))

	return d.dispatch(ctx, log, in.OwnerID, in.ConversationID, last.Content, in.Timeout)
}

// Messages returns the conversation in display order, loading it from
// persistence on first access.
func (d *Dispatcher) Messages(ctx context.Context, ownerID, conversationID string) ([]models.Message, error) {
	if err := validateIDs(conversationID, ownerID); err != nil {
		return nil, err
	}
	if err := d.open(ctx, ownerID, conversationID); err != nil {
		return nil, err
	}
	return d.conversations.List(ownerID, conversationID), nil
}

// History lists the owner's conversations, most recently active first.
func (d *Dispatcher) History(ctx context.Context, ownerID string) ([]models.HistoryEntry, error) {
	if strings.TrimSpace(ownerID) == "" {
		return nil, fmt.Errorf("%w: owner id is empty", models.ErrValidation)
	}
	if err := d.loadHistory(ctx, ownerID); err != nil {
		return nil, err
	}
	return d.history.ListFor(ownerID), nil
}

func (d *Dispatcher) dispatch(ctx context.Context, log *zap.Logger, ownerID, conversationID, text string, timeout time.Duration) (models.Message, error) {
	pending, err := d.conversations.AppendPendingAssistant(ownerID, conversationID)
	if err != nil {
		return models.Message{}, err
	}

	if timeout <= 0 {
		timeout = d.timeout
	}

	a := newAttempt(pending.ID)
	outcome := d.race(ctx, log, a, text, timeout)
	kind := classifier.Classify(outcome)

	var resolved models.Message
	if kind == models.ErrorKindNone {
		resolved, err = d.conversations.ResolvePending(ownerID, conversationID, pending.ID, outcome.Text, kind, false)
	} else {
		resolved, err = d.conversations.ResolvePending(ownerID, conversationID, pending.ID, classifier.UserMessage(kind), kind, true)
	}
	if err != nil {
		// terminal already; nothing left to commit for this attempt
		log.Warn("Attempt already resolved", zap.String("message_id", pending.ID), zap.Error(err))
		return resolved, nil
	}

	if kind == models.ErrorKindNone {
		log.Info("Message resolved", zap.String("message_id", resolved.ID))
	} else {
		cause := outcome.Err
		if cause == nil {
			cause = classifier.Err(kind)
		}
		log.Warn("Message failed",
			zap.String("message_id", resolved.ID),
			zap.String("error_kind", string(kind)),
			zap.Error(cause))
	}

	d.persist(ctx, log, ownerID, conversationID, resolved)
	return resolved, nil
}

// persist writes the commit through to storage. Failures are logged and never
// undo the in-memory state. Failed attempts do not advance history.
func (d *Dispatcher) persist(ctx context.Context, log *zap.Logger, ownerID, conversationID string, resolved models.Message) {
	ctx = context.WithoutCancel(ctx)

	conv, _ := d.conversations.Get(ownerID, conversationID)
	err := d.persister.SaveMessages(ctx, ownerID, conversationID, conv.Messages)

	if resolved.Status == models.StatusComplete {
		d.history.Upsert(models.HistoryEntry{
			ConversationID:     conversationID,
			OwnerID:            ownerID,
			Title:              conv.Title,
			LastMessagePreview: models.PreviewFrom(resolved.Content),
			LastActivity:       resolved.Timestamp,
		})
		err = multierr.Append(err, d.persister.SaveHistory(ctx, ownerID, d.history.ListFor(ownerID)))
	}

	if err != nil {
		log.Error("Failed to persist conversation", zap.Error(err))
	}
}

// open makes sure the conversation and the owner's history are in memory,
// loading them from persistence the first time they are touched. A failed
// read leaves nothing installed, so a later commit can never write a partial
// view over the stored records.
func (d *Dispatcher) open(ctx context.Context, ownerID, conversationID string) error {
	if err := d.loadHistory(ctx, ownerID); err != nil {
		return err
	}

	if d.conversations.Has(ownerID, conversationID) {
		return nil
	}

	messages, err := d.persister.LoadMessages(ctx, ownerID, conversationID)
	if err != nil {
		d.logger.Error("Failed to load messages",
			zap.String("conversation_id", conversationID),
			zap.String("owner_id", ownerID),
			zap.Error(err))
		return err
	}
	d.conversations.Restore(ownerID, conversationID, messages)
	return nil
}

func (d *Dispatcher) loadHistory(ctx context.Context, ownerID string) error {
	if d.history.Loaded(ownerID) {
		return nil
	}
	entries, err := d.persister.LoadHistory(ctx, ownerID)
	if err != nil {
		d.logger.Error("Failed to load history", zap.String("owner_id", ownerID), zap.Error(err))
		return err
	}
	d.history.Restore(ownerID, entries)
	return nil
}

// acquire marks the conversation as having an attempt in flight.
func (d *Dispatcher) acquire(ownerID, conversationID string) (func(), error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	k := inflightKey{ownerID, conversationID}
	if _, busy := d.inflight[k]; busy {
		return nil, fmt.Errorf("%w: conversation %s", models.ErrConflict, conversationID)
	}
	d.inflight[k] = struct{}{}

	return func() {
		d.mu.Lock()
		delete(d.inflight, k)
		d.mu.Unlock()
	}, nil
}

func validateIDs(conversationID, ownerID string) error {
	if strings.TrimSpace(conversationID) == "" {
		return fmt.Errorf("%w: conversation id is empty", models.ErrValidation)
	}
	if strings.TrimSpace(ownerID) == "" {
		return fmt.Errorf("%w: owner id is empty", models.ErrValidation)
	}
	return nil
}

func lastUserMessage(messages []models.Message) (models.Message, bool) {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == models.RoleUser {
			return messages[i], true
		}
	}
	return models.Message{}, false
}
