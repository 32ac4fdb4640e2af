package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/RichardoC/padchat/internal/auth"
	"github.com/RichardoC/padchat/internal/dispatch"
	"github.com/RichardoC/padchat/internal/models"
	"github.com/RichardoC/padchat/internal/retry"
)

type Handler struct {
	dispatcher     *dispatch.Dispatcher
	auth           *auth.Service
	logger         *zap.Logger
	requestTimeout time.Duration
	retryDelay     time.Duration
}

func NewHandler(dispatcher *dispatch.Dispatcher, authService *auth.Service, logger *zap.Logger, requestTimeout time.Duration) *Handler {
	return &Handler{
		dispatcher:     dispatcher,
		auth:           authService,
		logger:         logger,
		requestTimeout: requestTimeout,
		retryDelay:     retry.DefaultDelay,
	}
}

// Register mounts the API routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api/signup", h.Signup)
	mux.HandleFunc("/api/signin", h.Signin)
	mux.HandleFunc("/api/signout", h.Signout)
	mux.HandleFunc("/api/conversations", h.CreateConversation)
	mux.HandleFunc("/api/message", h.HandleMessage)
	mux.HandleFunc("/api/retry", h.HandleRetry)
	mux.HandleFunc("/api/messages", h.GetMessages)
	mux.HandleFunc("/api/history", h.GetHistory)
}

type CredentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type SessionResponse struct {
	OwnerID string `json:"owner_id"`
	Token   string `json:"token"`
}

type MessageRequest struct {
	Content string `json:"content"`
	// TimeoutMs overrides the server chat timeout when positive.
	TimeoutMs int64 `json:"timeout_ms,omitempty"`
}

type MessageResponse struct {
	Message models.Message `json:"message"`
}

type ConversationResponse struct {
	ConversationID string `json:"conversation_id"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (h *Handler) Signup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req CredentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, models.ErrValidation)
		return
	}

	token, err := retry.WithTimeout(r.Context(), h.requestTimeout, func(ctx context.Context) (string, error) {
		return h.auth.Signup(ctx, req.Username, req.Password)
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, SessionResponse{OwnerID: req.Username, Token: token})
}

func (h *Handler) Signin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req CredentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, models.ErrValidation)
		return
	}

	token, err := retry.WithTimeout(r.Context(), h.requestTimeout, func(ctx context.Context) (string, error) {
		return retry.WithRetry(ctx, retry.DefaultAttempts, h.retryDelay, func() (string, error) {
			token, err := h.auth.Signin(ctx, req.Username, req.Password)
			if errors.Is(err, auth.ErrInvalidCredentials) || errors.Is(err, models.ErrValidation) {
				return "", retry.Permanent(err)
			}
			return token, err
		})
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, SessionResponse{OwnerID: req.Username, Token: token})
}

func (h *Handler) Signout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	owner, ok := h.authenticate(w, r)
	if !ok {
		return
	}
	if err := h.auth.Signout(r.Context(), owner); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CreateConversation hands out a new conversation id. Nothing is stored until
// the first message is sent.
func (h *Handler) CreateConversation(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if _, ok := h.authenticate(w, r); !ok {
		return
	}

	h.writeJSON(w, http.StatusCreated, ConversationResponse{ConversationID: h.dispatcher.NewConversationID()})
}

func (h *Handler) HandleMessage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	owner, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	var req MessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, models.ErrValidation)
		return
	}

	msg, err := h.dispatcher.Send(r.Context(), dispatch.SendInput{
		ConversationID: r.URL.Query().Get("conversation_id"),
		OwnerID:        owner,
		Text:           req.Content,
		Timeout:        time.Duration(req.TimeoutMs) * time.Millisecond,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, MessageResponse{Message: msg})
}

// HandleRetry resubmits the last user message after a failed reply. Content
// must repeat that message.
func (h *Handler) HandleRetry(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	owner, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	var req MessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, models.ErrValidation)
		return
	}

	msg, err := h.dispatcher.Retry(r.Context(), dispatch.RetryInput{
		ConversationID: r.URL.Query().Get("conversation_id"),
		OwnerID:        owner,
		LastText:       req.Content,
		Timeout:        time.Duration(req.TimeoutMs) * time.Millisecond,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, MessageResponse{Message: msg})
}

func (h *Handler) GetMessages(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	owner, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	messages, err := h.dispatcher.Messages(r.Context(), owner, r.URL.Query().Get("conversation_id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.logger.Debug("Retrieved messages",
		zap.Int("count", len(messages)),
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path))
	h.writeJSON(w, http.StatusOK, messages)
}

func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	owner, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	history, err := h.dispatcher.History(r.Context(), owner)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, history)
}

// authenticate resolves the owner id from X-User and the bearer token. It
// writes the error response itself when the caller is not signed in.
func (h *Handler) authenticate(w http.ResponseWriter, r *http.Request) (string, bool) {
	owner := r.Header.Get("X-User")
	token, _ := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")

	if err := h.auth.Verify(r.Context(), owner, strings.TrimSpace(token)); err != nil {
		h.writeError(w, r, err)
		return "", false
	}
	return owner, true
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrConflict), errors.Is(err, auth.ErrUserExists):
		return http.StatusConflict
	case errors.Is(err, auth.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, models.ErrTimeout):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		h.logger.Error("Request failed",
			zap.Error(err),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path))
		msg = "Internal server error"
	}
	h.writeJSON(w, status, errorResponse{Error: msg})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("Failed to encode response", zap.Error(err))
	}
}
