// Package auth issues the opaque owner identity conversations are scoped to.
// The username is the owner id; a session marker proves the caller signed in.
package auth

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/RichardoC/padchat/internal/db"
	"github.com/RichardoC/padchat/internal/models"
)

var (
	ErrUserExists         = errors.New("user already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

type user struct {
	Username     string    `json:"username"`
	PasswordHash string    `json:"password_hash"`
	CreatedAt    time.Time `json:"created_at"`
}

type session struct {
	Token     string    `json:"token"`
	CreatedAt time.Time `json:"created_at"`
}

type Option func(*Service)

// WithCost sets the bcrypt cost for new password hashes.
func WithCost(cost int) Option {
	return func(s *Service) { s.cost = cost }
}

type Service struct {
	kv     db.KV
	logger *zap.Logger
	cost   int

	// serializes signup so two callers cannot claim one username
	mu sync.Mutex
}

func NewService(kv db.KV, logger *zap.Logger, opts ...Option) *Service {
	s := &Service{kv: kv, logger: logger, cost: bcrypt.DefaultCost}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Signup registers username and signs it in, returning the session token.
func (s *Service) Signup(ctx context.Context, username, password string) (string, error) {
	if err := validate(username, password); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok, err := s.kv.Get(ctx, db.UserKey(username))
	if err != nil {
		return "", fmt.Errorf("%w: %w", models.ErrPersistence, err)
	}
	if ok {
		return "", ErrUserExists
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	u := user{Username: username, PasswordHash: string(hash), CreatedAt: time.Now()}
	if err := s.put(ctx, db.UserKey(username), u); err != nil {
		return "", err
	}

	s.logger.Info("User signed up", zap.String("owner_id", username))
	return s.startSession(ctx, username)
}

// Signin checks the password and starts a new session, replacing any
// previous one.
func (s *Service) Signin(ctx context.Context, username, password string) (string, error) {
	if err := validate(username, password); err != nil {
		return "", err
	}

	data, ok, err := s.kv.Get(ctx, db.UserKey(username))
	if err != nil {
		return "", fmt.Errorf("%w: %w", models.ErrPersistence, err)
	}
	if !ok {
		return "", ErrInvalidCredentials
	}

	var u user
	if err := json.Unmarshal(data, &u); err != nil {
		s.logger.Warn("Ignoring corrupt record", zap.String("key", db.UserKey(username)), zap.Error(err))
		return "", ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return "", ErrInvalidCredentials
	}

	return s.startSession(ctx, username)
}

// Verify reports whether token is the current session of username.
func (s *Service) Verify(ctx context.Context, username, token string) error {
	if username == "" || token == "" {
		return ErrInvalidCredentials
	}

	data, ok, err := s.kv.Get(ctx, db.SessionKey(username))
	if err != nil {
		return fmt.Errorf("%w: %w", models.ErrPersistence, err)
	}
	if !ok {
		return ErrInvalidCredentials
	}

	var sess session
	if err := json.Unmarshal(data, &sess); err != nil {
		return ErrInvalidCredentials
	}
	if subtle.ConstantTimeCompare([]byte(sess.Token), []byte(token)) != 1 {
		return ErrInvalidCredentials
	}
	return nil
}

func (s *Service) Signout(ctx context.Context, username string) error {
	if err := s.kv.Delete(ctx, db.SessionKey(username)); err != nil {
		return fmt.Errorf("%w: %w", models.ErrPersistence, err)
	}
	return nil
}

func (s *Service) startSession(ctx context.Context, username string) (string, error) {
	sess := session{Token: uuid.NewString(), CreatedAt: time.Now()}
	if err := s.put(ctx, db.SessionKey(username), sess); err != nil {
		return "", err
	}
	return sess.Token, nil
}

func (s *Service) put(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("%w: encode %s: %v", models.ErrPersistence, key, err)
	}
	if err := s.kv.Put(ctx, key, data); err != nil {
		return fmt.Errorf("%w: %w", models.ErrPersistence, err)
	}
	return nil
}

func validate(username, password string) error {
	if strings.TrimSpace(username) == "" {
		return fmt.Errorf("%w: username is empty", models.ErrValidation)
	}
	if strings.ContainsAny(username, ": \t\n") {
		return fmt.Errorf("%w: username contains reserved characters", models.ErrValidation)
	}
	if password == "" {
		return fmt.Errorf("%w: password is empty", models.ErrValidation)
	}
	return nil
}
