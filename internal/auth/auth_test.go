package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/crypto/bcrypt"

	"github.com/RichardoC/padchat/internal/db"
	"github.com/RichardoC/padchat/internal/models"
)

func newTestService(t *testing.T) (*Service, *db.Memory) {
	t.Helper()
	kv := db.NewMemory()
	return NewService(kv, zaptest.NewLogger(t), WithCost(bcrypt.MinCost)), kv
}

func TestSignupAndVerify(t *testing.T) {
	ctx := context.Background()
	s, kv := newTestService(t)

	token, err := s.Signup(ctx, "alice", "secret")
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	require.NoError(t, s.Verify(ctx, "alice", token))

	raw, ok, err := kv.Get(ctx, db.UserKey("alice"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.NotContains(t, string(raw), "secret")

	_, err = s.Signup(ctx, "alice", "other")
	assert.ErrorIs(t, err, ErrUserExists)
}

func TestSignin(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestService(t)

	first, err := s.Signup(ctx, "alice", "secret")
	require.NoError(t, err)

	second, err := s.Signin(ctx, "alice", "secret")
	require.NoError(t, err)
	assert.NotEqual(t, first, second)

	assert.ErrorIs(t, s.Verify(ctx, "alice", first), ErrInvalidCredentials, "signin replaces the session")
	assert.NoError(t, s.Verify(ctx, "alice", second))

	_, err = s.Signin(ctx, "alice", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = s.Signin(ctx, "bob", "secret")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestVerifyRejects(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestService(t)

	token, err := s.Signup(ctx, "alice", "secret")
	require.NoError(t, err)

	tests := []struct {
		name     string
		username string
		token    string
	}{
		{"empty token", "alice", ""},
		{"wrong token", "alice", "not-the-token"},
		{"other user", "bob", token},
		{"empty user", "", token},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, s.Verify(ctx, tt.username, tt.token), ErrInvalidCredentials)
		})
	}
}

func TestSignout(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestService(t)

	token, err := s.Signup(ctx, "alice", "secret")
	require.NoError(t, err)
	require.NoError(t, s.Signout(ctx, "alice"))

	assert.ErrorIs(t, s.Verify(ctx, "alice", token), ErrInvalidCredentials)
}

func TestSignupValidation(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestService(t)

	tests := []struct {
		name     string
		username string
		password string
	}{
		{"empty username", "  ", "secret"},
		{"empty password", "alice", ""},
		{"reserved character", "alice:admin", "secret"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Signup(ctx, tt.username, tt.password)
			assert.ErrorIs(t, err, models.ErrValidation)
		})
	}
}
