package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/mailgate/gate-service/internal/core/domain"
)

type stubOperatorRepo struct {
	mu  sync.Mutex
	ops map[string]*domain.Operator
}

func newStubOperatorRepo() *stubOperatorRepo {
	return &stubOperatorRepo{ops: make(map[string]*domain.Operator)}
}

func (r *stubOperatorRepo) Create(_ context.Context, op *domain.Operator) (*domain.Operator, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.ops[op.Username]; exists {
		return nil, domain.ErrOperatorExists
	}
	stored := *op
	stored.ID = op.Username
	r.ops[op.Username] = &stored
	out := stored
	return &out, nil
}

func (r *stubOperatorRepo) FindByUsername(_ context.Context, username string) (*domain.Operator, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	op, ok := r.ops[username]
	if !ok {
		return nil, domain.ErrOperatorNotFound
	}
	out := *op
	return &out, nil
}

const testPassword = "correct-horse-battery"

func TestAuthService_Register(t *testing.T) {
	svc := NewAuthService(newStubOperatorRepo(), "secret", time.Hour)

	op, err := svc.Register(context.Background(), " alice ", testPassword, domain.RoleAdmin)
	require.NoError(t, err)
	assert.Equal(t, "alice", op.Username)
	assert.Equal(t, domain.RoleAdmin, op.Role)
	assert.NotEqual(t, testPassword, op.PasswordHash)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(op.PasswordHash), []byte(testPassword)))
}

func TestAuthService_Register_Validation(t *testing.T) {
	svc := NewAuthService(newStubOperatorRepo(), "secret", time.Hour)
	ctx := context.Background()

	_, err := svc.Register(ctx, "", testPassword, domain.RoleAdmin)
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)

	_, err = svc.Register(ctx, "bob", "short", domain.RoleAdmin)
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)

	_, err = svc.Register(ctx, "bob", testPassword, "client")
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)
}

func TestAuthService_Register_Duplicate(t *testing.T) {
	svc := NewAuthService(newStubOperatorRepo(), "secret", time.Hour)
	ctx := context.Background()

	_, err := svc.Register(ctx, "bob", testPassword, domain.RoleViewer)
	require.NoError(t, err)
	_, err = svc.Register(ctx, "bob", testPassword+"2", domain.RoleViewer)
	assert.ErrorIs(t, err, domain.ErrOperatorExists)
}

func TestAuthService_Login(t *testing.T) {
	svc := NewAuthService(newStubOperatorRepo(), "secret", 30*time.Minute)
	issued := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return issued }
	ctx := context.Background()

	_, err := svc.Register(ctx, "carol", testPassword, domain.RoleAdmin)
	require.NoError(t, err)

	token, op, err := svc.Login(ctx, "carol", testPassword)
	require.NoError(t, err)
	assert.Equal(t, "carol", op.Username)

	claims := jwt.MapClaims{}
	_, err = jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return []byte("secret"), nil
	}, jwt.WithTimeFunc(func() time.Time { return issued.Add(time.Minute) }))
	require.NoError(t, err)

	sub, err := claims.GetSubject()
	require.NoError(t, err)
	assert.Equal(t, "carol", sub)
	assert.Equal(t, domain.RoleAdmin, claims["role"])

	exp, err := claims.GetExpirationTime()
	require.NoError(t, err)
	assert.True(t, exp.Time.Equal(issued.Add(30*time.Minute)))
}

func TestAuthService_Login_Failures(t *testing.T) {
	svc := NewAuthService(newStubOperatorRepo(), "secret", time.Hour)
	ctx := context.Background()
	_, err := svc.Register(ctx, "dave", testPassword, domain.RoleViewer)
	require.NoError(t, err)

	_, _, err = svc.Login(ctx, "dave", "wrong-password-123")
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)

	_, _, err = svc.Login(ctx, "ghost", testPassword)
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)

	_, _, err = svc.Login(ctx, "", "")
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)
}
