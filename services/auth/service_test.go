package auth

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"testing"
	"time"

	"github.com/medicrypt/recordvault/models"
	"github.com/medicrypt/recordvault/repositories/memory"
	"github.com/medicrypt/recordvault/services"
	"github.com/medicrypt/recordvault/token"
	"github.com/medicrypt/recordvault/wallet"
	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// MockUserRepository is a mock implementation of repositories.UserRepository
type MockUserRepository struct {
	mock.Mock
}

func (m *MockUserRepository) Create(ctx context.Context, user *models.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *MockUserRepository) GetByIdentity(ctx context.Context, identity string) (*models.User, error) {
	args := m.Called(ctx, identity)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

type testWallet struct {
	address string
	key     ed25519.PrivateKey
}

func newTestWallet(t *testing.T) testWallet {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	return testWallet{address: wallet.FormatAddress(pub), key: priv}
}

func (w testWallet) sign(message string) string {
	return base58.Encode(ed25519.Sign(w.key, []byte(message)))
}

func newTestService(t *testing.T) (*Service, *token.Manager) {
	t.Helper()
	logger := zap.NewNop()
	users := memory.NewStore(logger).NewRepositories().Users
	tokens := token.NewManager(token.Config{Secret: "test-secret", Issuer: "recordvault", TTL: time.Hour})
	return NewService(users, wallet.NewEd25519Verifier(), tokens, logger), tokens
}

func TestService_Signup(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)
	w := newTestWallet(t)

	user, err := svc.Signup(ctx, w.address, "doctor")
	require.NoError(t, err)
	assert.Equal(t, w.address, user.Identity)
	assert.Equal(t, models.RoleDoctor, user.Role)

	t.Run("duplicate identity", func(t *testing.T) {
		_, err := svc.Signup(ctx, w.address, "patient")
		assert.True(t, services.IsConflictError(err))
	})

	tests := []struct {
		name    string
		address string
		role    string
	}{
		{"unknown role", newTestWallet(t).address, "admin"},
		{"empty role", newTestWallet(t).address, ""},
		{"not base58", "0OIl", "patient"},
		{"wrong key length", base58.Encode([]byte("short")), "patient"},
		{"empty address", "", "patient"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Signup(ctx, tt.address, tt.role)
			assert.True(t, services.IsValidationError(err))
		})
	}
}

func TestService_Signin(t *testing.T) {
	ctx := context.Background()
	svc, tokens := newTestService(t)
	w := newTestWallet(t)
	_, err := svc.Signup(ctx, w.address, "patient")
	require.NoError(t, err)

	message := "Sign in to recordvault at 2026-10-16T10:00:00Z"

	session, err := svc.Signin(ctx, w.address, message, w.sign(message))
	require.NoError(t, err)
	assert.NotEmpty(t, session.Token)
	assert.Equal(t, w.address, session.User.Identity)
	assert.True(t, session.ExpiresAt.After(time.Now()))

	identity, err := tokens.Verify(ctx, session.Token)
	require.NoError(t, err)
	assert.Equal(t, w.address, identity.WalletAddress)
	assert.Equal(t, models.RolePatient, identity.Role)

	other := newTestWallet(t)

	tests := []struct {
		name      string
		address   string
		message   string
		signature string
		check     func(error) bool
	}{
		{"signed by another wallet", w.address, message, other.sign(message), services.IsUnauthorizedError},
		{"altered message", w.address, message + "!", w.sign(message), services.IsUnauthorizedError},
		{"signature not base58", w.address, message, "0OIl", services.IsUnauthorizedError},
		{"unregistered wallet", other.address, message, other.sign(message), services.IsUnauthorizedError},
		{"empty message", w.address, "", w.sign(""), services.IsValidationError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Signin(ctx, tt.address, tt.message, tt.signature)
			require.Error(t, err)
			assert.True(t, tt.check(err), err.Error())
		})
	}
}

func TestService_SigninUnregisteredUsesDistinctError(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)
	w := newTestWallet(t)

	_, err := svc.Signin(ctx, w.address, "hello", w.sign("hello"))
	assert.Equal(t, services.ErrUserNotRegistered, err)
}

func TestService_Me(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)
	w := newTestWallet(t)
	_, err := svc.Signup(ctx, w.address, "researcher")
	require.NoError(t, err)

	user, err := svc.Me(ctx, &token.Identity{WalletAddress: w.address, Role: models.RoleResearcher})
	require.NoError(t, err)
	assert.Equal(t, models.RoleResearcher, user.Role)

	_, err = svc.Me(ctx, &token.Identity{WalletAddress: w.address, Role: models.RoleDoctor})
	assert.True(t, services.IsUnauthorizedError(err))

	_, err = svc.Me(ctx, &token.Identity{WalletAddress: newTestWallet(t).address, Role: models.RolePatient})
	assert.True(t, services.IsUnauthorizedError(err))

	_, err = svc.Me(ctx, nil)
	assert.True(t, services.IsUnauthorizedError(err))
}

func TestService_RepositoryOutage(t *testing.T) {
	ctx := context.Background()
	repo := new(MockUserRepository)
	tokens := token.NewManager(token.Config{Secret: "s", Issuer: "recordvault"})
	svc := NewService(repo, wallet.NewEd25519Verifier(), tokens, zap.NewNop())
	w := newTestWallet(t)

	outage := errors.New("connection refused")
	repo.On("Create", mock.Anything, mock.AnythingOfType("*models.User")).Return(outage)
	repo.On("GetByIdentity", mock.Anything, w.address).Return(nil, outage)

	_, err := svc.Signup(ctx, w.address, "patient")
	assert.True(t, services.IsUnavailableError(err))

	_, err = svc.Signin(ctx, w.address, "hello", w.sign("hello"))
	assert.True(t, services.IsUnavailableError(err))

	repo.AssertExpectations(t)
}
