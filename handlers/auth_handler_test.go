package handlers

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/medicrypt/recordvault/middleware"
	"github.com/medicrypt/recordvault/models"
	"github.com/medicrypt/recordvault/services"
	"github.com/medicrypt/recordvault/services/auth"
	"github.com/medicrypt/recordvault/token"
	"github.com/medicrypt/recordvault/utils"
	"github.com/medicrypt/recordvault/wallet"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// MockAuthService is a mock implementation of AuthService
type MockAuthService struct {
	mock.Mock
}

func (m *MockAuthService) Signup(ctx context.Context, walletAddress, role string) (*models.User, error) {
	args := m.Called(ctx, walletAddress, role)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockAuthService) Signin(ctx context.Context, walletAddress, message, signature string) (*auth.Session, error) {
	args := m.Called(ctx, walletAddress, message, signature)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*auth.Session), args.Error(1)
}

func (m *MockAuthService) Me(ctx context.Context, identity *token.Identity) (*models.User, error) {
	args := m.Called(ctx, identity)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func walletFromSeed(seed byte) string {
	key := ed25519.NewKeyFromSeed(bytes.Repeat([]byte{seed}, ed25519.SeedSize))
	return wallet.FormatAddress(key.Public().(ed25519.PublicKey))
}

func jsonBody(t *testing.T, v interface{}) *bytes.Reader {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	return bytes.NewReader(raw)
}

func TestHandleSignup(t *testing.T) {
	logger := zap.NewNop()
	address := walletFromSeed(1)

	t.Run("registers wallet", func(t *testing.T) {
		svc := new(MockAuthService)
		handler := NewAuthHandler(svc, false, logger)

		user := models.NewUser(address, models.RolePatient)
		svc.On("Signup", mock.Anything, address, "patient").Return(user, nil)

		req := httptest.NewRequest(http.MethodPost, "/api/auth/signup",
			jsonBody(t, SignupRequest{WalletAddress: address, Role: "patient"}))
		w := httptest.NewRecorder()

		handler.HandleSignup(w, req)

		assert.Equal(t, http.StatusCreated, w.Code)

		var response struct {
			Data models.User `json:"data"`
		}
		require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
		assert.Equal(t, address, response.Data.Identity)
		assert.Equal(t, models.RolePatient, response.Data.Role)
		svc.AssertExpectations(t)
	})

	t.Run("rejects unknown role before calling the service", func(t *testing.T) {
		svc := new(MockAuthService)
		handler := NewAuthHandler(svc, false, logger)

		req := httptest.NewRequest(http.MethodPost, "/api/auth/signup",
			jsonBody(t, SignupRequest{WalletAddress: address, Role: "admin"}))
		w := httptest.NewRecorder()

		handler.HandleSignup(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)

		var response utils.ErrorResponse
		require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
		assert.Contains(t, response.Details, "role")
		svc.AssertNotCalled(t, "Signup", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("rejects malformed wallet", func(t *testing.T) {
		svc := new(MockAuthService)
		handler := NewAuthHandler(svc, false, logger)

		req := httptest.NewRequest(http.MethodPost, "/api/auth/signup",
			jsonBody(t, SignupRequest{WalletAddress: "0xdeadbeef", Role: "doctor"}))
		w := httptest.NewRecorder()

		handler.HandleSignup(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "walletAddress")
	})

	t.Run("empty body", func(t *testing.T) {
		handler := NewAuthHandler(new(MockAuthService), false, logger)

		w := httptest.NewRecorder()
		handler.HandleSignup(w, httptest.NewRequest(http.MethodPost, "/api/auth/signup", strings.NewReader("")))

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("duplicate registration", func(t *testing.T) {
		svc := new(MockAuthService)
		handler := NewAuthHandler(svc, false, logger)

		svc.On("Signup", mock.Anything, address, "doctor").Return(nil, services.ErrDuplicateUser)

		req := httptest.NewRequest(http.MethodPost, "/api/auth/signup",
			jsonBody(t, SignupRequest{WalletAddress: address, Role: "doctor"}))
		w := httptest.NewRecorder()

		handler.HandleSignup(w, req)

		assert.Equal(t, http.StatusConflict, w.Code)
	})
}

func TestHandleSignin(t *testing.T) {
	logger := zap.NewNop()
	address := walletFromSeed(2)
	signin := SigninRequest{WalletAddress: address, Message: "login 2026-10-16", Signature: "sig"}

	t.Run("issues session and cookie", func(t *testing.T) {
		svc := new(MockAuthService)
		handler := NewAuthHandler(svc, true, logger)

		expires := time.Now().Add(8 * time.Hour).UTC().Truncate(time.Second)
		session := &auth.Session{
			Token:     "signed-token",
			ExpiresAt: expires,
			User:      models.NewUser(address, models.RoleDoctor),
		}
		svc.On("Signin", mock.Anything, address, signin.Message, signin.Signature).Return(session, nil)

		w := httptest.NewRecorder()
		handler.HandleSignin(w, httptest.NewRequest(http.MethodPost, "/api/auth/signin", jsonBody(t, signin)))

		assert.Equal(t, http.StatusOK, w.Code)

		var response struct {
			Data auth.Session `json:"data"`
		}
		require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
		assert.Equal(t, "signed-token", response.Data.Token)

		cookies := w.Result().Cookies()
		require.Len(t, cookies, 1)
		assert.Equal(t, middleware.AuthTokenCookieName, cookies[0].Name)
		assert.Equal(t, "signed-token", cookies[0].Value)
		assert.True(t, cookies[0].HttpOnly)
		assert.True(t, cookies[0].Secure)
	})

	t.Run("bad signature", func(t *testing.T) {
		svc := new(MockAuthService)
		handler := NewAuthHandler(svc, false, logger)

		svc.On("Signin", mock.Anything, address, signin.Message, signin.Signature).Return(nil, services.ErrInvalidSignature)

		w := httptest.NewRecorder()
		handler.HandleSignin(w, httptest.NewRequest(http.MethodPost, "/api/auth/signin", jsonBody(t, signin)))

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Empty(t, w.Result().Cookies())
	})

	t.Run("missing signature", func(t *testing.T) {
		svc := new(MockAuthService)
		handler := NewAuthHandler(svc, false, logger)

		body := jsonBody(t, SigninRequest{WalletAddress: address, Message: "login"})
		w := httptest.NewRecorder()
		handler.HandleSignin(w, httptest.NewRequest(http.MethodPost, "/api/auth/signin", body))

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "signature")
		svc.AssertNotCalled(t, "Signin", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestHandleMe(t *testing.T) {
	logger := zap.NewNop()
	address := walletFromSeed(3)

	t.Run("returns claims and stored user", func(t *testing.T) {
		svc := new(MockAuthService)
		handler := NewAuthHandler(svc, false, logger)

		identity := &token.Identity{WalletAddress: address, Role: models.RoleResearcher, ExpiresAt: time.Now().Add(time.Hour)}
		svc.On("Me", mock.Anything, identity).Return(models.NewUser(address, models.RoleResearcher), nil)

		req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
		req = req.WithContext(middleware.WithIdentity(req.Context(), identity))
		w := httptest.NewRecorder()

		handler.HandleMe(w, req)

		assert.Equal(t, http.StatusOK, w.Code)

		var response struct {
			Data MeResponse `json:"data"`
		}
		require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
		assert.Equal(t, address, response.Data.WalletAddress)
		assert.Equal(t, models.RoleResearcher, response.Data.Role)
		require.NotNil(t, response.Data.User)
		assert.Equal(t, address, response.Data.User.Identity)
	})

	t.Run("requires authentication", func(t *testing.T) {
		handler := NewAuthHandler(new(MockAuthService), false, logger)

		w := httptest.NewRecorder()
		handler.HandleMe(w, httptest.NewRequest(http.MethodGet, "/api/auth/me", nil))

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("stale role is rejected", func(t *testing.T) {
		svc := new(MockAuthService)
		handler := NewAuthHandler(svc, false, logger)

		identity := &token.Identity{WalletAddress: address, Role: models.RoleDoctor}
		svc.On("Me", mock.Anything, identity).Return(nil, services.ErrInvalidToken)

		req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
		req = req.WithContext(middleware.WithIdentity(req.Context(), identity))
		w := httptest.NewRecorder()

		handler.HandleMe(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}
