// Package auth registers wallet identities and signs them in. A wallet
// proves control of its address by signing a message with the matching
// ed25519 key; the result is a session token carrying identity and role.
package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/medicrypt/recordvault/models"
	"github.com/medicrypt/recordvault/repositories"
	"github.com/medicrypt/recordvault/services"
	"github.com/medicrypt/recordvault/token"
	"github.com/medicrypt/recordvault/wallet"
	"go.uber.org/zap"
)

// TokenIssuer issues session tokens
type TokenIssuer interface {
	Issue(identity string, role models.Role) (string, time.Time, error)
}

// Session is the result of a successful sign-in
type Session struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expires_at"`
	User      *models.User `json:"user"`
}

// Service handles signup, signin and session lookups
type Service struct {
	users    repositories.UserRepository
	verifier wallet.SignatureVerifier
	tokens   TokenIssuer
	logger   *zap.Logger
}

// NewService creates a new auth service
func NewService(users repositories.UserRepository, verifier wallet.SignatureVerifier, tokens TokenIssuer, logger *zap.Logger) *Service {
	return &Service{
		users:    users,
		verifier: verifier,
		tokens:   tokens,
		logger:   logger,
	}
}

// Signup registers walletAddress with role. An identity registers once.
func (s *Service) Signup(ctx context.Context, walletAddress, role string) (*models.User, error) {
	walletAddress = strings.TrimSpace(walletAddress)
	if _, err := wallet.ParseAddress(walletAddress); err != nil {
		return nil, services.NewDomainError(services.ErrorTypeValidation, services.ErrInvalidIdentity.Message, err)
	}

	r, err := models.ParseRole(role)
	if err != nil {
		return nil, services.NewDomainError(services.ErrorTypeValidation, services.ErrInvalidRole.Message, err).
			WithDetail("role", role)
	}

	user := models.NewUser(walletAddress, r)
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repositories.ErrAlreadyExists) {
			return nil, services.NewDomainError(services.ErrorTypeConflict, services.ErrDuplicateUser.Message, err)
		}
		s.logger.Error("failed to create user", zap.String("identity", walletAddress), zap.Error(err))
		return nil, services.WrapRepository("failed to create user", err)
	}

	s.logger.Info("user registered",
		zap.String("identity", walletAddress),
		zap.String("role", string(r)))

	return user, nil
}

// Signin verifies that signature is walletAddress's signature of message and
// issues a session token for the registered user.
func (s *Service) Signin(ctx context.Context, walletAddress, message, signature string) (*Session, error) {
	walletAddress = strings.TrimSpace(walletAddress)
	if message == "" {
		return nil, services.NewDomainError(services.ErrorTypeValidation, "message is required", nil)
	}

	sig, err := wallet.DecodeSignature(signature)
	if err != nil {
		return nil, services.NewDomainError(services.ErrorTypeUnauthorized, services.ErrInvalidSignature.Message, err)
	}
	if !s.verifier.Verify(walletAddress, []byte(message), sig) {
		s.logger.Warn("wallet signature rejected", zap.String("identity", walletAddress))
		return nil, services.ErrInvalidSignature
	}

	user, err := s.users.GetByIdentity(ctx, walletAddress)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, services.ErrUserNotRegistered
		}
		return nil, services.WrapRepository("failed to load user", err)
	}

	tok, expiresAt, err := s.tokens.Issue(user.Identity, user.Role)
	if err != nil {
		return nil, services.WrapInternal("failed to issue token", err)
	}

	s.logger.Info("user signed in",
		zap.String("identity", user.Identity),
		zap.String("role", string(user.Role)))

	return &Session{Token: tok, ExpiresAt: expiresAt, User: user}, nil
}

// Me returns the registered user behind a verified token identity. A token
// whose role no longer matches the stored user is rejected.
func (s *Service) Me(ctx context.Context, identity *token.Identity) (*models.User, error) {
	if identity == nil {
		return nil, services.ErrUnauthorized
	}

	user, err := s.users.GetByIdentity(ctx, identity.WalletAddress)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, services.ErrUserNotRegistered
		}
		return nil, services.WrapRepository("failed to load user", err)
	}
	if user.Role != identity.Role {
		return nil, services.ErrInvalidToken
	}
	return user, nil
}
