// Package token issues and verifies the signed session tokens that carry a
// caller's wallet identity and role between requests.
package token

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/medicrypt/recordvault/models"
)

var (
	// ErrMissingToken is returned when no token was presented
	ErrMissingToken = errors.New("missing token")

	// ErrInvalidToken is returned when the signature, format or claims are invalid
	ErrInvalidToken = errors.New("invalid token")

	// ErrTokenExpired is returned when the token has expired. It wraps
	// ErrInvalidToken, so callers that only check for invalid tokens see
	// expiry as well.
	ErrTokenExpired = fmt.Errorf("%w: expired", ErrInvalidToken)
)

// Claims represents the claims carried in a session token
type Claims struct {
	jwt.RegisteredClaims
	WalletAddress string `json:"walletAddress"`
	Role          string `json:"role"`
}

// Identity is the verified content of a token
type Identity struct {
	WalletAddress string
	Role          models.Role
	TokenID       string
	IssuedAt      time.Time
	ExpiresAt     time.Time
}

// Config holds configuration for the token Manager
type Config struct {
	Secret string
	Issuer string
	TTL    time.Duration
}

// Manager issues and verifies HS256 session tokens
type Manager struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// NewManager creates a new token manager
func NewManager(config Config) *Manager {
	if config.TTL == 0 {
		config.TTL = 8 * time.Hour
	}

	return &Manager{
		secret: []byte(config.Secret),
		issuer: config.Issuer,
		ttl:    config.TTL,
		now:    time.Now,
	}
}

// Issue creates a token for identity with the given role
func (m *Manager) Issue(identity string, role models.Role) (string, time.Time, error) {
	if identity == "" {
		return "", time.Time{}, fmt.Errorf("%w: empty wallet address", ErrInvalidToken)
	}
	if !role.Valid() {
		return "", time.Time{}, fmt.Errorf("%w: unknown role %q", ErrInvalidToken, role)
	}

	now := m.now()
	expiresAt := now.Add(m.ttl)

	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    m.issuer,
			Subject:   identity,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		WalletAddress: identity,
		Role:          string(role),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}

	return signed, expiresAt, nil
}

// Verify validates a token and returns the identity it carries. The
// context is unused today; it keeps the signature compatible with
// verifiers that need network access.
func (m *Manager) Verify(ctx context.Context, tokenString string) (*Identity, error) {
	if tokenString == "" {
		return nil, ErrMissingToken
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(m.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(m.now),
	)

	token, err := parser.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return m.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	return parseClaims(claims)
}

// parseClaims converts Claims to an Identity, rejecting unknown roles
func parseClaims(claims *Claims) (*Identity, error) {
	if claims.WalletAddress == "" || claims.WalletAddress != claims.Subject {
		return nil, fmt.Errorf("%w: wallet address does not match subject", ErrInvalidToken)
	}

	role, err := models.ParseRole(claims.Role)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	identity := &Identity{
		WalletAddress: claims.WalletAddress,
		Role:          role,
		TokenID:       claims.ID,
	}
	if claims.IssuedAt != nil {
		identity.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		identity.ExpiresAt = claims.ExpiresAt.Time
	}

	return identity, nil
}
