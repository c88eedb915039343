package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/medicrypt/recordvault/token"
	"github.com/medicrypt/recordvault/utils"
	"go.uber.org/zap"
)

// TokenVerifier defines the interface for verifying session tokens
type TokenVerifier interface {
	// Verify checks a session token and returns the identity it carries
	Verify(ctx context.Context, token string) (*token.Identity, error)
}

// AuthMiddleware provides authentication middleware functionality
type AuthMiddleware struct {
	verifier TokenVerifier
	logger   *zap.Logger
}

// NewAuthMiddleware creates a new AuthMiddleware
func NewAuthMiddleware(verifier TokenVerifier, logger *zap.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		verifier: verifier,
		logger:   logger,
	}
}

// AuthTokenCookieName is the cookie name for session tokens (Authorization header takes precedence)
const AuthTokenCookieName = "auth_token"

// RequireAuth is a middleware that requires a valid session token. The
// verified identity is the only source of the caller's wallet and role.
func (m *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		requestID := GetRequestIDFromContext(ctx)

		// Extract token from the Authorization header ("Bearer TOKEN") or cookie ("auth_token")
		raw := extractToken(r)
		if raw == "" {
			m.logger.Warn("missing token",
				zap.String("request_id", requestID))
			_ = utils.WriteUnauthorized(w, "Missing or invalid authorization")
			return
		}

		identity, err := m.verifier.Verify(ctx, raw)
		if err != nil {
			m.logger.Warn("token verification failed",
				zap.String("request_id", requestID),
				zap.Error(err))
			if errors.Is(err, token.ErrTokenExpired) {
				_ = utils.WriteUnauthorized(w, "Token expired")
				return
			}
			_ = utils.WriteUnauthorized(w, "Invalid token")
			return
		}

		ctx = WithIdentity(ctx, identity)

		m.logger.Debug("authentication successful",
			zap.String("request_id", requestID),
			zap.String("identity", identity.WalletAddress),
			zap.String("role", string(identity.Role)))

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// extractToken extracts the token from the Authorization header ("Bearer TOKEN") or
// cookie ("auth_token"). The header takes precedence when both are present.
func extractToken(r *http.Request) string {
	if raw := extractBearerToken(r); raw != "" {
		return raw
	}
	if cookie, err := r.Cookie(AuthTokenCookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	return ""
}

// extractBearerToken extracts the Bearer token from the Authorization header
func extractBearerToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return ""
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return ""
	}

	return strings.TrimSpace(parts[1])
}
