package middleware

import (
	"context"

	"github.com/medicrypt/recordvault/services"
	"github.com/medicrypt/recordvault/services/policy"
	"github.com/medicrypt/recordvault/token"
)

// Context key type to avoid collisions
type contextKey string

const (
	// IdentityKey is the context key for the verified token identity
	IdentityKey contextKey = "identity"
)

// GetRequestIDFromContext retrieves the request ID from context
func GetRequestIDFromContext(ctx context.Context) string {
	return services.RequestIDFromContext(ctx)
}

// WithRequestID adds a request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return services.WithRequestID(ctx, requestID)
}

// GetIdentityFromContext retrieves the verified token identity from context
func GetIdentityFromContext(ctx context.Context) *token.Identity {
	if val := ctx.Value(IdentityKey); val != nil {
		if identity, ok := val.(*token.Identity); ok {
			return identity
		}
	}
	return nil
}

// WithIdentity adds a verified token identity to the context
func WithIdentity(ctx context.Context, identity *token.Identity) context.Context {
	return context.WithValue(ctx, IdentityKey, identity)
}

// SubjectFromContext returns the authorization subject of the caller
func SubjectFromContext(ctx context.Context) (policy.Subject, bool) {
	identity := GetIdentityFromContext(ctx)
	if identity == nil {
		return policy.Subject{}, false
	}
	return policy.Subject{Identity: identity.WalletAddress, Role: identity.Role}, true
}
