package services

import (
	"context"

	"github.com/medicrypt/recordvault/models"
	"github.com/medicrypt/recordvault/services/policy"
)

// Outcome is the result of a record operation: the authorization decision,
// the data produced when allowed and the ledger entry the operation wrote,
// if any. A denial is an Outcome, not an error.
type Outcome[T any] struct {
	Decision policy.Decision
	Data     T
	Entry    *models.AuditEntry
}

// Allowed builds an allowing outcome.
func Allowed[T any](data T, entry *models.AuditEntry) Outcome[T] {
	return Outcome[T]{Decision: policy.Allow(), Data: data, Entry: entry}
}

// Denied builds a denying outcome carrying reason.
func Denied[T any](reason policy.Reason) Outcome[T] {
	return Outcome[T]{Decision: policy.Deny(reason)}
}

type requestIDContextKey struct{}

// WithRequestID attaches the inbound request ID to ctx.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDContextKey{}, requestID)
}

// RequestIDFromContext returns the request ID attached to ctx, if any.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDContextKey{}).(string)
	return id
}
