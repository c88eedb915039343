package models

import (
	"time"

	"github.com/google/uuid"
)

// SecurityEventKind classifies events that are kept outside the record ledger.
type SecurityEventKind string

const (
	SecurityEventAccessDenied   SecurityEventKind = "access_denied"
	SecurityEventAggregateQuery SecurityEventKind = "aggregate_query"
)

// SecurityEvent is an operational audit event: a refused request or a
// researcher query over anonymized aggregates.
type SecurityEvent struct {
	ID        uuid.UUID         `json:"id" db:"id"`
	Kind      SecurityEventKind `json:"kind" db:"kind"`
	Identity  string            `json:"identity" db:"identity"`
	Role      Role              `json:"role" db:"role"`
	RecordID  string            `json:"record_id,omitempty" db:"record_id"`
	Action    string            `json:"action" db:"action"`
	Reason    string            `json:"reason,omitempty" db:"reason"`
	RequestID string            `json:"request_id,omitempty" db:"request_id"`
	Timestamp time.Time         `json:"timestamp" db:"timestamp"`
}

// TableName returns the table name for the SecurityEvent model
func (SecurityEvent) TableName() string {
	return "security_events"
}

// NewSecurityEvent creates a new SecurityEvent instance
func NewSecurityEvent(kind SecurityEventKind, identity string, role Role, action string) *SecurityEvent {
	return &SecurityEvent{
		ID:        uuid.New(),
		Kind:      kind,
		Identity:  identity,
		Role:      role,
		Action:    action,
		Timestamp: time.Now().UTC(),
	}
}

// WithRecord sets the record the event refers to.
func (e *SecurityEvent) WithRecord(recordID string) *SecurityEvent {
	e.RecordID = recordID
	return e
}

// WithReason sets the denial reason.
func (e *SecurityEvent) WithReason(reason string) *SecurityEvent {
	e.Reason = reason
	return e
}

// WithRequest sets the request ID the event was raised under.
func (e *SecurityEvent) WithRequest(requestID string) *SecurityEvent {
	e.RequestID = requestID
	return e
}
