package models

import (
	"time"

	"github.com/google/uuid"
)

// AccessRequestStatus is the lifecycle state of an access request.
type AccessRequestStatus string

const (
	AccessRequestPending  AccessRequestStatus = "PENDING"
	AccessRequestApproved AccessRequestStatus = "APPROVED"
	AccessRequestRejected AccessRequestStatus = "REJECTED"
)

// IsDecision reports whether s is a terminal status an owner may set.
func (s AccessRequestStatus) IsDecision() bool {
	return s == AccessRequestApproved || s == AccessRequestRejected
}

// AccessRequest is a doctor's request to be granted access to a record.
type AccessRequest struct {
	ID        uuid.UUID           `json:"id" db:"id"`
	RecordID  string              `json:"record_id" db:"record_id"`
	Requester string              `json:"requester" db:"requester"`
	Status    AccessRequestStatus `json:"status" db:"status"`
	CreatedAt time.Time           `json:"created_at" db:"created_at"`
	UpdatedAt time.Time           `json:"updated_at" db:"updated_at"`
}

// TableName returns the table name for the AccessRequest model
func (AccessRequest) TableName() string {
	return "access_requests"
}

// NewAccessRequest creates a pending request.
func NewAccessRequest(recordID, requester string, at time.Time) *AccessRequest {
	return &AccessRequest{
		ID:        uuid.New(),
		RecordID:  recordID,
		Requester: requester,
		Status:    AccessRequestPending,
		CreatedAt: at,
		UpdatedAt: at,
	}
}
