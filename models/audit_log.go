package models

import (
	"slices"
	"time"

	"github.com/google/uuid"
)

// AuditAction represents the type of action being audited
type AuditAction string

const (
	AuditActionStoreArtifact AuditAction = "store_artifact"
	AuditActionReadReport    AuditAction = "read_report"
	AuditActionGrantAccess   AuditAction = "grant_access"
	AuditActionRevokeAccess  AuditAction = "revoke_access"
)

// IsAccess reports whether the action released record content to a reader.
// Only access entries make up the audit log shown to owners; mutations stay
// on the chain and are covered by verification.
func (a AuditAction) IsAccess() bool {
	return a == AuditActionReadReport
}

// AuditEntry is one link of a record's append-only access ledger. Seq starts
// at 1 and increases by one per record; Hash covers every other field plus
// PrevHash, so rewriting any entry breaks the chain from that point on.
type AuditEntry struct {
	ID         uuid.UUID   `json:"id" db:"id"`
	RecordID   string      `json:"record_id" db:"record_id"`
	Seq        int64       `json:"seq" db:"seq"`
	AccessedBy string      `json:"accessed_by" db:"accessed_by"`
	Action     AuditAction `json:"action" db:"action"`
	Subject    string      `json:"subject,omitempty" db:"subject"` // target identity of grant/revoke
	Timestamp  time.Time   `json:"timestamp" db:"timestamp"`
	PrevHash   []byte      `json:"prev_hash" db:"prev_hash"`
	Hash       []byte      `json:"hash" db:"hash"`
}

// TableName returns the table name for the AuditEntry model
func (AuditEntry) TableName() string {
	return "audit_entries"
}

// NewAuditEntry creates an unchained entry. Seq and hashes are assigned by the
// ledger on append.
func NewAuditEntry(recordID, accessedBy string, action AuditAction, at time.Time) *AuditEntry {
	return &AuditEntry{
		ID:         uuid.New(),
		RecordID:   recordID,
		AccessedBy: accessedBy,
		Action:     action,
		Timestamp:  at.UTC().Truncate(time.Microsecond),
	}
}

// WithSubject sets the identity a grant or revoke applied to.
func (a *AuditEntry) WithSubject(identity string) *AuditEntry {
	a.Subject = identity
	return a
}

// Clone returns a deep copy of the entry.
func (a *AuditEntry) Clone() *AuditEntry {
	if a == nil {
		return nil
	}
	out := *a
	out.PrevHash = slices.Clone(a.PrevHash)
	out.Hash = slices.Clone(a.Hash)
	return &out
}
