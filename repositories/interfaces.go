package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/medicrypt/recordvault/models"
)

// ErrNotFound is wrapped by every repository lookup that matches no row.
var ErrNotFound = errors.New("not found")

// ErrAlreadyExists is wrapped when an insert collides with an existing key.
var ErrAlreadyExists = errors.New("already exists")

// TransactionManager serializes mutations of a single record.
type TransactionManager interface {
	// InRecordSection executes fn inside the exclusive section of recordID.
	// Writes made through ctx commit together when fn returns nil and are
	// discarded otherwise. Sections nest: calling it again with the ctx
	// handed to fn reuses the enclosing section.
	InRecordSection(ctx context.Context, recordID string, fn func(ctx context.Context) error) error
}

// UserRepository handles user data operations
type UserRepository interface {
	// Create creates a new user, failing with ErrAlreadyExists on a duplicate identity
	Create(ctx context.Context, user *models.User) error

	// GetByIdentity retrieves a user by wallet identity
	GetByIdentity(ctx context.Context, identity string) (*models.User, error)
}

// RecordRepository handles records and their artifact lists
type RecordRepository interface {
	// Create creates a record with no artifacts
	Create(ctx context.Context, record *models.Record) error

	// Get retrieves a record with its artifacts in upload order
	Get(ctx context.Context, id string) (*models.Record, error)

	// AppendArtifact adds an artifact to an existing record
	AppendArtifact(ctx context.Context, artifact *models.Artifact) error

	// ListByOwner retrieves all records owned by identity
	ListByOwner(ctx context.Context, owner string) ([]*models.Record, error)

	// CountArtifactsByDay counts uploads per UTC day across all records
	CountArtifactsByDay(ctx context.Context) (map[string]int, error)
}

// ACLRepository stores one access control entry per record. Grants are
// individual set members so concurrent grant and revoke calls never
// overwrite each other.
type ACLRepository interface {
	// CreateIfAbsent creates the entry when none exists. It returns the
	// stored entry and whether this call created it.
	CreateIfAbsent(ctx context.Context, recordID, owner string, at time.Time) (*models.ACLEntry, bool, error)

	// Get retrieves an entry with its grant set
	Get(ctx context.Context, recordID string) (*models.ACLEntry, error)

	// AddGrant adds identity to the grant set, reporting whether it was absent
	AddGrant(ctx context.Context, recordID, identity string, at time.Time) (bool, error)

	// RemoveGrant removes identity from the grant set, reporting whether it was present
	RemoveGrant(ctx context.Context, recordID, identity string) (bool, error)
}

// AuditRepository persists ledger entries. It has no update or delete.
type AuditRepository interface {
	// Insert appends a chained entry
	Insert(ctx context.Context, entry *models.AuditEntry) error

	// Last retrieves the entry with the highest seq for a record
	Last(ctx context.Context, recordID string) (*models.AuditEntry, error)

	// ListByRecord retrieves all entries for a record in seq order
	ListByRecord(ctx context.Context, recordID string) ([]*models.AuditEntry, error)
}

// AccessRequestRepository handles access request data operations
type AccessRequestRepository interface {
	// Create creates a new access request
	Create(ctx context.Context, req *models.AccessRequest) error

	// GetByID retrieves an access request by ID
	GetByID(ctx context.Context, id uuid.UUID) (*models.AccessRequest, error)

	// ListByOwner retrieves requests against records owned by owner
	ListByOwner(ctx context.Context, owner string) ([]*models.AccessRequest, error)

	// ListByRequester retrieves requests raised by requester
	ListByRequester(ctx context.Context, requester string) ([]*models.AccessRequest, error)

	// UpdateStatus sets the status of a request
	UpdateStatus(ctx context.Context, id uuid.UUID, status models.AccessRequestStatus, at time.Time) error
}

// SecurityEventRepository handles the operational security event stream
type SecurityEventRepository interface {
	// Insert inserts a new security event
	Insert(ctx context.Context, event *models.SecurityEvent) error

	// ListRecent retrieves the newest events first
	ListRecent(ctx context.Context, limit int) ([]*models.SecurityEvent, error)
}

// Repositories aggregates all repository interfaces
type Repositories struct {
	Users          UserRepository
	Records        RecordRepository
	ACL            ACLRepository
	Audit          AuditRepository
	AccessRequests AccessRequestRepository
	SecurityEvents SecurityEventRepository
}
