// Package memory provides the in-process storage backend used for local runs
// and tests. It honours the same section and rollback semantics as the
// postgres backend.
package memory

import (
	"sync"

	"github.com/google/uuid"
	"github.com/medicrypt/recordvault/models"
	"github.com/medicrypt/recordvault/repositories"
	"go.uber.org/zap"
)

// Store holds all tables of the memory backend.
type Store struct {
	mu       sync.RWMutex
	users    map[string]*models.User
	records  map[string]*models.Record
	acl      map[string]*models.ACLEntry
	audit    map[string][]*models.AuditEntry
	requests map[uuid.UUID]*models.AccessRequest
	events   []*models.SecurityEvent

	locks  *keyedMutex
	logger *zap.Logger
}

// NewStore creates an empty store.
func NewStore(logger *zap.Logger) *Store {
	return &Store{
		users:    make(map[string]*models.User),
		records:  make(map[string]*models.Record),
		acl:      make(map[string]*models.ACLEntry),
		audit:    make(map[string][]*models.AuditEntry),
		requests: make(map[uuid.UUID]*models.AccessRequest),
		locks:    newKeyedMutex(),
		logger:   logger,
	}
}

// NewRepositories creates all repository views over the store.
func (s *Store) NewRepositories() *repositories.Repositories {
	return &repositories.Repositories{
		Users:          &UserRepository{s: s},
		Records:        &RecordRepository{s: s},
		ACL:            &ACLRepository{s: s},
		Audit:          &AuditRepository{s: s},
		AccessRequests: &AccessRequestRepository{s: s},
		SecurityEvents: &SecurityEventRepository{s: s},
	}
}

// GetTransactionManager returns the section manager of the store.
func (s *Store) GetTransactionManager() repositories.TransactionManager {
	return &TransactionManager{s: s}
}
