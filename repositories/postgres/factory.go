package postgres

import (
	"context"

	"github.com/medicrypt/recordvault/config"
	"github.com/medicrypt/recordvault/repositories"
	"go.uber.org/zap"
)

// RepositoryFactory creates and manages all repositories
type RepositoryFactory struct {
	db       *DB
	eventsDB *DB // Optional: separate DB for security events
	logger   *zap.Logger
}

// NewRepositoryFactory creates a new repository factory
func NewRepositoryFactory(cfg *config.Config, logger *zap.Logger) (*RepositoryFactory, error) {
	db, err := NewDB(cfg.Database, logger)
	if err != nil {
		return nil, err
	}

	f := &RepositoryFactory{db: db, logger: logger}

	if cfg.EventsDatabase != nil {
		eventsDB, err := NewDB(*cfg.EventsDatabase, logger)
		if err != nil {
			db.Close()
			return nil, err
		}
		f.eventsDB = eventsDB
	}

	return f, nil
}

// InitSchema initializes the main schema and, when configured, the events database.
func (f *RepositoryFactory) InitSchema(ctx context.Context) error {
	if err := f.db.InitSchema(ctx); err != nil {
		return err
	}
	if f.eventsDB != nil {
		return f.eventsDB.InitEventsSchema(ctx)
	}
	return nil
}

// NewRepositories creates all repository instances
func (f *RepositoryFactory) NewRepositories() *repositories.Repositories {
	eventsDB := f.db
	if f.eventsDB != nil {
		eventsDB = f.eventsDB
	}
	return &repositories.Repositories{
		Users:          NewUserRepository(f.db, f.logger),
		Records:        NewRecordRepository(f.db, f.logger),
		ACL:            NewACLRepository(f.db, f.logger),
		Audit:          NewAuditRepository(f.db, f.logger),
		AccessRequests: NewAccessRequestRepository(f.db, f.logger),
		SecurityEvents: NewSecurityEventRepository(eventsDB, f.logger),
	}
}

// GetTransactionManager returns a transaction manager
func (f *RepositoryFactory) GetTransactionManager() repositories.TransactionManager {
	return NewTransactionManager(f.db, f.logger)
}

// GetDB returns the database connection
func (f *RepositoryFactory) GetDB() *DB {
	return f.db
}

// GetEventsDB returns the separate security events database, or nil when
// events share the main database
func (f *RepositoryFactory) GetEventsDB() *DB {
	return f.eventsDB
}

// Close closes the database connection(s)
func (f *RepositoryFactory) Close() error {
	if f.eventsDB != nil {
		_ = f.eventsDB.Close()
	}
	return f.db.Close()
}
