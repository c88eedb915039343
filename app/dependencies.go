package app

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/medicrypt/recordvault/blobstore"
	"github.com/medicrypt/recordvault/config"
	"github.com/medicrypt/recordvault/middleware"
	"github.com/medicrypt/recordvault/repositories"
	"github.com/medicrypt/recordvault/repositories/memory"
	"github.com/medicrypt/recordvault/repositories/postgres"
	"github.com/medicrypt/recordvault/sealing"
	"github.com/medicrypt/recordvault/services/access"
	"github.com/medicrypt/recordvault/services/acl"
	"github.com/medicrypt/recordvault/services/audit"
	"github.com/medicrypt/recordvault/services/auth"
	"github.com/medicrypt/recordvault/services/policy"
	"github.com/medicrypt/recordvault/services/records"
	"github.com/medicrypt/recordvault/token"
	"github.com/medicrypt/recordvault/wallet"
	"go.uber.org/zap"
)

// eventsStopTimeout bounds how long shutdown waits for queued security events
const eventsStopTimeout = 5 * time.Second

// Dependencies holds all application dependencies.
// This is the central wiring point for dependency injection.
type Dependencies struct {
	// Infrastructure
	Config *config.Config
	Logger *zap.Logger

	// Repository Factory, nil for the memory backend
	RepoFactory *postgres.RepositoryFactory

	// Storage
	Repos     *repositories.Repositories
	TxManager repositories.TransactionManager
	Blobs     blobstore.Store
	Cipher    *sealing.AgeCipher

	// Core
	Tokens *token.Manager
	Engine *policy.Engine
	ACL    *acl.Store
	Ledger *audit.Ledger
	Events *audit.EventRecorder

	// Services
	Records *records.Service
	Access  *access.Service
	Auth    *auth.Service

	AuthMiddleware *middleware.AuthMiddleware

	blobCloser io.Closer
	closed     bool
}

// NewDependencies creates and wires up all application dependencies.
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config: cfg,
		Logger: logger,
	}

	if err := deps.initStorage(ctx, cfg); err != nil {
		deps.closeStorage()
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	if err := deps.initBlobs(cfg); err != nil {
		deps.closeStorage()
		return nil, fmt.Errorf("failed to initialize blob store: %w", err)
	}

	if err := deps.initCipher(cfg); err != nil {
		deps.closeStorage()
		return nil, fmt.Errorf("failed to initialize encryption: %w", err)
	}

	if err := deps.initCore(cfg); err != nil {
		deps.closeStorage()
		return nil, fmt.Errorf("failed to initialize security events: %w", err)
	}

	deps.initServices()

	logger.Info("all dependencies initialized successfully",
		zap.String("storage", cfg.Storage.Backend),
		zap.String("blobs", cfg.Storage.BlobBackend))
	return deps, nil
}

// initStorage opens the metadata store: PostgreSQL, or the in-process store
func (d *Dependencies) initStorage(ctx context.Context, cfg *config.Config) error {
	if cfg.Storage.Backend == config.BackendMemory {
		store := memory.NewStore(d.Logger)
		d.Repos = store.NewRepositories()
		d.TxManager = store.GetTransactionManager()
		d.Logger.Warn("using in-memory storage, data is lost on restart")
		return nil
	}

	factory, err := postgres.NewRepositoryFactory(cfg, d.Logger)
	if err != nil {
		return fmt.Errorf("failed to create repository factory: %w", err)
	}
	d.RepoFactory = factory

	if err := factory.InitSchema(ctx); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	d.Repos = factory.NewRepositories()
	d.TxManager = factory.GetTransactionManager()

	d.Logger.Info("database connection established",
		zap.String("connection", cfg.Database.LogString()))
	return nil
}

func (d *Dependencies) initBlobs(cfg *config.Config) error {
	if cfg.Storage.BlobBackend == config.BlobBackendFS {
		store, err := blobstore.NewFSStore(cfg.Storage.BlobDir, cfg.Storage.ZstdLevel, d.Logger)
		if err != nil {
			return err
		}
		d.Blobs = store
		d.blobCloser = store
		return nil
	}

	d.Blobs = blobstore.NewMemoryStore()
	return nil
}

// initCipher loads the age identity. Outside production a missing identity
// is replaced by an ephemeral one, so sealed content does not survive a
// restart.
func (d *Dependencies) initCipher(cfg *config.Config) error {
	identity := cfg.Encryption.AgeIdentity
	if identity == "" {
		generated, recipient, err := sealing.GenerateIdentity()
		if err != nil {
			return err
		}
		d.Logger.Warn("AGE_IDENTITY not set, using an ephemeral identity",
			zap.String("recipient", recipient))
		identity = generated
	}

	cipher, err := sealing.NewAgeCipher(identity)
	if err != nil {
		return err
	}
	d.Cipher = cipher
	return nil
}

func (d *Dependencies) initCore(cfg *config.Config) error {
	d.Tokens = token.NewManager(token.Config{
		Secret: cfg.Token.Secret,
		Issuer: cfg.Token.Issuer,
		TTL:    cfg.Token.TTL,
	})
	d.Engine = policy.NewEngine(d.Logger)
	d.ACL = acl.NewStore(d.Repos.ACL, d.TxManager, d.Logger)
	d.Ledger = audit.NewLedger(d.Repos.Audit, d.TxManager, d.ACL, d.Logger)

	d.Events = audit.NewEventRecorder(d.Repos.SecurityEvents, d.Logger, audit.Config{
		BufferSize:  cfg.Events.BufferSize,
		WorkerCount: cfg.Events.WorkerCount,
	})
	return d.Events.Start()
}

func (d *Dependencies) initServices() {
	d.Records = records.NewService(d.Repos.Records, d.ACL, d.Ledger, d.Engine, d.Blobs, d.Cipher, d.Events, d.TxManager, d.Logger)
	d.Access = access.NewService(d.Repos.AccessRequests, d.ACL, d.Ledger, d.Engine, d.Events, d.TxManager, d.Logger)
	d.Auth = auth.NewService(d.Repos.Users, wallet.NewEd25519Verifier(), d.Tokens, d.Logger)
	d.AuthMiddleware = middleware.NewAuthMiddleware(d.Tokens, d.Logger)
}

func (d *Dependencies) closeStorage() {
	if d.blobCloser != nil {
		_ = d.blobCloser.Close()
	}
	if d.RepoFactory != nil {
		_ = d.RepoFactory.Close()
	}
}

// Close gracefully shuts down all dependencies. Queued security events are
// flushed before the database closes.
func (d *Dependencies) Close(ctx context.Context) error {
	if d.closed {
		return nil
	}
	d.closed = true
	d.Logger.Info("shutting down dependencies")

	var errs []error

	if d.Events != nil {
		timeout := eventsStopTimeout
		if deadline, ok := ctx.Deadline(); ok {
			timeout = time.Until(deadline)
		}
		if err := d.Events.Stop(timeout); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop security events: %w", err))
		}
	}

	if d.blobCloser != nil {
		if err := d.blobCloser.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close blob store: %w", err))
		}
	}

	if d.RepoFactory != nil {
		if err := d.RepoFactory.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close database: %w", err))
		} else {
			d.Logger.Info("database connection closed")
		}
	}

	// Sync logger
	_ = d.Logger.Sync()

	if len(errs) > 0 {
		return fmt.Errorf("errors during shutdown: %v", errs)
	}

	return nil
}
