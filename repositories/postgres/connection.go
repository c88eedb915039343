package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/medicrypt/recordvault/config"
	"go.uber.org/zap"
)

// DB wraps the sql.DB connection pool
type DB struct {
	*sql.DB
	logger *zap.Logger
}

// NewDB creates a new database connection pool
func NewDB(cfg config.DatabaseConfig, logger *zap.Logger) (*DB, error) {
	dsn := cfg.DSN()
	
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("database connection established",
		zap.String("connection", cfg.LogString()))

	return &DB{
		DB:     db,
		logger: logger,
	}, nil
}

// Close closes the database connection pool
func (db *DB) Close() error {
	db.logger.Info("closing database connection")
	return db.DB.Close()
}

// HealthCheck performs a health check on the database
func (db *DB) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}

	// Check if we can query
	var result int
	if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&result); err != nil {
		return fmt.Errorf("database query check failed: %w", err)
	}

	return nil
}

// Stats returns database connection pool statistics
func (db *DB) Stats() sql.DBStats {
	return db.DB.Stats()
}

// InitSchema initializes the database schema
func (db *DB) InitSchema(ctx context.Context) error {
	schema := `
		-- Users table
		CREATE TABLE IF NOT EXISTS users (
			identity TEXT PRIMARY KEY,
			role VARCHAR(32) NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		);

		-- Records table
		CREATE TABLE IF NOT EXISTS records (
			id TEXT PRIMARY KEY,
			owner TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		);

		-- Artifacts table
		CREATE TABLE IF NOT EXISTS artifacts (
			id UUID PRIMARY KEY,
			record_id TEXT NOT NULL REFERENCES records(id) ON DELETE CASCADE,
			reference TEXT NOT NULL,
			size BIGINT NOT NULL,
			uploaded_by TEXT NOT NULL,
			uploaded_at TIMESTAMPTZ NOT NULL
		);

		-- ACL entries, one per record
		CREATE TABLE IF NOT EXISTS acl_entries (
			record_id TEXT PRIMARY KEY,
			owner TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		);

		-- ACL grants, one row per granted identity; grant_seq keeps grant order
		CREATE TABLE IF NOT EXISTS acl_grants (
			record_id TEXT NOT NULL REFERENCES acl_entries(record_id) ON DELETE CASCADE,
			identity TEXT NOT NULL,
			granted_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			grant_seq BIGSERIAL NOT NULL,
			PRIMARY KEY (record_id, identity)
		);
		ALTER TABLE acl_grants ADD COLUMN IF NOT EXISTS grant_seq BIGSERIAL;

		-- Audit ledger
		CREATE TABLE IF NOT EXISTS audit_entries (
			id UUID PRIMARY KEY,
			record_id TEXT NOT NULL,
			seq BIGINT NOT NULL,
			accessed_by TEXT NOT NULL,
			action VARCHAR(32) NOT NULL,
			subject TEXT NOT NULL DEFAULT '',
			timestamp TIMESTAMPTZ NOT NULL,
			prev_hash BYTEA NOT NULL,
			hash BYTEA NOT NULL,
			UNIQUE (record_id, seq)
		);

		CREATE OR REPLACE FUNCTION audit_entries_append_only() RETURNS trigger AS $$
		BEGIN
			RAISE EXCEPTION 'audit_entries is append-only';
		END;
		$$ LANGUAGE plpgsql;

		DROP TRIGGER IF EXISTS audit_entries_immutable ON audit_entries;
		CREATE TRIGGER audit_entries_immutable
			BEFORE UPDATE OR DELETE ON audit_entries
			FOR EACH ROW EXECUTE FUNCTION audit_entries_append_only();

		-- Access requests table
		CREATE TABLE IF NOT EXISTS access_requests (
			id UUID PRIMARY KEY,
			record_id TEXT NOT NULL REFERENCES records(id) ON DELETE CASCADE,
			requester TEXT NOT NULL,
			status VARCHAR(16) NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		);

		-- Indexes for performance
		CREATE INDEX IF NOT EXISTS idx_records_owner ON records(owner);
		CREATE INDEX IF NOT EXISTS idx_artifacts_record_id ON artifacts(record_id);
		CREATE INDEX IF NOT EXISTS idx_artifacts_uploaded_at ON artifacts(uploaded_at);
		CREATE INDEX IF NOT EXISTS idx_acl_entries_owner ON acl_entries(owner);
		CREATE INDEX IF NOT EXISTS idx_access_requests_record_id ON access_requests(record_id);
		CREATE INDEX IF NOT EXISTS idx_access_requests_requester ON access_requests(requester);
	`

	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	if err := db.InitEventsSchema(ctx); err != nil {
		return err
	}

	db.logger.Info("database schema initialized successfully")
	return nil
}

// InitEventsSchema initializes the security event table. Use it alone for the
// separate events database when DATABASE_URL_EVENTS is set.
func (db *DB) InitEventsSchema(ctx context.Context) error {
	schema := `
		CREATE TABLE IF NOT EXISTS security_events (
			id UUID PRIMARY KEY,
			kind VARCHAR(32) NOT NULL,
			identity TEXT NOT NULL,
			role VARCHAR(32) NOT NULL,
			record_id TEXT NOT NULL DEFAULT '',
			action VARCHAR(64) NOT NULL,
			reason VARCHAR(64) NOT NULL DEFAULT '',
			request_id VARCHAR(255) NOT NULL DEFAULT '',
			timestamp TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_security_events_kind ON security_events(kind);
		CREATE INDEX IF NOT EXISTS idx_security_events_identity ON security_events(identity);
		CREATE INDEX IF NOT EXISTS idx_security_events_timestamp ON security_events(timestamp);
	`
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize events schema: %w", err)
	}
	db.logger.Info("events schema initialized successfully")
	return nil
}
