package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/medicrypt/recordvault/models"
	"github.com/medicrypt/recordvault/repositories"
	"go.uber.org/zap"
)

// ACLRepository implements the repositories.ACLRepository interface
type ACLRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewACLRepository creates a new ACL repository
func NewACLRepository(db *DB, logger *zap.Logger) repositories.ACLRepository {
	return &ACLRepository{
		db:     db,
		logger: logger,
	}
}

// CreateIfAbsent creates the entry when none exists
func (r *ACLRepository) CreateIfAbsent(ctx context.Context, recordID, owner string, at time.Time) (*models.ACLEntry, bool, error) {
	query := `
		INSERT INTO acl_entries (record_id, owner, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (record_id) DO NOTHING
	`

	executor := GetExecutor(ctx, r.db)
	result, err := executor.ExecContext(ctx, query, recordID, owner, at)
	if err != nil {
		return nil, false, fmt.Errorf("failed to create acl entry: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	created := rowsAffected == 1
	if created {
		r.logger.Debug("acl entry created", zap.String("record_id", recordID), zap.String("owner", owner))
	}

	entry, err := r.Get(ctx, recordID)
	if err != nil {
		return nil, false, err
	}
	return entry, created, nil
}

// Get retrieves an entry with its grant set
func (r *ACLRepository) Get(ctx context.Context, recordID string) (*models.ACLEntry, error) {
	query := `
		SELECT record_id, owner, created_at
		FROM acl_entries
		WHERE record_id = $1
	`

	executor := GetExecutor(ctx, r.db)
	entry := &models.ACLEntry{}

	err := executor.QueryRowContext(ctx, query, recordID).Scan(
		&entry.RecordID,
		&entry.Owner,
		&entry.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("acl entry %s: %w", recordID, repositories.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get acl entry: %w", err)
	}

	grantsQuery := `
		SELECT identity
		FROM acl_grants
		WHERE record_id = $1
		ORDER BY grant_seq
	`

	rows, err := executor.QueryContext(ctx, grantsQuery, recordID)
	if err != nil {
		return nil, fmt.Errorf("failed to query acl grants: %w", err)
	}
	defer rows.Close()

	entry.AllowedWallets = []string{}
	for rows.Next() {
		var identity string
		if err := rows.Scan(&identity); err != nil {
			return nil, fmt.Errorf("failed to scan acl grant: %w", err)
		}
		entry.AllowedWallets = append(entry.AllowedWallets, identity)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating acl grant rows: %w", err)
	}

	return entry, nil
}

// AddGrant adds identity to the end of the grant set. A re-grant hits the
// primary key and keeps its original grant_seq.
func (r *ACLRepository) AddGrant(ctx context.Context, recordID, identity string, at time.Time) (bool, error) {
	query := `
		INSERT INTO acl_grants (record_id, identity, granted_at)
		SELECT record_id, $2, $3 FROM acl_entries WHERE record_id = $1
		ON CONFLICT (record_id, identity) DO NOTHING
		RETURNING identity
	`

	executor := GetExecutor(ctx, r.db)
	var added string
	err := executor.QueryRowContext(ctx, query, recordID, identity, at).Scan(&added)
	if err == nil {
		r.logger.Debug("grant added", zap.String("record_id", recordID), zap.String("identity", identity))
		return true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return false, fmt.Errorf("failed to add grant: %w", err)
	}

	// No row returned: either the grant exists or the entry does not.
	if _, err := r.Get(ctx, recordID); err != nil {
		return false, err
	}
	return false, nil
}

// RemoveGrant removes identity from the grant set
func (r *ACLRepository) RemoveGrant(ctx context.Context, recordID, identity string) (bool, error) {
	query := `DELETE FROM acl_grants WHERE record_id = $1 AND identity = $2`

	executor := GetExecutor(ctx, r.db)
	result, err := executor.ExecContext(ctx, query, recordID, identity)
	if err != nil {
		return false, fmt.Errorf("failed to remove grant: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		if _, err := r.Get(ctx, recordID); err != nil {
			return false, err
		}
		return false, nil
	}

	r.logger.Debug("grant removed", zap.String("record_id", recordID), zap.String("identity", identity))
	return true, nil
}
