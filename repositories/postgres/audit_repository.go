package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/medicrypt/recordvault/models"
	"github.com/medicrypt/recordvault/repositories"
	"go.uber.org/zap"
)

// AuditRepository implements the repositories.AuditRepository interface
type AuditRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewAuditRepository creates a new audit repository
func NewAuditRepository(db *DB, logger *zap.Logger) repositories.AuditRepository {
	return &AuditRepository{
		db:     db,
		logger: logger,
	}
}

const auditColumns = `id, record_id, seq, accessed_by, action, subject, timestamp, prev_hash, hash`

// Insert appends a chained entry
func (r *AuditRepository) Insert(ctx context.Context, entry *models.AuditEntry) error {
	query := `
		INSERT INTO audit_entries (` + auditColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	prevHash := entry.PrevHash
	if prevHash == nil {
		prevHash = []byte{}
	}

	executor := GetExecutor(ctx, r.db)
	_, err := executor.ExecContext(ctx, query,
		entry.ID,
		entry.RecordID,
		entry.Seq,
		entry.AccessedBy,
		entry.Action,
		entry.Subject,
		entry.Timestamp,
		prevHash,
		entry.Hash,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("audit entry %s/%d: %w", entry.RecordID, entry.Seq, repositories.ErrAlreadyExists)
		}
		return fmt.Errorf("failed to insert audit entry: %w", err)
	}

	r.logger.Debug("audit entry inserted",
		zap.String("record_id", entry.RecordID),
		zap.Int64("seq", entry.Seq),
		zap.String("action", string(entry.Action)))
	return nil
}

// Last retrieves the entry with the highest seq for a record
func (r *AuditRepository) Last(ctx context.Context, recordID string) (*models.AuditEntry, error) {
	query := `
		SELECT ` + auditColumns + `
		FROM audit_entries
		WHERE record_id = $1
		ORDER BY seq DESC
		LIMIT 1
	`

	executor := GetExecutor(ctx, r.db)
	entry, err := scanAuditEntry(executor.QueryRowContext(ctx, query, recordID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("audit entries for %s: %w", recordID, repositories.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get last audit entry: %w", err)
	}
	return entry, nil
}

// ListByRecord retrieves all entries for a record in seq order
func (r *AuditRepository) ListByRecord(ctx context.Context, recordID string) ([]*models.AuditEntry, error) {
	query := `
		SELECT ` + auditColumns + `
		FROM audit_entries
		WHERE record_id = $1
		ORDER BY seq
	`

	executor := GetExecutor(ctx, r.db)
	rows, err := executor.QueryContext(ctx, query, recordID)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit entries: %w", err)
	}
	defer rows.Close()

	entries := []*models.AuditEntry{}
	for rows.Next() {
		entry, err := scanAuditEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit rows: %w", err)
	}

	return entries, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAuditEntry(row rowScanner) (*models.AuditEntry, error) {
	entry := &models.AuditEntry{}
	err := row.Scan(
		&entry.ID,
		&entry.RecordID,
		&entry.Seq,
		&entry.AccessedBy,
		&entry.Action,
		&entry.Subject,
		&entry.Timestamp,
		&entry.PrevHash,
		&entry.Hash,
	)
	if err != nil {
		return nil, err
	}
	entry.Timestamp = entry.Timestamp.UTC()
	return entry, nil
}
