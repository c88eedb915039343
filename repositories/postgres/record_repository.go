package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/medicrypt/recordvault/models"
	"github.com/medicrypt/recordvault/repositories"
	"go.uber.org/zap"
)

// RecordRepository implements the repositories.RecordRepository interface
type RecordRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewRecordRepository creates a new record repository
func NewRecordRepository(db *DB, logger *zap.Logger) repositories.RecordRepository {
	return &RecordRepository{
		db:     db,
		logger: logger,
	}
}

// Create creates a record with no artifacts
func (r *RecordRepository) Create(ctx context.Context, record *models.Record) error {
	query := `
		INSERT INTO records (id, owner, created_at)
		VALUES ($1, $2, $3)
	`

	executor := GetExecutor(ctx, r.db)
	if _, err := executor.ExecContext(ctx, query, record.ID, record.Owner, record.CreatedAt); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("record %s: %w", record.ID, repositories.ErrAlreadyExists)
		}
		return fmt.Errorf("failed to create record: %w", err)
	}

	r.logger.Debug("record created", zap.String("id", record.ID), zap.String("owner", record.Owner))
	return nil
}

// Get retrieves a record with its artifacts in upload order
func (r *RecordRepository) Get(ctx context.Context, id string) (*models.Record, error) {
	query := `
		SELECT id, owner, created_at
		FROM records
		WHERE id = $1
	`

	executor := GetExecutor(ctx, r.db)
	record := &models.Record{}

	err := executor.QueryRowContext(ctx, query, id).Scan(
		&record.ID,
		&record.Owner,
		&record.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("record %s: %w", id, repositories.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get record: %w", err)
	}

	byRecord, err := r.artifactsFor(ctx, []string{id})
	if err != nil {
		return nil, err
	}
	record.Artifacts = byRecord[id]
	if record.Artifacts == nil {
		record.Artifacts = []*models.Artifact{}
	}

	return record, nil
}

// AppendArtifact adds an artifact to an existing record
func (r *RecordRepository) AppendArtifact(ctx context.Context, artifact *models.Artifact) error {
	query := `
		INSERT INTO artifacts (id, record_id, reference, size, uploaded_by, uploaded_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	executor := GetExecutor(ctx, r.db)
	_, err := executor.ExecContext(ctx, query,
		artifact.ID,
		artifact.RecordID,
		artifact.Reference,
		artifact.Size,
		artifact.UploadedBy,
		artifact.UploadedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append artifact: %w", err)
	}

	r.logger.Debug("artifact appended", zap.String("record_id", artifact.RecordID), zap.String("reference", artifact.Reference))
	return nil
}

// ListByOwner retrieves all records owned by identity
func (r *RecordRepository) ListByOwner(ctx context.Context, owner string) ([]*models.Record, error) {
	query := `
		SELECT id, owner, created_at
		FROM records
		WHERE owner = $1
		ORDER BY created_at DESC, id
	`

	executor := GetExecutor(ctx, r.db)
	rows, err := executor.QueryContext(ctx, query, owner)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer rows.Close()

	records := []*models.Record{}
	ids := []string{}
	for rows.Next() {
		record := &models.Record{}
		if err := rows.Scan(&record.ID, &record.Owner, &record.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		records = append(records, record)
		ids = append(ids, record.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating record rows: %w", err)
	}
	if len(records) == 0 {
		return records, nil
	}

	byRecord, err := r.artifactsFor(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, record := range records {
		record.Artifacts = byRecord[record.ID]
		if record.Artifacts == nil {
			record.Artifacts = []*models.Artifact{}
		}
	}

	return records, nil
}

// CountArtifactsByDay counts uploads per UTC day across all records
func (r *RecordRepository) CountArtifactsByDay(ctx context.Context) (map[string]int, error) {
	query := `
		SELECT to_char(uploaded_at AT TIME ZONE 'UTC', 'YYYY-MM-DD') AS day, COUNT(*)
		FROM artifacts
		GROUP BY day
	`

	executor := GetExecutor(ctx, r.db)
	rows, err := executor.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to count artifacts: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var (
			day   string
			count int
		)
		if err := rows.Scan(&day, &count); err != nil {
			return nil, fmt.Errorf("failed to scan artifact count: %w", err)
		}
		counts[day] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating artifact counts: %w", err)
	}

	return counts, nil
}

func (r *RecordRepository) artifactsFor(ctx context.Context, recordIDs []string) (map[string][]*models.Artifact, error) {
	query := `
		SELECT id, record_id, reference, size, uploaded_by, uploaded_at
		FROM artifacts
		WHERE record_id = ANY($1)
		ORDER BY uploaded_at, id
	`

	executor := GetExecutor(ctx, r.db)
	rows, err := executor.QueryContext(ctx, query, pq.Array(recordIDs))
	if err != nil {
		return nil, fmt.Errorf("failed to query artifacts: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]*models.Artifact)
	for rows.Next() {
		a := &models.Artifact{}
		if err := rows.Scan(&a.ID, &a.RecordID, &a.Reference, &a.Size, &a.UploadedBy, &a.UploadedAt); err != nil {
			return nil, fmt.Errorf("failed to scan artifact: %w", err)
		}
		out[a.RecordID] = append(out[a.RecordID], a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating artifact rows: %w", err)
	}

	return out, nil
}
