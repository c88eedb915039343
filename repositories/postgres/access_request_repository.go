package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/medicrypt/recordvault/models"
	"github.com/medicrypt/recordvault/repositories"
	"go.uber.org/zap"
)

// AccessRequestRepository implements the repositories.AccessRequestRepository interface
type AccessRequestRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewAccessRequestRepository creates a new access request repository
func NewAccessRequestRepository(db *DB, logger *zap.Logger) repositories.AccessRequestRepository {
	return &AccessRequestRepository{
		db:     db,
		logger: logger,
	}
}

// Create creates a new access request
func (r *AccessRequestRepository) Create(ctx context.Context, req *models.AccessRequest) error {
	query := `
		INSERT INTO access_requests (id, record_id, requester, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	executor := GetExecutor(ctx, r.db)
	_, err := executor.ExecContext(ctx, query,
		req.ID,
		req.RecordID,
		req.Requester,
		req.Status,
		req.CreatedAt,
		req.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create access request: %w", err)
	}

	r.logger.Debug("access request created", zap.String("id", req.ID.String()), zap.String("record_id", req.RecordID))
	return nil
}

// GetByID retrieves an access request by ID
func (r *AccessRequestRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.AccessRequest, error) {
	query := `
		SELECT id, record_id, requester, status, created_at, updated_at
		FROM access_requests
		WHERE id = $1
	`

	executor := GetExecutor(ctx, r.db)
	req := &models.AccessRequest{}

	err := executor.QueryRowContext(ctx, query, id).Scan(
		&req.ID,
		&req.RecordID,
		&req.Requester,
		&req.Status,
		&req.CreatedAt,
		&req.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("access request %s: %w", id, repositories.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get access request: %w", err)
	}

	return req, nil
}

// ListByOwner retrieves requests against records owned by owner
func (r *AccessRequestRepository) ListByOwner(ctx context.Context, owner string) ([]*models.AccessRequest, error) {
	query := `
		SELECT ar.id, ar.record_id, ar.requester, ar.status, ar.created_at, ar.updated_at
		FROM access_requests ar
		JOIN acl_entries acl ON acl.record_id = ar.record_id
		WHERE acl.owner = $1
		ORDER BY ar.created_at DESC
	`
	return r.list(ctx, query, owner)
}

// ListByRequester retrieves requests raised by requester
func (r *AccessRequestRepository) ListByRequester(ctx context.Context, requester string) ([]*models.AccessRequest, error) {
	query := `
		SELECT id, record_id, requester, status, created_at, updated_at
		FROM access_requests
		WHERE requester = $1
		ORDER BY created_at DESC
	`
	return r.list(ctx, query, requester)
}

func (r *AccessRequestRepository) list(ctx context.Context, query string, args ...interface{}) ([]*models.AccessRequest, error) {
	executor := GetExecutor(ctx, r.db)
	rows, err := executor.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query access requests: %w", err)
	}
	defer rows.Close()

	requests := []*models.AccessRequest{}
	for rows.Next() {
		req := &models.AccessRequest{}
		err := rows.Scan(
			&req.ID,
			&req.RecordID,
			&req.Requester,
			&req.Status,
			&req.CreatedAt,
			&req.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan access request: %w", err)
		}
		requests = append(requests, req)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating access request rows: %w", err)
	}

	return requests, nil
}

// UpdateStatus sets the status of a request
func (r *AccessRequestRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status models.AccessRequestStatus, at time.Time) error {
	query := `
		UPDATE access_requests
		SET status = $2,
		    updated_at = $3
		WHERE id = $1
	`

	executor := GetExecutor(ctx, r.db)
	result, err := executor.ExecContext(ctx, query, id, status, at)
	if err != nil {
		return fmt.Errorf("failed to update access request: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("access request %s: %w", id, repositories.ErrNotFound)
	}

	r.logger.Debug("access request updated", zap.String("id", id.String()), zap.String("status", string(status)))
	return nil
}
