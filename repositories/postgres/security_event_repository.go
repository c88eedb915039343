package postgres

import (
	"context"
	"fmt"

	"github.com/medicrypt/recordvault/models"
	"github.com/medicrypt/recordvault/repositories"
	"go.uber.org/zap"
)

// SecurityEventRepository implements the repositories.SecurityEventRepository interface
type SecurityEventRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewSecurityEventRepository creates a new security event repository
func NewSecurityEventRepository(db *DB, logger *zap.Logger) repositories.SecurityEventRepository {
	return &SecurityEventRepository{
		db:     db,
		logger: logger,
	}
}

// Insert inserts a new security event
func (r *SecurityEventRepository) Insert(ctx context.Context, event *models.SecurityEvent) error {
	query := `
		INSERT INTO security_events (id, kind, identity, role, record_id, action, reason, request_id, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	executor := GetExecutor(ctx, r.db)
	_, err := executor.ExecContext(ctx, query,
		event.ID,
		event.Kind,
		event.Identity,
		event.Role,
		event.RecordID,
		event.Action,
		event.Reason,
		event.RequestID,
		event.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to insert security event: %w", err)
	}

	r.logger.Debug("security event inserted", zap.String("id", event.ID.String()), zap.String("kind", string(event.Kind)))
	return nil
}

// ListRecent retrieves the newest events first
func (r *SecurityEventRepository) ListRecent(ctx context.Context, limit int) ([]*models.SecurityEvent, error) {
	query := `
		SELECT id, kind, identity, role, record_id, action, reason, request_id, timestamp
		FROM security_events
		ORDER BY timestamp DESC
		LIMIT $1
	`

	executor := GetExecutor(ctx, r.db)
	rows, err := executor.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query security events: %w", err)
	}
	defer rows.Close()

	events := []*models.SecurityEvent{}
	for rows.Next() {
		ev := &models.SecurityEvent{}
		err := rows.Scan(
			&ev.ID,
			&ev.Kind,
			&ev.Identity,
			&ev.Role,
			&ev.RecordID,
			&ev.Action,
			&ev.Reason,
			&ev.RequestID,
			&ev.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan security event: %w", err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating security event rows: %w", err)
	}

	return events, nil
}
