package memory

import (
	"context"
	"fmt"

	"github.com/medicrypt/recordvault/models"
	"github.com/medicrypt/recordvault/repositories"
	"go.uber.org/zap"
)

// AuditRepository implements the repositories.AuditRepository interface
type AuditRepository struct {
	s *Store
}

// Insert appends a chained entry
func (r *AuditRepository) Insert(ctx context.Context, entry *models.AuditEntry) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	entries := r.s.audit[entry.RecordID]
	if n := len(entries); n > 0 && entries[n-1].Seq >= entry.Seq {
		return fmt.Errorf("audit entry %s/%d: %w", entry.RecordID, entry.Seq, repositories.ErrAlreadyExists)
	}
	r.s.audit[entry.RecordID] = append(entries, entry.Clone())
	onRollback(ctx, func() {
		r.s.mu.Lock()
		defer r.s.mu.Unlock()
		list := r.s.audit[entry.RecordID]
		for i, e := range list {
			if e.ID == entry.ID {
				r.s.audit[entry.RecordID] = append(list[:i], list[i+1:]...)
				break
			}
		}
	})

	r.s.logger.Debug("audit entry inserted",
		zap.String("record_id", entry.RecordID),
		zap.Int64("seq", entry.Seq),
		zap.String("action", string(entry.Action)))
	return nil
}

// Last retrieves the entry with the highest seq for a record
func (r *AuditRepository) Last(ctx context.Context, recordID string) (*models.AuditEntry, error) {
	defer r.s.readLock(ctx, recordID)()
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	entries := r.s.audit[recordID]
	if len(entries) == 0 {
		return nil, fmt.Errorf("audit entries for %s: %w", recordID, repositories.ErrNotFound)
	}
	return entries[len(entries)-1].Clone(), nil
}

// ListByRecord retrieves all entries for a record in seq order
func (r *AuditRepository) ListByRecord(ctx context.Context, recordID string) ([]*models.AuditEntry, error) {
	defer r.s.readLock(ctx, recordID)()
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	entries := r.s.audit[recordID]
	out := make([]*models.AuditEntry, len(entries))
	for i, e := range entries {
		out[i] = e.Clone()
	}
	return out, nil
}
