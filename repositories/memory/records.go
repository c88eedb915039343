package memory

import (
	"context"
	"fmt"
	"sort"

	"github.com/medicrypt/recordvault/models"
	"github.com/medicrypt/recordvault/repositories"
	"go.uber.org/zap"
)

// RecordRepository implements the repositories.RecordRepository interface
type RecordRepository struct {
	s *Store
}

// Create creates a record with no artifacts
func (r *RecordRepository) Create(ctx context.Context, record *models.Record) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.records[record.ID]; ok {
		return fmt.Errorf("record %s: %w", record.ID, repositories.ErrAlreadyExists)
	}
	cp := record.Clone()
	cp.Artifacts = []*models.Artifact{}
	r.s.records[record.ID] = cp
	onRollback(ctx, func() {
		r.s.mu.Lock()
		delete(r.s.records, record.ID)
		r.s.mu.Unlock()
	})

	r.s.logger.Debug("record created", zap.String("id", record.ID), zap.String("owner", record.Owner))
	return nil
}

// Get retrieves a record with its artifacts in upload order
func (r *RecordRepository) Get(ctx context.Context, id string) (*models.Record, error) {
	defer r.s.readLock(ctx, id)()
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	rec, ok := r.s.records[id]
	if !ok {
		return nil, fmt.Errorf("record %s: %w", id, repositories.ErrNotFound)
	}
	return rec.Clone(), nil
}

// AppendArtifact adds an artifact to an existing record
func (r *RecordRepository) AppendArtifact(ctx context.Context, artifact *models.Artifact) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	rec, ok := r.s.records[artifact.RecordID]
	if !ok {
		return fmt.Errorf("record %s: %w", artifact.RecordID, repositories.ErrNotFound)
	}
	cp := *artifact
	rec.Artifacts = append(rec.Artifacts, &cp)
	onRollback(ctx, func() {
		r.s.mu.Lock()
		defer r.s.mu.Unlock()
		if rec, ok := r.s.records[artifact.RecordID]; ok {
			for i, a := range rec.Artifacts {
				if a.ID == artifact.ID {
					rec.Artifacts = append(rec.Artifacts[:i], rec.Artifacts[i+1:]...)
					break
				}
			}
		}
	})

	r.s.logger.Debug("artifact appended", zap.String("record_id", artifact.RecordID), zap.String("reference", artifact.Reference))
	return nil
}

// ListByOwner retrieves all records owned by identity
func (r *RecordRepository) ListByOwner(ctx context.Context, owner string) ([]*models.Record, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	records := []*models.Record{}
	for _, rec := range r.s.records {
		if rec.Owner == owner {
			records = append(records, rec.Clone())
		}
	}
	sort.Slice(records, func(i, j int) bool {
		if records[i].CreatedAt.Equal(records[j].CreatedAt) {
			return records[i].ID < records[j].ID
		}
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})
	return records, nil
}

// CountArtifactsByDay counts uploads per UTC day across all records
func (r *RecordRepository) CountArtifactsByDay(ctx context.Context) (map[string]int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	counts := make(map[string]int)
	for _, rec := range r.s.records {
		for _, a := range rec.Artifacts {
			counts[a.UploadedAt.UTC().Format("2006-01-02")]++
		}
	}
	return counts, nil
}
