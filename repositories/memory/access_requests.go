package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/medicrypt/recordvault/models"
	"github.com/medicrypt/recordvault/repositories"
	"go.uber.org/zap"
)

// AccessRequestRepository implements the repositories.AccessRequestRepository interface
type AccessRequestRepository struct {
	s *Store
}

// Create creates a new access request
func (r *AccessRequestRepository) Create(ctx context.Context, req *models.AccessRequest) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.requests[req.ID]; ok {
		return fmt.Errorf("access request %s: %w", req.ID, repositories.ErrAlreadyExists)
	}
	cp := *req
	r.s.requests[req.ID] = &cp
	onRollback(ctx, func() {
		r.s.mu.Lock()
		delete(r.s.requests, req.ID)
		r.s.mu.Unlock()
	})

	r.s.logger.Debug("access request created", zap.String("id", req.ID.String()), zap.String("record_id", req.RecordID))
	return nil
}

// GetByID retrieves an access request by ID
func (r *AccessRequestRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.AccessRequest, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	req, ok := r.s.requests[id]
	if !ok {
		return nil, fmt.Errorf("access request %s: %w", id, repositories.ErrNotFound)
	}
	cp := *req
	return &cp, nil
}

// ListByOwner retrieves requests against records owned by owner
func (r *AccessRequestRepository) ListByOwner(ctx context.Context, owner string) ([]*models.AccessRequest, error) {
	return r.list(func(req *models.AccessRequest) bool {
		entry, ok := r.s.acl[req.RecordID]
		return ok && entry.Owner == owner
	}), nil
}

// ListByRequester retrieves requests raised by requester
func (r *AccessRequestRepository) ListByRequester(ctx context.Context, requester string) ([]*models.AccessRequest, error) {
	return r.list(func(req *models.AccessRequest) bool {
		return req.Requester == requester
	}), nil
}

func (r *AccessRequestRepository) list(match func(*models.AccessRequest) bool) []*models.AccessRequest {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := []*models.AccessRequest{}
	for _, req := range r.s.requests {
		if match(req) {
			cp := *req
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// UpdateStatus sets the status of a request
func (r *AccessRequestRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status models.AccessRequestStatus, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	req, ok := r.s.requests[id]
	if !ok {
		return fmt.Errorf("access request %s: %w", id, repositories.ErrNotFound)
	}
	prevStatus, prevAt := req.Status, req.UpdatedAt
	req.Status = status
	req.UpdatedAt = at
	onRollback(ctx, func() {
		r.s.mu.Lock()
		req.Status = prevStatus
		req.UpdatedAt = prevAt
		r.s.mu.Unlock()
	})

	r.s.logger.Debug("access request updated", zap.String("id", id.String()), zap.String("status", string(status)))
	return nil
}
