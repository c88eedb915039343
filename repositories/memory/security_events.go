package memory

import (
	"context"

	"github.com/medicrypt/recordvault/models"
)

// SecurityEventRepository implements the repositories.SecurityEventRepository interface
type SecurityEventRepository struct {
	s *Store
}

// Insert inserts a new security event
func (r *SecurityEventRepository) Insert(ctx context.Context, event *models.SecurityEvent) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	cp := *event
	r.s.events = append(r.s.events, &cp)
	return nil
}

// ListRecent retrieves the newest events first
func (r *SecurityEventRepository) ListRecent(ctx context.Context, limit int) ([]*models.SecurityEvent, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := []*models.SecurityEvent{}
	for i := len(r.s.events) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		cp := *r.s.events[i]
		out = append(out, &cp)
	}
	return out, nil
}
