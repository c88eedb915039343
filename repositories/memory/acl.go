package memory

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/medicrypt/recordvault/models"
	"github.com/medicrypt/recordvault/repositories"
	"go.uber.org/zap"
)

// ACLRepository implements the repositories.ACLRepository interface
type ACLRepository struct {
	s *Store
}

// CreateIfAbsent creates the entry when none exists
func (r *ACLRepository) CreateIfAbsent(ctx context.Context, recordID, owner string, at time.Time) (*models.ACLEntry, bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if entry, ok := r.s.acl[recordID]; ok {
		return entry.Clone(), false, nil
	}
	entry := models.NewACLEntry(recordID, owner, at)
	r.s.acl[recordID] = entry
	onRollback(ctx, func() {
		r.s.mu.Lock()
		delete(r.s.acl, recordID)
		r.s.mu.Unlock()
	})

	r.s.logger.Debug("acl entry created", zap.String("record_id", recordID), zap.String("owner", owner))
	return entry.Clone(), true, nil
}

// Get retrieves an entry with its grant set
func (r *ACLRepository) Get(ctx context.Context, recordID string) (*models.ACLEntry, error) {
	defer r.s.readLock(ctx, recordID)()
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	entry, ok := r.s.acl[recordID]
	if !ok {
		return nil, fmt.Errorf("acl entry %s: %w", recordID, repositories.ErrNotFound)
	}
	return entry.Clone(), nil
}

// AddGrant appends identity to the grant set. A re-grant keeps its position.
func (r *ACLRepository) AddGrant(ctx context.Context, recordID, identity string, at time.Time) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	entry, ok := r.s.acl[recordID]
	if !ok {
		return false, fmt.Errorf("acl entry %s: %w", recordID, repositories.ErrNotFound)
	}
	if slices.Contains(entry.AllowedWallets, identity) {
		return false, nil
	}
	entry.AllowedWallets = append(entry.AllowedWallets, identity)
	onRollback(ctx, func() { r.remove(recordID, identity) })

	r.s.logger.Debug("grant added", zap.String("record_id", recordID), zap.String("identity", identity))
	return true, nil
}

// RemoveGrant removes identity from the grant set
func (r *ACLRepository) RemoveGrant(ctx context.Context, recordID, identity string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	entry, ok := r.s.acl[recordID]
	if !ok {
		return false, fmt.Errorf("acl entry %s: %w", recordID, repositories.ErrNotFound)
	}
	i := slices.Index(entry.AllowedWallets, identity)
	if i < 0 {
		return false, nil
	}
	entry.AllowedWallets = slices.Delete(entry.AllowedWallets, i, i+1)
	onRollback(ctx, func() { r.restore(recordID, identity, i) })

	r.s.logger.Debug("grant removed", zap.String("record_id", recordID), zap.String("identity", identity))
	return true, nil
}

// restore puts identity back at position i of the grant set.
func (r *ACLRepository) restore(recordID, identity string, i int) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if entry, ok := r.s.acl[recordID]; ok && !slices.Contains(entry.AllowedWallets, identity) {
		entry.AllowedWallets = slices.Insert(entry.AllowedWallets, min(i, len(entry.AllowedWallets)), identity)
	}
}

func (r *ACLRepository) remove(recordID, identity string) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if entry, ok := r.s.acl[recordID]; ok {
		if i := slices.Index(entry.AllowedWallets, identity); i >= 0 {
			entry.AllowedWallets = slices.Delete(entry.AllowedWallets, i, i+1)
		}
	}
}
