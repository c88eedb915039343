package memory

import (
	"context"
	"fmt"

	"github.com/medicrypt/recordvault/models"
	"github.com/medicrypt/recordvault/repositories"
	"go.uber.org/zap"
)

// UserRepository implements the repositories.UserRepository interface
type UserRepository struct {
	s *Store
}

// Create creates a new user
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.users[user.Identity]; ok {
		return fmt.Errorf("user %s: %w", user.Identity, repositories.ErrAlreadyExists)
	}
	cp := *user
	r.s.users[user.Identity] = &cp
	onRollback(ctx, func() {
		r.s.mu.Lock()
		delete(r.s.users, user.Identity)
		r.s.mu.Unlock()
	})

	r.s.logger.Debug("user created", zap.String("identity", user.Identity), zap.String("role", string(user.Role)))
	return nil
}

// GetByIdentity retrieves a user by wallet identity
func (r *UserRepository) GetByIdentity(ctx context.Context, identity string) (*models.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	user, ok := r.s.users[identity]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", identity, repositories.ErrNotFound)
	}
	cp := *user
	return &cp, nil
}
