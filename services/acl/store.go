package acl

import (
	"context"
	"errors"
	"time"

	"github.com/medicrypt/recordvault/models"
	"github.com/medicrypt/recordvault/repositories"
	"github.com/medicrypt/recordvault/services"
	"github.com/medicrypt/recordvault/services/policy"
	"go.uber.org/zap"
)

// Store is the single source of truth for who may read a record. Every
// mutation runs inside the record's exclusive section and applies a set
// add or remove, never a whole-entry rewrite.
type Store struct {
	repo   repositories.ACLRepository
	txMgr  repositories.TransactionManager
	logger *zap.Logger
	now    func() time.Time
}

// NewStore creates a new ACL store
func NewStore(repo repositories.ACLRepository, txMgr repositories.TransactionManager, logger *zap.Logger) *Store {
	return &Store{
		repo:   repo,
		txMgr:  txMgr,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Lookup returns the entry of recordID, or nil when the record has none.
func (s *Store) Lookup(ctx context.Context, recordID string) (*models.ACLEntry, error) {
	entry, err := s.repo.Get(ctx, recordID)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, services.WrapRepository("failed to load access control entry", err)
	}
	return entry, nil
}

// CreateIfAbsent creates the entry of recordID owned by owner unless one
// exists. The first caller wins; later callers get the existing entry and
// created == false.
func (s *Store) CreateIfAbsent(ctx context.Context, recordID, owner string) (entry *models.ACLEntry, created bool, err error) {
	err = services.WithRecordSection(ctx, s.txMgr, recordID, func(ctx context.Context) error {
		var err error
		entry, created, err = s.repo.CreateIfAbsent(ctx, recordID, owner, s.now())
		return err
	})
	if err != nil {
		return nil, false, services.WrapRepository("failed to create access control entry", err)
	}

	if created {
		s.logger.Info("record claimed",
			zap.String("record_id", recordID),
			zap.String("owner", owner))
	}
	return entry, created, nil
}

// Grant adds target to the grant set of recordID on behalf of owner. It is
// idempotent, and granting to the owner leaves the set unchanged. A non-empty
// reason means nothing was changed.
func (s *Store) Grant(ctx context.Context, recordID, owner, target string) (*models.ACLEntry, policy.Reason, error) {
	return s.mutate(ctx, recordID, owner, target, func(ctx context.Context, entry *models.ACLEntry) (bool, error) {
		if entry.IsOwner(target) {
			return false, nil
		}
		return s.repo.AddGrant(ctx, recordID, target, s.now())
	}, "grant")
}

// Revoke removes target from the grant set of recordID on behalf of owner.
// Revoking an absent identity is a no-op.
func (s *Store) Revoke(ctx context.Context, recordID, owner, target string) (*models.ACLEntry, policy.Reason, error) {
	return s.mutate(ctx, recordID, owner, target, func(ctx context.Context, _ *models.ACLEntry) (bool, error) {
		return s.repo.RemoveGrant(ctx, recordID, target)
	}, "revoke")
}

func (s *Store) mutate(
	ctx context.Context,
	recordID, owner, target string,
	apply func(ctx context.Context, entry *models.ACLEntry) (bool, error),
	op string,
) (*models.ACLEntry, policy.Reason, error) {
	var (
		result  *models.ACLEntry
		reason  policy.Reason
		changed bool
	)

	err := services.WithRecordSection(ctx, s.txMgr, recordID, func(ctx context.Context) error {
		entry, err := s.Lookup(ctx, recordID)
		if err != nil {
			return err
		}
		if entry == nil {
			reason = policy.ReasonRecordNotFound
			return nil
		}
		if !entry.IsOwner(owner) {
			reason = policy.ReasonNotOwner
			return nil
		}

		changed, err = apply(ctx, entry)
		if err != nil {
			return err
		}

		result, err = s.repo.Get(ctx, recordID)
		return err
	})
	if err != nil {
		return nil, policy.ReasonNone, services.WrapRepository("failed to update access control entry", err)
	}
	if reason != policy.ReasonNone {
		return nil, reason, nil
	}

	s.logger.Info("access control updated",
		zap.String("op", op),
		zap.String("record_id", recordID),
		zap.String("target", target),
		zap.Bool("changed", changed))

	return result, policy.ReasonNone, nil
}

// IsAuthorized reports whether identity owns recordID or holds a grant on
// it. A record without an entry authorizes nobody.
func (s *Store) IsAuthorized(ctx context.Context, recordID, identity string) (bool, error) {
	entry, err := s.Lookup(ctx, recordID)
	if err != nil {
		return false, err
	}
	return entry.IsAuthorized(identity), nil
}

// ListGrants returns the grant set of recordID if requester owns it.
func (s *Store) ListGrants(ctx context.Context, recordID, requester string) ([]string, policy.Reason, error) {
	entry, err := s.Lookup(ctx, recordID)
	if err != nil {
		return nil, policy.ReasonNone, err
	}
	if entry == nil {
		return nil, policy.ReasonRecordNotFound, nil
	}
	if !entry.IsOwner(requester) {
		return nil, policy.ReasonNotOwner, nil
	}
	return entry.AllowedWallets, policy.ReasonNone, nil
}
