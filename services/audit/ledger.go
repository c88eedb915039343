package audit

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

// OwnerLookup resolves the access control entry of a record, returning nil
// when the record does not exist.
type OwnerLookup interface {
	Lookup(ctx context.Context, recordID string) (*models.ACLEntry, error)
}

// Ledger is the per-record, append-only, hash-chained access log. Only
// successful, authorized operations are appended.
type Ledger struct {
	repo   repositories.AuditRepository
	txMgr  repositories.TransactionManager
	owners OwnerLookup
	logger *zap.Logger
}

// NewLedger creates a new Ledger instance
func NewLedger(repo repositories.AuditRepository, txMgr repositories.TransactionManager, owners OwnerLookup, logger *zap.Logger) *Ledger {
	return &Ledger{
		repo:   repo,
		txMgr:  txMgr,
		owners: owners,
		logger: logger,
	}
}

// Append chains a new entry onto the ledger of recordID. Called with a ctx
// already inside the record's section it commits together with the caller's
// other writes.
func (l *Ledger) Append(ctx context.Context, recordID, accessor string, action models.AuditAction, subject string, at time.Time) (*models.AuditEntry, error) {
	entry := models.NewAuditEntry(recordID, accessor, action, at).WithSubject(subject)

	err := services.WithRecordSection(ctx, l.txMgr, recordID, func(ctx context.Context) error {
		prev, err := l.repo.Last(ctx, recordID)
		if err != nil && !errors.Is(err, repositories.ErrNotFound) {
			return err
		}

		if err := Seal(entry, prev); err != nil {
			return services.WrapInternal("failed to seal ledger entry", err)
		}

		return l.repo.Insert(ctx, entry)
	})
	if err != nil {
		if errors.Is(err, repositories.ErrAlreadyExists) {
			return nil, services.NewDomainError(services.ErrorTypeConflict, services.ErrDuplicateLedgerEntry.Message, err)
		}
		return nil, services.WrapRepository("failed to append ledger entry", err)
	}

	l.logger.Info("ledger entry appended",
		zap.String("record_id", recordID),
		zap.Int64("seq", entry.Seq),
		zap.String("accessed_by", accessor),
		zap.String("action", string(action)))

	return entry, nil
}

// Query returns the ledger of recordID in chronological order. Only the
// record owner may read it.
func (l *Ledger) Query(ctx context.Context, recordID, requester string) ([]*models.AuditEntry, policy.Reason, error) {
	entry, err := l.owners.Lookup(ctx, recordID)
	if err != nil {
		return nil, policy.ReasonNone, err
	}
	if entry == nil {
		return nil, policy.ReasonRecordNotFound, nil
	}
	if !entry.IsOwner(requester) {
		return nil, policy.ReasonNotOwner, nil
	}

	entries, err := l.repo.ListByRecord(ctx, recordID)
	if err != nil {
		return nil, policy.ReasonNone, services.WrapRepository("failed to list ledger entries", err)
	}
	return entries, policy.ReasonNone, nil
}

// Verify recomputes the hash chain of recordID.
func (l *Ledger) Verify(ctx context.Context, recordID string) (*Verification, error) {
	entries, err := l.repo.ListByRecord(ctx, recordID)
	if err != nil {
		return nil, services.WrapRepository("failed to list ledger entries", err)
	}

	v, err := VerifyChain(recordID, entries)
	if err != nil {
		return nil, services.WrapInternal("failed to verify ledger", err)
	}

	if !v.Intact {
		l.logger.Warn("ledger chain broken",
			zap.String("record_id", recordID),
			zap.Int64("broken_at", v.BrokenAt))
	}
	return v, nil
}
