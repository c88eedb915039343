// Package records is the single entry point for operations on medical
// records. Every operation authorizes the caller against the record's
// access control entry, performs the work and writes the ledger entry in
// the record's exclusive section before returning. Slow collaborators
// (cipher, blob store) run outside the section.
package records

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/medicrypt/recordvault/blobstore"
	"github.com/medicrypt/recordvault/models"
	"github.com/medicrypt/recordvault/repositories"
	"github.com/medicrypt/recordvault/sealing"
	"github.com/medicrypt/recordvault/services"
	"github.com/medicrypt/recordvault/services/acl"
	"github.com/medicrypt/recordvault/services/audit"
	"github.com/medicrypt/recordvault/services/policy"
	"go.uber.org/zap"
)

// maxRecordIDLength bounds caller-chosen record identifiers.
const maxRecordIDLength = 128

// SecurityEvents receives events that are kept outside the record ledger.
type SecurityEvents interface {
	RecordDenial(sub policy.Subject, action policy.Action, recordID string, reason policy.Reason, requestID string)
	RecordAggregateQuery(sub policy.Subject, requestID string)
}

// ArtifactContent is an artifact together with its decrypted payload.
type ArtifactContent struct {
	*models.Artifact
	Content []byte `json:"content"`
}

// Report is the decrypted content of a record as released to a reader.
type Report struct {
	RecordID  string             `json:"record_id"`
	Owner     string             `json:"owner"`
	Artifacts []*ArtifactContent `json:"artifacts"`
}

// DayCount is the number of artifacts uploaded on one UTC day.
type DayCount struct {
	Day   string `json:"day"`
	Count int    `json:"count"`
}

// Service is the record access facade
type Service struct {
	records repositories.RecordRepository
	acl     *acl.Store
	ledger  *audit.Ledger
	engine  *policy.Engine
	blobs   blobstore.Store
	cipher  sealing.Cipher
	events  SecurityEvents
	txMgr   repositories.TransactionManager
	logger  *zap.Logger
	now     func() time.Time
}

// NewService creates a new record access facade
func NewService(
	records repositories.RecordRepository,
	aclStore *acl.Store,
	ledger *audit.Ledger,
	engine *policy.Engine,
	blobs blobstore.Store,
	cipher sealing.Cipher,
	events SecurityEvents,
	txMgr repositories.TransactionManager,
	logger *zap.Logger,
) *Service {
	return &Service{
		records: records,
		acl:     aclStore,
		ledger:  ledger,
		engine:  engine,
		blobs:   blobs,
		cipher:  cipher,
		events:  events,
		txMgr:   txMgr,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// ValidateRecordID checks a caller-supplied record identifier.
func ValidateRecordID(recordID string) error {
	if recordID == "" || len(recordID) > maxRecordIDLength || strings.ContainsAny(recordID, "/\\ \t\r\n") {
		return services.ErrInvalidRecordID
	}
	return nil
}

// authorize reads the current entry of recordID and asks the engine.
func (s *Service) authorize(ctx context.Context, sub policy.Subject, action policy.Action, recordID string) (*models.ACLEntry, policy.Decision, error) {
	entry, err := s.acl.Lookup(ctx, recordID)
	if err != nil {
		return nil, policy.Decision{}, err
	}
	return entry, s.engine.Authorize(sub, action, entry), nil
}

// denied records a refused operation and builds its outcome.
func denied[T any](ctx context.Context, s *Service, sub policy.Subject, action policy.Action, recordID string, reason policy.Reason) services.Outcome[T] {
	s.logger.Info("operation denied",
		zap.String("request_id", services.RequestIDFromContext(ctx)),
		zap.String("identity", sub.Identity),
		zap.String("role", string(sub.Role)),
		zap.String("action", string(action)),
		zap.String("record_id", recordID),
		zap.String("reason", string(reason)))

	if s.events != nil {
		s.events.RecordDenial(sub, action, recordID, reason, services.RequestIDFromContext(ctx))
	}
	return services.Denied[T](reason)
}

// StoreArtifact seals payload, stores it and appends it to recordID. The
// first successful store creates the record and makes the caller its owner.
func (s *Service) StoreArtifact(ctx context.Context, sub policy.Subject, recordID string, payload []byte) (services.Outcome[*models.Artifact], error) {
	var none services.Outcome[*models.Artifact]

	if err := ValidateRecordID(recordID); err != nil {
		return none, err
	}
	if len(payload) == 0 {
		return none, services.ErrEmptyPayload
	}

	_, decision, err := s.authorize(ctx, sub, policy.ActionStoreArtifact, recordID)
	if err != nil {
		return none, err
	}
	if !decision.Allowed {
		return denied[*models.Artifact](ctx, s, sub, policy.ActionStoreArtifact, recordID, decision.Reason), nil
	}

	sealed, err := s.cipher.Seal(payload)
	if err != nil {
		return none, services.NewDomainError(services.ErrorTypeInternal, services.ErrSealingFailed.Message, err)
	}

	ref, err := s.blobs.Put(ctx, sealed)
	if err != nil {
		return none, services.WrapUnavailable("failed to store artifact content", err)
	}

	var (
		artifact *models.Artifact
		logged   *models.AuditEntry
		reason   policy.Reason
	)

	err = services.WithRecordSection(ctx, s.txMgr, recordID, func(ctx context.Context) error {
		entry, decision, err := s.authorize(ctx, sub, policy.ActionStoreArtifact, recordID)
		if err != nil {
			return err
		}
		if !decision.Allowed {
			reason = decision.Reason
			return nil
		}

		now := s.now()
		if entry == nil {
			if err := s.records.Create(ctx, models.NewRecord(recordID, sub.Identity, now)); err != nil {
				return services.WrapRepository("failed to create record", err)
			}
			if _, _, err := s.acl.CreateIfAbsent(ctx, recordID, sub.Identity); err != nil {
				return err
			}
		}

		artifact = models.NewArtifact(recordID, ref, sub.Identity, int64(len(payload)), now)
		if err := s.records.AppendArtifact(ctx, artifact); err != nil {
			return services.WrapRepository("failed to append artifact", err)
		}

		logged, err = s.ledger.Append(ctx, recordID, sub.Identity, models.AuditActionStoreArtifact, "", now)
		return err
	})
	if err != nil {
		s.logger.Error("store artifact failed",
			zap.String("record_id", recordID),
			zap.String("identity", sub.Identity),
			zap.Error(err))
		return none, err
	}
	if reason != policy.ReasonNone {
		// Another patient claimed the record while the payload was sealed
		return denied[*models.Artifact](ctx, s, sub, policy.ActionStoreArtifact, recordID, reason), nil
	}

	return services.Allowed(artifact, logged), nil
}

// ReadReport returns the decrypted artifacts of recordID. The read is on the
// ledger before the content is returned; a grant revoked while the content
// was being fetched denies the read.
func (s *Service) ReadReport(ctx context.Context, sub policy.Subject, recordID string) (services.Outcome[*Report], error) {
	var none services.Outcome[*Report]

	if err := ValidateRecordID(recordID); err != nil {
		return none, err
	}

	_, decision, err := s.authorize(ctx, sub, policy.ActionReadReport, recordID)
	if err != nil {
		return none, err
	}
	if !decision.Allowed {
		return denied[*Report](ctx, s, sub, policy.ActionReadReport, recordID, decision.Reason), nil
	}

	report, err := s.loadReport(ctx, recordID)
	if err != nil {
		return none, err
	}

	var (
		logged *models.AuditEntry
		reason policy.Reason
	)

	err = services.WithRecordSection(ctx, s.txMgr, recordID, func(ctx context.Context) error {
		_, decision, err := s.authorize(ctx, sub, policy.ActionReadReport, recordID)
		if err != nil {
			return err
		}
		if !decision.Allowed {
			reason = decision.Reason
			return nil
		}

		logged, err = s.ledger.Append(ctx, recordID, sub.Identity, models.AuditActionReadReport, "", s.now())
		return err
	})
	if err != nil {
		s.logger.Error("read report failed",
			zap.String("record_id", recordID),
			zap.String("identity", sub.Identity),
			zap.Error(err))
		return none, err
	}
	if reason != policy.ReasonNone {
		return denied[*Report](ctx, s, sub, policy.ActionReadReport, recordID, reason), nil
	}

	return services.Allowed(report, logged), nil
}

func (s *Service) loadReport(ctx context.Context, recordID string) (*Report, error) {
	record, err := s.records.Get(ctx, recordID)
	if err != nil {
		return nil, services.WrapRepository("failed to load record", err)
	}

	report := &Report{
		RecordID:  record.ID,
		Owner:     record.Owner,
		Artifacts: make([]*ArtifactContent, 0, len(record.Artifacts)),
	}

	for _, artifact := range record.Artifacts {
		sealed, err := s.blobs.Get(ctx, artifact.Reference)
		if err != nil {
			if errors.Is(err, blobstore.ErrNotFound) {
				return nil, services.NewDomainError(services.ErrorTypeInternal, services.ErrBlobNotFound.Message, err).
					WithDetail("artifact_id", artifact.ID.String())
			}
			return nil, services.WrapUnavailable("failed to fetch artifact content", err)
		}

		content, err := s.cipher.Open(sealed)
		if err != nil {
			return nil, services.WrapInternal("failed to decrypt artifact", err)
		}

		report.Artifacts = append(report.Artifacts, &ArtifactContent{Artifact: artifact, Content: content})
	}

	return report, nil
}

// GrantAccess lets the owner of recordID grant target read access.
func (s *Service) GrantAccess(ctx context.Context, sub policy.Subject, recordID, target string) (services.Outcome[*models.ACLEntry], error) {
	return s.changeAccess(ctx, sub, recordID, target, models.AuditActionGrantAccess)
}

// RevokeAccess lets the owner of recordID withdraw target's read access.
func (s *Service) RevokeAccess(ctx context.Context, sub policy.Subject, recordID, target string) (services.Outcome[*models.ACLEntry], error) {
	return s.changeAccess(ctx, sub, recordID, target, models.AuditActionRevokeAccess)
}

func (s *Service) changeAccess(ctx context.Context, sub policy.Subject, recordID, target string, action models.AuditAction) (services.Outcome[*models.ACLEntry], error) {
	var none services.Outcome[*models.ACLEntry]

	if err := ValidateRecordID(recordID); err != nil {
		return none, err
	}
	if strings.TrimSpace(target) == "" {
		return none, services.ErrInvalidIdentity
	}

	var (
		updated *models.ACLEntry
		logged  *models.AuditEntry
		reason  policy.Reason
	)

	err := services.WithRecordSection(ctx, s.txMgr, recordID, func(ctx context.Context) error {
		_, decision, err := s.authorize(ctx, sub, policy.ActionManageAccess, recordID)
		if err != nil {
			return err
		}
		if !decision.Allowed {
			reason = decision.Reason
			return nil
		}

		if action == models.AuditActionGrantAccess {
			updated, reason, err = s.acl.Grant(ctx, recordID, sub.Identity, target)
		} else {
			updated, reason, err = s.acl.Revoke(ctx, recordID, sub.Identity, target)
		}
		if err != nil || reason != policy.ReasonNone {
			return err
		}

		logged, err = s.ledger.Append(ctx, recordID, sub.Identity, action, target, s.now())
		return err
	})
	if err != nil {
		s.logger.Error("access change failed",
			zap.String("record_id", recordID),
			zap.String("action", string(action)),
			zap.Error(err))
		return none, err
	}
	if reason != policy.ReasonNone {
		return denied[*models.ACLEntry](ctx, s, sub, policy.ActionManageAccess, recordID, reason), nil
	}

	return services.Allowed(updated, logged), nil
}

// ListAccessGrants returns the identities granted access to recordID.
func (s *Service) ListAccessGrants(ctx context.Context, sub policy.Subject, recordID string) (services.Outcome[[]string], error) {
	var none services.Outcome[[]string]

	if err := ValidateRecordID(recordID); err != nil {
		return none, err
	}

	_, decision, err := s.authorize(ctx, sub, policy.ActionViewAccessList, recordID)
	if err != nil {
		return none, err
	}
	if !decision.Allowed {
		return denied[[]string](ctx, s, sub, policy.ActionViewAccessList, recordID, decision.Reason), nil
	}

	grants, reason, err := s.acl.ListGrants(ctx, recordID, sub.Identity)
	if err != nil {
		return none, err
	}
	if reason != policy.ReasonNone {
		return denied[[]string](ctx, s, sub, policy.ActionViewAccessList, recordID, reason), nil
	}

	return services.Allowed(grants, nil), nil
}

// ListAuditLog returns the reads of recordID to its owner, oldest first.
// Store, grant and revoke entries are chained in the same ledger and show up
// in VerifyAuditLog, not here.
func (s *Service) ListAuditLog(ctx context.Context, sub policy.Subject, recordID string) (services.Outcome[[]*models.AuditEntry], error) {
	var none services.Outcome[[]*models.AuditEntry]

	if err := ValidateRecordID(recordID); err != nil {
		return none, err
	}

	_, decision, err := s.authorize(ctx, sub, policy.ActionViewAuditLog, recordID)
	if err != nil {
		return none, err
	}
	if !decision.Allowed {
		return denied[[]*models.AuditEntry](ctx, s, sub, policy.ActionViewAuditLog, recordID, decision.Reason), nil
	}

	entries, reason, err := s.ledger.Query(ctx, recordID, sub.Identity)
	if err != nil {
		return none, err
	}
	if reason != policy.ReasonNone {
		return denied[[]*models.AuditEntry](ctx, s, sub, policy.ActionViewAuditLog, recordID, reason), nil
	}

	accesses := make([]*models.AuditEntry, 0, len(entries))
	for _, e := range entries {
		if e.Action.IsAccess() {
			accesses = append(accesses, e)
		}
	}
	return services.Allowed(accesses, nil), nil
}

// VerifyAuditLog recomputes the ledger chain of recordID for its owner.
func (s *Service) VerifyAuditLog(ctx context.Context, sub policy.Subject, recordID string) (services.Outcome[*audit.Verification], error) {
	var none services.Outcome[*audit.Verification]

	if err := ValidateRecordID(recordID); err != nil {
		return none, err
	}

	_, decision, err := s.authorize(ctx, sub, policy.ActionViewAuditLog, recordID)
	if err != nil {
		return none, err
	}
	if !decision.Allowed {
		return denied[*audit.Verification](ctx, s, sub, policy.ActionViewAuditLog, recordID, decision.Reason), nil
	}

	v, err := s.ledger.Verify(ctx, recordID)
	if err != nil {
		return none, err
	}
	return services.Allowed(v, nil), nil
}

// ListOwnRecords returns the records owned by the caller, newest first.
// Artifact content is not included.
func (s *Service) ListOwnRecords(ctx context.Context, sub policy.Subject) ([]*models.Record, error) {
	records, err := s.records.ListByOwner(ctx, sub.Identity)
	if err != nil {
		return nil, services.WrapRepository("failed to list records", err)
	}
	return records, nil
}

// Trends returns anonymized per-day upload counts across all records.
func (s *Service) Trends(ctx context.Context, sub policy.Subject) (services.Outcome[[]DayCount], error) {
	var none services.Outcome[[]DayCount]

	decision := s.engine.Authorize(sub, policy.ActionAggregateQuery, nil)
	if !decision.Allowed {
		return denied[[]DayCount](ctx, s, sub, policy.ActionAggregateQuery, "", decision.Reason), nil
	}

	counts, err := s.records.CountArtifactsByDay(ctx)
	if err != nil {
		return none, services.WrapRepository("failed to aggregate uploads", err)
	}

	trends := make([]DayCount, 0, len(counts))
	for day, count := range counts {
		trends = append(trends, DayCount{Day: day, Count: count})
	}
	sort.Slice(trends, func(i, j int) bool { return trends[i].Day < trends[j].Day })

	if s.events != nil {
		s.events.RecordAggregateQuery(sub, services.RequestIDFromContext(ctx))
	}
	return services.Allowed(trends, nil), nil
}
