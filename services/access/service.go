// Package access implements the doctor access-request workflow. A doctor asks
// for access to a record and its owner approves or rejects the request.
// Approval grants access and writes the ledger entry in the same exclusive
// section as the status change.
package access

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/medicrypt/recordvault/models"
	"github.com/medicrypt/recordvault/repositories"
	"github.com/medicrypt/recordvault/services"
	"github.com/medicrypt/recordvault/services/acl"
	"github.com/medicrypt/recordvault/services/audit"
	"github.com/medicrypt/recordvault/services/policy"
	"github.com/medicrypt/recordvault/services/records"
	"go.uber.org/zap"
)

// DenialRecorder receives refused operations for the security event stream.
type DenialRecorder interface {
	RecordDenial(sub policy.Subject, action policy.Action, recordID string, reason policy.Reason, requestID string)
}

// Service handles access requests
type Service struct {
	requests repositories.AccessRequestRepository
	acl      *acl.Store
	ledger   *audit.Ledger
	engine   *policy.Engine
	events   DenialRecorder
	txMgr    repositories.TransactionManager
	logger   *zap.Logger
	now      func() time.Time
}

// NewService creates a new access request service
func NewService(
	requests repositories.AccessRequestRepository,
	aclStore *acl.Store,
	ledger *audit.Ledger,
	engine *policy.Engine,
	events DenialRecorder,
	txMgr repositories.TransactionManager,
	logger *zap.Logger,
) *Service {
	return &Service{
		requests: requests,
		acl:      aclStore,
		ledger:   ledger,
		engine:   engine,
		events:   events,
		txMgr:    txMgr,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) deny(ctx context.Context, sub policy.Subject, action policy.Action, recordID string, reason policy.Reason) services.Outcome[*models.AccessRequest] {
	s.logger.Info("access request operation denied",
		zap.String("request_id", services.RequestIDFromContext(ctx)),
		zap.String("identity", sub.Identity),
		zap.String("action", string(action)),
		zap.String("record_id", recordID),
		zap.String("reason", string(reason)))

	if s.events != nil {
		s.events.RecordDenial(sub, action, recordID, reason, services.RequestIDFromContext(ctx))
	}
	return services.Denied[*models.AccessRequest](reason)
}

// Request files a pending access request by a doctor for recordID. A
// repeated request while one is still pending returns the pending one.
func (s *Service) Request(ctx context.Context, sub policy.Subject, recordID string) (services.Outcome[*models.AccessRequest], error) {
	var none services.Outcome[*models.AccessRequest]

	if err := records.ValidateRecordID(recordID); err != nil {
		return none, err
	}

	var (
		request *models.AccessRequest
		reason  policy.Reason
	)

	err := services.WithRecordSection(ctx, s.txMgr, recordID, func(ctx context.Context) error {
		entry, err := s.acl.Lookup(ctx, recordID)
		if err != nil {
			return err
		}
		decision := s.engine.Authorize(sub, policy.ActionRequestAccess, entry)
		if !decision.Allowed {
			reason = decision.Reason
			return nil
		}

		existing, err := s.requests.ListByRequester(ctx, sub.Identity)
		if err != nil {
			return services.WrapRepository("failed to list access requests", err)
		}
		for _, req := range existing {
			if req.RecordID == recordID && req.Status == models.AccessRequestPending {
				request = req
				return nil
			}
		}

		request = models.NewAccessRequest(recordID, sub.Identity, s.now())
		if err := s.requests.Create(ctx, request); err != nil {
			return services.WrapRepository("failed to create access request", err)
		}
		return nil
	})
	if err != nil {
		return none, err
	}
	if reason != policy.ReasonNone {
		return s.deny(ctx, sub, policy.ActionRequestAccess, recordID, reason), nil
	}

	s.logger.Info("access requested",
		zap.String("id", request.ID.String()),
		zap.String("record_id", recordID),
		zap.String("requester", sub.Identity))

	return services.Allowed(request, nil), nil
}

// List returns the requests visible to sub: those against its records for a
// patient, those it raised for a doctor. Researchers see none.
func (s *Service) List(ctx context.Context, sub policy.Subject) ([]*models.AccessRequest, error) {
	var (
		requests []*models.AccessRequest
		err      error
	)

	switch sub.Role {
	case models.RolePatient:
		requests, err = s.requests.ListByOwner(ctx, sub.Identity)
	case models.RoleDoctor:
		requests, err = s.requests.ListByRequester(ctx, sub.Identity)
	default:
		return []*models.AccessRequest{}, nil
	}
	if err != nil {
		return nil, services.WrapRepository("failed to list access requests", err)
	}
	return requests, nil
}

// Decide sets the status of a pending request. Only the owner of the
// requested record may decide, and approval grants the requester access.
func (s *Service) Decide(ctx context.Context, sub policy.Subject, id uuid.UUID, status models.AccessRequestStatus) (services.Outcome[*models.AccessRequest], error) {
	var none services.Outcome[*models.AccessRequest]

	if !status.IsDecision() {
		return none, services.ErrInvalidDecision
	}

	request, err := s.requests.GetByID(ctx, id)
	if err != nil {
		return none, s.wrapLookup(err, id)
	}
	recordID := request.RecordID

	var (
		logged *models.AuditEntry
		reason policy.Reason
	)

	err = services.WithRecordSection(ctx, s.txMgr, recordID, func(ctx context.Context) error {
		entry, err := s.acl.Lookup(ctx, recordID)
		if err != nil {
			return err
		}
		decision := s.engine.Authorize(sub, policy.ActionManageAccess, entry)
		if !decision.Allowed {
			reason = decision.Reason
			return nil
		}

		request, err = s.requests.GetByID(ctx, id)
		if err != nil {
			return s.wrapLookup(err, id)
		}
		if request.Status != models.AccessRequestPending {
			return services.NewDomainError(services.ErrorTypeConflict, services.ErrRequestAlreadyDecided.Message, nil).
				WithDetail("status", string(request.Status))
		}

		now := s.now()
		if err := s.requests.UpdateStatus(ctx, id, status, now); err != nil {
			return services.WrapRepository("failed to update access request", err)
		}
		request.Status = status
		request.UpdatedAt = now

		if status != models.AccessRequestApproved {
			return nil
		}

		_, reason, err = s.acl.Grant(ctx, recordID, sub.Identity, request.Requester)
		if err != nil || reason != policy.ReasonNone {
			return err
		}
		logged, err = s.ledger.Append(ctx, recordID, sub.Identity, models.AuditActionGrantAccess, request.Requester, now)
		return err
	})
	if err != nil {
		return none, err
	}
	if reason != policy.ReasonNone {
		return s.deny(ctx, sub, policy.ActionManageAccess, recordID, reason), nil
	}

	s.logger.Info("access request decided",
		zap.String("id", id.String()),
		zap.String("record_id", recordID),
		zap.String("status", string(status)))

	return services.Allowed(request, logged), nil
}

func (s *Service) wrapLookup(err error, id uuid.UUID) error {
	if errors.Is(err, repositories.ErrNotFound) {
		return services.NewDomainError(services.ErrorTypeNotFound, services.ErrAccessRequestNotFound.Message, err).
			WithDetail("id", id.String())
	}
	return services.WrapRepository("failed to load access request", err)
}
