package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/medicrypt/recordvault/models"
	"github.com/medicrypt/recordvault/services"
	"github.com/medicrypt/recordvault/services/policy"
	"github.com/medicrypt/recordvault/utils"
	"go.uber.org/zap"
)

// CreateAccessRequest asks the owner of a record for read access
type CreateAccessRequest struct {
	RecordID string `json:"recordId" validate:"required,recordid"`
}

// DecideAccessRequest carries the owner's decision on a pending request
type DecideAccessRequest struct {
	Status models.AccessRequestStatus `json:"status" validate:"required,oneof=APPROVED REJECTED"`
}

// AccessService defines the access request workflow
type AccessService interface {
	Request(ctx context.Context, sub policy.Subject, recordID string) (services.Outcome[*models.AccessRequest], error)
	List(ctx context.Context, sub policy.Subject) ([]*models.AccessRequest, error)
	Decide(ctx context.Context, sub policy.Subject, id uuid.UUID, status models.AccessRequestStatus) (services.Outcome[*models.AccessRequest], error)
}

// AccessHandler handles access request HTTP requests
type AccessHandler struct {
	access AccessService
	logger *zap.Logger
}

// NewAccessHandler creates a new AccessHandler
func NewAccessHandler(accessService AccessService, logger *zap.Logger) *AccessHandler {
	return &AccessHandler{
		access: accessService,
		logger: logger,
	}
}

// HandleRequestAccess handles POST /api/doctor/access-requests
func (h *AccessHandler) HandleRequestAccess(w http.ResponseWriter, r *http.Request) {
	sub, ok := subject(w, r)
	if !ok {
		return
	}

	var req CreateAccessRequest
	if !decodeJSON(w, r, &req, h.logger) {
		return
	}

	out, err := h.access.Request(r.Context(), sub, req.RecordID)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	writeOutcome(w, http.StatusCreated, out, h.logger)
}

// HandleListAccessRequests handles GET /api/access-requests
func (h *AccessHandler) HandleListAccessRequests(w http.ResponseWriter, r *http.Request) {
	sub, ok := subject(w, r)
	if !ok {
		return
	}

	requests, err := h.access.List(r.Context(), sub)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	_ = utils.WriteOK(w, requests)
}

// HandleDecideAccessRequest handles PUT /api/access-requests/{id}
func (h *AccessHandler) HandleDecideAccessRequest(w http.ResponseWriter, r *http.Request) {
	sub, ok := subject(w, r)
	if !ok {
		return
	}

	id, err := utils.ParseUUIDParam("id", chi.URLParam(r, "id"))
	if err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	var req DecideAccessRequest
	if !decodeJSON(w, r, &req, h.logger) {
		return
	}

	out, err := h.access.Decide(r.Context(), sub, id, req.Status)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	writeOutcome(w, http.StatusOK, out, h.logger)
}
