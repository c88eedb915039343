package handlers

import (
	"context"
	"errors"
	"io"
	"mime"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/medicrypt/recordvault/middleware"
	"github.com/medicrypt/recordvault/models"
	"github.com/medicrypt/recordvault/services"
	"github.com/medicrypt/recordvault/services/audit"
	"github.com/medicrypt/recordvault/services/policy"
	"github.com/medicrypt/recordvault/services/records"
	"github.com/medicrypt/recordvault/utils"
	"go.uber.org/zap"
)

// multipartMemory is the part of a multipart upload kept in memory before
// spilling to temporary files.
const multipartMemory = 8 << 20

// GrantRequest names the wallet to grant read access to
type GrantRequest struct {
	WalletAddress string `json:"walletAddress" validate:"required,wallet"`
}

// OperationResponse is the body of a successful record operation. AuditEntry
// is the ledger entry the operation wrote, when it wrote one.
type OperationResponse struct {
	Result     interface{}        `json:"result"`
	AuditEntry *models.AuditEntry `json:"audit_entry,omitempty"`
}

// RecordService defines the record operations exposed over HTTP
type RecordService interface {
	StoreArtifact(ctx context.Context, sub policy.Subject, recordID string, payload []byte) (services.Outcome[*models.Artifact], error)
	ReadReport(ctx context.Context, sub policy.Subject, recordID string) (services.Outcome[*records.Report], error)
	GrantAccess(ctx context.Context, sub policy.Subject, recordID, target string) (services.Outcome[*models.ACLEntry], error)
	RevokeAccess(ctx context.Context, sub policy.Subject, recordID, target string) (services.Outcome[*models.ACLEntry], error)
	ListAccessGrants(ctx context.Context, sub policy.Subject, recordID string) (services.Outcome[[]string], error)
	ListAuditLog(ctx context.Context, sub policy.Subject, recordID string) (services.Outcome[[]*models.AuditEntry], error)
	VerifyAuditLog(ctx context.Context, sub policy.Subject, recordID string) (services.Outcome[*audit.Verification], error)
	ListOwnRecords(ctx context.Context, sub policy.Subject) ([]*models.Record, error)
	Trends(ctx context.Context, sub policy.Subject) (services.Outcome[[]records.DayCount], error)
}

// RecordHandler handles record HTTP requests
type RecordHandler struct {
	records RecordService
	logger  *zap.Logger
}

// NewRecordHandler creates a new RecordHandler
func NewRecordHandler(recordService RecordService, logger *zap.Logger) *RecordHandler {
	return &RecordHandler{
		records: recordService,
		logger:  logger,
	}
}

// writeOutcome writes an allowed outcome with status, or the denial.
func writeOutcome[T any](w http.ResponseWriter, status int, out services.Outcome[T], logger *zap.Logger) {
	if !out.Decision.Allowed {
		writeDenial(w, out.Decision, logger)
		return
	}
	if err := utils.WriteJSON(w, status, utils.SuccessResponse{
		Data: OperationResponse{Result: out.Data, AuditEntry: out.Entry},
	}); err != nil {
		logger.Error("failed to write response", zap.Error(err))
	}
}

// HandleStoreArtifact handles POST /api/patient/records/{recordId}/artifacts.
// The artifact is either the "file" part of a multipart form or the raw body.
func (h *RecordHandler) HandleStoreArtifact(w http.ResponseWriter, r *http.Request) {
	sub, ok := subject(w, r)
	if !ok {
		return
	}
	recordID := chi.URLParam(r, "recordId")

	payload, err := readArtifact(r)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			_ = utils.WriteError(w, http.StatusRequestEntityTooLarge, "Artifact exceeds the upload limit",
				map[string]interface{}{"limit": tooLarge.Limit})
			return
		}
		h.logger.Warn("failed to read artifact",
			zap.String("request_id", middleware.GetRequestIDFromContext(r.Context())),
			zap.String("record_id", recordID),
			zap.Error(err))
		_ = utils.WriteBadRequest(w, "Invalid artifact upload", nil)
		return
	}

	out, err := h.records.StoreArtifact(r.Context(), sub, recordID, payload)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	writeOutcome(w, http.StatusCreated, out, h.logger)
}

func readArtifact(r *http.Request) ([]byte, error) {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || mediaType != "multipart/form-data" {
		return io.ReadAll(r.Body)
	}

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		return nil, err
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, _, err := r.FormFile("file")
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return io.ReadAll(file)
}

// HandleReadReport handles GET /api/records/{recordId}/report
func (h *RecordHandler) HandleReadReport(w http.ResponseWriter, r *http.Request) {
	sub, ok := subject(w, r)
	if !ok {
		return
	}

	out, err := h.records.ReadReport(r.Context(), sub, chi.URLParam(r, "recordId"))
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	writeOutcome(w, http.StatusOK, out, h.logger)
}

// HandleGrantAccess handles POST /api/patient/records/{recordId}/grants
func (h *RecordHandler) HandleGrantAccess(w http.ResponseWriter, r *http.Request) {
	sub, ok := subject(w, r)
	if !ok {
		return
	}

	var req GrantRequest
	if !decodeJSON(w, r, &req, h.logger) {
		return
	}

	out, err := h.records.GrantAccess(r.Context(), sub, chi.URLParam(r, "recordId"), req.WalletAddress)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	writeOutcome(w, http.StatusOK, out, h.logger)
}

// HandleRevokeAccess handles DELETE /api/patient/records/{recordId}/grants/{wallet}
func (h *RecordHandler) HandleRevokeAccess(w http.ResponseWriter, r *http.Request) {
	sub, ok := subject(w, r)
	if !ok {
		return
	}

	target, err := utils.ParseWalletParam("wallet", chi.URLParam(r, "wallet"))
	if err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	out, err := h.records.RevokeAccess(r.Context(), sub, chi.URLParam(r, "recordId"), target)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	writeOutcome(w, http.StatusOK, out, h.logger)
}

// HandleListAccessGrants handles GET /api/records/{recordId}/grants
func (h *RecordHandler) HandleListAccessGrants(w http.ResponseWriter, r *http.Request) {
	sub, ok := subject(w, r)
	if !ok {
		return
	}

	out, err := h.records.ListAccessGrants(r.Context(), sub, chi.URLParam(r, "recordId"))
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	writeOutcome(w, http.StatusOK, out, h.logger)
}

// HandleListAuditLog handles GET /api/records/{recordId}/audit
func (h *RecordHandler) HandleListAuditLog(w http.ResponseWriter, r *http.Request) {
	sub, ok := subject(w, r)
	if !ok {
		return
	}

	out, err := h.records.ListAuditLog(r.Context(), sub, chi.URLParam(r, "recordId"))
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	writeOutcome(w, http.StatusOK, out, h.logger)
}

// HandleVerifyAuditLog handles GET /api/records/{recordId}/audit/verify
func (h *RecordHandler) HandleVerifyAuditLog(w http.ResponseWriter, r *http.Request) {
	sub, ok := subject(w, r)
	if !ok {
		return
	}

	out, err := h.records.VerifyAuditLog(r.Context(), sub, chi.URLParam(r, "recordId"))
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	writeOutcome(w, http.StatusOK, out, h.logger)
}

// HandleListOwnRecords handles GET /api/patient/records
func (h *RecordHandler) HandleListOwnRecords(w http.ResponseWriter, r *http.Request) {
	sub, ok := subject(w, r)
	if !ok {
		return
	}

	list, err := h.records.ListOwnRecords(r.Context(), sub)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	h.logger.Debug("listed records",
		zap.String("request_id", middleware.GetRequestIDFromContext(r.Context())),
		zap.String("identity", sub.Identity),
		zap.Int("count", len(list)))

	_ = utils.WriteOK(w, list)
}

// HandleTrends handles GET /api/researcher/trends
func (h *RecordHandler) HandleTrends(w http.ResponseWriter, r *http.Request) {
	sub, ok := subject(w, r)
	if !ok {
		return
	}

	out, err := h.records.Trends(r.Context(), sub)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	writeOutcome(w, http.StatusOK, out, h.logger)
}
