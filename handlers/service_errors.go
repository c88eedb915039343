package handlers

import (
	"net/http"

	"github.com/medicrypt/recordvault/services"
	"github.com/medicrypt/recordvault/services/policy"
	"github.com/medicrypt/recordvault/utils"
	"go.uber.org/zap"
)

// HandleServiceError maps domain errors to HTTP responses
func HandleServiceError(w http.ResponseWriter, err error, logger *zap.Logger) {
	if err == nil {
		return
	}

	details := services.GetErrorDetails(err)

	switch {
	case services.IsNotFoundError(err):
		if err := utils.WriteNotFound(w, errorMessage(err)); err != nil {
			logger.Error("failed to write not found response", zap.Error(err))
		}

	case services.IsValidationError(err):
		if err := utils.WriteBadRequest(w, errorMessage(err), details); err != nil {
			logger.Error("failed to write bad request response", zap.Error(err))
		}

	case services.IsUnauthorizedError(err):
		if err := utils.WriteUnauthorized(w, errorMessage(err)); err != nil {
			logger.Error("failed to write unauthorized response", zap.Error(err))
		}

	case services.IsForbiddenError(err):
		if err := utils.WriteForbidden(w, errorMessage(err)); err != nil {
			logger.Error("failed to write forbidden response", zap.Error(err))
		}

	case services.IsConflictError(err):
		if err := utils.WriteConflict(w, errorMessage(err), details); err != nil {
			logger.Error("failed to write conflict response", zap.Error(err))
		}

	case services.IsUnavailableError(err):
		// Storage outages are transient; the client retries the whole request
		logger.Error("dependency unavailable", zap.Error(err))
		if err := utils.WriteServiceUnavailable(w, "Service temporarily unavailable, retry the request"); err != nil {
			logger.Error("failed to write unavailable response", zap.Error(err))
		}

	case services.IsInternalError(err):
		// Log internal errors but return generic message
		logger.Error("internal server error", zap.Error(err))
		if err := utils.WriteInternalServerError(w, "An internal error occurred"); err != nil {
			logger.Error("failed to write internal error response", zap.Error(err))
		}

	default:
		logger.Error("unhandled error type",
			zap.Error(err),
			zap.String("error_type", string(services.GetErrorType(err))))
		if err := utils.WriteInternalServerError(w, "An unexpected error occurred"); err != nil {
			logger.Error("failed to write internal error response", zap.Error(err))
		}
	}
}

// errorMessage returns the client-facing message of a domain error, without
// the wrapped cause.
func errorMessage(err error) string {
	if msg := services.GetErrorMessage(err); msg != "" {
		return msg
	}
	return err.Error()
}

// HandleValidationError handles validation errors from request parsing
func HandleValidationError(w http.ResponseWriter, err error, logger *zap.Logger) {
	if utils.IsValidationError(err) {
		fields := utils.GetValidationFields(err)
		details := make(map[string]interface{})
		for k, v := range fields {
			details[k] = v
		}
		if err := utils.WriteBadRequest(w, "Validation failed", details); err != nil {
			logger.Error("failed to write validation error response", zap.Error(err))
		}
		return
	}

	if err := utils.WriteBadRequest(w, err.Error(), nil); err != nil {
		logger.Error("failed to write validation error response", zap.Error(err))
	}
}

// writeDenial maps a refused authorization decision to a response. A missing
// record is reported as 404, every other reason as 403.
func writeDenial(w http.ResponseWriter, decision policy.Decision, logger *zap.Logger) {
	status := http.StatusForbidden
	if decision.Reason == policy.ReasonRecordNotFound {
		status = http.StatusNotFound
	}

	details := map[string]interface{}{"reason": string(decision.Reason)}
	if err := utils.WriteError(w, status, decision.Reason.Message(), details); err != nil {
		logger.Error("failed to write denial response", zap.Error(err))
	}
}
