// Package handlers contains the HTTP handlers. Handlers stay thin: they
// decode and validate the request, call one service operation and map the
// outcome or error to a response.
package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/medicrypt/recordvault/middleware"
	"github.com/medicrypt/recordvault/services/policy"
	"github.com/medicrypt/recordvault/utils"
	"go.uber.org/zap"
)

var errEmptyBody = errors.New("request body is empty")

// decodeJSON decodes the request body into dst and validates it.
// It writes the error response itself and reports whether decoding succeeded.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}, logger *zap.Logger) bool {
	requestID := middleware.GetRequestIDFromContext(r.Context())

	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			err = errEmptyBody
		}
		logger.Warn("failed to parse request body",
			zap.String("request_id", requestID),
			zap.Error(err))
		_ = utils.WriteBadRequest(w, "Invalid request body", nil)
		return false
	}

	if err := utils.ValidateStruct(dst); err != nil {
		logger.Warn("request validation failed",
			zap.String("request_id", requestID),
			zap.Error(err))
		HandleValidationError(w, err, logger)
		return false
	}

	return true
}

// subject returns the authenticated caller, writing a 401 when the request
// did not pass through the auth middleware.
func subject(w http.ResponseWriter, r *http.Request) (policy.Subject, bool) {
	sub, ok := middleware.SubjectFromContext(r.Context())
	if !ok {
		_ = utils.WriteUnauthorized(w, "Authentication required")
		return policy.Subject{}, false
	}
	return sub, true
}
