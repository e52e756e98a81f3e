// Package errors provides error handling and HTTP status code mapping.
package errors

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/frozlabs/todovault/internal/identity"
	"github.com/frozlabs/todovault/internal/service"
	"github.com/frozlabs/todovault/internal/store"
)

// ErrorCode represents application-specific error codes.
type ErrorCode string

const (
	// General errors
	ErrorCodeInvalidRequest ErrorCode = "INVALID_REQUEST"
	ErrorCodeInternalError  ErrorCode = "INTERNAL_ERROR"
	ErrorCodeRateLimited    ErrorCode = "RATE_LIMITED"

	// Identity errors
	ErrorCodeNotAuthenticated   ErrorCode = "NOT_AUTHENTICATED"
	ErrorCodeInvalidCredentials ErrorCode = "INVALID_CREDENTIALS"
	ErrorCodeStaleCredential    ErrorCode = "STALE_CREDENTIAL"

	// Account errors
	ErrorCodeEmailExists ErrorCode = "EMAIL_EXISTS"

	// Session errors
	ErrorCodeSessionNotActive ErrorCode = "SESSION_NOT_ACTIVE"

	// Provisioning errors
	ErrorCodeProvisioningFailed ErrorCode = "PROVISIONING_FAILED"

	// Todo errors
	ErrorCodeTodoNotFound ErrorCode = "TODO_NOT_FOUND"
)

// ErrorResponse represents the standard error response format.
type ErrorResponse struct {
	Status    string    `json:"status"`
	ErrorCode ErrorCode `json:"error_code"`
	Message   string    `json:"message"`
	RequestID string    `json:"request_id,omitempty"`
}

// Handler provides error handling functionality.
type Handler struct {
	logger *zap.Logger
}

// NewHandler creates a new error handler.
func NewHandler(logger *zap.Logger) *Handler {
	return &Handler{
		logger: logger,
	}
}

// HandleError maps a domain error to its HTTP response.
func (h *Handler) HandleError(w http.ResponseWriter, r *http.Request, err error) {
	statusCode, errorCode := Classify(err)
	message := err.Error()
	if statusCode == http.StatusInternalServerError {
		// Internal detail stays in the logs, not the response body.
		message = "internal server error"
		h.logger.Error("internal error", zap.Error(err),
			zap.String("request_id", r.Header.Get("X-Request-ID")))
	}

	h.WriteErrorResponse(w, statusCode, errorCode, message, r.Header.Get("X-Request-ID"))
}

// Classify maps a domain error to an HTTP status and error code.
func Classify(err error) (int, ErrorCode) {
	switch {
	case errors.Is(err, identity.ErrNoIdentity):
		return http.StatusUnauthorized, ErrorCodeNotAuthenticated
	case errors.Is(err, service.ErrUnresolvable):
		return http.StatusUnauthorized, ErrorCodeStaleCredential
	case errors.Is(err, service.ErrInvalidCredentials):
		return http.StatusUnauthorized, ErrorCodeInvalidCredentials
	case errors.Is(err, service.ErrNotActive):
		return http.StatusNotFound, ErrorCodeSessionNotActive
	case errors.Is(err, store.ErrDuplicateEmail):
		return http.StatusConflict, ErrorCodeEmailExists
	case errors.Is(err, store.ErrTodoNotFound):
		return http.StatusNotFound, ErrorCodeTodoNotFound
	default:
		return http.StatusInternalServerError, ErrorCodeInternalError
	}
}

// WriteErrorResponse writes a formatted error response to the HTTP response writer.
func (h *Handler) WriteErrorResponse(w http.ResponseWriter, statusCode int, errorCode ErrorCode, message string, requestID string) {
	h.logger.Warn("HTTP error response",
		zap.Int("status_code", statusCode),
		zap.String("error_code", string(errorCode)),
		zap.String("message", message),
		zap.String("request_id", requestID),
	)

	resp := ErrorResponse{
		Status:    "error",
		ErrorCode: errorCode,
		Message:   message,
		RequestID: requestID,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(resp)
}

// WriteValidationError writes a validation error response.
func (h *Handler) WriteValidationError(w http.ResponseWriter, message string, requestID string) {
	h.WriteErrorResponse(w, http.StatusBadRequest, ErrorCodeInvalidRequest, message, requestID)
}

// WriteInternalError writes an internal error response.
func (h *Handler) WriteInternalError(w http.ResponseWriter, message string, requestID string) {
	h.WriteErrorResponse(w, http.StatusInternalServerError, ErrorCodeInternalError, message, requestID)
}
