package dto

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/mtlprog/commandcenter/internal/domain"
)

// Response is the success envelope.
type Response struct {
	OK   bool `json:"ok"`
	Data any  `json:"data"`
}

// ErrorResponse is the failure envelope.
type ErrorResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
	Code  string `json:"code"`
}

// NewResponse wraps data in a success envelope.
func NewResponse(data any) Response {
	return Response{OK: true, Data: data}
}

// NewErrorResponse creates a new error response.
func NewErrorResponse(code, message string) ErrorResponse {
	return ErrorResponse{
		OK:    false,
		Error: message,
		Code:  code,
	}
}

// MapDomainError maps domain errors to HTTP status codes and error codes.
func MapDomainError(err error) (status int, code string, message string) {
	message = err.Error()

	switch {
	// Not found errors
	case errors.Is(err, domain.ErrRunNotFound):
		return http.StatusNotFound, "RUN_NOT_FOUND", message
	case errors.Is(err, domain.ErrAgentNotFound):
		return http.StatusNotFound, "AGENT_NOT_FOUND", message
	case errors.Is(err, domain.ErrPolicyNotFound):
		return http.StatusNotFound, "POLICY_NOT_FOUND", message
	case errors.Is(err, domain.ErrTemplateNotFound):
		return http.StatusNotFound, "TEMPLATE_NOT_FOUND", message
	case errors.Is(err, domain.ErrActiveDeploymentNotFound):
		return http.StatusNotFound, "DEPLOYMENT_NOT_FOUND", "Active deployment not found"
	case errors.Is(err, domain.ErrDeploymentNotFound):
		return http.StatusNotFound, "DEPLOYMENT_NOT_FOUND", message
	case errors.Is(err, domain.ErrApprovalNotFound):
		return http.StatusNotFound, "APPROVAL_NOT_FOUND", message
	case errors.Is(err, domain.ErrWebhookNotFound):
		return http.StatusNotFound, "WEBHOOK_NOT_FOUND", message
	case errors.Is(err, domain.ErrWorkspaceNotFound):
		return http.StatusNotFound, "WORKSPACE_NOT_FOUND", message

	// Conflict errors
	case errors.Is(err, domain.ErrRunTerminal):
		return http.StatusConflict, "RUN_TERMINAL", message
	case errors.Is(err, domain.ErrApprovalResolved):
		return http.StatusConflict, "APPROVAL_RESOLVED", message
	case errors.Is(err, domain.ErrWebhookNoDeployment):
		return http.StatusConflict, "NO_ACTIVE_DEPLOYMENT", "No active deployment linked to trigger"
	case errors.Is(err, domain.ErrConcurrentModification):
		return http.StatusConflict, "CONCURRENT_MODIFICATION", message

	// Authentication errors
	case errors.Is(err, domain.ErrInvalidSignature):
		return http.StatusUnauthorized, "INVALID_SIGNATURE", "Invalid webhook signature"

	// Validation errors
	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrInvalidKind),
		errors.Is(err, domain.ErrInvalidDecision):
		return http.StatusBadRequest, "VALIDATION_ERROR", message

	default:
		slog.Error("unmapped domain error returned to client",
			"error", err,
			"error_type", fmt.Sprintf("%T", err),
		)
		return http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error"
	}
}
