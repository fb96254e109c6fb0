package dto_test

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mtlprog/commandcenter/internal/domain"
	"github.com/mtlprog/commandcenter/internal/handler/dto"
)

func TestMapDomainError(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{domain.ErrRunNotFound, http.StatusNotFound, "RUN_NOT_FOUND"},
		{domain.ErrAgentNotFound, http.StatusNotFound, "AGENT_NOT_FOUND"},
		{domain.ErrActiveDeploymentNotFound, http.StatusNotFound, "DEPLOYMENT_NOT_FOUND"},
		{domain.ErrWebhookNotFound, http.StatusNotFound, "WEBHOOK_NOT_FOUND"},
		{fmt.Errorf("%w: run already failed", domain.ErrRunTerminal), http.StatusConflict, "RUN_TERMINAL"},
		{domain.ErrApprovalResolved, http.StatusConflict, "APPROVAL_RESOLVED"},
		{domain.ErrWebhookNoDeployment, http.StatusConflict, "NO_ACTIVE_DEPLOYMENT"},
		{domain.ErrInvalidSignature, http.StatusUnauthorized, "INVALID_SIGNATURE"},
		{fmt.Errorf("%w: name too short", domain.ErrValidation), http.StatusBadRequest, "VALIDATION_ERROR"},
		{domain.ErrInvalidKind, http.StatusBadRequest, "VALIDATION_ERROR"},
		{domain.ErrInvalidDecision, http.StatusBadRequest, "VALIDATION_ERROR"},
		{errors.New("boom"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			status, code, _ := dto.MapDomainError(tt.err)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.code, code)
		})
	}
}

func TestMapDomainError_HidesInternalMessage(t *testing.T) {
	_, _, message := dto.MapDomainError(errors.New("pq: connection reset"))
	assert.Equal(t, "Internal server error", message)
}

func TestMapDomainError_KeepsContext(t *testing.T) {
	_, _, message := dto.MapDomainError(fmt.Errorf("%w: run already cancelled", domain.ErrRunTerminal))
	assert.Equal(t, "run already terminal: run already cancelled", message)
}
