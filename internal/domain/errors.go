package domain

import "errors"

// Domain-specific errors for business logic validation.
var (
	// Not found errors
	ErrWorkspaceNotFound        = errors.New("workspace not found")
	ErrAgentNotFound            = errors.New("agent not found")
	ErrPolicyNotFound           = errors.New("policy not found")
	ErrTemplateNotFound         = errors.New("template not found")
	ErrDeploymentNotFound       = errors.New("deployment not found")
	ErrActiveDeploymentNotFound = errors.New("active deployment not found")
	ErrRunNotFound              = errors.New("run not found")
	ErrApprovalNotFound         = errors.New("approval request not found")
	ErrWebhookNotFound          = errors.New("webhook trigger not found")

	// Conflict errors
	ErrRunTerminal            = errors.New("run already terminal")
	ErrApprovalResolved       = errors.New("approval request already resolved")
	ErrWebhookNoDeployment    = errors.New("no active deployment linked to trigger")
	ErrConcurrentModification = errors.New("concurrent modification")

	// Authentication errors
	ErrInvalidSignature = errors.New("invalid webhook signature")

	// Validation errors
	ErrValidation      = errors.New("validation failed")
	ErrInvalidKind     = errors.New("invalid agent kind")
	ErrInvalidDecision = errors.New("decision must be approved or rejected")
)
