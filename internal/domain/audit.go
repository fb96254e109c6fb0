package domain

import "time"

// AuditEvent is an append-only record of an operator or system action.
type AuditEvent struct {
	ID          string
	WorkspaceID string
	Actor       string
	Action      string
	TargetType  string
	TargetID    string
	Detail      map[string]any
	CreatedAt   time.Time
}

// Audit actions.
const (
	AuditAgentCreate      = "agent.create"
	AuditAgentUpdate      = "agent.update"
	AuditDeploymentCreate = "deployment.create"
	AuditRunCreate        = "run.create"
	AuditRunCancel        = "run.cancel"
	AuditWebhookCreate    = "webhook.create"
)

// Audit target types.
const (
	TargetAgent      = "agent"
	TargetDeployment = "deployment"
	TargetRun        = "run"
	TargetApproval   = "approval_request"
	TargetWebhook    = "webhook"
)
