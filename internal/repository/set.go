package repository

import "github.com/jackc/pgx/v5/pgxpool"

// Set bundles every repository over one pool.
type Set struct {
	Workspaces  *WorkspaceRepository
	Policies    *PolicyRepository
	Templates   *TemplateRepository
	Agents      *AgentRepository
	Deployments *DeploymentRepository
	Runs        *RunRepository
	Tasks       *TaskRepository
	Approvals   *ApprovalRepository
	Webhooks    *WebhookRepository
	Audit       *AuditRepository
}

// NewSet creates all repositories.
func NewSet(pool *pgxpool.Pool) *Set {
	return &Set{
		Workspaces:  NewWorkspaceRepository(pool),
		Policies:    NewPolicyRepository(pool),
		Templates:   NewTemplateRepository(pool),
		Agents:      NewAgentRepository(pool),
		Deployments: NewDeploymentRepository(pool),
		Runs:        NewRunRepository(pool),
		Tasks:       NewTaskRepository(pool),
		Approvals:   NewApprovalRepository(pool),
		Webhooks:    NewWebhookRepository(pool),
		Audit:       NewAuditRepository(pool),
	}
}
