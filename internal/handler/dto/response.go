package dto

import (
	"time"

	"github.com/mtlprog/commandcenter/internal/domain"
	"github.com/mtlprog/commandcenter/internal/service"
)

// AgentResponse represents an agent.
type AgentResponse struct {
	ID          string             `json:"id"`
	WorkspaceID string             `json:"workspaceId"`
	Name        string             `json:"name"`
	Kind        string             `json:"kind"`
	PolicyID    string             `json:"policyId"`
	TemplateID  *string            `json:"templateId"`
	Config      domain.AgentConfig `json:"config"`
	CreatedAt   time.Time          `json:"createdAt"`
	UpdatedAt   time.Time          `json:"updatedAt"`
}

// AgentDetailResponse is an agent with its policy, deployments and recent runs.
type AgentDetailResponse struct {
	AgentResponse
	Policy      PolicyResponse       `json:"policy"`
	Deployments []DeploymentResponse `json:"deployments"`
	Runs        []RunResponse        `json:"runs"`
}

// AgentMetricsResponse represents GET /agents/{id}/metrics.
type AgentMetricsResponse struct {
	TotalRuns       int     `json:"totalRuns"`
	Succeeded       int     `json:"succeeded"`
	Failed          int     `json:"failed"`
	WaitingApproval int     `json:"waitingApproval"`
	SuccessRate     float64 `json:"successRate"`
}

// PolicyResponse represents a policy.
type PolicyResponse struct {
	ID                  string    `json:"id"`
	Name                string    `json:"name"`
	Description         string    `json:"description"`
	MaxActionsPerHour   int       `json:"maxActionsPerHour"`
	MaxLinkedinMessages int       `json:"maxLinkedinMessages"`
	RequireApprovalTier int       `json:"requireApprovalTier"`
	CreatedAt           time.Time `json:"createdAt"`
	UpdatedAt           time.Time `json:"updatedAt"`
}

// TemplateResponse represents an agent template.
type TemplateResponse struct {
	ID          string             `json:"id"`
	Name        string             `json:"name"`
	Kind        string             `json:"kind"`
	Description string             `json:"description"`
	Defaults    domain.AgentConfig `json:"defaults"`
	CreatedAt   time.Time          `json:"createdAt"`
}

// DeploymentResponse represents a deployment.
type DeploymentResponse struct {
	ID        string                    `json:"id"`
	AgentID   string                    `json:"agentId"`
	Version   int                       `json:"version"`
	Status    string                    `json:"status"`
	Snapshot  domain.DeploymentSnapshot `json:"snapshot"`
	CreatedBy string                    `json:"createdBy"`
	CreatedAt time.Time                 `json:"createdAt"`
}

// RunResponse represents a run without its children.
type RunResponse struct {
	ID            string         `json:"id"`
	AgentID       string         `json:"agentId"`
	DeploymentID  string         `json:"deploymentId"`
	Status        string         `json:"status"`
	Input         map[string]any `json:"input"`
	Output        map[string]any `json:"output"`
	RuntimeJobID  *string        `json:"runtimeJobId"`
	RuntimeState  *string        `json:"runtimeState"`
	FailureReason *string        `json:"failureReason"`
	StartedAt     *time.Time     `json:"startedAt"`
	FinishedAt    *time.Time     `json:"finishedAt"`
	CreatedAt     time.Time      `json:"createdAt"`
	UpdatedAt     time.Time      `json:"updatedAt"`
}

// RunDetailResponse is a run with its tasks and approvals.
type RunDetailResponse struct {
	RunResponse
	Tasks     []TaskResponse     `json:"tasks"`
	Approvals []ApprovalResponse `json:"approvals"`
}

// RunSnapshot is the payload of the run stream snapshot event.
type RunSnapshot struct {
	Run       RunResponse        `json:"run"`
	Tasks     []TaskResponse     `json:"tasks"`
	Approvals []ApprovalResponse `json:"approvals"`
}

// TaskResponse represents a run task.
type TaskResponse struct {
	ID         string         `json:"id"`
	Name       string         `json:"name"`
	Status     string         `json:"status"`
	Output     map[string]any `json:"output"`
	Error      *string        `json:"error"`
	StartedAt  *time.Time     `json:"startedAt"`
	FinishedAt *time.Time     `json:"finishedAt"`
	CreatedAt  time.Time      `json:"createdAt"`
}

// ApprovalResponse represents an approval request.
type ApprovalResponse struct {
	ID        string         `json:"id"`
	RunID     string         `json:"runId"`
	Action    string         `json:"action"`
	Reason    string         `json:"reason"`
	Payload   map[string]any `json:"payload"`
	Status    string         `json:"status"`
	DecidedBy *string        `json:"decidedBy"`
	DecidedAt *time.Time     `json:"decidedAt"`
	CreatedAt time.Time      `json:"createdAt"`
}

// WebhookResponse represents a webhook trigger. Secret is only set on creation.
type WebhookResponse struct {
	ID        string    `json:"id"`
	AgentID   string    `json:"agentId"`
	Name      string    `json:"name"`
	Enabled   bool      `json:"enabled"`
	Secret    string    `json:"secret,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// StatsResponse represents GET /stats.
type StatsResponse struct {
	TotalAgents       int     `json:"totalAgents"`
	ActiveDeployments int     `json:"activeDeployments"`
	QueuedApprovals   int     `json:"queuedApprovals"`
	RunSuccessRate    float64 `json:"runSuccessRate"`
}

// ToAgentResponse converts domain.Agent to AgentResponse.
func ToAgentResponse(a *domain.Agent) AgentResponse {
	return AgentResponse{
		ID:          a.ID,
		WorkspaceID: a.WorkspaceID,
		Name:        a.Name,
		Kind:        string(a.Kind),
		PolicyID:    a.PolicyID,
		TemplateID:  a.TemplateID,
		Config:      a.Config,
		CreatedAt:   a.CreatedAt,
		UpdatedAt:   a.UpdatedAt,
	}
}

// ToAgentDetailResponse converts service.AgentDetail to AgentDetailResponse.
func ToAgentDetailResponse(d *service.AgentDetail) AgentDetailResponse {
	deployments := make([]DeploymentResponse, len(d.Deployments))
	for i, dep := range d.Deployments {
		deployments[i] = ToDeploymentResponse(dep)
	}
	runs := make([]RunResponse, len(d.RecentRuns))
	for i, run := range d.RecentRuns {
		runs[i] = ToRunResponse(run)
	}

	return AgentDetailResponse{
		AgentResponse: ToAgentResponse(d.Agent),
		Policy:        ToPolicyResponse(d.Policy),
		Deployments:   deployments,
		Runs:          runs,
	}
}

func ToAgentMetricsResponse(m *service.AgentMetrics) AgentMetricsResponse {
	return AgentMetricsResponse{
		TotalRuns:       m.TotalRuns,
		Succeeded:       m.Succeeded,
		Failed:          m.Failed,
		WaitingApproval: m.WaitingApproval,
		SuccessRate:     m.SuccessRate,
	}
}

func ToPolicyResponse(p *domain.Policy) PolicyResponse {
	return PolicyResponse{
		ID:                  p.ID,
		Name:                p.Name,
		Description:         p.Description,
		MaxActionsPerHour:   p.MaxActionsPerHour,
		MaxLinkedinMessages: p.MaxLinkedinMessages,
		RequireApprovalTier: int(p.RequireApprovalTier),
		CreatedAt:           p.CreatedAt,
		UpdatedAt:           p.UpdatedAt,
	}
}

func ToTemplateResponse(t *domain.AgentTemplate) TemplateResponse {
	return TemplateResponse{
		ID:          t.ID,
		Name:        t.Name,
		Kind:        string(t.Kind),
		Description: t.Description,
		Defaults:    t.Defaults,
		CreatedAt:   t.CreatedAt,
	}
}

func ToDeploymentResponse(d *domain.Deployment) DeploymentResponse {
	return DeploymentResponse{
		ID:        d.ID,
		AgentID:   d.AgentID,
		Version:   d.Version,
		Status:    string(d.Status),
		Snapshot:  d.Snapshot,
		CreatedBy: d.CreatedBy,
		CreatedAt: d.CreatedAt,
	}
}

// ToRunResponse converts domain.Run to RunResponse.
func ToRunResponse(run *domain.Run) RunResponse {
	var state *string
	if run.RuntimeState != nil {
		s := string(*run.RuntimeState)
		state = &s
	}

	return RunResponse{
		ID:            run.ID,
		AgentID:       run.AgentID,
		DeploymentID:  run.DeploymentID,
		Status:        string(run.Status),
		Input:         run.Input,
		Output:        run.Output,
		RuntimeJobID:  run.RuntimeJobID,
		RuntimeState:  state,
		FailureReason: run.FailureReason,
		StartedAt:     run.StartedAt,
		FinishedAt:    run.FinishedAt,
		CreatedAt:     run.CreatedAt,
		UpdatedAt:     run.UpdatedAt,
	}
}

// ToRunDetailResponse converts service.RunDetail to RunDetailResponse.
func ToRunDetailResponse(d *service.RunDetail) RunDetailResponse {
	snap := ToRunSnapshot(d)
	return RunDetailResponse{
		RunResponse: snap.Run,
		Tasks:       snap.Tasks,
		Approvals:   snap.Approvals,
	}
}

// ToRunSnapshot converts service.RunDetail to the stream snapshot payload.
func ToRunSnapshot(d *service.RunDetail) RunSnapshot {
	tasks := make([]TaskResponse, len(d.Tasks))
	for i, t := range d.Tasks {
		tasks[i] = ToTaskResponse(t)
	}
	approvals := make([]ApprovalResponse, len(d.Approvals))
	for i, a := range d.Approvals {
		approvals[i] = ToApprovalResponse(a)
	}

	return RunSnapshot{
		Run:       ToRunResponse(d.Run),
		Tasks:     tasks,
		Approvals: approvals,
	}
}

func ToTaskResponse(t *domain.Task) TaskResponse {
	return TaskResponse{
		ID:         t.ID,
		Name:       t.Name,
		Status:     string(t.Status),
		Output:     t.Output,
		Error:      t.Error,
		StartedAt:  t.StartedAt,
		FinishedAt: t.FinishedAt,
		CreatedAt:  t.CreatedAt,
	}
}

func ToApprovalResponse(a *domain.ApprovalRequest) ApprovalResponse {
	return ApprovalResponse{
		ID:        a.ID,
		RunID:     a.RunID,
		Action:    a.Action,
		Reason:    a.Reason,
		Payload:   a.Payload,
		Status:    string(a.Status),
		DecidedBy: a.DecidedBy,
		DecidedAt: a.DecidedAt,
		CreatedAt: a.CreatedAt,
	}
}

// ToWebhookResponse converts a trigger; withSecret includes the shared secret.
func ToWebhookResponse(w *domain.WebhookTrigger, withSecret bool) WebhookResponse {
	resp := WebhookResponse{
		ID:        w.ID,
		AgentID:   w.AgentID,
		Name:      w.Name,
		Enabled:   w.Enabled,
		CreatedAt: w.CreatedAt,
	}
	if withSecret {
		resp.Secret = w.Secret
	}
	return resp
}

func ToStatsResponse(s *service.WorkspaceStats) StatsResponse {
	return StatsResponse{
		TotalAgents:       s.TotalAgents,
		ActiveDeployments: s.ActiveDeployments,
		QueuedApprovals:   s.QueuedApprovals,
		RunSuccessRate:    s.RunSuccessRate,
	}
}

// WebhookRunResponse represents the result of an inbound webhook call.
type WebhookRunResponse struct {
	RunID  string `json:"runId"`
	Status string `json:"status"`
}
