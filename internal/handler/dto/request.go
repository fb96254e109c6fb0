package dto

import "github.com/mtlprog/commandcenter/internal/domain"

// CreateAgentRequest represents the request body for POST /agents.
type CreateAgentRequest struct {
	Name       string             `json:"name"`
	Kind       string             `json:"kind"`
	PolicyID   string             `json:"policyId"`
	TemplateID *string            `json:"templateId,omitempty"`
	Config     domain.AgentConfig `json:"config"`
}

// UpdateAgentRequest represents the request body for PUT /agents/{id}.
// Omitted fields are left unchanged.
type UpdateAgentRequest struct {
	Name       *string             `json:"name,omitempty"`
	Kind       *string             `json:"kind,omitempty"`
	PolicyID   *string             `json:"policyId,omitempty"`
	TemplateID *string             `json:"templateId,omitempty"`
	Config     *domain.AgentConfig `json:"config,omitempty"`
}

// CreateRunRequest represents the request body for POST /runs.
type CreateRunRequest struct {
	AgentID      string         `json:"agentId"`
	DeploymentID *string        `json:"deploymentId,omitempty"`
	Input        map[string]any `json:"input,omitempty"`
}

// DecisionRequest represents the request body for POST /approvals/{id}/decision.
type DecisionRequest struct {
	Decision string  `json:"decision"`
	Note     *string `json:"note,omitempty"`
}

// CreateWebhookRequest represents the request body for POST /agents/{id}/webhooks.
type CreateWebhookRequest struct {
	Name string `json:"name"`
}
