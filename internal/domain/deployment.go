package domain

import "time"

// DeploymentStatus is the lifecycle state of a deployment.
type DeploymentStatus string

const (
	DeploymentStatusActive   DeploymentStatus = "active"
	DeploymentStatusArchived DeploymentStatus = "archived"
)

// DeploymentSnapshot is the agent state frozen at promotion time.
type DeploymentSnapshot struct {
	Config     AgentConfig `json:"config"`
	PolicyID   string      `json:"policyId"`
	TemplateID *string     `json:"templateId"`
	Kind       AgentKind   `json:"kind"`
}

// Deployment is an immutable versioned snapshot of an agent.
// At most one deployment per agent is active.
type Deployment struct {
	ID          string
	WorkspaceID string
	AgentID     string
	Version     int
	Status      DeploymentStatus
	Snapshot    DeploymentSnapshot
	CreatedBy   string
	CreatedAt   time.Time
}
