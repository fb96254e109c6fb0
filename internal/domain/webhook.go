package domain

import "time"

// WebhookTrigger authenticates inbound webhook-originated run creation for one agent.
type WebhookTrigger struct {
	ID          string
	WorkspaceID string
	AgentID     string
	Name        string
	Secret      string
	Enabled     bool
	CreatedAt   time.Time
}
