package domain

import "time"

// AgentTemplate is a named starting configuration for new agents.
type AgentTemplate struct {
	ID          string
	WorkspaceID string
	Name        string
	Kind        AgentKind
	Description string
	Defaults    AgentConfig
	CreatedAt   time.Time
}
