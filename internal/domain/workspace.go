package domain

import "time"

// Workspace represents an isolated tenant owning agents, policies and runs.
type Workspace struct {
	ID        string
	Name      string
	CreatedAt time.Time
}

// Scope identifies the workspace and actor an operation is performed for.
// It is resolved once per request and passed explicitly to every service call.
type Scope struct {
	WorkspaceID string
	Actor       string
}
