package domain

import "time"

// AgentKind is the automation family an agent belongs to.
type AgentKind string

const (
	AgentKindBrowser  AgentKind = "browser"
	AgentKindLinkedIn AgentKind = "linkedin"
	AgentKindWebhook  AgentKind = "webhook"
)

// IsValid checks if the kind is one of the allowed values.
func (k AgentKind) IsValid() bool {
	switch k {
	case AgentKindBrowser, AgentKindLinkedIn, AgentKindWebhook:
		return true
	default:
		return false
	}
}

// DefaultAction returns the action name used for policy evaluation at run creation.
func (k AgentKind) DefaultAction() string {
	if k == AgentKindLinkedIn {
		return "send_message"
	}
	return "extract_data"
}

// ApprovalAction returns the gated action name recorded on approval requests.
func (k AgentKind) ApprovalAction() string {
	if k == AgentKindLinkedIn {
		return "linkedin.send_message"
	}
	return "external.write"
}

// Agent configuration bounds and defaults.
const (
	MinObjectiveLength       = 10
	MinAgentNameLength       = 3
	MaxAgentNameLength       = 120
	DefaultMaxRetries        = 3
	MaxMaxRetries            = 10
	DefaultMaxActionsPerHour = 20
	MinMaxActionsPerHour     = 1
	MaxMaxActionsPerHour     = 100
)

// AgentConfig is the executable configuration of an agent. It is stored as JSON
// on agents, deployment snapshots and runs.
type AgentConfig struct {
	Objective           string   `json:"objective"`
	Tools               []string `json:"tools"`
	Schedule            string   `json:"schedule,omitempty"`
	MaxRetries          *int     `json:"maxRetries,omitempty"`
	MaxActionsPerHour   *int     `json:"maxActionsPerHour,omitempty"`
	LinkedInGuardedMode *bool    `json:"linkedInGuardedMode,omitempty"`
}

// WithDefaults returns a copy of the config with unset optional fields filled in.
func (c AgentConfig) WithDefaults() AgentConfig {
	if c.MaxRetries == nil {
		v := DefaultMaxRetries
		c.MaxRetries = &v
	}
	if c.MaxActionsPerHour == nil {
		v := DefaultMaxActionsPerHour
		c.MaxActionsPerHour = &v
	}
	if c.LinkedInGuardedMode == nil {
		v := true
		c.LinkedInGuardedMode = &v
	}
	return c
}

// Retries returns maxRetries, falling back to the default.
func (c AgentConfig) Retries() int {
	if c.MaxRetries == nil {
		return DefaultMaxRetries
	}
	return *c.MaxRetries
}

// ActionsPerHour returns maxActionsPerHour, falling back to the default.
func (c AgentConfig) ActionsPerHour() int {
	if c.MaxActionsPerHour == nil {
		return DefaultMaxActionsPerHour
	}
	return *c.MaxActionsPerHour
}

// Agent represents a configured automation unit bound to a policy.
type Agent struct {
	ID          string
	WorkspaceID string
	Name        string
	Kind        AgentKind
	PolicyID    string
	TemplateID  *string
	Config      AgentConfig
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
