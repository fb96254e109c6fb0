package domain

import "time"

// Decision is the outcome of policy evaluation for a proposed action.
type Decision string

const (
	DecisionAllow           Decision = "allow"
	DecisionRequireApproval Decision = "require_approval"
	DecisionDeny            Decision = "deny"
)

// RiskTier is an ordinal 1-3 classification of an action; higher is riskier.
type RiskTier int

const (
	RiskTier1 RiskTier = 1
	RiskTier2 RiskTier = 2
	RiskTier3 RiskTier = 3
)

// IsValid reports whether the tier is within 1-3.
func (t RiskTier) IsValid() bool {
	return t >= RiskTier1 && t <= RiskTier3
}

// PolicyLimits are the numeric limits the evaluator works on.
type PolicyLimits struct {
	MaxActionsPerHour   int
	MaxLinkedinMessages int
	RequireApprovalTier RiskTier
}

// Policy is workspace-scoped named configuration governing action volume and approvals.
type Policy struct {
	ID          string
	WorkspaceID string
	Name        string
	Description string
	PolicyLimits
	CreatedAt time.Time
	UpdatedAt time.Time
}
