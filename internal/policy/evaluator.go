// Package policy decides whether a proposed agent action may run automatically,
// must wait for an operator, or is refused outright.
package policy

import (
	"strings"

	"github.com/mtlprog/commandcenter/internal/domain"
)

// RiskTierFor derives the risk tier of an action for the given agent kind.
func RiskTierFor(kind domain.AgentKind, action string) domain.RiskTier {
	switch kind {
	case domain.AgentKindLinkedIn:
		if strings.Contains(action, "message") || strings.Contains(action, "connect") {
			return domain.RiskTier3
		}
		return domain.RiskTier2
	case domain.AgentKindBrowser:
		if strings.Contains(action, "extract") {
			return domain.RiskTier1
		}
		return domain.RiskTier2
	default:
		return domain.RiskTier2
	}
}

// Evaluate maps policy limits, agent kind, action and expected hourly volume to a decision.
//
// Volume ceilings are checked before the tier: the general ceiling applies to
// every kind, the message ceiling only to linkedin agents. Tiers are compared
// against the policy threshold, so the same action can be gated by one policy
// and allowed by another.
func Evaluate(limits domain.PolicyLimits, kind domain.AgentKind, action string, expectedActionsThisHour int) domain.Decision {
	tier := RiskTierFor(kind, action)

	if expectedActionsThisHour > limits.MaxActionsPerHour {
		return domain.DecisionDeny
	}

	if kind == domain.AgentKindLinkedIn && expectedActionsThisHour > limits.MaxLinkedinMessages {
		return domain.DecisionDeny
	}

	if tier >= limits.RequireApprovalTier {
		return domain.DecisionRequireApproval
	}

	return domain.DecisionAllow
}
