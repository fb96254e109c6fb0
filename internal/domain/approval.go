package domain

import "time"

// ApprovalStatus is the state of an approval request.
type ApprovalStatus string

const (
	ApprovalStatusPending  ApprovalStatus = "pending"
	ApprovalStatusApproved ApprovalStatus = "approved"
	ApprovalStatusRejected ApprovalStatus = "rejected"
)

// IsDecision reports whether the status is a valid operator decision.
func (s ApprovalStatus) IsDecision() bool {
	return s == ApprovalStatusApproved || s == ApprovalStatusRejected
}

// ReasonApprovalRequired is recorded on approval requests created by policy.
const ReasonApprovalRequired = "Policy tier requires operator approval."

// ApprovalRequest is a pending operator decision gating a run.
type ApprovalRequest struct {
	ID        string
	RunID     string
	Action    string
	Reason    string
	Payload   map[string]any
	Status    ApprovalStatus
	DecidedBy *string
	DecidedAt *time.Time
	CreatedAt time.Time
}

// CanTransitionTo checks the approval state machine: only pending requests
// can be resolved, and only to a decision.
func (a *ApprovalRequest) CanTransitionTo(next ApprovalStatus) error {
	if a.Status != ApprovalStatusPending {
		return ErrApprovalResolved
	}
	if !next.IsDecision() {
		return ErrInvalidDecision
	}
	return nil
}
