package domain

import (
	"strings"
	"time"
)

// RunStatus represents the status of a run in the state machine.
type RunStatus string

const (
	RunStatusQueued          RunStatus = "queued"
	RunStatusRunning         RunStatus = "running"
	RunStatusWaitingApproval RunStatus = "waiting_approval"
	RunStatusSucceeded       RunStatus = "succeeded"
	RunStatusFailed          RunStatus = "failed"
	RunStatusCancelled       RunStatus = "cancelled"
)

// IsTerminal returns true if the status is terminal (no transitions allowed).
func (s RunStatus) IsTerminal() bool {
	return s == RunStatusSucceeded || s == RunStatusFailed || s == RunStatusCancelled
}

// IsValid checks if the status is one of the allowed values.
func (s RunStatus) IsValid() bool {
	switch s {
	case RunStatusQueued, RunStatusRunning, RunStatusWaitingApproval,
		RunStatusSucceeded, RunStatusFailed, RunStatusCancelled:
		return true
	default:
		return false
	}
}

// RuntimeState mirrors the orchestrator's job state on a run.
// The orchestrator vocabulary is closed; the control plane adds two sentinels
// of its own that never come from the orchestrator.
type RuntimeState string

const (
	RuntimeStatePending  RuntimeState = "PENDING"
	RuntimeStateReceived RuntimeState = "RECEIVED"
	RuntimeStateStarted  RuntimeState = "STARTED"
	RuntimeStateRetry    RuntimeState = "RETRY"
	RuntimeStateSuccess  RuntimeState = "SUCCESS"
	RuntimeStateFailure  RuntimeState = "FAILURE"
	RuntimeStateRevoked  RuntimeState = "REVOKED"

	// RuntimeStateDispatchFailed marks runs whose job submission never reached the orchestrator.
	RuntimeStateDispatchFailed RuntimeState = "DISPATCH_FAILED"
	// RuntimeStateRejected marks runs whose approval was rejected before dispatch.
	RuntimeStateRejected RuntimeState = "REJECTED"
)

// ParseRuntimeState normalizes a state string reported by the orchestrator.
// Unknown values are kept verbatim so the mirror shows what was observed.
func ParseRuntimeState(raw string) RuntimeState {
	return RuntimeState(strings.ToUpper(strings.TrimSpace(raw)))
}

// IsKnown reports whether the state belongs to the orchestrator vocabulary.
func (s RuntimeState) IsKnown() bool {
	switch s {
	case RuntimeStatePending, RuntimeStateReceived, RuntimeStateStarted, RuntimeStateRetry,
		RuntimeStateSuccess, RuntimeStateFailure, RuntimeStateRevoked:
		return true
	default:
		return false
	}
}

// RunStatus maps the external job state onto the local run status.
// Unknown states map to queued.
func (s RuntimeState) RunStatus() RunStatus {
	switch s {
	case RuntimeStatePending, RuntimeStateReceived:
		return RunStatusQueued
	case RuntimeStateStarted, RuntimeStateRetry:
		return RunStatusRunning
	case RuntimeStateSuccess:
		return RunStatusSucceeded
	case RuntimeStateFailure:
		return RunStatusFailed
	case RuntimeStateRevoked:
		return RunStatusCancelled
	default:
		return RunStatusQueued
	}
}

// Run is one execution attempt of an agent's active deployment.
type Run struct {
	ID            string
	WorkspaceID   string
	AgentID       string
	DeploymentID  string
	AgentKind     AgentKind
	Config        AgentConfig // agent config captured at creation, used for dispatch
	Status        RunStatus
	Input         map[string]any
	Output        map[string]any
	RuntimeJobID  *string
	RuntimeState  *RuntimeState
	FailureReason *string
	StartedAt     *time.Time
	FinishedAt    *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// HasJob reports whether the run was handed to the orchestrator.
func (r *Run) HasJob() bool {
	return r.RuntimeJobID != nil && *r.RuntimeJobID != ""
}

// Failure reasons recorded on runs.
const (
	ReasonPolicyBlocked             = "Blocked by policy limits."
	ReasonRuntimeUnavailable        = "Runtime orchestrator is unavailable."
	ReasonRuntimeUnavailableApprove = "Runtime orchestrator is unavailable after approval."
	ReasonApprovalRejected          = "Approval rejected by operator."
	ReasonCancelledByOperator       = "Cancelled by operator"
	ReasonRuntimeFailed             = "Runtime execution failed"
)
