package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mtlprog/commandcenter/internal/domain"
	"github.com/mtlprog/commandcenter/internal/metrics"
	"github.com/mtlprog/commandcenter/internal/policy"
	"github.com/mtlprog/commandcenter/internal/repository"
)

const (
	defaultRunListLimit = 50
	maxRunListLimit     = 200

	// listReconcileWindow is how many open runs a list request syncs first.
	listReconcileWindow = 20

	noObjective = "No objective configured"
)

// CreateRunInput is a run request. DeploymentID defaults to the agent's active deployment.
type CreateRunInput struct {
	AgentID      string
	DeploymentID *string
	Input        map[string]any
}

// RunListParams filters run listing.
type RunListParams struct {
	AgentID  *string
	Statuses []domain.RunStatus
	Limit    int
	Offset   int
}

// RunService owns the run state machine: creation with policy evaluation,
// dispatch, cancellation and the complete/fail helpers.
type RunService struct {
	pool       *pgxpool.Pool
	repos      *repository.Set
	machine    *runMachine
	runtime    Runtime
	reconciler *Reconciler
	auditor    *Auditor
	notifier   RunNotifier
	metrics    *metrics.Metrics
}

// NewRunService creates a new RunService.
func NewRunService(
	pool *pgxpool.Pool,
	repos *repository.Set,
	runtime Runtime,
	reconciler *Reconciler,
	auditor *Auditor,
	notifier RunNotifier,
	m *metrics.Metrics,
) *RunService {
	if m == nil {
		m = metrics.New(nil)
	}

	return &RunService{
		pool:       pool,
		repos:      repos,
		machine:    &runMachine{runs: repos.Runs, tasks: repos.Tasks, runtime: runtime},
		runtime:    runtime,
		reconciler: reconciler,
		auditor:    auditor,
		notifier:   notifier,
		metrics:    m,
	}
}

// CreateRun creates a run for the agent's active deployment, evaluates policy
// and either fails it, holds it for approval, or dispatches it.
func (s *RunService) CreateRun(ctx context.Context, scope domain.Scope, in CreateRunInput) (*RunDetail, error) {
	if strings.TrimSpace(in.AgentID) == "" {
		return nil, fmt.Errorf("%w: agentId is required", domain.ErrValidation)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer rollback(ctx, tx)

	// The agent lock serializes creation with Promote, so the deployment read
	// below is still the active one when the run row commits.
	agent, err := s.repos.Agents.GetByIDForUpdate(ctx, tx, scope.WorkspaceID, in.AgentID)
	if err != nil {
		return nil, err
	}

	pol, err := s.repos.Policies.GetByID(ctx, scope.WorkspaceID, agent.PolicyID)
	if err != nil {
		return nil, fmt.Errorf("agent %s policy: %w", agent.ID, err)
	}

	deployment, err := s.repos.Deployments.GetActiveByAgentTx(ctx, tx, scope.WorkspaceID, agent.ID)
	if err != nil {
		return nil, err
	}
	if in.DeploymentID != nil && *in.DeploymentID != deployment.ID {
		return nil, fmt.Errorf("%w: deployment %s is not active for agent %s",
			domain.ErrActiveDeploymentNotFound, *in.DeploymentID, agent.ID)
	}

	cfg := agent.Config.WithDefaults()
	action := agent.Kind.DefaultAction()
	expected := cfg.ActionsPerHour()
	decision := policy.Evaluate(pol.PolicyLimits, agent.Kind, action, expected)

	started := now()
	run := &domain.Run{
		WorkspaceID:  scope.WorkspaceID,
		AgentID:      agent.ID,
		DeploymentID: deployment.ID,
		AgentKind:    agent.Kind,
		Config:       cfg,
		Status:       domain.RunStatusQueued,
		Input:        in.Input,
		StartedAt:    &started,
	}
	if err := s.repos.Runs.Create(ctx, tx, run); err != nil {
		return nil, err
	}

	objective := cfg.Objective
	if objective == "" {
		objective = noObjective
	}
	prepared := now()
	tasks := []*domain.Task{
		{
			RunID:      run.ID,
			Name:       domain.TaskPrepareContext,
			Status:     domain.TaskStatusSucceeded,
			Output:     map[string]any{"source": "control_plane", "objective": objective},
			StartedAt:  &started,
			FinishedAt: &prepared,
		},
		{
			RunID:  run.ID,
			Name:   domain.TaskExecutePrimaryAction,
			Status: domain.TaskStatusQueued,
		},
	}
	for _, task := range tasks {
		if err := s.repos.Tasks.Create(ctx, tx, task); err != nil {
			return nil, err
		}
	}

	switch decision {
	case domain.DecisionDeny:
		if err := s.machine.fail(ctx, tx, run, domain.ReasonPolicyBlocked, nil); err != nil {
			return nil, err
		}

	case domain.DecisionRequireApproval:
		run.Status = domain.RunStatusWaitingApproval
		if err := s.repos.Runs.Update(ctx, tx, run); err != nil {
			return nil, err
		}
		approval := &domain.ApprovalRequest{
			RunID:  run.ID,
			Action: agent.Kind.ApprovalAction(),
			Reason: domain.ReasonApprovalRequired,
			Payload: map[string]any{
				"proposedActionCount": expected,
				"policyId":            pol.ID,
				"riskTier":            int(policy.RiskTierFor(agent.Kind, action)),
			},
			Status: domain.ApprovalStatusPending,
		}
		if err := s.repos.Approvals.Create(ctx, tx, approval); err != nil {
			return nil, err
		}

	default:
		if err := s.machine.dispatch(ctx, tx, run, domain.ReasonRuntimeUnavailable); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}

	s.auditor.Record(ctx, scope, domain.AuditRunCreate, domain.TargetRun, run.ID, map[string]any{
		"agentId":        agent.ID,
		"deploymentId":   deployment.ID,
		"policyDecision": string(decision),
	})
	s.metrics.RunsCreated.WithLabelValues(string(decision)).Inc()
	s.metrics.RunTransitions.WithLabelValues(string(run.Status), metrics.SourceCreate).Inc()
	publish(ctx, s.notifier, run)

	slog.Info("run created",
		"run_id", run.ID,
		"workspace_id", run.WorkspaceID,
		"agent_id", agent.ID,
		"decision", decision,
		"status", run.Status,
	)

	return s.detail(ctx, run)
}

// CancelRun cancels a non-terminal run. The orchestrator cancel is best effort;
// local cancellation proceeds when it fails. Pending approvals are rejected.
func (s *RunService) CancelRun(ctx context.Context, scope domain.Scope, runID string) (*RunDetail, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer rollback(ctx, tx)

	run, err := s.repos.Runs.GetByIDForUpdate(ctx, tx, scope.WorkspaceID, runID)
	if err != nil {
		return nil, err
	}
	if run.Status.IsTerminal() {
		return nil, fmt.Errorf("%w: run already %s", domain.ErrRunTerminal, run.Status)
	}
	oldStatus := run.Status

	if run.HasJob() {
		if _, err := s.runtime.Cancel(ctx, *run.RuntimeJobID); err != nil {
			slog.Warn("runtime cancel failed, cancelling locally",
				"run_id", run.ID,
				"job_id", *run.RuntimeJobID,
				"error", err,
			)
		}
	}

	rejected, err := s.repos.Approvals.RejectPending(ctx, tx, run.ID, scope.Actor, domain.TaskErrorCancelledByOperator)
	if err != nil {
		return nil, err
	}

	reason := domain.ReasonCancelledByOperator
	if err := s.machine.cancel(ctx, tx, run, domain.TaskErrorCancelledByOperator, &reason); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}

	s.auditor.Record(ctx, scope, domain.AuditRunCancel, domain.TargetRun, run.ID, map[string]any{
		"previousStatus":    string(oldStatus),
		"rejectedApprovals": rejected,
	})
	s.metrics.RunTransitions.WithLabelValues(string(run.Status), metrics.SourceOperator).Inc()
	publish(ctx, s.notifier, run)

	slog.Info("run cancelled",
		"run_id", run.ID,
		"workspace_id", run.WorkspaceID,
		"old_status", oldStatus,
	)

	return s.detail(ctx, run)
}

// CompleteRun marks a run succeeded with output. Completing an already
// succeeded run is a no-op; any other terminal status is a conflict.
func (s *RunService) CompleteRun(ctx context.Context, scope domain.Scope, runID string, output map[string]any) (*RunDetail, error) {
	return s.finish(ctx, scope, runID, domain.RunStatusSucceeded, func(tx pgx.Tx, run *domain.Run) error {
		return s.machine.complete(ctx, tx, run, output, nil)
	})
}

// FailRun marks a run failed with reason. Failing an already failed run is a
// no-op; any other terminal status is a conflict.
func (s *RunService) FailRun(ctx context.Context, scope domain.Scope, runID, reason string) (*RunDetail, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, fmt.Errorf("%w: reason is required", domain.ErrValidation)
	}
	return s.finish(ctx, scope, runID, domain.RunStatusFailed, func(tx pgx.Tx, run *domain.Run) error {
		return s.machine.fail(ctx, tx, run, reason, nil)
	})
}

func (s *RunService) finish(
	ctx context.Context,
	scope domain.Scope,
	runID string,
	target domain.RunStatus,
	apply func(tx pgx.Tx, run *domain.Run) error,
) (*RunDetail, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer rollback(ctx, tx)

	run, err := s.repos.Runs.GetByIDForUpdate(ctx, tx, scope.WorkspaceID, runID)
	if err != nil {
		return nil, err
	}
	if run.Status == target {
		return s.detail(ctx, run)
	}
	if run.Status.IsTerminal() {
		return nil, fmt.Errorf("%w: run already %s", domain.ErrRunTerminal, run.Status)
	}
	oldStatus := run.Status

	if err := apply(tx, run); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}

	s.metrics.RunTransitions.WithLabelValues(string(run.Status), metrics.SourceOperator).Inc()
	publish(ctx, s.notifier, run)

	slog.Info("run finished",
		"run_id", run.ID,
		"workspace_id", run.WorkspaceID,
		"old_status", oldStatus,
		"new_status", run.Status,
	)

	return s.detail(ctx, run)
}

// GetRun reconciles the run with the orchestrator, then returns it.
func (s *RunService) GetRun(ctx context.Context, scope domain.Scope, runID string) (*RunDetail, error) {
	if err := s.reconciler.Reconcile(ctx, scope.WorkspaceID, runID); err != nil {
		if errors.Is(err, domain.ErrRunNotFound) {
			return nil, err
		}
		slog.Warn("reconcile before read failed", "run_id", runID, "error", err)
	}

	run, err := s.repos.Runs.GetByID(ctx, scope.WorkspaceID, runID)
	if err != nil {
		return nil, err
	}

	return s.detail(ctx, run)
}

// ListRuns reconciles the most recent open runs, then lists runs most recent first.
// Older open runs are synced by GetRun or the reconcile command.
func (s *RunService) ListRuns(ctx context.Context, scope domain.Scope, params RunListParams) ([]*RunDetail, error) {
	if _, err := s.reconciler.ReconcileRecent(ctx, scope.WorkspaceID, listReconcileWindow); err != nil {
		slog.Warn("reconcile before list failed", "workspace_id", scope.WorkspaceID, "error", err)
	}

	limit := params.Limit
	if limit <= 0 {
		limit = defaultRunListLimit
	}
	if limit > maxRunListLimit {
		limit = maxRunListLimit
	}

	runs, err := s.repos.Runs.List(ctx, repository.RunListFilters{
		WorkspaceID: scope.WorkspaceID,
		AgentID:     params.AgentID,
		Statuses:    params.Statuses,
		Limit:       limit,
		Offset:      params.Offset,
	})
	if err != nil {
		return nil, err
	}

	return s.details(ctx, runs)
}

func (s *RunService) detail(ctx context.Context, run *domain.Run) (*RunDetail, error) {
	details, err := s.details(ctx, []*domain.Run{run})
	if err != nil {
		return nil, err
	}
	return details[0], nil
}

// details loads tasks and approvals for all runs with one query each.
func (s *RunService) details(ctx context.Context, runs []*domain.Run) ([]*RunDetail, error) {
	ids := make([]string, len(runs))
	for i, run := range runs {
		ids[i] = run.ID
	}

	tasks, err := s.repos.Tasks.ListByRuns(ctx, ids)
	if err != nil {
		return nil, err
	}
	approvals, err := s.repos.Approvals.ListByRuns(ctx, ids)
	if err != nil {
		return nil, err
	}

	result := make([]*RunDetail, len(runs))
	for i, run := range runs {
		d := &RunDetail{
			Run:       run,
			Tasks:     tasks[run.ID],
			Approvals: approvals[run.ID],
		}
		if d.Tasks == nil {
			d.Tasks = []*domain.Task{}
		}
		if d.Approvals == nil {
			d.Approvals = []*domain.ApprovalRequest{}
		}
		result[i] = d
	}

	return result, nil
}
