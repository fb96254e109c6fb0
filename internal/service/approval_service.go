package service

import (
	"context"
	"fmt"
	"log/slog"
	"maps"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mtlprog/commandcenter/internal/domain"
	"github.com/mtlprog/commandcenter/internal/metrics"
	"github.com/mtlprog/commandcenter/internal/repository"
)

const defaultApprovalListLimit = 50

// ApprovalService resolves approval requests. Approving resumes the held run
// through dispatch; rejecting fails it.
type ApprovalService struct {
	pool     *pgxpool.Pool
	repos    *repository.Set
	machine  *runMachine
	auditor  *Auditor
	notifier RunNotifier
	metrics  *metrics.Metrics
}

// NewApprovalService creates a new ApprovalService.
func NewApprovalService(
	pool *pgxpool.Pool,
	repos *repository.Set,
	runtime Runtime,
	auditor *Auditor,
	notifier RunNotifier,
	m *metrics.Metrics,
) *ApprovalService {
	if m == nil {
		m = metrics.New(nil)
	}

	return &ApprovalService{
		pool:     pool,
		repos:    repos,
		machine:  &runMachine{runs: repos.Runs, tasks: repos.Tasks, runtime: runtime},
		auditor:  auditor,
		notifier: notifier,
		metrics:  m,
	}
}

// Decide records an operator decision on a pending approval request.
// Resolving twice fails with ErrApprovalResolved so the run side effect fires once.
func (s *ApprovalService) Decide(
	ctx context.Context,
	scope domain.Scope,
	approvalID string,
	decision domain.ApprovalStatus,
	note *string,
) (*domain.ApprovalRequest, error) {
	if !decision.IsDecision() {
		return nil, domain.ErrInvalidDecision
	}

	approval, err := s.repos.Approvals.GetByID(ctx, scope.WorkspaceID, approvalID)
	if err != nil {
		return nil, err
	}
	if approval.Status != domain.ApprovalStatusPending {
		return nil, domain.ErrApprovalResolved
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer rollback(ctx, tx)

	// Lock order is run, then approval, matching cancellation.
	run, err := s.repos.Runs.GetByIDForUpdate(ctx, tx, scope.WorkspaceID, approval.RunID)
	if err != nil {
		return nil, err
	}
	approval, err = s.repos.Approvals.GetByIDForUpdate(ctx, tx, scope.WorkspaceID, approvalID)
	if err != nil {
		return nil, err
	}
	if err := approval.CanTransitionTo(decision); err != nil {
		return nil, err
	}
	if run.Status.IsTerminal() {
		return nil, fmt.Errorf("%w: run already %s", domain.ErrRunTerminal, run.Status)
	}
	oldStatus := run.Status

	decidedAt := now()
	payload := maps.Clone(approval.Payload)
	if payload == nil {
		payload = map[string]any{}
	}
	if note != nil {
		payload["note"] = *note
	}
	approval.Status = decision
	approval.DecidedBy = &scope.Actor
	approval.DecidedAt = &decidedAt
	approval.Payload = payload

	if err := s.repos.Approvals.Resolve(ctx, tx, approval); err != nil {
		return nil, err
	}

	if decision == domain.ApprovalStatusApproved {
		err = s.machine.dispatch(ctx, tx, run, domain.ReasonRuntimeUnavailableApprove)
	} else {
		rejected := domain.RuntimeStateRejected
		err = s.machine.fail(ctx, tx, run, domain.ReasonApprovalRejected, &rejected)
	}
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}

	detail := map[string]any{"runId": run.ID}
	if note != nil {
		detail["note"] = *note
	}
	s.auditor.Record(ctx, scope, "approval."+string(decision), domain.TargetApproval, approval.ID, detail)
	s.metrics.ApprovalsDecided.WithLabelValues(string(decision)).Inc()
	s.metrics.RunTransitions.WithLabelValues(string(run.Status), metrics.SourceApproval).Inc()
	publish(ctx, s.notifier, run)

	slog.Info("approval decided",
		"approval_id", approval.ID,
		"run_id", run.ID,
		"workspace_id", run.WorkspaceID,
		"decision", decision,
		"old_status", oldStatus,
		"new_status", run.Status,
	)

	return approval, nil
}

// List returns workspace approvals, most recent first.
func (s *ApprovalService) List(ctx context.Context, scope domain.Scope, status *domain.ApprovalStatus) ([]*domain.ApprovalRequest, error) {
	if status != nil {
		switch *status {
		case domain.ApprovalStatusPending, domain.ApprovalStatusApproved, domain.ApprovalStatusRejected:
		default:
			return nil, fmt.Errorf("%w: unknown approval status %q", domain.ErrValidation, *status)
		}
	}
	return s.repos.Approvals.List(ctx, scope.WorkspaceID, status, defaultApprovalListLimit)
}
