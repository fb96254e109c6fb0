package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"

	"github.com/mtlprog/commandcenter/internal/domain"
	"github.com/mtlprog/commandcenter/internal/orchestrator"
	"github.com/mtlprog/commandcenter/internal/repository"
)

// defaultRuntimeSummary is the run output when the orchestrator reports success without a result.
const defaultRuntimeSummary = "Runtime job finished"

// runMachine applies run state transitions inside a caller's transaction.
// Every method expects the run row to be locked by tx. Tasks and run are
// written together so a terminal run never keeps open tasks.
type runMachine struct {
	runs    *repository.RunRepository
	tasks   *repository.TaskRepository
	runtime Runtime
}

// fail moves open tasks to failed and the run to failed with reason.
// state, when non-nil, replaces the mirrored runtime state.
func (m *runMachine) fail(ctx context.Context, tx pgx.Tx, run *domain.Run, reason string, state *domain.RuntimeState) error {
	at := now()
	if _, err := m.tasks.CloseOpen(ctx, tx, run.ID, domain.TaskStatusFailed, nil, &reason, at); err != nil {
		return err
	}

	run.Status = domain.RunStatusFailed
	run.FailureReason = &reason
	run.FinishedAt = &at
	if state != nil {
		run.RuntimeState = state
	}

	return m.runs.Update(ctx, tx, run)
}

// complete moves open tasks and the run to succeeded with output.
func (m *runMachine) complete(ctx context.Context, tx pgx.Tx, run *domain.Run, output map[string]any, state *domain.RuntimeState) error {
	if output == nil {
		output = map[string]any{}
	}

	at := now()
	if _, err := m.tasks.CloseOpen(ctx, tx, run.ID, domain.TaskStatusSucceeded, output, nil, at); err != nil {
		return err
	}

	run.Status = domain.RunStatusSucceeded
	run.Output = output
	run.FinishedAt = &at
	if state != nil {
		run.RuntimeState = state
	}

	return m.runs.Update(ctx, tx, run)
}

// cancel skips open tasks with taskErr and marks the run cancelled with
// runtime state REVOKED. reason is recorded as the failure reason when non-nil.
func (m *runMachine) cancel(ctx context.Context, tx pgx.Tx, run *domain.Run, taskErr string, reason *string) error {
	at := now()
	if _, err := m.tasks.CloseOpen(ctx, tx, run.ID, domain.TaskStatusSkipped, nil, &taskErr, at); err != nil {
		return err
	}

	revoked := domain.RuntimeStateRevoked
	run.Status = domain.RunStatusCancelled
	run.RuntimeState = &revoked
	run.FinishedAt = &at
	if reason != nil {
		run.FailureReason = reason
	}

	return m.runs.Update(ctx, tx, run)
}

// dispatch submits the run to the orchestrator using the config captured on
// the run. A failed submit fails the run with failReason and DISPATCH_FAILED.
func (m *runMachine) dispatch(ctx context.Context, tx pgx.Tx, run *domain.Run, failReason string) error {
	job, err := m.runtime.Submit(ctx, orchestrator.SubmitRequest{
		RunID:      run.ID,
		AgentKind:  string(run.AgentKind),
		Objective:  run.Config.Objective,
		Tools:      run.Config.Tools,
		Input:      run.Input,
		MaxRetries: run.Config.Retries(),
	})
	if err != nil {
		slog.Warn("runtime dispatch failed",
			"run_id", run.ID,
			"workspace_id", run.WorkspaceID,
			"error", err,
		)
		state := domain.RuntimeStateDispatchFailed
		return m.fail(ctx, tx, run, failReason, &state)
	}

	jobID := job.JobID
	run.RuntimeJobID = &jobID

	if _, err := m.apply(ctx, tx, run, &orchestrator.JobStatus{JobID: job.JobID, State: job.State}); err != nil {
		return fmt.Errorf("apply dispatched state: %w", err)
	}
	return nil
}

// apply folds an orchestrator job status into the run. It reports false when
// the run already reflects the status, which keeps repeated polls idempotent.
func (m *runMachine) apply(ctx context.Context, tx pgx.Tx, run *domain.Run, status *orchestrator.JobStatus) (bool, error) {
	state := status.State

	switch state {
	case domain.RuntimeStateSuccess:
		output := status.Result
		if output == nil {
			output = map[string]any{"summary": defaultRuntimeSummary}
		}
		return true, m.complete(ctx, tx, run, output, &state)

	case domain.RuntimeStateFailure:
		reason := domain.ReasonRuntimeFailed
		if status.Error != nil && *status.Error != "" {
			reason = *status.Error
		}
		return true, m.fail(ctx, tx, run, reason, &state)

	case domain.RuntimeStateRevoked:
		return true, m.cancel(ctx, tx, run, domain.TaskErrorCancelledByRuntime, nil)
	}

	next := state.RunStatus()
	if run.Status == next && run.RuntimeState != nil && *run.RuntimeState == state {
		return false, nil
	}
	if !state.IsKnown() {
		slog.Warn("unknown runtime state, treating run as queued",
			"run_id", run.ID,
			"runtime_state", state,
		)
	}

	run.Status = next
	run.RuntimeState = &state

	if next == domain.RunStatusRunning {
		at := now()
		if run.StartedAt != nil {
			at = *run.StartedAt
		}
		if _, err := m.tasks.Start(ctx, tx, run.ID, domain.TaskExecutePrimaryAction, at); err != nil {
			return false, err
		}
	}

	return true, m.runs.Update(ctx, tx, run)
}
