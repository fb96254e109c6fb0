package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/mtlprog/commandcenter/internal/domain"
	"github.com/mtlprog/commandcenter/internal/notify"
	"github.com/mtlprog/commandcenter/internal/orchestrator"
)

// Runtime is the orchestrator boundary used by the run services.
type Runtime interface {
	Submit(ctx context.Context, req orchestrator.SubmitRequest) (*orchestrator.Job, error)
	Poll(ctx context.Context, jobID string) (*orchestrator.JobStatus, error)
	Cancel(ctx context.Context, jobID string) (*orchestrator.CancelResult, error)
}

// RunNotifier receives committed run transitions.
type RunNotifier interface {
	RunChanged(ctx context.Context, ev notify.RunEvent) error
}

// RunDetail is a run with its tasks and approval requests.
type RunDetail struct {
	Run       *domain.Run
	Tasks     []*domain.Task
	Approvals []*domain.ApprovalRequest
}

// rollback is deferred after Begin; it is a no-op once the transaction committed.
func rollback(ctx context.Context, tx pgx.Tx) {
	if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		slog.Error("failed to rollback transaction", "error", err)
	}
}

func now() time.Time {
	return time.Now().UTC()
}

// publish sends a run event. Failures are logged and swallowed.
func publish(ctx context.Context, n RunNotifier, run *domain.Run) {
	if n == nil {
		return
	}
	ev := notify.RunEvent{
		RunID:       run.ID,
		WorkspaceID: run.WorkspaceID,
		Status:      string(run.Status),
		At:          run.UpdatedAt,
	}
	if run.RuntimeState != nil {
		s := string(*run.RuntimeState)
		ev.RuntimeState = &s
	}

	if err := n.RunChanged(ctx, ev); err != nil {
		slog.Warn("failed to publish run event",
			"run_id", run.ID,
			"workspace_id", run.WorkspaceID,
			"error", err,
		)
	}
}
