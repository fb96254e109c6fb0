package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"github.com/mtlprog/commandcenter/internal/config"
	"github.com/mtlprog/commandcenter/internal/domain"
	"github.com/mtlprog/commandcenter/internal/metrics"
	"github.com/mtlprog/commandcenter/internal/repository"
)

// ReconcileSummary reports a workspace reconciliation pass.
type ReconcileSummary struct {
	Checked int64
	Changed int64
	Failed  int64
}

// Reconciler pulls orchestrator job state into local runs. It runs on the
// read path and from the reconcile command; there is no resident loop.
type Reconciler struct {
	pool        *pgxpool.Pool
	repos       *repository.Set
	machine     *runMachine
	runtime     Runtime
	notifier    RunNotifier
	metrics     *metrics.Metrics
	concurrency int
}

// NewReconciler creates a Reconciler. concurrency caps parallel polls in a
// workspace pass; zero uses the default.
func NewReconciler(
	pool *pgxpool.Pool,
	repos *repository.Set,
	runtime Runtime,
	notifier RunNotifier,
	m *metrics.Metrics,
	concurrency int,
) *Reconciler {
	if concurrency <= 0 {
		concurrency = config.DefaultReconcileConcurrency
	}
	if m == nil {
		m = metrics.New(nil)
	}

	return &Reconciler{
		pool:        pool,
		repos:       repos,
		machine:     &runMachine{runs: repos.Runs, tasks: repos.Tasks, runtime: runtime},
		runtime:     runtime,
		notifier:    notifier,
		metrics:     m,
		concurrency: concurrency,
	}
}

// Reconcile syncs one run with its orchestrator job. It is a no-op for runs
// without a job handle, terminal runs, and when the orchestrator cannot be polled.
func (r *Reconciler) Reconcile(ctx context.Context, workspaceID, runID string) error {
	run, err := r.repos.Runs.GetByID(ctx, workspaceID, runID)
	if err != nil {
		return err
	}

	_, err = r.reconcileRun(ctx, run)
	return err
}

// ReconcileWorkspace reconciles every non-terminal run with a job handle.
// Runs are handled independently; one run's failure does not stop the others.
func (r *Reconciler) ReconcileWorkspace(ctx context.Context, workspaceID string) (*ReconcileSummary, error) {
	return r.ReconcileRecent(ctx, workspaceID, 0)
}

// ReconcileRecent is ReconcileWorkspace restricted to the limit most recently
// created open runs. The list read path uses it to bound orchestrator polls.
func (r *Reconciler) ReconcileRecent(ctx context.Context, workspaceID string, limit int) (*ReconcileSummary, error) {
	runs, err := r.repos.Runs.ListReconcilable(ctx, workspaceID, limit)
	if err != nil {
		return nil, err
	}

	var (
		summary                  ReconcileSummary
		checked, changed, failed atomic.Int64
		g                        errgroup.Group
	)
	g.SetLimit(r.concurrency)

	for _, run := range runs {
		g.Go(func() error {
			checked.Add(1)
			ok, err := r.reconcileRun(ctx, run)
			if err != nil {
				failed.Add(1)
				slog.Warn("failed to reconcile run",
					"run_id", run.ID,
					"workspace_id", workspaceID,
					"error", err,
				)
				return nil
			}
			if ok {
				changed.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	summary.Checked = checked.Load()
	summary.Changed = changed.Load()
	summary.Failed = failed.Load()

	if summary.Changed > 0 || summary.Failed > 0 {
		slog.Info("workspace reconciled",
			"workspace_id", workspaceID,
			"checked", summary.Checked,
			"changed", summary.Changed,
			"failed", summary.Failed,
		)
	}

	return &summary, nil
}

// reconcileRun polls outside the run lock, then locks and re-checks the run
// before applying so a concurrent cancel or approval is never overwritten.
func (r *Reconciler) reconcileRun(ctx context.Context, run *domain.Run) (bool, error) {
	if !run.HasJob() || run.Status.IsTerminal() {
		return false, nil
	}
	jobID := *run.RuntimeJobID

	status, err := r.runtime.Poll(ctx, jobID)
	if err != nil {
		slog.Warn("runtime poll failed, keeping run state",
			"run_id", run.ID,
			"job_id", jobID,
			"error", err,
		)
		return false, nil
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("begin transaction: %w", err)
	}
	defer rollback(ctx, tx)

	locked, err := r.repos.Runs.GetByIDForUpdate(ctx, tx, run.WorkspaceID, run.ID)
	if err != nil {
		return false, err
	}
	if locked.Status.IsTerminal() || !locked.HasJob() || *locked.RuntimeJobID != jobID {
		return false, nil
	}

	oldStatus := locked.Status
	changed, err := r.machine.apply(ctx, tx, locked, status)
	if err != nil {
		return false, err
	}
	if !changed {
		return false, nil
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("commit transaction: %w", err)
	}

	if locked.Status != oldStatus {
		r.metrics.RunTransitions.WithLabelValues(string(locked.Status), metrics.SourceReconcile).Inc()
	}
	publish(ctx, r.notifier, locked)

	slog.Info("run reconciled",
		"run_id", locked.ID,
		"workspace_id", locked.WorkspaceID,
		"old_status", oldStatus,
		"new_status", locked.Status,
		"runtime_state", status.State,
	)

	return true, nil
}
