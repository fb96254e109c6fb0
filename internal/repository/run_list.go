package repository

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/mtlprog/commandcenter/internal/domain"
)

// RunListFilters holds all supported filters for run listing.
type RunListFilters struct {
	WorkspaceID string             // Required: filter by workspace
	AgentID     *string            // Optional: filter by agent
	Statuses    []domain.RunStatus // Optional: filter by status
	Limit       int                // Required: page size
	Offset      int
}

// List retrieves runs, most recent first.
func (r *RunRepository) List(ctx context.Context, filters RunListFilters) ([]*domain.Run, error) {
	qb := psql.Select(runColumns...).From("runs").
		Where(sq.Eq{"workspace_id": filters.WorkspaceID})

	if filters.AgentID != nil {
		qb = qb.Where(sq.Eq{"agent_id": *filters.AgentID})
	}
	if len(filters.Statuses) > 0 {
		qb = qb.Where(sq.Eq{"status": filters.Statuses})
	}

	query, args, err := qb.
		OrderBy("created_at DESC", "id DESC").
		Limit(uint64(filters.Limit)).
		Offset(uint64(filters.Offset)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build List query for runs: %w", err)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}

	return scanRuns(rows)
}

// ListReconcilable returns non-terminal runs that hold an orchestrator job handle.
// A positive limit keeps only the most recent runs; zero returns all, oldest first.
func (r *RunRepository) ListReconcilable(ctx context.Context, workspaceID string, limit int) ([]*domain.Run, error) {
	qb := psql.
		Select(runColumns...).
		From("runs").
		Where(sq.Eq{
			"workspace_id": workspaceID,
			"status": []domain.RunStatus{
				domain.RunStatusQueued,
				domain.RunStatusRunning,
				domain.RunStatusWaitingApproval,
			},
		}).
		Where(sq.NotEq{"runtime_job_id": nil})

	if limit > 0 {
		qb = qb.OrderBy("created_at DESC", "id DESC").Limit(uint64(limit))
	} else {
		qb = qb.OrderBy("created_at ASC")
	}

	query, args, err := qb.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build ListReconcilable query: %w", err)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query reconcilable runs: %w", err)
	}

	return scanRuns(rows)
}
