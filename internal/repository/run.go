package repository

import (
	"context"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mtlprog/commandcenter/internal/domain"
)

// runColumns is the shared list of columns for run queries.
var runColumns = []string{
	"id", "workspace_id", "agent_id", "deployment_id", "agent_kind", "config",
	"status", "input", "output", "runtime_job_id", "runtime_state", "failure_reason",
	"started_at", "finished_at", "created_at", "updated_at",
}

// RunRepository handles database operations for runs.
type RunRepository struct {
	pool *pgxpool.Pool
}

// NewRunRepository creates a new RunRepository.
func NewRunRepository(pool *pgxpool.Pool) *RunRepository {
	return &RunRepository{pool: pool}
}

// scanRun scans a single row into a Run struct.
func scanRun(row pgx.Row) (*domain.Run, error) {
	var (
		run                   domain.Run
		config, input, output []byte
	)
	err := row.Scan(
		&run.ID,
		&run.WorkspaceID,
		&run.AgentID,
		&run.DeploymentID,
		&run.AgentKind,
		&config,
		&run.Status,
		&input,
		&output,
		&run.RuntimeJobID,
		&run.RuntimeState,
		&run.FailureReason,
		&run.StartedAt,
		&run.FinishedAt,
		&run.CreatedAt,
		&run.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrRunNotFound
		}
		return nil, fmt.Errorf("scan run: %w", err)
	}

	if err := fromJSONB(config, &run.Config); err != nil {
		return nil, fmt.Errorf("run %s config: %w", run.ID, err)
	}
	if err := fromJSONB(input, &run.Input); err != nil {
		return nil, fmt.Errorf("run %s input: %w", run.ID, err)
	}
	if err := fromJSONB(output, &run.Output); err != nil {
		return nil, fmt.Errorf("run %s output: %w", run.ID, err)
	}

	return &run, nil
}

// scanRuns scans multiple rows into a slice of Run structs.
func scanRuns(rows pgx.Rows) ([]*domain.Run, error) {
	defer rows.Close()

	runs := []*domain.Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return runs, nil
}

// GetByID retrieves a run scoped to a workspace.
func (r *RunRepository) GetByID(ctx context.Context, workspaceID, runID string) (*domain.Run, error) {
	query, args, err := psql.
		Select(runColumns...).
		From("runs").
		Where(sq.Eq{"id": runID, "workspace_id": workspaceID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build GetByID query for run %s: %w", runID, err)
	}

	return scanRun(r.pool.QueryRow(ctx, query, args...))
}

// GetByIDForUpdate retrieves a run with FOR UPDATE lock (within transaction).
// The lock serializes every mutation of the run's record set.
func (r *RunRepository) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, workspaceID, runID string) (*domain.Run, error) {
	query, args, err := psql.
		Select(runColumns...).
		From("runs").
		Where(sq.Eq{"id": runID, "workspace_id": workspaceID}).
		Suffix("FOR UPDATE").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build GetByIDForUpdate query for run %s: %w", runID, err)
	}

	return scanRun(tx.QueryRow(ctx, query, args...))
}

// Create inserts a run. ID, CreatedAt and UpdatedAt are populated from the database.
func (r *RunRepository) Create(ctx context.Context, tx pgx.Tx, run *domain.Run) error {
	if run.Input == nil {
		run.Input = map[string]any{}
	}

	config, err := toJSONB(run.Config)
	if err != nil {
		return err
	}
	input, err := toJSONB(run.Input)
	if err != nil {
		return err
	}

	query, args, err := psql.
		Insert("runs").
		Columns(
			"workspace_id", "agent_id", "deployment_id", "agent_kind", "config",
			"status", "input", "started_at",
		).
		Values(
			run.WorkspaceID,
			run.AgentID,
			run.DeploymentID,
			run.AgentKind,
			config,
			run.Status,
			input,
			run.StartedAt,
		).
		Suffix("RETURNING id, created_at, updated_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("build Create query for run: %w", err)
	}

	if err := tx.QueryRow(ctx, query, args...).Scan(&run.ID, &run.CreatedAt, &run.UpdatedAt); err != nil {
		return fmt.Errorf("create run: %w", err)
	}

	return nil
}

// Update writes the mutable run fields. Callers hold the run lock.
func (r *RunRepository) Update(ctx context.Context, tx pgx.Tx, run *domain.Run) error {
	output, err := toJSONB(run.Output)
	if err != nil {
		return err
	}

	query, args, err := psql.
		Update("runs").
		Set("status", run.Status).
		Set("output", output).
		Set("runtime_job_id", run.RuntimeJobID).
		Set("runtime_state", run.RuntimeState).
		Set("failure_reason", run.FailureReason).
		Set("started_at", run.StartedAt).
		Set("finished_at", run.FinishedAt).
		Set("updated_at", sq.Expr("NOW()")).
		Where(sq.Eq{"id": run.ID}).
		Suffix("RETURNING updated_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("build Update query for run %s: %w", run.ID, err)
	}

	if err := tx.QueryRow(ctx, query, args...).Scan(&run.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrRunNotFound
		}
		return fmt.Errorf("update run: %w", err)
	}

	return nil
}
