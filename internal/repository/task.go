package repository

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mtlprog/commandcenter/internal/domain"
)

// taskColumns is the shared list of columns for task queries.
var taskColumns = []string{
	"id", "run_id", "name", "status", "output", "error", "started_at", "finished_at", "created_at",
}

// TaskRepository handles database operations for run tasks.
type TaskRepository struct {
	pool *pgxpool.Pool
}

// NewTaskRepository creates a new TaskRepository.
func NewTaskRepository(pool *pgxpool.Pool) *TaskRepository {
	return &TaskRepository{pool: pool}
}

// scanTask scans a single row into a Task struct.
func scanTask(row pgx.Row) (*domain.Task, error) {
	var (
		task   domain.Task
		output []byte
	)
	err := row.Scan(
		&task.ID,
		&task.RunID,
		&task.Name,
		&task.Status,
		&output,
		&task.Error,
		&task.StartedAt,
		&task.FinishedAt,
		&task.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("scan task: %w", err)
	}
	if err := fromJSONB(output, &task.Output); err != nil {
		return nil, fmt.Errorf("task %s output: %w", task.ID, err)
	}
	return &task, nil
}

// Create inserts a task within a transaction.
func (r *TaskRepository) Create(ctx context.Context, tx pgx.Tx, task *domain.Task) error {
	output, err := toJSONB(task.Output)
	if err != nil {
		return err
	}

	query, args, err := psql.
		Insert("tasks").
		Columns("run_id", "name", "status", "output", "error", "started_at", "finished_at").
		Values(task.RunID, task.Name, task.Status, output, task.Error, task.StartedAt, task.FinishedAt).
		Suffix("RETURNING id, created_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("build Create query for task: %w", err)
	}

	if err := tx.QueryRow(ctx, query, args...).Scan(&task.ID, &task.CreatedAt); err != nil {
		return fmt.Errorf("create task: %w", err)
	}

	return nil
}

// ListByRuns returns tasks grouped by run id, each group in creation order.
func (r *TaskRepository) ListByRuns(ctx context.Context, runIDs []string) (map[string][]*domain.Task, error) {
	result := make(map[string][]*domain.Task, len(runIDs))
	if len(runIDs) == 0 {
		return result, nil
	}

	query, args, err := psql.
		Select(taskColumns...).
		From("tasks").
		Where(sq.Eq{"run_id": runIDs}).
		OrderBy("created_at ASC", "name DESC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build ListByRuns query: %w", err)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query tasks: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		result[task.RunID] = append(result[task.RunID], task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return result, nil
}

// ListByRun returns a run's tasks in creation order.
func (r *TaskRepository) ListByRun(ctx context.Context, runID string) ([]*domain.Task, error) {
	grouped, err := r.ListByRuns(ctx, []string{runID})
	if err != nil {
		return nil, err
	}
	if tasks := grouped[runID]; tasks != nil {
		return tasks, nil
	}
	return []*domain.Task{}, nil
}

// CloseOpen moves every queued or running task of a run to status. errMsg and
// output are written when non-nil. Returns the number of tasks changed.
func (r *TaskRepository) CloseOpen(
	ctx context.Context,
	tx pgx.Tx,
	runID string,
	status domain.TaskStatus,
	output map[string]any,
	errMsg *string,
	at time.Time,
) (int64, error) {
	ub := psql.
		Update("tasks").
		Set("status", status).
		Set("finished_at", at).
		Where(sq.Eq{"run_id": runID, "status": domain.OpenTaskStatuses})

	if output != nil {
		b, err := toJSONB(output)
		if err != nil {
			return 0, err
		}
		ub = ub.Set("output", b)
	}
	if errMsg != nil {
		ub = ub.Set("error", *errMsg)
	}

	query, args, err := ub.ToSql()
	if err != nil {
		return 0, fmt.Errorf("build CloseOpen query for run %s: %w", runID, err)
	}

	tag, err := tx.Exec(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("close open tasks: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Start moves a queued task to running. started_at keeps an earlier value.
// Returns false when the task was not queued.
func (r *TaskRepository) Start(ctx context.Context, tx pgx.Tx, runID, name string, at time.Time) (bool, error) {
	query, args, err := psql.
		Update("tasks").
		Set("status", domain.TaskStatusRunning).
		Set("started_at", sq.Expr("COALESCE(started_at, ?)", at)).
		Where(sq.Eq{"run_id": runID, "name": name, "status": domain.TaskStatusQueued}).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build Start query for task %s/%s: %w", runID, name, err)
	}

	tag, err := tx.Exec(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("start task: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}
