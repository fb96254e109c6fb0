package domain

import "time"

// TaskStatus represents the status of a run task.
type TaskStatus string

const (
	TaskStatusQueued    TaskStatus = "queued"
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusSucceeded TaskStatus = "succeeded"
	TaskStatusFailed    TaskStatus = "failed"
	TaskStatusSkipped   TaskStatus = "skipped"
)

// IsTerminal returns true if the task can no longer change.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskStatusSucceeded || s == TaskStatusFailed || s == TaskStatusSkipped
}

// OpenTaskStatuses are the statuses a task may not keep once its run is terminal.
var OpenTaskStatuses = []TaskStatus{TaskStatusQueued, TaskStatusRunning}

// Task names created with every run.
const (
	TaskPrepareContext       = "prepare_context"
	TaskExecutePrimaryAction = "execute_primary_action"
)

// Task errors written when a run is cancelled.
const (
	TaskErrorCancelledByOperator = "Run cancelled by operator"
	TaskErrorCancelledByRuntime  = "Cancelled by runtime orchestration"
)

// Task is a named step within a run.
type Task struct {
	ID         string
	RunID      string
	Name       string
	Status     TaskStatus
	Output     map[string]any
	Error      *string
	StartedAt  *time.Time
	FinishedAt *time.Time
	CreatedAt  time.Time
}
