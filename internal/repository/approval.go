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

var approvalColumns = []string{
	"a.id", "a.run_id", "a.action", "a.reason", "a.payload", "a.status",
	"a.decided_by", "a.decided_at", "a.created_at",
}

// ApprovalRepository handles database operations for approval requests.
// Approvals are scoped to a workspace through their run.
type ApprovalRepository struct {
	pool *pgxpool.Pool
}

// NewApprovalRepository creates a new ApprovalRepository.
func NewApprovalRepository(pool *pgxpool.Pool) *ApprovalRepository {
	return &ApprovalRepository{pool: pool}
}

func scanApproval(row pgx.Row) (*domain.ApprovalRequest, error) {
	var (
		a       domain.ApprovalRequest
		payload []byte
	)
	err := row.Scan(
		&a.ID,
		&a.RunID,
		&a.Action,
		&a.Reason,
		&payload,
		&a.Status,
		&a.DecidedBy,
		&a.DecidedAt,
		&a.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrApprovalNotFound
		}
		return nil, fmt.Errorf("scan approval: %w", err)
	}
	if err := fromJSONB(payload, &a.Payload); err != nil {
		return nil, fmt.Errorf("approval %s payload: %w", a.ID, err)
	}
	return &a, nil
}

func scanApprovals(rows pgx.Rows) ([]*domain.ApprovalRequest, error) {
	defer rows.Close()

	approvals := []*domain.ApprovalRequest{}
	for rows.Next() {
		a, err := scanApproval(rows)
		if err != nil {
			return nil, err
		}
		approvals = append(approvals, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return approvals, nil
}

func selectApprovals(workspaceID string) sq.SelectBuilder {
	return psql.
		Select(approvalColumns...).
		From("approval_requests a").
		Join("runs r ON r.id = a.run_id").
		Where(sq.Eq{"r.workspace_id": workspaceID})
}

// GetByID retrieves an approval request scoped to a workspace.
func (r *ApprovalRepository) GetByID(ctx context.Context, workspaceID, approvalID string) (*domain.ApprovalRequest, error) {
	query, args, err := selectApprovals(workspaceID).
		Where(sq.Eq{"a.id": approvalID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build GetByID query for approval %s: %w", approvalID, err)
	}

	return scanApproval(r.pool.QueryRow(ctx, query, args...))
}

// GetByIDForUpdate locks an approval request. Callers lock its run first.
func (r *ApprovalRepository) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, workspaceID, approvalID string) (*domain.ApprovalRequest, error) {
	query, args, err := selectApprovals(workspaceID).
		Where(sq.Eq{"a.id": approvalID}).
		Suffix("FOR UPDATE OF a").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build GetByIDForUpdate query for approval %s: %w", approvalID, err)
	}

	return scanApproval(tx.QueryRow(ctx, query, args...))
}

// List returns workspace approvals, most recent first, optionally filtered by status.
func (r *ApprovalRepository) List(ctx context.Context, workspaceID string, status *domain.ApprovalStatus, limit int) ([]*domain.ApprovalRequest, error) {
	qb := selectApprovals(workspaceID)
	if status != nil {
		qb = qb.Where(sq.Eq{"a.status": *status})
	}

	query, args, err := qb.
		OrderBy("a.created_at DESC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build List query for approvals: %w", err)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query approvals: %w", err)
	}
	return scanApprovals(rows)
}

// ListByRuns returns approvals grouped by run id, oldest first.
func (r *ApprovalRepository) ListByRuns(ctx context.Context, runIDs []string) (map[string][]*domain.ApprovalRequest, error) {
	result := make(map[string][]*domain.ApprovalRequest, len(runIDs))
	if len(runIDs) == 0 {
		return result, nil
	}

	query, args, err := psql.
		Select(approvalColumns...).
		From("approval_requests a").
		Where(sq.Eq{"a.run_id": runIDs}).
		OrderBy("a.created_at ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build ListByRuns query for approvals: %w", err)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query approvals: %w", err)
	}

	approvals, err := scanApprovals(rows)
	if err != nil {
		return nil, err
	}
	for _, a := range approvals {
		result[a.RunID] = append(result[a.RunID], a)
	}
	return result, nil
}

// Create inserts a pending approval request. The partial unique index rejects a
// second pending request for the same run.
func (r *ApprovalRepository) Create(ctx context.Context, tx pgx.Tx, a *domain.ApprovalRequest) error {
	if a.Status == "" {
		a.Status = domain.ApprovalStatusPending
	}
	payload, err := toJSONB(a.Payload)
	if err != nil {
		return err
	}

	query, args, err := psql.
		Insert("approval_requests").
		Columns("run_id", "action", "reason", "payload", "status").
		Values(a.RunID, a.Action, a.Reason, payload, a.Status).
		Suffix("RETURNING id, created_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("build Create query for approval: %w", err)
	}

	if err := tx.QueryRow(ctx, query, args...).Scan(&a.ID, &a.CreatedAt); err != nil {
		return fmt.Errorf("create approval: %w", err)
	}

	return nil
}

// Resolve records a decision on a pending request.
// Returns ErrApprovalResolved if the request is no longer pending.
func (r *ApprovalRepository) Resolve(ctx context.Context, tx pgx.Tx, a *domain.ApprovalRequest) error {
	payload, err := toJSONB(a.Payload)
	if err != nil {
		return err
	}

	query, args, err := psql.
		Update("approval_requests").
		Set("status", a.Status).
		Set("decided_by", a.DecidedBy).
		Set("decided_at", a.DecidedAt).
		Set("payload", payload).
		Where(sq.Eq{"id": a.ID, "status": domain.ApprovalStatusPending}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build Resolve query for approval %s: %w", a.ID, err)
	}

	tag, err := tx.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("resolve approval: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrApprovalResolved
	}

	return nil
}

// RejectPending rejects every pending request of a run, merging note into the payload.
func (r *ApprovalRepository) RejectPending(ctx context.Context, tx pgx.Tx, runID, actor, note string) (int64, error) {
	query, args, err := psql.
		Update("approval_requests").
		Set("status", domain.ApprovalStatusRejected).
		Set("decided_by", actor).
		Set("decided_at", sq.Expr("NOW()")).
		Set("payload", sq.Expr("payload || jsonb_build_object('note', ?::text)", note)).
		Where(sq.Eq{"run_id": runID, "status": domain.ApprovalStatusPending}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build RejectPending query for run %s: %w", runID, err)
	}

	tag, err := tx.Exec(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("reject pending approvals: %w", err)
	}
	return tag.RowsAffected(), nil
}
