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

var policyColumns = []string{
	"id", "workspace_id", "name", "description",
	"max_actions_per_hour", "max_linkedin_messages", "require_approval_tier",
	"created_at", "updated_at",
}

// PolicyRepository handles database operations for policies.
type PolicyRepository struct {
	pool *pgxpool.Pool
}

// NewPolicyRepository creates a new PolicyRepository.
func NewPolicyRepository(pool *pgxpool.Pool) *PolicyRepository {
	return &PolicyRepository{pool: pool}
}

func scanPolicy(row pgx.Row) (*domain.Policy, error) {
	var p domain.Policy
	err := row.Scan(
		&p.ID,
		&p.WorkspaceID,
		&p.Name,
		&p.Description,
		&p.MaxActionsPerHour,
		&p.MaxLinkedinMessages,
		&p.RequireApprovalTier,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrPolicyNotFound
		}
		return nil, fmt.Errorf("scan policy: %w", err)
	}
	return &p, nil
}

// GetByID retrieves a policy scoped to a workspace.
func (r *PolicyRepository) GetByID(ctx context.Context, workspaceID, policyID string) (*domain.Policy, error) {
	query, args, err := psql.
		Select(policyColumns...).
		From("policies").
		Where(sq.Eq{"id": policyID, "workspace_id": workspaceID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build GetByID query for policy %s: %w", policyID, err)
	}

	return scanPolicy(r.pool.QueryRow(ctx, query, args...))
}

// List returns the workspace policies, oldest first.
func (r *PolicyRepository) List(ctx context.Context, workspaceID string) ([]*domain.Policy, error) {
	query, args, err := psql.
		Select(policyColumns...).
		From("policies").
		Where(sq.Eq{"workspace_id": workspaceID}).
		OrderBy("created_at ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build List query for policies: %w", err)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query policies: %w", err)
	}
	defer rows.Close()

	policies := []*domain.Policy{}
	for rows.Next() {
		p, err := scanPolicy(rows)
		if err != nil {
			return nil, err
		}
		policies = append(policies, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return policies, nil
}

// Ensure inserts the policy unless one with the same name exists in the workspace.
// Existing limits are left as operators configured them. p is filled from the stored row.
func (r *PolicyRepository) Ensure(ctx context.Context, tx pgx.Tx, p *domain.Policy) error {
	query, args, err := psql.
		Insert("policies").
		Columns("workspace_id", "name", "description",
			"max_actions_per_hour", "max_linkedin_messages", "require_approval_tier").
		Values(p.WorkspaceID, p.Name, p.Description,
			p.MaxActionsPerHour, p.MaxLinkedinMessages, p.RequireApprovalTier).
		Suffix("ON CONFLICT (workspace_id, name) DO NOTHING").
		ToSql()
	if err != nil {
		return fmt.Errorf("build Ensure query for policy %q: %w", p.Name, err)
	}

	if _, err := tx.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("ensure policy: %w", err)
	}

	query, args, err = psql.
		Select(policyColumns...).
		From("policies").
		Where(sq.Eq{"workspace_id": p.WorkspaceID, "name": p.Name}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build lookup query for policy %q: %w", p.Name, err)
	}

	stored, err := scanPolicy(tx.QueryRow(ctx, query, args...))
	if err != nil {
		return err
	}
	*p = *stored

	return nil
}
