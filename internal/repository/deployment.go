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

var deploymentColumns = []string{
	"id", "workspace_id", "agent_id", "version", "status", "snapshot", "created_by", "created_at",
}

// DeploymentRepository handles database operations for deployments.
type DeploymentRepository struct {
	pool *pgxpool.Pool
}

// NewDeploymentRepository creates a new DeploymentRepository.
func NewDeploymentRepository(pool *pgxpool.Pool) *DeploymentRepository {
	return &DeploymentRepository{pool: pool}
}

func scanDeployment(row pgx.Row) (*domain.Deployment, error) {
	var (
		d        domain.Deployment
		snapshot []byte
	)
	err := row.Scan(&d.ID, &d.WorkspaceID, &d.AgentID, &d.Version, &d.Status, &snapshot, &d.CreatedBy, &d.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrDeploymentNotFound
		}
		return nil, fmt.Errorf("scan deployment: %w", err)
	}
	if err := fromJSONB(snapshot, &d.Snapshot); err != nil {
		return nil, fmt.Errorf("deployment %s snapshot: %w", d.ID, err)
	}
	return &d, nil
}

func scanDeployments(rows pgx.Rows) ([]*domain.Deployment, error) {
	defer rows.Close()

	deployments := []*domain.Deployment{}
	for rows.Next() {
		d, err := scanDeployment(rows)
		if err != nil {
			return nil, err
		}
		deployments = append(deployments, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return deployments, nil
}

func (r *DeploymentRepository) selectActive(workspaceID, agentID string) sq.SelectBuilder {
	return psql.
		Select(deploymentColumns...).
		From("deployments").
		Where(sq.Eq{
			"agent_id":     agentID,
			"workspace_id": workspaceID,
			"status":       domain.DeploymentStatusActive,
		})
}

// GetActiveByAgent returns the agent's active deployment or ErrActiveDeploymentNotFound.
func (r *DeploymentRepository) GetActiveByAgent(ctx context.Context, workspaceID, agentID string) (*domain.Deployment, error) {
	query, args, err := r.selectActive(workspaceID, agentID).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build GetActiveByAgent query for agent %s: %w", agentID, err)
	}

	return activeOrNotFound(scanDeployment(r.pool.QueryRow(ctx, query, args...)))
}

// GetActiveByAgentTx is GetActiveByAgent inside tx. Callers hold the agent row
// lock, which Promote also takes, so the result stays active until commit.
func (r *DeploymentRepository) GetActiveByAgentTx(ctx context.Context, tx pgx.Tx, workspaceID, agentID string) (*domain.Deployment, error) {
	query, args, err := r.selectActive(workspaceID, agentID).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build GetActiveByAgentTx query for agent %s: %w", agentID, err)
	}

	return activeOrNotFound(scanDeployment(tx.QueryRow(ctx, query, args...)))
}

func activeOrNotFound(d *domain.Deployment, err error) (*domain.Deployment, error) {
	if errors.Is(err, domain.ErrDeploymentNotFound) {
		return nil, domain.ErrActiveDeploymentNotFound
	}
	return d, err
}

// ListByAgent returns an agent's deployments, newest version first.
func (r *DeploymentRepository) ListByAgent(ctx context.Context, workspaceID, agentID string) ([]*domain.Deployment, error) {
	query, args, err := psql.
		Select(deploymentColumns...).
		From("deployments").
		Where(sq.Eq{"agent_id": agentID, "workspace_id": workspaceID}).
		OrderBy("version DESC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build ListByAgent query for agent %s: %w", agentID, err)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query deployments: %w", err)
	}
	return scanDeployments(rows)
}

// List returns the workspace deployments, most recent first.
func (r *DeploymentRepository) List(ctx context.Context, workspaceID string, limit int) ([]*domain.Deployment, error) {
	query, args, err := psql.
		Select(deploymentColumns...).
		From("deployments").
		Where(sq.Eq{"workspace_id": workspaceID}).
		OrderBy("created_at DESC", "version DESC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build List query for deployments: %w", err)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query deployments: %w", err)
	}
	return scanDeployments(rows)
}

// MaxVersion returns the highest version ever assigned to the agent, 0 if none.
// Callers hold the agent row lock.
func (r *DeploymentRepository) MaxVersion(ctx context.Context, tx pgx.Tx, agentID string) (int, error) {
	query, args, err := psql.
		Select("COALESCE(MAX(version), 0)").
		From("deployments").
		Where(sq.Eq{"agent_id": agentID}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build MaxVersion query for agent %s: %w", agentID, err)
	}

	var version int
	if err := tx.QueryRow(ctx, query, args...).Scan(&version); err != nil {
		return 0, fmt.Errorf("query max deployment version: %w", err)
	}
	return version, nil
}

// ArchiveActive archives the agent's active deployment and returns how many rows changed.
func (r *DeploymentRepository) ArchiveActive(ctx context.Context, tx pgx.Tx, agentID string) (int64, error) {
	query, args, err := psql.
		Update("deployments").
		Set("status", domain.DeploymentStatusArchived).
		Where(sq.Eq{"agent_id": agentID, "status": domain.DeploymentStatusActive}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build ArchiveActive query for agent %s: %w", agentID, err)
	}

	tag, err := tx.Exec(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("archive active deployment: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Create inserts a deployment. ID and CreatedAt are populated from the database.
func (r *DeploymentRepository) Create(ctx context.Context, tx pgx.Tx, d *domain.Deployment) error {
	snapshot, err := toJSONB(d.Snapshot)
	if err != nil {
		return err
	}

	query, args, err := psql.
		Insert("deployments").
		Columns("workspace_id", "agent_id", "version", "status", "snapshot", "created_by").
		Values(d.WorkspaceID, d.AgentID, d.Version, d.Status, snapshot, d.CreatedBy).
		Suffix("RETURNING id, created_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("build Create query for deployment: %w", err)
	}

	if err := tx.QueryRow(ctx, query, args...).Scan(&d.ID, &d.CreatedAt); err != nil {
		return fmt.Errorf("create deployment: %w", err)
	}

	return nil
}
