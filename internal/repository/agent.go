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

var agentColumns = []string{
	"id", "workspace_id", "name", "kind", "policy_id", "template_id", "config",
	"created_at", "updated_at",
}

// AgentRepository handles database operations for agents.
type AgentRepository struct {
	pool *pgxpool.Pool
}

// NewAgentRepository creates a new AgentRepository.
func NewAgentRepository(pool *pgxpool.Pool) *AgentRepository {
	return &AgentRepository{pool: pool}
}

func scanAgent(row pgx.Row) (*domain.Agent, error) {
	var (
		a      domain.Agent
		config []byte
	)
	err := row.Scan(
		&a.ID,
		&a.WorkspaceID,
		&a.Name,
		&a.Kind,
		&a.PolicyID,
		&a.TemplateID,
		&config,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrAgentNotFound
		}
		return nil, fmt.Errorf("scan agent: %w", err)
	}
	if err := fromJSONB(config, &a.Config); err != nil {
		return nil, fmt.Errorf("agent %s config: %w", a.ID, err)
	}
	return &a, nil
}

func (r *AgentRepository) selectByID(workspaceID, agentID string) sq.SelectBuilder {
	return psql.
		Select(agentColumns...).
		From("agents").
		Where(sq.Eq{"id": agentID, "workspace_id": workspaceID})
}

// GetByID retrieves an agent scoped to a workspace.
func (r *AgentRepository) GetByID(ctx context.Context, workspaceID, agentID string) (*domain.Agent, error) {
	query, args, err := r.selectByID(workspaceID, agentID).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build GetByID query for agent %s: %w", agentID, err)
	}

	return scanAgent(r.pool.QueryRow(ctx, query, args...))
}

// GetByIDForUpdate retrieves an agent with FOR UPDATE lock (within transaction).
func (r *AgentRepository) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, workspaceID, agentID string) (*domain.Agent, error) {
	query, args, err := r.selectByID(workspaceID, agentID).Suffix("FOR UPDATE").ToSql()
	if err != nil {
		return nil, fmt.Errorf("build GetByIDForUpdate query for agent %s: %w", agentID, err)
	}

	return scanAgent(tx.QueryRow(ctx, query, args...))
}

// List returns the workspace agents, most recently updated first.
func (r *AgentRepository) List(ctx context.Context, workspaceID string) ([]*domain.Agent, error) {
	query, args, err := psql.
		Select(agentColumns...).
		From("agents").
		Where(sq.Eq{"workspace_id": workspaceID}).
		OrderBy("updated_at DESC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build List query for agents: %w", err)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query agents: %w", err)
	}
	defer rows.Close()

	agents := []*domain.Agent{}
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, err
		}
		agents = append(agents, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return agents, nil
}

// Create inserts an agent. ID, CreatedAt and UpdatedAt are populated from the database.
func (r *AgentRepository) Create(ctx context.Context, tx pgx.Tx, a *domain.Agent) error {
	config, err := toJSONB(a.Config)
	if err != nil {
		return err
	}

	query, args, err := psql.
		Insert("agents").
		Columns("workspace_id", "name", "kind", "policy_id", "template_id", "config").
		Values(a.WorkspaceID, a.Name, a.Kind, a.PolicyID, a.TemplateID, config).
		Suffix("RETURNING id, created_at, updated_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("build Create query for agent: %w", err)
	}

	if err := tx.QueryRow(ctx, query, args...).Scan(&a.ID, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return fmt.Errorf("create agent: %w", err)
	}

	return nil
}

// Update writes the mutable agent fields.
func (r *AgentRepository) Update(ctx context.Context, tx pgx.Tx, a *domain.Agent) error {
	config, err := toJSONB(a.Config)
	if err != nil {
		return err
	}

	query, args, err := psql.
		Update("agents").
		Set("name", a.Name).
		Set("kind", a.Kind).
		Set("policy_id", a.PolicyID).
		Set("template_id", a.TemplateID).
		Set("config", config).
		Set("updated_at", sq.Expr("NOW()")).
		Where(sq.Eq{"id": a.ID, "workspace_id": a.WorkspaceID}).
		Suffix("RETURNING updated_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("build Update query for agent %s: %w", a.ID, err)
	}

	if err := tx.QueryRow(ctx, query, args...).Scan(&a.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrAgentNotFound
		}
		return fmt.Errorf("update agent: %w", err)
	}

	return nil
}
