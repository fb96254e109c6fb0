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

var templateColumns = []string{"id", "workspace_id", "name", "kind", "description", "defaults", "created_at"}

// TemplateRepository handles database operations for agent templates.
type TemplateRepository struct {
	pool *pgxpool.Pool
}

// NewTemplateRepository creates a new TemplateRepository.
func NewTemplateRepository(pool *pgxpool.Pool) *TemplateRepository {
	return &TemplateRepository{pool: pool}
}

func scanTemplate(row pgx.Row) (*domain.AgentTemplate, error) {
	var (
		t        domain.AgentTemplate
		defaults []byte
	)
	err := row.Scan(&t.ID, &t.WorkspaceID, &t.Name, &t.Kind, &t.Description, &defaults, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrTemplateNotFound
		}
		return nil, fmt.Errorf("scan template: %w", err)
	}
	if err := fromJSONB(defaults, &t.Defaults); err != nil {
		return nil, fmt.Errorf("template %s defaults: %w", t.ID, err)
	}
	return &t, nil
}

// GetByID retrieves a template scoped to a workspace.
func (r *TemplateRepository) GetByID(ctx context.Context, workspaceID, templateID string) (*domain.AgentTemplate, error) {
	query, args, err := psql.
		Select(templateColumns...).
		From("agent_templates").
		Where(sq.Eq{"id": templateID, "workspace_id": workspaceID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build GetByID query for template %s: %w", templateID, err)
	}

	return scanTemplate(r.pool.QueryRow(ctx, query, args...))
}

// List returns the workspace templates, oldest first.
func (r *TemplateRepository) List(ctx context.Context, workspaceID string) ([]*domain.AgentTemplate, error) {
	query, args, err := psql.
		Select(templateColumns...).
		From("agent_templates").
		Where(sq.Eq{"workspace_id": workspaceID}).
		OrderBy("created_at ASC", "name ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build List query for templates: %w", err)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query templates: %w", err)
	}
	defer rows.Close()

	templates := []*domain.AgentTemplate{}
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		templates = append(templates, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return templates, nil
}

// Upsert inserts the template or refreshes kind, description and defaults of the
// existing template with the same name.
func (r *TemplateRepository) Upsert(ctx context.Context, tx pgx.Tx, t *domain.AgentTemplate) error {
	defaults, err := toJSONB(t.Defaults)
	if err != nil {
		return err
	}

	query, args, err := psql.
		Insert("agent_templates").
		Columns("workspace_id", "name", "kind", "description", "defaults").
		Values(t.WorkspaceID, t.Name, t.Kind, t.Description, defaults).
		Suffix(`ON CONFLICT (workspace_id, name) DO UPDATE
			SET kind = EXCLUDED.kind, description = EXCLUDED.description, defaults = EXCLUDED.defaults
			RETURNING id, created_at`).
		ToSql()
	if err != nil {
		return fmt.Errorf("build Upsert query for template %q: %w", t.Name, err)
	}

	if err := tx.QueryRow(ctx, query, args...).Scan(&t.ID, &t.CreatedAt); err != nil {
		return fmt.Errorf("upsert template: %w", err)
	}

	return nil
}
