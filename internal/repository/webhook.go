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

var webhookColumns = []string{"id", "workspace_id", "agent_id", "name", "secret", "enabled", "created_at"}

// WebhookRepository handles database operations for webhook triggers.
type WebhookRepository struct {
	pool *pgxpool.Pool
}

// NewWebhookRepository creates a new WebhookRepository.
func NewWebhookRepository(pool *pgxpool.Pool) *WebhookRepository {
	return &WebhookRepository{pool: pool}
}

func scanWebhook(row pgx.Row) (*domain.WebhookTrigger, error) {
	var w domain.WebhookTrigger
	err := row.Scan(&w.ID, &w.WorkspaceID, &w.AgentID, &w.Name, &w.Secret, &w.Enabled, &w.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrWebhookNotFound
		}
		return nil, fmt.Errorf("scan webhook trigger: %w", err)
	}
	return &w, nil
}

// GetByID retrieves a trigger scoped to a workspace.
func (r *WebhookRepository) GetByID(ctx context.Context, workspaceID, triggerID string) (*domain.WebhookTrigger, error) {
	query, args, err := psql.
		Select(webhookColumns...).
		From("webhook_triggers").
		Where(sq.Eq{"id": triggerID, "workspace_id": workspaceID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build GetByID query for webhook trigger %s: %w", triggerID, err)
	}

	return scanWebhook(r.pool.QueryRow(ctx, query, args...))
}

// ListByAgent returns an agent's triggers, oldest first.
func (r *WebhookRepository) ListByAgent(ctx context.Context, workspaceID, agentID string) ([]*domain.WebhookTrigger, error) {
	query, args, err := psql.
		Select(webhookColumns...).
		From("webhook_triggers").
		Where(sq.Eq{"agent_id": agentID, "workspace_id": workspaceID}).
		OrderBy("created_at ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build ListByAgent query for webhook triggers: %w", err)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query webhook triggers: %w", err)
	}
	defer rows.Close()

	triggers := []*domain.WebhookTrigger{}
	for rows.Next() {
		w, err := scanWebhook(rows)
		if err != nil {
			return nil, err
		}
		triggers = append(triggers, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return triggers, nil
}

// Create inserts a trigger. ID and CreatedAt are populated from the database.
func (r *WebhookRepository) Create(ctx context.Context, tx pgx.Tx, w *domain.WebhookTrigger) error {
	query, args, err := psql.
		Insert("webhook_triggers").
		Columns("workspace_id", "agent_id", "name", "secret", "enabled").
		Values(w.WorkspaceID, w.AgentID, w.Name, w.Secret, w.Enabled).
		Suffix("RETURNING id, created_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("build Create query for webhook trigger: %w", err)
	}

	if err := tx.QueryRow(ctx, query, args...).Scan(&w.ID, &w.CreatedAt); err != nil {
		return fmt.Errorf("create webhook trigger: %w", err)
	}

	return nil
}
